package hostaudio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/go-audio/audio"

	"github.com/gen2brain/adbvol/alsa"
)

// Emitter plays an audio buffer to completion.
type Emitter interface {
	Emit(ctx context.Context, buf *audio.IntBuffer) error
}

// PCMEmitter plays buffers directly on an ALSA playback device.
type PCMEmitter struct {
	Card   uint
	Device uint
}

// Emit plays buf on the device and waits until it has been played.
func (e *PCMEmitter) Emit(ctx context.Context, buf *audio.IntBuffer) error {
	cfg := alsa.DefaultStreamConfig()
	cfg.Channels = uint32(buf.Format.NumChannels)
	cfg.Rate = uint32(buf.Format.SampleRate)

	p, err := alsa.OpenPlayback(e.Card, e.Device, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	if got := p.Config().Channels; got != cfg.Channels {
		return fmt.Errorf("device hw:%d,%d refused %d channels, offered %d", e.Card, e.Device, cfg.Channels, got)
	}

	return p.Play(ctx, toS16(buf))
}

// CommandEmitter plays buffers through an external player, e.g. aplay or paplay.
type CommandEmitter struct {
	// Args is the player command line. "{}" is replaced by the WAV path, which is appended otherwise.
	Args []string
	// Dir is where the temporary WAV file is written; empty means os.TempDir.
	Dir string
}

// Emit writes buf to a temporary WAV file and runs the player on it.
func (e *CommandEmitter) Emit(ctx context.Context, buf *audio.IntBuffer) error {
	if len(e.Args) == 0 {
		return fmt.Errorf("no player command configured")
	}

	f, err := os.CreateTemp(e.Dir, "adbvol-*.wav")
	if err != nil {
		return fmt.Errorf("could not create wav file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := WriteWAV(f, buf); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("could not close wav file: %w", err)
	}

	args := expandArgs(e.Args, f.Name())

	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("player %s failed: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}

	return nil
}

func expandArgs(args []string, path string) []string {
	out := make([]string, 0, len(args)+1)

	replaced := false
	for _, arg := range args {
		if strings.Contains(arg, "{}") {
			arg = strings.ReplaceAll(arg, "{}", path)
			replaced = true
		}

		out = append(out, arg)
	}

	if !replaced {
		out = append(out, path)
	}

	return out
}
