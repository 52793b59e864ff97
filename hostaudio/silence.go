package hostaudio

import (
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Format of the silence burst.
const (
	SampleRate = 48000
	Channels   = 2
	BitDepth   = 16
)

// Silence returns an interleaved buffer of duration d.
// Samples alternate between +amplitude and -amplitude frame by frame, so a
// non-zero amplitude is inaudible but not digital zero.
func Silence(d time.Duration, amplitude int) *audio.IntBuffer {
	frames := int(int64(d) * SampleRate / int64(time.Second))
	if frames < 0 {
		frames = 0
	}

	data := make([]int, frames*Channels)
	if amplitude != 0 {
		for i := range data {
			if (i/Channels)%2 == 0 {
				data[i] = amplitude
			} else {
				data[i] = -amplitude
			}
		}
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: Channels,
			SampleRate:  SampleRate,
		},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
}

// toS16 converts the buffer into the slice the PCM device expects.
func toS16(buf *audio.IntBuffer) []int16 {
	out := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		// Clamp value to int16 range before casting.
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}

		out[i] = int16(s)
	}

	return out
}

// WriteWAV encodes buf as a 16-bit PCM WAV file.
func WriteWAV(w io.WriteSeeker, buf *audio.IntBuffer) error {
	encoder := wav.NewEncoder(w,
		buf.Format.SampleRate,
		BitDepth,
		buf.Format.NumChannels,
		1, // Audio format 1 is PCM
	)

	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("wav write failed: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("wav close failed: %w", err)
	}

	return nil
}
