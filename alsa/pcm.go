package alsa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// StreamConfig describes an interleaved S16_LE playback stream.
type StreamConfig struct {
	Channels    uint32
	Rate        uint32
	PeriodSize  uint32 // In frames
	PeriodCount uint32
}

// DefaultStreamConfig returns a 48 kHz stereo configuration with four periods of 1024 frames.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Channels:    2,
		Rate:        48000,
		PeriodSize:  1024,
		PeriodCount: 4,
	}
}

// Playback is an open hardware playback device, e.g. /dev/snd/pcmC0D0p.
type Playback struct {
	file *os.File
	path string
	cfg  StreamConfig

	bufferFrames uint32
	prepared     bool
	underruns    int
}

// OpenPlayback opens the playback device of card and configures it with cfg.
// The driver may refine cfg; Config returns what was accepted.
func OpenPlayback(card, device uint, cfg StreamConfig) (*Playback, error) {
	path := fmt.Sprintf("/dev/snd/pcmC%dD%dp", card, device)

	// A device held by another client would block open; switch to blocking I/O afterwards.
	file, err := os.OpenFile(path, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open playback device %s: %w", path, err)
	}

	if err := unix.SetNonblock(int(file.Fd()), false); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("failed to set blocking mode on %s: %w", path, err)
	}

	p := &Playback{file: file, path: path}
	if err := p.configure(cfg); err != nil {
		_ = p.Close()

		return nil, err
	}

	return p, nil
}

// Close releases the device. Closing a nil or closed Playback is a no-op.
func (p *Playback) Close() error {
	if p == nil || p.file == nil {
		return nil
	}

	err := p.file.Close()
	p.file = nil

	return err
}

// Config returns the stream configuration accepted by the driver.
func (p *Playback) Config() StreamConfig {
	return p.cfg
}

// BufferFrames returns the size of the ring buffer in frames.
func (p *Playback) BufferFrames() uint32 {
	return p.bufferFrames
}

// Underruns returns how many underruns were recovered while writing.
func (p *Playback) Underruns() int {
	return p.underruns
}

// FrameBytes returns the size of one interleaved frame.
func (p *Playback) FrameBytes() uint32 {
	return p.cfg.Channels * SNDRV_PCM_FORMAT_S16_LE.Bits() / 8
}

// Duration returns the play time of frames at the stream rate.
func (p *Playback) Duration(frames int) time.Duration {
	if p.cfg.Rate == 0 {
		return 0
	}

	return time.Duration(int64(frames) * int64(time.Second) / int64(p.cfg.Rate))
}

// Play writes interleaved samples one period at a time and waits until they are played.
// A cancelled context drops whatever is still queued.
func (p *Playback) Play(ctx context.Context, samples []int16) error {
	if p == nil || p.file == nil {
		return ErrClosed
	}

	chunk := int(p.cfg.PeriodSize * p.cfg.Channels)

	for off := 0; off < len(samples); off += chunk {
		if err := ctx.Err(); err != nil {
			_ = p.control(SNDRV_PCM_IOCTL_DROP, "DROP")

			return err
		}

		if _, err := p.write(samples[off:min(off+chunk, len(samples))]); err != nil {
			return err
		}
	}

	return p.control(SNDRV_PCM_IOCTL_DRAIN, "DRAIN")
}

func (p *Playback) configure(cfg StreamConfig) error {
	hw := &sndPcmHwParams{}
	hw.reset()
	hw.setMask(SNDRV_PCM_HW_PARAM_ACCESS, SNDRV_PCM_ACCESS_RW_INTERLEAVED)
	hw.setMask(SNDRV_PCM_HW_PARAM_FORMAT, uint32(SNDRV_PCM_FORMAT_S16_LE))
	hw.setMin(SNDRV_PCM_HW_PARAM_PERIOD_SIZE, cfg.PeriodSize)
	hw.setInt(SNDRV_PCM_HW_PARAM_CHANNELS, cfg.Channels)
	hw.setInt(SNDRV_PCM_HW_PARAM_PERIODS, cfg.PeriodCount)
	hw.setInt(SNDRV_PCM_HW_PARAM_RATE, cfg.Rate)

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_HW_PARAMS, uintptr(unsafe.Pointer(hw))); err != nil {
		return fmt.Errorf("ioctl HW_PARAMS on %s failed: %w", p.path, err)
	}

	p.cfg = StreamConfig{
		Channels:    hw.get(SNDRV_PCM_HW_PARAM_CHANNELS),
		Rate:        hw.get(SNDRV_PCM_HW_PARAM_RATE),
		PeriodSize:  hw.get(SNDRV_PCM_HW_PARAM_PERIOD_SIZE),
		PeriodCount: hw.get(SNDRV_PCM_HW_PARAM_PERIODS),
	}

	if p.cfg.Channels == 0 || p.cfg.Rate == 0 || p.cfg.PeriodSize == 0 || p.cfg.PeriodCount == 0 {
		return fmt.Errorf("driver refined %s to an unusable stream %+v", p.path, p.cfg)
	}

	p.bufferFrames = p.cfg.PeriodSize * p.cfg.PeriodCount

	sw := &sndPcmSwParams{
		TstampMode:     1,
		PeriodStep:     1,
		AvailMin:       sndPcmUframesT(p.cfg.PeriodSize),
		StartThreshold: sndPcmUframesT(p.bufferFrames / 2),
		StopThreshold:  sndPcmUframesT(p.bufferFrames),
		XferAlign:      sndPcmUframesT(p.cfg.PeriodSize / 2),
	}

	if err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_SW_PARAMS, uintptr(unsafe.Pointer(sw))); err != nil {
		return fmt.Errorf("ioctl SW_PARAMS on %s failed: %w", p.path, err)
	}

	return nil
}

// write transfers whole frames, recovering from underruns.
func (p *Playback) write(samples []int16) (int, error) {
	frames := uint32(len(samples)) / p.cfg.Channels
	if frames == 0 {
		return 0, fmt.Errorf("%d samples do not make a frame of %d channels", len(samples), p.cfg.Channels)
	}

	defer runtime.KeepAlive(samples)

	if !p.prepared {
		if err := p.control(SNDRV_PCM_IOCTL_PREPARE, "PREPARE"); err != nil {
			return 0, err
		}
	}

	base := uintptr(unsafe.Pointer(&samples[0]))
	frameBytes := p.FrameBytes()

	var done uint32
	for done < frames {
		xfer := sndXferi{
			Frames: sndPcmUframesT(frames - done),
			Buf:    base + uintptr(done*frameBytes),
		}

		err := ioctl(p.file.Fd(), SNDRV_PCM_IOCTL_WRITEI_FRAMES, uintptr(unsafe.Pointer(&xfer)))
		if xfer.Result > 0 {
			done += uint32(xfer.Result)
		}

		switch {
		case err == nil:
		case errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ESTRPIPE):
			p.underruns++
			if err := p.control(SNDRV_PCM_IOCTL_PREPARE, "PREPARE"); err != nil {
				return int(done), err
			}
		default:
			return int(done), fmt.Errorf("ioctl WRITEI_FRAMES on %s failed: %w", p.path, err)
		}
	}

	return int(done), nil
}

// control issues an argument-less stream ioctl.
func (p *Playback) control(req uintptr, name string) error {
	if p.file == nil {
		return ErrClosed
	}

	if err := ioctl(p.file.Fd(), req, 0); err != nil {
		return fmt.Errorf("ioctl %s on %s failed: %w", name, p.path, err)
	}

	p.prepared = req == SNDRV_PCM_IOCTL_PREPARE

	return nil
}
