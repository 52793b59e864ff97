// Package hostaudio exposes the bridge as a mixer session on an ALSA sound card
// and reports the volume an operator sets on it.
package hostaudio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gen2brain/adbvol"
)

// Session is a registered mixer session.
type Session interface {
	// Volume reads the current state of the session.
	Volume() (adbvol.HostVolumeState, error)
	// Watch blocks and calls notify on every change notification.
	// It returns ErrSessionInvalidated when the host drops the session, or ctx.Err().
	Watch(ctx context.Context, notify func()) error
	// Set writes st to the session.
	Set(st adbvol.HostVolumeState) error
	// Owned reports whether the session created its volume control.
	Owned() bool
	// Close unregisters the session.
	Close() error
}

// Host is the host audio subsystem.
type Host interface {
	// CreateSession registers a mixer session named after tag.
	CreateSession(ctx context.Context, tag string) (Session, error)
	// EmitSilence plays a near-silent burst of duration d.
	EmitSilence(ctx context.Context, d time.Duration) error
}

const (
	volumeSuffix = " Playback Volume"
	switchSuffix = " Playback Switch"

	// ALSA element names are limited to 43 bytes.
	maxElemName = 43
)

// VolumeControlName returns the name of the volume element for tag.
func VolumeControlName(tag string) string {
	return tag + volumeSuffix
}

// SwitchControlName returns the name of the mute switch element for tag.
func SwitchControlName(tag string) string {
	return tag + switchSuffix
}

// Config configures the ALSA host.
type Config struct {
	// Card is the sound card number. A negative value selects the card by CardName.
	Card int `yaml:"card"`
	// CardName matches a card id or description; empty selects the first card.
	CardName string `yaml:"card_name"`
	// PCMDevice is the playback device used for the silence burst.
	PCMDevice int `yaml:"pcm_device"`
	// Tag names the mixer controls, e.g. "Phone" for "Phone Playback Volume".
	Tag string `yaml:"tag"`
	// Steps is the maximum of a created volume control.
	Steps int `yaml:"steps"`
	// CreateControls adds missing controls as user controls.
	CreateControls bool `yaml:"create_controls"`
	// Silence is the length of the burst played before registering. Zero disables it.
	Silence time.Duration `yaml:"silence"`
	// Amplitude of the burst samples; 0 is digital silence.
	Amplitude int `yaml:"amplitude"`
	// Player plays the burst through an external command instead of the PCM device.
	// "{}" is replaced by the path of a WAV file, which is appended otherwise.
	Player []string `yaml:"player"`
	// PollInterval bounds how long a watch waits for control events between cancellation checks.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns the default host configuration.
func DefaultConfig() Config {
	return Config{
		Card:           -1,
		Tag:            "Phone",
		Steps:          100,
		CreateControls: true,
		Silence:        200 * time.Millisecond,
		Amplitude:      1,
		PollInterval:   200 * time.Millisecond,
	}
}

// Validate checks the configuration for impossible values.
func (c Config) Validate() error {
	var errs []error

	if c.Tag == "" {
		errs = append(errs, errors.New("tag must not be empty"))
	} else if len(VolumeControlName(c.Tag)) > maxElemName {
		errs = append(errs, fmt.Errorf("tag %q is too long for an ALSA control name", c.Tag))
	}

	if c.Steps < 1 || c.Steps > 1<<16 {
		errs = append(errs, fmt.Errorf("steps %d out of range [1..65536]", c.Steps))
	}

	if c.PCMDevice < 0 {
		errs = append(errs, fmt.Errorf("pcm_device %d must not be negative", c.PCMDevice))
	}

	if c.Silence < 0 || c.Silence > 5*time.Second {
		errs = append(errs, fmt.Errorf("silence %s out of range [0..5s]", c.Silence))
	}

	if c.Amplitude < 0 || c.Amplitude > 32767 {
		errs = append(errs, fmt.Errorf("amplitude %d out of range [0..32767]", c.Amplitude))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval %s must be positive", c.PollInterval))
	}

	return errors.Join(errs...)
}
