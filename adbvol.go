// Package adbvol keeps the volume of an adb-attached Android device in sync with a host mixer control.
//
// The package holds the synchronization engine: the range mapping between the
// host and device volume domains, the newest-wins hand-off used by the host
// notification path, and the Controller state machine that drives a
// DeviceClient from the changes reported by a HostMonitor.
package adbvol

import (
	"context"
	"fmt"
)

// HostVolumeState is the volume of the host mixer session.
// Level is normalized to [0, 1].
type HostVolumeState struct {
	Level float64
	Muted bool
}

// String returns a human-readable representation of the HostVolumeState.
func (s HostVolumeState) String() string {
	if s.Muted {
		return fmt.Sprintf("%d%% (muted)", Percent(s.Level))
	}

	return fmt.Sprintf("%d%%", Percent(s.Level))
}

// DeviceVolumeState is the volume of the device in its native integer steps.
type DeviceVolumeState struct {
	Level int
	Muted bool
}

// Device is a handle to a connected device, valid for one sync session.
type Device struct {
	// Serial is the transport identifier of the device.
	Serial string
	// Max is the native maximum volume step, zero until queried.
	Max int

	audible int
	current DeviceVolumeState
	known   bool
}

// Observe records st as the volume the device reported or acknowledged.
func (d *Device) Observe(st DeviceVolumeState) {
	if d == nil {
		return
	}

	d.current = st
	d.known = true

	if !st.Muted {
		d.RememberLevel(st.Level)
	}
}

// Forget marks the device volume as unknown, e.g. after a relative key press.
func (d *Device) Forget() {
	if d != nil {
		d.known = false
	}
}

// Current returns the last observed volume and whether it is still known.
func (d *Device) Current() (DeviceVolumeState, bool) {
	if d == nil {
		return DeviceVolumeState{}, false
	}

	return d.current, d.known
}

// RememberLevel records level as the last audible level acknowledged by the device.
// Zero levels are ignored so that an unmute never restores silence.
func (d *Device) RememberLevel(level int) {
	if d == nil || level <= 0 {
		return
	}

	d.audible = level
}

// AudibleLevel returns the level an unmute should restore.
// Without a remembered level it falls back to a third of Max, but never below 1.
func (d *Device) AudibleLevel() int {
	if d == nil {
		return 1
	}

	if d.audible > 0 {
		return d.audible
	}

	return max(1, d.Max/3)
}

// DeviceClient issues volume commands to a device.
// Every call is synchronous and bounded by an internal timeout; a timed out
// call reports ErrDeviceDisconnected.
type DeviceClient interface {
	// Connect finds exactly one attached device and completes a handshake with it.
	Connect(ctx context.Context) (*Device, error)
	// QueryMaxVolume returns the native maximum volume step of the device.
	QueryMaxVolume(ctx context.Context, dev *Device) (int, error)
	// SetVolume sets the device volume to level.
	SetVolume(ctx context.Context, dev *Device, level int) error
	// SetMute mutes the device, or restores its last audible level.
	// The resulting volume is recorded with dev.Observe, or dev.Forget when it cannot be known.
	SetMute(ctx context.Context, dev *Device, muted bool) error
	// IsAlive is a cheap liveness probe.
	IsAlive(ctx context.Context, dev *Device) bool
	// Release drops the handle.
	Release(dev *Device)
}

// HostMonitor exposes a controllable session in the host mixer and reports its state.
type HostMonitor interface {
	// Register makes the session visible in the host mixer and starts observing it.
	Register(ctx context.Context) error
	// Volume returns the current state of the session.
	// It returns ErrSessionInvalidated once the host has dropped the session.
	Volume() (HostVolumeState, error)
	// Subscribe registers fn for change notifications and returns a function that removes it.
	// fn is called from the monitor's own goroutine and must return promptly.
	Subscribe(fn func(HostVolumeState)) (cancel func())
	// Close stops observing and unregisters the session.
	Close() error
}

// HostSeeder is implemented by host monitors whose freshly created session can
// start from the device volume instead of its own default.
type HostSeeder interface {
	// Seed writes st to the session if the session was created by the bridge
	// and nobody has changed it yet. It reports whether st was written.
	Seed(st HostVolumeState) (bool, error)
}
