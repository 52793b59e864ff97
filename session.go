package adbvol

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Status is the state of the Controller.
type Status int

const (
	StatusStarting Status = iota
	StatusRegistering
	StatusConnecting
	StatusSyncing
	StatusReconnecting
	StatusStopped
)

var statusNames = map[Status]string{
	StatusStarting:     "Starting",
	StatusRegistering:  "Registering",
	StatusConnecting:   "Connecting",
	StatusSyncing:      "Syncing",
	StatusReconnecting: "Reconnecting",
	StatusStopped:      "Stopped",
}

// String returns the name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return "Unknown"
}

// StatusEvent describes a status transition.
type StatusEvent struct {
	Status    Status
	Previous  Status
	SessionID string
	Serial    string
	DeviceMax int
	// Err is the error that caused the transition, if any.
	Err error
}

// StatusFunc receives status transitions.
type StatusFunc func(StatusEvent)

// Connectivity is the link state of a SyncSession.
type Connectivity int

const (
	Connected Connectivity = iota
	Disconnected
)

// String returns the name of the connectivity state.
func (c Connectivity) String() string {
	switch c {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SyncSession ties the host observer to one connected device.
// A reconnect replaces it; nothing is carried over.
type SyncSession struct {
	ID           string
	Device       *Device
	DeviceMax    int
	Connectivity Connectivity

	// applied is what the device last acknowledged; Level -1 is unknown.
	applied    DeviceVolumeState
	muteKnown  bool
	hbFailures int

	// Failed changes are retried after retryAt.
	retries int
	retry   *backoff.ExponentialBackOff
	retryAt time.Time
}

func newSyncSession(dev *Device, deviceMax int, retry BackoffConfig) *SyncSession {
	return &SyncSession{
		ID:           uuid.NewString(),
		Device:       dev,
		DeviceMax:    deviceMax,
		Connectivity: Connected,
		applied:      DeviceVolumeState{Level: -1},
		retry:        retry.exponential(),
	}
}

// LastLevel returns the last device level acknowledged in this session, or -1.
func (s *SyncSession) LastLevel() int {
	if s == nil {
		return -1
	}

	return s.applied.Level
}

// Reachable reports whether commands may be sent on the session's device.
func (s *SyncSession) Reachable() bool {
	return s != nil && s.Connectivity == Connected && s.hbFailures == 0
}
