package adbvol

import (
	"context"
	"errors"
)

var (
	// ErrNoDevice means no usable device is attached.
	ErrNoDevice = errors.New("no device found")
	// ErrAmbiguousDevice means more than one device is attached and none was selected.
	ErrAmbiguousDevice = errors.New("multiple devices attached")
	// ErrTransportUnavailable means the device transport itself cannot be used.
	ErrTransportUnavailable = errors.New("device transport unavailable")
	// ErrQueryFailed means the device did not report a usable maximum volume.
	ErrQueryFailed = errors.New("volume query failed")
	// ErrCommandFailed means no command form could apply the change.
	ErrCommandFailed = errors.New("device command failed")
	// ErrIncompatibleCommand means the device rejected a command form as unsupported.
	ErrIncompatibleCommand = errors.New("command not supported by device")
	// ErrDeviceDisconnected means the device went away or stopped answering.
	ErrDeviceDisconnected = errors.New("device disconnected")
	// ErrRegistrationFailed means the host mixer session could not be registered.
	ErrRegistrationFailed = errors.New("host session registration failed")
	// ErrSessionInvalidated means the host dropped a registered mixer session.
	ErrSessionInvalidated = errors.New("host session invalidated")
	// ErrRangeMap means the device reported no usable volume steps.
	ErrRangeMap = errors.New("invalid volume range")
)

// ErrorClass is the recovery class of an error.
type ErrorClass int

const (
	// ClassNone is the class of a nil error.
	ClassNone ErrorClass = iota
	// ClassTransient errors are retried with backoff.
	ClassTransient
	// ClassDisconnected errors trigger a reconnect.
	ClassDisconnected
	// ClassAmbiguous errors wait for the operator and are retried at a fixed delay.
	ClassAmbiguous
	// ClassHostRegistration errors are retried a bounded number of times.
	ClassHostRegistration
	// ClassRangeMap errors end the device session and force a fresh query.
	ClassRangeMap
	// ClassFatal errors stop the controller.
	ClassFatal
)

var classNames = map[ErrorClass]string{
	ClassNone:             "none",
	ClassTransient:        "transient",
	ClassDisconnected:     "disconnected",
	ClassAmbiguous:        "ambiguous",
	ClassHostRegistration: "host-registration",
	ClassRangeMap:         "range-map",
	ClassFatal:            "fatal",
}

// String returns the name of the class.
func (c ErrorClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}

	return "unknown"
}

// Classify maps err onto the recovery taxonomy.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, context.Canceled):
		return ClassFatal
	case errors.Is(err, ErrDeviceDisconnected):
		return ClassDisconnected
	case errors.Is(err, ErrAmbiguousDevice):
		return ClassAmbiguous
	case errors.Is(err, ErrRegistrationFailed), errors.Is(err, ErrSessionInvalidated):
		return ClassHostRegistration
	case errors.Is(err, ErrRangeMap):
		return ClassRangeMap
	case errors.Is(err, ErrNoDevice), errors.Is(err, ErrTransportUnavailable), errors.Is(err, ErrQueryFailed),
		errors.Is(err, ErrCommandFailed), errors.Is(err, ErrIncompatibleCommand),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	default:
		return ClassFatal
	}
}
