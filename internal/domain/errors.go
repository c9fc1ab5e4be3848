package domain

import "errors"

// Device acquisition failures. Recovered locally, never fatal.
var (
	ErrDeviceAcquisition = errors.New("device acquisition failed")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNoDevice          = errors.New("no capture device")
	ErrAcquireInProgress = errors.New("acquisition already in progress")
)

// Signaling failures. They abandon one peer attempt and nothing else.
var (
	ErrSignaling       = errors.New("signaling error")
	ErrIDTaken         = errors.New("peer id already in use")
	ErrPeerUnavailable = errors.New("peer unavailable")
	ErrRateLimited     = errors.New("rate limited")
)

// ErrSessionClosed is returned by operations posted after the session stopped.
var ErrSessionClosed = errors.New("session closed")

// ErrorForKind maps a broker error kind to a wrapped sentinel.
func ErrorForKind(kind string) error {
	switch kind {
	case SignalErrUnavailableID:
		return errors.Join(ErrSignaling, ErrIDTaken)
	case SignalErrPeerUnavailable:
		return errors.Join(ErrSignaling, ErrPeerUnavailable)
	case SignalErrRateLimited:
		return errors.Join(ErrSignaling, ErrRateLimited)
	default:
		return errors.Join(ErrSignaling, errors.New(kind))
	}
}
