package core

import "errors"

var (
	// ErrBackpressure is returned by TrySend when the send queue is full.
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is a raw signaling payload.
type Frame []byte

// SignalConnection abstracts a messaging transport to one broker client.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
