package core

import "errors"

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// Frame is one encoded event, exactly one per websocket message.
type Frame []byte

// ConnID is the opaque handle of one live connection.
type ConnID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend must not block; a full queue reports ErrBackpressure.
	TrySend(Frame) error
	Healthy() bool
	Close()
}
