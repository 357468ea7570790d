package core

import "errors"

// Frame is a raw encoded payload.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues f without blocking.
	TrySend(Frame) error
	// Ping enqueues a liveness probe; the answer arrives as a transport pong.
	Ping() error
	IsOpen() bool
	Close()
}
