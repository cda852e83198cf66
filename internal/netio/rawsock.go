package netio

import (
	"context"
	"errors"
)

// RawSocket is a raw Ethernet (AF_PACKET) socket bound to a single
// interface: it reads and writes complete L2 frames, including the
// Ethernet header. It satisfies xlate.RawPort and xlate.Writer.
type RawSocket interface {
	// ReadFrame reads one Ethernet frame into buf.
	ReadFrame(buf []byte) (int, error)

	// WriteFrame writes a complete Ethernet frame.
	WriteFrame(ctx context.Context, frame []byte) error

	// Close releases the underlying socket.
	Close() error
}

// Sentinel errors returned by platform-specific RawSocket implementations.
var (
	// ErrSocketClosed is returned by operations on a closed RawSocket.
	ErrSocketClosed = errors.New("raw socket closed")

	// ErrInterfaceNotFound is returned when the named interface does not exist.
	ErrInterfaceNotFound = errors.New("interface not found")
)
