// Package transport provides the single bound UDP socket a peer connection
// gathers ICE candidates on and multiplexes STUN/DTLS traffic over.
package transport

import "errors"

// Socket errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed socket.
	ErrClosed = errors.New("transport: closed")

	// ErrNotStarted is returned when an operation requires a started socket.
	ErrNotStarted = errors.New("transport: not started")

	// ErrAlreadyStarted is returned when Start is called on a running socket.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrInvalidAddress is returned when an invalid destination is supplied.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrNoHandler is returned when no read handler is configured.
	ErrNoHandler = errors.New("transport: no read handler configured")

	// ErrDatagramTooLarge is returned when a write exceeds MaxDatagramSize.
	ErrDatagramTooLarge = errors.New("transport: datagram exceeds maximum size")
)
