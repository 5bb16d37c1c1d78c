// Package rawrtc orchestrates the ICE, DTLS, and SCTP layers into the
// peer connection and data channel surface applications actually use,
// spec.md §4.1. It owns none of the wire protocols itself; it wires
// pkg/ice, pkg/dtls, pkg/sctp, and pkg/sdp together and drives the
// signaling and connection state machines spec.md §4.1/§7 describe.
package rawrtc

import "errors"

// ErrorKind classifies a failure the way spec.md §7 enumerates, so
// callers can branch on failure category without string matching.
type ErrorKind int

const (
	ErrKindInvalidSDP ErrorKind = iota
	ErrKindInvalidState
	ErrKindICEFailed
	ErrKindDTLSHandshakeFailed
	ErrKindDTLSFingerprintMismatch
	ErrKindSCTPCookieInvalid
	ErrKindSCTPCookieStale
	ErrKindSCTPClosed
	ErrKindPayloadTooLarge
	ErrKindNetworkError
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindInvalidSDP:
		return "invalid-sdp"
	case ErrKindInvalidState:
		return "invalid-state"
	case ErrKindICEFailed:
		return "ice-failed"
	case ErrKindDTLSHandshakeFailed:
		return "dtls-handshake-failed"
	case ErrKindDTLSFingerprintMismatch:
		return "dtls-fingerprint-mismatch"
	case ErrKindSCTPCookieInvalid:
		return "sctp-cookie-invalid"
	case ErrKindSCTPCookieStale:
		return "sctp-cookie-stale"
	case ErrKindSCTPClosed:
		return "sctp-closed"
	case ErrKindPayloadTooLarge:
		return "payload-too-large"
	case ErrKindNetworkError:
		return "network-error"
	default:
		return "unknown"
	}
}

// Error wraps an ErrorKind with the underlying cause, if any.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

var (
	// ErrClosed is not returned by PeerConnection's methods: CreateOffer,
	// SetLocalDescription and SetRemoteDescription on a closed connection
	// report an *Error of kind ErrKindInvalidState instead.
	ErrClosed = errors.New("rawrtc: peer connection closed")
	// ErrNoDataChannel is returned when a stream ID has no known channel.
	ErrNoDataChannel = errors.New("rawrtc: unknown data channel")
)
