// Package sctp implements the reduced SCTP association this module runs
// over DTLS, RFC 4960 restricted to the pieces spec.md §4.4 calls for: a
// single association per DTLS connection, unordered and unreliable data
// chunks only, no fragmentation, SACK suppression, and RE-CONFIG-based
// stream teardown. There is no congestion control and no message
// fragmentation: a DATA chunk larger than the association's fixed MTU is
// rejected rather than split.
package sctp

import "errors"

var (
	ErrClosed                  = errors.New("sctp: association closed")
	ErrNotEstablished          = errors.New("sctp: association not established")
	ErrAlreadyEstablished      = errors.New("sctp: association already established")
	ErrPayloadTooLarge         = errors.New("sctp: payload exceeds association MTU")
	ErrInvalidChunk            = errors.New("sctp: malformed chunk")
	ErrVerificationTagMismatch = errors.New("sctp: verification tag mismatch")
	ErrCookieInvalid           = errors.New("sctp: state cookie signature invalid")
	ErrCookieStale             = errors.New("sctp: state cookie outside validity window")
	ErrUnknownStream           = errors.New("sctp: unknown stream id")
	ErrStreamTableFull         = errors.New("sctp: stream table at capacity")
	ErrHandshakeTimeout        = errors.New("sctp: handshake retransmission exhausted")
)
