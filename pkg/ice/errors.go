// Package ice implements candidate gathering, connectivity checks, and pair
// nomination for a single ICE component, per spec.md §4.2. It multiplexes
// the underlying UDP socket, dispatching STUN packets internally and
// forwarding everything else (DTLS) to the layer above.
package ice

import "errors"

var (
	// ErrClosed is returned when an operation is attempted on a closed agent.
	ErrClosed = errors.New("ice: closed")

	// ErrAlreadyStarted is returned when GatherCandidates is called more
	// than once.
	ErrAlreadyStarted = errors.New("ice: already started")

	// ErrNoRemoteCredentials is returned when connectivity checks are
	// requested before remote ufrag/pwd are known.
	ErrNoRemoteCredentials = errors.New("ice: remote credentials not set")

	// ErrNoSelectedPair is returned when Send is called before a pair has
	// been nominated.
	ErrNoSelectedPair = errors.New("ice: no selected pair")

	// ErrGatheringFailed is returned when every configured server exhausts
	// its retransmission budget without producing a candidate.
	ErrGatheringFailed = errors.New("ice: gathering failed")
)
