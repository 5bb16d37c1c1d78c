// Package candidate implements the ICE candidate and candidate-pair data
// model of spec.md §3/§4.2: types, RFC 5245 priority arithmetic, and
// foundation hashing.
package candidate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
)

// Type identifies how a candidate was obtained.
type Type int

const (
	// TypeHost is a candidate bound directly to a local interface.
	TypeHost Type = iota
	// TypePeerReflexive is discovered from an inbound connectivity check.
	TypePeerReflexive
	// TypeServerReflexive is discovered via a STUN Binding request.
	TypeServerReflexive
	// TypeRelay is allocated on a TURN server.
	TypeRelay
)

// String renders the SDP candidate type token.
func (t Type) String() string {
	switch t {
	case TypeHost:
		return "host"
	case TypePeerReflexive:
		return "prflx"
	case TypeServerReflexive:
		return "srflx"
	case TypeRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// typePreference implements RFC 5245's type preference ordering:
// host > prflx > srflx > relay.
func (t Type) typePreference() uint32 {
	switch t {
	case TypeHost:
		return 126
	case TypePeerReflexive:
		return 110
	case TypeServerReflexive:
		return 100
	case TypeRelay:
		return 0
	default:
		return 0
	}
}

// Protocol is always UDP for this profile, but is kept explicit for SDP
// round-tripping and future TCP candidate support.
type Protocol int

const (
	ProtoUDP Protocol = iota
)

func (p Protocol) String() string {
	return "udp"
}

// Candidate is a single local or remote ICE candidate, spec.md §3.
type Candidate struct {
	Foundation string
	Component  int // 1 for the (only) RTP-equivalent data component
	Protocol   Protocol
	Priority   uint32
	Address    string
	Port       int
	Type       Type

	// RelatedAddress/RelatedPort are set for srflx/relay candidates: the
	// base (host) address the reflexive/relayed candidate was derived from.
	RelatedAddress string
	RelatedPort    int

	// base is the local socket this candidate was gathered from; it is not
	// part of the wire representation.
	base net.Addr
}

// Base returns the local address this candidate sends from.
func (c *Candidate) Base() net.Addr { return c.base }

// SetBase records the local socket the candidate was gathered on.
func (c *Candidate) SetBase(a net.Addr) { c.base = a }

// Addr renders the candidate's address:port as a net.Addr-compatible string.
func (c *Candidate) Addr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// Priority per RFC 5245 §4.1.2.1:
// priority = (2^24)*typePref + (2^8)*localPref + (256 - componentId)
func Priority(t Type, localPref uint16, component int) uint32 {
	return (t.typePreference() << 24) | (uint32(localPref) << 8) | uint32(256-component)
}

// Foundation hashes (type, base address, server) into a stable short string
// so that candidates gathered from the same flow collapse together, per
// spec.md §4.2 ("Foundation is hash(type, base address, stun/turn server)").
func Foundation(t Type, base string, server string) string {
	h := sha256.Sum256([]byte(t.String() + "|" + base + "|" + server))
	return hex.EncodeToString(h[:])[:8]
}

// PairState is the connectivity-check lifecycle of a candidate pair,
// spec.md §3.
type PairState int

const (
	PairFrozen PairState = iota
	PairWaiting
	PairInProgress
	PairSucceeded
	PairFailed
)

func (s PairState) String() string {
	switch s {
	case PairFrozen:
		return "frozen"
	case PairWaiting:
		return "waiting"
	case PairInProgress:
		return "in-progress"
	case PairSucceeded:
		return "succeeded"
	case PairFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pair is a (local, remote) candidate pairing under connectivity check,
// spec.md §3/§4.2.
type Pair struct {
	Local, Remote *Candidate
	State         PairState
	Nominated     bool
}

// PairPriority implements RFC 5245 §5.7.2:
// min(G,D)*2^32 + 2*max(G,D) + (G>D ? 1 : 0)
// where G is the controlling agent's priority and D the controlled agent's.
func PairPriority(controllingPriority, controlledPriority uint32) uint64 {
	g, d := uint64(controllingPriority), uint64(controlledPriority)
	min, max := g, d
	if d < g {
		min, max = d, g
	}
	var tieBit uint64
	if g > d {
		tieBit = 1
	}
	return min<<32 + 2*max + tieBit
}
