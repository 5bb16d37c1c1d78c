package ice

import (
	"time"

	"github.com/pion/logging"
)

// TransportPolicy restricts which candidate types gathering produces,
// spec.md §6 ("iceTransportPolicy: all|relay").
type TransportPolicy int

const (
	TransportPolicyAll TransportPolicy = iota
	TransportPolicyRelay
)

// ServerURL identifies a STUN or TURN server, spec.md §6 ("iceServers").
type ServerURL struct {
	URL      string // e.g. "stun:stun.example.com:3478" or "turn:turn.example.com:3478"
	Username string
	Password string
}

// PortRange restricts local UDP binding, spec.md §6 ("icePortRange").
type PortRange struct {
	Min, Max int
}

// StunFilter is invoked per inbound STUN packet; returning false drops it,
// spec.md §6 ("iceFilterStunResponse").
type StunFilter func(data []byte, from string) bool

// AgentConfig configures a new Agent.
type AgentConfig struct {
	Urls []ServerURL

	TransportPolicy TransportPolicy
	PortRange       *PortRange

	InterfaceAddresses         []string // spec.md iceInterfaceAddresses
	AdditionalHostAddresses    []string // spec.md iceAdditionalHostAddresses
	UseIPv4, UseIPv6           bool

	FilterStunResponse StunFilter

	// LocalUfrag/LocalPwd are generated if empty.
	LocalUfrag, LocalPwd string

	// Role is the ICE role selected by the peer connection orchestrator
	// per spec.md §4.1's role-selection rule.
	Role Role

	LoggerFactory logging.LoggerFactory

	// GatherTimeout bounds how long a single STUN/TURN transaction is
	// retried before that server is considered exhausted, spec.md §4.2
	// ("Reaches complete once every server has either produced a
	// candidate or exhausted retransmissions").
	GatherTimeout time.Duration

	// CheckInterval paces connectivity checks across the ordered pair list.
	CheckInterval time.Duration

	// MaxCheckRetries bounds per-pair connectivity check retransmission.
	MaxCheckRetries int
}

func (c *AgentConfig) applyDefaults() {
	if c.GatherTimeout == 0 {
		c.GatherTimeout = 5 * time.Second
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = 200 * time.Millisecond
	}
	if c.MaxCheckRetries == 0 {
		c.MaxCheckRetries = 7
	}
	if !c.UseIPv4 && !c.UseIPv6 {
		c.UseIPv4 = true
		c.UseIPv6 = true
	}
}
