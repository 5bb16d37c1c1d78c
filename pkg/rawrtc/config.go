package rawrtc

import (
	"github.com/pion/logging"
	"github.com/rawrtc/rawrtc/pkg/dtls"
	"github.com/rawrtc/rawrtc/pkg/ice"
)

// ICEServer is one entry of the spec.md §6 "iceServers" list.
type ICEServer struct {
	URLs     []string
	Username string
	Password string
}

// ICETransportPolicy restricts candidate gathering, spec.md §6
// ("iceTransportPolicy: all|relay").
type ICETransportPolicy int

const (
	ICETransportPolicyAll ICETransportPolicy = iota
	ICETransportPolicyRelay
)

// PortRange restricts local UDP binding, spec.md §6 ("icePortRange").
type PortRange struct {
	Min, Max int
}

// StunFilter is invoked per inbound STUN packet, spec.md §6
// ("iceFilterStunResponse").
type StunFilter func(data []byte, from string) bool

// DTLSKeys preprovisions a certificate instead of generating one on
// demand, spec.md §6 ("dtls.keys").
type DTLSKeys struct {
	Certificate *dtls.Certificate
}

// DTLSCertificateKeyType selects the key algorithm for an on-demand
// generated certificate, spec.md §4.3 ("key pairs may be RSA or
// ECDSA-P256, configurable"). Ignored when DTLSKeys provisions a
// certificate directly.
type DTLSCertificateKeyType = dtls.KeyType

// Configuration is the exhaustive option set of spec.md §6.
type Configuration struct {
	ICEServers              []ICEServer
	ICETransportPolicy      ICETransportPolicy
	ICEPortRange            *PortRange
	ICEInterfaceAddresses   []string
	ICEAdditionalHostAddrs  []string
	ICEUseIPv4, ICEUseIPv6  bool
	ICEFilterStunResponse   StunFilter
	DTLSKeys                *DTLSKeys
	DTLSCertificateKeyType  DTLSCertificateKeyType
	BundlePolicy            BundlePolicy

	LoggerFactory logging.LoggerFactory
}

func (c *Configuration) applyDefaults() {
	if !c.ICEUseIPv4 && !c.ICEUseIPv6 {
		c.ICEUseIPv4 = true
		c.ICEUseIPv6 = true
	}
}

func (c *Configuration) iceAgentConfig(role ice.Role) ice.AgentConfig {
	urls := make([]ice.ServerURL, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		for _, u := range s.URLs {
			urls = append(urls, ice.ServerURL{URL: u, Username: s.Username, Password: s.Password})
		}
	}

	var portRange *ice.PortRange
	if c.ICEPortRange != nil {
		portRange = &ice.PortRange{Min: c.ICEPortRange.Min, Max: c.ICEPortRange.Max}
	}

	var filter ice.StunFilter
	if c.ICEFilterStunResponse != nil {
		filter = ice.StunFilter(c.ICEFilterStunResponse)
	}

	policy := ice.TransportPolicyAll
	if c.ICETransportPolicy == ICETransportPolicyRelay {
		policy = ice.TransportPolicyRelay
	}

	return ice.AgentConfig{
		Urls:                    urls,
		TransportPolicy:         policy,
		PortRange:               portRange,
		InterfaceAddresses:      c.ICEInterfaceAddresses,
		AdditionalHostAddresses: c.ICEAdditionalHostAddrs,
		UseIPv4:                 c.ICEUseIPv4,
		UseIPv6:                 c.ICEUseIPv6,
		FilterStunResponse:      filter,
		Role:                    role,
		LoggerFactory:           c.LoggerFactory,
	}
}
