package ice

import (
	"net"
	"time"

	"github.com/pion/stun/v3"
	"github.com/rawrtc/rawrtc/pkg/candidate"
)

// gatherHostCandidates enumerates local interfaces and emits one host
// candidate per usable address bound to the agent's socket, spec.md §4.2
// ("For each local interface, construct host candidates for the bound UDP
// port").
func (a *Agent) gatherHostCandidates() {
	ifaces, err := net.Interfaces()
	if err != nil {
		a.logf("interface enumeration failed: %v", err)
		return
	}

	_, localPortStr, _ := net.SplitHostPort(a.conn.LocalAddr().String())

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		isLoopback := iface.Flags&net.FlagLoopback != 0
		if isLoopback && !a.includesAdditional(iface.Name) {
			continue
		}
		if len(a.config.InterfaceAddresses) > 0 && !a.includesInterface(iface.Name) {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP
			if ip.To4() != nil && !a.config.UseIPv4 {
				continue
			}
			if ip.To4() == nil && !a.config.UseIPv6 {
				continue
			}

			c := &candidate.Candidate{
				Foundation: candidate.Foundation(candidate.TypeHost, ip.String(), ""),
				Component:  1,
				Protocol:   candidate.ProtoUDP,
				Priority:   candidate.Priority(candidate.TypeHost, a.localPref(), 1),
				Address:    ip.String(),
				Port:       mustAtoi(localPortStr),
				Type:       candidate.TypeHost,
			}
			c.SetBase(&net.UDPAddr{IP: ip, Port: c.Port})
			a.addLocalCandidate(c)
		}
	}
}

func (a *Agent) includesInterface(name string) bool {
	for _, n := range a.config.InterfaceAddresses {
		if n == name {
			return true
		}
	}
	return false
}

func (a *Agent) includesAdditional(name string) bool {
	for _, n := range a.config.AdditionalHostAddresses {
		if n == name {
			return true
		}
	}
	return false
}

// gatherServerReflexive sends a STUN Binding request to a STUN/TURN server
// and, on success, emits a server-reflexive candidate carrying the
// XOR-MAPPED-ADDRESS the server observed, spec.md §4.2.
func (a *Agent) gatherServerReflexive(server ServerURL) {
	addr, err := net.ResolveUDPAddr("udp", stripScheme(server.URL))
	if err != nil {
		a.logf("resolve %s failed: %v", server.URL, err)
		return
	}

	req, err := stun.Build(stun.BindingRequest, stun.TransactionID)
	if err != nil {
		a.logf("build gathering request failed: %v", err)
		return
	}
	req.Encode()

	respCh := make(chan *stun.Message, 1)
	a.registerTransaction(req.TransactionID, respCh)
	defer a.unregisterTransaction(req.TransactionID)

	schedule := gatheringSchedule()
	deadline := time.Now().Add(a.config.GatherTimeout)
	for time.Now().Before(deadline) {
		if _, err := a.conn.WriteTo(req.Raw, addr); err != nil {
			a.logf("gathering send to %s failed: %v", server.URL, err)
			return
		}
		select {
		case resp := <-respCh:
			var xor stun.XORMappedAddress
			if err := xor.GetFrom(resp); err != nil {
				a.logf("gathering response from %s missing XOR-MAPPED-ADDRESS: %v", server.URL, err)
				return
			}
			c := &candidate.Candidate{
				Foundation:     candidate.Foundation(candidate.TypeServerReflexive, a.conn.LocalAddr().String(), server.URL),
				Component:      1,
				Protocol:       candidate.ProtoUDP,
				Priority:       candidate.Priority(candidate.TypeServerReflexive, a.localPref(), 1),
				Address:        xor.IP.String(),
				Port:           xor.Port,
				Type:           candidate.TypeServerReflexive,
				RelatedAddress: hostOf(a.conn.LocalAddr()),
				RelatedPort:    portOf(a.conn.LocalAddr()),
			}
			a.addLocalCandidate(c)
			return
		case <-time.After(schedule.Delay()):
		case <-a.closeCh:
			return
		}
	}
}

// gatheringSchedule returns a small doubling retry schedule for STUN
// gathering transactions, independent of connectivity-check timing.
type retrySchedule struct{ n int }

func gatheringSchedule() *retrySchedule { return &retrySchedule{} }

func (r *retrySchedule) Delay() time.Duration {
	r.n++
	d := 500 * time.Millisecond * time.Duration(1<<uint(r.n-1))
	if d > 3*time.Second {
		d = 3 * time.Second
	}
	return d
}

func stripScheme(url string) string {
	for i := 0; i < len(url); i++ {
		if url[i] == ':' {
			return url[i+1:]
		}
	}
	return url
}

func hostOf(a net.Addr) string {
	host, _, _ := net.SplitHostPort(a.String())
	return host
}

func portOf(a net.Addr) int {
	_, portStr, _ := net.SplitHostPort(a.String())
	return mustAtoi(portStr)
}

func mustAtoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
