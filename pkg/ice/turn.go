package ice

import (
	"net"

	"github.com/pion/turn/v4"
	"github.com/rawrtc/rawrtc/pkg/candidate"
)

// gatherRelay completes a TURN Allocate transaction and emits a relayed
// candidate, spec.md §4.2 ("For each TURN server, complete an Allocate
// transaction and emit a relayed candidate"). This is the pack's TURN
// client (github.com/pion/turn/v4), not a hand-rolled TURN encoder: TURN
// framing above the STUN header is orthogonal to the reduced transport
// stack this repository hand-implements.
func (a *Agent) gatherRelay(server ServerURL) {
	turnAddr, err := net.ResolveUDPAddr("udp", stripScheme(server.URL))
	if err != nil {
		a.logf("resolve TURN server %s failed: %v", server.URL, err)
		return
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		a.logf("allocate local socket for TURN client failed: %v", err)
		return
	}

	client, err := turn.NewClient(&turn.ClientConfig{
		STUNServerAddr: turnAddr.String(),
		TURNServerAddr: turnAddr.String(),
		Conn:           conn,
		Username:       server.Username,
		Password:       server.Password,
		Realm:          "",
		LoggerFactory:  a.loggerFactory(),
	})
	if err != nil {
		a.logf("new TURN client failed: %v", err)
		conn.Close()
		return
	}

	if err := client.Listen(); err != nil {
		a.logf("TURN client listen failed: %v", err)
		client.Close()
		conn.Close()
		return
	}

	relayConn, err := client.Allocate()
	if err != nil {
		a.logf("TURN allocate failed: %v", err)
		client.Close()
		conn.Close()
		return
	}

	relayAddr, ok := relayConn.LocalAddr().(*net.UDPAddr)
	if !ok {
		a.logf("TURN allocation returned non-UDP relay address")
		return
	}

	c := &candidate.Candidate{
		Foundation:     candidate.Foundation(candidate.TypeRelay, conn.LocalAddr().String(), server.URL),
		Component:      1,
		Protocol:       candidate.ProtoUDP,
		Priority:       candidate.Priority(candidate.TypeRelay, a.localPref(), 1),
		Address:        relayAddr.IP.String(),
		Port:           relayAddr.Port,
		Type:           candidate.TypeRelay,
		RelatedAddress: hostOf(conn.LocalAddr()),
		RelatedPort:    portOf(conn.LocalAddr()),
	}
	a.addLocalCandidate(c)

	a.mu.Lock()
	a.turnClients = append(a.turnClients, client)
	a.turnConns = append(a.turnConns, relayConn)
	a.mu.Unlock()
}
