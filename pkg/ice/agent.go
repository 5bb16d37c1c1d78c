package ice

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/randutil"
	"github.com/pion/stun/v3"
	"github.com/pion/turn/v4"
	"github.com/rawrtc/rawrtc/pkg/candidate"
	"github.com/rawrtc/rawrtc/pkg/transport"
)

const candidateCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Agent gathers candidates, performs connectivity checks, and nominates a
// single working candidate pair per spec.md §4.2. It owns the UDP socket
// exclusively and demultiplexes STUN traffic from everything above it.
type Agent struct {
	config AgentConfig
	log    logging.LeveledLogger

	conn *transport.Conn

	localUfrag, localPwd   string
	remoteUfrag, remotePwd string

	role       Role
	tieBreaker uint64

	mu               sync.Mutex
	gatheringState   GatheringState
	connectionState  ConnectionState
	localCandidates  []*candidate.Candidate
	remoteCandidates []*candidate.Candidate
	pairs            []*candidate.Pair
	selectedPair     *candidate.Pair
	nominating       bool

	transactions map[[stun.TransactionIDSize]byte]chan *stun.Message

	turnClients []*turn.Client
	turnConns   []net.PacketConn

	onCandidate             func(*candidate.Candidate)
	onGatheringStateChange  func(GatheringState)
	onConnectionStateChange func(ConnectionState)
	onSelectedPair          func(*candidate.Pair)
	dataHandler             func(data []byte, from net.Addr)

	closeCh   chan struct{}
	closeOnce sync.Once
	started   bool
	checkTick *time.Ticker
}

// NewAgent creates an Agent bound to a fresh UDP socket. The socket is not
// started until GatherCandidates is called.
func NewAgent(config AgentConfig) (*Agent, error) {
	config.applyDefaults()

	a := &Agent{
		config:          config,
		role:            config.Role,
		gatheringState:  GatheringStateNew,
		connectionState: ConnectionStateNew,
		transactions:    make(map[[stun.TransactionIDSize]byte]chan *stun.Message),
		closeCh:         make(chan struct{}),
	}

	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("ice")
	}

	a.localUfrag = config.LocalUfrag
	if a.localUfrag == "" {
		a.localUfrag, _ = randutil.GenerateCryptoRandomString(4, candidateCharset)
	}
	a.localPwd = config.LocalPwd
	if a.localPwd == "" {
		a.localPwd, _ = randutil.GenerateCryptoRandomString(22, candidateCharset)
	}

	var tb [8]byte
	if _, err := rand.Read(tb[:]); err != nil {
		return nil, err
	}
	a.tieBreaker = binary.BigEndian.Uint64(tb[:])

	listenAddr := ""
	if config.PortRange != nil {
		listenAddr = fmt.Sprintf(":%d", config.PortRange.Min)
	}

	conn, err := transport.New(transport.Config{
		ListenAddr:    listenAddr,
		Handler:       a.handleDatagram,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	a.conn = conn

	return a, nil
}

// LocalCredentials returns the local ufrag/pwd advertised in SDP.
func (a *Agent) LocalCredentials() (ufrag, pwd string) {
	return a.localUfrag, a.localPwd
}

// SetRemoteCredentials records the peer's ufrag/pwd from the remote SDP.
func (a *Agent) SetRemoteCredentials(ufrag, pwd string) {
	a.mu.Lock()
	a.remoteUfrag, a.remotePwd = ufrag, pwd
	a.mu.Unlock()
}

// Role returns the agent's current controlling/controlled role.
func (a *Agent) Role() Role {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.role
}

// SetRole switches roles, used for the role-conflict resolution path.
func (a *Agent) SetRole(r Role) {
	a.mu.Lock()
	a.role = r
	a.mu.Unlock()
}

// OnCandidate registers the callback fired for each newly gathered local
// candidate (trickle-ICE emission), spec.md §6.
func (a *Agent) OnCandidate(f func(*candidate.Candidate)) { a.onCandidate = f }

// OnGatheringStateChange registers the icegatheringstatechange callback.
func (a *Agent) OnGatheringStateChange(f func(GatheringState)) { a.onGatheringStateChange = f }

// OnConnectionStateChange registers the iceconnectionstatechange callback.
func (a *Agent) OnConnectionStateChange(f func(ConnectionState)) { a.onConnectionStateChange = f }

// OnSelectedPairChange registers a callback fired when nomination selects
// (or changes) the active pair.
func (a *Agent) OnSelectedPairChange(f func(*candidate.Pair)) { a.onSelectedPair = f }

// SetDataHandler registers the callback that receives every non-STUN
// datagram once the socket is multiplexing, spec.md §4.2/§2 ("anything
// else is forwarded up").
func (a *Agent) SetDataHandler(f func(data []byte, from net.Addr)) { a.dataHandler = f }

// GatherCandidates starts the socket and begins host/srflx/relay gathering.
// Gathering runs asynchronously; candidates and the terminal
// GatheringStateComplete arrive via the registered callbacks.
func (a *Agent) GatherCandidates() error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	if err := a.conn.Start(); err != nil {
		return err
	}

	a.setGatheringState(GatheringStateGathering)

	go func() {
		if a.config.TransportPolicy != TransportPolicyRelay {
			a.gatherHostCandidates()
		}

		var wg sync.WaitGroup
		for _, u := range a.config.Urls {
			u := u
			wg.Add(1)
			go func() {
				defer wg.Done()
				if isTurnURL(u.URL) {
					a.gatherRelay(u)
				} else if a.config.TransportPolicy != TransportPolicyRelay {
					a.gatherServerReflexive(u)
				}
			}()
		}
		wg.Wait()

		a.setGatheringState(GatheringStateComplete)
	}()

	return nil
}

func isTurnURL(u string) bool {
	return len(u) >= 5 && u[:5] == "turn:"
}

// GatheringState returns the candidate-gathering lifecycle state.
func (a *Agent) GatheringState() GatheringState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gatheringState
}

func (a *Agent) setGatheringState(s GatheringState) {
	a.mu.Lock()
	a.gatheringState = s
	a.mu.Unlock()
	if a.onGatheringStateChange != nil {
		a.onGatheringStateChange(s)
	}
}

func (a *Agent) setConnectionState(s ConnectionState) {
	a.mu.Lock()
	if a.connectionState == s {
		a.mu.Unlock()
		return
	}
	a.connectionState = s
	a.mu.Unlock()
	if a.onConnectionStateChange != nil {
		a.onConnectionStateChange(s)
	}
}

// ConnectionState returns the current aggregated connection state.
func (a *Agent) ConnectionState() ConnectionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectionState
}

// LocalCandidates returns a snapshot of every candidate gathered so far,
// for embedding into a session description or a trickle notification.
func (a *Agent) LocalCandidates() []*candidate.Candidate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*candidate.Candidate(nil), a.localCandidates...)
}

func (a *Agent) addLocalCandidate(c *candidate.Candidate) {
	a.mu.Lock()
	a.localCandidates = append(a.localCandidates, c)
	remotes := append([]*candidate.Candidate(nil), a.remoteCandidates...)
	a.mu.Unlock()

	for _, r := range remotes {
		a.addPair(c, r)
	}
	if a.onCandidate != nil {
		a.onCandidate(c)
	}
}

// AddRemoteCandidate adds a candidate learned via trickle ICE or the
// remote SDP.
func (a *Agent) AddRemoteCandidate(c *candidate.Candidate) error {
	a.mu.Lock()
	a.remoteCandidates = append(a.remoteCandidates, c)
	locals := append([]*candidate.Candidate(nil), a.localCandidates...)
	a.mu.Unlock()

	for _, l := range locals {
		a.addPair(l, c)
	}
	return nil
}

func (a *Agent) addPair(local, remote *candidate.Candidate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.pairs {
		if p.Local == local && p.Remote == remote {
			return
		}
	}
	a.pairs = append(a.pairs, &candidate.Pair{Local: local, Remote: remote, State: candidate.PairWaiting})
}

// StartConnectivityChecks begins the checklist scheduler once local
// gathering and remote credentials/candidates are available, spec.md §4.2.
func (a *Agent) StartConnectivityChecks() error {
	a.mu.Lock()
	if a.remoteUfrag == "" {
		a.mu.Unlock()
		return ErrNoRemoteCredentials
	}
	a.mu.Unlock()

	a.setConnectionState(ConnectionStateChecking)
	a.checkTick = time.NewTicker(a.config.CheckInterval)

	go func() {
		for {
			select {
			case <-a.closeCh:
				return
			case <-a.checkTick.C:
				a.runChecklistTick()
			}
		}
	}()
	return nil
}

// orderedPairs returns the checklist ordered by descending pair priority,
// spec.md §4.2.
func (a *Agent) orderedPairs() []*candidate.Pair {
	a.mu.Lock()
	defer a.mu.Unlock()

	pairs := append([]*candidate.Pair(nil), a.pairs...)
	role := a.role
	sort.SliceStable(pairs, func(i, j int) bool {
		return a.pairPriority(pairs[i], role) > a.pairPriority(pairs[j], role)
	})
	return pairs
}

func (a *Agent) pairPriority(p *candidate.Pair, role Role) uint64 {
	if role == RoleControlling {
		return candidate.PairPriority(p.Local.Priority, p.Remote.Priority)
	}
	return candidate.PairPriority(p.Remote.Priority, p.Local.Priority)
}

func (a *Agent) runChecklistTick() {
	if a.hasSelectedPair() {
		if a.Role() == RoleControlling && !a.hasNominated() {
			a.nominateBest()
		}
		return
	}

	for _, p := range a.orderedPairs() {
		if p.State == candidate.PairWaiting {
			a.sendCheck(p, false)
			return // pace one check per tick, per spec.md §4.2
		}
	}
}

func (a *Agent) hasSelectedPair() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectedPair != nil
}

func (a *Agent) hasNominated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectedPair != nil && a.selectedPair.Nominated
}

func (a *Agent) nominateBest() {
	var best *candidate.Pair
	for _, p := range a.orderedPairs() {
		if p.State == candidate.PairSucceeded {
			best = p
			break
		}
	}
	if best == nil {
		return
	}
	a.sendCheck(best, true)
}

func (a *Agent) sendCheck(p *candidate.Pair, useCandidate bool) {
	a.mu.Lock()
	p.State = candidate.PairInProgress
	role := a.role
	tb := a.tieBreaker
	remotePwd := a.remotePwd
	localUfrag := a.localUfrag
	a.mu.Unlock()

	req, err := buildBindingRequest(localUfrag, "", remotePwd, p.Local.Priority, role, tb, useCandidate)
	if err != nil {
		a.logf("build check for %s failed: %v", p.Remote.Addr(), err)
		return
	}

	remoteAddr := &net.UDPAddr{IP: net.ParseIP(p.Remote.Address), Port: p.Remote.Port}
	respCh := make(chan *stun.Message, 1)
	a.registerTransaction(req.TransactionID, respCh)

	go func() {
		defer a.unregisterTransaction(req.TransactionID)
		for try := 0; try < a.config.MaxCheckRetries; try++ {
			if _, err := a.conn.WriteTo(req.Raw, remoteAddr); err != nil {
				a.logf("check send failed: %v", err)
				a.markPairFailed(p)
				return
			}

			select {
			case <-respCh:
				a.mu.Lock()
				p.State = candidate.PairSucceeded
				a.mu.Unlock()
				if useCandidate || role == RoleControlled {
					a.selectPair(p, useCandidate)
				}
				return
			case <-time.After(500 * time.Millisecond):
			case <-a.closeCh:
				return
			}
		}
		a.markPairFailed(p)
	}()
}

func (a *Agent) markPairFailed(p *candidate.Pair) {
	a.mu.Lock()
	p.State = candidate.PairFailed
	allFailed := true
	for _, other := range a.pairs {
		if other.State != candidate.PairFailed {
			allFailed = false
			break
		}
	}
	a.mu.Unlock()
	if allFailed {
		a.setConnectionState(ConnectionStateFailed)
	}
}

func (a *Agent) selectPair(p *candidate.Pair, nominated bool) {
	a.mu.Lock()
	p.Nominated = nominated || p.Nominated
	a.selectedPair = p
	a.mu.Unlock()

	if a.onSelectedPair != nil {
		a.onSelectedPair(p)
	}
	if p.Nominated {
		a.setConnectionState(ConnectionStateCompleted)
	} else {
		a.setConnectionState(ConnectionStateConnected)
	}
}

// Send writes data to the currently selected (nominated) pair's remote
// address. Multiple calls from the same goroutine reach the socket in call
// order, satisfying spec.md §8 invariant 4.
func (a *Agent) Send(data []byte) (int, error) {
	a.mu.Lock()
	p := a.selectedPair
	a.mu.Unlock()
	if p == nil {
		return 0, ErrNoSelectedPair
	}
	return a.conn.WriteTo(data, &net.UDPAddr{IP: net.ParseIP(p.Remote.Address), Port: p.Remote.Port})
}

// SelectedPairIdleSince reports how long it has been since a datagram
// arrived from the nominated pair's remote address, using the transport
// socket's own per-address activity tracking rather than duplicating it
// here. Returns false if no pair is selected or nothing has been received
// from it yet.
func (a *Agent) SelectedPairIdleSince() (time.Duration, bool) {
	a.mu.Lock()
	p := a.selectedPair
	a.mu.Unlock()
	if p == nil {
		return 0, false
	}
	addr := &net.UDPAddr{IP: net.ParseIP(p.Remote.Address), Port: p.Remote.Port}
	last, ok := a.conn.LastActivity(addr)
	if !ok {
		return 0, false
	}
	return time.Since(last), true
}

// handleDatagram is the socket read handler installed on the transport.Conn;
// it implements the demultiplexing rule of spec.md §4.2/§2.3: STUN packets
// (per isStunPacket: at least 20 bytes, first byte's top two bits zero, and
// the STUN magic cookie in bytes 4-7) are handled here, values 20-63 are
// forwarded to the DTLS layer, anything else is dropped.
func (a *Agent) handleDatagram(data []byte, from net.Addr) {
	if a.config.FilterStunResponse != nil && isStunPacket(data) {
		if !a.config.FilterStunResponse(data, from.String()) {
			return
		}
	}

	if isStunPacket(data) {
		a.handleSTUN(data, from)
		return
	}

	if len(data) > 0 && data[0] >= 20 && data[0] <= 63 {
		if a.dataHandler != nil {
			a.dataHandler(data, from)
		}
		return
	}
	// anything else is dropped, per spec.md §4.2.
}

func (a *Agent) handleSTUN(data []byte, from net.Addr) {
	m := &stun.Message{Raw: append([]byte(nil), data...)}
	if err := m.Decode(); err != nil {
		return
	}

	switch {
	case m.Type == stun.BindingSuccess || m.Type.Class == stun.ClassErrorResponse:
		a.deliverTransaction(m)
	case m.Type == stun.BindingRequest:
		a.handleBindingRequest(m, from)
	}
}

func (a *Agent) handleBindingRequest(req *stun.Message, from net.Addr) {
	a.mu.Lock()
	localPwd := a.localPwd
	role := a.role
	tb := a.tieBreaker
	a.mu.Unlock()

	if peerTB, ok := decodeUint64Attr(req, attrICEControlled); ok && role == RoleControlled {
		// Simplified role-conflict handling: when both sides are controlled,
		// the side whose own tie-breaker is higher switches to controlling.
		// A controlling-vs-controlling conflict is not resolved here.
		if peerTB < tb {
			a.SetRole(RoleControlling)
		}
	}

	resp, err := buildBindingSuccess(req, from, localPwd)
	if err != nil {
		a.logf("build binding response failed: %v", err)
		return
	}
	if _, err := a.conn.WriteTo(resp.Raw, from); err != nil {
		a.logf("send binding response failed: %v", err)
		return
	}

	if _, err := req.Get(attrUseCandidate); err == nil {
		if p := a.findPairByRemote(from); p != nil {
			a.mu.Lock()
			p.State = candidate.PairSucceeded
			a.mu.Unlock()
			a.selectPair(p, true)
		}
	}
}

func (a *Agent) findPairByRemote(addr net.Addr) *candidate.Pair {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.pairs {
		if p.Remote.Addr() == addr.String() {
			return p
		}
	}
	return nil
}

func (a *Agent) registerTransaction(id [stun.TransactionIDSize]byte, ch chan *stun.Message) {
	a.mu.Lock()
	a.transactions[id] = ch
	a.mu.Unlock()
}

func (a *Agent) unregisterTransaction(id [stun.TransactionIDSize]byte) {
	a.mu.Lock()
	delete(a.transactions, id)
	a.mu.Unlock()
}

func (a *Agent) deliverTransaction(m *stun.Message) {
	a.mu.Lock()
	ch, ok := a.transactions[m.TransactionID]
	a.mu.Unlock()
	if ok {
		select {
		case ch <- m:
		default:
		}
	}
}

func (a *Agent) localPref() uint16 { return 65535 }

func (a *Agent) loggerFactory() logging.LoggerFactory { return a.config.LoggerFactory }

func (a *Agent) logf(format string, args ...interface{}) {
	if a.log != nil {
		a.log.Warnf(format, args...)
	}
}

// Close tears down the socket, TURN allocations, and timers. Idempotent.
func (a *Agent) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closeCh)
		if a.checkTick != nil {
			a.checkTick.Stop()
		}
		a.mu.Lock()
		clients := a.turnClients
		conns := a.turnConns
		a.mu.Unlock()
		for _, c := range clients {
			c.Close()
		}
		for _, c := range conns {
			c.Close()
		}
		err = a.conn.Close()
		a.setConnectionState(ConnectionStateClosed)
	})
	return err
}
