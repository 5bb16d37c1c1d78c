package rawrtc

import (
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/rawrtc/rawrtc/pkg/candidate"
	"github.com/rawrtc/rawrtc/pkg/dtls"
	"github.com/rawrtc/rawrtc/pkg/ice"
	"github.com/rawrtc/rawrtc/pkg/sctp"
	"github.com/rawrtc/rawrtc/pkg/sdp"
)

// localMID is the bundle mid this profile always advertises: there is
// never more than one media section to bundle, spec.md §6.
const localMID = "0"

// localSCTPPort is the sctp-port this profile always advertises. SCTP
// over DTLS has no real port binding; the value only has to be present
// and consistent for a=sctp-port to round-trip.
const localSCTPPort = 5000

// PeerConnection orchestrates one ICE agent, one DTLS connection, and one
// SCTP association into the offer/answer and data-channel surface spec.md
// §4.1 describes. Every exported method that touches shared state takes
// pc.mu; the transport callbacks (ICE, DTLS, SCTP) run on whatever
// goroutine the layer below invokes them from, so they take the lock too.
type PeerConnection struct {
	id     uuid.UUID
	config Configuration
	log    logging.LeveledLogger

	mu             sync.Mutex
	signalingState SignalingState
	connState      ConnectionState

	cert *dtls.Certificate

	iceAgent  *ice.Agent
	dtlsConn  *dtls.Conn
	sctpAssoc *sctp.Association

	isOfferer    bool
	localDesc    *sdp.Description
	remoteDesc   *sdp.Description
	localSDPType SDPType

	rolesReady bool
	dtlsRole   dtls.Role
	sctpRole   sctp.Role

	iceChecksStarted   bool
	dtlsConnCreated    bool
	dtlsHandshakeBegun bool

	channels map[uint16]*DataChannel

	// negotiationNeeded guards against queuing more than one deferred
	// notification while one is already in flight, spec.md §4.1
	// ("negotiation needed").
	negotiationNeeded bool

	onICECandidate             func(candidateLine string)
	onICEGatheringStateChange  func(ice.GatheringState)
	onICEConnectionStateChange func(ice.ConnectionState)
	onSignalingStateChange     func(SignalingState)
	onConnectionStateChange    func(ConnectionState)
	onDataChannel              func(*DataChannel)
	onNegotiationNeeded        func()

	closeOnce sync.Once
}

// New creates a PeerConnection and starts ICE candidate gathering. The
// certificate is generated fresh unless config.DTLSKeys provisions one,
// spec.md §4.3.
func New(config Configuration) (*PeerConnection, error) {
	config.applyDefaults()

	cert := (*dtls.Certificate)(nil)
	if config.DTLSKeys != nil && config.DTLSKeys.Certificate != nil {
		cert = config.DTLSKeys.Certificate
	} else {
		generated, err := dtls.GenerateSelfSignedWithKeyType(config.DTLSCertificateKeyType)
		if err != nil {
			return nil, err
		}
		cert = generated
	}

	pc := &PeerConnection{
		id:             uuid.New(),
		config:         config,
		signalingState: SignalingStateStable,
		connState:      ConnectionStateNew,
		cert:           cert,
		channels:       make(map[uint16]*DataChannel),
	}
	if config.LoggerFactory != nil {
		pc.log = config.LoggerFactory.NewLogger("rawrtc")
		pc.log.Debugf("peer connection %s created", pc.id)
	}

	// The ICE role guessed here only matters until applyRemoteICE
	// resolves it against the remote description; controlling is the
	// offerer's default, spec.md §4.1.
	agent, err := ice.NewAgent(config.iceAgentConfig(ice.RoleControlling))
	if err != nil {
		return nil, err
	}
	pc.iceAgent = agent

	agent.OnCandidate(pc.handleLocalCandidate)
	agent.OnGatheringStateChange(pc.handleGatheringStateChange)
	agent.OnConnectionStateChange(pc.handleICEConnectionStateChange)
	agent.SetDataHandler(pc.handleICEData)

	if err := agent.GatherCandidates(); err != nil {
		return nil, err
	}

	return pc, nil
}

// --- event registration ---

func (pc *PeerConnection) OnICECandidate(f func(candidateLine string)) { pc.onICECandidate = f }
func (pc *PeerConnection) OnICEGatheringStateChange(f func(ice.GatheringState)) {
	pc.onICEGatheringStateChange = f
}
func (pc *PeerConnection) OnICEConnectionStateChange(f func(ice.ConnectionState)) {
	pc.onICEConnectionStateChange = f
}
func (pc *PeerConnection) OnSignalingStateChange(f func(SignalingState))   { pc.onSignalingStateChange = f }
func (pc *PeerConnection) OnConnectionStateChange(f func(ConnectionState)) { pc.onConnectionStateChange = f }
func (pc *PeerConnection) OnDataChannel(f func(*DataChannel))              { pc.onDataChannel = f }
func (pc *PeerConnection) OnNegotiationNeeded(f func())                    { pc.onNegotiationNeeded = f }

// SignalingState returns the current offer/answer negotiation state.
func (pc *PeerConnection) SignalingState() SignalingState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.signalingState
}

// ConnectionState returns the aggregated transport state.
func (pc *PeerConnection) ConnectionState() ConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.connState
}

// ID returns the connection's process-local identifier, useful for
// correlating log lines across a host handling many concurrent peers.
func (pc *PeerConnection) ID() uuid.UUID { return pc.id }

// --- offer/answer ---

// CreateOffer builds a local offer from the ICE agent's current
// credentials and candidates. It advertises a=setup:actpass, deferring
// the DTLS role decision to the answer, spec.md §4.1.
func (pc *PeerConnection) CreateOffer() (SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.signalingState == SignalingStateClosed {
		return SessionDescription{}, newError(ErrKindInvalidState, nil)
	}
	desc, err := pc.buildDescription(sdp.SetupActPass)
	if err != nil {
		return SessionDescription{}, newError(ErrKindInvalidSDP, err)
	}
	text, err := desc.Marshal()
	if err != nil {
		return SessionDescription{}, newError(ErrKindInvalidSDP, err)
	}
	return SessionDescription{Type: SDPTypeOffer, SDP: text}, nil
}

// CreateAnswer builds a local answer to the pending remote offer. Its
// a=setup value is the deterministic fallback of spec.md §4.1: passive if
// the offer asked for active, active otherwise.
func (pc *PeerConnection) CreateAnswer() (SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.signalingState != SignalingStateHaveRemoteOffer {
		return SessionDescription{}, newError(ErrKindInvalidState, nil)
	}

	setup := sdp.SetupActive
	if remoteSetup, err := pc.remoteDesc.Setup(); err == nil && remoteSetup == sdp.SetupActive {
		setup = sdp.SetupPassive
	}

	desc, err := pc.buildDescription(setup)
	if err != nil {
		return SessionDescription{}, newError(ErrKindInvalidSDP, err)
	}
	text, err := desc.Marshal()
	if err != nil {
		return SessionDescription{}, newError(ErrKindInvalidSDP, err)
	}
	return SessionDescription{Type: SDPTypeAnswer, SDP: text}, nil
}

// buildDescription must be called with pc.mu held.
func (pc *PeerConnection) buildDescription(setup sdp.Setup) (*sdp.Description, error) {
	ufrag, pwd := pc.iceAgent.LocalCredentials()
	fingerprints := []sdp.Fingerprint{{Algorithm: "sha-256", Hash: pc.cert.Fingerprint}}

	return sdp.Build(sdp.Params{
		ICEUfrag:        ufrag,
		ICEPwd:          pwd,
		Fingerprints:    fingerprints,
		Setup:           setup,
		MID:             localMID,
		SCTPPort:        localSCTPPort,
		MaxMessageSize:  sctp.PacketMTU,
		Candidates:      pc.iceAgent.LocalCandidates(),
		EndOfCandidates: pc.iceAgent.GatheringState() == ice.GatheringStateComplete,
	})
}

// nextSignalingState implements the transition table of spec.md §4.1.
// Every combination not listed is rejected as invalid-state.
func nextSignalingState(current SignalingState, local bool, t SDPType) (SignalingState, error) {
	switch t {
	case SDPTypeOffer:
		if current != SignalingStateStable {
			return 0, ErrInvalidTransition
		}
		if local {
			return SignalingStateHaveLocalOffer, nil
		}
		return SignalingStateHaveRemoteOffer, nil

	case SDPTypePranswer:
		if local {
			if current != SignalingStateHaveRemoteOffer {
				return 0, ErrInvalidTransition
			}
			return SignalingStateHaveLocalPranswer, nil
		}
		if current != SignalingStateHaveLocalOffer {
			return 0, ErrInvalidTransition
		}
		return SignalingStateHaveRemotePranswer, nil

	case SDPTypeAnswer:
		if local {
			if current != SignalingStateHaveRemoteOffer && current != SignalingStateHaveLocalPranswer {
				return 0, ErrInvalidTransition
			}
			return SignalingStateStable, nil
		}
		if current != SignalingStateHaveLocalOffer && current != SignalingStateHaveRemotePranswer {
			return 0, ErrInvalidTransition
		}
		return SignalingStateStable, nil

	default:
		return 0, ErrInvalidTransition
	}
}

// ErrInvalidTransition is the underlying cause wrapped by an
// invalid-state Error returned from SetLocalDescription/SetRemoteDescription.
var ErrInvalidTransition = errors.New("rawrtc: signaling state does not accept this description")

// SetLocalDescription validates desc and, on success, advances the
// signaling state machine, spec.md §4.1.
func (pc *PeerConnection) SetLocalDescription(desc SessionDescription) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.signalingState == SignalingStateClosed {
		return newError(ErrKindInvalidState, nil)
	}

	parsed, err := sdp.Parse(desc.SDP)
	if err != nil {
		return newError(ErrKindInvalidSDP, err)
	}
	if err := parsed.Validate(); err != nil {
		return newError(ErrKindInvalidSDP, err)
	}

	next, err := nextSignalingState(pc.signalingState, true, desc.Type)
	if err != nil {
		return newError(ErrKindInvalidState, err)
	}

	if desc.Type == SDPTypeOffer {
		pc.isOfferer = true
	}
	pc.localDesc = parsed
	pc.localSDPType = desc.Type
	pc.setSignalingStateLocked(next)

	if next == SignalingStateStable {
		pc.maybeStartTransportsLocked()
	}
	return nil
}

// SetRemoteDescription validates desc against the pending local state,
// applies its ICE credentials/candidates, and advances the signaling
// state machine. An answer whose media section does not match the
// pending offer's profile is rejected here via Validate, before any
// state is mutated, spec.md §8 scenario 3.
func (pc *PeerConnection) SetRemoteDescription(desc SessionDescription) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.signalingState == SignalingStateClosed {
		return newError(ErrKindInvalidState, nil)
	}

	parsed, err := sdp.Parse(desc.SDP)
	if err != nil {
		return newError(ErrKindInvalidSDP, err)
	}
	if err := parsed.Validate(); err != nil {
		return newError(ErrKindInvalidSDP, err)
	}

	next, err := nextSignalingState(pc.signalingState, false, desc.Type)
	if err != nil {
		return newError(ErrKindInvalidState, err)
	}

	if desc.Type == SDPTypeOffer {
		pc.isOfferer = false
	}
	pc.remoteDesc = parsed
	pc.applyRemoteICELocked(parsed)
	pc.setSignalingStateLocked(next)

	if next == SignalingStateStable {
		pc.maybeStartTransportsLocked()
	}
	return nil
}

func (pc *PeerConnection) setSignalingStateLocked(s SignalingState) {
	pc.signalingState = s
	if pc.onSignalingStateChange != nil {
		pc.onSignalingStateChange(s)
	}
}

// applyRemoteICELocked records the remote ICE credentials and candidates,
// resolves the final controlling/controlled role, and starts connectivity
// checks once (per connection), spec.md §4.1/§4.2.
func (pc *PeerConnection) applyRemoteICELocked(desc *sdp.Description) {
	ufrag, pwd := desc.ICECredentials()
	pc.iceAgent.SetRemoteCredentials(ufrag, pwd)

	candidates, _ := desc.Candidates()
	for _, c := range candidates {
		_ = pc.iceAgent.AddRemoteCandidate(c)
	}

	role := ice.RoleControlled
	if pc.isOfferer || desc.ICELite() {
		role = ice.RoleControlling
	}
	pc.iceAgent.SetRole(role)

	if !pc.iceChecksStarted {
		pc.iceChecksStarted = true
		// Started off this goroutine: entering the checking state calls
		// handleICEConnectionStateChange, which takes pc.mu, held here.
		agent := pc.iceAgent
		go func() { _ = agent.StartConnectivityChecks() }()
	}
}

// AddICECandidate adds one trickled remote candidate line (without the
// "a=candidate:" prefix), spec.md §6.
func (pc *PeerConnection) AddICECandidate(candidateLine string) error {
	c, err := sdp.ParseCandidateLine(candidateLine)
	if err != nil {
		return newError(ErrKindInvalidSDP, err)
	}
	return pc.iceAgent.AddRemoteCandidate(c)
}

// --- transport startup ---

// maybeStartTransportsLocked computes the DTLS/SCTP roles from the
// negotiated answer's a=setup once both descriptions are known, spec.md
// §4.1 ("DTLS role selection"). Must be called with pc.mu held.
func (pc *PeerConnection) maybeStartTransportsLocked() {
	if pc.rolesReady || pc.localDesc == nil || pc.remoteDesc == nil {
		return
	}

	answerDesc := pc.localDesc
	if pc.isOfferer {
		answerDesc = pc.remoteDesc
	}

	setup, err := answerDesc.Setup()
	if err != nil {
		setup = sdp.SetupActPass
	}

	// setup==active means the answerer plays the DTLS client; setup
	// unset/actpass falls back to the offerer acting as server, the same
	// as the active case, spec.md §4.1.
	offererIsServer := setup != sdp.SetupPassive
	if offererIsServer {
		if pc.isOfferer {
			pc.dtlsRole = dtls.RoleServer
		} else {
			pc.dtlsRole = dtls.RoleClient
		}
	} else {
		if pc.isOfferer {
			pc.dtlsRole = dtls.RoleClient
		} else {
			pc.dtlsRole = dtls.RoleServer
		}
	}

	if pc.dtlsRole == dtls.RoleClient {
		pc.sctpRole = sctp.RoleInitiator
	} else {
		pc.sctpRole = sctp.RoleAcceptor
	}

	pc.rolesReady = true
	pc.ensureDTLSConnLocked()
}

// ensureDTLSConnLocked creates the DTLS connection once roles are known.
// Handshake initiation waits for ICE to report a connected pair; a
// connection created before that stays idle, ready to feed
// StartHandshake (client) or a passive ClientHello wait (server).
func (pc *PeerConnection) ensureDTLSConnLocked() {
	if pc.dtlsConnCreated {
		return
	}
	pc.dtlsConnCreated = true

	conn, err := dtls.New(dtls.Config{
		Role:               pc.dtlsRole,
		Certificate:        pc.cert,
		RemoteFingerprints: pc.remoteDesc.Fingerprints(),
		Send:               pc.iceAgent.Send,
		LoggerFactory:      pc.config.LoggerFactory,
	})
	if err != nil {
		pc.handleTransportFailureLocked(ErrKindDTLSHandshakeFailed)
		return
	}
	pc.dtlsConn = conn
	conn.OnHandshakeComplete(pc.handleDTLSComplete)
	conn.SetDataHandler(pc.handleSCTPPacket)

	pc.maybeBeginHandshakeLocked()
}

// maybeBeginHandshakeLocked starts the ClientHello flight once this side
// is the DTLS client and ICE has a working pair, spec.md §4.3.
func (pc *PeerConnection) maybeBeginHandshakeLocked() {
	if pc.dtlsConn == nil || pc.dtlsHandshakeBegun || pc.dtlsRole != dtls.RoleClient {
		return
	}
	switch pc.iceAgent.ConnectionState() {
	case ice.ConnectionStateConnected, ice.ConnectionStateCompleted:
		pc.dtlsHandshakeBegun = true
		_ = pc.dtlsConn.StartHandshake()
	}
}

// handleDTLSComplete fires once the DTLS handshake finishes on either
// role; it starts the SCTP association above it, spec.md §4.4.
func (pc *PeerConnection) handleDTLSComplete() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.sctpAssoc != nil {
		return
	}

	assoc, err := sctp.New(sctp.Config{
		Role:          pc.sctpRole,
		Send:          pc.dtlsConn.Write,
		LoggerFactory: pc.config.LoggerFactory,
	})
	if err != nil {
		pc.handleTransportFailureLocked(ErrKindNetworkError)
		return
	}
	pc.sctpAssoc = assoc
	assoc.OnEstablished(pc.handleSCTPEstablished)
	assoc.OnData(pc.handleSCTPData)
	assoc.OnStreamReset(pc.handleSCTPStreamReset)

	if pc.sctpRole == sctp.RoleInitiator {
		_ = assoc.Associate()
	}
}

func (pc *PeerConnection) handleSCTPEstablished() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.setConnectionStateLocked(ConnectionStateConnected)
}

func (pc *PeerConnection) handleSCTPPacket(data []byte) {
	pc.mu.Lock()
	assoc := pc.sctpAssoc
	pc.mu.Unlock()
	if assoc == nil {
		return
	}

	if err := assoc.HandleIncoming(data); err != nil {
		kind := ErrKindNetworkError
		switch {
		case errors.Is(err, sctp.ErrCookieStale):
			kind = ErrKindSCTPCookieStale
		case errors.Is(err, sctp.ErrCookieInvalid):
			kind = ErrKindSCTPCookieInvalid
		}
		pc.mu.Lock()
		pc.handleTransportFailureLocked(kind)
		pc.mu.Unlock()
	}
}

// handleSCTPData dispatches an inbound DATA chunk's payload either to
// the DCEP control handler (channel open/ack) or straight to the owning
// data channel, spec.md §4.5.
func (pc *PeerConnection) handleSCTPData(streamID uint16, ppid uint32, payload []byte) {
	if ppid == dcepControlPPID {
		pc.handleDCEP(streamID, payload)
		return
	}

	pc.mu.Lock()
	d := pc.channels[streamID]
	pc.mu.Unlock()
	if d != nil {
		d.deliver(payload)
	}
}

func (pc *PeerConnection) handleDCEP(streamID uint16, payload []byte) {
	if isDCEPAck(payload) {
		return
	}
	label, err := decodeDCEPOpen(payload)
	if err != nil {
		return
	}

	pc.mu.Lock()
	d := &DataChannel{pc: pc, id: streamID, label: label, ppid: dataChannelPPID, state: DataChannelStateOpen}
	pc.channels[streamID] = d
	assoc := pc.sctpAssoc
	pc.mu.Unlock()

	if assoc != nil {
		_, _ = assoc.Send(streamID, dcepControlPPID, encodeDCEPAck())
	}
	if pc.onDataChannel != nil {
		pc.onDataChannel(d)
	}
}

func (pc *PeerConnection) handleSCTPStreamReset(streamID uint16) {
	pc.mu.Lock()
	d := pc.channels[streamID]
	pc.mu.Unlock()
	if d != nil {
		d.markClosed()
	}
}

// --- ICE callbacks ---

func (pc *PeerConnection) handleLocalCandidate(c *candidate.Candidate) {
	if pc.onICECandidate != nil {
		pc.onICECandidate(sdp.EncodeCandidateLine(c))
	}
}

func (pc *PeerConnection) handleGatheringStateChange(s ice.GatheringState) {
	if pc.onICEGatheringStateChange != nil {
		pc.onICEGatheringStateChange(s)
	}
}

func (pc *PeerConnection) handleICEConnectionStateChange(s ice.ConnectionState) {
	if pc.onICEConnectionStateChange != nil {
		pc.onICEConnectionStateChange(s)
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	switch s {
	case ice.ConnectionStateChecking:
		pc.setConnectionStateLocked(ConnectionStateConnecting)
	case ice.ConnectionStateConnected, ice.ConnectionStateCompleted:
		pc.maybeBeginHandshakeLocked()
	case ice.ConnectionStateDisconnected:
		pc.setConnectionStateLocked(ConnectionStateDisconnected)
	case ice.ConnectionStateFailed:
		pc.handleTransportFailureLocked(ErrKindICEFailed)
	}
}

// handleICEData feeds a non-STUN datagram to the DTLS layer, spec.md
// §4.2/§4.3. A fingerprint mismatch and any other handshake error map to
// distinct spec.md §7 error kinds.
func (pc *PeerConnection) handleICEData(data []byte, from net.Addr) {
	pc.mu.Lock()
	conn := pc.dtlsConn
	pc.mu.Unlock()
	if conn == nil {
		return
	}

	if err := conn.HandleIncoming(data, from.String()); err != nil {
		kind := ErrKindDTLSHandshakeFailed
		if errors.Is(err, dtls.ErrFingerprintMismatch) {
			kind = ErrKindDTLSFingerprintMismatch
		}
		pc.mu.Lock()
		pc.handleTransportFailureLocked(kind)
		pc.mu.Unlock()
	}
}

func (pc *PeerConnection) setConnectionStateLocked(s ConnectionState) {
	if pc.connState == s {
		return
	}
	pc.connState = s
	if pc.onConnectionStateChange != nil {
		pc.onConnectionStateChange(s)
	}
}

// maybeSignalNegotiationNeededLocked implements spec.md §4.1: creating the
// first data channel or closing the connection while signaling is stable
// queues one deferred negotiationneeded notification, fired outside the
// lock on the next cooperative tick rather than synchronously with the
// triggering call. It is a no-op while signaling is non-stable or a
// notification is already queued. Must be called with pc.mu held.
func (pc *PeerConnection) maybeSignalNegotiationNeededLocked() {
	if pc.signalingState != SignalingStateStable || pc.negotiationNeeded {
		return
	}
	pc.negotiationNeeded = true
	go pc.fireNegotiationNeeded()
}

func (pc *PeerConnection) fireNegotiationNeeded() {
	pc.mu.Lock()
	pc.negotiationNeeded = false
	cb := pc.onNegotiationNeeded
	pc.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// handleTransportFailureLocked must be called with pc.mu held.
func (pc *PeerConnection) handleTransportFailureLocked(kind ErrorKind) {
	pc.setConnectionStateLocked(ConnectionStateFailed)
	if pc.log != nil {
		pc.log.Warnf("transport failure: %s", kind)
	}
}

// --- data channels ---

// CreateDataChannel opens a new SCTP stream and sends the DCEP
// DATA_CHANNEL_OPEN message that carries its label to the peer, spec.md
// §4.5. It requires the SCTP association to already be established.
func (pc *PeerConnection) CreateDataChannel(label string, opts DataChannelInit) (*DataChannel, error) {
	pc.mu.Lock()
	assoc := pc.sctpAssoc
	firstChannel := len(pc.channels) == 0
	pc.mu.Unlock()
	if assoc == nil {
		return nil, newError(ErrKindInvalidState, errors.New("sctp association not established"))
	}

	id, err := assoc.OpenStream(dcepControlPPID)
	if err != nil {
		return nil, newError(ErrKindNetworkError, err)
	}

	d := &DataChannel{pc: pc, id: id, label: label, ppid: dataChannelPPID, state: DataChannelStateOpen}
	pc.mu.Lock()
	pc.channels[id] = d
	if firstChannel {
		pc.maybeSignalNegotiationNeededLocked()
	}
	pc.mu.Unlock()

	if _, err := assoc.Send(id, dcepControlPPID, encodeDCEPOpen(label)); err != nil {
		return nil, newError(ErrKindNetworkError, err)
	}
	return d, nil
}

// sendOnChannel is DataChannel.Send's delegate.
func (pc *PeerConnection) sendOnChannel(d *DataChannel, payload []byte) (int, error) {
	pc.mu.Lock()
	assoc := pc.sctpAssoc
	pc.mu.Unlock()
	if assoc == nil {
		return 0, newError(ErrKindSCTPClosed, nil)
	}

	n, err := assoc.Send(d.id, dataChannelPPID, payload)
	if err != nil {
		if errors.Is(err, sctp.ErrPayloadTooLarge) {
			return 0, newError(ErrKindPayloadTooLarge, err)
		}
		return 0, newError(ErrKindNetworkError, err)
	}
	return n, nil
}

// closeChannel is DataChannel.Close's delegate.
func (pc *PeerConnection) closeChannel(d *DataChannel) error {
	pc.mu.Lock()
	assoc := pc.sctpAssoc
	pc.mu.Unlock()
	if assoc == nil {
		d.markClosed()
		return nil
	}

	if err := assoc.CloseStream(d.id); err != nil {
		return newError(ErrKindNetworkError, err)
	}
	d.markClosed()
	return nil
}

// --- teardown ---

// Close tears down the SCTP association, DTLS connection, and ICE agent
// in that order, and is idempotent, spec.md §8 invariant 5.
func (pc *PeerConnection) Close() error {
	pc.closeOnce.Do(func() {
		pc.mu.Lock()
		assoc := pc.sctpAssoc
		conn := pc.dtlsConn
		agent := pc.iceAgent
		pc.maybeSignalNegotiationNeededLocked()
		pc.signalingState = SignalingStateClosed
		pc.connState = ConnectionStateClosed
		pc.mu.Unlock()

		if assoc != nil {
			_ = assoc.Close()
		}
		if conn != nil {
			_ = conn.Close()
		}
		if agent != nil {
			_ = agent.Close()
		}
	})
	return nil
}
