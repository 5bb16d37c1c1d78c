package sctp

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/rawrtc/rawrtc/pkg/timer"
)

// Role distinguishes the association's initiator (sends INIT first) from
// its acceptor, mirroring the DTLS client/server split above it. Which
// side initiates is decided the same way DTLS's role is: the peer
// connection orchestrator picks one side to go first, spec.md §4.4.
type Role int

const (
	RoleInitiator Role = iota
	RoleAcceptor
)

// State is the association's lifecycle state, RFC 4960 §4, restricted to
// the states a two-party, no-retransmission-of-data association can
// actually reach.
type State int

const (
	StateClosed State = iota
	StateCookieWait
	StateCookieEchoed
	StateEstablished
	StateShutdownSent
	StateShutdownAckSent
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateCookieWait:
		return "CookieWait"
	case StateCookieEchoed:
		return "CookieEchoed"
	case StateEstablished:
		return "Established"
	case StateShutdownSent:
		return "ShutdownSent"
	case StateShutdownAckSent:
		return "ShutdownAckSent"
	default:
		return "Unknown"
	}
}

// SendFunc writes one raw SCTP packet to the peer through whatever DTLS
// connection carries it, spec.md §4.4 ("SCTP never touches the network
// directly; it hands each packet to the DTLS layer as one application_data
// record").
type SendFunc func(data []byte) (int, error)

// Config configures an Association.
type Config struct {
	Role Role
	Send SendFunc

	MaxStreams int
	// MaxRetries bounds INIT/COOKIE_ECHO/RE-CONFIG/SHUTDOWN retransmission
	// before the association gives up and moves to StateClosed, spec.md §4.4.
	MaxRetries int

	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 8
	}
}

// Association is a single, reduced SCTP association: unordered, unreliable
// delivery only, one fixed MTU, no fragmentation, no congestion control.
type Association struct {
	config Config
	log    logging.LeveledLogger

	mu    sync.Mutex
	state State

	myTag, peerTag            uint32
	myInitialTSN, peerInitTSN uint32
	nextTSN                   uint32
	rcvTSN                    *tsnTracker

	cookieSecret stateCookieSecret
	streams      *streamTable
	reconfigSeq  uint32

	retransmit *timer.Retransmitter
	lastFlight []byte

	onEstablished func()
	onData        func(streamID uint16, ppid uint32, payload []byte)
	onStreamReset func(streamID uint16)
}

// New creates an Association in StateClosed. Call Associate to begin the
// handshake as the initiator; an acceptor simply waits for an INIT via
// HandleIncoming.
func New(config Config) (*Association, error) {
	config.applyDefaults()
	secret, err := newStateCookieSecret()
	if err != nil {
		return nil, err
	}

	a := &Association{
		config:       config,
		state:        StateClosed,
		cookieSecret: secret,
		streams:      newStreamTable(config.MaxStreams),
	}
	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("sctp")
	}

	tag, err := randUint32()
	if err != nil {
		return nil, err
	}
	a.myTag = tag

	tsn, err := randUint32()
	if err != nil {
		return nil, err
	}
	a.myInitialTSN = tsn
	a.nextTSN = tsn

	return a, nil
}

func randUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// OnEstablished registers a callback fired once the four-way handshake
// completes on either side.
func (a *Association) OnEstablished(f func()) { a.onEstablished = f }

// OnData registers a callback fired for every inbound DATA chunk's payload.
func (a *Association) OnData(f func(streamID uint16, ppid uint32, payload []byte)) { a.onData = f }

// OnStreamReset registers a callback fired when a RE-CONFIG request from
// the peer closes a stream. It does not fire for streams closed locally
// with CloseStream.
func (a *Association) OnStreamReset(f func(streamID uint16)) { a.onStreamReset = f }

// State returns the current association state.
func (a *Association) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Association) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// CumulativeTSN returns the maximum t' such that every TSN in (previous
// last-received-TSN, t'] has been received, spec.md §4.4's out-of-order
// tracking requirement. It is 0 before the peer's initial TSN is known.
func (a *Association) CumulativeTSN() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rcvTSN == nil {
		return 0
	}
	return a.rcvTSN.cumulativeTSN()
}

// OpenStream allocates a new outbound stream ID for a data channel, spec.md
// §4.5.
func (a *Association) OpenStream(ppid uint32) (uint16, error) {
	return a.streams.Open(ppid)
}

// Associate sends the initial INIT chunk. Only valid for RoleInitiator.
func (a *Association) Associate() error {
	init := initParams{
		initiateTag:      a.myTag,
		advertisedWindow: 1 << 20,
		outboundStreams:  DefaultMaxStreams,
		inboundStreams:   DefaultMaxStreams,
		initialTSN:       a.myInitialTSN,
	}
	packet := encodePacket(0, chunk{typ: ChunkInit, body: encodeInitParams(init)})
	a.setState(StateCookieWait)
	a.armRetransmit()
	a.sendFlight(packet)
	return nil
}

func (a *Association) armRetransmit() {
	a.armRetransmitWithCeiling(60 * time.Second)
}

func (a *Association) armRetransmitWithCeiling(max time.Duration) {
	schedule := timer.NewSchedule(time.Second, max)
	// MaxRetries retransmissions (attempts 2..MaxRetries+1); the next expiry
	// gives up and closes the association instead of sending again.
	a.retransmit = timer.NewRetransmitter(schedule, a.config.MaxRetries+2, func(attempt int) {
		if attempt > a.config.MaxRetries+1 {
			a.setState(StateClosed)
			return
		}
		a.mu.Lock()
		flight := append([]byte(nil), a.lastFlight...)
		a.mu.Unlock()
		if flight != nil && a.config.Send != nil {
			_, _ = a.config.Send(flight)
		}
	})
	a.retransmit.Start()
}

func (a *Association) disarmRetransmit() {
	if a.retransmit != nil {
		a.retransmit.Stop()
	}
}

func (a *Association) sendFlight(packet []byte) {
	a.mu.Lock()
	a.lastFlight = packet
	a.mu.Unlock()
	if a.config.Send != nil {
		_, _ = a.config.Send(packet)
	}
}

// HandleIncoming feeds one received SCTP packet (already demultiplexed out
// of a DTLS application_data record) into the association.
func (a *Association) HandleIncoming(data []byte) error {
	h, chunks, err := decodePacket(data)
	if err != nil {
		return err
	}

	expectedTag := uint32(0)
	for _, c := range chunks {
		if c.typ != ChunkInit {
			a.mu.Lock()
			expectedTag = a.myTag
			a.mu.Unlock()
			break
		}
	}
	if h.verificationTag != expectedTag {
		return ErrVerificationTagMismatch
	}

	for _, c := range chunks {
		if err := a.handleChunk(c); err != nil {
			return err
		}
	}
	return nil
}

func (a *Association) handleChunk(c chunk) error {
	switch c.typ {
	case ChunkInit:
		return a.onInit(c)
	case ChunkInitAck:
		return a.onInitAck(c)
	case ChunkCookieEcho:
		return a.onCookieEcho(c)
	case ChunkCookieAck:
		return a.onCookieAck()
	case ChunkData:
		return a.handleDataChunk(c)
	case ChunkSack:
		return nil // no retransmit queue keys off SACKs in this profile
	case ChunkReconfig:
		return a.onReconfig(c)
	case ChunkShutdown:
		return a.onShutdown()
	case ChunkShutdownAck:
		return a.onShutdownAck()
	case ChunkShutdownComplete:
		return a.onShutdownComplete()
	case ChunkAbort:
		a.disarmRetransmit()
		a.setState(StateClosed)
		return nil
	default:
		return nil
	}
}

func (a *Association) onInit(c chunk) error {
	if a.config.Role != RoleAcceptor {
		return nil
	}
	peer, err := decodeInitParams(c.body)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.peerTag = peer.initiateTag
	a.peerInitTSN = peer.initialTSN
	a.rcvTSN = newTSNTracker(peer.initialTSN)
	a.mu.Unlock()

	cookie := a.cookieSecret.mint(time.Now(), cookieContext{
		initiateTag:    a.myTag,
		peerTag:        peer.initiateTag,
		initialTSN:     a.myInitialTSN,
		peerInitialTSN: peer.initialTSN,
	})

	initAck := initParams{
		initiateTag:      a.myTag,
		advertisedWindow: 1 << 20,
		outboundStreams:  DefaultMaxStreams,
		inboundStreams:   DefaultMaxStreams,
		initialTSN:       a.myInitialTSN,
	}
	body := append(encodeInitParams(initAck), encodeTLVParam(paramStateCookie, cookie)...)
	packet := encodePacket(peer.initiateTag, chunk{typ: ChunkInitAck, body: body})
	if a.config.Send != nil {
		_, _ = a.config.Send(packet)
	}
	return nil
}

func (a *Association) onInitAck(c chunk) error {
	if a.config.Role != RoleInitiator {
		return nil
	}
	peer, err := decodeInitParams(c.body[:initChunkFixedSize])
	if err != nil {
		return err
	}
	typ, cookie, _, err := decodeTLVParam(c.body[initChunkFixedSize:])
	if err != nil || typ != paramStateCookie {
		return ErrInvalidChunk
	}

	a.mu.Lock()
	a.peerTag = peer.initiateTag
	a.peerInitTSN = peer.initialTSN
	a.rcvTSN = newTSNTracker(peer.initialTSN)
	a.mu.Unlock()

	a.disarmRetransmit()
	packet := encodePacket(peer.initiateTag, chunk{typ: ChunkCookieEcho, body: cookie})
	a.setState(StateCookieEchoed)
	a.armRetransmit()
	a.sendFlight(packet)
	return nil
}

func (a *Association) onCookieEcho(c chunk) error {
	if a.config.Role != RoleAcceptor {
		return nil
	}
	ctx, err := a.cookieSecret.verify(time.Now(), c.body)
	if err != nil {
		if a.log != nil {
			a.log.Warnf("sctp: rejecting COOKIE_ECHO: %v", err)
		}
		a.mu.Lock()
		peerTag := a.peerTag
		a.mu.Unlock()
		if a.config.Send != nil {
			_, _ = a.config.Send(encodePacket(peerTag, encodeErrorChunk(errorCauseStaleCookie)))
		}
		return err
	}

	a.mu.Lock()
	a.myTag = ctx.initiateTag
	a.peerTag = ctx.peerTag
	a.myInitialTSN = ctx.initialTSN
	a.nextTSN = ctx.initialTSN
	a.peerInitTSN = ctx.peerInitialTSN
	a.rcvTSN = newTSNTracker(ctx.peerInitialTSN)
	a.mu.Unlock()

	packet := encodePacket(ctx.peerTag, chunk{typ: ChunkCookieAck})
	if a.config.Send != nil {
		_, _ = a.config.Send(packet)
	}
	a.setState(StateEstablished)
	if a.onEstablished != nil {
		a.onEstablished()
	}
	return nil
}

func (a *Association) onCookieAck() error {
	if a.config.Role != RoleInitiator {
		return nil
	}
	a.disarmRetransmit()
	a.setState(StateEstablished)
	if a.onEstablished != nil {
		a.onEstablished()
	}
	return nil
}

// Send transmits one unordered, unreliable user message on streamID.
func (a *Association) Send(streamID uint16, ppid uint32, payload []byte) (int, error) {
	if a.State() != StateEstablished {
		return 0, ErrNotEstablished
	}
	if len(payload) > PacketMTU {
		return 0, ErrPayloadTooLarge
	}

	a.mu.Lock()
	tsn := a.nextTSN
	a.nextTSN++
	peerTag := a.peerTag
	a.mu.Unlock()

	d := encodeDataChunk(dataChunk{tsn: tsn, streamID: streamID, ppid: ppid, payload: payload})
	packet := encodePacket(peerTag, d)
	if a.config.Send == nil {
		return 0, ErrClosed
	}
	return a.config.Send(packet)
}

func (a *Association) handleDataChunk(c chunk) error {
	d, err := decodeDataChunk(c)
	if err != nil {
		return err
	}
	a.mu.Lock()
	if a.rcvTSN != nil {
		a.rcvTSN.observe(d.tsn)
	}
	a.streams.Adopt(d.streamID, d.ppid)
	a.mu.Unlock()

	if a.onData != nil {
		a.onData(d.streamID, d.ppid, d.payload)
	}
	return nil
}

// CloseStream retires a stream via RE-CONFIG, RFC 6525, spec.md §4.5. The
// peer drops the stream when the request arrives. The matching response
// only stops the retransmission here: the local stream entry stays in
// StreamResetting.
func (a *Association) CloseStream(streamID uint16) error {
	if a.State() != StateEstablished {
		return ErrNotEstablished
	}
	a.mu.Lock()
	a.reconfigSeq++
	seq := a.reconfigSeq
	peerTag := a.peerTag
	a.mu.Unlock()

	a.streams.SetState(streamID, StreamResetting)
	req := encodeReconfigRequest(reconfigRequest{reqSeq: seq, streamIDs: []uint16{streamID}})
	packet := encodePacket(peerTag, req)

	a.mu.Lock()
	a.lastFlight = packet
	a.mu.Unlock()
	a.armRetransmitWithCeiling(10 * time.Second)

	if a.config.Send != nil {
		_, err := a.config.Send(packet)
		return err
	}
	return nil
}

func (a *Association) onReconfig(c chunk) error {
	if req, err := decodeReconfigRequest(c); err == nil {
		for _, id := range req.streamIDs {
			a.streams.Close(id)
			if a.onStreamReset != nil {
				a.onStreamReset(id)
			}
		}
		a.mu.Lock()
		peerTag := a.peerTag
		a.mu.Unlock()
		resp := encodeReconfigResponse(reconfigResponse{reqSeq: req.reqSeq, result: resultSuccess})
		if a.config.Send != nil {
			_, _ = a.config.Send(encodePacket(peerTag, resp))
		}
		return nil
	}

	if resp, err := decodeReconfigResponse(c); err == nil {
		a.disarmRetransmit()
		_ = resp
		return nil
	}

	return ErrInvalidChunk
}

// onShutdown handles a peer-initiated SHUTDOWN: send SHUTDOWN_ACK and wait
// for SHUTDOWN_COMPLETE to close, spec.md §4.4.
func (a *Association) onShutdown() error {
	if a.State() != StateEstablished {
		return nil
	}
	a.mu.Lock()
	peerTag := a.peerTag
	a.mu.Unlock()
	a.setState(StateShutdownAckSent)
	a.armRetransmitWithCeiling(10 * time.Second)
	a.sendFlight(encodePacket(peerTag, chunk{typ: ChunkShutdownAck}))
	return nil
}

// onShutdownAck handles the peer's SHUTDOWN_ACK in response to our own
// SHUTDOWN: send SHUTDOWN_COMPLETE and close.
func (a *Association) onShutdownAck() error {
	if a.State() != StateShutdownSent {
		return nil
	}
	a.disarmRetransmit()
	a.mu.Lock()
	peerTag := a.peerTag
	a.mu.Unlock()
	if a.config.Send != nil {
		_, _ = a.config.Send(encodePacket(peerTag, chunk{typ: ChunkShutdownComplete}))
	}
	a.setState(StateClosed)
	return nil
}

// onShutdownComplete finishes the responder's side of the exchange once the
// initiator confirms teardown.
func (a *Association) onShutdownComplete() error {
	if a.State() != StateShutdownAckSent {
		return nil
	}
	a.disarmRetransmit()
	a.setState(StateClosed)
	return nil
}

// Close initiates a graceful SHUTDOWN when the association has completed
// its handshake, spec.md §4.4 ("ESTABLISHED --recv SHUTDOWN→ send
// SHUTDOWN_ACK, SHUTDOWN_SENT --recv SHUTDOWN_COMPLETE→ CLOSED"). The
// SHUTDOWN chunk is retransmitted (T2) on the handshake's 1s doubling
// backoff but with a 10s ceiling instead of 60s, until SHUTDOWN_ACK arrives
// or the retry budget is exhausted, at which point the association moves
// to StateClosed. An association that never reached ESTABLISHED has no
// peer expecting a graceful exchange and closes immediately.
func (a *Association) Close() error {
	if a.State() != StateEstablished {
		a.disarmRetransmit()
		a.setState(StateClosed)
		return nil
	}

	a.mu.Lock()
	peerTag := a.peerTag
	a.mu.Unlock()
	a.setState(StateShutdownSent)
	a.armRetransmitWithCeiling(10 * time.Second)
	a.sendFlight(encodePacket(peerTag, chunk{typ: ChunkShutdown}))
	return nil
}
