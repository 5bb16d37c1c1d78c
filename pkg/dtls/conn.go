package dtls

import (
	"crypto"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/rawrtc/rawrtc/pkg/sdp"
	"github.com/rawrtc/rawrtc/pkg/timer"
)

// supportedCipherSuites is what a client offers in its ClientHello, spec.md
// §4.3 ("supports exactly two cipher suites"). Which one is actually
// selected depends on the certificate the server presents.
var supportedCipherSuites = []CipherSuite{
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// SendFunc writes one datagram to the peer. The peer connection wires this
// to the ICE agent's selected pair, spec.md §4.2/§4.3 ("DTLS never owns a
// socket directly; it writes through whatever pair ICE has selected").
type SendFunc func(data []byte) (int, error)

// Config configures a Conn.
type Config struct {
	Role Role

	Certificate *Certificate

	// RemoteFingerprints is every a=fingerprint line from the remote SDP,
	// spec.md §4.3 ("hashed with each algorithm listed... at least one
	// digest must match"). The Certificate message is accepted if any
	// entry matches.
	RemoteFingerprints []sdp.Fingerprint

	Send SendFunc

	LoggerFactory logging.LoggerFactory

	// MaxRetries bounds flight retransmission before the handshake fails,
	// spec.md §4.3 ("retransmits flights on a 1s-to-60s doubling backoff,
	// giving up after the schedule is exhausted").
	MaxRetries int
}

func (c *Config) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 8
	}
}

// Conn drives one DTLS 1.2 handshake and, once established, seals and
// opens application-data records for the SCTP association above it. It
// follows the cooperative feed/tick shape spec.md §5 describes: all state
// transitions happen inside HandleIncoming or the retransmit callback, both
// invoked from the connection's single goroutine.
type Conn struct {
	config Config
	log    logging.LeveledLogger

	mu    sync.Mutex
	state State

	messageSeq     uint16
	peerMessageSeq uint16

	clientRandom [32]byte
	serverRandom [32]byte
	cookie       []byte
	cookieSecret cookieSecret
	peerAddr     string

	ecdhKey  *ecdh.PrivateKey
	peerECDH *ecdh.PublicKey

	cipherSuite CipherSuite
	kb          keyBlock

	transcript        []byte // concatenation of every handshake body seen, for Finished/CertificateVerify
	peerCertDER       []byte
	peerCertPublicKey crypto.PublicKey
	writeSeq       uint64
	handshakeEpoch uint16
	appDataEpoch   uint16

	retransmit *timer.Retransmitter
	lastFlight []byte

	onStateChange func(State)
	onComplete    func()
	dataHandler   func(data []byte)

	closeOnce sync.Once
}

// New creates a Conn ready to start (client) or accept (server) a
// handshake. GenerateSelfSigned must have already produced config.Certificate.
func New(config Config) (*Conn, error) {
	config.applyDefaults()
	secret, err := newCookieSecret()
	if err != nil {
		return nil, err
	}

	c := &Conn{
		config:         config,
		state:          StateInit,
		cookieSecret:   secret,
		handshakeEpoch: 0,
		appDataEpoch:   1,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("dtls")
	}
	if _, err := rand.Read(c.clientRandom[:]); err != nil {
		return nil, err
	}
	return c, nil
}

// OnStateChange registers a callback fired on every handshake state
// transition.
func (c *Conn) OnStateChange(f func(State)) { c.onStateChange = f }

// OnHandshakeComplete registers a callback fired once, when the handshake
// finishes successfully.
func (c *Conn) OnHandshakeComplete(f func()) { c.onComplete = f }

func (c *Conn) setState(s State) {
	c.mu.Lock()
	// Complete and Failed are terminal. A peer that answers synchronously can
	// finish the handshake before the sender records its waiting state; that
	// late write must not undo the outcome. Complete may still become Failed.
	if c.state == StateFailed || (c.state == StateComplete && s != StateFailed) {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}

// State returns the current handshake state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartHandshake sends the initial ClientHello. Only valid for RoleClient.
func (c *Conn) StartHandshake() error {
	ch := clientHello{random: c.clientRandom, cipherSuites: supportedCipherSuites}
	body := encodeClientHello(ch)
	c.sendHandshakeFlight(HandshakeClientHello, body)
	c.setState(StateWaitHelloVerify)
	c.armRetransmit()
	return nil
}

func (c *Conn) armRetransmit() {
	if s := c.State(); s == StateComplete || s == StateFailed {
		return
	}
	schedule := timer.NewSchedule(time.Second, 60*time.Second)
	// MaxRetries retransmissions (attempts 2..MaxRetries+1); the next expiry
	// fails the handshake instead of sending again.
	c.retransmit = timer.NewRetransmitter(schedule, c.config.MaxRetries+2, func(attempt int) {
		if attempt > c.config.MaxRetries+1 {
			c.setState(StateFailed)
			return
		}
		c.mu.Lock()
		flight := append([]byte(nil), c.lastFlight...)
		c.mu.Unlock()
		if flight != nil && c.config.Send != nil {
			_, _ = c.config.Send(flight)
		}
	})
	c.retransmit.Start()
}

func (c *Conn) disarmRetransmit() {
	if c.retransmit != nil {
		c.retransmit.Stop()
	}
}

func (c *Conn) sendHandshakeFlight(msgType HandshakeType, body []byte) {
	c.mu.Lock()
	seq := c.messageSeq
	c.messageSeq++
	c.mu.Unlock()

	msg := encodeHandshakeMessage(msgType, seq, body)
	c.mu.Lock()
	c.transcript = append(c.transcript, msg...)
	c.mu.Unlock()

	record := encodeRecordHeader(recordHeader{contentType: ContentTypeHandshake, epoch: c.handshakeEpoch, sequenceNumber: c.nextWriteSeq()})
	record = append(record, msg...)
	// length must reflect the actual body written above the header
	setRecordLength(record, len(msg))

	c.mu.Lock()
	c.lastFlight = record
	c.mu.Unlock()

	if c.config.Send != nil {
		_, _ = c.config.Send(record)
	}
}

func setRecordLength(record []byte, bodyLen int) {
	record[11] = byte(bodyLen >> 8)
	record[12] = byte(bodyLen)
}

func (c *Conn) nextWriteSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.writeSeq
	c.writeSeq++
	return seq
}

// HandleIncoming feeds one received datagram (already classified as a DTLS
// record by the caller's demultiplexer, spec.md §4.2) into the handshake or
// record layer.
func (c *Conn) HandleIncoming(data []byte, fromAddr string) error {
	h, err := decodeRecordHeader(data)
	if err != nil {
		return err
	}
	body := data[recordHeaderSize:]
	if len(body) < int(h.length) {
		return ErrRecordTooShort
	}
	body = body[:h.length]

	switch h.contentType {
	case ContentTypeHandshake:
		c.peerAddr = fromAddr
		return c.handleHandshakeBody(body)
	case ContentTypeApplicationData:
		return c.handleApplicationData(h, body)
	case ContentTypeAlert:
		c.setState(StateFailed)
		return nil
	default:
		return nil
	}
}

func (c *Conn) handleHandshakeBody(data []byte) error {
	for len(data) >= handshakeHeaderSize {
		hh, err := decodeHandshakeHeader(data)
		if err != nil {
			return err
		}
		end := handshakeHeaderSize + int(hh.length)
		if len(data) < end {
			return ErrRecordTooShort
		}
		msg := data[:end]
		body := data[handshakeHeaderSize:end]

		c.mu.Lock()
		c.transcript = append(c.transcript, msg...)
		c.mu.Unlock()

		if err := c.handleOneHandshakeMessage(hh.msgType, body); err != nil {
			return err
		}
		data = data[end:]
	}
	return nil
}

func (c *Conn) handleOneHandshakeMessage(msgType HandshakeType, body []byte) error {
	switch msgType {
	case HandshakeClientHello:
		return c.onClientHello(body)
	case HandshakeHelloVerifyRequest:
		return c.onHelloVerifyRequest(body)
	case HandshakeServerHello:
		return c.onServerHello(body)
	case HandshakeCertificate:
		return c.onCertificate(body)
	case HandshakeServerKeyExchange:
		return c.onServerKeyExchange(body)
	case HandshakeCertificateVerify:
		return c.onCertificateVerify(body)
	case HandshakeServerHelloDone:
		return c.onServerHelloDone()
	case HandshakeClientKeyExchange:
		return c.onClientKeyExchange(body)
	case HandshakeFinished:
		return c.onFinished(body)
	default:
		return ErrUnexpectedMessage
	}
}

// --- server side ---

func (c *Conn) onClientHello(body []byte) error {
	if c.config.Role != RoleServer {
		return ErrUnexpectedMessage
	}
	ch, err := decodeClientHello(body)
	if err != nil {
		return err
	}
	c.clientRandom = ch.random

	if len(ch.cookie) == 0 {
		cookie := c.cookieSecret.generate(c.peerAddr, ch.random)
		c.cookie = cookie
		c.sendHandshakeFlight(HandshakeHelloVerifyRequest, encodeHelloVerifyRequest(helloVerifyRequest{cookie: cookie}))
		c.setState(StateWaitClientHelloCookie)
		return nil
	}

	if !c.cookieSecret.verify(c.peerAddr, ch.random, ch.cookie) {
		return ErrCookieMismatch
	}

	if _, err := rand.Read(c.serverRandom[:]); err != nil {
		return err
	}

	ourSuite, err := cipherSuiteForCertificate(c.config.Certificate)
	if err != nil {
		c.setState(StateFailed)
		return err
	}
	if !containsCipherSuite(ch.cipherSuites, ourSuite) {
		c.setState(StateFailed)
		return ErrNoCipherSuite
	}
	c.cipherSuite = ourSuite

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	c.ecdhKey = key

	pubKeyBytes := key.PublicKey().Bytes()
	sig, err := signKeyExchangeParams(c.config.Certificate.PrivateKey, c.clientRandom, c.serverRandom, pubKeyBytes)
	if err != nil {
		c.setState(StateFailed)
		return err
	}

	c.sendHandshakeFlight(HandshakeServerHello, encodeServerHello(serverHello{random: c.serverRandom, cipherSuite: c.cipherSuite}))
	c.sendHandshakeFlight(HandshakeCertificate, c.config.Certificate.Certificate.Certificate[0])
	c.sendHandshakeFlight(HandshakeServerKeyExchange, pubKeyBytes)
	c.sendHandshakeFlight(HandshakeCertificateVerify, encodeCertificateVerify(certificateVerify{signature: sig}))
	c.sendHandshakeFlight(HandshakeServerHelloDone, nil)
	c.setState(StateWaitCertificateVerify)
	c.armRetransmit()
	return nil
}

func (c *Conn) onClientKeyExchange(body []byte) error {
	peerKey, err := ecdh.P256().NewPublicKey(body)
	if err != nil {
		return err
	}
	c.peerECDH = peerKey
	return c.finishKeyAgreement()
}

// --- client side ---

func (c *Conn) onHelloVerifyRequest(body []byte) error {
	hv, err := decodeHelloVerifyRequest(body)
	if err != nil {
		return err
	}
	c.cookie = hv.cookie
	c.disarmRetransmit()

	ch := clientHello{random: c.clientRandom, cookie: c.cookie, cipherSuites: supportedCipherSuites}
	c.sendHandshakeFlight(HandshakeClientHello, encodeClientHello(ch))
	c.setState(StateWaitServerHello)
	c.armRetransmit()
	return nil
}

func (c *Conn) onServerHello(body []byte) error {
	sh, err := decodeServerHello(body)
	if err != nil {
		return err
	}
	c.serverRandom = sh.random
	c.cipherSuite = sh.cipherSuite
	return nil
}

func (c *Conn) onCertificate(der []byte) error {
	c.peerCertDER = append([]byte(nil), der...)
	if len(c.config.RemoteFingerprints) > 0 && !anyFingerprintMatches(c.config.RemoteFingerprints, der) {
		c.setState(StateFailed)
		return ErrFingerprintMismatch
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		c.setState(StateFailed)
		return err
	}
	c.peerCertPublicKey = cert.PublicKey
	return nil
}

func (c *Conn) onServerKeyExchange(body []byte) error {
	key, err := ecdh.P256().NewPublicKey(body)
	if err != nil {
		return err
	}
	c.peerECDH = key
	return nil
}

// onCertificateVerify checks the signature over the ServerKeyExchange
// parameters against the public key of the certificate the fingerprint
// check already accepted, binding the ephemeral ECDH key to that identity
// before it is ever used to derive record keys.
func (c *Conn) onCertificateVerify(body []byte) error {
	if c.config.Role != RoleClient {
		return ErrUnexpectedMessage
	}
	if c.peerECDH == nil || c.peerCertPublicKey == nil {
		return ErrUnexpectedMessage
	}
	cv := decodeCertificateVerify(body)
	if err := verifyKeyExchangeParams(c.peerCertPublicKey, c.clientRandom, c.serverRandom, c.peerECDH.Bytes(), cv.signature); err != nil {
		c.setState(StateFailed)
		return err
	}
	return nil
}

func (c *Conn) onServerHelloDone() error {
	if c.config.Role != RoleClient {
		return ErrUnexpectedMessage
	}
	c.disarmRetransmit()

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	c.ecdhKey = key

	c.sendHandshakeFlight(HandshakeClientKeyExchange, key.PublicKey().Bytes())
	if err := c.finishKeyAgreement(); err != nil {
		return err
	}

	verifyData := c.computeFinished(RoleClient)
	c.sendHandshakeFlight(HandshakeFinished, encodeFinished(finished{verifyData: verifyData}))
	c.setState(StateWaitFinished)
	c.armRetransmit()
	return nil
}

// finishKeyAgreement runs once both sides' ECDH public keys and both
// randoms are known, deriving the record-layer key block.
func (c *Conn) finishKeyAgreement() error {
	if c.ecdhKey == nil || c.peerECDH == nil {
		return nil // wait for the other half to arrive
	}
	shared, err := c.ecdhKey.ECDH(c.peerECDH)
	if err != nil {
		return err
	}
	c.kb = deriveKeyBlock(shared, c.clientRandom[:], c.serverRandom[:])
	return nil
}

// computeFinished derives the verify_data a party sends in its Finished
// message: an HMAC-SHA256 over the transcript so far, keyed by a value
// derived from the same HKDF key schedule as the record keys. This plays
// the same "prove both sides computed the same secret" role TLS 1.2's
// PRF-based verify_data plays, adapted to the HKDF derivation this module
// uses in place of P_hash (see DESIGN.md).
func (c *Conn) computeFinished(role Role) []byte {
	label := []byte("client finished")
	if role == RoleServer {
		label = []byte("server finished")
	}
	transcriptHash := sha256.Sum256(c.transcript)
	mac := hmac.New(sha256.New, append(c.kb.clientWriteKey[:], c.kb.serverWriteKey[:]...))
	mac.Write(label)
	mac.Write(transcriptHash[:])
	return mac.Sum(nil)
}

func (c *Conn) onFinished(body []byte) error {
	f := decodeFinished(body)
	peerRole := RoleServer
	if c.config.Role == RoleServer {
		peerRole = RoleClient
	}

	// The peer's Finished covers the transcript up to but not including
	// that message; recompute over what we've accumulated minus the
	// message just appended by handleHandshakeBody.
	saved := c.transcript
	c.mu.Lock()
	trimmed := saved[:len(saved)-len(body)-handshakeHeaderSize]
	c.mu.Unlock()
	c.transcript = trimmed
	want := c.computeFinished(peerRole)
	c.transcript = saved

	if !hmac.Equal(want, f.verifyData) {
		c.setState(StateFailed)
		return ErrUnexpectedMessage
	}

	c.disarmRetransmit()

	if c.config.Role == RoleServer {
		verifyData := c.computeFinished(RoleServer)
		c.sendHandshakeFlight(HandshakeFinished, encodeFinished(finished{verifyData: verifyData}))
	}

	c.setState(StateComplete)
	if c.onComplete != nil {
		c.onComplete()
	}
	return nil
}

// Write seals application data for the SCTP layer above, spec.md §4.3
// ("application_data records carry raw SCTP packets, one record per
// packet, no coalescing").
func (c *Conn) Write(data []byte) (int, error) {
	if c.State() != StateComplete {
		return 0, ErrHandshakeNotComplete
	}
	key := c.kb.clientWriteKey
	salt := c.kb.clientWriteIV
	if c.config.Role == RoleServer {
		key = c.kb.serverWriteKey
		salt = c.kb.serverWriteIV
	}
	aead, err := aeadFor(key)
	if err != nil {
		return 0, err
	}
	record := sealRecord(aead, salt, ContentTypeApplicationData, c.appDataEpoch, c.nextWriteSeq(), data)
	if c.config.Send == nil {
		return 0, ErrClosed
	}
	return c.config.Send(record)
}

// handleApplicationData decrypts an inbound application_data record and
// hands the plaintext to the callback registered with SetDataHandler,
// synchronously, mirroring pkg/transport.Conn's handler. Records that arrive
// before a handler is registered are dropped.
func (c *Conn) handleApplicationData(h recordHeader, body []byte) error {
	if c.dataHandler == nil {
		return nil
	}
	key := c.kb.serverWriteKey
	salt := c.kb.serverWriteIV
	if c.config.Role == RoleServer {
		key = c.kb.clientWriteKey
		salt = c.kb.clientWriteIV
	}
	aead, err := aeadFor(key)
	if err != nil {
		return err
	}
	if len(body) < aead.Overhead() {
		return ErrDecryptFailed
	}
	aadHeader := h
	aadHeader.length = uint16(len(body) - aead.Overhead())
	nonce := gcmNonce(salt, h.sequenceNumber)
	plain, err := aead.Open(nil, nonce[:], body, encodeRecordHeader(aadHeader))
	if err != nil {
		return ErrDecryptFailed
	}
	c.dataHandler(plain)
	return nil
}

// SetDataHandler registers the callback invoked with decrypted application
// data payloads once the handshake has completed. Kept as a plain field
// rather than a constructor argument since it is only known once the SCTP
// association above is wired up.
func (c *Conn) SetDataHandler(f func(data []byte)) { c.dataHandler = f }

// Close stops flight retransmission and marks the handshake failed so no
// further records are sealed or accepted. Idempotent, spec.md §5 ("close is
// idempotent and synchronous in effect").
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.disarmRetransmit()
		c.setState(StateFailed)
	})
	return nil
}
