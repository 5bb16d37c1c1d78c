package dtls

import (
	"encoding/binary"
)

// HandshakeType is the first byte of a DTLS handshake message, RFC 6347
// §4.2.2. Only the messages this module's reduced ECDHE handshake actually
// sends are named.
type HandshakeType uint8

const (
	HandshakeClientHello        HandshakeType = 1
	HandshakeServerHello        HandshakeType = 2
	HandshakeHelloVerifyRequest HandshakeType = 3
	HandshakeCertificate        HandshakeType = 11
	HandshakeServerKeyExchange  HandshakeType = 12
	HandshakeServerHelloDone    HandshakeType = 14
	HandshakeCertificateVerify  HandshakeType = 15
	HandshakeClientKeyExchange  HandshakeType = 16
	HandshakeFinished           HandshakeType = 20
)

// handshakeHeader is the 12-byte header RFC 6347 §4.2.2 prepends to every
// handshake message so it can be identified, sequenced, and (in a full
// implementation) reassembled from fragments. This module never fragments
// a handshake message across records (spec.md §4.3 explicitly excludes
// handshake fragmentation), so fragmentOffset is always 0 and
// fragmentLength always equals length.
type handshakeHeader struct {
	msgType        HandshakeType
	length         uint32 // 24 bits on the wire
	messageSeq     uint16
	fragmentOffset uint32 // 24 bits on the wire
	fragmentLength uint32 // 24 bits on the wire
}

const handshakeHeaderSize = 12

func encodeHandshakeHeader(h handshakeHeader) []byte {
	buf := make([]byte, handshakeHeaderSize)
	buf[0] = byte(h.msgType)
	put24(buf[1:4], h.length)
	binary.BigEndian.PutUint16(buf[4:6], h.messageSeq)
	put24(buf[6:9], h.fragmentOffset)
	put24(buf[9:12], h.fragmentLength)
	return buf
}

func decodeHandshakeHeader(data []byte) (handshakeHeader, error) {
	if len(data) < handshakeHeaderSize {
		return handshakeHeader{}, ErrRecordTooShort
	}
	return handshakeHeader{
		msgType:        HandshakeType(data[0]),
		length:         get24(data[1:4]),
		messageSeq:     binary.BigEndian.Uint16(data[4:6]),
		fragmentOffset: get24(data[6:9]),
		fragmentLength: get24(data[9:12]),
	}, nil
}

func put24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func get24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// encodeHandshakeMessage wraps a handshake body with its header, ready to
// be handed to the record layer as ContentTypeHandshake payload.
func encodeHandshakeMessage(msgType HandshakeType, seq uint16, body []byte) []byte {
	h := handshakeHeader{
		msgType:        msgType,
		length:         uint32(len(body)),
		messageSeq:     seq,
		fragmentOffset: 0,
		fragmentLength: uint32(len(body)),
	}
	return append(encodeHandshakeHeader(h), body...)
}

// clientHello is the reduced ClientHello this module sends: random,
// optional cookie (empty on the first flight), and the two supported
// cipher suites, spec.md §4.3.
type clientHello struct {
	random       [32]byte
	cookie       []byte
	cipherSuites []CipherSuite
}

func encodeClientHello(ch clientHello) []byte {
	buf := make([]byte, 0, 32+1+len(ch.cookie)+2+2*len(ch.cipherSuites))
	buf = append(buf, ch.random[:]...)
	buf = append(buf, byte(len(ch.cookie)))
	buf = append(buf, ch.cookie...)
	suites := make([]byte, 2*len(ch.cipherSuites))
	for i, cs := range ch.cipherSuites {
		binary.BigEndian.PutUint16(suites[2*i:], uint16(cs))
	}
	buf = append(buf, byte(len(suites)>>8), byte(len(suites)))
	buf = append(buf, suites...)
	return buf
}

func decodeClientHello(data []byte) (clientHello, error) {
	if len(data) < 33 {
		return clientHello{}, ErrRecordTooShort
	}
	var ch clientHello
	copy(ch.random[:], data[:32])
	cookieLen := int(data[32])
	off := 33
	if len(data) < off+cookieLen+2 {
		return clientHello{}, ErrRecordTooShort
	}
	ch.cookie = append([]byte(nil), data[off:off+cookieLen]...)
	off += cookieLen
	suitesLen := int(data[off])<<8 | int(data[off+1])
	off += 2
	if len(data) < off+suitesLen {
		return clientHello{}, ErrRecordTooShort
	}
	for i := 0; i+1 < suitesLen; i += 2 {
		ch.cipherSuites = append(ch.cipherSuites, CipherSuite(binary.BigEndian.Uint16(data[off+i:])))
	}
	return ch, nil
}

// helloVerifyRequest carries the stateless cookie a server hands back on
// the first ClientHello, RFC 6347 §4.2.1.
type helloVerifyRequest struct {
	cookie []byte
}

func encodeHelloVerifyRequest(h helloVerifyRequest) []byte {
	buf := make([]byte, 0, 1+len(h.cookie))
	buf = append(buf, byte(len(h.cookie)))
	return append(buf, h.cookie...)
}

func decodeHelloVerifyRequest(data []byte) (helloVerifyRequest, error) {
	if len(data) < 1 {
		return helloVerifyRequest{}, ErrRecordTooShort
	}
	n := int(data[0])
	if len(data) < 1+n {
		return helloVerifyRequest{}, ErrRecordTooShort
	}
	return helloVerifyRequest{cookie: append([]byte(nil), data[1:1+n]...)}, nil
}

// serverHello is the server's random plus the single cipher suite it chose.
type serverHello struct {
	random       [32]byte
	cipherSuite  CipherSuite
}

func encodeServerHello(sh serverHello) []byte {
	buf := make([]byte, 34)
	copy(buf[:32], sh.random[:])
	binary.BigEndian.PutUint16(buf[32:34], uint16(sh.cipherSuite))
	return buf
}

func decodeServerHello(data []byte) (serverHello, error) {
	if len(data) < 34 {
		return serverHello{}, ErrRecordTooShort
	}
	var sh serverHello
	copy(sh.random[:], data[:32])
	sh.cipherSuite = CipherSuite(binary.BigEndian.Uint16(data[32:34]))
	return sh, nil
}

// certificateVerify carries the signature over the ServerKeyExchange
// parameters, RFC 5246 §7.4.3. This module's certificate exchange is
// server-only, so it is always the server that sends this message.
type certificateVerify struct {
	signature []byte
}

func encodeCertificateVerify(cv certificateVerify) []byte {
	return append([]byte(nil), cv.signature...)
}

func decodeCertificateVerify(data []byte) certificateVerify {
	return certificateVerify{signature: append([]byte(nil), data...)}
}

// finished carries the verify_data computed over the handshake transcript.
type finished struct {
	verifyData []byte
}

func encodeFinished(f finished) []byte { return append([]byte(nil), f.verifyData...) }

func decodeFinished(data []byte) finished { return finished{verifyData: append([]byte(nil), data...)} }
