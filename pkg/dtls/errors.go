// Package dtls implements the DTLS 1.2 handshake and record layer this
// module uses to secure the SCTP association above it, RFC 6347. Only the
// pieces spec.md's demultiplexer forwards content types 20-63 to are
// implemented: ClientHello/HelloVerifyRequest/ServerHello/Certificate/
// ServerKeyExchange/CertificateVerify/Finished for an ECDHE handshake, and
// the AEAD record layer above it. There is no fallback to plaintext and no
// renegotiation.
package dtls

import "errors"

var (
	ErrClosed               = errors.New("dtls: transport closed")
	ErrHandshakeTimeout     = errors.New("dtls: handshake timed out")
	ErrUnexpectedMessage    = errors.New("dtls: unexpected handshake message for current state")
	ErrCookieMismatch       = errors.New("dtls: cookie mismatch")
	ErrFingerprintMismatch  = errors.New("dtls: certificate fingerprint does not match remote description")
	ErrNoCipherSuite        = errors.New("dtls: no common cipher suite")
	ErrRecordTooShort       = errors.New("dtls: record shorter than header")
	ErrDecryptFailed        = errors.New("dtls: record decryption failed")
	ErrHandshakeNotComplete = errors.New("dtls: handshake has not completed")
	ErrEpochMismatch        = errors.New("dtls: record epoch does not match current session")
	ErrNotASigner           = errors.New("dtls: certificate private key cannot sign")
	ErrKeyExchangeSignature = errors.New("dtls: server key exchange signature invalid")
)
