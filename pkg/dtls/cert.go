package dtls

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/rawrtc/rawrtc/pkg/sdp"
)

// KeyType selects the self-signed certificate's key algorithm, spec.md
// §4.3 ("key pairs may be RSA or ECDSA-P256, configurable").
type KeyType int

const (
	KeyTypeECDSA KeyType = iota
	KeyTypeRSA
)

// rsaKeyBits is the modulus size used when KeyTypeRSA is selected. 2048
// bits matches what the ECDHE_RSA suite's certificate needs without the
// handshake latency of a larger modulus.
const rsaKeyBits = 2048

// Certificate wraps the self-signed identity a peer connection presents
// during the handshake, spec.md §4.3 ("generates one self-signed ECDSA
// certificate per peer connection; there is no CA chain").
type Certificate struct {
	tls.Certificate
	Fingerprint string // hex SHA-256, upper-case, colon-separated per RFC 8122
}

// GenerateSelfSigned creates a fresh ECDSA P-256 self-signed certificate,
// mirroring how the teacher's commissioning material is generated: one
// short-lived keypair per identity, no external CA involvement.
func GenerateSelfSigned() (*Certificate, error) {
	return GenerateSelfSignedWithKeyType(KeyTypeECDSA)
}

// GenerateSelfSignedWithKeyType generates a self-signed identity with the
// given key algorithm, letting a caller pick RSA when it needs the
// ECDHE_RSA_WITH_AES_128_GCM_SHA256 suite instead of the ECDSA default.
func GenerateSelfSignedWithKeyType(keyType KeyType) (*Certificate, error) {
	var signer crypto.Signer
	switch keyType {
	case KeyTypeRSA:
		key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, err
		}
		signer = key
	default:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		signer = key
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "rawrtc"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, signer.Public(), signer)
	if err != nil {
		return nil, err
	}

	return &Certificate{
		Certificate: tls.Certificate{Certificate: [][]byte{der}, PrivateKey: signer},
		Fingerprint: fingerprintOf(der),
	}, nil
}

// fingerprintOf computes the RFC 8122 "a=fingerprint" value: SHA-256 over
// the DER certificate, formatted as upper-case colon-separated hex.
func fingerprintOf(der []byte) string {
	sum := sha256.Sum256(der)
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, 0, len(sum)*3-1)
	for i, b := range sum {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, hexDigits[b>>4], hexDigits[b&0xf])
	}
	return string(out)
}

// signedParams builds the byte string RFC 5246 §7.4.3 signs for an ECDHE
// ServerKeyExchange: both hello randoms followed by the server's ephemeral
// public key, binding the ephemeral key to the identity in the Certificate
// message that precedes it.
func signedParams(clientRandom, serverRandom [32]byte, ecdhPubKey []byte) [32]byte {
	h := sha256.New()
	h.Write(clientRandom[:])
	h.Write(serverRandom[:])
	h.Write(ecdhPubKey)
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// signKeyExchangeParams signs the ServerKeyExchange parameters with the
// certificate's private key, spec.md §4.3 ("ECDHE_ECDSA"/"ECDHE_RSA" name
// which key type signs the exchange"). crypto.Signer.Sign already produces
// the ASN.1 ECDSA signature or PKCS#1 v1.5 RSA signature as appropriate for
// the concrete key type, so no cipher-suite branch is needed here.
func signKeyExchangeParams(priv crypto.PrivateKey, clientRandom, serverRandom [32]byte, ecdhPubKey []byte) ([]byte, error) {
	signer, ok := priv.(crypto.Signer)
	if !ok {
		return nil, ErrNotASigner
	}
	hash := signedParams(clientRandom, serverRandom, ecdhPubKey)
	return signer.Sign(rand.Reader, hash[:], crypto.SHA256)
}

// verifyKeyExchangeParams checks a ServerKeyExchange signature against the
// peer certificate's public key, rejecting the handshake if the ephemeral
// key was not actually certified by the identity in the Certificate
// message.
func verifyKeyExchangeParams(pub crypto.PublicKey, clientRandom, serverRandom [32]byte, ecdhPubKey, sig []byte) error {
	hash := signedParams(clientRandom, serverRandom, ecdhPubKey)
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, hash[:], sig) {
			return ErrKeyExchangeSignature
		}
		return nil
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hash[:], sig); err != nil {
			return ErrKeyExchangeSignature
		}
		return nil
	default:
		return ErrNotASigner
	}
}

// VerifyFingerprint checks a peer's presented DER certificate against the
// fingerprint negotiated out of band in SDP, spec.md §7
// ("dtls-fingerprint-mismatch: aborts the handshake immediately").
func VerifyFingerprint(der []byte, want string) bool {
	return fingerprintOf(der) == want
}

// anyFingerprintMatches reports whether the certificate's SHA-256 digest
// matches at least one of the remote SDP's fingerprint lines, spec.md
// §4.3. This module only ever computes a SHA-256 digest, so any listed
// entry naming a different algorithm simply never matches.
func anyFingerprintMatches(remote []sdp.Fingerprint, der []byte) bool {
	digest := fingerprintOf(der)
	for _, fp := range remote {
		if fp.MatchesFingerprint("sha-256", digest) {
			return true
		}
	}
	return false
}
