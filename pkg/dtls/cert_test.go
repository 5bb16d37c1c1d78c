package dtls

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/x509"
	"testing"

	"github.com/rawrtc/rawrtc/pkg/sdp"
)

func TestGenerateSelfSignedProducesFingerprint(t *testing.T) {
	cert, err := GenerateSelfSigned()
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	if cert.Fingerprint == "" {
		t.Fatal("expected non-empty fingerprint")
	}
	if !VerifyFingerprint(cert.Certificate.Certificate[0], cert.Fingerprint) {
		t.Fatal("fingerprint should verify against its own certificate")
	}
}

func TestVerifyFingerprintRejectsMismatch(t *testing.T) {
	cert, err := GenerateSelfSigned()
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	if VerifyFingerprint(cert.Certificate.Certificate[0], "AA:BB:CC") {
		t.Fatal("expected mismatch to fail verification")
	}
}

func TestVerifyKeyExchangeParamsAcceptsGenuineSignature(t *testing.T) {
	cert, err := GenerateSelfSigned()
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	var clientRandom, serverRandom [32]byte
	rand.Read(clientRandom[:])
	rand.Read(serverRandom[:])

	ecdhKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pubKeyBytes := ecdhKey.PublicKey().Bytes()

	sig, err := signKeyExchangeParams(cert.PrivateKey, clientRandom, serverRandom, pubKeyBytes)
	if err != nil {
		t.Fatalf("signKeyExchangeParams: %v", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate.Certificate[0])
	if err != nil {
		t.Fatalf("parsing generated certificate: %v", err)
	}
	if err := verifyKeyExchangeParams(leaf.PublicKey, clientRandom, serverRandom, pubKeyBytes, sig); err != nil {
		t.Fatalf("expected genuine signature to verify, got %v", err)
	}
}

// TestVerifyKeyExchangeParamsRejectsSubstitutedKey models the MITM this
// signature exists to prevent: an on-path attacker relays the real
// Certificate message unmodified but swaps in its own ECDH public key.
// The signature was computed over the original key, so verification
// against the substituted key must fail.
func TestVerifyKeyExchangeParamsRejectsSubstitutedKey(t *testing.T) {
	cert, err := GenerateSelfSigned()
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	var clientRandom, serverRandom [32]byte
	rand.Read(clientRandom[:])
	rand.Read(serverRandom[:])

	realKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	attackerKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	sig, err := signKeyExchangeParams(cert.PrivateKey, clientRandom, serverRandom, realKey.PublicKey().Bytes())
	if err != nil {
		t.Fatalf("signKeyExchangeParams: %v", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate.Certificate[0])
	if err != nil {
		t.Fatalf("parsing generated certificate: %v", err)
	}
	if err := verifyKeyExchangeParams(leaf.PublicKey, clientRandom, serverRandom, attackerKey.PublicKey().Bytes(), sig); err == nil {
		t.Fatal("expected verification to fail against a substituted ECDH key")
	}
}

// TestAnyFingerprintMatchesChecksEveryRemoteEntry exercises the "hashed
// with each algorithm listed... at least one digest must match" rule: a
// remote description naming several fingerprint lines, only one of which is
// correct, must still be accepted, and one naming none of them must not be.
func TestAnyFingerprintMatchesChecksEveryRemoteEntry(t *testing.T) {
	cert, err := GenerateSelfSigned()
	if err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	der := cert.Certificate.Certificate[0]

	remote := []sdp.Fingerprint{
		{Algorithm: "sha-256", Hash: "AA:BB:CC:DD"},
		{Algorithm: "sha-256", Hash: cert.Fingerprint},
	}
	if !anyFingerprintMatches(remote, der) {
		t.Fatal("expected a match against the second listed fingerprint")
	}

	noMatch := []sdp.Fingerprint{
		{Algorithm: "sha-256", Hash: "AA:BB:CC:DD"},
		{Algorithm: "sha-256", Hash: "11:22:33:44"},
	}
	if anyFingerprintMatches(noMatch, der) {
		t.Fatal("expected no match when no listed fingerprint is correct")
	}
}

func TestGenerateSelfSignedWithKeyTypeRSA(t *testing.T) {
	cert, err := GenerateSelfSignedWithKeyType(KeyTypeRSA)
	if err != nil {
		t.Fatalf("GenerateSelfSignedWithKeyType(RSA): %v", err)
	}
	suite, err := cipherSuiteForCertificate(cert)
	if err != nil {
		t.Fatalf("cipherSuiteForCertificate: %v", err)
	}
	if suite != TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256 {
		t.Fatalf("expected the RSA suite for an RSA certificate, got %v", suite)
	}
}
