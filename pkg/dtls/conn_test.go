package dtls

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"
)

// loopback wires two Conns together synchronously: each Send call feeds the
// other side's HandleIncoming directly, standing in for the ICE-selected
// pair spec.md's real transport provides.
func loopback(t *testing.T, clientConn, serverConn *Conn) {
	t.Helper()
	clientConn.config.Send = func(data []byte) (int, error) {
		if err := serverConn.HandleIncoming(data, "client:1"); err != nil {
			t.Logf("server HandleIncoming: %v", err)
		}
		return len(data), nil
	}
	serverConn.config.Send = func(data []byte) (int, error) {
		if err := clientConn.HandleIncoming(data, "server:1"); err != nil {
			t.Logf("client HandleIncoming: %v", err)
		}
		return len(data), nil
	}
}

func TestHandshakeCompletesBothSides(t *testing.T) {
	clientCert, err := GenerateSelfSigned()
	if err != nil {
		t.Fatalf("client cert: %v", err)
	}
	serverCert, err := GenerateSelfSigned()
	if err != nil {
		t.Fatalf("server cert: %v", err)
	}

	client, err := New(Config{Role: RoleClient, Certificate: clientCert})
	if err != nil {
		t.Fatalf("client New: %v", err)
	}
	server, err := New(Config{Role: RoleServer, Certificate: serverCert})
	if err != nil {
		t.Fatalf("server New: %v", err)
	}
	loopback(t, client, server)

	if err := client.StartHandshake(); err != nil {
		t.Fatalf("StartHandshake: %v", err)
	}

	if client.State() != StateComplete {
		t.Fatalf("expected client StateComplete, got %v", client.State())
	}
	if server.State() != StateComplete {
		t.Fatalf("expected server StateComplete, got %v", server.State())
	}
}

func TestApplicationDataRoundTripAfterHandshake(t *testing.T) {
	clientCert, _ := GenerateSelfSigned()
	serverCert, _ := GenerateSelfSigned()

	client, _ := New(Config{Role: RoleClient, Certificate: clientCert})
	server, _ := New(Config{Role: RoleServer, Certificate: serverCert})
	loopback(t, client, server)

	if err := client.StartHandshake(); err != nil {
		t.Fatalf("StartHandshake: %v", err)
	}

	var received []byte
	server.SetDataHandler(func(data []byte) { received = data })

	if _, err := client.Write([]byte("sctp packet bytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if string(received) != "sctp packet bytes" {
		t.Fatalf("expected server to receive the plaintext, got %q", received)
	}
}

func TestHandshakeNegotiatesRSASuiteForRSAServerCertificate(t *testing.T) {
	clientCert, err := GenerateSelfSigned()
	if err != nil {
		t.Fatalf("client cert: %v", err)
	}
	serverCert, err := GenerateSelfSignedWithKeyType(KeyTypeRSA)
	if err != nil {
		t.Fatalf("server cert: %v", err)
	}

	client, err := New(Config{Role: RoleClient, Certificate: clientCert})
	if err != nil {
		t.Fatalf("client New: %v", err)
	}
	server, err := New(Config{Role: RoleServer, Certificate: serverCert})
	if err != nil {
		t.Fatalf("server New: %v", err)
	}
	loopback(t, client, server)

	if err := client.StartHandshake(); err != nil {
		t.Fatalf("StartHandshake: %v", err)
	}

	if client.State() != StateComplete || server.State() != StateComplete {
		t.Fatalf("expected both sides complete, got client=%v server=%v", client.State(), server.State())
	}
	if client.cipherSuite != TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256 {
		t.Fatalf("expected the RSA suite to be negotiated, got %v", client.cipherSuite)
	}
}

// substituteServerKeyExchangeKey rewrites a wire record in place, replacing
// the ECDH public key it carries if it is a ServerKeyExchange record. Both
// keys are uncompressed P-256 points of equal length, so no header length
// field needs adjusting.
func substituteServerKeyExchangeKey(record []byte, newPubKey []byte) []byte {
	if len(record) < recordHeaderSize+handshakeHeaderSize {
		return record
	}
	if HandshakeType(record[recordHeaderSize]) != HandshakeServerKeyExchange {
		return record
	}
	out := append([]byte(nil), record...)
	body := out[recordHeaderSize+handshakeHeaderSize:]
	if len(body) != len(newPubKey) {
		return record
	}
	copy(body, newPubKey)
	return out
}

// TestHandshakeFailsWhenServerKeyExchangeKeyIsSubstituted simulates an
// on-path attacker who relays the real Certificate message unmodified but
// swaps in its own ECDH public key inside ServerKeyExchange. The fingerprint
// check still passes because the certificate itself was never touched; only
// the CertificateVerify signature, computed over the server's real key,
// catches the substitution.
func TestHandshakeFailsWhenServerKeyExchangeKeyIsSubstituted(t *testing.T) {
	clientCert, err := GenerateSelfSigned()
	if err != nil {
		t.Fatalf("client cert: %v", err)
	}
	serverCert, err := GenerateSelfSigned()
	if err != nil {
		t.Fatalf("server cert: %v", err)
	}

	client, err := New(Config{Role: RoleClient, Certificate: clientCert})
	if err != nil {
		t.Fatalf("client New: %v", err)
	}
	server, err := New(Config{Role: RoleServer, Certificate: serverCert})
	if err != nil {
		t.Fatalf("server New: %v", err)
	}

	attackerKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("attacker GenerateKey: %v", err)
	}
	substituted := attackerKey.PublicKey().Bytes()

	client.config.Send = func(data []byte) (int, error) {
		if err := server.HandleIncoming(data, "client:1"); err != nil {
			t.Logf("server HandleIncoming: %v", err)
		}
		return len(data), nil
	}
	server.config.Send = func(data []byte) (int, error) {
		tampered := substituteServerKeyExchangeKey(data, substituted)
		if err := client.HandleIncoming(tampered, "server:1"); err != nil {
			t.Logf("client HandleIncoming: %v", err)
		}
		return len(data), nil
	}

	_ = client.StartHandshake()

	if client.State() != StateFailed {
		t.Fatalf("expected client to end in StateFailed, got %v", client.State())
	}
}
