package dtls

import (
	"bytes"
	"testing"
)

func TestClientHelloRoundTrip(t *testing.T) {
	var random [32]byte
	copy(random[:], []byte("0123456789012345678901234567890"))
	ch := clientHello{random: random, cookie: []byte("cookie"), cipherSuites: supportedCipherSuites}

	decoded, err := decodeClientHello(encodeClientHello(ch))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.random != ch.random {
		t.Fatal("random mismatch")
	}
	if !bytes.Equal(decoded.cookie, ch.cookie) {
		t.Fatal("cookie mismatch")
	}
	if len(decoded.cipherSuites) != len(supportedCipherSuites) {
		t.Fatalf("unexpected cipher suites: %v", decoded.cipherSuites)
	}
	for i, cs := range supportedCipherSuites {
		if decoded.cipherSuites[i] != cs {
			t.Fatalf("unexpected cipher suites: %v", decoded.cipherSuites)
		}
	}
}

func TestHelloVerifyRequestRoundTrip(t *testing.T) {
	hv := helloVerifyRequest{cookie: []byte("statelesscookie")}
	decoded, err := decodeHelloVerifyRequest(encodeHelloVerifyRequest(hv))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(decoded.cookie, hv.cookie) {
		t.Fatal("cookie mismatch")
	}
}

func TestHandshakeHeaderRoundTrip(t *testing.T) {
	h := handshakeHeader{msgType: HandshakeFinished, length: 32, messageSeq: 3, fragmentOffset: 0, fragmentLength: 32}
	decoded, err := decodeHandshakeHeader(encodeHandshakeHeader(h))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, h)
	}
}

func TestCookieSecretVerify(t *testing.T) {
	secret, err := newCookieSecret()
	if err != nil {
		t.Fatalf("newCookieSecret: %v", err)
	}
	var random [32]byte
	copy(random[:], []byte("abcdefghijklmnopqrstuvwxyzABCDEF"))

	cookie := secret.generate("203.0.113.5:1234", random)
	if !secret.verify("203.0.113.5:1234", random, cookie) {
		t.Fatal("expected cookie to verify for the same address/random")
	}
	if secret.verify("203.0.113.6:1234", random, cookie) {
		t.Fatal("expected cookie to fail verification for a different address")
	}
}
