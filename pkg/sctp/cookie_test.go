package sctp

import (
	"testing"
	"time"
)

func TestCookieRoundTrip(t *testing.T) {
	secret, err := newStateCookieSecret()
	if err != nil {
		t.Fatalf("newStateCookieSecret: %v", err)
	}
	now := time.Unix(1000000, 0)
	ctx := cookieContext{initiateTag: 1, peerTag: 2, initialTSN: 3, peerInitialTSN: 4}
	cookie := secret.mint(now, ctx)

	decoded, err := secret.verify(now.Add(30*time.Second), cookie)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if decoded != ctx {
		t.Fatalf("mismatch: got %+v want %+v", decoded, ctx)
	}
}

func TestCookieRejectsStale(t *testing.T) {
	secret, _ := newStateCookieSecret()
	now := time.Unix(1000000, 0)
	cookie := secret.mint(now, cookieContext{})

	if _, err := secret.verify(now.Add(90*time.Second), cookie); err != ErrCookieStale {
		t.Fatalf("expected ErrCookieStale, got %v", err)
	}
}

func TestCookieRejectsTamperedMAC(t *testing.T) {
	secret, _ := newStateCookieSecret()
	now := time.Unix(1000000, 0)
	cookie := secret.mint(now, cookieContext{initiateTag: 9})
	cookie[len(cookie)-1] ^= 0xFF

	if _, err := secret.verify(now, cookie); err != ErrCookieInvalid {
		t.Fatalf("expected ErrCookieInvalid, got %v", err)
	}
}

func TestCookieRejectsWrongSecret(t *testing.T) {
	secretA, _ := newStateCookieSecret()
	secretB, _ := newStateCookieSecret()
	now := time.Unix(1000000, 0)
	cookie := secretA.mint(now, cookieContext{initiateTag: 1})

	if _, err := secretB.verify(now, cookie); err != ErrCookieInvalid {
		t.Fatalf("expected ErrCookieInvalid across different secrets, got %v", err)
	}
}
