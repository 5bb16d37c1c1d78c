package dtls

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
)

// cookieSecret is generated once per listening agent and used to produce
// stateless HelloVerifyRequest cookies, RFC 6347 §4.2.1: the server does
// not need to remember anything about a ClientHello until the client
// proves it can receive traffic at its claimed source address by echoing
// the cookie back.
type cookieSecret [32]byte

func newCookieSecret() (cookieSecret, error) {
	var s cookieSecret
	_, err := rand.Read(s[:])
	return s, err
}

// generate derives a cookie from the client's address and its ClientHello
// random, so a fresh cookie is produced per (address, hello) pair without
// server-side state.
func (s cookieSecret) generate(clientAddr string, random [32]byte) []byte {
	mac := hmac.New(sha256.New, s[:])
	mac.Write([]byte(clientAddr))
	mac.Write(random[:])
	return mac.Sum(nil)
}

func (s cookieSecret) verify(clientAddr string, random [32]byte, cookie []byte) bool {
	want := s.generate(clientAddr, random)
	return hmac.Equal(want, cookie)
}
