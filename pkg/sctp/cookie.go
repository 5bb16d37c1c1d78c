package sctp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"time"
)

// cookieValidity is the state cookie's acceptance window, spec.md §4.4
// ("state cookie carries a 4-byte timestamp and a 20-byte HMAC-SHA1; a
// COOKIE_ECHO arriving more than 60 seconds after the cookie was minted is
// rejected").
const cookieValidity = 60 * time.Second

const cookieContextSize = 16 // initiateTag(4) + peerTag(4) + initialTSN(4) + peerInitialTSN(4)
const cookieMACSize = 20     // HMAC-SHA1 output

// stateCookieSecret signs cookies without the server needing to remember
// anything about a half-open association, mirroring pkg/dtls's cookie
// scheme (RFC 6347 §4.2.1's stateless-cookie idea, reused here for SCTP's
// own 4-way handshake, RFC 4960 §5.1.3).
type stateCookieSecret [32]byte

func newStateCookieSecret() (stateCookieSecret, error) {
	var s stateCookieSecret
	_, err := rand.Read(s[:])
	return s, err
}

// cookieContext is the association parameters a state cookie must carry so
// the responder can reconstruct the association purely from the returned
// cookie, without server-side storage between INIT_ACK and COOKIE_ECHO.
type cookieContext struct {
	initiateTag     uint32 // this side's verification tag, sent to the peer
	peerTag         uint32 // the peer's verification tag, from its INIT
	initialTSN      uint32
	peerInitialTSN  uint32
}

func (s stateCookieSecret) mint(now time.Time, ctx cookieContext) []byte {
	body := make([]byte, 4+cookieContextSize)
	binary.BigEndian.PutUint32(body[0:4], uint32(now.Unix()))
	binary.BigEndian.PutUint32(body[4:8], ctx.initiateTag)
	binary.BigEndian.PutUint32(body[8:12], ctx.peerTag)
	binary.BigEndian.PutUint32(body[12:16], ctx.initialTSN)
	binary.BigEndian.PutUint32(body[16:20], ctx.peerInitialTSN)

	mac := hmac.New(sha1.New, s[:])
	mac.Write(body)
	return append(body, mac.Sum(nil)...)
}

func (s stateCookieSecret) verify(now time.Time, cookie []byte) (cookieContext, error) {
	if len(cookie) != 4+cookieContextSize+cookieMACSize {
		return cookieContext{}, ErrCookieInvalid
	}
	body, mac := cookie[:4+cookieContextSize], cookie[4+cookieContextSize:]

	want := hmac.New(sha1.New, s[:])
	want.Write(body)
	if !hmac.Equal(want.Sum(nil), mac) {
		return cookieContext{}, ErrCookieInvalid
	}

	minted := time.Unix(int64(binary.BigEndian.Uint32(body[0:4])), 0)
	if now.Sub(minted) > cookieValidity || minted.After(now.Add(time.Minute)) {
		return cookieContext{}, ErrCookieStale
	}

	return cookieContext{
		initiateTag:    binary.BigEndian.Uint32(body[4:8]),
		peerTag:        binary.BigEndian.Uint32(body[8:12]),
		initialTSN:     binary.BigEndian.Uint32(body[12:16]),
		peerInitialTSN: binary.BigEndian.Uint32(body[16:20]),
	}, nil
}
