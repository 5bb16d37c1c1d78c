package sctp

import (
	"encoding/binary"
	"testing"
	"time"
)

func loopbackAssociations(t *testing.T, initiator, acceptor *Association) {
	t.Helper()
	initiator.config.Send = func(data []byte) (int, error) {
		if err := acceptor.HandleIncoming(data); err != nil {
			t.Logf("acceptor HandleIncoming: %v", err)
		}
		return len(data), nil
	}
	acceptor.config.Send = func(data []byte) (int, error) {
		if err := initiator.HandleIncoming(data); err != nil {
			t.Logf("initiator HandleIncoming: %v", err)
		}
		return len(data), nil
	}
}

func TestAssociationHandshakeCompletes(t *testing.T) {
	initiator, err := New(Config{Role: RoleInitiator})
	if err != nil {
		t.Fatalf("New initiator: %v", err)
	}
	acceptor, err := New(Config{Role: RoleAcceptor})
	if err != nil {
		t.Fatalf("New acceptor: %v", err)
	}
	loopbackAssociations(t, initiator, acceptor)

	if err := initiator.Associate(); err != nil {
		t.Fatalf("Associate: %v", err)
	}

	if initiator.State() != StateEstablished {
		t.Fatalf("expected initiator StateEstablished, got %v", initiator.State())
	}
	if acceptor.State() != StateEstablished {
		t.Fatalf("expected acceptor StateEstablished, got %v", acceptor.State())
	}
}

func TestUnreliableDataDeliveryAfterHandshake(t *testing.T) {
	initiator, _ := New(Config{Role: RoleInitiator})
	acceptor, _ := New(Config{Role: RoleAcceptor})
	loopbackAssociations(t, initiator, acceptor)

	if err := initiator.Associate(); err != nil {
		t.Fatalf("Associate: %v", err)
	}

	var gotStream uint16
	var gotPayload []byte
	acceptor.OnData(func(streamID uint16, ppid uint32, payload []byte) {
		gotStream = streamID
		gotPayload = payload
	})

	streamID, err := initiator.OpenStream(51)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if _, err := initiator.Send(streamID, 51, []byte("channel payload")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotStream != streamID || string(gotPayload) != "channel payload" {
		t.Fatalf("unexpected delivery: stream=%d payload=%q", gotStream, gotPayload)
	}
}

func TestSendAcceptsExactlyMTUAndRejectsOneByteOver(t *testing.T) {
	initiator, _ := New(Config{Role: RoleInitiator})
	acceptor, _ := New(Config{Role: RoleAcceptor})
	loopbackAssociations(t, initiator, acceptor)
	_ = initiator.Associate()

	streamID, _ := initiator.OpenStream(1)

	atMTU := make([]byte, PacketMTU)
	if _, err := initiator.Send(streamID, 1, atMTU); err != nil {
		t.Fatalf("expected a %d-byte payload to succeed, got %v", PacketMTU, err)
	}

	overMTU := make([]byte, PacketMTU+1)
	if _, err := initiator.Send(streamID, 1, overMTU); err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge for a %d-byte payload, got %v", PacketMTU+1, err)
	}
}

func TestSendBeforeEstablishedFails(t *testing.T) {
	initiator, _ := New(Config{Role: RoleInitiator})
	if _, err := initiator.Send(0, 1, []byte("x")); err != ErrNotEstablished {
		t.Fatalf("expected ErrNotEstablished, got %v", err)
	}
}

func TestCloseStreamNotifiesPeer(t *testing.T) {
	initiator, _ := New(Config{Role: RoleInitiator})
	acceptor, _ := New(Config{Role: RoleAcceptor})
	loopbackAssociations(t, initiator, acceptor)
	_ = initiator.Associate()

	streamID, _ := initiator.OpenStream(1)
	_, _ = initiator.Send(streamID, 1, []byte("hi"))

	var resetStream uint16
	acceptor.OnStreamReset(func(id uint16) { resetStream = id })

	if err := initiator.CloseStream(streamID); err != nil {
		t.Fatalf("CloseStream: %v", err)
	}
	if resetStream != streamID {
		t.Fatalf("expected acceptor to observe reset of stream %d, got %d", streamID, resetStream)
	}

	state, ok := initiator.streams.State(streamID)
	if !ok {
		// No entry left to check. The RE-CONFIG response does not remove
		// the sender's entry, so after CloseStream it is normally still
		// present and in StreamResetting.
		return
	}
	if state != StreamResetting {
		t.Fatalf("unexpected local stream state after close: %v", state)
	}
}

// TestOutOfOrderTSNsAdvanceCumulativePrefixOnly exercises Testable
// Invariant #2: the cumulative TSN point only ever advances to the end of
// the contiguous run of TSNs actually seen, even when chunks arrive out
// of order.
func TestOutOfOrderTSNsAdvanceCumulativePrefixOnly(t *testing.T) {
	initiator, _ := New(Config{Role: RoleInitiator})
	acceptor, _ := New(Config{Role: RoleAcceptor})
	loopbackAssociations(t, initiator, acceptor)
	_ = initiator.Associate()

	streamID, _ := initiator.OpenStream(1)
	base := acceptor.peerInitTSN

	deliver := func(tsn uint32) {
		t.Helper()
		d := encodeDataChunk(dataChunk{tsn: tsn, streamID: streamID, ppid: 1, payload: []byte("x")})
		packet := encodePacket(acceptor.myTag, d)
		if err := acceptor.HandleIncoming(packet); err != nil {
			t.Fatalf("HandleIncoming(tsn=%d): %v", tsn, err)
		}
	}

	if got := acceptor.CumulativeTSN(); got != base-1 {
		t.Fatalf("expected initial cumulative TSN %d, got %d", base-1, got)
	}

	// base+1 arrives first, leaving a gap at base.
	deliver(base + 1)
	if got := acceptor.CumulativeTSN(); got != base-1 {
		t.Fatalf("expected cumulative TSN to stay at %d with base unseen, got %d", base-1, got)
	}

	// base fills the gap, folding base+1 in behind it.
	deliver(base)
	if got := acceptor.CumulativeTSN(); got != base+1 {
		t.Fatalf("expected cumulative TSN %d once the gap closed, got %d", base+1, got)
	}

	// A duplicate of an already-covered TSN must not move the point.
	deliver(base)
	if got := acceptor.CumulativeTSN(); got != base+1 {
		t.Fatalf("expected cumulative TSN unchanged by a duplicate, got %d", got)
	}
}

func TestGracefulShutdownClosesBothSides(t *testing.T) {
	initiator, _ := New(Config{Role: RoleInitiator})
	acceptor, _ := New(Config{Role: RoleAcceptor})
	loopbackAssociations(t, initiator, acceptor)
	_ = initiator.Associate()

	if initiator.State() != StateEstablished || acceptor.State() != StateEstablished {
		t.Fatalf("handshake did not complete: initiator=%v acceptor=%v", initiator.State(), acceptor.State())
	}

	if err := initiator.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if initiator.State() != StateClosed {
		t.Fatalf("expected initiator StateClosed, got %v", initiator.State())
	}
	if acceptor.State() != StateClosed {
		t.Fatalf("expected acceptor StateClosed, got %v", acceptor.State())
	}
}

// TestCookieEchoWithStaleCookieEmitsErrorChunk exercises a fake client
// replaying a COOKIE_ECHO whose cookie timestamp is well outside the
// validity window: the acceptor must answer with an ERROR chunk carrying
// the stale-cookie cause and must never reach StateEstablished.
func TestCookieEchoWithStaleCookieEmitsErrorChunk(t *testing.T) {
	acceptor, err := New(Config{Role: RoleAcceptor})
	if err != nil {
		t.Fatalf("New acceptor: %v", err)
	}

	var sent []byte
	acceptor.config.Send = func(data []byte) (int, error) {
		sent = data
		return len(data), nil
	}

	stale := acceptor.cookieSecret.mint(time.Now().Add(-120*time.Second), cookieContext{
		initiateTag:    acceptor.myTag,
		peerTag:        0xdeadbeef,
		initialTSN:     1,
		peerInitialTSN: 1,
	})

	packet := encodePacket(acceptor.myTag, chunk{typ: ChunkCookieEcho, body: stale})
	if err := acceptor.HandleIncoming(packet); err != ErrCookieStale {
		t.Fatalf("expected ErrCookieStale, got %v", err)
	}
	if acceptor.State() == StateEstablished {
		t.Fatal("association must not reach Established on a stale cookie")
	}

	_, chunks, err := decodePacket(sent)
	if err != nil {
		t.Fatalf("decodePacket(sent): %v", err)
	}
	if len(chunks) != 1 || chunks[0].typ != ChunkError {
		t.Fatalf("expected a single ERROR chunk in response, got %+v", chunks)
	}
	cause := binary.BigEndian.Uint16(chunks[0].body[0:2])
	if cause != errorCauseStaleCookie {
		t.Fatalf("expected stale cookie cause %d, got %d", errorCauseStaleCookie, cause)
	}
}
