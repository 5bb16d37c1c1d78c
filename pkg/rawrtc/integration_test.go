package rawrtc

import (
	"sync"
	"testing"
	"time"

	"github.com/rawrtc/rawrtc/pkg/ice"
)

// waitFor polls cond until it is true or the timeout elapses, failing the
// test otherwise. ICE connectivity checks and the DTLS/SCTP handshakes
// above them run on their own goroutines/timers, so tests observe them
// this way rather than blocking on a channel that does not exist yet.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// newLoopbackPC configures a PeerConnection to gather host candidates on
// the loopback interface, since a typical sandboxed test environment has
// no other interface up, spec.md §8 scenario 1.
func newLoopbackPC(t *testing.T) *PeerConnection {
	t.Helper()
	pc, err := New(Configuration{ICEAdditionalHostAddrs: []string{"lo", "lo0"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func negotiate(t *testing.T, offerer, answerer *PeerConnection) {
	t.Helper()

	waitFor(t, 2*time.Second, "offerer gathering complete", func() bool {
		return offerer.iceAgent.GatheringState() == ice.GatheringStateComplete
	})
	waitFor(t, 2*time.Second, "answerer gathering complete", func() bool {
		return answerer.iceAgent.GatheringState() == ice.GatheringStateComplete
	})

	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if err := offerer.SetLocalDescription(offer); err != nil {
		t.Fatalf("offerer SetLocalDescription: %v", err)
	}
	if err := answerer.SetRemoteDescription(offer); err != nil {
		t.Fatalf("answerer SetRemoteDescription: %v", err)
	}

	answer, err := answerer.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := answerer.SetLocalDescription(answer); err != nil {
		t.Fatalf("answerer SetLocalDescription: %v", err)
	}
	if err := offerer.SetRemoteDescription(answer); err != nil {
		t.Fatalf("offerer SetRemoteDescription: %v", err)
	}
}

// TestLoopbackDataChannelExchange drives two PeerConnections through a full
// offer/answer exchange over real loopback UDP sockets, waits for the data
// channel to open on both ends, and exchanges one message each way,
// spec.md §8 scenario 1.
func TestLoopbackDataChannelExchange(t *testing.T) {
	offerer := newLoopbackPC(t)
	answerer := newLoopbackPC(t)

	var mu sync.Mutex
	var remoteChannel *DataChannel
	answerer.OnDataChannel(func(d *DataChannel) {
		mu.Lock()
		remoteChannel = d
		mu.Unlock()
	})

	negotiate(t, offerer, answerer)

	waitFor(t, 5*time.Second, "offerer connected", func() bool {
		return offerer.ConnectionState() == ConnectionStateConnected
	})
	waitFor(t, 5*time.Second, "answerer connected", func() bool {
		return answerer.ConnectionState() == ConnectionStateConnected
	})

	local, err := offerer.CreateDataChannel("chat", DataChannelInit{})
	if err != nil {
		t.Fatalf("CreateDataChannel: %v", err)
	}

	waitFor(t, 2*time.Second, "answerer datachannel callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return remoteChannel != nil
	})

	mu.Lock()
	remote := remoteChannel
	mu.Unlock()
	if remote.Label() != "chat" {
		t.Fatalf("remote label = %q, want %q", remote.Label(), "chat")
	}

	var received []byte
	var recvMu sync.Mutex
	remote.OnMessage(func(data []byte) {
		recvMu.Lock()
		received = append([]byte(nil), data...)
		recvMu.Unlock()
	})

	if err := local.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, 2*time.Second, "message delivery", func() bool {
		recvMu.Lock()
		defer recvMu.Unlock()
		return string(received) == "hello"
	})

	var backAtLocal []byte
	var backMu sync.Mutex
	local.OnMessage(func(data []byte) {
		backMu.Lock()
		backAtLocal = append([]byte(nil), data...)
		backMu.Unlock()
	})
	if err := remote.Send([]byte("world")); err != nil {
		t.Fatalf("reply Send: %v", err)
	}
	waitFor(t, 2*time.Second, "reply delivery", func() bool {
		backMu.Lock()
		defer backMu.Unlock()
		return string(backAtLocal) == "world"
	})
}

// TestLoopbackGracefulClose covers spec.md §8 scenario 6: closing one side
// tears its own stack down without hanging, and the connection can be
// closed twice safely.
func TestLoopbackGracefulClose(t *testing.T) {
	offerer := newLoopbackPC(t)
	answerer := newLoopbackPC(t)

	negotiate(t, offerer, answerer)

	waitFor(t, 5*time.Second, "offerer connected", func() bool {
		return offerer.ConnectionState() == ConnectionStateConnected
	})

	if err := offerer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := offerer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := offerer.SignalingState(); got != SignalingStateClosed {
		t.Fatalf("signaling state = %v, want closed", got)
	}
	if got := offerer.ConnectionState(); got != ConnectionStateClosed {
		t.Fatalf("connection state = %v, want closed", got)
	}
}
