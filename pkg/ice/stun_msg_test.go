package ice

import (
	"net"
	"testing"

	"github.com/pion/stun/v3"
)

func TestBindingRequestRoundTrip(t *testing.T) {
	req, err := buildBindingRequest("localfrag", "remotefrag", "remotepwd", 12345, RoleControlling, 999, true)
	if err != nil {
		t.Fatalf("buildBindingRequest: %v", err)
	}

	decoded := &stun.Message{Raw: append([]byte(nil), req.Raw...)}
	if err := decoded.Decode(); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != stun.BindingRequest {
		t.Fatalf("expected BindingRequest, got %v", decoded.Type)
	}

	priority, ok := decodeUint32Attr(decoded, attrPriority)
	if !ok || priority != 12345 {
		t.Fatalf("expected priority 12345, got %d ok=%v", priority, ok)
	}

	tb, ok := decodeUint64Attr(decoded, attrICEControlling)
	if !ok || tb != 999 {
		t.Fatalf("expected tie-breaker 999, got %d ok=%v", tb, ok)
	}
	if _, err := decoded.Get(attrUseCandidate); err != nil {
		t.Fatal("expected USE-CANDIDATE attribute present")
	}
}

func TestBindingSuccessRoundTrip(t *testing.T) {
	req, err := stun.Build(stun.BindingRequest, stun.TransactionID)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Encode()

	mapped := &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 4321}
	resp, err := buildBindingSuccess(req, mapped, "pwd")
	if err != nil {
		t.Fatalf("buildBindingSuccess: %v", err)
	}

	decoded := &stun.Message{Raw: append([]byte(nil), resp.Raw...)}
	if err := decoded.Decode(); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.TransactionID != req.TransactionID {
		t.Fatal("expected transaction ID to be echoed")
	}

	var xor stun.XORMappedAddress
	if err := xor.GetFrom(decoded); err != nil {
		t.Fatalf("GetFrom: %v", err)
	}
	if xor.Port != 4321 || !xor.IP.Equal(mapped.IP) {
		t.Fatalf("unexpected mapped address %v:%d", xor.IP, xor.Port)
	}
}

func TestIsStunPacket(t *testing.T) {
	req, _ := stun.Build(stun.BindingRequest, stun.TransactionID)
	req.Encode()
	if !isStunPacket(req.Raw) {
		t.Fatal("expected STUN packet to be classified as STUN")
	}
	dtlsLike := []byte{22, 0xfe, 0xfd}
	dtlsLike = append(dtlsLike, make([]byte, 20)...)
	if isStunPacket(dtlsLike) {
		t.Fatal("DTLS-shaped datagram misclassified as STUN")
	}
}
