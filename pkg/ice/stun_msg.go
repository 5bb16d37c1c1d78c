package ice

import (
	"net"
	"strconv"

	"github.com/pion/stun/v3"
)

// ICE-specific STUN attributes, RFC 5245 §19.1. pion/stun/v3 supplies the
// generic message codec; these codepoints are ICE's, not STUN core's, so
// they are declared here rather than pulled from pion/ice.
const (
	attrPriority       stun.AttrType = 0x0024
	attrUseCandidate   stun.AttrType = 0x0025
	attrICEControlled  stun.AttrType = 0x8029
	attrICEControlling stun.AttrType = 0x802A
)

// stunMagicCookie is the fixed value RFC 5389 places at bytes 4:8 of every
// STUN message. The top two bits of byte 0 being zero (RFC 5389 §6) is
// necessary but not sufficient to identify STUN on this wire, since DTLS
// content types 20-63 (spec.md §2.3) occupy the same range; the magic
// cookie is what actually disambiguates the two.
var stunMagicCookie = [4]byte{0x21, 0x12, 0xA4, 0x42}

func isStunPacket(data []byte) bool {
	if len(data) < 20 || data[0]&0xC0 != 0 {
		return false
	}
	for i, b := range stunMagicCookie {
		if data[4+i] != b {
			return false
		}
	}
	return true
}

func encodeUint32Attr(m *stun.Message, t stun.AttrType, v uint32) {
	b := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	m.Add(t, b)
}

func decodeUint32Attr(m *stun.Message, t stun.AttrType) (uint32, bool) {
	v, err := m.Get(t)
	if err != nil || len(v) != 4 {
		return 0, false
	}
	return uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3]), true
}

func decodeUint64Attr(m *stun.Message, t stun.AttrType) (uint64, bool) {
	v, err := m.Get(t)
	if err != nil || len(v) != 8 {
		return 0, false
	}
	var out uint64
	for i := 0; i < 8; i++ {
		out = out<<8 | uint64(v[i])
	}
	return out, true
}

func encodeUint64Attr(m *stun.Message, t stun.AttrType, v uint64) {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
	m.Add(t, b)
}

// buildBindingRequest constructs an ICE connectivity-check Binding request,
// spec.md §4.2: "MESSAGE-INTEGRITY keyed with the peer's password and, for
// controlling side, includes USE-CANDIDATE".
func buildBindingRequest(localUfrag, remoteUfrag, remotePwd string, priority uint32, role Role, tieBreaker uint64, useCandidate bool) (*stun.Message, error) {
	m, err := stun.Build(stun.BindingRequest, stun.TransactionID,
		stun.NewUsername(remoteUfrag+":"+localUfrag))
	if err != nil {
		return nil, err
	}

	encodeUint32Attr(m, attrPriority, priority)
	if role == RoleControlling {
		encodeUint64Attr(m, attrICEControlling, tieBreaker)
		if useCandidate {
			m.Add(attrUseCandidate, []byte{})
		}
	} else {
		encodeUint64Attr(m, attrICEControlled, tieBreaker)
	}

	if err := stun.NewShortTermIntegrity(remotePwd).AddTo(m); err != nil {
		return nil, err
	}
	if err := stun.Fingerprint.AddTo(m); err != nil {
		return nil, err
	}
	m.Encode()
	return m, nil
}

// buildBindingSuccess constructs the response to an inbound Binding
// request, echoing the transaction ID and reflecting the sender's address.
func buildBindingSuccess(req *stun.Message, mapped net.Addr, localPwd string) (*stun.Message, error) {
	udpAddr, ok := mapped.(*net.UDPAddr)
	if !ok {
		host, port, err := splitHostPort(mapped.String())
		if err != nil {
			return nil, err
		}
		udpAddr = &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	}

	m := &stun.Message{
		Type:          stun.BindingSuccess,
		TransactionID: req.TransactionID,
	}
	if err := (&stun.XORMappedAddress{IP: udpAddr.IP, Port: udpAddr.Port}).AddTo(m); err != nil {
		return nil, err
	}
	if err := stun.NewShortTermIntegrity(localPwd).AddTo(m); err != nil {
		return nil, err
	}
	if err := stun.Fingerprint.AddTo(m); err != nil {
		return nil, err
	}
	m.Encode()
	return m, nil
}

func splitHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	return host, port, err
}
