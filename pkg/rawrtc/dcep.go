package rawrtc

import (
	"encoding/binary"
	"errors"
)

// Payload-protocol identifiers registered for WebRTC data channels
// (RFC 8832 §8). dcepControlPPID carries channel-open/-ack control
// messages; dataChannelPPID carries every user payload, since spec.md
// §1 restricts channels to opaque byte buffers regardless of how the
// application labels its data ("string" vs "binary").
const (
	dcepControlPPID uint32 = 50
	dataChannelPPID uint32 = 53
)

const (
	dcepMsgTypeAck  byte = 0x02
	dcepMsgTypeOpen byte = 0x03

	// channelTypePartialReliableRexmitUnordered is RFC 8832's
	// DATA_CHANNEL_PARTIAL_RELIABLE_REXMIT_UNORDERED, the DCEP encoding
	// for an {ordered:false, maxRetransmits:0} channel. Paired with a
	// reliability parameter of 0 below, this is the standard wire
	// representation of the unordered, zero-retransmit delivery this
	// transport actually provides.
	channelTypePartialReliableRexmitUnordered byte = 0x81

	dcepOpenFixedSize = 12
)

var errMalformedDCEP = errors.New("rawrtc: malformed DCEP message")

// encodeDCEPOpen builds a RFC 8832 §5.1 DATA_CHANNEL_OPEN message.
// Priority and the reliability parameter are always zero: this profile
// has no priority scheduling and no reliability tuning to advertise.
func encodeDCEPOpen(label string) []byte {
	labelBytes := []byte(label)
	buf := make([]byte, dcepOpenFixedSize+len(labelBytes))
	buf[0] = dcepMsgTypeOpen
	buf[1] = channelTypePartialReliableRexmitUnordered
	binary.BigEndian.PutUint16(buf[2:4], 0) // priority
	binary.BigEndian.PutUint32(buf[4:8], 0) // reliability parameter: max retransmits fixed at 0
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(labelBytes)))
	binary.BigEndian.PutUint16(buf[10:12], 0) // protocol length
	copy(buf[dcepOpenFixedSize:], labelBytes)
	return buf
}

func decodeDCEPOpen(body []byte) (label string, err error) {
	if len(body) < dcepOpenFixedSize || body[0] != dcepMsgTypeOpen {
		return "", errMalformedDCEP
	}
	labelLen := int(binary.BigEndian.Uint16(body[8:10]))
	protoLen := int(binary.BigEndian.Uint16(body[10:12]))
	if len(body) < dcepOpenFixedSize+labelLen+protoLen {
		return "", errMalformedDCEP
	}
	label = string(body[dcepOpenFixedSize : dcepOpenFixedSize+labelLen])
	return label, nil
}

func encodeDCEPAck() []byte {
	return []byte{dcepMsgTypeAck}
}

func isDCEPAck(body []byte) bool {
	return len(body) == 1 && body[0] == dcepMsgTypeAck
}
