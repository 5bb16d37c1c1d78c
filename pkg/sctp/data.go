package sctp

import "encoding/binary"

// DATA chunk flags, RFC 4960 §3.3.1. This association never fragments a
// user message (spec.md §4.4), so every DATA chunk it sends carries both
// the Beginning and Ending fragment bits set; it always sets Unordered
// since ordered delivery is out of scope entirely.
const (
	dataFlagEnd       byte = 0x01
	dataFlagBeginning byte = 0x02
	dataFlagUnordered byte = 0x04
)

const dataHeaderSize = 12 // TSN(4) + stream id(2) + stream seq(2) + PPID(4)

// dataChunk is one unreliable, unordered SCTP user message.
type dataChunk struct {
	tsn      uint32
	streamID uint16
	ppid     uint32
	payload  []byte
}

func encodeDataChunk(d dataChunk) chunk {
	body := make([]byte, dataHeaderSize+len(d.payload))
	binary.BigEndian.PutUint32(body[0:4], d.tsn)
	binary.BigEndian.PutUint16(body[4:6], d.streamID)
	// bytes 6:8 are the stream sequence number, always 0: unordered delivery
	// carries no meaningful sequence.
	binary.BigEndian.PutUint32(body[8:12], d.ppid)
	copy(body[dataHeaderSize:], d.payload)

	return chunk{
		typ:   ChunkData,
		flags: dataFlagBeginning | dataFlagEnd | dataFlagUnordered,
		body:  body,
	}
}

func decodeDataChunk(c chunk) (dataChunk, error) {
	if len(c.body) < dataHeaderSize {
		return dataChunk{}, ErrInvalidChunk
	}
	return dataChunk{
		tsn:      binary.BigEndian.Uint32(c.body[0:4]),
		streamID: binary.BigEndian.Uint16(c.body[4:6]),
		ppid:     binary.BigEndian.Uint32(c.body[8:12]),
		payload:  append([]byte(nil), c.body[dataHeaderSize:]...),
	}, nil
}

// tsnGreaterThan implements RFC 4960 §1.6's serial number arithmetic for
// comparing TSNs across the 32-bit wraparound boundary.
func tsnGreaterThan(a, b uint32) bool {
	return int32(a-b) > 0
}
