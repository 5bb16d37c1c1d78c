package sctp

import "encoding/binary"

// ChunkType is the first byte of every SCTP chunk, RFC 4960 §3.2. Only the
// chunk types the reduced association actually sends or understands are
// named; anything else observed on the wire is silently ignored per RFC
// 4960's "unrecognized chunk" handling for chunk types whose high bits
// request that behavior, which covers all of these.
type ChunkType uint8

const (
	ChunkData             ChunkType = 0
	ChunkInit             ChunkType = 1
	ChunkInitAck          ChunkType = 2
	ChunkSack             ChunkType = 3
	ChunkAbort            ChunkType = 6
	ChunkShutdown         ChunkType = 7
	ChunkShutdownAck      ChunkType = 8
	ChunkError            ChunkType = 9
	ChunkCookieEcho       ChunkType = 10
	ChunkCookieAck        ChunkType = 11
	ChunkShutdownComplete ChunkType = 14
	ChunkReconfig         ChunkType = 130
)

const chunkHeaderSize = 4 // type(1) + flags(1) + length(2), RFC 4960 §3.2

// PacketMTU is the largest user payload Send accepts in one DATA chunk; the
// SCTP and DTLS headers come on top of it, spec.md
// §4.4 ("a single, association-wide 1200 byte MTU; larger payloads fail
// closed rather than fragment").
const PacketMTU = 1200

const commonHeaderSize = 12 // src port(2) + dst port(2) + verification tag(4) + checksum(4)

// commonHeader is RFC 4960 §3.1's fixed packet header. Ports are always 0:
// this association identifies itself purely by verification tag, since the
// underlying DTLS connection already provides the addressing SCTP's ports
// would otherwise disambiguate.
type commonHeader struct {
	verificationTag uint32
	checksum        uint32
}

func encodeCommonHeader(h commonHeader) []byte {
	buf := make([]byte, commonHeaderSize)
	binary.BigEndian.PutUint32(buf[4:8], h.verificationTag)
	binary.BigEndian.PutUint32(buf[8:12], h.checksum)
	return buf
}

func decodeCommonHeader(data []byte) (commonHeader, error) {
	if len(data) < commonHeaderSize {
		return commonHeader{}, ErrInvalidChunk
	}
	return commonHeader{
		verificationTag: binary.BigEndian.Uint32(data[4:8]),
		checksum:        binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// chunk is a decoded, generic SCTP chunk: type, flags, and body. Encoding
// pads the body to a 4-byte boundary as RFC 4960 §3.2 requires.
type chunk struct {
	typ   ChunkType
	flags byte
	body  []byte
}

func encodeChunk(c chunk) []byte {
	length := chunkHeaderSize + len(c.body)
	padded := (length + 3) &^ 3
	buf := make([]byte, padded)
	buf[0] = byte(c.typ)
	buf[1] = c.flags
	binary.BigEndian.PutUint16(buf[2:4], uint16(length))
	copy(buf[chunkHeaderSize:], c.body)
	return buf
}

func decodeChunk(data []byte) (chunk, int, error) {
	if len(data) < chunkHeaderSize {
		return chunk{}, 0, ErrInvalidChunk
	}
	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < chunkHeaderSize || len(data) < length {
		return chunk{}, 0, ErrInvalidChunk
	}
	c := chunk{
		typ:   ChunkType(data[0]),
		flags: data[1],
		body:  append([]byte(nil), data[chunkHeaderSize:length]...),
	}
	padded := (length + 3) &^ 3
	return c, padded, nil
}

// encodePacket assembles a full SCTP packet: common header followed by one
// or more chunks. This association never bundles more than the handshake
// naturally produces, so callers pass exactly the chunks for one send.
func encodePacket(tag uint32, chunks ...chunk) []byte {
	out := encodeCommonHeader(commonHeader{verificationTag: tag})
	for _, c := range chunks {
		out = append(out, encodeChunk(c)...)
	}
	return out
}

// decodePacket splits a wire packet into its header and constituent chunks.
func decodePacket(data []byte) (commonHeader, []chunk, error) {
	h, err := decodeCommonHeader(data)
	if err != nil {
		return commonHeader{}, nil, err
	}
	rest := data[commonHeaderSize:]
	var chunks []chunk
	for len(rest) > 0 {
		c, consumed, err := decodeChunk(rest)
		if err != nil {
			return commonHeader{}, nil, err
		}
		chunks = append(chunks, c)
		rest = rest[consumed:]
	}
	return h, chunks, nil
}
