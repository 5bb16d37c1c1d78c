package sctp

import "encoding/binary"

// Error cause codes, RFC 4960 §3.3.10. Only the cause this association
// ever emits is named: a COOKIE_ECHO whose state cookie failed HMAC
// verification or fell outside its validity window.
const errorCauseStaleCookie uint16 = 3

const errorCauseHeaderSize = 4 // cause code(2) + cause length(2)

// encodeErrorChunk builds an ERROR chunk carrying a single cause, RFC 4960
// §3.3.10. This profile never reports more than one cause per chunk and
// never attaches cause-specific information beyond the code itself.
func encodeErrorChunk(cause uint16) chunk {
	body := make([]byte, errorCauseHeaderSize)
	binary.BigEndian.PutUint16(body[0:2], cause)
	binary.BigEndian.PutUint16(body[2:4], errorCauseHeaderSize)
	return chunk{typ: ChunkError, body: body}
}
