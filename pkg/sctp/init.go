package sctp

import "encoding/binary"

const initChunkFixedSize = 16 // initiate tag(4) + a_rwnd(4) + outbound streams(2) + inbound streams(2) + initial TSN(4)

// initParams is the fixed portion of an INIT/INIT_ACK chunk, RFC 4960
// §3.3.2/§3.3.3. Optional parameters (state cookie, unrecognized-parameter
// lists) are handled separately since only INIT_ACK carries a cookie.
type initParams struct {
	initiateTag       uint32
	advertisedWindow  uint32
	outboundStreams   uint16
	inboundStreams    uint16
	initialTSN        uint32
}

func encodeInitParams(p initParams) []byte {
	buf := make([]byte, initChunkFixedSize)
	binary.BigEndian.PutUint32(buf[0:4], p.initiateTag)
	binary.BigEndian.PutUint32(buf[4:8], p.advertisedWindow)
	binary.BigEndian.PutUint16(buf[8:10], p.outboundStreams)
	binary.BigEndian.PutUint16(buf[10:12], p.inboundStreams)
	binary.BigEndian.PutUint32(buf[12:16], p.initialTSN)
	return buf
}

func decodeInitParams(data []byte) (initParams, error) {
	if len(data) < initChunkFixedSize {
		return initParams{}, ErrInvalidChunk
	}
	return initParams{
		initiateTag:      binary.BigEndian.Uint32(data[0:4]),
		advertisedWindow: binary.BigEndian.Uint32(data[4:8]),
		outboundStreams:  binary.BigEndian.Uint16(data[8:10]),
		inboundStreams:   binary.BigEndian.Uint16(data[10:12]),
		initialTSN:       binary.BigEndian.Uint32(data[12:16]),
	}, nil
}

// tlvParamType tags the one optional parameter this profile needs: the
// state cookie carried in INIT_ACK and echoed back in COOKIE_ECHO.
const paramStateCookie uint16 = 7

func encodeTLVParam(typ uint16, value []byte) []byte {
	length := 4 + len(value)
	padded := (length + 3) &^ 3
	buf := make([]byte, padded)
	binary.BigEndian.PutUint16(buf[0:2], typ)
	binary.BigEndian.PutUint16(buf[2:4], uint16(length))
	copy(buf[4:], value)
	return buf
}

func decodeTLVParam(data []byte) (typ uint16, value []byte, consumed int, err error) {
	if len(data) < 4 {
		return 0, nil, 0, ErrInvalidChunk
	}
	typ = binary.BigEndian.Uint16(data[0:2])
	length := int(binary.BigEndian.Uint16(data[2:4]))
	if length < 4 || len(data) < length {
		return 0, nil, 0, ErrInvalidChunk
	}
	value = append([]byte(nil), data[4:length]...)
	consumed = (length + 3) &^ 3
	return typ, value, consumed, nil
}
