package sctp

import "encoding/binary"

// RE-CONFIG parameter types, RFC 6525 §4. Only outgoing-stream reset is
// implemented: spec.md §4.4 only needs a data channel's sender to be able
// to retire a stream ID, not renegotiate the association's stream counts.
const (
	paramOutgoingResetRequest uint16 = 13
	paramReconfigResponse     uint16 = 16
)

const resultSuccess uint32 = 1

// reconfigRequest asks the peer to stop expecting further DATA chunks on
// the listed streams, RFC 6525 §4.1.
type reconfigRequest struct {
	reqSeq    uint32
	streamIDs []uint16
}

func encodeReconfigRequest(r reconfigRequest) chunk {
	value := make([]byte, 12+2*len(r.streamIDs))
	binary.BigEndian.PutUint32(value[0:4], r.reqSeq)
	binary.BigEndian.PutUint32(value[4:8], 0) // response sequence, unused on a fresh request
	binary.BigEndian.PutUint32(value[8:12], 0) // sender's last assigned TSN, unused by this profile
	for i, id := range r.streamIDs {
		binary.BigEndian.PutUint16(value[12+2*i:], id)
	}
	body := encodeTLVParam(paramOutgoingResetRequest, value)
	return chunk{typ: ChunkReconfig, body: body}
}

func decodeReconfigRequest(c chunk) (reconfigRequest, error) {
	typ, value, _, err := decodeTLVParam(c.body)
	if err != nil {
		return reconfigRequest{}, err
	}
	if typ != paramOutgoingResetRequest || len(value) < 12 {
		return reconfigRequest{}, ErrInvalidChunk
	}
	r := reconfigRequest{reqSeq: binary.BigEndian.Uint32(value[0:4])}
	for i := 12; i+1 < len(value); i += 2 {
		r.streamIDs = append(r.streamIDs, binary.BigEndian.Uint16(value[i:]))
	}
	return r, nil
}

type reconfigResponse struct {
	reqSeq uint32
	result uint32
}

func encodeReconfigResponse(r reconfigResponse) chunk {
	value := make([]byte, 8)
	binary.BigEndian.PutUint32(value[0:4], r.reqSeq)
	binary.BigEndian.PutUint32(value[4:8], r.result)
	body := encodeTLVParam(paramReconfigResponse, value)
	return chunk{typ: ChunkReconfig, body: body}
}

func decodeReconfigResponse(c chunk) (reconfigResponse, error) {
	typ, value, _, err := decodeTLVParam(c.body)
	if err != nil {
		return reconfigResponse{}, err
	}
	if typ != paramReconfigResponse || len(value) < 8 {
		return reconfigResponse{}, ErrInvalidChunk
	}
	return reconfigResponse{
		reqSeq: binary.BigEndian.Uint32(value[0:4]),
		result: binary.BigEndian.Uint32(value[4:8]),
	}, nil
}
