package sctp

import (
	"bytes"
	"testing"
)

func TestChunkRoundTrip(t *testing.T) {
	c := chunk{typ: ChunkData, flags: 0x07, body: []byte("odd-length")}
	encoded := encodeChunk(c)
	if len(encoded)%4 != 0 {
		t.Fatalf("expected chunk padded to 4-byte boundary, got length %d", len(encoded))
	}

	decoded, consumed, err := decodeChunk(encoded)
	if err != nil {
		t.Fatalf("decodeChunk: %v", err)
	}
	if consumed != len(encoded) {
		t.Fatalf("expected to consume %d bytes, got %d", len(encoded), consumed)
	}
	if decoded.typ != c.typ || decoded.flags != c.flags || !bytes.Equal(decoded.body, c.body) {
		t.Fatalf("round trip mismatch: got %+v", decoded)
	}
}

func TestPacketRoundTripMultipleChunks(t *testing.T) {
	c1 := encodeInitChunk()
	c2 := chunk{typ: ChunkCookieAck}
	packet := encodePacket(0xDEADBEEF, c1, c2)

	h, chunks, err := decodePacket(packet)
	if err != nil {
		t.Fatalf("decodePacket: %v", err)
	}
	if h.verificationTag != 0xDEADBEEF {
		t.Fatalf("expected tag 0xDEADBEEF, got %x", h.verificationTag)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].typ != ChunkInit || chunks[1].typ != ChunkCookieAck {
		t.Fatalf("unexpected chunk order: %+v", chunks)
	}
}

func encodeInitChunk() chunk {
	return chunk{typ: ChunkInit, body: encodeInitParams(initParams{
		initiateTag: 1, advertisedWindow: 2, outboundStreams: 3, inboundStreams: 4, initialTSN: 5,
	})}
}

func TestInitParamsRoundTrip(t *testing.T) {
	p := initParams{initiateTag: 111, advertisedWindow: 222, outboundStreams: 3, inboundStreams: 4, initialTSN: 555}
	decoded, err := decodeInitParams(encodeInitParams(p))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != p {
		t.Fatalf("mismatch: got %+v want %+v", decoded, p)
	}
}

func TestTSNGreaterThanWraparound(t *testing.T) {
	if !tsnGreaterThan(1, 0xFFFFFFFF) {
		t.Fatal("expected TSN 1 to be greater than 0xFFFFFFFF across wraparound")
	}
	if tsnGreaterThan(0xFFFFFFFF, 1) {
		t.Fatal("expected 0xFFFFFFFF to not be greater than 1 across wraparound")
	}
	if tsnGreaterThan(5, 10) {
		t.Fatal("expected 5 to not be greater than 10 without wraparound")
	}
}
