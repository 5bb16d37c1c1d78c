package dtls

import (
	"bytes"
	"testing"
)

func TestRecordHeaderRoundTrip(t *testing.T) {
	h := recordHeader{contentType: ContentTypeApplicationData, version: dtlsVersion12, epoch: 1, sequenceNumber: 0xABCDEF, length: 42}
	encoded := encodeRecordHeader(h)
	if len(encoded) != recordHeaderSize {
		t.Fatalf("expected %d bytes, got %d", recordHeaderSize, len(encoded))
	}

	decoded, err := decodeRecordHeader(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, h)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	var key [gcmKeySize]byte
	var salt [gcmSaltSize]byte
	copy(key[:], []byte("0123456789abcdef"))
	copy(salt[:], []byte("wxyz"))

	aead, err := aeadFor(key)
	if err != nil {
		t.Fatalf("aeadFor: %v", err)
	}

	payload := []byte("hello sctp")
	record := sealRecord(aead, salt, ContentTypeApplicationData, 1, 7, payload)

	ct, epoch, seq, plain, err := openRecord(aead, salt, record)
	if err != nil {
		t.Fatalf("openRecord: %v", err)
	}
	if ct != ContentTypeApplicationData || epoch != 1 || seq != 7 {
		t.Fatalf("unexpected header fields: %v %v %v", ct, epoch, seq)
	}
	if !bytes.Equal(plain, payload) {
		t.Fatalf("plaintext mismatch: got %q want %q", plain, payload)
	}
}

func TestOpenRecordRejectsTamperedCiphertext(t *testing.T) {
	var key [gcmKeySize]byte
	var salt [gcmSaltSize]byte
	copy(key[:], []byte("0123456789abcdef"))

	aead, _ := aeadFor(key)
	record := sealRecord(aead, salt, ContentTypeApplicationData, 1, 0, []byte("payload"))
	record[len(record)-1] ^= 0xFF

	if _, _, _, _, err := openRecord(aead, salt, record); err != ErrDecryptFailed {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}
