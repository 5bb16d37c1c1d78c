package dtls

import (
	"encoding/binary"
	"errors"
)

// ContentType is the DTLS record's first byte, spec.md §2.3's
// demultiplexing range (20-63) is exactly this field's legal values.
type ContentType uint8

const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

const recordHeaderSize = 13 // type(1) + version(2) + epoch(2) + seq(6) + length(2)

// recordHeader is the fixed 13-byte DTLS record header, RFC 6347 §4.1.
type recordHeader struct {
	contentType    ContentType
	version        [2]byte // {0xFE, 0xFD} for DTLS 1.2
	epoch          uint16
	sequenceNumber uint64 // only the low 48 bits are wire-significant
	length         uint16
}

var dtlsVersion12 = [2]byte{0xFE, 0xFD}

func encodeRecordHeader(h recordHeader) []byte {
	buf := make([]byte, recordHeaderSize)
	buf[0] = byte(h.contentType)
	buf[1], buf[2] = dtlsVersion12[0], dtlsVersion12[1]
	binary.BigEndian.PutUint16(buf[3:5], h.epoch)
	seq := h.sequenceNumber & 0xFFFFFFFFFFFF
	buf[5] = byte(seq >> 40)
	buf[6] = byte(seq >> 32)
	buf[7] = byte(seq >> 24)
	buf[8] = byte(seq >> 16)
	buf[9] = byte(seq >> 8)
	buf[10] = byte(seq)
	binary.BigEndian.PutUint16(buf[11:13], h.length)
	return buf
}

func decodeRecordHeader(data []byte) (recordHeader, error) {
	if len(data) < recordHeaderSize {
		return recordHeader{}, ErrRecordTooShort
	}
	var h recordHeader
	h.contentType = ContentType(data[0])
	h.version = [2]byte{data[1], data[2]}
	h.epoch = binary.BigEndian.Uint16(data[3:5])
	h.sequenceNumber = uint64(data[5])<<40 | uint64(data[6])<<32 | uint64(data[7])<<24 |
		uint64(data[8])<<16 | uint64(data[9])<<8 | uint64(data[10])
	h.length = binary.BigEndian.Uint16(data[11:13])
	return h, nil
}

// sealRecord encrypts payload under the given AEAD/salt/epoch/sequence and
// prefixes it with the record header, producing a wire-ready datagram.
func sealRecord(aead cipherAEAD, salt [gcmSaltSize]byte, contentType ContentType, epoch uint16, seq uint64, payload []byte) []byte {
	nonce := gcmNonce(salt, seq)
	header := recordHeader{contentType: contentType, epoch: epoch, sequenceNumber: seq, length: uint16(len(payload))}
	aad := encodeRecordHeader(header) // AAD uses the plaintext length per RFC 6347; the wire length is set after sealing

	sealed := aead.Seal(nil, nonce[:], payload, aad)
	header.length = uint16(len(sealed))
	out := encodeRecordHeader(header)
	return append(out, sealed...)
}

// openRecord decrypts a full wire datagram (header + ciphertext).
func openRecord(aead cipherAEAD, salt [gcmSaltSize]byte, data []byte) (ContentType, uint16, uint64, []byte, error) {
	h, err := decodeRecordHeader(data)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	if len(data) < recordHeaderSize+int(h.length) {
		return 0, 0, 0, nil, ErrRecordTooShort
	}
	ciphertext := data[recordHeaderSize : recordHeaderSize+int(h.length)]
	if len(ciphertext) < aead.Overhead() {
		return 0, 0, 0, nil, ErrDecryptFailed
	}
	aadHeader := h
	aadHeader.length = uint16(len(ciphertext) - aead.Overhead())
	nonce := gcmNonce(salt, h.sequenceNumber)
	plain, err := aead.Open(nil, nonce[:], ciphertext, encodeRecordHeader(aadHeader))
	if err != nil {
		return 0, 0, 0, nil, ErrDecryptFailed
	}
	return h.contentType, h.epoch, h.sequenceNumber, plain, nil
}

// cipherAEAD is the subset of cipher.AEAD the record layer needs, kept as
// its own interface so record.go and its tests don't need to import
// crypto/cipher directly.
type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	Overhead() int
}

var errUnsupportedContentType = errors.New("dtls: unsupported content type on this epoch")
