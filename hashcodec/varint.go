package hashcodec

import "fmt"

// PutVarint and ReadVarint implement the unsigned LEB128 length prefix used
// throughout the canonical binary serialization (chunk_hash inputs, delta op
// payloads): each variable-length field is preceded by its byte length
// encoded this way.
func PutVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// ReadVarint decodes a varint from the front of buf, returning the value and
// the number of bytes consumed.
func ReadVarint(buf []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i, b := range buf {
		if shift >= 64 {
			return 0, 0, fmt.Errorf("hashcodec: varint overflow")
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("hashcodec: truncated varint")
}

// PutBytes appends a varint-length-prefixed byte string, the building block
// for the fixed canonical serialization chunk hashing is computed over.
func PutBytes(buf []byte, b []byte) []byte {
	buf = PutVarint(buf, uint64(len(b)))
	return append(buf, b...)
}

// ReadBytes decodes a varint-length-prefixed byte string from the front of
// buf, returning the bytes (a sub-slice, not a copy) and bytes consumed.
func ReadBytes(buf []byte) ([]byte, int, error) {
	n, used, err := ReadVarint(buf)
	if err != nil {
		return nil, 0, err
	}
	if used+int(n) > len(buf) {
		return nil, 0, fmt.Errorf("hashcodec: truncated byte field")
	}
	return buf[used : used+int(n)], used + int(n), nil
}

// PutHash appends a fixed-size 32-byte hash field (no length prefix needed).
func PutHash(buf []byte, h Hash) []byte {
	return append(buf, h[:]...)
}

// ReadHash decodes a fixed-size 32-byte hash field from the front of buf.
func ReadHash(buf []byte) (Hash, int, error) {
	if len(buf) < 32 {
		return Hash{}, 0, fmt.Errorf("hashcodec: truncated hash field")
	}
	var h Hash
	copy(h[:], buf[:32])
	return h, 32, nil
}
