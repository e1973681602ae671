package delta

import (
	"fmt"

	"github.com/seqdag/seqdag/hashcodec"
)

// EncodeOps produces the fixed canonical binary form of an op list. Its
// hash is the delta's payload_hash.
func EncodeOps(ops []Op) []byte {
	buf := make([]byte, 0, 16*len(ops))
	buf = hashcodec.PutVarint(buf, uint64(len(ops)))
	for _, op := range ops {
		buf = append(buf, byte(op.Kind))
		buf = hashcodec.PutVarint(buf, uint64(op.Offset))
		buf = hashcodec.PutVarint(buf, uint64(op.Length))
		buf = hashcodec.PutBytes(buf, op.Data)
	}
	return buf
}

// DecodeOps reverses EncodeOps.
func DecodeOps(buf []byte) ([]Op, error) {
	n, used, err := hashcodec.ReadVarint(buf)
	if err != nil {
		return nil, fmt.Errorf("delta: decode op count: %w", err)
	}
	buf = buf[used:]
	ops := make([]Op, 0, n)
	for i := uint64(0); i < n; i++ {
		if len(buf) < 1 {
			return nil, fmt.Errorf("delta: truncated op %d", i)
		}
		kind := OpKind(buf[0])
		buf = buf[1:]

		offset, u, err := hashcodec.ReadVarint(buf)
		if err != nil {
			return nil, fmt.Errorf("delta: op %d offset: %w", i, err)
		}
		buf = buf[u:]

		length, u, err := hashcodec.ReadVarint(buf)
		if err != nil {
			return nil, fmt.Errorf("delta: op %d length: %w", i, err)
		}
		buf = buf[u:]

		data, u, err := hashcodec.ReadBytes(buf)
		if err != nil {
			return nil, fmt.Errorf("delta: op %d data: %w", i, err)
		}
		buf = buf[u:]

		ops = append(ops, Op{Kind: kind, Offset: int(offset), Length: int(length), Data: append([]byte(nil), data...)})
	}
	return ops, nil
}

// PayloadHash is the content hash of an op list's canonical encoding.
func PayloadHash(ops []Op) hashcodec.Hash {
	return hashcodec.Sum256(EncodeOps(ops))
}
