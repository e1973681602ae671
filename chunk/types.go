// Package chunk implements the chunk manifest-fragment type and the
// taxonomy-aware chunker that partitions canonical sequences into chunks.
package chunk

import (
	"time"

	"github.com/seqdag/seqdag/hashcodec"
)

// Kind classifies how a chunk's sequences are represented.
type Kind string

const (
	KindReferenceOnly Kind = "reference-only"
	KindDelta         Kind = "delta"
	KindHybrid        Kind = "hybrid"
)

// DeltaRef names one delta encoding included in a chunk: target_hash is
// reconstructed from reference_hash by applying the op list stored under
// delta_payload_hash in the deltas column family.
type DeltaRef struct {
	TargetHash       hashcodec.Hash `json:"target_hash"`
	ReferenceHash    hashcodec.Hash `json:"reference_hash"`
	DeltaPayloadHash hashcodec.Hash `json:"delta_payload_hash"`
}

// Chunk is a manifest fragment: a group of related canonical sequences and
// the deltas reconstructing them.
type Chunk struct {
	ChunkHash    hashcodec.Hash   `json:"chunk_hash"`
	Kind         Kind             `json:"kind"`
	SequenceRefs []hashcodec.Hash `json:"sequence_refs"`
	DeltaRefs    []DeltaRef       `json:"delta_refs,omitempty"`
	TaxonScope   []string         `json:"taxon_scope"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Serialize produces the fixed canonical binary form whose hash is the
// chunk_hash, so identical chunks collide regardless of how they were
// built. Field order is fixed: kind, sequence_refs,
// delta_refs, taxon_scope (sorted), created_at (unix nanos).
func (c Chunk) Serialize() []byte {
	buf := make([]byte, 0, 64+32*len(c.SequenceRefs)+96*len(c.DeltaRefs))
	buf = hashcodec.PutBytes(buf, []byte(c.Kind))

	buf = hashcodec.PutVarint(buf, uint64(len(c.SequenceRefs)))
	for _, h := range c.SequenceRefs {
		buf = hashcodec.PutHash(buf, h)
	}

	buf = hashcodec.PutVarint(buf, uint64(len(c.DeltaRefs)))
	for _, d := range c.DeltaRefs {
		buf = hashcodec.PutHash(buf, d.TargetHash)
		buf = hashcodec.PutHash(buf, d.ReferenceHash)
		buf = hashcodec.PutHash(buf, d.DeltaPayloadHash)
	}

	scope := sortedCopy(c.TaxonScope)
	buf = hashcodec.PutVarint(buf, uint64(len(scope)))
	for _, t := range scope {
		buf = hashcodec.PutBytes(buf, []byte(t))
	}

	var tbuf [8]byte
	putUint64(tbuf[:], uint64(c.CreatedAt.UnixNano()))
	buf = append(buf, tbuf[:]...)
	return buf
}

// Hash computes (and does not store) the chunk_hash for c.
func (c Chunk) Hash() hashcodec.Hash {
	return hashcodec.Sum256(c.Serialize())
}

// Sealed returns a copy of c with ChunkHash populated from Serialize/Hash.
func (c Chunk) Sealed() Chunk {
	c.ChunkHash = c.Hash()
	return c
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	// Small sets; insertion sort keeps this allocation-free beyond the copy
	// and avoids importing sort for a handful of elements per chunk.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}
