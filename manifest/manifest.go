// Package manifest implements the manifest type — a named, versioned
// collection of chunks — and its canonical JSON serialization, storage and
// retrieval.
package manifest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/merkledag"
)

// Fanout is the Merkle fan-out used to derive merkle_root from chunk_list,
// fixed across the whole store so any two producers agree.
const Fanout = merkledag.DefaultFanout

// Manifest is a named, versioned collection of chunks.
// merkle_root is always a deterministic function of chunk_list; call Seal
// after building chunk_list to populate it.
type Manifest struct {
	ManifestID      string
	Version         string
	SequenceTime    time.Time
	TaxonomyTime    time.Time
	PreviousVersion string // empty means no predecessor
	ChunkList       []hashcodec.Hash
	MerkleRoot      hashcodec.Hash
	Metadata        map[string]string
}

// Seal computes MerkleRoot from ChunkList and returns the updated manifest.
// Two manifests with identical ChunkList always produce identical
// MerkleRoot.
func (m Manifest) Seal() Manifest {
	m.MerkleRoot = merkledag.Root(Fanout, m.ChunkList)
	return m
}

// wireManifest fixes the wire JSON field order: manifest_id, version,
// sequence_time, taxonomy_time, previous_version, chunk_list, merkle_root,
// metadata.
type wireManifest struct {
	ManifestID      string            `json:"manifest_id"`
	Version         string            `json:"version"`
	SequenceTime    time.Time         `json:"sequence_time"`
	TaxonomyTime    time.Time         `json:"taxonomy_time"`
	PreviousVersion *string           `json:"previous_version"`
	ChunkList       []string          `json:"chunk_list"`
	MerkleRoot      string            `json:"merkle_root"`
	Metadata        map[string]string `json:"metadata"`
}

// MarshalJSON emits the fixed wire form. encoding/json already sorts map
// keys lexically, so metadata keys come out sorted in both the wire form
// and the hashed form.
func (m Manifest) MarshalJSON() ([]byte, error) {
	w := wireManifest{
		ManifestID:   m.ManifestID,
		Version:      m.Version,
		SequenceTime: m.SequenceTime,
		TaxonomyTime: m.TaxonomyTime,
		ChunkList:    make([]string, len(m.ChunkList)),
		MerkleRoot:   m.MerkleRoot.String(),
		Metadata:     m.Metadata,
	}
	if m.PreviousVersion != "" {
		pv := m.PreviousVersion
		w.PreviousVersion = &pv
	}
	for i, h := range m.ChunkList {
		w.ChunkList[i] = h.String()
	}
	return json.Marshal(w)
}

func (m *Manifest) UnmarshalJSON(b []byte) error {
	var w wireManifest
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	chunkList := make([]hashcodec.Hash, len(w.ChunkList))
	for i, s := range w.ChunkList {
		h, err := hashFromHex(s)
		if err != nil {
			return fmt.Errorf("manifest: chunk_list[%d]: %w", i, err)
		}
		chunkList[i] = h
	}
	root, err := hashFromHex(w.MerkleRoot)
	if err != nil {
		return fmt.Errorf("manifest: merkle_root: %w", err)
	}
	*m = Manifest{
		ManifestID:   w.ManifestID,
		Version:      w.Version,
		SequenceTime: w.SequenceTime,
		TaxonomyTime: w.TaxonomyTime,
		ChunkList:    chunkList,
		MerkleRoot:   root,
		Metadata:     w.Metadata,
	}
	if w.PreviousVersion != nil {
		m.PreviousVersion = *w.PreviousVersion
	}
	return nil
}

func hashFromHex(s string) (hashcodec.Hash, error) {
	if s == "" {
		return hashcodec.Hash{}, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return hashcodec.Hash{}, fmt.Errorf("manifest: invalid hex: %w", err)
	}
	h, ok := hashcodec.HashFromBytes(b)
	if !ok {
		return hashcodec.Hash{}, fmt.Errorf("manifest: wrong length for a hash: %d bytes", len(b))
	}
	return h, nil
}

// ContentHash hashes the wire JSON bytes, used as the integrity header the
// transport layer attaches to manifest responses.
func (m Manifest) ContentHash() (hashcodec.Hash, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return hashcodec.Hash{}, err
	}
	return hashcodec.Sum256(b), nil
}

// SortedMetadataKeys gives callers a stable iteration order over Metadata
// outside of JSON marshaling (e.g. CLI `info` output).
func SortedMetadataKeys(meta map[string]string) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
