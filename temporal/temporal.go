// Package temporal implements the bi-temporal version index mapping
// (manifest_id, sequence_time, taxonomy_time) coordinates to Merkle roots.
package temporal

import (
	"encoding/binary"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

// Coordinate is one point in a manifest's bi-temporal version history.
type Coordinate struct {
	SequenceTime time.Time
	TaxonomyTime time.Time
}

// Record is one stored (coordinate -> root) mapping.
type Record struct {
	Coordinate
	Root hashcodec.Hash
}

// Index persists the version history through the KV adapter and caches
// the most recently resolved heads.
type Index struct {
	db    *kvstore.DB
	heads *lru.Cache[string, Record]
}

// New builds an Index with a bounded LRU cache of the most recently resolved
// heads, sized cacheSize (a cacheSize of 0 or less gives a one-entry cache).
func New(db *kvstore.DB, cacheSize int) (*Index, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	c, err := lru.New[string, Record](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Index{db: db, heads: c}, nil
}

// RecordOp builds the write for one coordinate, for composition into the
// same atomic batch as the manifest and its Merkle nodes. It enforces the
// monotonicity invariant: sequence_time must be non-decreasing for a
// fixed manifest_id.
func (ix *Index) RecordOp(manifestID string, coord Coordinate, root hashcodec.Hash) (kvstore.Op, error) {
	history, err := ix.ListHistory(manifestID)
	if err != nil {
		return kvstore.Op{}, err
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		if coord.SequenceTime.Before(last.SequenceTime) {
			return kvstore.Op{}, bioerr.Conflict("temporal.RecordOp", manifestID)
		}
	}
	// The cached head is about to be superseded by whichever batch this op
	// lands in. Dropping it now rather than after commit keeps a failed
	// batch harmless: the next ResolveAt just re-reads from the store.
	ix.heads.Remove(manifestID)
	key := coordinateKey(manifestID, coord)
	return kvstore.PutOp(kvstore.CFTemporal, key, encodeRecord(Record{Coordinate: coord, Root: root})), nil
}

// Record commits one coordinate directly, for callers (CLI, tests) that are
// not composing a larger atomic batch. Production ingestion and sync paths
// should use RecordOp and commit it alongside the manifest write instead.
func (ix *Index) Record(manifestID string, coord Coordinate, root hashcodec.Hash) error {
	op, err := ix.RecordOp(manifestID, coord, root)
	if err != nil {
		return err
	}
	if err := ix.db.PutBatch([]kvstore.Op{op}); err != nil {
		return err
	}
	ix.heads.Add(manifestID, Record{Coordinate: coord, Root: root})
	return nil
}

// ResolveAt returns the root of the newest coordinate at or before each
// supplied bound. A nil bound is unconstrained; if both are nil, ResolveAt
// returns the current head.
func (ix *Index) ResolveAt(manifestID string, atSeq, atTax *time.Time) (hashcodec.Hash, error) {
	if atSeq == nil && atTax == nil {
		if cached, ok := ix.heads.Get(manifestID); ok {
			return cached.Root, nil
		}
	}
	history, err := ix.ListHistory(manifestID)
	if err != nil {
		return hashcodec.Hash{}, err
	}
	var best *Record
	for i := range history {
		r := history[i]
		if atSeq != nil && r.SequenceTime.After(*atSeq) {
			continue
		}
		if atTax != nil && r.TaxonomyTime.After(*atTax) {
			continue
		}
		if best == nil || r.SequenceTime.After(best.SequenceTime) ||
			(r.SequenceTime.Equal(best.SequenceTime) && r.TaxonomyTime.After(best.TaxonomyTime)) {
			rc := r
			best = &rc
		}
	}
	if best == nil {
		return hashcodec.Hash{}, bioerr.NotFound("temporal.ResolveAt", manifestID)
	}
	if atSeq == nil && atTax == nil {
		ix.heads.Add(manifestID, *best)
	}
	return best.Root, nil
}

// ListHistory returns every recorded coordinate for manifestID in ascending
// sequence-time order.
func (ix *Index) ListHistory(manifestID string) ([]Record, error) {
	prefix := append([]byte(manifestID), 0x00)
	var records []Record
	err := ix.db.IterPrefix(kvstore.CFTemporal, prefix, func(kv kvstore.KV) bool {
		r, err := decodeRecord(kv.Value)
		if err != nil {
			return true
		}
		records = append(records, r)
		return true
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// coordinateKey orders records by ascending sequence_time then
// taxonomy_time, both as big-endian unix nanoseconds so bbolt's byte-order
// cursor iteration matches chronological order.
func coordinateKey(manifestID string, coord Coordinate) []byte {
	key := make([]byte, 0, len(manifestID)+1+16)
	key = append(key, []byte(manifestID)...)
	key = append(key, 0x00)
	key = appendUint64(key, uint64(coord.SequenceTime.UnixNano()))
	key = appendUint64(key, uint64(coord.TaxonomyTime.UnixNano()))
	return key
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func encodeRecord(r Record) []byte {
	buf := make([]byte, 0, 16+32)
	buf = appendUint64(buf, uint64(r.SequenceTime.UnixNano()))
	buf = appendUint64(buf, uint64(r.TaxonomyTime.UnixNano()))
	buf = append(buf, r.Root.Bytes()...)
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) != 16+32 {
		return Record{}, bioerr.SchemaError("temporal.decodeRecord", "temporal_record")
	}
	seq := int64(binary.BigEndian.Uint64(b[0:8]))
	tax := int64(binary.BigEndian.Uint64(b[8:16]))
	h, _ := hashcodec.HashFromBytes(b[16:])
	return Record{
		Coordinate: Coordinate{
			SequenceTime: time.Unix(0, seq).UTC(),
			TaxonomyTime: time.Unix(0, tax).UTC(),
		},
		Root: h,
	}, nil
}
