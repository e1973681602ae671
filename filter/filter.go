// Package filter implements a fixed-capacity probabilistic membership
// filter over canonical sequence hashes with no false negatives, backed by
// github.com/holiman/bloomfilter/v2.
package filter

import (
	"encoding/binary"
	"fmt"
	"hash"
	"os"
	"sync"

	bloomfilter "github.com/holiman/bloomfilter/v2"

	"github.com/seqdag/seqdag/hashcodec"
)

// Filter is a coarse-locked wrapper around a Bloom filter. Reads
// (PossiblyContains) take a read lock so concurrent lookups never block each
// other; Insert takes a brief write lock, matching the contract that
// ingestion inserts must never starve readers for long.
type Filter struct {
	mu   sync.RWMutex
	bits *bloomfilter.Filter
}

// New sizes a filter for expectedSize elements at the given target false
// positive rate.
func New(expectedSize uint64, falsePositiveRate float64) (*Filter, error) {
	if expectedSize == 0 {
		expectedSize = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	bf, err := bloomfilter.NewOptimal(expectedSize, falsePositiveRate)
	if err != nil {
		return nil, fmt.Errorf("filter: new: %w", err)
	}
	return &Filter{bits: bf}, nil
}

// Insert records hash as present. Safe for concurrent use; never blocks a
// concurrent PossiblyContains for longer than the bit-array write itself.
func (f *Filter) Insert(h hashcodec.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits.Add(sum64Of(h))
}

// PossiblyContains returns false only when hash is definitely absent from
// every sequence ever inserted (no false negatives). A true result must be
// confirmed against the authoritative store before being trusted.
func (f *Filter) PossiblyContains(h hashcodec.Hash) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bits.Contains(sum64Of(h))
}

// Checkpoint atomically persists the filter to path (filter.snapshot under
// the base directory).
func (f *Filter) Checkpoint(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tmp := path + ".tmp"
	fh, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("filter: checkpoint open: %w", err)
	}
	if _, err := f.bits.WriteTo(fh); err != nil {
		_ = fh.Close()
		return fmt.Errorf("filter: checkpoint write: %w", err)
	}
	if err := fh.Sync(); err != nil {
		_ = fh.Close()
		return fmt.Errorf("filter: checkpoint fsync: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("filter: checkpoint close: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadCheckpoint restores a filter previously written by Checkpoint. A
// missing or corrupt checkpoint is never fatal: the caller falls back to
// RebuildFromIterator, since a stale or absent filter is always safe (every
// positive is confirmed against the authoritative store).
func LoadCheckpoint(path string) (*Filter, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	bf := &bloomfilter.Filter{}
	if _, err := bf.ReadFrom(fh); err != nil {
		return nil, fmt.Errorf("filter: load checkpoint: %w", err)
	}
	return &Filter{bits: bf}, nil
}

// RebuildFromIterator rebuilds a filter sized for expectedSize by draining
// next until it returns ok=false, inserting every yielded hash. Used on
// startup when no checkpoint exists or the checkpoint failed to load.
func RebuildFromIterator(expectedSize uint64, falsePositiveRate float64, next func() (hashcodec.Hash, bool)) (*Filter, error) {
	f, err := New(expectedSize, falsePositiveRate)
	if err != nil {
		return nil, err
	}
	for {
		h, ok := next()
		if !ok {
			return f, nil
		}
		f.Insert(h)
	}
}

// sum64Key adapts a hashcodec.Hash (already cryptographically uniform) into
// the hash.Hash64 the underlying filter's double-hashing scheme needs. No
// further mixing is performed: SHA-256 output is uniform enough to split
// into the two 32-bit halves the filter derives its k probe indices from.
type sum64Key uint64

func (sum64Key) Write(p []byte) (int, error) { return len(p), nil }
func (k sum64Key) Sum(b []byte) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(k))
	return append(b, buf[:]...)
}
func (sum64Key) Reset()         {}
func (sum64Key) Size() int      { return 8 }
func (sum64Key) BlockSize() int { return 8 }
func (k sum64Key) Sum64() uint64 { return uint64(k) }

var _ hash.Hash64 = sum64Key(0)

func sum64Of(h hashcodec.Hash) sum64Key {
	return sum64Key(binary.BigEndian.Uint64(h[:8]))
}
