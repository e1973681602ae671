// Package kvstore provides an ordered key-value store with named
// column families, atomic multi-key write batches, and prefix iteration,
// backed by go.etcd.io/bbolt.
package kvstore

import (
	"bytes"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/seqdag/seqdag/bioerr"
)

// Column family names. Every persisted record lives in exactly one of
// these buckets.
const (
	CFSequences       = "sequences"
	CFRepresentations = "representations"
	CFManifests       = "manifests"
	CFChunks          = "chunks"
	CFIndicesAcc      = "indices_acc"
	CFIndicesTaxon    = "indices_taxon"
	CFMerkle          = "merkle"
	CFTemporal        = "temporal"
	CFDeltas          = "deltas"
	CFDeltaIndex      = "delta_index"
)

var allColumnFamilies = []string{
	CFSequences, CFRepresentations, CFManifests, CFChunks,
	CFIndicesAcc, CFIndicesTaxon, CFMerkle, CFTemporal, CFDeltas, CFDeltaIndex,
}

// DB is the column-family-aware handle over a single bbolt file.
type DB struct {
	bolt *bolt.DB
}

// Open creates (if absent) every column family bucket and returns a ready
// handle. Every subsequent write commits synchronously and durably on
// return.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, bioerr.StorageError("kvstore.Open", err)
	}
	d := &DB{bolt: bdb}
	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, cf := range allColumnFamilies {
			if _, err := tx.CreateBucketIfNotExists([]byte(cf)); err != nil {
				return fmt.Errorf("create bucket %s: %w", cf, err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, bioerr.StorageError("kvstore.Open", err)
	}
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.bolt == nil {
		return nil
	}
	return d.bolt.Close()
}

// Op is one write within a PutBatch call: either a Put (Delete false; Value
// may be nil for a key-only entry) or a Delete (Delete true).
type Op struct {
	CF     string
	Key    []byte
	Value  []byte
	Delete bool
}

func PutOp(cf string, key, value []byte) Op { return Op{CF: cf, Key: key, Value: value} }

func DeleteOp(cf string, key []byte) Op { return Op{CF: cf, Key: key, Delete: true} }

// PutBatch commits every op atomically and durably (bolt.DB.Update runs
// inside one transaction and fsyncs on commit). Never returns a partial
// write: on any error the whole transaction is rolled back.
func (d *DB) PutBatch(ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	err := d.bolt.Update(func(tx *bolt.Tx) error {
		for _, op := range ops {
			b := tx.Bucket([]byte(op.CF))
			if b == nil {
				return fmt.Errorf("kvstore: unknown column family %q", op.CF)
			}
			if op.Delete {
				if err := b.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return bioerr.StorageError("kvstore.PutBatch", err)
	}
	return nil
}

// Get returns the value for key in cf, or ok=false if absent.
func (d *DB) Get(cf string, key []byte) (value []byte, ok bool, err error) {
	txErr := d.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cf))
		if b == nil {
			return fmt.Errorf("kvstore: unknown column family %q", cf)
		}
		v := b.Get(key)
		if v == nil {
			return nil
		}
		value = append([]byte(nil), v...)
		ok = true
		return nil
	})
	if txErr != nil {
		return nil, false, bioerr.StorageError("kvstore.Get", txErr)
	}
	return value, ok, nil
}

// Exists is a plain existence check against the authoritative store. The
// approximate-membership fast path lives one
// layer up (seqstore composes filter.PossiblyContains with this call), not
// inside the KV adapter itself — the adapter and the filter stay
// independently testable.
func (d *DB) Exists(cf string, key []byte) (bool, error) {
	_, ok, err := d.Get(cf, key)
	return ok, err
}

// KV is a single key/value pair, returned in sorted order by IterPrefix.
type KV struct {
	Key   []byte
	Value []byte
}

// IterPrefix yields every key/value pair in cf whose key starts with
// prefix, in ascending sorted order, stopping early if fn returns false.
func (d *DB) IterPrefix(cf string, prefix []byte, fn func(KV) bool) error {
	err := d.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cf))
		if b == nil {
			return fmt.Errorf("kvstore: unknown column family %q", cf)
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			kv := KV{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)}
			if !fn(kv) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return bioerr.StorageError("kvstore.IterPrefix", err)
	}
	return nil
}

// Count returns the number of keys in cf, used on startup to size the
// membership filter.
func (d *DB) Count(cf string) (int, error) {
	n := 0
	err := d.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cf))
		if b == nil {
			return fmt.Errorf("kvstore: unknown column family %q", cf)
		}
		n = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, bioerr.StorageError("kvstore.Count", err)
	}
	return n, nil
}
