package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

// sep separates manifest_id from version in a CFManifests key. manifest_id
// values are source-tag-like slugs ("uniprot/swissprot") and never contain
// this byte.
const sep = 0x00

func manifestKey(manifestID, version string) []byte {
	key := make([]byte, 0, len(manifestID)+1+len(version))
	key = append(key, []byte(manifestID)...)
	key = append(key, sep)
	key = append(key, []byte(version)...)
	return key
}

// Store persists manifests through the KV adapter, compressed the same way every other
// blob in the store is.
type Store struct {
	db    *kvstore.DB
	codec *hashcodec.Codec
}

func NewStore(db *kvstore.DB, codec *hashcodec.Codec) *Store {
	return &Store{db: db, codec: codec}
}

// Put writes a single sealed manifest. Callers that need the manifest
// installed atomically alongside its Merkle nodes and temporal record
// should build a kvstore.Op via PutOp instead and batch it themselves (the
// ingestion pipeline and the sync engine both do this).
func (s *Store) Put(m Manifest) error {
	op, err := s.PutOp(m)
	if err != nil {
		return err
	}
	return s.db.PutBatch([]kvstore.Op{op})
}

// PutOp builds the write for m without committing it, for composition into
// a larger atomic batch: sealing writes the manifest, its Merkle nodes and
// its temporal record in a single batch.
func (s *Store) PutOp(m Manifest) (kvstore.Op, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return kvstore.Op{}, fmt.Errorf("manifest: marshal: %w", err)
	}
	blob, err := s.codec.Compress(raw)
	if err != nil {
		return kvstore.Op{}, bioerr.StorageError("manifest.PutOp", err)
	}
	return kvstore.PutOp(kvstore.CFManifests, manifestKey(m.ManifestID, m.Version), blob), nil
}

// Get returns the manifest at manifest-id+version.
func (s *Store) Get(manifestID, version string) (Manifest, error) {
	blob, ok, err := s.db.Get(kvstore.CFManifests, manifestKey(manifestID, version))
	if err != nil {
		return Manifest{}, err
	}
	if !ok {
		return Manifest{}, bioerr.NotFound("manifest.Get", manifestID+"@"+version)
	}
	raw, err := s.codec.Decompress(blob)
	if err != nil {
		return Manifest{}, bioerr.StorageError("manifest.Get", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, bioerr.New(bioerr.KindSchema, "manifest.Get", manifestID, err)
	}
	return m, nil
}

// Versions returns every version recorded for manifestID, in ascending
// lexical order (versions are dates, so lexical order is chronological
// order).
func (s *Store) Versions(manifestID string) ([]string, error) {
	prefix := append(append([]byte{}, []byte(manifestID)...), sep)
	var versions []string
	err := s.db.IterPrefix(kvstore.CFManifests, prefix, func(kv kvstore.KV) bool {
		versions = append(versions, string(bytes.TrimPrefix(kv.Key, prefix)))
		return true
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// ManifestIDs lists every distinct manifest-id known to the store, for the
// CLI's `list` subcommand.
func (s *Store) ManifestIDs() ([]string, error) {
	seen := map[string]struct{}{}
	var ids []string
	err := s.db.IterPrefix(kvstore.CFManifests, nil, func(kv kvstore.KV) bool {
		if i := bytes.IndexByte(kv.Key, sep); i >= 0 {
			id := string(kv.Key[:i])
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
