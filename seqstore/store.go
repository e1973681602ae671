package seqstore

import (
	"encoding/json"
	"sort"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/filter"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

// Store is the canonical sequence store: dedup-on-write against the
// membership filter and the authoritative KV store, content-addressed,
// idempotent.
type Store struct {
	db     *kvstore.DB
	filt   *filter.Filter
	codec  *hashcodec.Codec
	strict bool
}

func New(db *kvstore.DB, filt *filter.Filter, codec *hashcodec.Codec, strictAlphabet bool) *Store {
	return &Store{db: db, filt: filt, codec: codec, strict: strictAlphabet}
}

// PutSequence normalizes, hashes, and stores raw if its hash is not already
// present. Idempotent: a second call with equivalent bytes (same
// normalized form) is a no-op and returns the same hash.
func (s *Store) PutSequence(raw []byte) (hashcodec.Hash, error) {
	normalized, err := hashcodec.NormalizeSequence(raw, s.strict)
	if err != nil {
		if ae, ok := err.(*hashcodec.AlphabetError); ok {
			return hashcodec.Hash{}, bioerr.InvalidAlphabet("seqstore.PutSequence", ae.Position, ae.Byte)
		}
		return hashcodec.Hash{}, bioerr.New(bioerr.KindInvalidAlphabet, "seqstore.PutSequence", "", err)
	}
	h := hashcodec.HashSequence(normalized)

	if s.filt.PossiblyContains(h) {
		exists, err := s.db.Exists(kvstore.CFSequences, h.Bytes())
		if err != nil {
			return hashcodec.Hash{}, err
		}
		if exists {
			return h, nil
		}
	}

	op, _, err := s.PutOp(normalized)
	if err != nil {
		return hashcodec.Hash{}, err
	}
	// Racing writers inserting the same hash both produce byte-identical
	// compressed output (compression is deterministic), so a duplicate Put
	// is harmless even without a pre-write existence check under the lock:
	// bbolt's own transaction serializes the two writes and the second is
	// a same-value overwrite.
	if err := s.db.PutBatch([]kvstore.Op{op}); err != nil {
		return hashcodec.Hash{}, err
	}
	s.filt.Insert(h)
	return h, nil
}

// PutOp builds the write for already-normalized bytes without committing
// it or touching the membership filter, for callers composing a larger
// atomic batch (the sync engine stages fetched sequences this way).
// Callers are responsible for inserting the returned hash into the filter
// once the batch they build this into actually commits.
func (s *Store) PutOp(normalized []byte) (kvstore.Op, hashcodec.Hash, error) {
	h := hashcodec.HashSequence(normalized)
	compressed, err := s.codec.Compress(normalized)
	if err != nil {
		return kvstore.Op{}, hashcodec.Hash{}, bioerr.StorageError("seqstore.PutOp", err)
	}
	return kvstore.PutOp(kvstore.CFSequences, h.Bytes(), compressed), h, nil
}

// NoteInserted records hash in the membership filter after a batch
// containing its PutOp has committed successfully.
func (s *Store) NoteInserted(h hashcodec.Hash) {
	s.filt.Insert(h)
}

// GetSequence returns the normalized bytes for hash, or a NotFound error.
// A content-hash mismatch against the stored bytes is a VerificationError,
// never silently tolerated.
func (s *Store) GetSequence(h hashcodec.Hash) ([]byte, error) {
	v, ok, err := s.db.Get(kvstore.CFSequences, h.Bytes())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, bioerr.NotFound("seqstore.GetSequence", h.String())
	}
	raw, err := s.codec.Decompress(v)
	if err != nil {
		return nil, bioerr.StorageError("seqstore.GetSequence", err)
	}
	if actual := hashcodec.HashSequence(raw); actual != h {
		return nil, bioerr.VerificationError("seqstore.GetSequence", h.String(), h.Bytes(), actual.Bytes())
	}
	return raw, nil
}

// representationSet is the JSON-on-disk form of a hash's representation
// list, ordered (source_tag, accession) for deterministic serialization.
type representationSet struct {
	Reps []Representation `json:"representations"`
}

// AddRepresentation merges rep into hash's representation set, committing
// immediately. Idempotent on the (source-tag, accession) key: a repeat call
// with the same key replaces the prior entry only if it carries a newer
// IngestTime (newest by ingest time wins), otherwise is a no-op.
func (s *Store) AddRepresentation(h hashcodec.Hash, rep Representation) error {
	op, err := s.RepresentationOp(h, rep)
	if err != nil {
		return err
	}
	return s.db.PutBatch([]kvstore.Op{op})
}

// RepresentationOp builds the merged-representation-set write without
// committing it, for callers composing a larger atomic batch — ingest's
// pipeline writes a sequence, its representation, and its indices in one
// PutBatch so a reader never observes one without the others.
func (s *Store) RepresentationOp(h hashcodec.Hash, rep Representation) (kvstore.Op, error) {
	existing, err := s.representations(h)
	if err != nil {
		return kvstore.Op{}, err
	}
	key := rep.key()
	replaced := false
	for i, e := range existing.Reps {
		if e.key() == key {
			if rep.IngestTime.After(e.IngestTime) {
				existing.Reps[i] = rep
			}
			replaced = true
			break
		}
	}
	if !replaced {
		existing.Reps = append(existing.Reps, rep)
	}
	sort.Slice(existing.Reps, func(i, j int) bool {
		if existing.Reps[i].SourceTag != existing.Reps[j].SourceTag {
			return existing.Reps[i].SourceTag < existing.Reps[j].SourceTag
		}
		return existing.Reps[i].Accession < existing.Reps[j].Accession
	})
	b, err := json.Marshal(existing)
	if err != nil {
		return kvstore.Op{}, bioerr.New(bioerr.KindSchema, "seqstore.RepresentationOp", "representations", err)
	}
	return kvstore.PutOp(kvstore.CFRepresentations, h.Bytes(), b), nil
}

// Representations returns every contributing representation for hash.
func (s *Store) Representations(h hashcodec.Hash) ([]Representation, error) {
	set, err := s.representations(h)
	if err != nil {
		return nil, err
	}
	return set.Reps, nil
}

func (s *Store) representations(h hashcodec.Hash) (*representationSet, error) {
	v, ok, err := s.db.Get(kvstore.CFRepresentations, h.Bytes())
	if err != nil {
		return nil, err
	}
	if !ok {
		return &representationSet{}, nil
	}
	var set representationSet
	if err := json.Unmarshal(v, &set); err != nil {
		return nil, bioerr.New(bioerr.KindSchema, "seqstore.representations", "representations", err)
	}
	return &set, nil
}
