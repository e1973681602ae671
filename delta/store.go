package delta

import (
	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

// Store persists op lists keyed by their payload_hash (CFDeltas).
type Store struct {
	db    *kvstore.DB
	codec *hashcodec.Codec
}

func NewStore(db *kvstore.DB, codec *hashcodec.Codec) *Store {
	return &Store{db: db, codec: codec}
}

// PutOp builds the write for ops, for composition into a larger atomic
// batch alongside the chunk that references this payload.
func (s *Store) PutOp(ops []Op) (kvstore.Op, hashcodec.Hash, error) {
	hash := PayloadHash(ops)
	blob, err := s.codec.Compress(EncodeOps(ops))
	if err != nil {
		return kvstore.Op{}, hashcodec.Hash{}, bioerr.StorageError("delta.Store.PutOp", err)
	}
	return kvstore.PutOp(kvstore.CFDeltas, hash.Bytes(), blob), hash, nil
}

// Get returns the op list stored under hash, verifying its payload_hash.
func (s *Store) Get(hash hashcodec.Hash) ([]Op, error) {
	blob, ok, err := s.db.Get(kvstore.CFDeltas, hash.Bytes())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, bioerr.NotFound("delta.Store.Get", hash.String())
	}
	raw, err := s.codec.Decompress(blob)
	if err != nil {
		return nil, bioerr.StorageError("delta.Store.Get", err)
	}
	ops, err := DecodeOps(raw)
	if err != nil {
		return nil, bioerr.New(bioerr.KindSchema, "delta.Store.Get", hash.String(), err)
	}
	if actual := PayloadHash(ops); actual != hash {
		return nil, bioerr.VerificationError("delta.Store.Get", hash.String(), hash.Bytes(), actual.Bytes())
	}
	return ops, nil
}
