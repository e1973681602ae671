package chunk

import (
	"encoding/json"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

// Store persists sealed chunks, keyed by chunk_hash.
type Store struct {
	db    *kvstore.DB
	codec *hashcodec.Codec
}

func NewStore(db *kvstore.DB, codec *hashcodec.Codec) *Store {
	return &Store{db: db, codec: codec}
}

// PutOp builds the write for a sealed chunk, for composition into a larger
// atomic batch (the manifest-sealing and sync-install batches both need
// this alongside their other writes).
func (s *Store) PutOp(c Chunk) (kvstore.Op, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return kvstore.Op{}, err
	}
	blob, err := s.codec.Compress(raw)
	if err != nil {
		return kvstore.Op{}, bioerr.StorageError("chunk.Store.PutOp", err)
	}
	return kvstore.PutOp(kvstore.CFChunks, c.ChunkHash.Bytes(), blob), nil
}

// Get returns the chunk stored under hash, verifying it still hashes to
// the key it was requested by.
func (s *Store) Get(hash hashcodec.Hash) (Chunk, error) {
	blob, ok, err := s.db.Get(kvstore.CFChunks, hash.Bytes())
	if err != nil {
		return Chunk{}, err
	}
	if !ok {
		return Chunk{}, bioerr.ChunkUnavailable("chunk.Store.Get", hash.String())
	}
	raw, err := s.codec.Decompress(blob)
	if err != nil {
		return Chunk{}, bioerr.StorageError("chunk.Store.Get", err)
	}
	var c Chunk
	if err := json.Unmarshal(raw, &c); err != nil {
		return Chunk{}, bioerr.New(bioerr.KindSchema, "chunk.Store.Get", hash.String(), err)
	}
	if c.Hash() != hash {
		return Chunk{}, bioerr.VerificationError("chunk.Store.Get", hash.String(), hash.Bytes(), c.Hash().Bytes())
	}
	return c, nil
}

// Exists reports whether a chunk is already stored under hash, without
// decoding it.
func (s *Store) Exists(hash hashcodec.Hash) (bool, error) {
	return s.db.Exists(kvstore.CFChunks, hash.Bytes())
}
