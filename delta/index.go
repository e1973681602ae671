package delta

import (
	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

// IndexEntry is the reverse lookup from a delta-encoded sequence's hash
// back to the reference it was encoded against and the payload to apply,
// letting a reconstructing reader find a target's delta chain without already
// knowing which chunk holds it.
type IndexEntry struct {
	ReferenceHash    hashcodec.Hash
	DeltaPayloadHash hashcodec.Hash
}

func (e IndexEntry) encode() []byte {
	buf := make([]byte, 0, 64)
	buf = hashcodec.PutHash(buf, e.ReferenceHash)
	buf = hashcodec.PutHash(buf, e.DeltaPayloadHash)
	return buf
}

func decodeIndexEntry(b []byte) (IndexEntry, error) {
	ref, n, err := hashcodec.ReadHash(b)
	if err != nil {
		return IndexEntry{}, err
	}
	payload, _, err := hashcodec.ReadHash(b[n:])
	if err != nil {
		return IndexEntry{}, err
	}
	return IndexEntry{ReferenceHash: ref, DeltaPayloadHash: payload}, nil
}

// IndexOp builds the write recording that targetHash is reconstructed via
// entry, for composition into the same atomic batch that seals the chunk
// referencing it (ingest's chunk-sealing step and the sync engine's
// putChunk step both call this for every DeltaRef they persist).
func IndexOp(targetHash hashcodec.Hash, entry IndexEntry) kvstore.Op {
	return kvstore.PutOp(kvstore.CFDeltaIndex, targetHash.Bytes(), entry.encode())
}

// LookupIndex returns the reference/payload pair targetHash was last
// recorded against, or ok=false if targetHash has no delta encoding on
// file (it may be stored as a reference-only sequence instead).
func LookupIndex(db *kvstore.DB, targetHash hashcodec.Hash) (IndexEntry, bool, error) {
	v, ok, err := db.Get(kvstore.CFDeltaIndex, targetHash.Bytes())
	if err != nil {
		return IndexEntry{}, false, err
	}
	if !ok {
		return IndexEntry{}, false, nil
	}
	entry, err := decodeIndexEntry(v)
	if err != nil {
		return IndexEntry{}, false, bioerr.New(bioerr.KindSchema, "delta.LookupIndex", targetHash.String(), err)
	}
	return entry, true, nil
}
