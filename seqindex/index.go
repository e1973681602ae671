// Package seqindex implements the accession and taxon secondary
// indices, written in the same batch as the sequence and representation
// they describe so a reader never observes one without the other.
package seqindex

import (
	"encoding/json"
	"time"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

const keySep = byte(0x00)

func accessionKey(sourceTag, accession string) []byte {
	k := make([]byte, 0, len(sourceTag)+1+len(accession))
	k = append(k, []byte(sourceTag)...)
	k = append(k, keySep)
	return append(k, []byte(accession)...)
}

func taxonKey(taxonID string, h hashcodec.Hash) []byte {
	k := make([]byte, 0, len(taxonID)+1+32)
	k = append(k, []byte(taxonID)...)
	k = append(k, keySep)
	return append(k, h.Bytes()...)
}

// AccessionBinding is one (hash, ingest-time) point in an accession's
// history. Multiple bindings accumulate when the same accession is later
// re-ingested with different bytes.
type AccessionBinding struct {
	Hash       hashcodec.Hash `json:"hash"`
	IngestTime time.Time      `json:"ingest_time"`
}

type accessionHistory struct {
	Bindings []AccessionBinding `json:"bindings"`
}

// AccessionIndexOp returns the kvstore.Op that records a new binding for
// (sourceTag, accession), to be included in the same PutBatch call as the
// sequence and representation writes it accompanies. It reads the current
// value outside of the batch's own transaction (writers into one index key
// are already serialized by the surrounding ingestion batch), appends the
// new binding if the hash isn't already the newest, and returns the put.
func AccessionIndexOp(db *kvstore.DB, sourceTag, accession string, h hashcodec.Hash, at time.Time) (kvstore.Op, error) {
	key := accessionKey(sourceTag, accession)
	hist, err := loadAccessionHistory(db, key)
	if err != nil {
		return kvstore.Op{}, err
	}
	if n := len(hist.Bindings); n > 0 && hist.Bindings[n-1].Hash == h {
		// Same bytes re-ingested under the same accession: no new
		// binding needed, but the op must still be a no-op put (not
		// omitted), so batch construction stays uniform.
		return kvstore.PutOp(kvstore.CFIndicesAcc, key, mustMarshalHistory(hist)), nil
	}
	hist.Bindings = append(hist.Bindings, AccessionBinding{Hash: h, IngestTime: at})
	return kvstore.PutOp(kvstore.CFIndicesAcc, key, mustMarshalHistory(hist)), nil
}

// TaxonIndexOp returns the kvstore.Op recording that h is associated with
// taxonID, to be included in the same batch as the sequence write.
func TaxonIndexOp(taxonID string, h hashcodec.Hash) kvstore.Op {
	return kvstore.PutOp(kvstore.CFIndicesTaxon, taxonKey(taxonID, h), []byte{})
}

// ResolveAccession returns the hash bound to (sourceTag, accession) at time
// at (the newest binding with IngestTime <= at), or the current newest
// binding when at is zero. NotFound if the accession was never bound.
func ResolveAccession(db *kvstore.DB, sourceTag, accession string, at time.Time) (hashcodec.Hash, error) {
	key := accessionKey(sourceTag, accession)
	hist, err := loadAccessionHistory(db, key)
	if err != nil {
		return hashcodec.Hash{}, err
	}
	if len(hist.Bindings) == 0 {
		return hashcodec.Hash{}, bioerr.NotFound("seqindex.ResolveAccession", sourceTag+"|"+accession)
	}
	if at.IsZero() {
		return hist.Bindings[len(hist.Bindings)-1].Hash, nil
	}
	best := hashcodec.Hash{}
	found := false
	for _, b := range hist.Bindings {
		if !b.IngestTime.After(at) {
			best = b.Hash
			found = true
		}
	}
	if !found {
		return hashcodec.Hash{}, bioerr.NotFound("seqindex.ResolveAccession", sourceTag+"|"+accession)
	}
	return best, nil
}

// AccessionHistory returns every binding ever recorded for (sourceTag,
// accession), oldest first.
func AccessionHistory(db *kvstore.DB, sourceTag, accession string) ([]AccessionBinding, error) {
	hist, err := loadAccessionHistory(db, accessionKey(sourceTag, accession))
	if err != nil {
		return nil, err
	}
	return hist.Bindings, nil
}

// IterTaxon yields every hash bound to taxonID via the taxon index, in
// sorted hash order, until fn returns false.
func IterTaxon(db *kvstore.DB, taxonID string, fn func(hashcodec.Hash) bool) error {
	prefix := append([]byte(taxonID), keySep)
	return db.IterPrefix(kvstore.CFIndicesTaxon, prefix, func(kv kvstore.KV) bool {
		h, ok := hashcodec.HashFromBytes(kv.Key[len(prefix):])
		if !ok {
			return true
		}
		return fn(h)
	})
}

func loadAccessionHistory(db *kvstore.DB, key []byte) (*accessionHistory, error) {
	v, ok, err := db.Get(kvstore.CFIndicesAcc, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &accessionHistory{}, nil
	}
	var hist accessionHistory
	if err := json.Unmarshal(v, &hist); err != nil {
		return nil, bioerr.New(bioerr.KindSchema, "seqindex.loadAccessionHistory", "indices_acc", err)
	}
	return &hist, nil
}

func mustMarshalHistory(hist *accessionHistory) []byte {
	b, err := json.Marshal(hist)
	if err != nil {
		// accessionHistory has no unmarshalable fields (time.Time and a
		// fixed-size hash array both marshal cleanly); a failure here
		// would indicate a Go stdlib break, not a reachable data error.
		panic(err)
	}
	return b
}
