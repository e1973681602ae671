package chunk

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

func newTestChunkStore(t *testing.T) *Store {
	t.Helper()
	db, err := kvstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, hashcodec.NewCodec(0))
}

func TestChunkStorePutGetRoundTrip(t *testing.T) {
	s := newTestChunkStore(t)
	c := Chunk{Kind: KindReferenceOnly, SequenceRefs: []hashcodec.Hash{hashcodec.Sum256([]byte("s1"))}, TaxonScope: []string{"9606"}}.Sealed()

	op, err := s.PutOp(c)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.db.PutBatch([]kvstore.Op{op}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(c.ChunkHash)
	if err != nil {
		t.Fatal(err)
	}
	if got.ChunkHash != c.ChunkHash || len(got.SequenceRefs) != 1 {
		t.Fatalf("round-trip mismatch: got %+v", got)
	}
	exists, err := s.Exists(c.ChunkHash)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatalf("expected Exists to report true after Put")
	}
}

func TestChunkStoreGetUnavailable(t *testing.T) {
	s := newTestChunkStore(t)
	_, err := s.Get(hashcodec.Sum256([]byte("missing")))
	var be *bioerr.Error
	if !errors.As(err, &be) || be.Kind != bioerr.KindChunkUnavailable {
		t.Fatalf("expected ChunkUnavailable, got %v", err)
	}
}
