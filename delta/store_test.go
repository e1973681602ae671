package delta

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

func newTestDeltaStore(t *testing.T) *Store {
	t.Helper()
	db, err := kvstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, hashcodec.NewCodec(0))
}

func TestDeltaStorePutGetRoundTrip(t *testing.T) {
	s := newTestDeltaStore(t)
	ops := []Op{{Kind: OpCopy, Offset: 0, Length: 4}, {Kind: OpInsert, Data: []byte("XXXX")}}

	op, hash, err := s.PutOp(ops)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.db.PutBatch([]kvstore.Op{op}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(hash)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(ops) {
		t.Fatalf("round-trip mismatch: got %+v", got)
	}
}

func TestDeltaStoreGetNotFound(t *testing.T) {
	s := newTestDeltaStore(t)
	_, err := s.Get(hashcodec.Sum256([]byte("missing")))
	var be *bioerr.Error
	if !errors.As(err, &be) || be.Kind != bioerr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
