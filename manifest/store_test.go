package manifest

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := kvstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, hashcodec.NewCodec(0))
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	m := Manifest{
		ManifestID: "uniprot/swissprot",
		Version:    "2026-01-01",
		ChunkList:  []hashcodec.Hash{hashcodec.Sum256([]byte("c1"))},
	}.Seal()

	if err := s.Put(m); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("uniprot/swissprot", "2026-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if got.MerkleRoot != m.MerkleRoot || len(got.ChunkList) != 1 {
		t.Fatalf("round-trip mismatch: got %+v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("uniprot/swissprot", "missing")
	var be *bioerr.Error
	if !errors.As(err, &be) || be.Kind != bioerr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestVersionsAscendingAndScopedToManifestID(t *testing.T) {
	s := newTestStore(t)
	for _, v := range []string{"2026-03-01", "2026-01-01", "2026-02-01"} {
		m := Manifest{ManifestID: "uniprot/swissprot", Version: v}.Seal()
		if err := s.Put(m); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Put((Manifest{ManifestID: "ncbi/refseq", Version: "2026-01-01"}).Seal()); err != nil {
		t.Fatal(err)
	}

	versions, err := s.Versions("uniprot/swissprot")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2026-01-01", "2026-02-01", "2026-03-01"}
	if len(versions) != len(want) {
		t.Fatalf("got %v, want %v", versions, want)
	}
	for i := range want {
		if versions[i] != want[i] {
			t.Fatalf("got %v, want %v", versions, want)
		}
	}
}

func TestManifestIDsListsDistinctIDs(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put((Manifest{ManifestID: "a", Version: "1"}).Seal()); err != nil {
		t.Fatal(err)
	}
	if err := s.Put((Manifest{ManifestID: "a", Version: "2"}).Seal()); err != nil {
		t.Fatal(err)
	}
	if err := s.Put((Manifest{ManifestID: "b", Version: "1"}).Seal()); err != nil {
		t.Fatal(err)
	}
	ids, err := s.ManifestIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 distinct manifest ids, got %v", ids)
	}
}
