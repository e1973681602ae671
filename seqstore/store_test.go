package seqstore

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/filter"
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
	f, err := filter.New(1000, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	return New(db, f, hashcodec.NewCodec(0), true)
}

func TestPutSequenceIdempotent(t *testing.T) {
	s := newTestStore(t)
	h1, err := s.PutSequence([]byte("acgt"))
	if err != nil {
		t.Fatal(err)
	}
	h2, err := s.PutSequence([]byte("ACGT"))
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("expected equal hashes for equivalent-case input")
	}
	got, err := s.GetSequence(h1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ACGT" {
		t.Fatalf("got %q", got)
	}
}

func TestGetSequenceNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSequence(hashcodec.Sum256([]byte("missing")))
	var be *bioerr.Error
	if !errors.As(err, &be) || be.Kind != bioerr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestAddRepresentationMergeIdempotentAndNewest(t *testing.T) {
	s := newTestStore(t)
	h, err := s.PutSequence([]byte("ACGT"))
	if err != nil {
		t.Fatal(err)
	}
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.AddRepresentation(h, Representation{SourceTag: "sp", Accession: "P00001", IngestTime: t0}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddRepresentation(h, Representation{SourceTag: "ref", Accession: "NP_0001", IngestTime: t0}); err != nil {
		t.Fatal(err)
	}
	reps, err := s.Representations(h)
	if err != nil {
		t.Fatal(err)
	}
	if len(reps) != 2 {
		t.Fatalf("expected 2 representations, got %d", len(reps))
	}

	// A later re-ingest with an updated header for the same (source,
	// accession) replaces the entry, keyed by newest ingest time.
	t1 := t0.Add(24 * time.Hour)
	if err := s.AddRepresentation(h, Representation{SourceTag: "sp", Accession: "P00001", OriginalHeader: "v2", IngestTime: t1}); err != nil {
		t.Fatal(err)
	}
	reps, err = s.Representations(h)
	if err != nil {
		t.Fatal(err)
	}
	if len(reps) != 2 {
		t.Fatalf("expected merge to stay idempotent on (source,accession), got %d entries", len(reps))
	}
	for _, r := range reps {
		if r.SourceTag == "sp" && r.OriginalHeader != "v2" {
			t.Fatalf("expected newest representation to win, got %+v", r)
		}
	}
}

func TestPutSequenceStrictModeRejectsInvalidAlphabet(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PutSequence([]byte("ACG123"))
	var be *bioerr.Error
	if !errors.As(err, &be) || be.Kind != bioerr.KindInvalidAlphabet {
		t.Fatalf("expected InvalidAlphabet, got %v", err)
	}
}

func TestConcurrentPutSequenceSameBytes(t *testing.T) {
	s := newTestStore(t)
	const n = 16
	results := make(chan hashcodec.Hash, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			h, err := s.PutSequence([]byte("ACGTACGTACGT"))
			results <- h
			errs <- err
		}()
	}
	var first hashcodec.Hash
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
		h := <-results
		if i == 0 {
			first = h
		} else if h != first {
			t.Fatalf("concurrent PutSequence calls returned different hashes")
		}
	}
}
