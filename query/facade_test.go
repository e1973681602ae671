package query

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seqdag/seqdag/chunk"
	"github.com/seqdag/seqdag/delta"
	"github.com/seqdag/seqdag/filter"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/ingest"
	"github.com/seqdag/seqdag/kvstore"
	"github.com/seqdag/seqdag/manifest"
	"github.com/seqdag/seqdag/seqstore"
	"github.com/seqdag/seqdag/temporal"
)

const largeishFasta = `>sp|P00001|A
MGDVEKGKKIFVQKCAQCHTVEKGGKHKTGPNLHGLFGRKTGQAPGYSYTAANKNKGIIWGEDTLMEYLENPKKYIPGTKMIFAGIKKKTEREDLIAYLKKATNE
>sp|P00002|B
MGDVEKGKKIFVQKCAQCHTVEKGGKHKTGPNLHGLFGRKTGQAPGYSYTAANKNKGIIWGEDTLMEYLENPKKYIPGTKMIFAGIKKKTEREDLIAYLKKATSS
>sp|P00003|C
MGDVEKGKKIFVQKCAQCHTVEKGGKHKTGPNLHGLFGRKTGQAPGYSYTAANKNKGIIWGEDTLMEYLENPKKYIPGTKMIFAGIKKKTEREDLIAYLKKATAA
`

func newTestFacade(t *testing.T) (*Facade, manifest.Manifest) {
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
	codec := hashcodec.NewCodec(0)
	sequences := seqstore.New(db, f, codec, false)
	chunks := chunk.NewStore(db, codec)
	deltas := delta.NewStore(db, codec)
	manifests := manifest.NewStore(db, codec)
	temporalIndex, err := temporal.New(db, 16)
	if err != nil {
		t.Fatal(err)
	}

	cfg := ingest.DefaultConfig()
	cfg.ChunkConfig.MinGroupCount = 1
	cfg.ChunkConfig.ReferenceK = 1
	pipeline := ingest.New(db, sequences, chunks, deltas, manifests, temporalIndex, cfg)

	ingestTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := pipeline.Ingest(context.Background(), "uniprot", strings.NewReader(largeishFasta), "test-db", ingestTime, ingestTime)
	if err != nil {
		t.Fatal(err)
	}

	facade, err := New(db, sequences, chunks, deltas, manifests, 16)
	if err != nil {
		t.Fatal(err)
	}
	return facade, m
}

func TestGetByAccessionAndHash(t *testing.T) {
	facade, _ := newTestFacade(t)

	b, err := facade.GetByAccession("uniprot", "P00001", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(b), "MGDVEKGKKIFVQKCAQCHTVEKGGKHKTGPNLHGLFGRKTGQAPGYSYTAANKNKGIIWGEDTLMEYLENPKKYIPGTKMIFAGIKKKTEREDLIAYLKKAT") {
		t.Fatalf("unexpected bytes: %q", b)
	}

	h := hashcodec.HashSequence(b)
	again, err := facade.GetByHash(h)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(b) {
		t.Fatalf("GetByHash mismatch")
	}
}

func TestRepresentationsAccompanyHash(t *testing.T) {
	facade, _ := newTestFacade(t)
	b, err := facade.GetByAccession("uniprot", "P00002", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	reps, err := facade.Representations(hashcodec.HashSequence(b))
	if err != nil {
		t.Fatal(err)
	}
	if len(reps) != 1 || reps[0].Accession != "P00002" || reps[0].SourceTag != "uniprot" {
		t.Fatalf("unexpected representations: %+v", reps)
	}
}

func TestVerifyManifestSucceeds(t *testing.T) {
	facade, m := newTestFacade(t)
	if err := facade.VerifyManifest(m); err != nil {
		t.Fatalf("VerifyManifest: %v", err)
	}
}

func TestVerifyManifestDetectsRootTamper(t *testing.T) {
	facade, m := newTestFacade(t)
	m.MerkleRoot = hashcodec.Sum256([]byte("tampered"))
	if err := facade.VerifyManifest(m); err == nil {
		t.Fatal("expected verification failure for tampered root")
	}
}

func TestIterTaxonYieldsIngestedHashes(t *testing.T) {
	facade, _ := newTestFacade(t)
	count := 0
	err := facade.IterTaxon("unknown", func(hashcodec.Hash) bool {
		count++
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("expected 3 hashes under taxon 'unknown', got %d", count)
	}
}
