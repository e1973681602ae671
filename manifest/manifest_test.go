package manifest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/seqdag/seqdag/hashcodec"
)

func TestSealDerivesMerkleRootDeterministically(t *testing.T) {
	c1 := hashcodec.Sum256([]byte("c1"))
	c2 := hashcodec.Sum256([]byte("c2"))
	c3 := hashcodec.Sum256([]byte("c3"))

	m1 := Manifest{ManifestID: "uniprot/swissprot", Version: "2026-01-01", ChunkList: []hashcodec.Hash{c1, c2, c3}}.Seal()
	m2 := Manifest{ManifestID: "uniprot/swissprot", Version: "2026-02-01", ChunkList: []hashcodec.Hash{c1, c2, c3}}.Seal()

	if m1.MerkleRoot != m2.MerkleRoot {
		t.Fatalf("expected identical chunk_list to produce identical merkle_root")
	}

	m3 := Manifest{ChunkList: []hashcodec.Hash{c1, c3, c2}}.Seal()
	if m1.MerkleRoot == m3.MerkleRoot {
		t.Fatalf("expected reordered chunk_list to change merkle_root")
	}
}

func TestManifestJSONFieldOrderAndMetadataSorting(t *testing.T) {
	m := Manifest{
		ManifestID:   "uniprot/swissprot",
		Version:      "2026-01-01",
		SequenceTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		TaxonomyTime: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		Metadata:     map[string]string{"zeta": "1", "alpha": "2"},
	}.Seal()

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"manifest_id", "version", "sequence_time", "taxonomy_time", "previous_version", "chunk_list", "merkle_root", "metadata"} {
		if _, ok := fields[want]; !ok {
			t.Fatalf("missing field %q in %s", want, raw)
		}
	}

	alphaIdx := indexOf(string(raw), `"alpha"`)
	zetaIdx := indexOf(string(raw), `"zeta"`)
	if alphaIdx == -1 || zetaIdx == -1 || alphaIdx > zetaIdx {
		t.Fatalf("expected metadata keys sorted lexically in %s", raw)
	}

	var round Manifest
	if err := json.Unmarshal(raw, &round); err != nil {
		t.Fatal(err)
	}
	if round.ManifestID != m.ManifestID || round.MerkleRoot != m.MerkleRoot || len(round.ChunkList) != len(m.ChunkList) {
		t.Fatalf("round-trip mismatch: got %+v want %+v", round, m)
	}
	if !round.SequenceTime.Equal(m.SequenceTime) {
		t.Fatalf("sequence_time round-trip mismatch")
	}
}

func TestManifestRoundTripsPreviousVersion(t *testing.T) {
	m := Manifest{ManifestID: "x", Version: "v2", PreviousVersion: "v1"}.Seal()
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var round Manifest
	if err := json.Unmarshal(raw, &round); err != nil {
		t.Fatal(err)
	}
	if round.PreviousVersion != "v1" {
		t.Fatalf("expected previous_version v1, got %q", round.PreviousVersion)
	}

	root := Manifest{ManifestID: "x", Version: "v1"}.Seal()
	raw2, err := json.Marshal(root)
	if err != nil {
		t.Fatal(err)
	}
	var round2 Manifest
	if err := json.Unmarshal(raw2, &round2); err != nil {
		t.Fatal(err)
	}
	if round2.PreviousVersion != "" {
		t.Fatalf("expected empty previous_version for a root manifest, got %q", round2.PreviousVersion)
	}
}

func TestEmptyChunkListHasWellDefinedRoot(t *testing.T) {
	m := Manifest{ManifestID: "x", Version: "v1"}.Seal()
	want := hashcodec.Sum256(nil)
	if m.MerkleRoot != want {
		t.Fatalf("expected empty chunk_list root %x, got %x", want, m.MerkleRoot)
	}
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
