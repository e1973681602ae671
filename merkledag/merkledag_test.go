package merkledag

import (
	"testing"

	"github.com/seqdag/seqdag/hashcodec"
)

func hashOf(s string) hashcodec.Hash {
	var h hashcodec.Hash
	copy(h[:], s)
	return h
}

// Four leaves, fan-out 2, root = SHA256(SHA256(c1‖c2) ‖ SHA256(c3‖c4)).
func TestRootMatchesWorkedExample(t *testing.T) {
	c1 := hashOf("c1")
	c2 := hashOf("c2")
	c3 := hashOf("c3")
	c4 := hashOf("c4")
	leaves := []hashcodec.Hash{c1, c2, c3, c4}

	left := hashcodec.Sum256(append(append([]byte{}, c1[:]...), c2[:]...))
	right := hashcodec.Sum256(append(append([]byte{}, c3[:]...), c4[:]...))
	want := hashcodec.Sum256(append(append([]byte{}, left[:]...), right[:]...))

	got := Root(2, leaves)
	if got != want {
		t.Fatalf("root mismatch: got %x want %x", got, want)
	}

	proof, err := BuildProof(2, 2, leaves) // leaf index 2 == c3
	if err != nil {
		t.Fatal(err)
	}
	if len(proof) != 2 {
		t.Fatalf("expected a 2-step proof, got %d", len(proof))
	}
	if len(proof[0].Siblings) != 1 || proof[0].Siblings[0] != c4 || proof[0].Position != 0 {
		t.Fatalf("unexpected leaf-level step: %+v", proof[0])
	}
	if len(proof[1].Siblings) != 1 || proof[1].Siblings[0] != left || proof[1].Position != 1 {
		t.Fatalf("unexpected upper step: %+v", proof[1])
	}

	if !Verify(2, c3, proof, got) {
		t.Fatalf("expected proof for c3 to verify against root")
	}
}

func TestVerifyRejectsTamperedLeaf(t *testing.T) {
	leaves := []hashcodec.Hash{hashOf("c1"), hashOf("c2"), hashOf("c3"), hashOf("c4")}
	root := Root(2, leaves)
	proof, err := BuildProof(2, 1, leaves)
	if err != nil {
		t.Fatal(err)
	}
	wrong := hashOf("not-c2")
	if Verify(2, wrong, proof, root) {
		t.Fatalf("expected verification to fail for a tampered leaf")
	}
}

func TestRootEmptyChunkListIsWellDefined(t *testing.T) {
	got := Root(16, nil)
	want := hashcodec.Sum256(nil)
	if got != want {
		t.Fatalf("empty root mismatch: got %x want %x", got, want)
	}
}

func TestRootSingleChunkEqualsItsOwnHash(t *testing.T) {
	only := hashOf("only-chunk")
	got := Root(16, []hashcodec.Hash{only})
	if got != only {
		t.Fatalf("expected single-chunk root to equal the chunk hash, got %x", got)
	}
	proof, err := BuildProof(16, 0, []hashcodec.Hash{only})
	if err != nil {
		t.Fatal(err)
	}
	if len(proof) != 0 {
		t.Fatalf("expected an empty proof for a single-leaf tree, got %+v", proof)
	}
	if !Verify(16, only, proof, got) {
		t.Fatalf("expected trivial single-leaf proof to verify")
	}
}

func TestRootHandlesNonPowerOfFanoutLeafCounts(t *testing.T) {
	leaves := []hashcodec.Hash{hashOf("c1"), hashOf("c2"), hashOf("c3")}
	root := Root(2, leaves)
	for i, leaf := range leaves {
		proof, err := BuildProof(2, i, leaves)
		if err != nil {
			t.Fatal(err)
		}
		if !Verify(2, leaf, proof, root) {
			t.Fatalf("leaf %d failed to verify against root", i)
		}
	}
}

func TestBuildProofRejectsOutOfRangeIndex(t *testing.T) {
	leaves := []hashcodec.Hash{hashOf("c1")}
	if _, err := BuildProof(2, 5, leaves); err == nil {
		t.Fatalf("expected an out-of-range error")
	}
}
