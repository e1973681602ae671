package merkledag

import (
	"path/filepath"
	"testing"

	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

func TestNodesCoverEveryLevel(t *testing.T) {
	leaves := []hashcodec.Hash{hashOf("c1"), hashOf("c2"), hashOf("c3"), hashOf("c4")}
	nodes := Nodes(2, leaves)
	// Two leaf-level pairs plus the root.
	if len(nodes) != 3 {
		t.Fatalf("expected 3 internal nodes, got %d", len(nodes))
	}
	if nodes[len(nodes)-1].Hash != Root(2, leaves) {
		t.Fatalf("expected the last node to be the root")
	}
}

func TestNodesEmptyAndSingleLeaf(t *testing.T) {
	if n := Nodes(2, nil); len(n) != 0 {
		t.Fatalf("expected no nodes for an empty chunk list, got %d", len(n))
	}
	if n := Nodes(2, []hashcodec.Hash{hashOf("only")}); len(n) != 0 {
		t.Fatalf("expected no nodes for a single-leaf list, got %d", len(n))
	}
}

func TestPutOpsAndChildrenRoundTrip(t *testing.T) {
	db, err := kvstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	leaves := []hashcodec.Hash{hashOf("c1"), hashOf("c2"), hashOf("c3")}
	if err := db.PutBatch(PutOps(2, leaves)); err != nil {
		t.Fatal(err)
	}

	root := Root(2, leaves)
	children, ok, err := Children(db, root)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("expected the root node to be stored")
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children under the root, got %d", len(children))
	}

	// A leaf hash has no node record.
	_, ok, err = Children(db, leaves[0])
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected no node record for a leaf hash")
	}
}
