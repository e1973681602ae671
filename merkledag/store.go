package merkledag

import (
	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/hashcodec"
	"github.com/seqdag/seqdag/kvstore"
)

// PutOps builds the writes persisting every internal node of a manifest's
// DAG into the merkle column family, keyed node-hash -> concatenated child
// hashes, for composition into the same atomic batch as the manifest that
// roots them. Node records are content-addressed, so re-sealing a manifest
// that shares subtrees with an earlier one overwrites identical values.
func PutOps(fanout int, leaves []hashcodec.Hash) []kvstore.Op {
	nodes := Nodes(fanout, leaves)
	ops := make([]kvstore.Op, 0, len(nodes))
	for _, n := range nodes {
		value := make([]byte, 0, 32*len(n.Children))
		for _, c := range n.Children {
			value = append(value, c[:]...)
		}
		ops = append(ops, kvstore.PutOp(kvstore.CFMerkle, n.Hash.Bytes(), value))
	}
	return ops
}

// Children returns the ordered child hashes recorded for an internal node,
// ok=false when hash is a leaf (or unknown) rather than a stored node.
func Children(db *kvstore.DB, hash hashcodec.Hash) ([]hashcodec.Hash, bool, error) {
	value, ok, err := db.Get(kvstore.CFMerkle, hash.Bytes())
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	if len(value)%32 != 0 {
		return nil, false, bioerr.SchemaError("merkledag.Children", "merkle")
	}
	children := make([]hashcodec.Hash, 0, len(value)/32)
	for i := 0; i+32 <= len(value); i += 32 {
		h, _ := hashcodec.HashFromBytes(value[i : i+32])
		children = append(children, h)
	}
	// A stored node's hash is always recomputable from its children; a
	// mismatch means the record was corrupted under us.
	if hashGroup(children) != hash {
		return nil, false, bioerr.VerificationError("merkledag.Children", hash.String(), hash.Bytes(), hashGroup(children).Bytes())
	}
	return children, true, nil
}
