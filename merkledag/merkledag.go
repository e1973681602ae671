// Package merkledag implements the Merkle DAG built over a manifest's
// chunk list, with deterministic root computation and O(log n) membership
// proofs.
package merkledag

import (
	"fmt"

	"github.com/seqdag/seqdag/hashcodec"
)

// DefaultFanout is the number of children folded into one internal node
// hash at each level.
const DefaultFanout = 16

// Step is one level of a membership proof: the sibling hashes in the
// target's group (in group order, target excluded) and the target's
// Position within that group, needed to re-insert it correctly during
// verification.
type Step struct {
	Siblings []hashcodec.Hash
	Position int
}

// Proof is a membership path ordered leaf-to-root: Proof[0] is the leaf's
// own group, Proof[len-1] is the group just below the root.
type Proof []Step

// Root computes the Merkle root over leaves (chunk hashes, in
// chunk_list order) at the given fan-out. An empty chunk list has the
// well-defined root Sum256(nil); a
// single-leaf list has a root equal to that leaf's hash, with no further
// hashing.
func Root(fanout int, leaves []hashcodec.Hash) hashcodec.Hash {
	if len(leaves) == 0 {
		return hashcodec.Sum256(nil)
	}
	level := leaves
	for len(level) > 1 {
		level = foldLevel(fanout, level)
	}
	return level[0]
}

// BuildProof returns the membership proof for the leaf at leaves[index].
func BuildProof(fanout int, index int, leaves []hashcodec.Hash) (Proof, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("merkledag: index %d out of range [0,%d)", index, len(leaves))
	}
	var steps Proof
	level := leaves
	idx := index
	for len(level) > 1 {
		groupStart := (idx / fanout) * fanout
		groupEnd := groupStart + fanout
		if groupEnd > len(level) {
			groupEnd = len(level)
		}
		group := level[groupStart:groupEnd]
		pos := idx - groupStart

		siblings := make([]hashcodec.Hash, 0, len(group)-1)
		for i, h := range group {
			if i != pos {
				siblings = append(siblings, h)
			}
		}
		steps = append(steps, Step{Siblings: siblings, Position: pos})

		level = foldLevel(fanout, level)
		idx = groupStart / fanout
	}
	return steps, nil
}

// Verify recomputes the root by folding leafHash up through proof and
// compares it to root. O(log n) in the size of the original chunk list.
func Verify(fanout int, leafHash hashcodec.Hash, proof Proof, root hashcodec.Hash) bool {
	current := leafHash
	for _, step := range proof {
		group := make([]hashcodec.Hash, len(step.Siblings)+1)
		if step.Position < 0 || step.Position >= len(group) {
			return false
		}
		si := 0
		for i := range group {
			if i == step.Position {
				group[i] = current
			} else {
				group[i] = step.Siblings[si]
				si++
			}
		}
		current = hashGroup(group)
	}
	return current == root
}

// Node is one internal node of the DAG: its hash and the ordered child
// hashes it was folded from.
type Node struct {
	Hash     hashcodec.Hash
	Children []hashcodec.Hash
}

// Nodes returns every internal node produced while folding leaves to the
// root, lowest level first. An empty or single-leaf list folds to no
// internal nodes (the root is the leaf itself, or the empty-list constant).
func Nodes(fanout int, leaves []hashcodec.Hash) []Node {
	if fanout < 2 {
		fanout = DefaultFanout
	}
	var nodes []Node
	level := leaves
	for len(level) > 1 {
		next := make([]hashcodec.Hash, 0, (len(level)+fanout-1)/fanout)
		for i := 0; i < len(level); i += fanout {
			end := i + fanout
			if end > len(level) {
				end = len(level)
			}
			group := append([]hashcodec.Hash(nil), level[i:end]...)
			h := hashGroup(group)
			nodes = append(nodes, Node{Hash: h, Children: group})
			next = append(next, h)
		}
		level = next
	}
	return nodes
}

func foldLevel(fanout int, level []hashcodec.Hash) []hashcodec.Hash {
	if fanout < 2 {
		fanout = DefaultFanout
	}
	next := make([]hashcodec.Hash, 0, (len(level)+fanout-1)/fanout)
	for i := 0; i < len(level); i += fanout {
		end := i + fanout
		if end > len(level) {
			end = len(level)
		}
		next = append(next, hashGroup(level[i:end]))
	}
	return next
}

func hashGroup(group []hashcodec.Hash) hashcodec.Hash {
	buf := make([]byte, 0, 32*len(group))
	for _, h := range group {
		buf = append(buf, h[:]...)
	}
	return hashcodec.Sum256(buf)
}
