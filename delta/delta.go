// Package delta implements encoding one canonical sequence as a list of
// edit operations against a reference, and reconstructing it.
package delta

import (
	"fmt"

	"github.com/seqdag/seqdag/bioerr"
	"github.com/seqdag/seqdag/hashcodec"
)

// OpKind distinguishes the three op shapes a delta is built from.
type OpKind byte

const (
	OpCopy   OpKind = 'C'
	OpInsert OpKind = 'I'
	OpSkip   OpKind = 'S'
)

// Op is one edit operation. For OpCopy, Offset/Length address the
// reference; for OpInsert, Data holds the literal bytes to emit; for
// OpSkip, Length is the number of reference bytes passed over without
// producing output (bookkeeping only — decode ignores it).
type Op struct {
	Kind   OpKind
	Offset int
	Length int
	Data   []byte
}

// minMatchLen is the shortest run encode will recognize as a Copy instead
// of folding it into the surrounding Insert. Shorter than the 12-mer
// estimator similarity.go uses to score candidate references: encode must
// still capture short shared runs between otherwise-similar sequences.
const minMatchLen = 4

// Encode produces an ordered op list such that Decode(reference, ops)
// reproduces target exactly. Size of ops is bounded by |target| + O(|diff|):
// every byte of target appears in exactly one Insert or is covered by
// exactly one Copy.
func Encode(reference, target []byte) []Op {
	if len(target) == 0 {
		return []Op{{Kind: OpInsert, Data: []byte{}}}
	}
	if len(reference) > 0 && bytesEqual(reference, target) {
		return []Op{{Kind: OpCopy, Offset: 0, Length: len(reference)}}
	}

	index := buildKmerIndex(reference, minMatchLen)

	var ops []Op
	var pendingInsert []byte
	refCursor := 0
	i := 0
	for i < len(target) {
		matchPos, matchLen := bestMatch(reference, target, i, index)
		if matchLen < minMatchLen {
			pendingInsert = append(pendingInsert, target[i])
			i++
			continue
		}
		if len(pendingInsert) > 0 {
			ops = append(ops, Op{Kind: OpInsert, Data: pendingInsert})
			pendingInsert = nil
		}
		if matchPos > refCursor {
			ops = append(ops, Op{Kind: OpSkip, Length: matchPos - refCursor})
		}
		ops = append(ops, Op{Kind: OpCopy, Offset: matchPos, Length: matchLen})
		refCursor = matchPos + matchLen
		i += matchLen
	}
	if len(pendingInsert) > 0 {
		ops = append(ops, Op{Kind: OpInsert, Data: pendingInsert})
	}
	if len(ops) == 0 {
		ops = append(ops, Op{Kind: OpInsert, Data: []byte{}})
	}
	return ops
}

// Decode applies ops to reference, deterministically and in a single pass.
func Decode(reference []byte, ops []Op) ([]byte, error) {
	var out []byte
	for _, op := range ops {
		switch op.Kind {
		case OpCopy:
			if op.Offset < 0 || op.Offset+op.Length > len(reference) {
				return nil, fmt.Errorf("delta: copy op out of reference bounds (offset=%d length=%d reflen=%d)", op.Offset, op.Length, len(reference))
			}
			out = append(out, reference[op.Offset:op.Offset+op.Length]...)
		case OpInsert:
			out = append(out, op.Data...)
		case OpSkip:
			// no output
		default:
			return nil, fmt.Errorf("delta: unknown op kind %q", op.Kind)
		}
	}
	return out, nil
}

// DecodeVerified decodes and checks the result against targetHash,
// returning a bioerr.VerificationError on mismatch.
func DecodeVerified(reference []byte, ops []Op, targetHash hashcodec.Hash) ([]byte, error) {
	out, err := Decode(reference, ops)
	if err != nil {
		return nil, bioerr.New(bioerr.KindSchema, "delta.DecodeVerified", "ops", err)
	}
	if actual := hashcodec.HashSequence(out); actual != targetHash {
		return nil, bioerr.VerificationError("delta.DecodeVerified", targetHash.String(), targetHash.Bytes(), actual.Bytes())
	}
	return out, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// buildKmerIndex maps every k-byte substring of reference to the sorted
// list of positions it occurs at, for O(1) average seed lookup during
// encode.
func buildKmerIndex(reference []byte, k int) map[string][]int {
	idx := map[string][]int{}
	if len(reference) < k {
		return idx
	}
	for i := 0; i+k <= len(reference); i++ {
		key := string(reference[i : i+k])
		idx[key] = append(idx[key], i)
	}
	return idx
}

// bestMatch finds the longest run starting at target[pos:] that also
// occurs somewhere in reference, by seeding on the k-byte prefix and
// extending forward. Ties on length break on the smallest reference
// offset, keeping the result deterministic.
func bestMatch(reference, target []byte, pos int, index map[string][]int) (offset, length int) {
	if pos+minMatchLen > len(target) {
		return 0, 0
	}
	seed := string(target[pos : pos+minMatchLen])
	candidates := index[seed]
	bestOffset, bestLen := -1, 0
	for _, refPos := range candidates {
		l := minMatchLen
		for refPos+l < len(reference) && pos+l < len(target) && reference[refPos+l] == target[pos+l] {
			l++
		}
		if l > bestLen || (l == bestLen && (bestOffset == -1 || refPos < bestOffset)) {
			bestOffset, bestLen = refPos, l
		}
	}
	if bestOffset == -1 {
		return 0, 0
	}
	return bestOffset, bestLen
}
