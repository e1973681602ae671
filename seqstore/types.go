// Package seqstore implements deduplicated storage of canonical
// sequence bytes keyed by content hash, with a representation set per hash.
package seqstore

import (
	"time"

	"github.com/seqdag/seqdag/hashcodec"
)

// Alphabet classifies a canonical sequence's residue kind.
type Alphabet string

const (
	AlphabetDNA     Alphabet = "DNA"
	AlphabetRNA     Alphabet = "RNA"
	AlphabetProtein Alphabet = "protein"
	AlphabetUnknown Alphabet = "unknown"
)

// CanonicalSequence is the immutable (hash, bytes) pair at the core of the
// store. hash == SHA256(bytes) always holds for a persisted instance.
type CanonicalSequence struct {
	Hash     hashcodec.Hash
	Bytes    []byte
	Length   int
	Alphabet Alphabet
}

// Representation is one source database's view of a canonical sequence.
type Representation struct {
	SourceTag      string    `json:"source_tag"`
	OriginalHeader string    `json:"original_header"`
	Accession      string    `json:"accession"`
	TaxonID        string    `json:"taxon_id"`
	IngestTime     time.Time `json:"ingest_time"`
}

// key returns the (source-tag, accession) identity used for idempotent
// merge: a representation set never holds two entries with the same key.
func (r Representation) key() [2]string { return [2]string{r.SourceTag, r.Accession} }

// InferAlphabet guesses DNA/RNA/protein from residue composition. It never
// errors: unrecognized composition falls back to AlphabetUnknown, and
// callers may always override with an asserted kind instead.
func InferAlphabet(normalized []byte) Alphabet {
	if len(normalized) == 0 {
		return AlphabetUnknown
	}
	var acgt, u, other int
	for _, b := range normalized {
		switch b {
		case 'A', 'C', 'G', 'T':
			acgt++
		case 'U':
			u++
		default:
			if b != '*' && b != '-' {
				other++
			}
		}
	}
	total := len(normalized)
	if other*10 > total { // more than 10% non-nucleotide residues
		return AlphabetProtein
	}
	if u > 0 && acgt+u == total-other {
		return AlphabetRNA
	}
	return AlphabetDNA
}
