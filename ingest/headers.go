package ingest

import "strings"

// ParsedHeader is what a header parser extracts from a raw FASTA header
// line.
type ParsedHeader struct {
	Accession string
	TaxonID   string // "unknown" when the source schema carries no taxon id
	Name      string // free-text description, for diagnostics only
}

// HeaderParser recognizes one source database's header schema.
type HeaderParser interface {
	// Matches reports whether header belongs to this parser's schema.
	Matches(header string) bool
	// Parse extracts the accession/taxon-id/name. Only called when
	// Matches returned true.
	Parse(header string) ParsedHeader
}

// unknownTaxonID is the fallback taxon-id for any schema that carries
// none.
const unknownTaxonID = "unknown"

// uniprotParser recognizes "sp|ACC|NAME ..." and "tr|ACC|NAME ..." headers.
type uniprotParser struct{}

func (uniprotParser) Matches(header string) bool {
	return strings.HasPrefix(header, "sp|") || strings.HasPrefix(header, "tr|")
}

func (uniprotParser) Parse(header string) ParsedHeader {
	fields := strings.SplitN(header, "|", 3)
	acc := ""
	name := ""
	if len(fields) > 1 {
		acc = fields[1]
	}
	if len(fields) > 2 {
		name = fields[2]
	}
	return ParsedHeader{Accession: acc, TaxonID: uniprotTaxon(header), Name: name}
}

// uniprotTaxon extracts the NCBI taxon id from a UniProt description's
// "OX=9606" field. Headers without one (truncated test fixtures, older
// dumps) fall back to unknown.
func uniprotTaxon(header string) string {
	for _, tok := range strings.Fields(header) {
		if v, ok := strings.CutPrefix(tok, "OX="); ok && v != "" {
			return v
		}
	}
	return unknownTaxonID
}

// ncbiRefSeqPrefixes are the RefSeq accession prefixes the NCBI parser
// recognizes.
var ncbiRefSeqPrefixes = []string{"NP_", "XP_", "YP_", "WP_", "NC_", "NM_", "NR_", "XM_", "XR_"}

// ncbiParser recognizes bare RefSeq accessions, optionally followed by a
// space-delimited description, with no pipe-delimited schema.
type ncbiParser struct{}

func (ncbiParser) Matches(header string) bool {
	token := firstToken(header)
	for _, p := range ncbiRefSeqPrefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

func (ncbiParser) Parse(header string) ParsedHeader {
	token := firstToken(header)
	name := strings.TrimSpace(strings.TrimPrefix(header, token))
	return ParsedHeader{Accession: token, TaxonID: unknownTaxonID, Name: name}
}

// pdbParser recognizes "pdb|ID|CHAIN" headers.
type pdbParser struct{}

func (pdbParser) Matches(header string) bool {
	return strings.HasPrefix(header, "pdb|")
}

func (pdbParser) Parse(header string) ParsedHeader {
	fields := strings.SplitN(header, "|", 3)
	acc := ""
	chain := ""
	if len(fields) > 1 {
		acc = fields[1]
	}
	if len(fields) > 2 {
		chain = fields[2]
	}
	id := acc
	if chain != "" {
		id = acc + "_" + chain
	}
	return ParsedHeader{Accession: id, TaxonID: unknownTaxonID, Name: chain}
}

// genericParser is the last-resort fallback: the entire first
// whitespace-delimited token as accession, taxon-id unknown. It
// always matches, so it must be registered last.
type genericParser struct{}

func (genericParser) Matches(string) bool { return true }

func (genericParser) Parse(header string) ParsedHeader {
	token := firstToken(header)
	name := strings.TrimSpace(strings.TrimPrefix(header, token))
	return ParsedHeader{Accession: token, TaxonID: unknownTaxonID, Name: name}
}

func firstToken(header string) string {
	i := strings.IndexAny(header, " \t")
	if i < 0 {
		return header
	}
	return header[:i]
}

// defaultParsers is the dispatch order: specific schemas first, the
// generic fallback last so it never shadows a recognized format.
var defaultParsers = []HeaderParser{
	uniprotParser{},
	pdbParser{},
	ncbiParser{},
	genericParser{},
}

// ParseHeader dispatches header to the first matching parser in parsers.
func ParseHeader(header string, parsers []HeaderParser) ParsedHeader {
	for _, p := range parsers {
		if p.Matches(header) {
			return p.Parse(header)
		}
	}
	return genericParser{}.Parse(header)
}
