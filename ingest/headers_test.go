package ingest

import "testing"

func TestParseHeaderUniProt(t *testing.T) {
	p := ParseHeader("sp|P00001|CYC_HUMAN Cytochrome c", defaultParsers)
	if p.Accession != "P00001" || p.TaxonID != unknownTaxonID {
		t.Fatalf("unexpected parse: %+v", p)
	}
}

func TestParseHeaderUniProtTaxon(t *testing.T) {
	p := ParseHeader("sp|P00001|CYC_HUMAN Cytochrome c OS=Homo sapiens OX=9606 GN=CYCS PE=1 SV=2", defaultParsers)
	if p.Accession != "P00001" || p.TaxonID != "9606" {
		t.Fatalf("unexpected parse: %+v", p)
	}
}

func TestParseHeaderNCBIRefSeq(t *testing.T) {
	p := ParseHeader("NP_001234.1 some protein", defaultParsers)
	if p.Accession != "NP_001234.1" || p.TaxonID != unknownTaxonID {
		t.Fatalf("unexpected parse: %+v", p)
	}
}

func TestParseHeaderPDB(t *testing.T) {
	p := ParseHeader("pdb|1ABC|A", defaultParsers)
	if p.Accession != "1ABC_A" {
		t.Fatalf("unexpected parse: %+v", p)
	}
}

func TestParseHeaderGenericFallback(t *testing.T) {
	p := ParseHeader("custom_id_42 some description", defaultParsers)
	if p.Accession != "custom_id_42" || p.TaxonID != unknownTaxonID {
		t.Fatalf("unexpected parse: %+v", p)
	}
}
