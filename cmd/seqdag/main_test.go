package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seqdag/seqdag/kvstore"
)

const testFasta = `>sp|P00001|CYC_HUMAN
MGDVEKGKKIFVQKCAQCHTVEKGGKHKTGPNLHGLFGRKTGQAPGYSYTAANKNKGIIWGEDTLMEYLENPKKYIPGTKMIFAGIKKKTEREDLIAYLKKATNE
>sp|P00002|CYC_CHICK
MGDVEKGKKIFVQKCAQCHTVEKGGKHKTGPNLHGLFGRKTGQAPGYSYTAANKNKGIIWGEDTLMEYLENPKKYIPGTKMIFAGIKKKTEREDLIAYLKKATSS
>tr|Q99999|FAKE_HUMAN
MGDVEKGKKIFVQKCAQCHTVEKGGKHKTGPNLHGLFGRKTGQAPGYSYTAANKNKGIIWGEDTLMEYLENPKKYIPGTKMIFAGIKKKTEREDLIAYLKKATAA
`

func runCmd(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var out, errb bytes.Buffer
	code = run(args, &out, &errb)
	return out.String(), errb.String(), code
}

func setupStore(t *testing.T) (dataDir, fastaPath string) {
	t.Helper()
	dataDir = t.TempDir()
	fastaPath = filepath.Join(t.TempDir(), "seqs.fasta")
	if err := os.WriteFile(fastaPath, []byte(testFasta), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, stderr, code := runCmd(t, "init", "--data-dir", dataDir); code != 0 {
		t.Fatalf("init failed: code=%d stderr=%s", code, stderr)
	}
	return dataDir, fastaPath
}

func TestInitCreatesStore(t *testing.T) {
	dataDir := t.TempDir()
	stdout, stderr, code := runCmd(t, "init", "--data-dir", dataDir)
	if code != 0 {
		t.Fatalf("init failed: code=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, dataDir) {
		t.Fatalf("expected confirmation mentioning %s, got %q", dataDir, stdout)
	}
	l := kvstore.NewLayout(dataDir)
	if _, err := os.Stat(l.DBFile()); err != nil {
		t.Fatalf("expected db file: %v", err)
	}
	if _, err := os.Stat(l.ConfigPath()); err != nil {
		t.Fatalf("expected config file: %v", err)
	}
	if _, err := os.Stat(l.FilterSnapshotPath()); err != nil {
		t.Fatalf("expected filter snapshot: %v", err)
	}
}

func TestIngestListInfoVerify(t *testing.T) {
	dataDir, fastaPath := setupStore(t)

	stdout, stderr, code := runCmd(t, "ingest", "uniprot", fastaPath, "--data-dir", dataDir)
	if code != 0 {
		t.Fatalf("ingest failed: code=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "uniprot@") {
		t.Fatalf("unexpected ingest output: %q", stdout)
	}

	stdout, stderr, code = runCmd(t, "list", "--data-dir", dataDir)
	if code != 0 {
		t.Fatalf("list failed: code=%d stderr=%s", code, stderr)
	}
	if strings.TrimSpace(stdout) != "uniprot" {
		t.Fatalf("expected single manifest-id 'uniprot', got %q", stdout)
	}

	stdout, stderr, code = runCmd(t, "info", "uniprot", "--data-dir", dataDir)
	if code != 0 {
		t.Fatalf("info failed: code=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "chunks=") {
		t.Fatalf("unexpected info output: %q", stdout)
	}

	stdout, stderr, code = runCmd(t, "verify", "uniprot", "--data-dir", dataDir)
	if code != 0 {
		t.Fatalf("verify failed: code=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "OK") {
		t.Fatalf("expected verify OK, got %q", stdout)
	}
}

func TestGetByAccessionAndHashMatch(t *testing.T) {
	dataDir, fastaPath := setupStore(t)
	if _, stderr, code := runCmd(t, "ingest", "uniprot", fastaPath, "--data-dir", dataDir); code != 0 {
		t.Fatalf("ingest failed: code=%d stderr=%s", code, stderr)
	}

	byAccession, stderr, code := runCmd(t, "get", "uniprot/P00001", "--data-dir", dataDir)
	if code != 0 {
		t.Fatalf("get by accession failed: code=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(byAccession, "MGDVEKGKKIFVQKCAQCHTVEKGGKHKTGPNLHGLFGRKTGQAPGYSYTAANKNKGIIWGEDTLMEYLENPKKYIPGTKMIFAGIKKKTEREDLIAYLKKATNE") {
		t.Fatalf("unexpected sequence bytes: %q", byAccession)
	}
}

func TestGetInfoPrintsHashAndRepresentations(t *testing.T) {
	dataDir, fastaPath := setupStore(t)
	if _, stderr, code := runCmd(t, "ingest", "uniprot", fastaPath, "--data-dir", dataDir); code != 0 {
		t.Fatalf("ingest failed: code=%d stderr=%s", code, stderr)
	}

	stdout, stderr, code := runCmd(t, "get", "uniprot/P00001", "--info", "--data-dir", dataDir)
	if code != 0 {
		t.Fatalf("get --info failed: code=%d stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "hash=") || !strings.Contains(stdout, "alphabet=protein") {
		t.Fatalf("unexpected info output: %q", stdout)
	}
	if !strings.Contains(stdout, "uniprot/P00001") {
		t.Fatalf("expected representation line, got %q", stdout)
	}
}

func TestGetUnknownAccessionFails(t *testing.T) {
	dataDir, fastaPath := setupStore(t)
	if _, stderr, code := runCmd(t, "ingest", "uniprot", fastaPath, "--data-dir", dataDir); code != 0 {
		t.Fatalf("ingest failed: code=%d stderr=%s", code, stderr)
	}

	_, _, code := runCmd(t, "get", "uniprot/NOPE", "--data-dir", dataDir)
	if code == 0 {
		t.Fatal("expected non-zero exit for unknown accession")
	}
}

func TestResolveReturnsIngestedVersion(t *testing.T) {
	dataDir, fastaPath := setupStore(t)
	stdout, stderr, code := runCmd(t, "ingest", "uniprot", fastaPath, "--data-dir", dataDir)
	if code != 0 {
		t.Fatalf("ingest failed: code=%d stderr=%s", code, stderr)
	}
	sealed := strings.SplitN(strings.TrimPrefix(stdout, "sealed "), ":", 2)[0]

	stdout, stderr, code = runCmd(t, "resolve", "uniprot", "--data-dir", dataDir)
	if code != 0 {
		t.Fatalf("resolve failed: code=%d stderr=%s", code, stderr)
	}
	if strings.TrimSpace(stdout) != sealed {
		t.Fatalf("resolve mismatch: ingest sealed %q, resolve returned %q", sealed, stdout)
	}
}

func TestIngestMissingFileReturnsGenericError(t *testing.T) {
	dataDir := t.TempDir()
	if _, stderr, code := runCmd(t, "init", "--data-dir", dataDir); code != 0 {
		t.Fatalf("init failed: code=%d stderr=%s", code, stderr)
	}
	_, _, code := runCmd(t, "ingest", "uniprot", filepath.Join(dataDir, "missing.fasta"), "--data-dir", dataDir)
	if code != 1 {
		t.Fatalf("expected exit code 1 for missing file, got %d", code)
	}
}

func TestWrongArgCountIsUsageError(t *testing.T) {
	_, _, code := runCmd(t, "ingest", "only-one-arg")
	if code != 2 {
		t.Fatalf("expected usage exit code 2, got %d", code)
	}
}
