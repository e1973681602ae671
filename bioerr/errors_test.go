package bioerr

import (
	"errors"
	"testing"
)

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{NotFound("seqstore.GetSequence", "abcd"), 1},
		{VerificationError("query.Reconstruct", "abcd", []byte{1}, []byte{2}), 3},
		{ChunkUnavailable("syncengine.fetch", "abcd"), 4},
		{StorageError("kvstore.PutBatch", errors.New("disk full")), 5},
		{errors.New("untyped"), 1},
	}
	for _, c := range cases {
		if got := ExitCode(c.err); got != c.want {
			t.Errorf("ExitCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestErrorIsComparesKindOnly(t *testing.T) {
	a := NotFound("seqstore.GetSequence", "hash-a")
	b := NotFound("query.GetByHash", "hash-b")
	if !errors.Is(a, b) {
		t.Fatalf("expected NotFound errors to compare equal by kind")
	}
	c := StorageError("kvstore.Get", nil)
	if errors.Is(a, c) {
		t.Fatalf("expected different kinds to compare unequal")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("bbolt: database not open")
	err := StorageError("kvstore.Open", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be discoverable via errors.Is")
	}
}
