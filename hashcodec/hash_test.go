package hashcodec

import "testing"

func TestNormalizeSequenceUppercasesAndStripsWhitespace(t *testing.T) {
	got, err := NormalizeSequence([]byte("acgt\n TT \t"), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "ACGTTT" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeSequenceStrictRejectsForbiddenByte(t *testing.T) {
	_, err := NormalizeSequence([]byte("ACG1T"), true)
	if err == nil {
		t.Fatalf("expected error")
	}
	ae, ok := err.(*AlphabetError)
	if !ok {
		t.Fatalf("expected *AlphabetError, got %T", err)
	}
	if ae.Position != 3 || ae.Byte != '1' {
		t.Fatalf("got position=%d byte=%q", ae.Position, ae.Byte)
	}
}

func TestHashSequenceDeterministic(t *testing.T) {
	a, _ := NormalizeSequence([]byte("ACGT"), true)
	b, _ := NormalizeSequence([]byte("acgt"), true)
	if HashSequence(a) != HashSequence(b) {
		t.Fatalf("expected equal hashes for equivalent input")
	}
}

func TestVarintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40} {
		buf := PutVarint(nil, v)
		got, n, err := ReadVarint(buf)
		if err != nil {
			t.Fatalf("ReadVarint(%d): %v", v, err)
		}
		if got != v || n != len(buf) {
			t.Fatalf("roundtrip mismatch: want %d got %d (consumed %d of %d)", v, got, n, len(buf))
		}
	}
}

func TestPutBytesReadBytesRoundTrip(t *testing.T) {
	buf := PutBytes(nil, []byte("ACGT"))
	buf = PutBytes(buf, []byte{})
	got1, n1, err := ReadBytes(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(got1) != "ACGT" {
		t.Fatalf("got %q", got1)
	}
	got2, _, err := ReadBytes(buf[n1:])
	if err != nil {
		t.Fatal(err)
	}
	if len(got2) != 0 {
		t.Fatalf("expected empty, got %q", got2)
	}
}
