package pin

import "testing"

func TestGenerateAlphabetAndLength(t *testing.T) {
	for i := 0; i < 500; i++ {
		p, err := Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(p) != Length {
			t.Fatalf("expected length %d, got %d (%q)", Length, len(p), p)
		}
		for _, c := range p {
			if !inAlphabet(byte(c)) {
				t.Fatalf("character %q not in alphabet %q", c, Alphabet)
			}
		}
		if !Valid(p) {
			t.Fatalf("generated PIN %q failed Valid()", p)
		}
	}
}

func TestValidRejectsConfusables(t *testing.T) {
	for _, bad := range []string{"ABCDE0", "ABCDEO", "ABCDEI", "ABCDE1", "ABCDEL"} {
		if Valid(bad) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
}

func TestValidRejectsWrongLength(t *testing.T) {
	if Valid("ABCDE") || Valid("ABCDEFG") {
		t.Fatal("expected wrong-length PINs to be invalid")
	}
}

func TestEqualConstantTime(t *testing.T) {
	if !Equal("ABCDEF", "ABCDEF") {
		t.Fatal("expected equal PINs to compare equal")
	}
	if Equal("ABCDEF", "ABCDEG") {
		t.Fatal("expected different PINs to compare unequal")
	}
	if Equal("ABCDEF", "ABCDE") {
		t.Fatal("expected different-length PINs to compare unequal")
	}
}
