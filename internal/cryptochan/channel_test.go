package cryptochan

import (
	"bytes"
	"testing"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	a := New()
	b := New()
	if err := a.DeriveKey("ABCDEF"); err != nil {
		t.Fatalf("derive a: %v", err)
	}
	if err := b.DeriveKey("ABCDEF"); err != nil {
		t.Fatalf("derive b: %v", err)
	}

	const msg = "same key, two derivations"
	ct, ok := a.Encrypt([]byte(msg))
	if !ok {
		t.Fatal("encrypt failed")
	}
	pt, ok := b.Decrypt(ct)
	if !ok || string(pt) != msg {
		t.Fatalf("cross-instance decrypt failed: ok=%v pt=%q", ok, pt)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := New()
	if err := c.DeriveKey("PINCOD"); err != nil {
		t.Fatal(err)
	}

	sizes := []int{0, 1, 16, 1200, 27000, 1 << 16}
	for _, n := range sizes {
		pt := bytes.Repeat([]byte{0x5A}, n)
		ct, ok := c.Encrypt(pt)
		if !ok {
			t.Fatalf("encrypt failed for size %d", n)
		}
		got, ok := c.Decrypt(ct)
		if !ok {
			t.Fatalf("decrypt failed for size %d", n)
		}
		if !bytes.Equal(got, pt) {
			t.Fatalf("round trip mismatch at size %d", n)
		}
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c := New()
	if err := c.DeriveKey("ABCDEF"); err != nil {
		t.Fatal(err)
	}

	ct, ok := c.Encrypt([]byte("video frame body"))
	if !ok {
		t.Fatal("encrypt failed")
	}
	ct[len(ct)-1] ^= 0x01 // flip one bit in the tag

	if _, ok := c.Decrypt(ct); ok {
		t.Fatal("expected tampered ciphertext to fail authentication")
	}
}

func TestNoKeyIsNoOp(t *testing.T) {
	c := New()
	if _, ok := c.Encrypt([]byte("x")); ok {
		t.Fatal("expected encrypt to fail without a key")
	}
	if _, ok := c.Decrypt(bytes.Repeat([]byte{0}, 64)); ok {
		t.Fatal("expected decrypt to fail without a key")
	}
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	c := New()
	if err := c.DeriveKey("ABCDEF"); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Decrypt(make([]byte, minCiphertextLen-1)); ok {
		t.Fatal("expected sub-minimum ciphertext to be rejected")
	}
}

func TestClearKeyZeroesAndDisables(t *testing.T) {
	c := New()
	if err := c.DeriveKey("ABCDEF"); err != nil {
		t.Fatal(err)
	}
	if !c.HasKey() {
		t.Fatal("expected key present")
	}
	c.ClearKey()
	if c.HasKey() {
		t.Fatal("expected key cleared")
	}
	if _, ok := c.Encrypt([]byte("x")); ok {
		t.Fatal("expected encrypt to fail after ClearKey")
	}
}
