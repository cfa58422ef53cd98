package audio

import (
	"testing"

	"github.com/aircatch/host/internal/cryptochan"
)

func TestEncryptPCMDisabledByDefault(t *testing.T) {
	ch := cryptochan.New()
	ch.DeriveKey("ABCDEF")
	p := NewPipeline(ch, false)

	if _, ok := p.EncryptPCM(make([]byte, PTSPrefixLen+960)); ok {
		t.Fatal("expected no-op when audio disabled")
	}
}

func TestEncryptPCMRoundTrip(t *testing.T) {
	ch := cryptochan.New()
	ch.DeriveKey("ABCDEF")
	p := NewPipeline(ch, true)

	buf := make([]byte, PTSPrefixLen+Channels*BytesPerSample*480)
	for i := range buf {
		buf[i] = byte(i)
	}

	ciphertext, ok := p.EncryptPCM(buf)
	if !ok {
		t.Fatal("expected encrypt to succeed")
	}

	plaintext, ok := ch.Decrypt(ciphertext)
	if !ok {
		t.Fatal("expected decrypt to succeed")
	}
	if string(plaintext) != string(buf) {
		t.Fatal("round trip mismatch")
	}
}

func TestSetEnabledTogglesAtRuntime(t *testing.T) {
	ch := cryptochan.New()
	ch.DeriveKey("ABCDEF")
	p := NewPipeline(ch, false)

	p.SetEnabled(true)
	if !p.Enabled() {
		t.Fatal("expected enabled after SetEnabled(true)")
	}
	if _, ok := p.EncryptPCM([]byte("x")); !ok {
		t.Fatal("expected encrypt to succeed once enabled")
	}
}
