package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestDatagramRoundTrip(t *testing.T) {
	cases := []Packet{
		{Kind: KindVideoFrame, Payload: []byte("hello")},
		{Kind: KindPing, Payload: nil},
		{Kind: KindTouchEvent, Payload: bytes.Repeat([]byte{0xAB}, 4096)},
	}
	for _, want := range cases {
		encoded := EncodeDatagram(want)
		got, ok := DecodeDatagram(encoded)
		if !ok {
			t.Fatalf("decode failed for kind %v", want.Kind)
		}
		if got.Kind != want.Kind || !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("round trip mismatch: want %+v got %+v", want, got)
		}
	}
}

func TestDatagramUnknownKindDropped(t *testing.T) {
	data := []byte{0xFF, 1, 2, 3}
	if _, ok := DecodeDatagram(data); ok {
		t.Fatal("expected unknown kind to be rejected")
	}
}

func TestDatagramTruncatedDropped(t *testing.T) {
	if _, ok := DecodeDatagram(nil); ok {
		t.Fatal("expected empty datagram to be rejected")
	}
}

func TestStreamRoundTrip(t *testing.T) {
	want := []Packet{
		{Kind: KindHandshakeRequest, Payload: []byte(`{"pin":"ABCDEF"}`)},
		{Kind: KindVideoFrameChunk, Payload: bytes.Repeat([]byte{0x42}, 1200)},
		{Kind: KindDisconnect, Payload: nil},
	}

	var buf bytes.Buffer
	for _, p := range want {
		if err := EncodeStream(&buf, p); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	var got []Packet
	for {
		p, err := DecodeStream(&buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, p)
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Kind != want[i].Kind || !bytes.Equal(got[i].Payload, want[i].Payload) {
			t.Fatalf("frame %d mismatch: want %+v got %+v", i, want[i], got[i])
		}
	}
}

func TestStreamUnknownKindStaysInSync(t *testing.T) {
	var buf bytes.Buffer
	EncodeStream(&buf, Packet{Kind: 0x7F, Payload: []byte("junk")})
	EncodeStream(&buf, Packet{Kind: KindPing, Payload: nil})

	_, err := DecodeStream(&buf)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}

	p, err := DecodeStream(&buf)
	if err != nil {
		t.Fatalf("expected to resync onto next frame, got error: %v", err)
	}
	if p.Kind != KindPing {
		t.Fatalf("expected ping, got %v", p.Kind)
	}
}

func TestStreamOversizedRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(KindVideoFrame))
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // length = 4294967295
	if _, err := DecodeStream(&buf); !errors.Is(err, ErrOversized) {
		t.Fatalf("expected ErrOversized, got %v", err)
	}
}
