package video

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestFragmentReassembleRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 1199, 1200, 1201, 65536, 1200*3 + 77}
	for _, size := range sizes {
		frame := make([]byte, size)
		if _, err := rand.Read(frame); err != nil {
			t.Fatalf("rand.Read: %v", err)
		}

		chunkPayloads, err := Fragment(42, frame)
		if err != nil {
			t.Fatalf("Fragment(size=%d): %v", size, err)
		}
		if size == 0 {
			if chunkPayloads != nil {
				t.Fatalf("expected no chunks for empty frame, got %d", len(chunkPayloads))
			}
			continue
		}

		chunks := make(map[uint16][]byte)
		var total uint16
		for _, raw := range chunkPayloads {
			c, ok := DecodeChunk(raw)
			if !ok {
				t.Fatalf("DecodeChunk failed for size %d", size)
			}
			if c.FrameID != 42 {
				t.Fatalf("expected frame_id 42, got %d", c.FrameID)
			}
			total = c.TotalChunks
			chunks[c.Index] = c.Payload
		}

		got, ok := Reassemble(chunks, total)
		if !ok {
			t.Fatalf("Reassemble failed for size %d", size)
		}
		if !bytes.Equal(got, frame) {
			t.Fatalf("round trip mismatch for size %d", size)
		}
	}
}

func TestFragmentRejectsOversizeFrame(t *testing.T) {
	frame := make([]byte, (1<<16)*MaxChunkPayloadBytes)
	_, err := Fragment(1, frame)
	if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeChunkRejectsTruncatedHeader(t *testing.T) {
	if _, ok := DecodeChunk([]byte{1, 2, 3}); ok {
		t.Fatal("expected decode failure for truncated header")
	}
}

func TestReassembleFailsOnMissingChunk(t *testing.T) {
	chunks := map[uint16][]byte{0: []byte("a"), 2: []byte("c")}
	if _, ok := Reassemble(chunks, 3); ok {
		t.Fatal("expected failure with a missing middle chunk")
	}
}
