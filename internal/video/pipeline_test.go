package video

import (
	"testing"
	"time"

	"github.com/aircatch/host/internal/cryptochan"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	ch := cryptochan.New()
	if err := ch.DeriveKey("ABCDEF"); err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	return NewPipeline(ch, NewChunkCache(time.Second, 60))
}

func TestPipelineFrameIDMonotonicAndWraps(t *testing.T) {
	p := newTestPipeline(t)
	p.nextFrameID = 1<<32 - 2

	first := p.NextFrameID()
	second := p.NextFrameID()
	third := p.NextFrameID()

	if first != 1<<32-2 || second != 1<<32-1 || third != 0 {
		t.Fatalf("expected wraparound sequence, got %d %d %d", first, second, third)
	}
}

func TestPipelineLosslessCachesChunksForRetransmit(t *testing.T) {
	p := newTestPipeline(t)
	p.SetLossless(true)

	encrypted, ok := p.EncryptFrame(make([]byte, 3000))
	if !ok {
		t.Fatal("expected encrypt to succeed")
	}
	frameID := p.NextFrameID()
	chunks, err := p.FragmentAndCache(frameID, encrypted)
	if err != nil {
		t.Fatalf("FragmentAndCache: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for a 3000+28 byte frame, got %d", len(chunks))
	}

	retransmit := p.HandleNACK(NACKRequest{FrameID: frameID, MissingChunkIndices: []uint16{0, 1}})
	if len(retransmit) != 2 {
		t.Fatalf("expected 2 retransmitted chunks, got %d", len(retransmit))
	}
}

func TestPipelineNonLosslessDoesNotCache(t *testing.T) {
	p := newTestPipeline(t)
	p.SetLossless(false)

	encrypted, _ := p.EncryptFrame(make([]byte, 3000))
	frameID := p.NextFrameID()
	if _, err := p.FragmentAndCache(frameID, encrypted); err != nil {
		t.Fatalf("FragmentAndCache: %v", err)
	}

	retransmit := p.HandleNACK(NACKRequest{FrameID: frameID, MissingChunkIndices: []uint16{0}})
	if len(retransmit) != 0 {
		t.Fatal("expected no cached chunks when lossless is off")
	}
}

func TestPipelineOversizeFrameDropsButIDStillAdvanced(t *testing.T) {
	p := newTestPipeline(t)
	before := p.NextFrameID()

	huge := make([]byte, (1<<16)*MaxChunkPayloadBytes)
	frameID := p.NextFrameID()
	_, err := p.FragmentAndCache(frameID, huge)
	if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}

	after := p.NextFrameID()
	if after != before+2 {
		t.Fatalf("expected frame_id to keep advancing across a dropped frame, got before=%d after=%d", before, after)
	}
}
