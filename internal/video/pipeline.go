package video

import (
	"sync/atomic"

	"github.com/aircatch/host/internal/cryptochan"
	"github.com/aircatch/host/internal/logging"
	"github.com/aircatch/host/internal/metrics"
)

var log = logging.L("video")

// Pipeline turns encoder-adapter frames into wire-ready chunk payloads,
// tracking the monotonically-advancing (modulo u32) frame_id and the chunk
// cache used to service retransmit requests (spec §4.4).
type Pipeline struct {
	channel     *cryptochan.Channel
	cache       *ChunkCache
	nextFrameID uint32
	lossless    atomic.Bool
	metrics     *metrics.Metrics
}

// NewPipeline builds a pipeline bound to the session's crypto channel.
func NewPipeline(channel *cryptochan.Channel, cache *ChunkCache) *Pipeline {
	return &Pipeline{channel: channel, cache: cache, metrics: metrics.NewMetrics()}
}

// Metrics returns the pipeline's send-side counters (spec §9 status
// visibility). Safe to read concurrently with sends.
func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

// SetLossless toggles whether outgoing chunks are also deposited in the
// chunk cache for NACK servicing (spec §4.4: "If lossless flag is set,
// deposit the chunk in the chunk cache").
func (p *Pipeline) SetLossless(lossless bool) {
	p.lossless.Store(lossless)
}

// EncryptFrame encrypts a frame-with-PTS buffer for transmission. Returns
// ok=false if the session has no derived key (the caller should drop the
// frame rather than send cleartext).
func (p *Pipeline) EncryptFrame(frame []byte) ([]byte, bool) {
	return p.channel.Encrypt(frame)
}

// NextFrameID allocates the next frame_id, wrapping at u32 (spec §4.4: "
// frame_id monotonicity is preserved across wrap").
func (p *Pipeline) NextFrameID() uint32 {
	return atomic.AddUint32(&p.nextFrameID, 1) - 1
}

// FragmentAndCache fragments an encrypted frame into chunk payloads and, if
// lossless mode is on, deposits each chunk into the cache. It returns
// ErrFrameTooLarge for oversize frames (spec §4.4); frame_id still advances
// in the caller since NextFrameID was already called before this.
func (p *Pipeline) FragmentAndCache(frameID uint32, encryptedFrame []byte) ([][]byte, error) {
	chunks, err := Fragment(frameID, encryptedFrame)
	if err != nil {
		log.Warn("dropping oversize frame", "frameID", frameID, "error", err)
		p.metrics.RecordDrop()
		return nil, err
	}
	if p.lossless.Load() {
		total := uint16(len(chunks))
		for i, c := range chunks {
			p.cache.Put(frameID, uint16(i), total, c)
		}
	}
	return chunks, nil
}

// HandleNACK looks up each requested chunk index in the cache and returns
// the chunk payloads available for retransmission. Missing or expired
// entries are silently skipped (spec §4.4). Callers must first check that
// NACK processing is enabled for the session (lossless and not relay).
func (p *Pipeline) HandleNACK(req NACKRequest) [][]byte {
	var out [][]byte
	for _, idx := range req.MissingChunkIndices {
		if b, ok := p.cache.Get(req.FrameID, idx); ok {
			out = append(out, b)
		}
	}
	return out
}
