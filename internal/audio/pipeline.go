// Package audio implements the PCM datagram pipeline: encrypt, send as a
// single unfragmented datagram, no retransmit (spec §4.5).
package audio

import (
	"github.com/aircatch/host/internal/cryptochan"
	"github.com/aircatch/host/internal/metrics"
)

// SampleRateHz, Channels, and BytesPerSample describe the fixed PCM format
// the encoder adapter's audio source produces (spec §4.5).
const (
	SampleRateHz   = 48000
	Channels       = 2
	BytesPerSample = 4 // 32-bit float
	PTSPrefixLen   = 8
)

// Pipeline encrypts PCM buffers for transmission as audio_pcm packets. It
// holds no per-frame state: unlike video, audio has no fragmentation, chunk
// cache, or retransmit path (spec §4.5).
type Pipeline struct {
	channel *cryptochan.Channel
	enabled bool
	metrics *metrics.Metrics
}

// NewPipeline builds an audio pipeline bound to the session's crypto
// channel. enabled mirrors the handshake's want-audio flag (spec §4.5:
// "Audio is on iff the handshake's want-audio is true").
func NewPipeline(channel *cryptochan.Channel, enabled bool) *Pipeline {
	return &Pipeline{channel: channel, enabled: enabled, metrics: metrics.NewMetrics()}
}

// Metrics returns the pipeline's send-side counters (spec §9 status
// visibility).
func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

// SetEnabled updates whether audio frames are encrypted/sent, e.g. when a
// new handshake renegotiates want-audio.
func (p *Pipeline) SetEnabled(enabled bool) {
	p.enabled = enabled
}

// Enabled reports whether audio is currently active for this session.
func (p *Pipeline) Enabled() bool {
	return p.enabled
}

// EncryptPCM encrypts one PTS-prefixed PCM buffer for transmission. Returns
// ok=false if audio is disabled or the session has no derived key, in
// which case the caller must drop the buffer rather than send it.
func (p *Pipeline) EncryptPCM(ptsPrefixed []byte) ([]byte, bool) {
	if !p.enabled {
		return nil, false
	}
	return p.channel.Encrypt(ptsPrefixed)
}
