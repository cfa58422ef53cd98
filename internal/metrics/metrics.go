// Package metrics tracks send-side throughput counters shared by the video
// and audio pipelines (spec §9 status visibility).
package metrics

import (
	"sync"
	"time"
)

// Metrics tracks send-side throughput for a single streaming session.
// Unlike the adaptive controller's encoder counters (spec §4.7), this is
// purely for status/debug visibility and never drives a control decision.
type Metrics struct {
	mu sync.RWMutex

	framesSent     uint64
	framesDropped  uint64
	totalBytesSent uint64
	startTime      time.Time
}

// NewMetrics returns a zeroed Metrics with its uptime clock started now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordSend accounts for one frame successfully handed to a transport.
func (m *Metrics) RecordSend(size int) {
	m.mu.Lock()
	m.framesSent++
	m.totalBytesSent += uint64(size)
	m.mu.Unlock()
}

// RecordDrop accounts for one frame that never reached a transport (spec
// §4.4 oversize-frame and encryption-failure drops).
func (m *Metrics) RecordDrop() {
	m.mu.Lock()
	m.framesDropped++
	m.mu.Unlock()
}

// Snapshot is a point-in-time copy of Metrics for logging.
type Snapshot struct {
	FramesSent     uint64
	FramesDropped  uint64
	TotalBytesSent uint64
	BandwidthKBps  float64
	Uptime         time.Duration
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	var bw float64
	if uptime.Seconds() > 0 {
		bw = float64(m.totalBytesSent) / 1024 / uptime.Seconds()
	}
	return Snapshot{
		FramesSent:     m.framesSent,
		FramesDropped:  m.framesDropped,
		TotalBytesSent: m.totalBytesSent,
		BandwidthKBps:  bw,
		Uptime:         uptime,
	}
}
