package adaptive

import (
	"sync"

	"github.com/aircatch/host/internal/platform"
	"github.com/aircatch/host/internal/session"
)

const (
	reportFloorBPS        = 2_000_000
	reportCeilingBPS      = 10_000_000
	reportDecreaseStepBPS = 1_000_000
	reportIncreaseStepBPS = 500_000
	degradedFrameRate     = 15
	normalFrameRate       = 30
	latencyThresholdMs    = 150.0
	stableReportsRequired = 5
)

// ReportController is the relay adaptive loop: driven entirely by
// client-sent quality_report packets rather than local encoder counters
// (spec §4.7). Codec is never changed at runtime in relay mode.
type ReportController struct {
	mu sync.Mutex

	encoder platform.EncoderAdapter
	onApply func(bitrateBPS, frameRate int)

	bitrate     int
	frameRate   int
	atFloor     bool
	stableCount int
}

// NewReportController builds a relay-mode controller starting at the
// negotiated relay bitrate/frame rate (6 Mbps / 30 fps per spec §4.3).
func NewReportController(encoder platform.EncoderAdapter, initialBitrateBPS, initialFrameRate int, onApply func(bitrateBPS, frameRate int)) *ReportController {
	if initialBitrateBPS <= 0 {
		initialBitrateBPS = reportCeilingBPS
	}
	if initialFrameRate <= 0 {
		initialFrameRate = normalFrameRate
	}
	return &ReportController{
		encoder:   encoder,
		onApply:   onApply,
		bitrate:   clampInt(initialBitrateBPS, reportFloorBPS, reportCeilingBPS),
		frameRate: initialFrameRate,
	}
}

// RecordReport applies one quality_report sample (spec §4.7).
func (c *ReportController) RecordReport(r session.QualityReport) {
	c.mu.Lock()

	degraded := r.DroppedFrames > 0 || r.LatencyMs > latencyThresholdMs

	action := "hold"
	newBitrate := c.bitrate
	newFrameRate := c.frameRate

	if degraded {
		c.stableCount = 0
		action = "decrease"
		// fps only drops once a prior report already pinned us at the
		// floor — the report that first reaches the floor only cuts
		// bitrate (spec §8 scenario D: four degraded reports reach the
		// floor, the fifth drops frame rate).
		wasAtFloor := c.atFloor
		newBitrate = clampInt(c.bitrate-reportDecreaseStepBPS, reportFloorBPS, reportCeilingBPS)
		c.atFloor = newBitrate <= reportFloorBPS
		if wasAtFloor {
			newFrameRate = degradedFrameRate
		}
	} else {
		c.stableCount++
		if c.stableCount >= stableReportsRequired {
			c.stableCount = 0
			switch {
			case c.frameRate != normalFrameRate:
				action = "restore-fps"
				newFrameRate = normalFrameRate
			default:
				action = "increase"
				newBitrate = clampInt(c.bitrate+reportIncreaseStepBPS, reportFloorBPS, reportCeilingBPS)
				c.atFloor = newBitrate <= reportFloorBPS
			}
		}
	}

	bitrateChanged := newBitrate != c.bitrate
	frameRateChanged := newFrameRate != c.frameRate
	c.bitrate = newBitrate
	c.frameRate = newFrameRate
	bitrate, frameRate := c.bitrate, c.frameRate
	encoder := c.encoder
	onApply := c.onApply
	c.mu.Unlock()

	if action != "hold" {
		log.Info("relay adaptive adjustment",
			"action", action, "bitrate", bitrate, "frameRate", frameRate,
			"droppedFrames", r.DroppedFrames, "latencyMs", r.LatencyMs)
	}

	if bitrateChanged {
		if err := encoder.SetBitrate(bitrate); err != nil {
			log.Warn("set bitrate failed", "error", err)
		}
	}
	if frameRateChanged {
		if err := encoder.SetFrameRate(frameRate); err != nil {
			log.Warn("set frame rate failed", "error", err)
		}
	}
	if bitrateChanged || frameRateChanged {
		if onApply != nil {
			onApply(bitrate, frameRate)
		}
	}
}
