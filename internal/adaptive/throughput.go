// Package adaptive implements the two independent bitrate-control loops
// (spec §4.7): a throughput loop driven by the encoder adapter's own
// frame counters for local/close-range transport, and a report loop driven
// by client-sent quality_report packets for relay transport. Exactly one
// runs per paired session, selected by the transport the handshake arrived
// on.
package adaptive

import (
	"sync"
	"time"

	"github.com/aircatch/host/internal/logging"
	"github.com/aircatch/host/internal/platform"
)

var log = logging.L("adaptive")

const (
	minBitrateBPS          = 5_000_000
	maxBitrateBPS          = 50_000_000
	decreaseStepBPS        = 5_000_000
	increaseStepBPS        = 2_000_000
	samplePeriod           = 2 * time.Second
	warmupCycles           = 3
	lowFPSThreshold        = 55.0
	highFPSThreshold       = 58.0
	highFPSStableRequired  = 3
	minCaptureSuccessRate  = 0.7
	rttWindowSize          = 10
)

// signal quality buckets from rolling ping RTT (spec §4.7).
const (
	signalCapExcellentBPS = 50_000_000
	signalCapGoodBPS      = 35_000_000
	signalCapFairBPS      = 20_000_000
	signalCapPoorBPS      = 10_000_000
)

func signalCap(avgRTT time.Duration) int {
	switch {
	case avgRTT < 10*time.Millisecond:
		return signalCapExcellentBPS
	case avgRTT < 30*time.Millisecond:
		return signalCapGoodBPS
	case avgRTT < 50*time.Millisecond:
		return signalCapFairBPS
	default:
		return signalCapPoorBPS
	}
}

// ThroughputController is the local/close-range adaptive loop: it samples
// the encoder's cumulative frame counters every 2s and reacts to sustained
// under- or over-performance against fixed fps thresholds (below 55 fps
// lowers the bitrate, three consecutive samples at or above 58 fps raise
// it), independent of the negotiated frame rate (spec §4.7).
type ThroughputController struct {
	mu sync.Mutex

	encoder platform.EncoderAdapter
	onApply func(bitrateBPS, frameRate int)

	bitrate int

	rttWindow []time.Duration

	cycle            int
	highFPSStreak    int
	lastEncoded      uint64
	lastSkipped      uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewThroughputController builds a controller. encoder must be non-nil;
// onApply is invoked (outside the controller's lock) whenever the bitrate
// changes, so the session manager can keep NegotiatedProfile in sync.
func NewThroughputController(encoder platform.EncoderAdapter, initialBitrateBPS int, onApply func(bitrateBPS, frameRate int)) *ThroughputController {
	if initialBitrateBPS <= 0 {
		initialBitrateBPS = minBitrateBPS
	}
	return &ThroughputController{
		encoder: encoder,
		onApply: onApply,
		bitrate: clampInt(initialBitrateBPS, minBitrateBPS, maxBitrateBPS),
	}
}

// RecordRTT feeds a ping/pong round-trip sample into the rolling window
// used to compute the signal-quality bitrate cap.
func (c *ThroughputController) RecordRTT(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rttWindow = append(c.rttWindow, d)
	if len(c.rttWindow) > rttWindowSize {
		c.rttWindow = c.rttWindow[len(c.rttWindow)-rttWindowSize:]
	}
}

func (c *ThroughputController) avgRTT() time.Duration {
	if len(c.rttWindow) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range c.rttWindow {
		sum += d
	}
	return sum / time.Duration(len(c.rttWindow))
}

// Start begins the 2s sampling loop. Stop must be called to release it.
func (c *ThroughputController) Start() {
	c.mu.Lock()
	if c.stopCh != nil {
		c.mu.Unlock()
		return
	}
	c.stopCh = make(chan struct{})
	encoded, skipped := c.encoder.Counters()
	c.lastEncoded, c.lastSkipped = encoded, skipped
	stop := c.stopCh
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(samplePeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.sampleCycle()
			}
		}
	}()
}

// Stop halts the sampling loop.
func (c *ThroughputController) Stop() {
	c.mu.Lock()
	stop := c.stopCh
	c.stopCh = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		c.wg.Wait()
	}
}

func (c *ThroughputController) sampleCycle() {
	encoded, skipped := c.encoder.Counters()

	c.mu.Lock()
	deltaEncoded := encoded - c.lastEncoded
	deltaSkipped := skipped - c.lastSkipped
	c.lastEncoded, c.lastSkipped = encoded, skipped
	c.cycle++

	actualFPS := float64(deltaEncoded) / samplePeriod.Seconds()
	total := deltaEncoded + deltaSkipped
	successRate := 1.0
	if total > 0 {
		successRate = float64(deltaEncoded) / float64(total)
	}

	cap := signalCap(c.avgRTT())

	action := "hold"
	newBitrate := c.bitrate

	switch {
	case actualFPS < lowFPSThreshold && c.cycle > warmupCycles && successRate >= minCaptureSuccessRate:
		action = "decrease"
		c.highFPSStreak = 0
		newBitrate = clampInt(c.bitrate-decreaseStepBPS, minBitrateBPS, maxBitrateBPS)
	case actualFPS >= highFPSThreshold:
		c.highFPSStreak++
		if c.highFPSStreak >= highFPSStableRequired && c.bitrate < cap {
			action = "increase"
			ceiling := cap
			if maxBitrateBPS < ceiling {
				ceiling = maxBitrateBPS
			}
			newBitrate = clampInt(c.bitrate+increaseStepBPS, minBitrateBPS, ceiling)
			c.highFPSStreak = 0
		}
	default:
		c.highFPSStreak = 0
	}

	changed := newBitrate != c.bitrate
	c.bitrate = newBitrate
	bitrate := c.bitrate
	encoder := c.encoder
	onApply := c.onApply
	c.mu.Unlock()

	if action != "hold" {
		log.Info("throughput adaptive adjustment",
			"action", action, "bitrate", bitrate, "actualFPS", actualFPS,
			"successRate", successRate, "signalCapBPS", cap)
	}

	if changed {
		if err := encoder.SetBitrate(bitrate); err != nil {
			log.Warn("set bitrate failed", "error", err)
		}
		if onApply != nil {
			onApply(bitrate, 0)
		}
	}
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
