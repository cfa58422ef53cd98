// Package platform names the external collaborator interfaces the core
// engine consumes but never implements: OS capture, hardware encoding,
// input injection, display management, mDNS advertisement, the close-range
// P2P framework, and STUN (spec §1, §6, §9). Concrete implementations are
// out of scope for this module; tests and cmd/aircatch-host wire in fakes or
// no-ops.
package platform

import (
	"context"
	"time"
)

// EncoderAdapter drives the hardware/software video encoder. It emits
// encoded frames and audio buffers via the callbacks installed through
// SetFrameHandler/SetAudioHandler, and tracks throughput counters the
// adaptive controller samples every cycle (spec §4.7, §6).
type EncoderAdapter interface {
	Start(profile EncodeProfile) error
	Stop()

	SetBitrate(bps int) error
	SetFrameRate(fps int) error

	CaptureDimensions() (width, height int)

	// SetFrameHandler installs the callback invoked with each encoded,
	// annex-B frame: [pts:i64 LE][elementary stream] (spec §4.4, §6).
	SetFrameHandler(func(frame []byte))
	// SetAudioHandler installs the callback invoked with each PCM buffer:
	// [pts:i64 LE][interleaved f32 PCM] (spec §4.5, §6).
	SetAudioHandler(func(pcm []byte))

	// Counters returns the cumulative encoded/skipped frame counts sampled
	// by the adaptive controller's throughput loop (spec §4.7).
	Counters() (framesEncoded, framesSkipped uint64)
}

// EncodeProfile is the subset of a NegotiatedProfile the encoder adapter
// needs to start capturing (spec §3).
type EncodeProfile struct {
	Width, Height int
	FrameRate     int
	BitrateBPS    int
	Codec         string
	Lossless      bool
}

// InputInjector applies deserialized input events to the host OS (spec §6).
type InputInjector interface {
	InjectPointer(normX, normY float64, kind string, screenFrame uint64) error
	InjectScroll(dx, dy float64, point [2]float64) error
	InjectKey(code int, modifiers []string, down bool) error
	InjectText(text string) error
	InjectMediaKey(id string) error
}

// DisplayAdapter exposes the host's capturable surface (spec §6).
type DisplayAdapter interface {
	MainDisplayFrame() (width, height int, err error)
	CreateVirtualDisplay(width, height int) error
	DestroyVirtualDisplay() error
}

// Advertiser publishes the host's DNS-SD records (spec §6). NoopAdvertiser
// below satisfies this for standalone runs with no real mDNS responder
// linked in — actual mDNS is explicitly an external collaborator (spec §1).
type Advertiser interface {
	Start(serviceType, name string, tcpPort, udpPort int, txt map[string]string) error
	Stop()
}

// NoopAdvertiser is an Advertiser that does nothing. Used by
// cmd/aircatch-host when no platform mDNS responder is wired in.
type NoopAdvertiser struct{}

func (NoopAdvertiser) Start(string, string, int, int, map[string]string) error { return nil }
func (NoopAdvertiser) Stop()                                                   {}

// SendMode selects reliable or unreliable delivery for the close-range P2P
// framework and the relay's virtual channels (spec §4.9, §4.10).
type SendMode int

const (
	SendUnreliable SendMode = iota
	SendReliable
)

// CloseRangeFramework is the OS-provided close-range P2P transport (spec §6,
// §9). The core only ever calls Start/Stop/Send/Broadcast and reads packets
// handed to the callback installed via SetPacketHandler.
type CloseRangeFramework interface {
	Start() error
	Stop()
	Send(peer string, kind byte, payload []byte, mode SendMode) error
	Broadcast(kind byte, payload []byte, mode SendMode) error
	SetPacketHandler(func(peer string, kind byte, payload []byte))
}

// STUNClient performs the best-effort mapped-address probe used by the relay
// transport to publish a candidate (spec §4.9, §6).
type STUNClient interface {
	DiscoverMappedAddress(ctx context.Context, host string, port int, timeout time.Duration) (ip string, mappedPort int, ok bool)
}
