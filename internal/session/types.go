package session

import "time"

// Codec enumerates the negotiable video codecs (spec §3).
type Codec string

const (
	CodecH264         Codec = "h264"
	CodecHEVCMain     Codec = "hevc-main"
	CodecHEVCMain10   Codec = "hevc-main10"
	CodecHEVC422_10   Codec = "hevc-422-10"
)

func (c Codec) valid() bool {
	switch c {
	case CodecH264, CodecHEVCMain, CodecHEVCMain10, CodecHEVC422_10:
		return true
	default:
		return false
	}
}

// Transport identifies which transport currently owns the active session
// (spec §4.6: "relay > close-range > local").
type Transport int

const (
	TransportNone Transport = iota
	TransportLocal
	TransportCloseRange
	TransportRelay
)

func (t Transport) String() string {
	switch t {
	case TransportLocal:
		return "local"
	case TransportCloseRange:
		return "close-range"
	case TransportRelay:
		return "relay"
	default:
		return "none"
	}
}

// NegotiatedProfile is the mutable streaming configuration the adaptive
// controller adjusts at runtime and the encoder adapter reads (spec §3).
type NegotiatedProfile struct {
	TargetBitrateBPS int
	FrameRate        int
	Codec            Codec
	Width, Height    int
	Lossless         bool
	LowLatency       bool
	Audio            bool
}

// ClientBinding is the single active client identity for a session (spec
// §3). A fresh valid handshake replaces the prior binding atomically.
type ClientBinding struct {
	ID       string // opaque correlation id, e.g. a uuid
	Endpoint any    // transport-specific endpoint handle the handshake arrived on

	// UDPEndpoint is the client's UDP datagram endpoint for local sessions
	// (spec §4.8: "host_string -> last_known_endpoint"). Seeded from Endpoint
	// at every handshake (exact when the handshake itself arrives over UDP),
	// and corrected on every local UDP datagram received afterward so a
	// TCP-arrived handshake still converges on the right target for video
	// fragment sends, NACK retransmits, and audio.
	UDPEndpoint any

	Name              string
	Version           string
	DeviceModel       string
	Width, Height     int
	PreferLowLatency  bool
	WantLosslessVideo bool
	WantVideo         bool
	WantAudio         bool
	ConnectedAt       time.Time
}

// HandshakeRequest is the JSON payload of a handshake_request packet (spec
// §4.3, §6).
type HandshakeRequest struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	DeviceModel       string `json:"deviceModel,omitempty"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	PreferLowLatency  bool   `json:"preferLowLatency"`
	WantLosslessVideo bool   `json:"wantLosslessVideo"`
	WantVideo         bool   `json:"wantVideo"`
	WantAudio         bool   `json:"wantAudio"`
	PIN               string `json:"pin"`
}

// HandshakeAck is the JSON payload of a handshake_ack packet (spec §4.3,
// §6, scenario A).
type HandshakeAck struct {
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	FrameRate        int    `json:"frameRate"`
	HostName         string `json:"hostName"`
	BitrateBPS       int    `json:"bitrate"`
	Codec            Codec  `json:"codec"`
	IsVirtualDisplay bool   `json:"isVirtualDisplay"`
}

// QualityReport is the JSON payload of a quality_report packet (spec §3,
// §6).
type QualityReport struct {
	DroppedFrames int     `json:"droppedFrames"`
	LatencyMs     float64 `json:"latencyMs"`
	JitterMs      float64 `json:"jitterMs"`
	Timestamp     float64 `json:"timestamp"`
}
