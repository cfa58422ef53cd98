// Package codec defines the closed set of wire packet kinds and the two
// framings (datagram and length-prefixed stream) used across every
// transport. It carries no transport- or session-specific logic.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind is a 1-byte packet type tag (spec §4.1, §6).
type Kind byte

const (
	KindVideoFrame          Kind = 0x01
	KindTouchEvent          Kind = 0x02
	KindHandshakeRequest    Kind = 0x03
	KindHandshakeAck        Kind = 0x04
	KindDisconnect          Kind = 0x05
	KindScrollEvent         Kind = 0x06
	KindKeyEvent            Kind = 0x07
	KindMediaKeyEvent       Kind = 0x08
	KindPing                Kind = 0x09
	KindPong                Kind = 0x0A
	KindQualityReport       Kind = 0x0B
	KindVideoFrameChunk     Kind = 0x0C
	KindPairingFailed       Kind = 0x0D
	KindVideoFrameChunkNack Kind = 0x0E
	KindAudioPCM            Kind = 0x0F
	KindQualityAdjust       Kind = 0x10
)

// known is the closed set of recognized kinds; anything else is dropped per
// the receive policy in spec §4.1 and §7.
var known = map[Kind]bool{
	KindVideoFrame: true, KindTouchEvent: true, KindHandshakeRequest: true,
	KindHandshakeAck: true, KindDisconnect: true, KindScrollEvent: true,
	KindKeyEvent: true, KindMediaKeyEvent: true, KindPing: true, KindPong: true,
	KindQualityReport: true, KindVideoFrameChunk: true, KindPairingFailed: true,
	KindVideoFrameChunkNack: true, KindAudioPCM: true, KindQualityAdjust: true,
}

// Valid reports whether kind is one of the closed set of known packet kinds.
func (k Kind) Valid() bool {
	return known[k]
}

func (k Kind) String() string {
	switch k {
	case KindVideoFrame:
		return "video_frame"
	case KindTouchEvent:
		return "touch_event"
	case KindHandshakeRequest:
		return "handshake_request"
	case KindHandshakeAck:
		return "handshake_ack"
	case KindDisconnect:
		return "disconnect"
	case KindScrollEvent:
		return "scroll_event"
	case KindKeyEvent:
		return "key_event"
	case KindMediaKeyEvent:
		return "media_key_event"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindQualityReport:
		return "quality_report"
	case KindVideoFrameChunk:
		return "video_frame_chunk"
	case KindPairingFailed:
		return "pairing_failed"
	case KindVideoFrameChunkNack:
		return "video_frame_chunk_nack"
	case KindAudioPCM:
		return "audio_pcm"
	case KindQualityAdjust:
		return "quality_adjust"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(k))
	}
}

// Packet is the in-memory representation shared by every transport and the
// router. Payload is whatever that Kind's body format specifies (§6);
// codec itself is agnostic to the payload's shape.
type Packet struct {
	Kind    Kind
	Payload []byte
}

// maxStreamPayload bounds the length prefix read from an untrusted stream so
// a corrupt or hostile peer can't force an unbounded allocation.
const maxStreamPayload = 64 << 20 // 64 MiB

// EncodeDatagram produces the single-message datagram framing:
// [kind:1][payload:N]. Used on UDP-like paths (spec §4.1).
func EncodeDatagram(p Packet) []byte {
	out := make([]byte, 1+len(p.Payload))
	out[0] = byte(p.Kind)
	copy(out[1:], p.Payload)
	return out
}

// DecodeDatagram parses a single datagram-framed message. ok is false for a
// truncated or unknown-kind message, per the drop-and-continue receive
// policy in spec §4.1/§7 — callers must not treat !ok as an error.
func DecodeDatagram(data []byte) (p Packet, ok bool) {
	if len(data) < 1 {
		return Packet{}, false
	}
	kind := Kind(data[0])
	if !kind.Valid() {
		return Packet{}, false
	}
	payload := make([]byte, len(data)-1)
	copy(payload, data[1:])
	return Packet{Kind: kind, Payload: payload}, true
}

// EncodeStream appends the length-prefixed stream framing for one packet to
// w: [kind:1][len:u32 BE][payload:len]. Used on TCP-like paths (spec §4.1).
func EncodeStream(w io.Writer, p Packet) error {
	header := make([]byte, 5)
	header[0] = byte(p.Kind)
	binary.BigEndian.PutUint32(header[1:], uint32(len(p.Payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("codec: write header: %w", err)
	}
	if len(p.Payload) > 0 {
		if _, err := w.Write(p.Payload); err != nil {
			return fmt.Errorf("codec: write payload: %w", err)
		}
	}
	return nil
}

// ErrUnknownKind and ErrOversized are returned by DecodeStream. On
// ErrUnknownKind the frame was consumed, so the caller drops it and reads the
// next one. On ErrOversized the payload was not read, so the stream is now
// desynchronized and the caller must stop reading it.
var (
	ErrUnknownKind = fmt.Errorf("codec: unknown packet kind")
	ErrOversized   = fmt.Errorf("codec: stream payload exceeds maximum")
)

// DecodeStream reads exactly one length-prefixed frame from r. On
// ErrUnknownKind the frame was still fully consumed (so the stream stays in
// sync) and the caller should simply continue reading the next frame — this
// satisfies the "unknown kind -> drop" policy of spec §4.1 without losing
// framing. Any other error (including io.EOF) means the stream is
// unusable and the connection should be torn down.
func DecodeStream(r io.Reader) (Packet, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return Packet{}, err
	}
	kind := Kind(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxStreamPayload {
		return Packet{}, ErrOversized
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Packet{}, err
		}
	}

	if !kind.Valid() {
		return Packet{}, ErrUnknownKind
	}
	return Packet{Kind: kind, Payload: payload}, nil
}
