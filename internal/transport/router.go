// Package transport implements the inbound packet dispatch table (spec
// §4.6): it decides, for each packet kind and origin transport, which
// component handles it, and drops anything it doesn't recognize.
package transport

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/aircatch/host/internal/codec"
	"github.com/aircatch/host/internal/input"
	"github.com/aircatch/host/internal/logging"
	"github.com/aircatch/host/internal/session"
	"github.com/aircatch/host/internal/video"
)

var log = logging.L("router")

// Responder replies to whichever peer/transport originated the packet
// currently being dispatched.
type Responder interface {
	Send(codec.Packet) error
}

// RTTSink receives ping/pong round-trip samples (the local/close-range
// adaptive throughput loop implements this — spec §4.7).
type RTTSink interface {
	RecordRTT(d time.Duration)
}

// ReportSink receives quality_report samples (the relay adaptive loop
// implements this — spec §4.7).
type ReportSink interface {
	RecordReport(r session.QualityReport)
}

// UDPSender sends one packet to a previously-seen UDP endpoint, identified
// by its host_string form. *local.UDPListener satisfies this structurally.
// Used to target NACK retransmits at the client's UDP endpoint regardless of
// which channel the NACK itself arrived on (spec §4.8, §8 scenario C).
type UDPSender interface {
	SendTo(hostString string, pkt codec.Packet) error
}

// Router wires the session manager, input dispatcher, video pipeline, and
// adaptive controller to inbound packets. Session and Input are set at
// construction and the UDP sender once at engine start; the video pipeline
// and adaptive sinks are set by the engine at pairing time and cleared at
// teardown. Dispatch treats a nil dependency as "no handler available"
// rather than panicking, since a packet can race a teardown.
type Router struct {
	Session *session.Manager
	Input   *input.Dispatcher

	videoPipeline atomic.Pointer[video.Pipeline]
	rttSink       atomic.Pointer[RTTSink]
	reportSink    atomic.Pointer[ReportSink]
	udpSender     atomic.Pointer[UDPSender]

	droppedCount atomic.Uint64
}

// NewRouter builds a Router over a session manager and input dispatcher.
// Both are long-lived; the video pipeline and adaptive sinks are swapped in
// per pairing via the Set* methods.
func NewRouter(sess *session.Manager, in *input.Dispatcher) *Router {
	return &Router{Session: sess, Input: in}
}

// SetVideoPipeline installs (or clears, with nil) the active session's
// video pipeline, used to service video_frame_chunk_nack.
func (r *Router) SetVideoPipeline(p *video.Pipeline) {
	r.videoPipeline.Store(p)
}

// SetRTTSink installs (or clears, with nil) the active throughput adaptive
// controller.
func (r *Router) SetRTTSink(s RTTSink) {
	if s == nil {
		r.rttSink.Store(nil)
		return
	}
	r.rttSink.Store(&s)
}

// SetReportSink installs (or clears, with nil) the active relay adaptive
// controller.
func (r *Router) SetReportSink(s ReportSink) {
	if s == nil {
		r.reportSink.Store(nil)
		return
	}
	r.reportSink.Store(&s)
}

// SetUDPSender installs (or clears, with nil) the local UDP listener used to
// target NACK retransmits at the client's UDP endpoint.
func (r *Router) SetUDPSender(s UDPSender) {
	if s == nil {
		r.udpSender.Store(nil)
		return
	}
	r.udpSender.Store(&s)
}

// DroppedCount reports how many inbound packets were dropped as protocol
// violations or disallowed sources (spec §7).
func (r *Router) DroppedCount() uint64 {
	return r.droppedCount.Load()
}

type pingPayload struct {
	ClientTS float64 `json:"clientTs"`
}

type pongPayload struct {
	ClientTS float64 `json:"clientTs"`
	HostTS   float64 `json:"hostTs"`
}

// Dispatch routes one inbound packet per the spec §4.6 table. endpoint is
// the transport-specific handle used for one-active-client comparisons and
// NACK-retransmit targeting; respond replies on the same transport/peer the
// packet arrived from.
func (r *Router) Dispatch(origin session.Transport, endpoint any, pkt codec.Packet, respond Responder) {
	switch pkt.Kind {
	case codec.KindHandshakeRequest:
		r.handleHandshake(origin, endpoint, pkt.Payload, respond)

	case codec.KindVideoFrameChunkNack:
		r.handleNACK(origin, pkt.Payload)

	case codec.KindTouchEvent:
		r.forwardInput(endpoint, pkt.Kind, func() error { return r.Input.HandleTouch(pkt.Payload) })
	case codec.KindScrollEvent:
		r.forwardInput(endpoint, pkt.Kind, func() error { return r.Input.HandleScroll(pkt.Payload) })
	case codec.KindKeyEvent:
		r.forwardInput(endpoint, pkt.Kind, func() error { return r.Input.HandleKey(pkt.Payload) })
	case codec.KindMediaKeyEvent:
		r.forwardInput(endpoint, pkt.Kind, func() error { return r.Input.HandleMediaKey(pkt.Payload) })

	case codec.KindPing:
		r.handlePing(origin, pkt.Payload, respond)

	case codec.KindQualityReport:
		r.handleQualityReport(pkt.Payload)

	case codec.KindDisconnect:
		r.Session.HandleDisconnect(endpoint)

	default:
		r.drop("unhandled kind", pkt.Kind)
	}
}

func (r *Router) drop(reason string, kind codec.Kind) {
	r.droppedCount.Add(1)
	log.Debug("dropping packet", "reason", reason, "kind", kind)
}

func (r *Router) handleHandshake(origin session.Transport, endpoint any, payload []byte, respond Responder) {
	var req session.HandshakeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		r.drop("malformed handshake_request", codec.KindHandshakeRequest)
		return
	}

	ack, ok := r.Session.HandleHandshake(req, origin, endpoint)
	if !ok {
		_ = respond.Send(codec.Packet{Kind: codec.KindPairingFailed})
		return
	}

	body, err := json.Marshal(ack)
	if err != nil {
		log.Error("marshal handshake_ack failed", "error", err)
		return
	}
	if err := respond.Send(codec.Packet{Kind: codec.KindHandshakeAck, Payload: body}); err != nil {
		log.Warn("send handshake_ack failed", "error", err)
	}
}

// handleNACK always retransmits to the client's tracked UDP endpoint,
// regardless of which channel (local UDP, local TCP) the NACK itself arrived
// on (spec §4.8, §8 scenario C) — it never replies on the arrival channel.
func (r *Router) handleNACK(origin session.Transport, payload []byte) {
	if origin != session.TransportLocal {
		r.drop("nack from disallowed source", codec.KindVideoFrameChunkNack)
		return
	}
	profile := r.Session.Profile()
	if !profile.Lossless {
		r.drop("nack with lossless off", codec.KindVideoFrameChunkNack)
		return
	}

	var req video.NACKRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		r.drop("malformed video_frame_chunk_nack", codec.KindVideoFrameChunkNack)
		return
	}

	pipeline := r.videoPipeline.Load()
	if pipeline == nil {
		return
	}

	sender := r.udpSender.Load()
	endpoint, ok := r.Session.ActiveUDPEndpoint()
	if sender == nil || !ok {
		r.drop("no udp endpoint for retransmit", codec.KindVideoFrameChunkNack)
		return
	}
	hostString, ok := endpoint.(string)
	if !ok {
		r.drop("udp endpoint not a host string", codec.KindVideoFrameChunkNack)
		return
	}

	for _, chunk := range pipeline.HandleNACK(req) {
		if err := (*sender).SendTo(hostString, codec.Packet{Kind: codec.KindVideoFrameChunk, Payload: chunk}); err != nil {
			log.Warn("retransmit failed", "error", err)
			return
		}
	}
}

func (r *Router) forwardInput(endpoint any, kind codec.Kind, handle func() error) {
	active, ok := r.Session.ActiveEndpoint()
	if !ok || active != endpoint {
		r.drop("input from non-active endpoint", kind)
		return
	}
	if err := handle(); err != nil {
		log.Debug("input dispatch failed", "error", err)
	}
}

func (r *Router) handlePing(origin session.Transport, payload []byte, respond Responder) {
	var ping pingPayload
	_ = json.Unmarshal(payload, &ping) // malformed client_ts still gets a pong

	hostTS := float64(time.Now().UnixNano()) / float64(time.Second)
	if sink := r.rttSink.Load(); sink != nil && ping.ClientTS > 0 {
		clientSendTime := time.Unix(0, int64(ping.ClientTS*float64(time.Second)))
		(*sink).RecordRTT(time.Since(clientSendTime))
	}

	body, err := json.Marshal(pongPayload{ClientTS: ping.ClientTS, HostTS: hostTS})
	if err != nil {
		return
	}
	if err := respond.Send(codec.Packet{Kind: codec.KindPong, Payload: body}); err != nil {
		log.Warn("send pong failed", "error", err)
	}
}

func (r *Router) handleQualityReport(payload []byte) {
	var report session.QualityReport
	if err := json.Unmarshal(payload, &report); err != nil {
		r.drop("malformed quality_report", codec.KindQualityReport)
		return
	}
	if sink := r.reportSink.Load(); sink != nil {
		(*sink).RecordReport(report)
	}
}
