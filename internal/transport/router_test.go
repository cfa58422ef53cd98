package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aircatch/host/internal/codec"
	"github.com/aircatch/host/internal/input"
	"github.com/aircatch/host/internal/session"
	"github.com/aircatch/host/internal/video"
)

type fakeResponder struct {
	sent []codec.Packet
}

func (f *fakeResponder) Send(p codec.Packet) error {
	f.sent = append(f.sent, p)
	return nil
}

type fakeUDPSender struct {
	sent []codec.Packet
	to   []string
}

func (f *fakeUDPSender) SendTo(hostString string, pkt codec.Packet) error {
	f.to = append(f.to, hostString)
	f.sent = append(f.sent, pkt)
	return nil
}

type stubInjector struct{ pointerCalls int }

func (s *stubInjector) InjectPointer(float64, float64, string, uint64) error {
	s.pointerCalls++
	return nil
}
func (s *stubInjector) InjectScroll(float64, float64, [2]float64) error   { return nil }
func (s *stubInjector) InjectKey(int, []string, bool) error               { return nil }
func (s *stubInjector) InjectText(string) error                           { return nil }
func (s *stubInjector) InjectMediaKey(string) error                       { return nil }

func newTestRouter() (*Router, *session.Manager, *stubInjector) {
	sess := session.NewManager("host")
	inj := &stubInjector{}
	r := NewRouter(sess, input.NewDispatcher(inj))
	return r, sess, inj
}

func validReq(pin string) session.HandshakeRequest {
	return session.HandshakeRequest{
		ClientName: "iPhone", Width: 1920, Height: 1080, WantVideo: true, PIN: pin,
	}
}

func TestRouterHandshakeSendsAck(t *testing.T) {
	r, sess, _ := newTestRouter()
	pin, _ := sess.Start()

	body, _ := json.Marshal(validReq(pin))
	resp := &fakeResponder{}
	r.Dispatch(session.TransportLocal, "ep1", codec.Packet{Kind: codec.KindHandshakeRequest, Payload: body}, resp)

	if len(resp.sent) != 1 || resp.sent[0].Kind != codec.KindHandshakeAck {
		t.Fatalf("expected one handshake_ack, got %+v", resp.sent)
	}
}

func TestRouterHandshakeWrongPINSendsPairingFailed(t *testing.T) {
	r, sess, _ := newTestRouter()
	sess.Start()

	body, _ := json.Marshal(validReq("000000"))
	resp := &fakeResponder{}
	r.Dispatch(session.TransportLocal, "ep1", codec.Packet{Kind: codec.KindHandshakeRequest, Payload: body}, resp)

	if len(resp.sent) != 1 || resp.sent[0].Kind != codec.KindPairingFailed {
		t.Fatalf("expected pairing_failed, got %+v", resp.sent)
	}
}

func TestRouterPingRepliesWithPong(t *testing.T) {
	r, sess, _ := newTestRouter()
	sess.Start()

	resp := &fakeResponder{}
	body, _ := json.Marshal(struct {
		ClientTS float64 `json:"clientTs"`
	}{ClientTS: float64(time.Now().UnixNano()) / float64(time.Second)})
	r.Dispatch(session.TransportLocal, "ep1", codec.Packet{Kind: codec.KindPing, Payload: body}, resp)

	if len(resp.sent) != 1 || resp.sent[0].Kind != codec.KindPong {
		t.Fatalf("expected pong, got %+v", resp.sent)
	}
}

func TestRouterInputOnlyFromActiveEndpoint(t *testing.T) {
	r, sess, inj := newTestRouter()
	pin, _ := sess.Start()
	sess.HandleHandshake(validReq(pin), session.TransportLocal, "active-ep")

	touch, _ := json.Marshal(input.TouchEvent{NormX: 0.1, NormY: 0.2, Kind: "began"})

	r.Dispatch(session.TransportLocal, "stale-ep", codec.Packet{Kind: codec.KindTouchEvent, Payload: touch}, &fakeResponder{})
	if inj.pointerCalls != 0 {
		t.Fatal("expected input from a non-active endpoint to be dropped")
	}

	r.Dispatch(session.TransportLocal, "active-ep", codec.Packet{Kind: codec.KindTouchEvent, Payload: touch}, &fakeResponder{})
	if inj.pointerCalls != 1 {
		t.Fatalf("expected input from the active endpoint to be forwarded, got %d calls", inj.pointerCalls)
	}
}

func TestRouterNACKOnlyAllowedFromLocal(t *testing.T) {
	r, sess, _ := newTestRouter()
	pin, _ := sess.Start()
	req := validReq(pin)
	req.WantLosslessVideo = true
	sess.HandleHandshake(req, session.TransportLocal, "ep")

	cache := video.NewChunkCache(time.Second, 60)
	cache.Put(5, 0, 1, []byte("chunk-data"))
	pipeline := video.NewPipeline(sess.Channel(), cache)
	pipeline.SetLossless(true)
	r.SetVideoPipeline(pipeline)

	sender := &fakeUDPSender{}
	r.SetUDPSender(sender)

	nack, _ := json.Marshal(video.NACKRequest{FrameID: 5, MissingChunkIndices: []uint16{0}})

	resp := &fakeResponder{}
	r.Dispatch(session.TransportRelay, "ep", codec.Packet{Kind: codec.KindVideoFrameChunkNack, Payload: nack}, resp)
	if len(sender.sent) != 0 {
		t.Fatal("expected nack from relay to be dropped")
	}

	r.Dispatch(session.TransportLocal, "ep", codec.Packet{Kind: codec.KindVideoFrameChunkNack, Payload: nack}, resp)
	if len(sender.sent) != 1 || sender.sent[0].Kind != codec.KindVideoFrameChunk {
		t.Fatalf("expected one retransmitted chunk, got %+v", sender.sent)
	}
	if sender.to[0] != "ep" {
		t.Fatalf("expected retransmit targeted at the client's UDP endpoint, got %q", sender.to[0])
	}
}

// TestRouterNACKRetransmitsToUDPEndpointRegardlessOfArrivalChannel verifies
// scenario C (spec §8): a NACK arriving over the TCP-keyed channel still
// retransmits to the client's UDP endpoint, not back over TCP.
func TestRouterNACKRetransmitsToUDPEndpointRegardlessOfArrivalChannel(t *testing.T) {
	r, sess, _ := newTestRouter()
	pin, _ := sess.Start()
	req := validReq(pin)
	req.WantLosslessVideo = true
	sess.HandleHandshake(req, session.TransportLocal, "tcp-ep")
	sess.LearnUDPEndpoint("udp-ep")

	cache := video.NewChunkCache(time.Second, 60)
	cache.Put(5, 0, 1, []byte("chunk-data"))
	pipeline := video.NewPipeline(sess.Channel(), cache)
	pipeline.SetLossless(true)
	r.SetVideoPipeline(pipeline)

	sender := &fakeUDPSender{}
	r.SetUDPSender(sender)

	nack, _ := json.Marshal(video.NACKRequest{FrameID: 5, MissingChunkIndices: []uint16{0}})
	tcpResp := &fakeResponder{}
	r.Dispatch(session.TransportLocal, "tcp-ep", codec.Packet{Kind: codec.KindVideoFrameChunkNack, Payload: nack}, tcpResp)

	if len(tcpResp.sent) != 0 {
		t.Fatalf("expected no reply on the TCP arrival channel, got %+v", tcpResp.sent)
	}
	if len(sender.sent) != 1 || sender.to[0] != "udp-ep" {
		t.Fatalf("expected retransmit sent to the UDP endpoint, got to=%v sent=%+v", sender.to, sender.sent)
	}
}

func TestRouterQualityReportForwardsToReportSink(t *testing.T) {
	r, sess, _ := newTestRouter()
	sess.Start()

	var got session.QualityReport
	r.SetReportSink(reportSinkFunc(func(rep session.QualityReport) { got = rep }))

	body, _ := json.Marshal(session.QualityReport{DroppedFrames: 3, LatencyMs: 42})
	r.Dispatch(session.TransportRelay, "ep", codec.Packet{Kind: codec.KindQualityReport, Payload: body}, &fakeResponder{})

	if got.DroppedFrames != 3 || got.LatencyMs != 42 {
		t.Fatalf("expected report forwarded, got %+v", got)
	}
}

type reportSinkFunc func(session.QualityReport)

func (f reportSinkFunc) RecordReport(r session.QualityReport) { f(r) }

func TestRouterDisconnectTearsDown(t *testing.T) {
	r, sess, _ := newTestRouter()
	pin, _ := sess.Start()
	sess.HandleHandshake(validReq(pin), session.TransportLocal, "ep")

	r.Dispatch(session.TransportLocal, "ep", codec.Packet{Kind: codec.KindDisconnect}, &fakeResponder{})
	if sess.State() != session.StateListening {
		t.Fatalf("expected listening after disconnect, got %s", sess.State())
	}
}

func TestRouterDropsUnhandledKind(t *testing.T) {
	r, _, _ := newTestRouter()
	before := r.DroppedCount()
	r.Dispatch(session.TransportLocal, "ep", codec.Packet{Kind: codec.KindAudioPCM}, &fakeResponder{})
	if r.DroppedCount() != before+1 {
		t.Fatal("expected unhandled kind to increment dropped counter")
	}
}
