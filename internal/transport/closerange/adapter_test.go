package closerange

import (
	"testing"

	"github.com/aircatch/host/internal/codec"
	"github.com/aircatch/host/internal/platform"
)

type fakeFramework struct {
	started bool
	stopped bool
	handler func(peer string, kind byte, payload []byte)

	sent      []sentCall
	broadcast []sentCall
}

type sentCall struct {
	peer    string
	kind    byte
	payload []byte
	mode    platform.SendMode
}

func (f *fakeFramework) Start() error { f.started = true; return nil }
func (f *fakeFramework) Stop()        { f.stopped = true }

func (f *fakeFramework) Send(peer string, kind byte, payload []byte, mode platform.SendMode) error {
	f.sent = append(f.sent, sentCall{peer, kind, payload, mode})
	return nil
}

func (f *fakeFramework) Broadcast(kind byte, payload []byte, mode platform.SendMode) error {
	f.broadcast = append(f.broadcast, sentCall{"", kind, payload, mode})
	return nil
}

func (f *fakeFramework) SetPacketHandler(h func(peer string, kind byte, payload []byte)) {
	f.handler = h
}

func TestAdapterStartWiresFrameworkAndStarts(t *testing.T) {
	fw := &fakeFramework{}
	a := New(fw)
	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !fw.started {
		t.Fatal("expected framework Start to be called")
	}
	if fw.handler == nil {
		t.Fatal("expected packet handler to be wired")
	}
}

func TestAdapterDecodesAndDispatchesInboundPacket(t *testing.T) {
	fw := &fakeFramework{}
	a := New(fw)

	var gotPeer string
	var gotPkt codec.Packet
	a.SetHandler(func(peer string, pkt codec.Packet, respond Responder) {
		gotPeer = peer
		gotPkt = pkt
	})
	a.Start()

	fw.handler("peer-1", byte(codec.KindPing), []byte("hello"))

	if gotPeer != "peer-1" || gotPkt.Kind != codec.KindPing || string(gotPkt.Payload) != "hello" {
		t.Fatalf("unexpected dispatch: peer=%s pkt=%+v", gotPeer, gotPkt)
	}
}

func TestAdapterDropsUnknownKind(t *testing.T) {
	fw := &fakeFramework{}
	a := New(fw)

	called := false
	a.SetHandler(func(peer string, pkt codec.Packet, respond Responder) { called = true })
	a.Start()

	fw.handler("peer-1", 0xFF, []byte("junk"))

	if called {
		t.Fatal("expected unknown kind to be dropped, not dispatched")
	}
}

func TestResponderSendsReliableByDefault(t *testing.T) {
	fw := &fakeFramework{}
	a := New(fw)

	var respond Responder
	a.SetHandler(func(peer string, pkt codec.Packet, r Responder) { respond = r })
	a.Start()
	fw.handler("peer-1", byte(codec.KindHandshakeRequest), nil)

	if err := respond.Send(codec.Packet{Kind: codec.KindHandshakeAck, Payload: []byte("ack")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fw.sent) != 1 || fw.sent[0].mode != platform.SendReliable || fw.sent[0].peer != "peer-1" {
		t.Fatalf("unexpected send call: %+v", fw.sent)
	}
}

func TestAdapterSendUsesRequestedMode(t *testing.T) {
	fw := &fakeFramework{}
	a := New(fw)
	a.Start()

	if err := a.Send("peer-1", codec.Packet{Kind: codec.KindVideoFrame, Payload: []byte("frame")}, platform.SendUnreliable); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fw.sent) != 1 || fw.sent[0].mode != platform.SendUnreliable {
		t.Fatalf("unexpected send call: %+v", fw.sent)
	}
}

func TestAdapterBroadcast(t *testing.T) {
	fw := &fakeFramework{}
	a := New(fw)
	a.Start()

	if err := a.Broadcast(codec.Packet{Kind: codec.KindVideoFrame, Payload: []byte("frame")}, platform.SendUnreliable); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(fw.broadcast) != 1 {
		t.Fatalf("expected 1 broadcast call, got %d", len(fw.broadcast))
	}
}

func TestAdapterStop(t *testing.T) {
	fw := &fakeFramework{}
	a := New(fw)
	a.Start()
	a.Stop()
	if !fw.stopped {
		t.Fatal("expected framework Stop to be called")
	}
}
