// Package closerange is a thin adapter over the host's close-range P2P
// framework (spec §4.10): start/stop, per-peer reliable/unreliable send, and
// broadcast, with inbound packets handed to a PacketHandler. Pairing is
// enforced entirely at the handshake layer (the PIN check in
// internal/session), so this adapter accepts every invitation the framework
// offers it unconditionally.
package closerange

import (
	"github.com/aircatch/host/internal/codec"
	"github.com/aircatch/host/internal/logging"
	"github.com/aircatch/host/internal/platform"
	"github.com/aircatch/host/internal/session"
)

var log = logging.L("transport.closerange")

// Transport identifies this adapter's origin for the router.
const Transport = session.TransportCloseRange

// PacketHandler receives one decoded inbound packet from a given peer.
type PacketHandler func(peer string, pkt codec.Packet, respond Responder)

// Responder replies to a specific peer over the close-range framework.
type Responder interface {
	Send(codec.Packet) error
}

// Adapter wraps a platform.CloseRangeFramework, translating the framework's
// raw (peer, kind, payload) callback into decoded codec.Packet values and
// exposing per-peer Responders for replies.
type Adapter struct {
	framework platform.CloseRangeFramework
	handler   PacketHandler
}

// New builds an Adapter over the given framework. The framework is not
// started until Start is called.
func New(framework platform.CloseRangeFramework) *Adapter {
	return &Adapter{framework: framework}
}

// SetHandler installs the packet handler. Must be called before Start.
func (a *Adapter) SetHandler(h PacketHandler) { a.handler = h }

// Start begins accepting close-range invitations and wires the framework's
// raw callback to our decode-and-dispatch path.
func (a *Adapter) Start() error {
	a.framework.SetPacketHandler(func(peer string, kind byte, payload []byte) {
		k := codec.Kind(kind)
		if !k.Valid() {
			log.Debug("dropping unknown close-range kind", "peer", peer, "kind", kind)
			return
		}
		if a.handler != nil {
			a.handler(peer, codec.Packet{Kind: k, Payload: payload}, peerResponder{framework: a.framework, peer: peer})
		}
	})
	return a.framework.Start()
}

// Stop tears down the close-range framework.
func (a *Adapter) Stop() {
	a.framework.Stop()
}

// Send delivers one packet to a specific peer using the given reliability
// mode (spec §4.10).
func (a *Adapter) Send(peer string, pkt codec.Packet, mode platform.SendMode) error {
	return a.framework.Send(peer, byte(pkt.Kind), pkt.Payload, mode)
}

// Broadcast delivers one packet to every connected peer.
func (a *Adapter) Broadcast(pkt codec.Packet, mode platform.SendMode) error {
	return a.framework.Broadcast(byte(pkt.Kind), pkt.Payload, mode)
}

type peerResponder struct {
	framework platform.CloseRangeFramework
	peer      string
}

// Send implements Responder. Control and video replies default to the
// reliable mode; callers that need unreliable delivery (video chunks) go
// through Adapter.Send directly with SendUnreliable instead of this
// Responder, which the router only uses for control-path replies
// (handshake_ack, pong, pairing_failed).
func (r peerResponder) Send(pkt codec.Packet) error {
	return r.framework.Send(r.peer, byte(pkt.Kind), pkt.Payload, platform.SendReliable)
}
