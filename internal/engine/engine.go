// Package engine wires the session manager, transport router, three
// transports, video/audio pipelines, and adaptive controllers into one
// running host (spec §9). Nothing in internal/session, internal/transport,
// internal/video, internal/audio, or internal/adaptive imports this
// package — it is pure composition, the same role cmd/breeze-agent's
// runAgent plays for the teacher's heartbeat/websocket/collector wiring.
package engine

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aircatch/host/internal/adaptive"
	"github.com/aircatch/host/internal/audio"
	"github.com/aircatch/host/internal/codec"
	"github.com/aircatch/host/internal/config"
	"github.com/aircatch/host/internal/input"
	"github.com/aircatch/host/internal/logging"
	"github.com/aircatch/host/internal/platform"
	"github.com/aircatch/host/internal/session"
	"github.com/aircatch/host/internal/transport"
	"github.com/aircatch/host/internal/transport/closerange"
	"github.com/aircatch/host/internal/transport/local"
	"github.com/aircatch/host/internal/transport/relay"
	"github.com/aircatch/host/internal/video"
)

var log = logging.L("engine")

// Adapters bundles the out-of-scope platform collaborators (spec §1, §6).
// Callers that have a real OS backend provide it here; New defaults every
// adapter left nil except STUNClient to the corresponding platform.Noop*
// type. A nil STUNClient is kept, and the engine then skips the STUN probe.
type Adapters struct {
	Encoder    platform.EncoderAdapter
	Injector   platform.InputInjector
	Display    platform.DisplayAdapter
	Advertiser platform.Advertiser
	CloseRange platform.CloseRangeFramework
	STUNClient platform.STUNClient
}

func (a *Adapters) fillDefaults() {
	if a.Encoder == nil {
		a.Encoder = &platform.NoopEncoder{}
	}
	if a.Injector == nil {
		a.Injector = platform.NoopInjector{}
	}
	if a.Display == nil {
		a.Display = platform.NoopDisplay{Width: 1920, Height: 1080}
	}
	if a.Advertiser == nil {
		a.Advertiser = platform.NoopAdvertiser{}
	}
	if a.CloseRange == nil {
		a.CloseRange = &platform.NoopCloseRangeFramework{}
	}
}

// activeSession snapshots everything the encoder callbacks need to address
// outbound video/audio, refreshed atomically on every pairing and teardown
// so the hot send path never takes the session manager's lock.
type activeSession struct {
	transport          session.Transport
	endpoint           any
	profile            session.NegotiatedProfile
	closeRangeReliable bool
}

// Engine owns the long-lived components of one host process: the session
// manager, the three transports, the router, and whichever video/audio
// pipeline and adaptive controller the current pairing selected.
type Engine struct {
	cfg      *config.Config
	adapters Adapters

	Session *session.Manager
	Router  *transport.Router

	udp            *local.UDPListener
	tcp            *local.TCPListener
	closeRange     *closerange.Adapter
	relayClient    *relay.Client
	relaySessionID string

	active        atomic.Pointer[activeSession]
	videoPipeline atomic.Pointer[video.Pipeline]
	audioPipeline atomic.Pointer[audio.Pipeline]
	throughput    *adaptive.ThroughputController
	report        *adaptive.ReportController
}

// New builds an Engine. adapters fields left nil get the no-op default
// (spec §1: these are external collaborators with no implementation in
// this module).
func New(cfg *config.Config, adapters Adapters) *Engine {
	adapters.fillDefaults()

	sess := session.NewManager(cfg.HostName)
	dispatcher := input.NewDispatcher(adapters.Injector)
	router := transport.NewRouter(sess, dispatcher)

	e := &Engine{
		cfg:            cfg,
		adapters:       adapters,
		Session:        sess,
		Router:         router,
		relaySessionID: uuid.NewString(),
	}

	adapters.Encoder.SetFrameHandler(e.handleEncodedFrame)
	adapters.Encoder.SetAudioHandler(e.handleAudioPCM)

	sess.OnPaired(e.handlePaired)
	sess.OnTeardown(e.handleTeardown)
	sess.OnPINRotated(e.handlePINRotated)

	return e
}

// Start binds the local UDP/TCP listeners, starts the close-range adapter
// and (if enabled) the relay client, advertises the service, and puts the
// session into listening state. Returns the freshly generated PIN.
func (e *Engine) Start() (string, error) {
	udp, err := local.NewUDPListener(e.cfg.LocalUDPPort)
	if err != nil {
		return "", fmt.Errorf("engine: start: %w", err)
	}
	udp.SetHandler(func(endpoint any, pkt codec.Packet, respond local.Responder) {
		// Every UDP datagram tells us the client's live UDP endpoint, even
		// when the original handshake arrived over TCP (spec §4.8).
		e.Session.LearnUDPEndpoint(endpoint)
		e.Router.Dispatch(session.TransportLocal, endpoint, pkt, respond)
	})
	e.udp = udp
	e.Router.SetUDPSender(udp)
	go udp.Serve()

	tcp, err := local.NewTCPListener(e.cfg.LocalTCPPort)
	if err != nil {
		udp.Close()
		return "", fmt.Errorf("engine: start: %w", err)
	}
	tcp.SetHandler(func(endpoint any, pkt codec.Packet, respond local.Responder) {
		e.Router.Dispatch(session.TransportLocal, endpoint, pkt, respond)
	})
	e.tcp = tcp
	go tcp.Serve()

	e.closeRange = closerange.New(e.adapters.CloseRange)
	e.closeRange.SetHandler(func(peer string, pkt codec.Packet, respond closerange.Responder) {
		e.Router.Dispatch(session.TransportCloseRange, peer, pkt, respond)
	})
	if err := e.closeRange.Start(); err != nil {
		log.Warn("close-range framework failed to start", "error", err)
	}

	if e.cfg.RelayEnabled {
		e.relayClient = relay.New(relay.Config{
			URL:                    e.cfg.RelayURL,
			SessionID:              e.relaySessionID,
			BackpressureLimitBytes: e.cfg.RelayBackpressureLimitBytes,
			MessageCeilingBytes:    e.cfg.RelayMessageCeilingBytes,
		}, e.handleRelayPacket)
		go e.runRelay()
		if e.adapters.STUNClient != nil {
			go e.publishSTUNCandidate()
		}
	}

	tcpPort, udpPort := 0, 0
	if a, ok := tcp.Addr().(*net.TCPAddr); ok {
		tcpPort = a.Port
	}
	if a, ok := udp.Addr().(*net.UDPAddr); ok {
		udpPort = a.Port
	}
	if err := e.adapters.Advertiser.Start("_aircatch._tcp", e.cfg.HostName, tcpPort, udpPort, nil); err != nil {
		log.Warn("advertiser failed to start", "error", err)
	}

	return e.Session.Start()
}

// Stop tears down every transport and the session.
func (e *Engine) Stop() {
	e.Session.Stop()
	e.adapters.Advertiser.Stop()
	if e.closeRange != nil {
		e.closeRange.Stop()
	}
	if e.relayClient != nil {
		e.relayClient.Stop()
	}
	if e.udp != nil {
		e.udp.Close()
	}
	if e.tcp != nil {
		e.tcp.Close()
	}
}

func (e *Engine) runRelay() {
	for {
		if err := e.relayClient.Start(); err != nil {
			log.Warn("relay connect failed", "error", err)
			return
		}
		// Start returned because the connection dropped or Stop() was
		// called; either way treat it as a transport failure so a paired
		// relay session tears down rather than silently stalling (spec
		// §4.9: "reconnection is NOT automatic").
		e.Session.TransportFailed(session.TransportRelay, "relay connection closed")
		return
	}
}

// publishSTUNCandidate runs the one-shot mapped-address probe and, if it
// succeeds, publishes the result on the relay's candidate control message
// (spec §4.9, §6). Best-effort: a failed probe or a relay not yet
// registered simply means no candidate is published.
func (e *Engine) publishSTUNCandidate() {
	timeout := time.Duration(e.cfg.StunTimeoutMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ip, port, ok := e.adapters.STUNClient.DiscoverMappedAddress(ctx, e.cfg.StunServerHost, e.cfg.StunServerPort, timeout)
	if !ok {
		log.Debug("stun probe did not resolve a mapped address")
		return
	}

	time.Sleep(500 * time.Millisecond) // give the relay connection time to register first
	if e.relayClient == nil {
		return
	}
	if err := e.relayClient.PublishCandidate(ip, port); err != nil {
		log.Debug("publish stun candidate failed", "error", err)
	}
}

func (e *Engine) handleRelayPacket(channel relay.Channel, pkt codec.Packet) {
	e.Router.Dispatch(session.TransportRelay, "relay", pkt, relayResponder{client: e.relayClient})
}

type relayResponder struct {
	client *relay.Client
}

func (r relayResponder) Send(pkt codec.Packet) error {
	return r.client.Send(relay.ChannelTCP, pkt)
}

func (e *Engine) handlePINRotated(newPIN string) {
	if e.relayClient == nil {
		return
	}
	if err := e.relayClient.Reregister(); err != nil {
		log.Warn("relay re-registration failed", "error", err)
	}
}

func (e *Engine) handlePaired(evt session.PairedEvent) {
	cache := video.NewChunkCache(time.Duration(e.cfg.ChunkCacheTTLMs)*time.Millisecond, uint32(e.cfg.PruneInterval))
	pipeline := video.NewPipeline(e.Session.Channel(), cache)
	pipeline.SetLossless(evt.Profile.Lossless)
	e.videoPipeline.Store(pipeline)
	e.Router.SetVideoPipeline(pipeline)

	audioPipeline := audio.NewPipeline(e.Session.Channel(), evt.Profile.Audio)
	e.audioPipeline.Store(audioPipeline)

	e.active.Store(&activeSession{
		transport:          evt.Transport,
		endpoint:           evt.Binding.Endpoint,
		profile:            evt.Profile,
		closeRangeReliable: evt.CloseRangeReliableVideo,
	})

	if evt.Transport == session.TransportRelay {
		e.report = adaptive.NewReportController(e.adapters.Encoder, evt.Profile.TargetBitrateBPS, evt.Profile.FrameRate, e.Session.ApplyAdaptive)
		e.Router.SetReportSink(e.report)
		e.Router.SetRTTSink(nil)
	} else {
		e.throughput = adaptive.NewThroughputController(e.adapters.Encoder, evt.Profile.TargetBitrateBPS, e.Session.ApplyAdaptive)
		e.Router.SetRTTSink(e.throughput)
		e.Router.SetReportSink(nil)
		e.throughput.Start()
	}

	if err := e.adapters.Encoder.Start(platform.EncodeProfile{
		Width:      evt.Profile.Width,
		Height:     evt.Profile.Height,
		FrameRate:  evt.Profile.FrameRate,
		BitrateBPS: evt.Profile.TargetBitrateBPS,
		Codec:      string(evt.Profile.Codec),
		Lossless:   evt.Profile.Lossless,
	}); err != nil {
		log.Error("encoder start failed", "error", err)
	}
}

func (e *Engine) handleTeardown() {
	e.adapters.Encoder.Stop()
	if e.throughput != nil {
		e.throughput.Stop()
		e.throughput = nil
	}
	e.report = nil
	e.active.Store(nil)
	e.videoPipeline.Store(nil)
	e.audioPipeline.Store(nil)
	e.Router.SetVideoPipeline(nil)
	e.Router.SetRTTSink(nil)
	e.Router.SetReportSink(nil)
}

// handleEncodedFrame implements the video send strategy (spec §4.4).
func (e *Engine) handleEncodedFrame(frame []byte) {
	as := e.active.Load()
	pipeline := e.videoPipeline.Load()
	if as == nil || pipeline == nil {
		return
	}

	ciphertext, ok := pipeline.EncryptFrame(frame)
	if !ok {
		log.Warn("dropping frame: encryption failed")
		pipeline.Metrics().RecordDrop()
		return
	}

	switch as.transport {
	case session.TransportRelay:
		if err := e.relayClient.Send(relay.ChannelTCP, codec.Packet{Kind: codec.KindVideoFrame, Payload: ciphertext}); err != nil {
			log.Debug("relay video send failed", "error", err)
			return
		}
		pipeline.Metrics().RecordSend(len(ciphertext))

	case session.TransportCloseRange:
		peer, ok := as.endpoint.(string)
		if !ok {
			return
		}
		if as.closeRangeReliable {
			if err := e.closeRange.Send(peer, codec.Packet{Kind: codec.KindVideoFrame, Payload: ciphertext}, platform.SendReliable); err != nil {
				log.Debug("close-range video send failed", "error", err)
				return
			}
			pipeline.Metrics().RecordSend(len(ciphertext))
			return
		}
		e.sendFragmented(pipeline, ciphertext, func(chunk []byte) error {
			return e.closeRange.Send(peer, codec.Packet{Kind: codec.KindVideoFrameChunk, Payload: chunk}, platform.SendUnreliable)
		})

	default: // TransportLocal
		endpoint, ok := as.endpoint.(string)
		if !ok {
			return
		}
		if !as.profile.LowLatency {
			if err := e.tcp.SendTo(endpoint, codec.Packet{Kind: codec.KindVideoFrame, Payload: ciphertext}); err != nil {
				log.Debug("local tcp video send failed", "error", err)
				return
			}
			pipeline.Metrics().RecordSend(len(ciphertext))
			return
		}
		// Fragmented low-latency sends always go over UDP, which may be a
		// distinct endpoint from where the handshake arrived (spec §4.8): a
		// TCP-arrived handshake negotiating LowLatency still needs the
		// client's actual UDP endpoint, not the TCP one.
		udpEndpoint, ok := e.Session.ActiveUDPEndpoint()
		if !ok {
			return
		}
		udpHostString, ok := udpEndpoint.(string)
		if !ok {
			return
		}
		e.sendFragmented(pipeline, ciphertext, func(chunk []byte) error {
			return e.udp.SendTo(udpHostString, codec.Packet{Kind: codec.KindVideoFrameChunk, Payload: chunk})
		})
	}
}

func (e *Engine) sendFragmented(pipeline *video.Pipeline, ciphertext []byte, send func(chunk []byte) error) {
	frameID := pipeline.NextFrameID()
	chunks, err := pipeline.FragmentAndCache(frameID, ciphertext)
	if err != nil {
		log.Info("dropping oversize frame", "frameId", frameID, "error", err)
		return
	}
	for _, chunk := range chunks {
		if err := send(chunk); err != nil {
			log.Debug("chunk send failed", "error", err)
			return
		}
	}
	pipeline.Metrics().RecordSend(len(ciphertext))
}

func (e *Engine) handleAudioPCM(pcm []byte) {
	as := e.active.Load()
	pipeline := e.audioPipeline.Load()
	if as == nil || pipeline == nil || !pipeline.Enabled() {
		return
	}

	ciphertext, ok := pipeline.EncryptPCM(pcm)
	if !ok {
		return
	}
	pkt := codec.Packet{Kind: codec.KindAudioPCM, Payload: ciphertext}

	var err error
	switch as.transport {
	case session.TransportRelay:
		err = e.relayClient.Send(relay.ChannelUDP, pkt)
	case session.TransportCloseRange:
		if peer, ok := as.endpoint.(string); ok {
			err = e.closeRange.Send(peer, pkt, platform.SendUnreliable)
		}
	default:
		// Audio is always a UDP datagram (spec §4.5), so it must target the
		// client's tracked UDP endpoint rather than the arrival-bound one —
		// a TCP-arrived local handshake would otherwise get zero audio.
		if udpEndpoint, ok := e.Session.ActiveUDPEndpoint(); ok {
			if hostString, ok := udpEndpoint.(string); ok {
				err = e.udp.SendTo(hostString, pkt)
			}
		}
	}
	if err != nil {
		log.Debug("audio send failed", "error", err)
		pipeline.Metrics().RecordDrop()
		return
	}
	pipeline.Metrics().RecordSend(len(ciphertext))
}
