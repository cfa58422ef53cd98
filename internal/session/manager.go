// Package session implements the pairing handshake and the
// stopped/listening/paired/teardown lifecycle that every transport and
// pipeline component is driven by (spec §4.3).
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aircatch/host/internal/cryptochan"
	"github.com/aircatch/host/internal/logging"
	"github.com/aircatch/host/internal/pin"
)

var log = logging.L("session")

// Default negotiation constants (spec §4.3, scenario A, scenario D).
const (
	localDefaultBitrateBPS  = 20_000_000
	localDefaultFrameRate   = 60
	relayDefaultBitrateBPS  = 6_000_000
	relayDefaultFrameRate   = 30
)

// PairedEvent carries everything a newly-paired session needs to start
// streaming: the negotiated profile, the client binding, and which
// transport the handshake arrived on. The session manager does not start
// pipelines itself (spec §9: ownership is split across components); it
// publishes this event for the engine wiring to react to.
type PairedEvent struct {
	Transport Transport
	Binding   ClientBinding
	Profile   NegotiatedProfile
	// CloseRangeReliableVideo is only meaningful when Transport ==
	// TransportCloseRange: true when video should use the reliable P2P
	// send mode because the client preferred reliability over latency
	// (spec §4.3).
	CloseRangeReliableVideo bool
}

// Manager owns the single session record: PIN, derived key, client binding,
// and negotiated profile (spec §3 "Ownership"). It never touches
// transports, the video/audio pipelines, or the encoder directly; those are
// wired by the engine via the hooks below, keeping the cyclic
// session<->transport<->pipeline references broken (spec §9).
type Manager struct {
	mu sync.Mutex

	hostName string
	state    State
	pinStr   string
	channel  *cryptochan.Channel
	binding  *ClientBinding
	profile  NegotiatedProfile
	selected Transport

	observer StatusObserver

	onPaired      func(PairedEvent)
	onTeardown    func()
	onPINRotated  func(newPIN string)
}

// NewManager creates a Manager in the stopped state.
func NewManager(hostName string) *Manager {
	return &Manager{
		hostName: hostName,
		state:    StateStopped,
		channel:  cryptochan.New(),
		observer: noopObserver{},
	}
}

// SetStatusObserver installs the callback for lifecycle/error notifications.
func (m *Manager) SetStatusObserver(o StatusObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o == nil {
		o = noopObserver{}
	}
	m.observer = o
}

// OnPaired installs the callback invoked synchronously after a successful
// handshake transitions the session to paired.
func (m *Manager) OnPaired(f func(PairedEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPaired = f
}

// OnTeardown installs the callback invoked whenever the session tears down
// (explicit disconnect, transport failure, or host stop) — the engine uses
// this to stop the encoder, invalidate the chunk cache, and stop pipelines.
func (m *Manager) OnTeardown(f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTeardown = f
}

// OnPINRotated installs the callback invoked after RotatePIN derives a new
// key — the relay transport uses this to re-send its register message
// (spec §4.9 "Session re-registration").
func (m *Manager) OnPINRotated(f func(newPIN string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPINRotated = f
}

// Start transitions stopped -> listening, generating a fresh PIN.
func (m *Manager) Start() (string, error) {
	p, err := pin.Generate()
	if err != nil {
		return "", fmt.Errorf("session: start: %w", err)
	}

	m.mu.Lock()
	m.pinStr = p
	if err := m.channel.DeriveKey(p); err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("session: start: %w", err)
	}
	m.setState(StateListening)
	m.mu.Unlock()

	log.Info("session listening", "pin", p)
	return p, nil
}

// Stop tears down any active pairing and transitions to stopped.
func (m *Manager) Stop() {
	m.teardown(true)
}

// PIN returns the current PIN (empty if stopped).
func (m *Manager) PIN() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinStr
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Channel returns the session's crypto channel. Transports/pipelines hold
// this reference rather than copying key material around (spec §4.2, §5:
// "Derived key: immutable for the lifetime of a PIN; replaced atomically on
// rotation").
func (m *Manager) Channel() *cryptochan.Channel {
	return m.channel
}

// RotatePIN generates a fresh PIN, re-derives the key, and notifies the
// relay transport to re-register (spec §4.3 step 1, §4.9).
func (m *Manager) RotatePIN() (string, error) {
	p, err := pin.Generate()
	if err != nil {
		return "", fmt.Errorf("session: rotate pin: %w", err)
	}

	m.mu.Lock()
	m.pinStr = p
	if err := m.channel.DeriveKey(p); err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("session: rotate pin: %w", err)
	}
	hook := m.onPINRotated
	m.mu.Unlock()

	log.Info("pin rotated", "pin", p)
	if hook != nil {
		hook(p)
	}
	return p, nil
}

// Binding returns a copy of the current client binding, if any.
func (m *Manager) Binding() (ClientBinding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.binding == nil {
		return ClientBinding{}, false
	}
	return *m.binding, true
}

// Profile returns a copy of the current negotiated profile.
func (m *Manager) Profile() NegotiatedProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}

// ApplyAdaptive updates the negotiated profile's bitrate/frame rate, as
// called by the adaptive controller (spec §4.7). Codec is never changed at
// runtime (spec §4.7: "no runtime codec switching").
func (m *Manager) ApplyAdaptive(bitrateBPS, frameRate int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bitrateBPS > 0 {
		m.profile.TargetBitrateBPS = bitrateBPS
	}
	if frameRate > 0 {
		m.profile.FrameRate = frameRate
	}
}

// HandleHandshake validates req against the current PIN and, on success,
// negotiates a profile, replaces any prior binding atomically, and
// transitions to paired (spec §4.3). On PIN mismatch it returns
// accepted=false and leaves all state untouched (testable property 7).
func (m *Manager) HandleHandshake(req HandshakeRequest, transport Transport, endpoint any) (ack HandshakeAck, accepted bool) {
	m.mu.Lock()
	currentPIN := m.pinStr
	hostName := m.hostName
	m.mu.Unlock()

	if !pin.Equal(req.PIN, currentPIN) {
		log.Info("handshake rejected: pin mismatch")
		return HandshakeAck{}, false
	}

	profile := negotiateProfile(req, transport)
	binding := ClientBinding{
		ID:                uuid.NewString(),
		Endpoint:          endpoint,
		UDPEndpoint:       endpoint, // correct when the handshake itself arrived over UDP
		Name:              req.ClientName,
		Version:           req.ClientVersion,
		DeviceModel:       req.DeviceModel,
		Width:             req.Width,
		Height:            req.Height,
		PreferLowLatency:  req.PreferLowLatency,
		WantLosslessVideo: req.WantLosslessVideo,
		WantVideo:         req.WantVideo,
		WantAudio:         req.WantAudio,
		ConnectedAt:       time.Now(),
	}

	m.mu.Lock()
	m.binding = &binding
	m.profile = profile
	m.selected = transport
	m.setState(StatePaired)
	onPaired := m.onPaired
	m.mu.Unlock()

	ack = HandshakeAck{
		Width:            profile.Width,
		Height:           profile.Height,
		FrameRate:        profile.FrameRate,
		HostName:         hostName,
		BitrateBPS:       profile.TargetBitrateBPS,
		Codec:            profile.Codec,
		IsVirtualDisplay: false,
	}

	log.Info("handshake accepted",
		"client", req.ClientName, "transport", transport,
		"width", profile.Width, "height", profile.Height,
		"bitrate", profile.TargetBitrateBPS, "codec", profile.Codec)

	if onPaired != nil {
		onPaired(PairedEvent{
			Transport:               transport,
			Binding:                 binding,
			Profile:                 profile,
			CloseRangeReliableVideo: transport == TransportCloseRange && !req.PreferLowLatency,
		})
	}

	return ack, true
}

// HandleDisconnect tears down the session if the disconnect came from the
// currently-bound endpoint (a stale endpoint's disconnect is ignored, since
// it has already been superseded per the one-active-client policy).
func (m *Manager) HandleDisconnect(endpoint any) {
	m.mu.Lock()
	if m.binding == nil || m.binding.Endpoint != endpoint {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.teardown(false)
}

// ActiveEndpoint returns the endpoint handle of the current binding, used by
// the router/input dispatcher to discard input from superseded endpoints
// (testable property 8).
func (m *Manager) ActiveEndpoint() (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.binding == nil {
		return nil, false
	}
	return m.binding.Endpoint, true
}

// LearnUDPEndpoint records the endpoint a UDP datagram was just received
// from for the active local-transport binding (spec §4.8: the host learns
// the client's UDP endpoint from the first UDP packet it receives from that
// client, which may differ from the endpoint the handshake itself arrived
// on if the handshake came in over TCP). A no-op outside local transport, or
// when there is no active binding.
func (m *Manager) LearnUDPEndpoint(endpoint any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.binding == nil || m.selected != TransportLocal {
		return
	}
	m.binding.UDPEndpoint = endpoint
}

// ActiveUDPEndpoint returns the UDP endpoint handle of the current binding,
// used to target video fragment sends, NACK retransmits, and audio at the
// client's actual UDP endpoint regardless of which channel a given packet
// arrived on (spec §4.8, §8 scenario C).
func (m *Manager) ActiveUDPEndpoint() (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.binding == nil || m.binding.UDPEndpoint == nil {
		return nil, false
	}
	return m.binding.UDPEndpoint, true
}

// TransportFailed tears down the session in response to a transport-level
// failure (TCP reset, WebSocket error) for the currently-selected transport
// (spec §7 "Transport failure").
func (m *Manager) TransportFailed(transport Transport, reason string) {
	m.mu.Lock()
	selected := m.selected
	m.mu.Unlock()
	if selected != transport {
		return
	}
	m.observer.OnError(reason)
	m.teardown(false)
}

// teardown invalidates pipeline state via onTeardown and returns to
// listening (final=false) or stopped (final=true) (spec §4.3). The key is
// zeroed only when final is true; a non-final teardown keeps the current
// PIN's key for the next pairing.
func (m *Manager) teardown(final bool) {
	m.mu.Lock()
	if m.state != StatePaired && m.state != StateListening {
		m.mu.Unlock()
		return
	}
	m.setState(StateTeardown)
	m.binding = nil
	m.profile = NegotiatedProfile{}
	m.selected = TransportNone
	hook := m.onTeardown
	m.mu.Unlock()

	if hook != nil {
		hook()
	}

	m.mu.Lock()
	if final {
		m.channel.ClearKey()
		m.pinStr = ""
		m.setState(StateStopped)
	} else {
		m.setState(StateListening)
	}
	m.mu.Unlock()

	log.Info("session teardown", "final", final)
}

// setState must be called with m.mu held.
func (m *Manager) setState(s State) {
	m.state = s
	m.observer.OnStateChange(s)
}

// negotiateProfile applies the transport-specific policy from spec §4.3.
func negotiateProfile(req HandshakeRequest, transport Transport) NegotiatedProfile {
	switch transport {
	case TransportRelay:
		return NegotiatedProfile{
			TargetBitrateBPS: relayDefaultBitrateBPS,
			FrameRate:        relayDefaultFrameRate,
			Codec:            CodecHEVCMain,
			Width:            req.Width,
			Height:           req.Height,
			Lossless:         false,
			LowLatency:       true,
			Audio:            req.WantAudio,
		}
	default: // TransportLocal, TransportCloseRange
		return NegotiatedProfile{
			TargetBitrateBPS: localDefaultBitrateBPS,
			FrameRate:        localDefaultFrameRate,
			Codec:            CodecH264,
			Width:            req.Width,
			Height:           req.Height,
			Lossless:         req.WantLosslessVideo,
			LowLatency:       req.PreferLowLatency,
			Audio:            req.WantAudio,
		}
	}
}
