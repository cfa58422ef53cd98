// Package relay implements the internet rendezvous transport (spec §4.9): a
// single WebSocket to a fixed relay URL carrying JSON control frames and
// binary video/audio frames, with an explicit backpressure counter since
// there's no OS socket buffer to lean on.
package relay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aircatch/host/internal/codec"
	"github.com/aircatch/host/internal/logging"
)

var log = logging.L("transport.relay")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// Channel names the two virtual channels multiplexed over the JSON "relay"
// control message (spec §4.9).
type Channel string

const (
	ChannelTCP Channel = "tcp"
	ChannelUDP Channel = "udp"
)

// PacketHandler receives one packet decoded from either a JSON "relay"
// envelope or a raw binary frame, tagged with the virtual channel it arrived
// on (always ChannelUDP for binary frames per spec §4.9: "Binary WebSocket
// frames ... are always treated as the unreliable channel").
type PacketHandler func(channel Channel, pkt codec.Packet)

// Config is the relay-specific subset of the host's runtime configuration.
type Config struct {
	URL                    string
	SessionID              string
	BackpressureLimitBytes int
	MessageCeilingBytes    int
}

// Client manages one WebSocket connection to the relay. Unlike the teacher's
// agent/internal/websocket client, it does not reconnect automatically on
// failure: the session manager treats a relay error as a client disconnect
// (spec §4.9, §5, §7). A new connection takes a fresh Start() call; the
// engine makes none after the connection drops.
type Client struct {
	cfg     Config
	handler PacketHandler

	connMu sync.RWMutex
	conn   *websocket.Conn

	done     chan struct{}
	stopOnce sync.Once

	pendingBytes atomic.Int64

	runningMu sync.Mutex
	running   bool
}

// New builds a relay client. handler is invoked from the read pump goroutine
// for every decoded inbound packet.
func New(cfg Config, handler PacketHandler) *Client {
	return &Client{cfg: cfg, handler: handler, done: make(chan struct{})}
}

// Start dials the relay and registers the session, then runs the read pump
// until the connection fails or Stop is called. It blocks; callers run it in
// its own goroutine.
func (c *Client) Start() error {
	c.runningMu.Lock()
	if c.running {
		c.runningMu.Unlock()
		return fmt.Errorf("relay: already running")
	}
	c.running = true
	c.done = make(chan struct{})
	c.stopOnce = sync.Once{}
	c.runningMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(c.cfg.URL, nil)
	if err != nil {
		c.runningMu.Lock()
		c.running = false
		c.runningMu.Unlock()
		return fmt.Errorf("relay: dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	if err := c.register(); err != nil {
		conn.Close()
		c.runningMu.Lock()
		c.running = false
		c.runningMu.Unlock()
		return err
	}

	log.Info("relay connected", "url", c.cfg.URL, "sessionId", c.cfg.SessionID)

	pumpDone := make(chan struct{})
	go c.pingLoop(pumpDone)
	c.readPump()
	close(pumpDone)

	c.runningMu.Lock()
	c.running = false
	c.runningMu.Unlock()
	return nil
}

// Stop closes the connection and unblocks Start's read pump.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.connMu.Lock()
		if c.conn != nil {
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()
	})
}

// controlMessage is the shape of every JSON text frame exchanged with the
// relay (spec §4.9, §6): register, relay (data), and candidate.
type controlMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Payload   string `json:"payload,omitempty"`
	IP        string `json:"ip,omitempty"`
	Port      int    `json:"port,omitempty"`
}

func (c *Client) register() error {
	msg := controlMessage{Type: "register", SessionID: c.cfg.SessionID, Role: "host"}
	return c.writeJSON(msg)
}

// Reregister re-sends the register control message, used on PIN rotation
// (spec §4.3: "resets the relay registration").
func (c *Client) Reregister() error {
	return c.register()
}

// PublishCandidate sends a best-effort STUN-discovered mapped address.
func (c *Client) PublishCandidate(ip string, port int) error {
	return c.writeJSON(controlMessage{Type: "candidate", SessionID: c.cfg.SessionID, IP: ip, Port: port})
}

func (c *Client) writeJSON(msg controlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("relay: not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Send delivers a packet over the named virtual channel (spec §4.9). Binary
// framing is used for every packet on the unreliable channel (lower
// per-message overhead); reliable-channel packets go as a JSON "relay"
// envelope.
// The call is dropped (with a logged reason) if either the per-message
// ceiling or the outstanding-bytes backpressure limit is exceeded (spec §7:
// "relay backpressure above threshold ... drop the frame").
func (c *Client) Send(channel Channel, pkt codec.Packet) error {
	datagram := codec.EncodeDatagram(pkt)
	size := len(datagram)

	if ceiling := c.cfg.MessageCeilingBytes; ceiling > 0 && size > ceiling {
		log.Info("dropping oversize relay message", "bytes", size, "ceiling", ceiling)
		return nil
	}
	if limit := c.cfg.BackpressureLimitBytes; limit > 0 && c.pendingBytes.Load() > int64(limit) {
		log.Info("dropping relay message under backpressure", "pendingBytes", c.pendingBytes.Load())
		return nil
	}

	c.pendingBytes.Add(int64(size))
	defer c.pendingBytes.Add(-int64(size))

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("relay: not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))

	if channel == ChannelUDP {
		return conn.WriteMessage(websocket.BinaryMessage, datagram)
	}

	env := controlMessage{
		Type:      "relay",
		SessionID: c.cfg.SessionID,
		Channel:   string(channel),
		Payload:   base64.StdEncoding.EncodeToString(datagram),
	}
	return c.writeJSON(env)
}

// PendingBytes reports the current outstanding-send backpressure counter.
func (c *Client) PendingBytes() int64 {
	return c.pendingBytes.Load()
}

func (c *Client) readPump() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn("relay read error", "error", err)
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			pkt, ok := codec.DecodeDatagram(message)
			if !ok {
				continue
			}
			if c.handler != nil {
				c.handler(ChannelUDP, pkt)
			}

		case websocket.TextMessage:
			var env controlMessage
			if err := json.Unmarshal(message, &env); err != nil {
				log.Warn("relay: malformed control message", "error", err)
				continue
			}
			if env.Type != "relay" {
				continue // register/candidate acks, errors: nothing to forward
			}
			raw, err := base64.StdEncoding.DecodeString(env.Payload)
			if err != nil {
				continue
			}
			pkt, ok := codec.DecodeDatagram(raw)
			if !ok {
				continue
			}
			ch := ChannelUDP
			if env.Channel == string(ChannelTCP) {
				ch = ChannelTCP
			}
			if c.handler != nil {
				c.handler(ch, pkt)
			}
		}
	}
}

func (c *Client) pingLoop(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
