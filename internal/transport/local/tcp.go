package local

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/aircatch/host/internal/codec"
)

// TCPListener accepts connections and reads length-prefixed frames (spec
// §4.1, §4.8). Each connection is configured for interactive video:
// Nagle disabled, aggressive keepalive.
type TCPListener struct {
	ln      net.Listener
	handler PacketHandler

	mu    sync.RWMutex
	conns map[string]*tcpConn // host_string -> connection
}

// NewTCPListener binds to the given port (0 for ephemeral) on all
// interfaces.
func NewTCPListener(port int) (*TCPListener, error) {
	ln, err := net.Listen("tcp4", netAddr(port))
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln, conns: make(map[string]*tcpConn)}, nil
}

func netAddr(port int) string {
	return ":" + strconv.Itoa(port)
}

// Addr returns the bound local address.
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// SetHandler installs the packet handler invoked for each frame received on
// any connection. Must be called before Serve.
func (l *TCPListener) SetHandler(h PacketHandler) { l.handler = h }

// Serve blocks, accepting connections until the listener is closed.
func (l *TCPListener) Serve() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return // closed
		}
		tc := newTCPConn(conn)

		l.mu.Lock()
		l.conns[conn.RemoteAddr().String()] = tc
		l.mu.Unlock()

		go l.serveConn(tc)
	}
}

func (l *TCPListener) serveConn(tc *tcpConn) {
	defer func() {
		l.mu.Lock()
		delete(l.conns, tc.key)
		l.mu.Unlock()
		tc.conn.Close()
	}()

	for {
		pkt, err := codec.DecodeStream(tc.conn)
		if err != nil {
			if err == io.EOF {
				return
			}
			if err == codec.ErrUnknownKind {
				continue // protocol violation: drop frame, keep reading (spec §7)
			}
			return // I/O error or oversized frame (stream out of sync): treat as disconnect (spec §7)
		}
		if l.handler != nil {
			l.handler(tc.key, pkt, tc)
		}
	}
}

// Close releases the listener and all accepted connections.
func (l *TCPListener) Close() error {
	l.mu.Lock()
	for _, tc := range l.conns {
		tc.conn.Close()
	}
	l.mu.Unlock()
	return l.ln.Close()
}

// SendTo sends one packet to a specific previously-accepted connection,
// keyed by the host_string recorded when it was accepted.
func (l *TCPListener) SendTo(hostString string, pkt codec.Packet) error {
	l.mu.RLock()
	tc, ok := l.conns[hostString]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("local: unknown tcp connection %q", hostString)
	}
	return tc.Send(pkt)
}

// Broadcast sends one packet to every currently-connected client.
func (l *TCPListener) Broadcast(pkt codec.Packet) {
	l.mu.RLock()
	conns := make([]*tcpConn, 0, len(l.conns))
	for _, tc := range l.conns {
		conns = append(conns, tc)
	}
	l.mu.RUnlock()

	for _, tc := range conns {
		_ = tc.Send(pkt)
	}
}

type tcpConn struct {
	conn net.Conn
	key  string
	mu   sync.Mutex
}

func newTCPConn(conn net.Conn) *tcpConn {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
		_ = tc.SetKeepAlivePeriod(2 * time.Second) // idle keepalive (spec §5)
	}
	return &tcpConn{conn: conn, key: conn.RemoteAddr().String()}
}

// Send implements Responder: write one length-prefixed frame to this
// connection (spec §5: "Control packets ... are sent on the same transport
// and channel ... as the inbound that triggered them").
func (c *tcpConn) Send(pkt codec.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return codec.EncodeStream(c.conn, pkt)
}
