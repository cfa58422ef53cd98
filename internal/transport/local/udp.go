// Package local implements the UDP and TCP listeners for same-LAN
// streaming (spec §4.8): a UDP peer table for unreliable datagrams (video
// chunks, pings, input) and a length-prefixed TCP stream for reliable
// full-frame delivery and control packets.
package local

import (
	"fmt"
	"net"
	"sync"

	"github.com/aircatch/host/internal/codec"
	"github.com/aircatch/host/internal/logging"
	"github.com/aircatch/host/internal/session"
)

var log = logging.L("transport.local")

const maxDatagramSize = 64 * 1024

// PacketHandler receives one parsed inbound packet, the remote endpoint it
// arrived from, and a Responder bound to that endpoint.
type PacketHandler func(endpoint any, pkt codec.Packet, respond Responder)

// Responder replies to a specific peer on the transport it was received on.
type Responder interface {
	Send(codec.Packet) error
}

// UDPListener binds a UDP socket, tracks each distinct remote endpoint it
// has heard from, and supports directed send and broadcast to every known
// endpoint (spec §4.8).
type UDPListener struct {
	conn    *net.UDPConn
	handler PacketHandler

	mu    sync.RWMutex
	peers map[string]*net.UDPAddr // host_string -> last_known_endpoint

	wg sync.WaitGroup
}

// NewUDPListener binds to the given port (0 for ephemeral) on all
// interfaces.
func NewUDPListener(port int) (*UDPListener, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("local: listen udp: %w", err)
	}
	return &UDPListener{conn: conn, peers: make(map[string]*net.UDPAddr)}, nil
}

// Addr returns the bound local address.
func (l *UDPListener) Addr() net.Addr { return l.conn.LocalAddr() }

// SetHandler installs the packet handler invoked for each received
// datagram. Must be called before Serve.
func (l *UDPListener) SetHandler(h PacketHandler) { l.handler = h }

// Serve blocks, reading datagrams until the listener is closed.
func (l *UDPListener) Serve() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			return // closed
		}
		pkt, ok := codec.DecodeDatagram(buf[:n])
		if !ok {
			continue // unknown kind or truncated: drop (spec §7)
		}

		l.mu.Lock()
		l.peers[addr.String()] = addr
		l.mu.Unlock()

		if l.handler != nil {
			l.handler(addr.String(), pkt, udpResponder{conn: l.conn, addr: addr})
		}
	}
}

// Close releases the socket, unblocking Serve.
func (l *UDPListener) Close() error {
	return l.conn.Close()
}

// SendTo sends one packet to a specific previously-seen endpoint, keyed by
// the host_string recorded in the peer table (spec §4.8: "used to target
// retransmits").
func (l *UDPListener) SendTo(hostString string, pkt codec.Packet) error {
	l.mu.RLock()
	addr, ok := l.peers[hostString]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("local: unknown udp peer %q", hostString)
	}
	_, err := l.conn.WriteToUDP(codec.EncodeDatagram(pkt), addr)
	return err
}

// Broadcast sends one packet to every currently-registered peer.
func (l *UDPListener) Broadcast(pkt codec.Packet) {
	data := codec.EncodeDatagram(pkt)
	l.mu.RLock()
	addrs := make([]*net.UDPAddr, 0, len(l.peers))
	for _, a := range l.peers {
		addrs = append(addrs, a)
	}
	l.mu.RUnlock()

	for _, a := range addrs {
		if _, err := l.conn.WriteToUDP(data, a); err != nil {
			log.Debug("udp broadcast send failed", "peer", a.String(), "error", err)
		}
	}
}

type udpResponder struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

func (r udpResponder) Send(pkt codec.Packet) error {
	_, err := r.conn.WriteToUDP(codec.EncodeDatagram(pkt), r.addr)
	return err
}

// Transport identifies this listener's origin for the router (always
// local).
const Transport = session.TransportLocal
