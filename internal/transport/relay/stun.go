package relay

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pion/stun/v3"

	"github.com/aircatch/host/internal/platform"
)

// pionSTUNClient implements platform.STUNClient using pion/stun/v3, the same
// STUN implementation the retrieval pack's WebRTC-capable repos depend on
// transitively for ICE. The relay transport uses it directly for a one-shot
// best-effort mapped-address probe (spec §4.9, §5: "STUN probe: 2s hard
// timeout").
type pionSTUNClient struct{}

// NewSTUNClient returns the default platform.STUNClient implementation.
func NewSTUNClient() platform.STUNClient {
	return pionSTUNClient{}
}

func (pionSTUNClient) DiscoverMappedAddress(ctx context.Context, host string, port int, timeout time.Duration) (string, int, bool) {
	conn, err := net.DialTimeout("udp4", net.JoinHostPort(host, fmt.Sprint(port)), timeout)
	if err != nil {
		return "", 0, false
	}
	defer conn.Close()

	client, err := stun.NewClient(conn)
	if err != nil {
		return "", 0, false
	}
	defer client.Close()

	msg, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return "", 0, false
	}

	deadline := time.Now().Add(timeout)
	if dl, hasDeadline := ctx.Deadline(); hasDeadline && dl.Before(deadline) {
		deadline = dl
	}

	var (
		mappedIP   string
		mappedPort int
		ok         bool
	)

	err = client.Start(msg, deadline, func(ev stun.Event) {
		if ev.Error != nil {
			return
		}
		var xorAddr stun.XORMappedAddress
		if err := xorAddr.GetFrom(ev.Message); err != nil {
			return
		}
		mappedIP = xorAddr.IP.String()
		mappedPort = xorAddr.Port
		ok = true
	})
	if err != nil {
		return "", 0, false
	}

	return mappedIP, mappedPort, ok
}
