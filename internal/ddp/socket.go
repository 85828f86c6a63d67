package ddp

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/muurk/psddp/internal/logging"
)

// lookupUDPAddr resolves destinations; tests replace it
var lookupUDPAddr = net.ResolveUDPAddr

// ListenSocket binds a UDP socket on 0.0.0.0:port. SO_REUSEPORT is set where
// the platform supports it, and SO_BROADCAST when broadcast is true. If port
// cannot be bound the bind is retried once on an ephemeral port.
func ListenSocket(port int, broadcast bool) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: socketControl(broadcast)}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
		conn, err := lc.ListenPacket(context.Background(), "udp4", addr)
		if err == nil {
			return conn, nil
		}
		logging.Error("Error getting DDP socket",
			zap.Int("port", port),
			zap.Error(err),
		)
		lastErr = err
		port = 0
	}
	return nil, fmt.Errorf("failed to bind DDP socket: %w", lastErr)
}

// localPort returns the UDP port conn is bound to, or 0.
func localPort(conn net.PacketConn) int {
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

// resolveHost returns the UDP address of host on port.
func resolveHost(host string, port int) (*net.UDPAddr, error) {
	addr, err := lookupUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	return addr, nil
}

// hostOf returns the IP part of a datagram source address.
func hostOf(addr net.Addr) string {
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
