package ddp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/psddp/internal/logging"
)

const (
	// DefaultSearchTimeout bounds a one-shot search
	DefaultSearchTimeout = 3 * time.Second

	// DefaultPollInterval is how long each receive waits before the loop
	// checks the overall timeout again
	DefaultPollInterval = 10 * time.Millisecond
)

// ErrUnicastRequired is returned by Status for an empty or broadcast host.
var ErrUnicastRequired = errors.New("status requires a unicast host")

// Client performs blocking, one-shot DDP requests without a standing Engine.
// Each call binds its own socket and closes it before returning.
type Client struct {
	// LocalPort is the preferred local port; an ephemeral port is used if
	// it cannot be bound
	LocalPort int

	// RemotePort is the console DDP port
	RemotePort int

	// Timeout is the total time a search waits for responses
	Timeout time.Duration

	// PollInterval is the receive wait per loop iteration
	PollInterval time.Duration
}

// NewClient creates a client with default settings
func NewClient() *Client {
	return &Client{
		LocalPort:    DefaultLocalPort,
		RemotePort:   DefaultRemotePort,
		Timeout:      DefaultSearchTimeout,
		PollInterval: DefaultPollInterval,
	}
}

// Search sends a SRCH request and collects responses until the timeout
// elapses. An empty host or BroadcastAddress searches the whole segment;
// for any other host the search returns after the first response from that
// host.
// Identical responses are reported once, in arrival order, each tagged with
// the host-ip it came from.
func (c *Client) Search(ctx context.Context, host string) ([]*Status, error) {
	if host == "" {
		host = BroadcastAddress
	}
	broadcast := host == BroadcastAddress

	dest, err := resolveHost(host, c.remotePort())
	if err != nil {
		return nil, err
	}

	conn, err := ListenSocket(c.LocalPort, broadcast)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	logging.Debug("Sending search message",
		zap.String("dest", dest.String()),
		zap.Bool("broadcast", broadcast),
	)
	payload := []byte(SearchMessage())
	if _, err := conn.WriteTo(payload, dest); err != nil {
		return nil, fmt.Errorf("failed to send search to %s: %w", dest, err)
	}
	logging.LogDatagram("sent", localPort(conn), dest.String(), payload)

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	var found []*Status
	buf := make([]byte, maxDatagramSize)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return found, err
		}

		_ = conn.SetReadDeadline(time.Now().Add(interval))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			logging.Debug("Error receiving search response", zap.Error(err))
			continue
		}
		logging.LogDatagram("received", localPort(conn), addr.String(), buf[:n])

		source := hostOf(addr)
		// Other consoles may answer on a shared port during a unicast search
		if !broadcast && source != dest.IP.String() {
			logging.Debug("Ignoring response from another host",
				zap.String("from", source),
				zap.String("want", dest.IP.String()),
			)
			continue
		}

		status := Decode(string(buf[:n]))
		if !status.Empty() {
			status.Fields[KeyHostIP] = source
			if !containsStatus(found, status) {
				found = append(found, status)
			}
		}
		if !broadcast {
			break
		}
	}

	return found, nil
}

// Status returns the status of the console at host, or nil if it did not
// answer within the timeout.
func (c *Client) Status(ctx context.Context, host string) (*Status, error) {
	if host == "" || host == BroadcastAddress {
		return nil, ErrUnicastRequired
	}
	found, err := c.Search(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return found[0], nil
}

// Wakeup sends a WAKEUP request to host.
func (c *Client) Wakeup(host, credential string) error {
	return c.sendOnly(host, WakeupMessage(credential))
}

// Launch sends a LAUNCH request to host.
func (c *Client) Launch(host, credential string) error {
	return c.sendOnly(host, LaunchMessage(credential))
}

func (c *Client) sendOnly(host, message string) error {
	dest, err := resolveHost(host, c.remotePort())
	if err != nil {
		return err
	}

	conn, err := ListenSocket(c.LocalPort, host == BroadcastAddress)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.WriteTo([]byte(message), dest); err != nil {
		return fmt.Errorf("failed to send to %s: %w", dest, err)
	}
	logging.LogDatagram("sent", localPort(conn), dest.String(), []byte(message))
	return nil
}

func (c *Client) remotePort() int {
	if c.RemotePort == 0 {
		return DefaultRemotePort
	}
	return c.RemotePort
}

func containsStatus(list []*Status, s *Status) bool {
	for _, existing := range list {
		if existing.Equal(s) {
			return true
		}
	}
	return false
}
