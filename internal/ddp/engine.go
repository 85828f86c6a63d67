package ddp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/psddp/internal/logging"
)

const (
	// DefaultMaxPolls is the number of unanswered polls tolerated before a
	// device is marked unreachable
	DefaultMaxPolls = 5

	// DefaultStandbyDelay is how long polls are suppressed after a console
	// drops from 200 to 620
	DefaultStandbyDelay = 50 * time.Second

	// maxDatagramSize bounds a single DDP response
	maxDatagramSize = 2048

	// readPollInterval bounds each blocking read in Serve so cancellation is
	// noticed promptly
	readPollInterval = 250 * time.Millisecond
)

// ErrEngineClosed is returned by sends after Close.
var ErrEngineClosed = errors.New("ddp engine closed")

// Option configures an Engine
type Option func(*Engine)

// WithMaxPolls sets the unanswered-poll threshold.
func WithMaxPolls(n int) Option {
	return func(e *Engine) { e.maxPolls = n }
}

// WithStandbyDelay sets the poll suppression window after standby.
func WithStandbyDelay(d time.Duration) Option {
	return func(e *Engine) { e.standbyDelay = d }
}

// WithRemotePort sets the console port polls are sent to.
func WithRemotePort(port int) Option {
	return func(e *Engine) { e.remotePort = port }
}

// WithClock replaces time.Now for standby timing.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// hostState is per-host engine state shared by every owner of that host.
type hostState struct {
	standbySince time.Time
	lastCode     int
}

// Engine sends DDP polls over a single UDP socket, interprets responses and
// dispatches status changes to registered callbacks. All methods are safe for
// concurrent use; callbacks are invoked after the engine lock is released.
type Engine struct {
	mu           sync.Mutex
	conn         net.PacketConn
	localPort    int
	maxPolls     int
	standbyDelay time.Duration
	remotePort   int
	now          func() time.Time
	message      []byte
	registry     *Registry
	hosts        map[string]*hostState
	closed       bool
}

// NewEngine creates an engine on an already bound socket. The engine takes
// ownership of conn and closes it in Close.
func NewEngine(conn net.PacketConn, opts ...Option) *Engine {
	e := &Engine{
		conn:         conn,
		localPort:    localPort(conn),
		maxPolls:     DefaultMaxPolls,
		standbyDelay: DefaultStandbyDelay,
		remotePort:   DefaultRemotePort,
		now:          time.Now,
		message:      []byte(SearchMessage()),
		registry:     NewRegistry(),
		hosts:        make(map[string]*hostState),
	}
	for _, opt := range opts {
		opt(e)
	}

	logging.Debug("DDP engine created",
		zap.Int("local_port", e.localPort),
		zap.Int("max_polls", e.maxPolls),
	)
	return e
}

// Listen binds a socket with ListenSocket and creates an engine on it.
func Listen(port int, opts ...Option) (*Engine, error) {
	conn, err := ListenSocket(port, false)
	if err != nil {
		return nil, err
	}
	return NewEngine(conn, opts...), nil
}

// LocalPort returns the bound local UDP port.
func (e *Engine) LocalPort() int {
	return e.localPort
}

// RemotePort returns the console port polls are sent to.
func (e *Engine) RemotePort() int {
	return e.remotePort
}

// MaxPolls returns the unanswered-poll threshold.
func (e *Engine) MaxPolls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxPolls
}

// SetMaxPolls changes the unanswered-poll threshold.
func (e *Engine) SetMaxPolls(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxPolls = n
}

// String returns a debug representation of the engine
func (e *Engine) String() string {
	return fmt.Sprintf("ddp.Engine{local_port=%d, max_polls=%d}", e.localPort, e.MaxPolls())
}

// AddCallback registers fn for d. A second call for the same device replaces
// the first registration.
func (e *Engine) AddCallback(d *Device, fn Callback) CallbackID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.hosts[d.host]; !ok {
		e.hosts[d.host] = &hostState{}
	}
	return e.registry.Add(d, fn)
}

// RemoveCallback removes d's registration if id matches it. When the last
// registration for a host goes, the host's engine state goes with it.
func (e *Engine) RemoveCallback(d *Device, id CallbackID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registry.Remove(d, id) && !e.registry.Has(d.host) {
		delete(e.hosts, d.host)
	}
}

// Hosts returns the hosts that have at least one registration.
func (e *Engine) Hosts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Hosts()
}

// PollsDisabled reports whether polls to host are currently suppressed and
// for how much longer.
func (e *Engine) PollsDisabled(host string) (bool, time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pollsDisabledLocked(host)
}

func (e *Engine) pollsDisabledLocked(host string) (bool, time.Duration) {
	hs, ok := e.hosts[host]
	if !ok || hs.standbySince.IsZero() {
		return false, 0
	}
	elapsed := e.now().Sub(hs.standbySince)
	if elapsed < e.standbyDelay {
		return true, e.standbyDelay - elapsed
	}
	hs.standbySince = time.Time{}
	return false, 0
}

// SendPoll sends the SRCH status request to d.
func (e *Engine) SendPoll(d *Device) error {
	return e.send(d, e.message)
}

// Send sends an arbitrary encoded message to d, subject to the same standby
// suppression and poll counting as SendPoll.
func (e *Engine) Send(d *Device, message string) error {
	return e.send(d, []byte(message))
}

func (e *Engine) send(d *Device, payload []byte) error {
	// Name lookups may block, so they happen before the engine lock is taken
	addr, resolveErr := d.udpAddr(e.remotePort)

	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}

	// Consoles ignore polls right after entering standby
	if disabled, remaining := e.pollsDisabledLocked(d.host); disabled {
		e.mu.Unlock()
		logging.Debug("Polls disabled",
			zap.String("host", d.host),
			zap.Duration("remaining", remaining.Round(10*time.Millisecond)),
		)
		return nil
	}

	dest := net.JoinHostPort(d.host, fmt.Sprint(e.remotePort))
	if resolveErr != nil {
		logging.Warn("Cannot resolve DDP destination", zap.String("host", d.host), zap.Error(resolveErr))
	} else if _, err := e.conn.WriteTo(payload, addr); err != nil {
		logging.Warn("Error sending DDP message", zap.String("dest", dest), zap.Error(err))
	} else {
		logging.LogDatagram("sent", e.localPort, dest, payload)
	}

	// A failed write still counts as an unanswered poll
	var notify []Subscriber
	if d.countPoll(e.maxPolls) {
		logging.Info("Console is unreachable",
			zap.String("host", d.host),
			zap.Int("poll_count", d.PollCount()),
		)
		if hs, ok := e.hosts[d.host]; ok {
			hs.lastCode = 0
		}
		notify = e.registry.Subscribers(d.host)
	}
	e.mu.Unlock()

	dispatch(notify)
	return nil
}

// HandleDatagram processes one response received from host. It is called by
// Serve and may be called directly by callers that own the read loop.
func (e *Engine) HandleDatagram(data []byte, host string) {
	status := Decode(string(data))
	status.Fields[KeyHostIP] = host

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	// Standby detection is per host, once per transition
	if hs, ok := e.hosts[host]; ok {
		if hs.lastCode == StatusOK && status.Code == StatusStandby {
			hs.standbySince = e.now()
			logging.Debug("Status changed from OK to Standby, disabling polls",
				zap.String("host", host),
				zap.Duration("delay", e.standbyDelay),
			)
		}
		hs.lastCode = status.Code
	}

	var notify []Subscriber
	for _, sub := range e.registry.Subscribers(host) {
		old := sub.Device.Status()
		if sub.Device.observe(status) {
			logging.LogStatusChange(host, old, status)
			notify = append(notify, sub)
		}
	}
	e.mu.Unlock()

	dispatch(notify)
}

func dispatch(subs []Subscriber) {
	for _, sub := range subs {
		if sub.Callback != nil {
			sub.Callback(sub.Device)
		}
	}
}

// Serve reads datagrams until ctx is cancelled or the engine is closed.
// Transport errors are logged and reading continues.
func (e *Engine) Serve(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if e.isClosed() {
			return ErrEngineClosed
		}

		_ = e.conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, addr, err := e.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				if e.isClosed() {
					return ErrEngineClosed
				}
				return fmt.Errorf("ddp transport closed: %w", err)
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			logging.Warn("Error received at DDP transport", zap.Error(err))
			continue
		}

		logging.LogDatagram("received", e.localPort, addr.String(), buf[:n])
		data := make([]byte, n)
		copy(data, buf[:n])
		e.HandleDatagram(data, hostOf(addr))
	}
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close releases the socket. Later sends return ErrEngineClosed. Closing twice
// is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	logging.Debug("Closing DDP transport", zap.Int("local_port", e.localPort))
	return e.conn.Close()
}
