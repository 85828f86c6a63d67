package ddp

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/muurk/psddp/internal/logging"
)

const standbyResponse = "HTTP/1.1 620 Server Standby\n" +
	"host-id:0123456789AB\n" +
	"host-type:PS5\n" +
	"host-name:Living Room\n"

// fakeConn is a PacketConn that records writes and never delivers reads.
type fakeConn struct {
	mu       sync.Mutex
	writes   []string
	dests    []string
	writeErr error
	closed   bool
}

func (c *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	return 0, nil, net.ErrClosed
}

func (c *fakeConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, string(p))
	c.dests = append(c.dests, addr.String())
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4zero, Port: DefaultLocalPort}
}

func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder counts callback invocations per device
type recorder struct {
	mu    sync.Mutex
	calls map[*Device]int
}

func newRecorder() *recorder {
	return &recorder{calls: make(map[*Device]int)}
}

func (r *recorder) callback(d *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[d]++
}

func (r *recorder) count(d *Device) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[d]
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeConn, *fakeClock) {
	t.Helper()
	conn := &fakeConn{}
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	e := NewEngine(conn, opts...)
	t.Cleanup(func() { _ = e.Close() })
	return e, conn, clock
}

func TestEngine_Defaults(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if e.MaxPolls() != DefaultMaxPolls {
		t.Errorf("MaxPolls() = %d, want %d", e.MaxPolls(), DefaultMaxPolls)
	}
	if e.LocalPort() != DefaultLocalPort {
		t.Errorf("LocalPort() = %d, want %d", e.LocalPort(), DefaultLocalPort)
	}
	if e.RemotePort() != DefaultRemotePort {
		t.Errorf("RemotePort() = %d, want %d", e.RemotePort(), DefaultRemotePort)
	}
	if got, want := e.String(), "ddp.Engine{local_port=1987, max_polls=5}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	e.SetMaxPolls(2)
	if e.MaxPolls() != 2 {
		t.Errorf("MaxPolls() after SetMaxPolls = %d, want 2", e.MaxPolls())
	}
}

func TestEngine_SendPollWritesSearch(t *testing.T) {
	e, conn, _ := newTestEngine(t)
	d := NewDevice("10.0.0.5")

	if err := e.SendPoll(d); err != nil {
		t.Fatalf("SendPoll() error = %v", err)
	}

	if conn.writeCount() != 1 {
		t.Fatalf("writes = %d, want 1", conn.writeCount())
	}
	if conn.writes[0] != SearchMessage() {
		t.Errorf("payload = %q, want %q", conn.writes[0], SearchMessage())
	}
	if conn.dests[0] != "10.0.0.5:987" {
		t.Errorf("dest = %q, want 10.0.0.5:987", conn.dests[0])
	}
	if d.PollCount() != 1 {
		t.Errorf("PollCount() = %d, want 1", d.PollCount())
	}
}

func TestEngine_UnreachableAfterMaxPolls(t *testing.T) {
	e, _, _ := newTestEngine(t)
	rec := newRecorder()
	d := NewDevice("10.0.0.5")
	e.AddCallback(d, rec.callback)

	// Establish a status so the unreachable transition clears it
	e.HandleDatagram([]byte(onResponse), "10.0.0.5")
	if rec.count(d) != 1 {
		t.Fatalf("callback count after response = %d, want 1", rec.count(d))
	}

	for i := 0; i < DefaultMaxPolls; i++ {
		_ = e.SendPoll(d)
	}
	if rec.count(d) != 1 {
		t.Errorf("callback fired before threshold was exceeded")
	}
	if d.Unreachable() {
		t.Error("device marked unreachable at exactly MaxPolls polls")
	}

	_ = e.SendPoll(d)
	if rec.count(d) != 2 {
		t.Errorf("callback count after poll %d = %d, want 2", DefaultMaxPolls+1, rec.count(d))
	}
	if !d.Unreachable() {
		t.Error("Unreachable() = false, want true")
	}
	if d.Status() != nil {
		t.Errorf("Status() = %v, want nil", d.Status())
	}
	if d.State() != StateUnreachable {
		t.Errorf("State() = %v, want %v", d.State(), StateUnreachable)
	}

	// Edge triggered: further unanswered polls only count
	_ = e.SendPoll(d)
	_ = e.SendPoll(d)
	if rec.count(d) != 2 {
		t.Errorf("callback fired again while already unreachable")
	}
	if d.PollCount() != DefaultMaxPolls+3 {
		t.Errorf("PollCount() = %d, want %d", d.PollCount(), DefaultMaxPolls+3)
	}
}

func TestEngine_UnreachableNotifiesEveryOwner(t *testing.T) {
	e, _, _ := newTestEngine(t, WithMaxPolls(1))
	rec := newRecorder()
	a := NewDevice("10.0.0.5")
	b := NewDevice("10.0.0.5")
	other := NewDevice("10.0.0.6")
	e.AddCallback(a, rec.callback)
	e.AddCallback(b, rec.callback)
	e.AddCallback(other, rec.callback)

	_ = e.SendPoll(a)
	_ = e.SendPoll(a)
	_ = e.SendPoll(a)

	if rec.count(a) != 1 {
		t.Errorf("polled owner callback count = %d, want 1", rec.count(a))
	}
	if rec.count(b) != 1 {
		t.Errorf("co-owner callback count = %d, want 1", rec.count(b))
	}
	if rec.count(other) != 0 {
		t.Errorf("owner of another host was notified")
	}
	// Only the polled record changes state
	if b.PollCount() != 0 || b.Unreachable() {
		t.Errorf("co-owner record changed: polls=%d unreachable=%v", b.PollCount(), b.Unreachable())
	}
}

func TestEngine_ResponseResetsAllOwners(t *testing.T) {
	e, _, _ := newTestEngine(t)
	rec := newRecorder()
	a := NewDevice("10.0.0.5")
	b := NewDevice("10.0.0.5")
	other := NewDevice("10.0.0.6")
	e.AddCallback(a, rec.callback)
	e.AddCallback(b, rec.callback)
	e.AddCallback(other, rec.callback)

	for i := 0; i < 3; i++ {
		_ = e.SendPoll(a)
		_ = e.SendPoll(b)
		_ = e.SendPoll(other)
	}

	e.HandleDatagram([]byte(onResponse), "10.0.0.5")

	for name, d := range map[string]*Device{"a": a, "b": b} {
		if d.PollCount() != 0 {
			t.Errorf("%s PollCount() = %d, want 0", name, d.PollCount())
		}
		if rec.count(d) != 1 {
			t.Errorf("%s callback count = %d, want 1", name, rec.count(d))
		}
		if got := d.Status().HostIP(); got != "10.0.0.5" {
			t.Errorf("%s host-ip = %q, want 10.0.0.5", name, got)
		}
	}
	if other.PollCount() != 3 {
		t.Errorf("unrelated host PollCount() = %d, want 3", other.PollCount())
	}
	if rec.count(other) != 0 {
		t.Errorf("unrelated host callback fired")
	}
}

func TestEngine_NotifiesOnlyOnChange(t *testing.T) {
	e, _, _ := newTestEngine(t)
	rec := newRecorder()
	d := NewDevice("10.0.0.5")
	e.AddCallback(d, rec.callback)

	e.HandleDatagram([]byte(onResponse), "10.0.0.5")
	e.HandleDatagram([]byte(onResponse), "10.0.0.5")
	if rec.count(d) != 1 {
		t.Errorf("callback count after identical responses = %d, want 1", rec.count(d))
	}

	changed := "HTTP/1.1 200 Ok\n" +
		"host-id:AABBCCDDEEFF\n" +
		"host-type:PS4\n" +
		"host-name:Living Room\n" +
		"running-app-titleid:CUSA00002\n" +
		"running-app-name:Other Game\n"
	e.HandleDatagram([]byte(changed), "10.0.0.5")
	if rec.count(d) != 2 {
		t.Errorf("callback count after title change = %d, want 2", rec.count(d))
	}
	if d.Status().TitleID() != "CUSA00002" {
		t.Errorf("TitleID() = %q, want CUSA00002", d.Status().TitleID())
	}
}

func TestEngine_UnregisteredHostIgnored(t *testing.T) {
	e, _, _ := newTestEngine(t)
	rec := newRecorder()
	d := NewDevice("10.0.0.5")
	e.AddCallback(d, rec.callback)

	e.HandleDatagram([]byte(onResponse), "10.0.0.99")

	if rec.count(d) != 0 {
		t.Error("response from an unregistered host reached a callback")
	}
	if d.Status() != nil {
		t.Error("response from an unregistered host updated a device")
	}
}

func TestEngine_StandbySuppressesPolls(t *testing.T) {
	e, conn, clock := newTestEngine(t)
	d := NewDevice("10.0.0.5")
	e.AddCallback(d, func(*Device) {})

	e.HandleDatagram([]byte(onResponse), "10.0.0.5")
	e.HandleDatagram([]byte(standbyResponse), "10.0.0.5")

	disabled, remaining := e.PollsDisabled("10.0.0.5")
	if !disabled {
		t.Fatal("PollsDisabled() = false right after 200 -> 620")
	}
	if remaining != DefaultStandbyDelay {
		t.Errorf("remaining = %v, want %v", remaining, DefaultStandbyDelay)
	}

	clock.Advance(10 * time.Second)
	if err := e.SendPoll(d); err != nil {
		t.Fatalf("SendPoll() error = %v", err)
	}
	if conn.writeCount() != 0 {
		t.Errorf("writes inside standby window = %d, want 0", conn.writeCount())
	}
	if d.PollCount() != 0 {
		t.Errorf("suppressed poll was counted: PollCount() = %d", d.PollCount())
	}

	clock.Advance(40 * time.Second)
	if disabled, _ := e.PollsDisabled("10.0.0.5"); disabled {
		t.Error("PollsDisabled() = true after the window elapsed")
	}
	_ = e.SendPoll(d)
	if conn.writeCount() != 1 {
		t.Errorf("writes after standby window = %d, want 1", conn.writeCount())
	}
}

func TestEngine_StandbyWithoutPriorOn(t *testing.T) {
	e, conn, _ := newTestEngine(t)
	d := NewDevice("10.0.0.5")
	e.AddCallback(d, func(*Device) {})

	e.HandleDatagram([]byte(standbyResponse), "10.0.0.5")
	e.HandleDatagram([]byte(standbyResponse), "10.0.0.5")

	if disabled, _ := e.PollsDisabled("10.0.0.5"); disabled {
		t.Error("620 without a previous 200 should not disable polls")
	}
	_ = e.SendPoll(d)
	if conn.writeCount() != 1 {
		t.Errorf("writes = %d, want 1", conn.writeCount())
	}
}

func TestEngine_StandbyIsPerHost(t *testing.T) {
	e, conn, _ := newTestEngine(t)
	a := NewDevice("10.0.0.5")
	b := NewDevice("10.0.0.6")
	e.AddCallback(a, func(*Device) {})
	e.AddCallback(b, func(*Device) {})

	e.HandleDatagram([]byte(onResponse), "10.0.0.5")
	e.HandleDatagram([]byte(standbyResponse), "10.0.0.5")

	_ = e.SendPoll(a)
	_ = e.SendPoll(b)

	if conn.writeCount() != 1 {
		t.Fatalf("writes = %d, want 1", conn.writeCount())
	}
	if conn.dests[0] != "10.0.0.6:987" {
		t.Errorf("dest = %q, want the host not in standby", conn.dests[0])
	}
}

func TestEngine_RemoveCallback(t *testing.T) {
	e, _, _ := newTestEngine(t)
	rec := newRecorder()
	d := NewDevice("10.0.0.5")
	id := e.AddCallback(d, rec.callback)

	e.RemoveCallback(d, id+1)
	if hosts := e.Hosts(); len(hosts) != 1 || hosts[0] != "10.0.0.5" {
		t.Fatalf("RemoveCallback with a mismatched id removed the registration: Hosts() = %v", hosts)
	}

	e.RemoveCallback(d, id)
	if len(e.Hosts()) != 0 {
		t.Errorf("Hosts() = %v, want empty", e.Hosts())
	}

	e.HandleDatagram([]byte(onResponse), "10.0.0.5")
	if rec.count(d) != 0 {
		t.Error("removed callback was invoked")
	}
}

func TestEngine_RemoveLastOwnerClearsStandby(t *testing.T) {
	e, _, _ := newTestEngine(t)
	d := NewDevice("10.0.0.5")
	id := e.AddCallback(d, func(*Device) {})

	e.HandleDatagram([]byte(onResponse), "10.0.0.5")
	e.HandleDatagram([]byte(standbyResponse), "10.0.0.5")
	e.RemoveCallback(d, id)

	if disabled, _ := e.PollsDisabled("10.0.0.5"); disabled {
		t.Error("standby window survived removal of the last owner")
	}
}

func TestEngine_CallbackMayReenter(t *testing.T) {
	e, _, _ := newTestEngine(t)
	d := NewDevice("10.0.0.5")
	late := NewDevice("10.0.0.5")

	var id CallbackID
	done := make(chan struct{})
	id = e.AddCallback(d, func(dev *Device) {
		e.RemoveCallback(dev, id)
		e.AddCallback(late, func(*Device) {})
		_ = e.SendPoll(late)
		close(done)
	})

	go e.HandleDatagram([]byte(onResponse), "10.0.0.5")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback deadlocked re-entering the engine")
	}

	if subs := e.registry.Subscribers("10.0.0.5"); len(subs) != 1 || subs[0].Device != late {
		t.Error("callback failed to remove itself")
	}
	if late.Status() != nil {
		t.Error("device registered during dispatch received the in-flight status")
	}
}

// The walkthrough from the protocol notes: maxPolls=2, one owner.
func TestEngine_PollLifecycle(t *testing.T) {
	e, _, _ := newTestEngine(t, WithMaxPolls(2))
	rec := newRecorder()
	d := NewDevice("10.0.0.5")
	e.AddCallback(d, rec.callback)

	_ = e.SendPoll(d)
	_ = e.SendPoll(d)
	if rec.count(d) != 0 {
		t.Fatal("callback fired within the threshold")
	}

	_ = e.SendPoll(d)
	if rec.count(d) != 1 || d.Status() != nil || !d.Unreachable() {
		t.Fatalf("after 3 polls: calls=%d status=%v unreachable=%v", rec.count(d), d.Status(), d.Unreachable())
	}

	e.HandleDatagram([]byte(onResponse), "10.0.0.5")
	if rec.count(d) != 2 {
		t.Errorf("callback count after recovery = %d, want 2", rec.count(d))
	}
	if d.PollCount() != 0 || d.Unreachable() {
		t.Errorf("recovery did not reset: polls=%d unreachable=%v", d.PollCount(), d.Unreachable())
	}
	if !d.Status().IsOn() {
		t.Errorf("Status() = %v, want code 200", d.Status())
	}
	if d.State() != StateReachable {
		t.Errorf("State() = %v, want %v", d.State(), StateReachable)
	}
}

func TestEngine_ClosedRejectsSends(t *testing.T) {
	e, conn, _ := newTestEngine(t)
	d := NewDevice("10.0.0.5")

	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !conn.closed {
		t.Error("Close() did not close the socket")
	}

	if err := e.SendPoll(d); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("SendPoll() error = %v, want ErrEngineClosed", err)
	}
	if err := e.Send(d, WakeupMessage("123")); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Send() error = %v, want ErrEngineClosed", err)
	}
	if err := e.Serve(context.Background()); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Serve() error = %v, want ErrEngineClosed", err)
	}
}

func TestEngine_WriteErrorStillCounts(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(zap.NewNop()) })

	e, conn, _ := newTestEngine(t)
	conn.writeErr = errors.New("network unreachable")
	d := NewDevice("10.0.0.5")

	if err := e.SendPoll(d); err != nil {
		t.Fatalf("SendPoll() error = %v, want nil", err)
	}
	if d.PollCount() != 1 {
		t.Errorf("PollCount() = %d, want 1", d.PollCount())
	}
	if n := logs.FilterMessage("Error sending DDP message").Len(); n != 1 {
		t.Errorf("logged %d send errors, want 1", n)
	}
}

func TestEngine_SendCustomMessage(t *testing.T) {
	e, conn, _ := newTestEngine(t)
	d := NewDevice("10.0.0.5")

	msg := WakeupMessage("1234567")
	if err := e.Send(d, msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if conn.writes[0] != msg {
		t.Errorf("payload = %q, want %q", conn.writes[0], msg)
	}
}

func TestEngine_ServeLoopback(t *testing.T) {
	console, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind console socket: %v", err)
	}
	defer console.Close()

	go func() {
		buf := make([]byte, maxDatagramSize)
		for {
			n, addr, err := console.ReadFrom(buf)
			if err != nil {
				return
			}
			if string(buf[:n]) == SearchMessage() {
				_, _ = console.WriteTo([]byte(onResponse), addr)
			}
		}
	}()

	e, err := Listen(0, WithRemotePort(console.LocalAddr().(*net.UDPAddr).Port))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- e.Serve(ctx) }()

	updates := make(chan *Status, 1)
	d := NewDevice("127.0.0.1")
	e.AddCallback(d, func(dev *Device) {
		select {
		case updates <- dev.Status():
		default:
		}
	})

	if err := e.SendPoll(d); err != nil {
		t.Fatalf("SendPoll() error = %v", err)
	}

	select {
	case st := <-updates:
		if !st.IsOn() {
			t.Errorf("status code = %d, want 200", st.Code)
		}
		if st.HostIP() != "127.0.0.1" {
			t.Errorf("host-ip = %q, want 127.0.0.1", st.HostIP())
		}
		if st.AppName() != "Game: The Subtitle: Part 2" {
			t.Errorf("AppName() = %q", st.AppName())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no status received over loopback")
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve() = %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestEngine_ResolvesOutsideLock(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	lookups := 0
	lookupUDPAddr = func(network, address string) (*net.UDPAddr, error) {
		lookups++
		if lookups == 1 {
			close(entered)
			<-release
		}
		_, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		return net.ResolveUDPAddr(network, net.JoinHostPort("10.0.0.5", port))
	}
	t.Cleanup(func() { lookupUDPAddr = net.ResolveUDPAddr })

	e, conn, _ := newTestEngine(t)
	d := NewDevice("console.lan")
	e.AddCallback(d, func(*Device) {})

	sent := make(chan error, 1)
	go func() { sent <- e.SendPoll(d) }()
	<-entered

	handled := make(chan struct{})
	go func() {
		e.HandleDatagram([]byte(onResponse), "console.lan")
		close(handled)
	}()

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("HandleDatagram blocked behind a pending name lookup")
	}

	close(release)
	if err := <-sent; err != nil {
		t.Fatalf("SendPoll() error = %v", err)
	}
	if err := e.SendPoll(d); err != nil {
		t.Fatalf("SendPoll() error = %v", err)
	}

	if lookups != 1 {
		t.Errorf("lookups = %d, want 1 (address cached on the device)", lookups)
	}
	if conn.writeCount() != 2 {
		t.Fatalf("writes = %d, want 2", conn.writeCount())
	}
	if conn.dests[0] != "10.0.0.5:987" {
		t.Errorf("dest = %q, want 10.0.0.5:987", conn.dests[0])
	}
}

func TestEngine_ResolveFailureStillCounts(t *testing.T) {
	lookupUDPAddr = func(string, string) (*net.UDPAddr, error) {
		return nil, errors.New("no such host")
	}
	t.Cleanup(func() { lookupUDPAddr = net.ResolveUDPAddr })

	e, conn, _ := newTestEngine(t)
	d := NewDevice("missing.lan")
	e.AddCallback(d, func(*Device) {})

	if err := e.SendPoll(d); err != nil {
		t.Fatalf("SendPoll() error = %v", err)
	}
	if conn.writeCount() != 0 {
		t.Errorf("writes = %d, want 0", conn.writeCount())
	}
	if d.PollCount() != 1 {
		t.Errorf("PollCount() = %d, want 1", d.PollCount())
	}
}
