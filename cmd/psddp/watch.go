package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/psddp/internal/config"
	"github.com/muurk/psddp/internal/ddp"
	"github.com/muurk/psddp/internal/discovery"
	"github.com/muurk/psddp/internal/logging"
	"github.com/muurk/psddp/internal/server"
	"github.com/muurk/psddp/internal/store"
	"github.com/muurk/psddp/internal/ui"
	"github.com/muurk/psddp/internal/version"
)

// Watch command flags
var (
	watchHosts     []string
	watchInterval  time.Duration
	watchMaxPolls  int
	watchServe     string
	watchAdvertise bool
	watchPlain     bool
	watchLookup    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch consoles continuously",
	Long: `Poll consoles on a fixed interval and show their status as it changes.

A console that misses more than --max-polls polls in a row is shown as
unreachable. After a console drops to standby it is not polled for 50 seconds,
since consoles ignore requests while they power down.

When stdout is a terminal an interactive screen is shown; otherwise one line
is printed per change. Press r on the screen, or send SIGHUP in plain mode, to
reload the config file and poll at once. With --lookup each new title is
looked up in the PS Store for its name, type and cover art. With --serve the changes are also published as JSON
over WebSocket on /ws, and --advertise announces that feed over mDNS.`,
	Example: `  # Watch every saved console
  psddp watch

  # Watch two consoles every 2 seconds
  psddp watch --host 192.168.1.20 --host 192.168.1.21 --interval 2s

  # Publish a feed for other tools
  psddp watch --serve :8987 --advertise`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchHosts, "host", nil, "Console to watch (repeatable; default saved consoles)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Poll interval (default from preferences)")
	watchCmd.Flags().IntVar(&watchMaxPolls, "max-polls", -1, "Unanswered polls before a console is unreachable (default from preferences)")
	watchCmd.Flags().StringVar(&watchServe, "serve", "", "Serve a WebSocket status feed on this address")
	watchCmd.Flags().BoolVar(&watchAdvertise, "advertise", false, "Advertise the feed over mDNS (requires --serve)")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "Print status lines even on a terminal")
	watchCmd.Flags().BoolVar(&watchLookup, "lookup", false, "Look up new titles in the PS Store")

	rootCmd.AddCommand(watchCmd)
}

// watcher ties an engine to the registry, the optional feed and a sink
type watcher struct {
	ctx      context.Context
	engine   *ddp.Engine
	devices  []*ddp.Device
	ids      []ddp.CallbackID
	interval time.Duration
	feed     *server.Feed
	store    *store.Client // nil unless titles are looked up

	// fixedMaxPolls is set when --max-polls overrides the preference
	fixedMaxPolls bool

	// mu guards reg and looked, which callbacks and the screen share
	mu      sync.Mutex
	reg     *config.Registry
	looked  map[string]bool // Titles already sent to the store this run
	lookups sync.WaitGroup
}

func (w *watcher) titles(titleID string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reg.GameTitle(titleID)
}

func (w *watcher) record(d *ddp.Device) {
	st := d.Status()
	if st == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reg.RecordStatus(st, time.Now()) {
		logging.Info("Learned game title",
			zap.String("title_id", st.TitleID()),
			zap.String("title", st.AppName()),
		)
	}
	if err := w.reg.Save(); err != nil {
		logging.Warn("Failed to save registry", zap.Error(err))
	}

	titleID := st.TitleID()
	if w.store == nil || w.looked[titleID] || !w.reg.NeedsStoreLookup(titleID) || w.ctx.Err() != nil {
		return
	}
	if w.looked == nil {
		w.looked = make(map[string]bool)
	}
	w.looked[titleID] = true
	w.lookups.Add(1)
	go w.lookupTitle(titleID)
}

// lookupTitle fetches titleID from the store and merges it into the
// registry. Failures are not retried until the next run.
func (w *watcher) lookupTitle(titleID string) {
	defer w.lookups.Done()

	rec, err := w.store.Lookup(w.ctx, titleID)
	if err != nil {
		logging.Warn("Store lookup failed", zap.String("title_id", titleID), zap.Error(err))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.reg.ApplyStoreRecord(rec) {
		return
	}
	logging.Info("Stored PS Store details",
		zap.String("title_id", titleID),
		zap.String("title", w.reg.GameTitle(titleID)),
		zap.String("game_type", rec.GameType),
	)
	if err := w.reg.Save(); err != nil {
		logging.Warn("Failed to save registry", zap.Error(err))
	}
}

// register routes every device change to the registry, the feed and sink
func (w *watcher) register(sink func(*ddp.Device)) {
	for _, d := range w.devices {
		id := w.engine.AddCallback(d, func(d *ddp.Device) {
			w.record(d)
			if w.feed != nil {
				w.feed.Publish(d)
			}
			sink(d)
		})
		w.ids = append(w.ids, id)
	}
}

// unregister drops the callbacks added by register
func (w *watcher) unregister() {
	for i, id := range w.ids {
		w.engine.RemoveCallback(w.devices[i], id)
	}
	w.ids = nil
}

// deviceMsg snapshots d for the watch screen, including any standby pause
func (w *watcher) deviceMsg(d *ddp.Device) ui.DeviceMsg {
	msg := ui.DeviceMessage(d)
	if paused, left := w.engine.PollsDisabled(d.Host()); paused {
		msg.PausedFor = left
	}
	return msg
}

// reload rereads the config file. Unless --max-polls was given, the
// engine picks up the max_polls preference.
func (w *watcher) reload() {
	reg, err := config.ReloadRegistry()
	if err != nil {
		logging.Warn("Failed to reload config", zap.Error(err))
		return
	}
	w.mu.Lock()
	w.reg = reg
	w.mu.Unlock()

	if !w.fixedMaxPolls {
		w.engine.SetMaxPolls(reg.Preferences.MaxPollsOrDefault())
	}
	logging.Info("Reloaded config", zap.Int("max_polls", w.engine.MaxPolls()))
}

// refresh reloads the config and polls every console at once
func (w *watcher) refresh() {
	w.reload()
	w.pollAll()
}

// refreshOnHangup calls refresh for each SIGHUP until ctx is done
func (w *watcher) refreshOnHangup(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			w.refresh()
		}
	}
}

func (w *watcher) pollAll() {
	for _, d := range w.devices {
		if err := w.engine.SendPoll(d); err != nil && !errors.Is(err, ddp.ErrEngineClosed) {
			logging.Warn("Poll failed", zap.String("host", d.Host()), zap.Error(err))
		}
	}
}

func (w *watcher) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.pollAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.pollAll()
		}
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if watchAdvertise && watchServe == "" {
		return errors.New("--advertise requires --serve")
	}

	reg, err := config.LoadRegistry()
	if err != nil {
		return err
	}

	hosts, err := watchTargets(cmd, reg)
	if err != nil {
		return err
	}

	maxPolls := watchMaxPolls
	if maxPolls < 0 {
		maxPolls = reg.Preferences.MaxPollsOrDefault()
	}
	interval := watchInterval
	if interval <= 0 {
		interval = reg.Preferences.PollIntervalDuration()
	}

	engine, err := ddp.Listen(effectiveLocalPort(cmd, reg), ddp.WithMaxPolls(maxPolls))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	w := &watcher{
		ctx:           ctx,
		engine:        engine,
		interval:      interval,
		reg:           reg,
		fixedMaxPolls: watchMaxPolls >= 0,
	}
	if watchLookup {
		w.store = store.NewClient(reg.Preferences.RegionOrDefault())
	}
	for _, h := range hosts {
		w.devices = append(w.devices, ddp.NewDevice(h))
	}

	if watchServe != "" {
		srv, adv, err := startFeed(w, hosts)
		if err != nil {
			_ = engine.Close()
			return err
		}
		defer adv.Shutdown()
		g.Go(func() error { return srv.Serve(ctx) })
	}

	g.Go(func() error {
		if err := engine.Serve(ctx); err != nil && !errors.Is(err, ddp.ErrEngineClosed) {
			return err
		}
		return nil
	})

	out := cmd.OutOrStdout()
	if watchPlain || !isTerminal(out) {
		w.register(func(d *ddp.Device) {
			fmt.Fprintln(out, ui.FormatStatusLine(time.Now(), d.Host(), d.State(), d.Status(), w.titles))
		})
		logWatching(w, hosts)
		g.Go(func() error { return w.pollLoop(ctx) })
		g.Go(func() error { return w.refreshOnHangup(ctx) })
		<-ctx.Done()
	} else {
		m := ui.NewWatchModel(hosts, w.titles)
		m.OnRefresh = w.refresh
		err := ui.Run(ctx, m, func(p *tea.Program) {
			w.register(func(d *ddp.Device) { p.Send(w.deviceMsg(d)) })
			logWatching(w, hosts)
			g.Go(func() error { return w.pollLoop(ctx) })
		})
		if err != nil {
			logging.Error("Watch screen failed", zap.Error(err))
		}
	}

	cancel()
	w.unregister()
	_ = engine.Close()
	err = g.Wait()
	w.lookups.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func logWatching(w *watcher, requested []string) {
	logging.Info("Watching consoles",
		zap.Strings("requested", requested),
		zap.Strings("registered", w.engine.Hosts()),
		zap.Stringer("engine", w.engine),
		zap.Duration("interval", w.interval),
		zap.Bool("store_lookup", w.store != nil),
	)
}

// watchTargets picks the hosts to watch: --host, then saved consoles, then
// whatever answers a broadcast search.
func watchTargets(cmd *cobra.Command, reg *config.Registry) ([]string, error) {
	if len(watchHosts) > 0 {
		return watchHosts, nil
	}

	hosts := make([]string, 0, len(reg.Devices))
	for h := range reg.Devices {
		hosts = append(hosts, h)
	}
	if len(hosts) == 0 {
		statuses, err := newClient(cmd, reg).Search(cmd.Context(), ddp.BroadcastAddress)
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}
		rememberStatuses(reg, statuses)
		for _, st := range statuses {
			hosts = append(hosts, st.HostIP())
		}
	}
	if len(hosts) == 0 {
		return nil, errors.New("no consoles to watch: pass --host or run 'psddp search'")
	}
	sort.Strings(hosts)
	return hosts, nil
}

// startFeed binds the feed server and, when asked, advertises it. The
// returned advertisement may be nil; Shutdown handles that.
func startFeed(w *watcher, hosts []string) (*server.Server, *discovery.Advertisement, error) {
	host, portStr, err := net.SplitHostPort(watchServe)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --serve address %q: %w", watchServe, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid --serve port %q: %w", portStr, err)
	}

	w.feed = server.NewFeed()
	srv := server.New(server.Config{Host: host, Port: port}, w.feed)
	if err := srv.Listen(); err != nil {
		return nil, nil, err
	}

	if !watchAdvertise {
		return srv, nil, nil
	}

	instance, _ := os.Hostname()
	if instance == "" {
		instance = "psddp"
	}
	adv, err := discovery.Advertise(instance, srv.Port(), map[string]string{
		discovery.TXTVersion: version.Short(),
		discovery.TXTPath:    discovery.DefaultPath,
		discovery.TXTHosts:   strings.Join(hosts, ","),
	})
	if err != nil {
		logging.Warn("Feed will not be advertised", zap.Error(err))
		return srv, nil, nil
	}
	return srv, adv, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && ui.IsTerminal(f)
}
