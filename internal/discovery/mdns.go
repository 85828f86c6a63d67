package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/psddp/internal/logging"
)

const (
	// ServiceType is the mDNS service type psddp feeds advertise
	ServiceType = "_psddp._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for feed discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPath is the WebSocket path when the TXT record has none
	DefaultPath = "/ws"
)

// TXT record keys
const (
	TXTVersion = "version"
	TXTPath    = "path"
	TXTHosts   = "hosts"
)

// Scanner handles mDNS feed discovery
type Scanner struct {
	// Timeout is the maximum time to wait for feed discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForFeeds discovers psddp feeds on the local network until the timeout
// elapses or ctx is cancelled.
func (s *Scanner) ScanForFeeds(ctx context.Context) ([]*Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu    sync.Mutex
		feeds []*Feed
		seen  = make(map[string]bool)
	)
	go func() {
		for entry := range entries {
			feed := s.parseServiceEntry(entry)
			if feed == nil {
				continue
			}
			mu.Lock()
			if !seen[feed.Instance] {
				seen[feed.Instance] = true
				feeds = append(feeds, feed)
				logging.Debug("Discovered feed", zap.Stringer("feed", feed))
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]*Feed(nil), feeds...), nil
}

// parseServiceEntry converts a zeroconf service entry to a Feed.
// Returns nil if the entry has no usable address.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Feed {
	if entry.Instance == "" || entry.Port == 0 {
		return nil
	}

	// Get IP address (prefer IPv4)
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	return &Feed{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     ParseTXT(entry.Text),
		DiscoveredAt: time.Now(),
	}
}

// ParseTXT parses "key=value" TXT records. A record without "=" maps its key
// to the empty string.
func ParseTXT(records []string) map[string]string {
	metadata := make(map[string]string, len(records))
	for _, txt := range records {
		key, value, _ := strings.Cut(txt, "=")
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	return metadata
}

// FormatTXT renders metadata as TXT records, sorted by key.
func FormatTXT(metadata map[string]string) []string {
	records := make([]string, 0, len(metadata))
	for k, v := range metadata {
		records = append(records, k+"="+v)
	}
	sort.Strings(records)
	return records
}

// Advertisement is a registered mDNS service
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers a feed listening on port under instance. The
// advertisement stays up until Shutdown.
func Advertise(instance string, port int, metadata map[string]string) (*Advertisement, error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, FormatTXT(metadata), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising feed",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the advertisement
func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

// ScanForFeeds is a convenience function to scan for feeds with a custom timeout
func ScanForFeeds(ctx context.Context, timeout time.Duration) ([]*Feed, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanForFeeds(ctx)
}
