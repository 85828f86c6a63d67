package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Feed represents a psddp status feed advertised on the network
type Feed struct {
	// Instance is the mDNS instance name (e.g., "psddp on livingroom-pi")
	Instance string

	// Hostname is the mDNS hostname of the machine running the feed
	Hostname string

	// IP is the address the feed is reachable on, IPv4 preferred
	IP string

	// Port is the HTTP port of the feed
	Port int

	// Metadata contains the TXT record data
	// Common fields: "version", "path", "hosts"
	Metadata map[string]string

	// DiscoveredAt is when the feed was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the feed
func (f *Feed) String() string {
	return fmt.Sprintf("psddp feed %q (%s) at %s", f.Instance, f.Hostname, net.JoinHostPort(f.IP, strconv.Itoa(f.Port)))
}

// URL returns the WebSocket URL of the feed
func (f *Feed) URL() string {
	path := f.GetMetadata(TXTPath)
	if path == "" {
		path = DefaultPath
	}
	return "ws://" + net.JoinHostPort(f.IP, strconv.Itoa(f.Port)) + path
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (f *Feed) GetMetadata(key string) string {
	if f.Metadata == nil {
		return ""
	}
	return f.Metadata[key]
}
