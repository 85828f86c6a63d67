package ddp

import (
	"fmt"
	"net"
	"sync"
)

// DeviceState is the observable reachability of a Device.
type DeviceState int

const (
	// StateUnknown means the device has never answered
	StateUnknown DeviceState = iota
	// StateReachable means the device answered since the last reset
	StateReachable
	// StateUnreachable means more than MaxPolls polls went unanswered
	StateUnreachable
)

// String returns a human-readable state name
func (s DeviceState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateReachable:
		return "reachable"
	case StateUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("DeviceState(%d)", s)
	}
}

// Device is the per-owner record of one console. Several Devices may share a
// host; each keeps its own status and poll count. The fields are written by
// the Engine; the accessors are safe to call from any goroutine.
type Device struct {
	host string

	mu          sync.RWMutex
	addr        *net.UDPAddr
	status      *Status
	pollCount   int
	unreachable bool
}

// NewDevice creates a record for the console at host (an IPv4 address or
// resolvable name).
func NewDevice(host string) *Device {
	return &Device{host: host}
}

// Host returns the console address.
func (d *Device) Host() string {
	return d.host
}

// Status returns the latest status, or nil if the device has never answered
// or has just been marked unreachable. The returned value must not be
// modified.
func (d *Device) Status() *Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// PollCount returns the number of polls sent since the last response.
func (d *Device) PollCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pollCount
}

// Unreachable reports whether the device exceeded the poll threshold.
func (d *Device) Unreachable() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.unreachable
}

// State derives the reachability state from the record.
func (d *Device) State() DeviceState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch {
	case d.unreachable:
		return StateUnreachable
	case d.status != nil:
		return StateReachable
	default:
		return StateUnknown
	}
}

// String returns a debug representation of the device
func (d *Device) String() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fmt.Sprintf("Device{host=%s, polls=%d, unreachable=%v}", d.host, d.pollCount, d.unreachable)
}

// udpAddr returns host resolved on port. A successful lookup is cached; a
// failed one is retried on the next call.
func (d *Device) udpAddr(port int) (*net.UDPAddr, error) {
	d.mu.RLock()
	addr := d.addr
	d.mu.RUnlock()
	if addr != nil && addr.Port == port {
		return addr, nil
	}

	addr, err := resolveHost(d.host, port)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.addr = addr
	d.mu.Unlock()
	return addr, nil
}

// countPoll records one sent poll and reports whether this send crossed the
// threshold. The transition fires once; later unanswered polls only count.
func (d *Device) countPoll(maxPolls int) (becameUnreachable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pollCount++
	if d.pollCount > maxPolls && !d.unreachable {
		d.unreachable = true
		d.status = nil
		return true
	}
	return false
}

// observe resets the poll counters and stores status when it differs from
// the previous one. It reports whether the status changed.
func (d *Device) observe(status *Status) (changed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pollCount = 0
	d.unreachable = false
	if d.status.Equal(status) {
		return false
	}
	d.status = status.Clone()
	return true
}
