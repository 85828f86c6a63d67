package ddp

import "sort"

// Callback is invoked when a device's status or reachability changes. An
// unreachable transition notifies every owner of the host; the polled
// device's Status() is nil at that point.
type Callback func(d *Device)

// CallbackID identifies one registration. RemoveCallback only removes a
// registration whose id matches the one on record.
type CallbackID uint64

// Subscriber is a snapshot of one registration.
type Subscriber struct {
	ID       CallbackID
	Device   *Device
	Callback Callback
}

type registration struct {
	id CallbackID
	fn Callback
}

// Registry maps hosts to the devices observing them and their callbacks.
// There is at most one registration per (host, device). Registry does no
// locking of its own; Engine serialises access to it.
type Registry struct {
	nextID CallbackID
	hosts  map[string]map[*Device]registration
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{hosts: make(map[string]map[*Device]registration)}
}

// Add registers fn for d, replacing any earlier registration for the same
// device. It returns the id needed to remove it.
func (r *Registry) Add(d *Device, fn Callback) CallbackID {
	owners, ok := r.hosts[d.host]
	if !ok {
		owners = make(map[*Device]registration)
		r.hosts[d.host] = owners
	}
	r.nextID++
	owners[d] = registration{id: r.nextID, fn: fn}
	return r.nextID
}

// Remove drops d's registration if id matches it. Once a host has no
// registrations left its entry is deleted. It reports whether anything was
// removed.
func (r *Registry) Remove(d *Device, id CallbackID) bool {
	owners, ok := r.hosts[d.host]
	if !ok {
		return false
	}
	reg, ok := owners[d]
	if !ok || reg.id != id {
		return false
	}
	delete(owners, d)
	if len(owners) == 0 {
		delete(r.hosts, d.host)
	}
	return true
}

// Subscribers returns a snapshot of every registration for host, ordered by
// registration id. Callers iterate the snapshot, so callbacks are free to
// modify the registry.
func (r *Registry) Subscribers(host string) []Subscriber {
	owners := r.hosts[host]
	subs := make([]Subscriber, 0, len(owners))
	for d, reg := range owners {
		subs = append(subs, Subscriber{ID: reg.id, Device: d, Callback: reg.fn})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs
}

// Has reports whether any device is registered for host.
func (r *Registry) Has(host string) bool {
	_, ok := r.hosts[host]
	return ok
}

// Hosts returns every host with at least one registration, sorted.
func (r *Registry) Hosts() []string {
	hosts := make([]string, 0, len(r.hosts))
	for h := range r.hosts {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
