package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/muurk/psddp/internal/ddp"
	"github.com/muurk/psddp/internal/store"
)

// CurrentVersion is the only config file version this build reads.
const CurrentVersion = 1

// Registry represents the entire user configuration file.
type Registry struct {
	Version     int                `yaml:"version"`
	Credential  string             `yaml:"credential,omitempty"` // Default account credential
	Devices     map[string]*Device `yaml:"devices,omitempty"`    // Keyed by console host
	Games       map[string]*Game   `yaml:"games,omitempty"`      // Keyed by title id
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents what we know about one console, keyed by host in the
// Registry.
type Device struct {
	Credential string            `yaml:"credential,omitempty"`  // Overrides Registry.Credential
	Nickname   string            `yaml:"nickname,omitempty"`    // User-friendly name
	HostID     string            `yaml:"host_id,omitempty"`     // Console MAC as reported by DDP
	HostName   string            `yaml:"host_name,omitempty"`   // Name configured on the console
	HostType   string            `yaml:"host_type,omitempty"`   // PS4 or PS5
	LastSeen   time.Time         `yaml:"last_seen,omitempty"`   // Last time the console answered
	LastStatus map[string]string `yaml:"last_status,omitempty"` // Last status fields received
}

// Game is a title learned from console status responses.
type Game struct {
	Title    string `yaml:"title"`
	Locked   bool   `yaml:"locked,omitempty"` // Locked titles are never renamed by RecordStatus
	ImageURL string `yaml:"image_url,omitempty"`
	GameType string `yaml:"game_type,omitempty"` // Store content type
	SKUID    string `yaml:"sku_id,omitempty"`    // Set once the store has been queried
}

// UnmarshalYAML accepts both the record form and the legacy form where a
// title id maps directly to its name.
func (g *Game) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*g = Game{Title: value.Value}
		return nil
	}

	type plain Game
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("invalid game entry: %w", err)
	}
	*g = Game(p)
	return nil
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	LocalPort     int    `yaml:"local_port"`       // Preferred local UDP port
	MaxPolls      int    `yaml:"max_polls"`        // Unanswered polls before unreachable
	SearchTimeout int    `yaml:"search_timeout"`   // One-shot search timeout in seconds
	PollInterval  int    `yaml:"poll_interval"`    // Watch poll cadence in seconds
	Region        string `yaml:"region,omitempty"` // PS Store country for title lookups
}

// DefaultPreferences returns the preferences used when the file has none.
func DefaultPreferences() *Preferences {
	return &Preferences{
		LocalPort:     ddp.DefaultLocalPort,
		MaxPolls:      ddp.DefaultMaxPolls,
		SearchTimeout: int(ddp.DefaultSearchTimeout / time.Second),
		PollInterval:  5,
		Region:        store.DefaultRegion,
	}
}

// SearchTimeoutDuration returns SearchTimeout as a duration, falling back to
// the DDP default when unset.
func (p *Preferences) SearchTimeoutDuration() time.Duration {
	if p == nil || p.SearchTimeout <= 0 {
		return ddp.DefaultSearchTimeout
	}
	return time.Duration(p.SearchTimeout) * time.Second
}

// MaxPollsOrDefault returns MaxPolls, or the DDP default when unset.
func (p *Preferences) MaxPollsOrDefault() int {
	if p == nil || p.MaxPolls <= 0 {
		return ddp.DefaultMaxPolls
	}
	return p.MaxPolls
}

// PollIntervalDuration returns PollInterval as a duration.
func (p *Preferences) PollIntervalDuration() time.Duration {
	if p == nil || p.PollInterval <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.PollInterval) * time.Second
}

// RegionOrDefault returns the store region, or the store default when unset.
func (p *Preferences) RegionOrDefault() string {
	if p == nil || p.Region == "" {
		return store.DefaultRegion
	}
	return p.Region
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Devices:     make(map[string]*Device),
		Games:       make(map[string]*Game),
		Preferences: DefaultPreferences(),
	}
}

// GetDevice retrieves device metadata by host.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(host string) *Device {
	return r.Devices[host]
}

// EnsureDevice returns the entry for host, creating it if needed.
func (r *Registry) EnsureDevice(host string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	if device, exists := r.Devices[host]; exists {
		return device
	}
	device := &Device{}
	r.Devices[host] = device
	return device
}

// SetDeviceNickname sets a user-friendly nickname for a device.
func (r *Registry) SetDeviceNickname(host, nickname string) {
	r.EnsureDevice(host).Nickname = nickname
}

// SetDeviceCredential stores the credential used for WAKEUP and LAUNCH on host.
func (r *Registry) SetDeviceCredential(host, credential string) {
	r.EnsureDevice(host).Credential = credential
}

// CredentialFor returns the credential for host: the device entry's own
// credential if set, otherwise the default credential.
func (r *Registry) CredentialFor(host string) string {
	if d := r.Devices[host]; d != nil && d.Credential != "" {
		return d.Credential
	}
	return r.Credential
}

// RecordStatus stores a status received from a console. The device is keyed
// by the status host-ip; a running title is learned into Games unless the
// entry is locked. Statuses without a host-ip are ignored. It reports
// whether a new or renamed game was recorded.
func (r *Registry) RecordStatus(status *ddp.Status, now time.Time) bool {
	host := status.HostIP()
	if host == "" {
		return false
	}

	device := r.EnsureDevice(host)
	device.LastSeen = now
	if id := status.HostID(); id != "" {
		device.HostID = id
	}
	if name := status.HostName(); name != "" {
		device.HostName = name
	}
	if typ := status.Get(ddp.KeyHostType); typ != "" {
		device.HostType = typ
	}
	device.LastStatus = statusFields(status)

	return r.learnGame(status.TitleID(), status.AppName())
}

// statusFields flattens a status into string fields for storage.
func statusFields(status *ddp.Status) map[string]string {
	fields := make(map[string]string, len(status.Fields)+2)
	for k, v := range status.Fields {
		fields[k] = v
	}
	if status.Code != 0 {
		fields[ddp.KeyStatusCode] = strconv.Itoa(status.Code)
		fields[ddp.KeyStatus] = status.Text
	}
	return fields
}

func (r *Registry) learnGame(titleID, title string) bool {
	if titleID == "" || title == "" {
		return false
	}
	if r.Games == nil {
		r.Games = make(map[string]*Game)
	}
	game, exists := r.Games[titleID]
	if !exists {
		r.Games[titleID] = &Game{Title: title}
		return true
	}
	if game.Locked || game.Title == title {
		return false
	}
	game.Title = title
	return true
}

// SetGame sets a title's display name and locks it against automatic renames.
func (r *Registry) SetGame(titleID, title string) {
	if r.Games == nil {
		r.Games = make(map[string]*Game)
	}
	game, exists := r.Games[titleID]
	if !exists {
		game = &Game{}
		r.Games[titleID] = game
	}
	game.Title = title
	game.Locked = true
}

// GameTitle returns the display name for titleID, or "" if unknown.
func (r *Registry) GameTitle(titleID string) string {
	if g := r.Games[titleID]; g != nil {
		return g.Title
	}
	return ""
}

// NeedsStoreLookup reports whether titleID has not been looked up in the
// store yet.
func (r *Registry) NeedsStoreLookup(titleID string) bool {
	if titleID == "" {
		return false
	}
	g := r.Games[titleID]
	return g == nil || g.SKUID == ""
}

// ApplyStoreRecord merges a store lookup into Games. The store name
// replaces the title unless the entry is locked; type, SKU and cover art
// are always taken. It reports whether the entry changed.
func (r *Registry) ApplyStoreRecord(rec *store.GameRecord) bool {
	if rec == nil || rec.TitleID == "" {
		return false
	}
	if r.Games == nil {
		r.Games = make(map[string]*Game)
	}
	game, exists := r.Games[rec.TitleID]
	if !exists {
		game = &Game{}
		r.Games[rec.TitleID] = game
	}

	before := *game
	if !game.Locked && rec.Name != "" {
		game.Title = rec.Name
	}
	game.GameType = rec.GameType
	game.SKUID = rec.SKUID
	if rec.CoverArt != "" {
		game.ImageURL = rec.CoverArt
	}
	return !exists || *game != before
}
