package ddp

import (
	"fmt"
	"maps"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Status codes reported by consoles
const (
	StatusOK      = 200
	StatusStandby = 620
)

// Response field keys. KeyStatusCode and KeyStatus only appear in Map output;
// Decode stores them in Status.Code and Status.Text.
const (
	KeyStatusCode        = "status_code"
	KeyStatus            = "status"
	KeyHostIP            = "host-ip"
	KeyHostID            = "host-id"
	KeyHostName          = "host-name"
	KeyHostType          = "host-type"
	KeyHostRequestPort   = "host-request-port"
	KeySystemVersion     = "system-version"
	KeyRunningAppName    = "running-app-name"
	KeyRunningAppTitleID = "running-app-titleid"
)

// statusLinePattern matches "HTTP/1.1 <code> <text>"
var statusLinePattern = regexp.MustCompile(`^HTTP/1\.1 (\d+) (.*)$`)

// Status is a decoded DDP response. Code and Text come from the status line;
// every other key:value line lands in Fields. A search echo decodes to an
// empty Status.
type Status struct {
	Code   int
	Text   string
	Fields map[string]string
}

// Decode parses a response. It never fails: lines that are neither a status
// line nor key:value are skipped. Any text containing the SRCH token is a
// search request or echo and yields an empty Status.
func Decode(text string) *Status {
	status := &Status{Fields: make(map[string]string)}
	if strings.Contains(text, string(TypeSearch)) {
		return status
	}

	var appName string
	haveAppName := false

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := statusLinePattern.FindStringSubmatch(line); m != nil {
			code, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			status.Code = code
			status.Text = strings.TrimSpace(m[2])
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok || key == "" {
			continue
		}
		// The app name is free text and may contain colons; keep it whole
		// and write it after everything else.
		if key == KeyRunningAppName {
			appName = value
			haveAppName = true
			continue
		}
		status.Fields[key] = value
	}

	if haveAppName {
		status.Fields[KeyRunningAppName] = appName
	}
	return status
}

// Empty reports whether the status carries no information at all.
func (s *Status) Empty() bool {
	return s == nil || (s.Code == 0 && s.Text == "" && len(s.Fields) == 0)
}

// Get returns a field value, or "" when absent.
func (s *Status) Get(key string) string {
	if s == nil {
		return ""
	}
	return s.Fields[key]
}

// HostIP returns the address the response was received from.
func (s *Status) HostIP() string { return s.Get(KeyHostIP) }

// HostID returns the console's host id (its MAC address).
func (s *Status) HostID() string { return s.Get(KeyHostID) }

// HostName returns the console's configured name.
func (s *Status) HostName() string { return s.Get(KeyHostName) }

// AppName returns the running application's name.
func (s *Status) AppName() string { return s.Get(KeyRunningAppName) }

// TitleID returns the running application's title id.
func (s *Status) TitleID() string { return s.Get(KeyRunningAppTitleID) }

// IsOn reports whether the console answered with status 200.
func (s *Status) IsOn() bool { return s != nil && s.Code == StatusOK }

// IsStandby reports whether the console answered with status 620.
func (s *Status) IsStandby() bool { return s != nil && s.Code == StatusStandby }

// Equal reports whether two statuses carry exactly the same data.
// Two nil statuses are equal.
func (s *Status) Equal(other *Status) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Code == other.Code &&
		s.Text == other.Text &&
		maps.Equal(s.Fields, other.Fields)
}

// Clone returns a deep copy.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	return &Status{
		Code:   s.Code,
		Text:   s.Text,
		Fields: maps.Clone(s.Fields),
	}
}

// Map flattens the status into a single mapping, with status_code as an int.
func (s *Status) Map() map[string]any {
	if s == nil {
		return nil
	}
	out := make(map[string]any, len(s.Fields)+2)
	for k, v := range s.Fields {
		out[k] = v
	}
	if s.Code != 0 || s.Text != "" {
		out[KeyStatusCode] = s.Code
		out[KeyStatus] = s.Text
	}
	return out
}

// String returns a compact, deterministic representation for logs.
func (s *Status) String() string {
	if s == nil {
		return "<nil>"
	}
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	if s.Code != 0 {
		parts = append(parts, fmt.Sprintf("%d %s", s.Code, s.Text))
	}
	for _, k := range keys {
		parts = append(parts, k+"="+s.Fields[k])
	}
	return "Status{" + strings.Join(parts, ", ") + "}"
}
