package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/muurk/psddp/internal/ddp"
)

// TitleLookup maps a title id to a display name; "" means unknown
type TitleLookup func(titleID string) string

// StatusLabel returns a short word for a console's condition.
func StatusLabel(state ddp.DeviceState, st *ddp.Status) string {
	switch {
	case state == ddp.StateUnreachable:
		return "Unreachable"
	case st == nil:
		return "Unknown"
	case st.IsOn():
		return "On"
	case st.IsStandby():
		return "Standby"
	default:
		return fmt.Sprintf("Status %d", st.Code)
	}
}

// StyledStatusLabel is StatusLabel with the matching color
func StyledStatusLabel(state ddp.DeviceState, st *ddp.Status) string {
	label := StatusLabel(state, st)
	switch label {
	case "On":
		return OnStyle.Render(label)
	case "Standby":
		return StandbyStyle.Render(label)
	case "Unreachable":
		return UnreachableStyle.Render(label)
	default:
		return MutedStyle.Render(label)
	}
}

// AppLabel returns what the console is running, preferring the learned
// display name for its title id.
func AppLabel(st *ddp.Status, titles TitleLookup) string {
	if st == nil {
		return ""
	}
	if titles != nil {
		if name := titles(st.TitleID()); name != "" {
			return name
		}
	}
	return st.AppName()
}

// FormatStatusLine renders one plain-text line for non-interactive output:
//
//	2024-05-01T20:00:00Z 192.168.1.20 Living Room On Some Game
func FormatStatusLine(at time.Time, host string, state ddp.DeviceState, st *ddp.Status, titles TitleLookup) string {
	parts := []string{at.UTC().Format(time.RFC3339), host}
	if name := st.HostName(); name != "" {
		parts = append(parts, name)
	}
	parts = append(parts, StatusLabel(state, st))
	if app := AppLabel(st, titles); app != "" {
		parts = append(parts, app)
	}
	return strings.Join(parts, " ")
}
