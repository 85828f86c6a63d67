package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/psddp/internal/ddp"
)

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m WatchModel, msg tea.Msg) (WatchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(WatchModel)
	if !ok {
		t.Fatalf("Update returned %T, want WatchModel", next)
	}
	return wm, cmd
}

func TestNewWatchModel(t *testing.T) {
	m := NewWatchModel([]string{"192.168.1.21", "192.168.1.20"}, nil)

	hosts := m.Hosts()
	if len(hosts) != 2 || hosts[0] != "192.168.1.20" || hosts[1] != "192.168.1.21" {
		t.Errorf("Hosts() = %v, want sorted pair", hosts)
	}
	if got := m.summary(); got != "2 consoles: 2 unknown" {
		t.Errorf("summary() = %q", got)
	}
	if m.Init() == nil {
		t.Error("Init() should start the spinner")
	}
}

func TestWatchModel_DeviceMsg(t *testing.T) {
	m := NewWatchModel([]string{"192.168.1.20", "192.168.1.21", "192.168.1.22"}, nil)

	m, _ = update(t, m, DeviceMsg{
		Host:   "192.168.1.20",
		State:  ddp.StateReachable,
		Status: onStatus,
		At:     time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC),
	})
	m, _ = update(t, m, DeviceMsg{Host: "192.168.1.21", State: ddp.StateUnreachable, PollCount: 6})

	if got := m.summary(); got != "3 consoles: 1 on, 1 unreachable, 1 unknown" {
		t.Errorf("summary() = %q", got)
	}

	view := m.View()
	for _, want := range []string{"PSDDP WATCH", "Living Room", "Some Game", "Unreachable", "20:00:00"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestWatchModel_NewHostAdded(t *testing.T) {
	m := NewWatchModel(nil, nil)
	m, _ = update(t, m, DeviceMsg{Host: "10.0.0.5", State: ddp.StateReachable, Status: standbyStatus})

	if hosts := m.Hosts(); len(hosts) != 1 || hosts[0] != "10.0.0.5" {
		t.Errorf("Hosts() = %v", hosts)
	}
}

func TestWatchModel_Keys(t *testing.T) {
	t.Run("quit", func(t *testing.T) {
		for _, k := range []tea.KeyMsg{runeKey("q"), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
			_, cmd := update(t, NewWatchModel(nil, nil), k)
			if cmd == nil {
				t.Fatalf("%s: expected quit command", k)
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Errorf("%s: command did not quit", k)
			}
		}
	})

	t.Run("help toggle", func(t *testing.T) {
		m := NewWatchModel(nil, nil)
		m, _ = update(t, m, runeKey("?"))
		if !m.help.ShowAll {
			t.Fatal("help should be expanded")
		}
		if !strings.Contains(m.View(), "↑/k") {
			t.Error("full help should list navigation keys")
		}
		m, _ = update(t, m, runeKey("?"))
		if m.help.ShowAll {
			t.Error("help should collapse again")
		}
	})

	t.Run("refresh", func(t *testing.T) {
		calls := 0
		m := NewWatchModel([]string{"192.168.1.20"}, nil)
		m.OnRefresh = func() { calls++ }

		m, cmd := update(t, m, runeKey("r"))
		if cmd == nil {
			t.Fatal("expected refresh command")
		}
		msg := cmd()
		if calls != 1 {
			t.Errorf("OnRefresh called %d times, want 1", calls)
		}

		m, _ = update(t, m, msg)
		if m.lastRefresh.IsZero() {
			t.Error("lastRefresh should be set")
		}
	})
}

func TestWatchModel_WindowSize(t *testing.T) {
	m, _ := update(t, NewWatchModel(nil, nil), tea.WindowSizeMsg{Width: 100, Height: 30})
	if m.Width != 100 || m.Height != 30 {
		t.Errorf("size = %dx%d, want 100x30", m.Width, m.Height)
	}
}

func TestDeviceMessage(t *testing.T) {
	d := ddp.NewDevice("192.168.1.20")
	msg := DeviceMessage(d)

	if msg.Host != "192.168.1.20" || msg.State != ddp.StateUnknown || msg.Status != nil {
		t.Errorf("DeviceMessage() = %+v", msg)
	}
	if msg.At.IsZero() {
		t.Error("At should be set")
	}
}

func TestPollsLabel(t *testing.T) {
	tests := []struct {
		name string
		msg  DeviceMsg
		want string
	}{
		{"polling", DeviceMsg{PollCount: 3}, "3"},
		{"paused", DeviceMsg{PollCount: 0, PausedFor: 47600 * time.Millisecond}, "48s"},
		{"pause elapsed", DeviceMsg{PollCount: 1, PausedFor: 0}, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pollsLabel(tt.msg); got != tt.want {
				t.Errorf("pollsLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWatchModel_ViewDivider(t *testing.T) {
	m, _ := update(t, NewWatchModel([]string{"192.168.1.20"}, nil), tea.WindowSizeMsg{Width: 100, Height: 30})
	if got := m.dividerWidth(); got != clampWidth(100, nil) {
		t.Errorf("dividerWidth() = %d, want %d", got, clampWidth(100, nil))
	}
	if !strings.Contains(m.View(), "───") {
		t.Error("View() should contain a divider under the summary")
	}
}
