package ui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/psddp/internal/ddp"
)

// DeviceMsg reports a device change to the watch screen
type DeviceMsg struct {
	Host      string
	State     ddp.DeviceState
	Status    *ddp.Status
	PollCount int
	PausedFor time.Duration // Time left before polls resume after standby
	At        time.Time
}

// DeviceMessage captures d's current state as a DeviceMsg
func DeviceMessage(d *ddp.Device) DeviceMsg {
	return DeviceMsg{
		Host:      d.Host(),
		State:     d.State(),
		Status:    d.Status(),
		PollCount: d.PollCount(),
		At:        time.Now(),
	}
}

// refreshedMsg is sent after a manual refresh has been requested
type refreshedMsg struct{}

// watchKeyMap defines key bindings for the watch screen
type watchKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Refresh, k.Help, k.Quit},
	}
}

var watchKeys = watchKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "poll now"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// WatchModel is the live console status screen
type WatchModel struct {
	table   table.Model
	spinner spinner.Model
	help    help.Model
	keys    watchKeyMap

	devices map[string]DeviceMsg
	titles  TitleLookup

	// OnRefresh is called when the user asks for an immediate poll
	OnRefresh func()

	Width  int
	Height int

	lastRefresh time.Time
}

// NewWatchModel creates a watch screen listing hosts
func NewWatchModel(hosts []string, titles TitleLookup) WatchModel {
	columns := []table.Column{
		{Title: "Host", Width: 16},
		{Title: "Name", Width: 18},
		{Title: "Status", Width: 12},
		{Title: "Running", Width: 28},
		{Title: "Polls", Width: 5},
		{Title: "Updated", Width: 8},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(len(hosts)+2),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(MutedColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(TextColor).
		Background(PrimaryColor)
	t.SetStyles(styles)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	m := WatchModel{
		table:   t,
		spinner: s,
		help:    help.New(),
		keys:    watchKeys,
		devices: make(map[string]DeviceMsg, len(hosts)),
		titles:  titles,
	}
	for _, h := range hosts {
		m.devices[h] = DeviceMsg{Host: h, State: ddp.StateUnknown}
	}
	m.refreshRows()
	return m
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			return m, m.refresh()
		}

	case DeviceMsg:
		m.devices[msg.Host] = msg
		m.refreshRows()
		return m, nil

	case refreshedMsg:
		m.lastRefresh = time.Now()
		return m, nil

	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.table.SetWidth(msg.Width)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m WatchModel) refresh() tea.Cmd {
	onRefresh := m.OnRefresh
	return func() tea.Msg {
		if onRefresh != nil {
			onRefresh()
		}
		return refreshedMsg{}
	}
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("PSDDP WATCH"))
	b.WriteString(" ")
	b.WriteString(m.spinner.View())
	b.WriteString("\n")
	b.WriteString(SubtitleStyle.Render(m.summary()))
	b.WriteString("\n")
	b.WriteString(RenderHorizontalDivider(m.dividerWidth(), "─"))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")

	return b.String()
}

func (m WatchModel) dividerWidth() int {
	if m.Width <= 0 {
		return MinTerminalWidth
	}
	return clampWidth(m.Width, nil)
}

// summary counts consoles by condition
func (m WatchModel) summary() string {
	counts := make(map[string]int)
	for _, d := range m.devices {
		counts[StatusLabel(d.State, d.Status)]++
	}
	var parts []string
	for _, label := range []string{"On", "Standby", "Unreachable", "Unknown"} {
		if n := counts[label]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(label)))
		}
	}
	s := fmt.Sprintf("%d consoles", len(m.devices))
	if len(parts) > 0 {
		s += ": " + strings.Join(parts, ", ")
	}
	return s
}

// Hosts returns the watched hosts in display order
func (m WatchModel) Hosts() []string {
	hosts := make([]string, 0, len(m.devices))
	for h := range m.devices {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

func (m *WatchModel) refreshRows() {
	rows := make([]table.Row, 0, len(m.devices))
	for _, h := range m.Hosts() {
		d := m.devices[h]
		updated := ""
		if !d.At.IsZero() {
			updated = d.At.Format("15:04:05")
		}
		rows = append(rows, table.Row{
			d.Host,
			d.Status.HostName(),
			StatusLabel(d.State, d.Status),
			AppLabel(d.Status, m.titles),
			pollsLabel(d),
			updated,
		})
	}
	m.table.SetRows(rows)
	// rows plus the bordered header
	m.table.SetHeight(len(rows) + 2)
}

// pollsLabel shows the unanswered poll count, or the seconds left while
// polls are paused after standby
func pollsLabel(d DeviceMsg) string {
	if d.PausedFor > 0 {
		return strconv.Itoa(int(d.PausedFor.Round(time.Second)/time.Second)) + "s"
	}
	return strconv.Itoa(d.PollCount)
}

// Run starts the watch screen and blocks until the user quits or ctx is
// cancelled. ready is called with the program before it starts, so callers
// can forward DeviceMsg values with p.Send.
func Run(ctx context.Context, m WatchModel, ready func(p *tea.Program)) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if ready != nil {
		ready(p)
	}
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
