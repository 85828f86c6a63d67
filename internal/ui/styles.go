package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - console on
	ErrorColor   = lipgloss.Color("#FF5555") // Red - unreachable, errors
	WarningColor = lipgloss.Color("#FFA500") // Orange - standby
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60  // Minimum supported terminal width
	MaxContentWidth  = 120 // Maximum content width before capping
)

var (
	// TitleStyle is for screen and box titles
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true).
			PaddingLeft(2)

	// SubtitleStyle is for the command line under a title
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2)

	// KeyStyle is for detail keys
	KeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(15)

	// ValueStyle is for detail values
	ValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	// OnStyle renders a console that answered 200
	OnStyle = lipgloss.NewStyle().
		Foreground(SuccessColor).
		Bold(true)

	// StandbyStyle renders a console in rest mode
	StandbyStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	// UnreachableStyle renders a console that stopped answering
	UnreachableStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)

	// MutedStyle is for timestamps and hints
	MutedStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// ErrorMessageStyle is for error message text
	ErrorMessageStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)
)

// Result markers
const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
)

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// GetTerminalWidth returns the current terminal width, with fallback
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	return clampWidth(width, err)
}

func clampWidth(width int, err error) int {
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// BoxStyle returns a rounded border box of the given width and color
func BoxStyle(width int, color lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Width(width-2). // Account for border characters
		Padding(0, 1)
}

// RenderHorizontalDivider creates a horizontal line of the specified width
func RenderHorizontalDivider(width int, char string) string {
	return lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Render(strings.Repeat(char, width))
}
