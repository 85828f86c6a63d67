package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/psddp/internal/ddp"
)

// Detail is one key/value line in a result box. A slice keeps the order
// stable, unlike a map.
type Detail struct {
	Key   string
	Value string
}

// Printer provides methods for printing UI components to a writer.
type Printer struct {
	out   io.Writer
	width int
	plain bool
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used. Output is unstyled when w is not a
// terminal.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	plain := true
	if f, ok := w.(*os.File); ok {
		plain = !IsTerminal(f)
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
		plain: plain,
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintSuccess prints a success result
func (p *Printer) PrintSuccess(title string, details ...Detail) {
	if p.plain {
		p.Println(SuccessMarker + " " + title)
		for _, d := range details {
			p.Println("  " + d.Key + ": " + d.Value)
		}
		return
	}
	p.Println(RenderResultBox(true, title, nil, details, p.width))
}

// PrintError prints an error result
func (p *Printer) PrintError(title string, err error, details ...Detail) {
	if p.plain {
		line := FailureMarker + " " + title
		if err != nil {
			line += ": " + err.Error()
		}
		p.Println(line)
		for _, d := range details {
			p.Println("  " + d.Key + ": " + d.Value)
		}
		return
	}
	p.Println(RenderResultBox(false, title, err, details, p.width))
}

// PrintStatuses prints one row per console status
func (p *Printer) PrintStatuses(statuses []*ddp.Status, titles TitleLookup) {
	if len(statuses) == 0 {
		p.Println("No consoles found")
		return
	}
	if p.plain {
		for _, st := range statuses {
			p.Println(strings.Join(statusRow(st, titles, false), "\t"))
		}
		return
	}
	p.Println(RenderStatusTable(statuses, titles))
}

// RenderResultBox renders a success or failure box
func RenderResultBox(success bool, title string, err error, details []Detail, width int) string {
	color, marker, word := SuccessColor, SuccessMarker, "SUCCESS"
	if !success {
		color, marker, word = ErrorColor, FailureMarker, "FAILED"
	}

	lines := []string{
		lipgloss.NewStyle().Foreground(color).Bold(true).
			Render(marker + "  " + word + "  ─  " + title),
		"",
	}
	if err != nil {
		lines = append(lines, ErrorMessageStyle.Render("Error: "+err.Error()), "")
	}
	for _, d := range details {
		lines = append(lines, KeyStyle.Render(d.Key+":")+" "+ValueStyle.Render(d.Value))
	}

	return BoxStyle(width, color).Render(strings.Join(lines, "\n"))
}

// statusColumns are the headings of RenderStatusTable
var statusColumns = []string{"HOST", "NAME", "TYPE", "STATUS", "RUNNING"}

func statusRow(st *ddp.Status, titles TitleLookup, styled bool) []string {
	label := StatusLabel(ddp.StateReachable, st)
	if styled {
		label = StyledStatusLabel(ddp.StateReachable, st)
	}
	return []string{
		st.HostIP(),
		st.HostName(),
		st.Get(ddp.KeyHostType),
		label,
		AppLabel(st, titles),
	}
}

// RenderStatusTable renders statuses as aligned columns
func RenderStatusTable(statuses []*ddp.Status, titles TitleLookup) string {
	rows := make([][]string, 0, len(statuses))
	widths := make([]int, len(statusColumns))
	for i, h := range statusColumns {
		widths[i] = len(h)
	}
	for _, st := range statuses {
		row := statusRow(st, titles, true)
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
		rows = append(rows, row)
	}

	var b strings.Builder
	b.WriteString(renderRow(styleAll(statusColumns, MutedStyle), widths))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(renderRow(row, widths))
	}
	return b.String()
}

func styleAll(cells []string, style lipgloss.Style) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = style.Render(c)
	}
	return out
}

func renderRow(cells []string, widths []int) string {
	padded := make([]string, len(cells))
	for i, c := range cells {
		padded[i] = lipgloss.NewStyle().Width(widths[i]).Render(c)
	}
	return strings.Join(padded, "  ")
}
