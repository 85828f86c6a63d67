package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/muurk/psddp/internal/ddp"
)

func TestPrinter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintSuccess("Wakeup sent", Detail{Key: "Host", Value: "192.168.1.20"})
	p.PrintError("Search failed", errors.New("no route"))

	want := SuccessMarker + " Wakeup sent\n" +
		"  Host: 192.168.1.20\n" +
		FailureMarker + " Search failed: no route\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestPrinter_PrintStatuses(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintStatuses(nil, nil)
	if !strings.Contains(buf.String(), "No consoles found") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	p.PrintStatuses([]*ddp.Status{onStatus, standbyStatus}, nil)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if lines[0] != "192.168.1.20\tLiving Room\tPS5\tOn\tSome Game" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "192.168.1.21\tBedroom\t") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestRenderStatusTable(t *testing.T) {
	out := RenderStatusTable([]*ddp.Status{onStatus, standbyStatus}, nil)

	for _, want := range []string{"HOST", "RUNNING", "192.168.1.20", "Living Room", "Some Game", "Bedroom"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderStatusTable() missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "\n"); n != 2 {
		t.Errorf("RenderStatusTable() has %d line breaks, want 2", n)
	}
}

func TestRenderResultBox(t *testing.T) {
	out := RenderResultBox(false, "Launch failed", errors.New("timeout"), []Detail{{Key: "Host", Value: "10.0.0.5"}}, 80)

	for _, want := range []string{"FAILED", "Launch failed", "Error: timeout", "10.0.0.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderResultBox() missing %q:\n%s", want, out)
		}
	}
}
