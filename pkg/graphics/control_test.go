package graphics

import (
	"strings"
	"testing"

	"github.com/joouha/termview/pkg/ft"
)

func TestBlockLinesShape(t *testing.T) {
	lines := blockLines(4, 3, "CMD")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for i, line := range lines {
		if w := ft.Width(line); w != 4 {
			t.Errorf("line %d width = %d, want 4", i, w)
		}
	}

	raw := ft.Raw(lines)
	for _, seq := range []string{"\x1b[s", "\x1b[2A", "\x1b[4D", "CMD", "\x1b[u"} {
		if !strings.Contains(raw, seq) {
			t.Errorf("raw output missing %q", seq)
		}
	}
}

func TestBlockLinesSingleRow(t *testing.T) {
	raw := ft.Raw(blockLines(5, 1, "CMD"))
	if strings.Contains(raw, "A") {
		t.Errorf("single-row block moved the cursor up: %q", raw)
	}
	if !strings.Contains(raw, "\x1b[5D") {
		t.Errorf("missing cursor-left move: %q", raw)
	}
}

func TestBlockLinesPayloadInvisible(t *testing.T) {
	lines := blockLines(3, 2, "SECRET")
	if strings.Contains(ft.Text(lines), "SECRET") {
		t.Error("protocol payload leaked into visible text")
	}
	if !strings.Contains(ft.Raw(lines), "SECRET") {
		t.Error("protocol payload missing from raw output")
	}
}

func TestBlockLinesNegativeHeight(t *testing.T) {
	if lines := blockLines(4, -1, "CMD"); lines != nil {
		t.Errorf("expected nil for negative height, got %v", lines)
	}
}
