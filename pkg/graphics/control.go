package graphics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/joouha/termview/pkg/convert"
	"github.com/joouha/termview/pkg/ft"
)

// Control renders one graphic with a specific terminal protocol.
//
// A control holds the crop box set by the processor as the graphic scrolls
// in and out of view; RenderedLines reflects the current box. Stateful
// protocols (kitty) additionally transmit image data to the terminal out
// of band and must be hidden or deleted explicitly.
type Control interface {
	Datum() *convert.Datum

	// SetBBox updates the cropped margins before the next render.
	SetBBox(BBox)

	// PreferredWidth returns the width the graphic wants, bounded by the
	// available width. 0 means no preference.
	PreferredWidth(ctx context.Context, maxWidth int) int

	// PreferredHeight returns the number of rows needed at the given
	// width.
	PreferredHeight(ctx context.Context, width, maxHeight int) int

	// RenderedLines produces the styled lines that draw the graphic in a
	// visibleWidth x visibleHeight cell region. The graphic payload is
	// carried in zero-width fragments; the visible text is blank.
	RenderedLines(ctx context.Context, visibleWidth, visibleHeight int) []ft.Line

	// Hide removes the graphic from display without discarding
	// transmitted data. A no-op for stateless protocols.
	Hide()

	// Close removes the graphic entirely, releasing terminal-side
	// resources.
	Close()
}

const renderCacheSize = 50

type renderKey struct {
	width int
	cellW int
	cellH int
	bbox  BBox
}

// controlBase carries the state shared by all protocol controls: the
// datum, the current crop box and a small render cache keyed on the
// parameters that affect output.
type controlBase struct {
	datum *convert.Datum
	term  Terminal

	mu    sync.Mutex
	bbox  BBox
	cache map[renderKey][]ft.Line
	order []renderKey
}

func newControlBase(d *convert.Datum, term Terminal) controlBase {
	return controlBase{
		datum: d,
		term:  term,
		cache: map[renderKey][]ft.Line{},
	}
}

func (c *controlBase) Datum() *convert.Datum { return c.datum }

func (c *controlBase) SetBBox(b BBox) {
	c.mu.Lock()
	c.bbox = b
	c.mu.Unlock()
}

func (c *controlBase) getBBox() BBox {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bbox
}

func (c *controlBase) PreferredWidth(ctx context.Context, maxWidth int) int {
	cols, _, err := c.datum.CellSize(ctx)
	if err != nil || cols == 0 {
		return maxWidth
	}
	return min(cols, maxWidth)
}

func (c *controlBase) PreferredHeight(ctx context.Context, width, maxHeight int) int {
	cols, aspect, err := c.datum.CellSize(ctx)
	if err != nil || aspect == 0 {
		return maxHeight
	}
	return int(math.Ceil(float64(min(width, cols)) * aspect))
}

// cachedRender returns memoized lines for a render key, invoking render on
// a miss. The cache is bounded; the oldest entry is evicted.
func (c *controlBase) cachedRender(key renderKey, render func() []ft.Line) []ft.Line {
	c.mu.Lock()
	if lines, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return lines
	}
	c.mu.Unlock()

	lines := render()

	c.mu.Lock()
	if _, ok := c.cache[key]; !ok {
		if len(c.order) >= renderCacheSize {
			delete(c.cache, c.order[0])
			c.order = c.order[1:]
		}
		c.cache[key] = lines
		c.order = append(c.order, key)
	}
	c.mu.Unlock()
	return lines
}

func (c *controlBase) renderKeyFor(visibleWidth int) renderKey {
	return renderKey{
		width: visibleWidth,
		cellW: c.term.CellWidth,
		cellH: c.term.CellHeight,
		bbox:  c.getBBox(),
	}
}

// blockLines assembles the standard graphic block: a visibleHeight x
// visibleWidth run of spaces establishing the cell region, then a
// zero-width sequence that saves the cursor, walks back to the top-left
// corner, emits the protocol command without moving the cursor, and
// restores the saved position.
func blockLines(visibleWidth, visibleHeight int, cmd string) []ft.Line {
	if visibleHeight < 0 {
		return nil
	}

	row := strings.Repeat(" ", visibleWidth)
	block := make([]string, visibleHeight)
	for i := range block {
		block[i] = row
	}

	frags := []ft.Fragment{
		{Style: "", Text: strings.Join(block, "\n")},
		{Style: ft.ZeroWidthEscape, Text: "\x1b[s"},
	}
	if visibleHeight > 1 {
		frags = append(frags, ft.Fragment{
			Style: ft.ZeroWidthEscape,
			Text:  fmt.Sprintf("\x1b[%dA", visibleHeight-1),
		})
	}
	frags = append(frags,
		ft.Fragment{Style: ft.ZeroWidthEscape, Text: fmt.Sprintf("\x1b[%dD", visibleWidth)},
		ft.Fragment{Style: ft.ZeroWidthEscape, Text: cmd},
		ft.Fragment{Style: ft.ZeroWidthEscape, Text: "\x1b[u"},
	)
	return ft.SplitLines(frags)
}
