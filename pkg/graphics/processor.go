package graphics

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-runewidth"

	"github.com/joouha/termview/pkg/convert"
	"github.com/joouha/termview/pkg/errors"
	"github.com/joouha/termview/pkg/ft"
)

// ErrNotVisible signals that a graphic's anchor is currently outside the
// visible region. Callers hide the graphic rather than treating this as a
// failure.
var ErrNotVisible = errors.New(errors.ErrCodeNotVisible, "graphic is not visible")

// Window reports the geometry of the scrollable region the processed text
// is drawn in. The processor uses it to decide which graphics are in view
// and how much of each is clipped by the region's edges.
type Window interface {
	// Visible reports whether the window is currently on screen.
	Visible() bool

	// WritePos returns the window's screen rectangle, with any crop box
	// applied to the window itself. ok is false when the window has not
	// been laid out.
	WritePos() (wp WritePosition, ok bool)

	// VerticalScroll and HorizontalScroll return the content offsets.
	VerticalScroll() int
	HorizontalScroll() int

	// ContentSize returns the full extent of the window's content in
	// cells, which may exceed the visible rectangle.
	ContentSize() (rows, cols int)
}

// Processor finds graphic markers embedded in rendered text and paints the
// referenced graphics over their anchor cells.
//
// Markers are zero-width style tokens carrying a size-association key (see
// ft.Graphic). Load scans content for them and records each key's cell
// position; Paint resolves positions against the window's current scroll
// state and draws, crops or hides each graphic accordingly.
type Processor struct {
	reg    *convert.Registry
	term   Terminal
	out    Output
	logger *log.Logger

	preferred string
	force     bool

	mu        sync.Mutex
	positions map[string]Point
	controls  map[string]Control
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProtocol sets the preferred protocol and whether to force graphics
// output on terminals that do not advertise support.
func WithProtocol(preferred string, force bool) ProcessorOption {
	return func(p *Processor) { p.preferred, p.force = preferred, force }
}

// WithLogger sets the processor's logger.
func WithLogger(l *log.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

func NewProcessor(reg *convert.Registry, term Terminal, out Output, opts ...ProcessorOption) *Processor {
	p := &Processor{
		reg:       reg,
		term:      term,
		out:       out,
		logger:    log.Default(),
		positions: map[string]Point{},
		controls:  map[string]Control{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load scans rendered lines for graphic markers and records their
// positions. Column tracking skips zero-width fragments, so markers and
// escape sequences do not shift the anchor.
func (p *Processor) Load(lines []ft.Line) {
	positions := map[string]Point{}
	for y, line := range lines {
		x := 0
		for _, frag := range line {
			zero := false
			for _, part := range strings.Fields(frag.Style) {
				if key, ok := ft.GraphicKey(part); ok {
					positions[key] = Point{X: x, Y: y}
				}
				if ft.IsZeroWidth(part) {
					zero = true
					break
				}
			}
			if !zero {
				x += runewidth.StringWidth(frag.Text)
			}
		}
	}

	p.mu.Lock()
	p.positions = positions
	p.mu.Unlock()

	for key := range positions {
		p.control(key)
	}
}

// control returns the graphic control for a key, creating it on first
// sight if the datum is still alive and a protocol is available.
func (p *Processor) control(key string) Control {
	p.mu.Lock()
	if c, ok := p.controls[key]; ok {
		p.mu.Unlock()
		return c
	}
	p.mu.Unlock()

	d, _, ok := p.reg.SizedDatum(key)
	if !ok {
		p.logger.Debug("Datum not found for graphic", "key", key)
		return nil
	}
	c := SelectControl(p.reg, d, p.term, p.out, p.preferred, p.force)
	if c == nil {
		return nil
	}

	p.mu.Lock()
	if existing, ok := p.controls[key]; ok {
		c = existing
	} else {
		p.controls[key] = c
	}
	p.mu.Unlock()
	return c
}

// Position computes where a graphic of the given cell size should be drawn
// given the window's current layout and scroll state, along with the crop
// box for the parts that fall outside the window. Returns ErrNotVisible
// when the anchor is scrolled out of view or the window is not shown.
func (p *Processor) Position(key string, rows, cols int, win Window) (WritePosition, error) {
	p.mu.Lock()
	anchor, ok := p.positions[key]
	p.mu.Unlock()
	if !ok {
		return WritePosition{}, ErrNotVisible
	}

	if !win.Visible() {
		return WritePosition{}, ErrNotVisible
	}
	winWP, ok := win.WritePos()
	if !ok {
		return WritePosition{}, ErrNotVisible
	}
	winBox := winWP.BBox

	x, y := anchor.X, anchor.Y
	contentRows, _ := win.ContentSize()
	contentCols := winWP.Width

	hscroll := win.HorizontalScroll()
	vscroll := win.VerticalScroll()
	if hscroll >= x+contentCols || vscroll >= y+contentRows {
		return WritePosition{}, ErrNotVisible
	}

	bbox := BBox{
		Top:    max(0, winBox.Top-y+vscroll),
		Right:  winBox.Right,
		Bottom: max(0, winBox.Bottom-(winWP.Height-y-rows)-vscroll),
		Left:   winBox.Left,
	}

	xpos := winWP.XPos + x + winBox.Left
	ypos := max(
		winWP.YPos+winBox.Top,
		winWP.YPos+y+max(0, winBox.Top-y)-min(y, vscroll),
	)

	return WritePosition{
		XPos:   xpos,
		YPos:   ypos,
		Width:  max(0, cols-bbox.Left-bbox.Right),
		Height: max(0, rows-bbox.Top-bbox.Bottom),
		BBox:   bbox,
	}, nil
}

// Paint draws every tracked graphic at its current position, cropped to
// the window, and hides graphics whose anchors are out of view.
func (p *Processor) Paint(ctx context.Context, win Window) {
	p.mu.Lock()
	keys := make([]string, 0, len(p.positions))
	for key := range p.positions {
		keys = append(keys, key)
	}
	p.mu.Unlock()

	for _, key := range keys {
		c := p.control(key)
		if c == nil {
			continue
		}
		_, size, ok := p.reg.SizedDatum(key)
		if !ok {
			continue
		}

		wp, err := p.Position(key, size.Rows, size.Cols, win)
		if err != nil || wp.Width == 0 || wp.Height == 0 {
			c.Hide()
			continue
		}

		c.SetBBox(wp.BBox)
		p.paintAt(ctx, c, wp)
	}
	p.out.Flush()
}

// paintAt renders a control's lines and writes them at the target
// position, addressing each row with an absolute cursor move.
func (p *Processor) paintAt(ctx context.Context, c Control, wp WritePosition) {
	lines := c.RenderedLines(ctx, wp.Width, wp.Height)
	for i, line := range lines {
		p.out.WriteRaw(fmt.Sprintf("\x1b[%d;%dH", wp.YPos+i+1, wp.XPos+1))
		p.out.WriteRaw(ft.Raw([]ft.Line{line}))
	}
}

// Close releases every control, deleting terminal-side image state.
func (p *Processor) Close() {
	p.mu.Lock()
	controls := p.controls
	p.controls = map[string]Control{}
	p.mu.Unlock()

	for _, c := range controls {
		c.Close()
	}
}
