package graphics

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"

	"github.com/joouha/termview/pkg/convert"
	"github.com/joouha/termview/pkg/ft"
)

// kittyImageCount allocates process-unique kitty image ids.
var kittyImageCount atomic.Int32

const kittyChunkSize = 4096

// KittyControl draws graphics with the kitty graphics protocol. Kitty is
// stateful: image data is transmitted once with a numeric id, then placed,
// hidden and deleted by id. The image is padded to a whole number of cells
// before transmission so cell-based placement math is exact.
type KittyControl struct {
	controlBase
	reg *convert.Registry
	out Output

	loadMu  sync.Mutex
	imageID int32
	loaded  bool
	padded  *convert.Datum
}

func NewKittyControl(reg *convert.Registry, d *convert.Datum, term Terminal, out Output) *KittyControl {
	return &KittyControl{controlBase: newControlBase(d, term), reg: reg, out: out}
}

// kittyCmd assembles an APC graphics command from key=value parameters,
// emitted in sorted key order, with an optional payload chunk.
func kittyCmd(chunk string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}

	cmd := "\x1b_G" + strings.Join(parts, ",")
	if chunk != "" {
		cmd += ";" + chunk
	}
	return cmd + "\x1b\\"
}

// padDatum pads the image up to the next whole cell in both dimensions,
// anchored top-left, so a cell region maps exactly onto pixel rows and
// columns. Cached after the first call.
func (c *KittyControl) padDatum(ctx context.Context) *convert.Datum {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if c.padded != nil {
		return c.padded
	}

	c.padded = c.datum
	px, py, err := c.datum.PixelSize(ctx)
	if err == nil && px > 0 && py > 0 {
		cw, ch := c.term.CellWidth, c.term.CellHeight
		targetW := (px + cw - 1) / cw * cw
		targetH := (py + ch - 1) / ch * ch

		if p, err := c.datum.Convert(ctx, "image", 0, 0); err == nil {
			if img, ok := p.Image(); ok {
				canvas := image.NewNRGBA(image.Rect(0, 0, targetW, targetH))
				padded := imaging.Paste(canvas, img, image.Pt(0, 0))
				c.padded = c.reg.NewDatum(convert.Image(padded), "image",
					convert.WithPixelSize(targetW, targetH),
					convert.WithPath(c.datum.Path()),
				)
			}
		}
	}
	return c.padded
}

// load transmits the padded image to the terminal in chunks without
// displaying it.
func (c *KittyControl) load(ctx context.Context, cols, rows int, bbox BBox) {
	padded := c.padDatum(ctx)

	fullW := cols + bbox.Left + bbox.Right
	fullH := rows + bbox.Top + bbox.Bottom
	p, err := padded.Convert(ctx, "base64-png", fullW, fullH)
	if err != nil {
		return
	}
	data := strings.ReplaceAll(p.AsText(), "\n", "")

	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if c.loaded {
		return
	}
	c.imageID = kittyImageCount.Add(1)

	for len(data) > 0 {
		chunk := data
		if len(chunk) > kittyChunkSize {
			chunk = data[:kittyChunkSize]
		}
		data = data[len(chunk):]

		more := 0
		if len(data) > 0 {
			more = 1
		}
		cmd := kittyCmd(chunk, map[string]any{
			"a": "t", // transmit without displaying
			"t": "d", // direct transfer
			"i": c.imageID,
			"p": 1,
			"q": 2,   // suppress responses
			"f": 100, // PNG payload
			"C": 1,   // do not move the cursor
			"m": more,
		})
		c.out.WriteRaw(c.term.WrapPassthrough(cmd))
	}
	c.out.Flush()
	c.loaded = true
}

func (c *KittyControl) RenderedLines(ctx context.Context, visibleWidth, visibleHeight int) []ft.Line {
	return c.cachedRender(c.renderKeyFor(visibleWidth), func() []ft.Line {
		padded := c.padDatum(ctx)
		px, py, _ := padded.PixelSize(ctx)
		if px == 0 {
			px = 100
		}
		if py == 0 {
			py = 100
		}

		dCols, dAspect, err := padded.CellSize(ctx)
		if err != nil {
			return nil
		}
		bbox := c.getBBox()
		cols, rows, cropBox := fitToBox(dCols, dAspect, visibleWidth, visibleHeight, bbox)

		c.loadMu.Lock()
		loaded := c.loaded
		c.loadMu.Unlock()
		if !loaded {
			c.load(ctx, cols, rows, cropBox)
		}

		displayRows := rows - cropBox.Top - cropBox.Bottom
		if displayRows <= 0 || cols <= 0 {
			return []ft.Line{{{Style: ft.ZeroWidthEscape, Text: c.hideCmd()}}}
		}

		cmd := kittyCmd("", map[string]any{
			"a": "p", // place a transmitted image
			"i": c.imageID,
			"p": 1,
			"m": 0,
			"q": 2,
			"c": cols - cropBox.Left - cropBox.Right,
			"r": displayRows,
			"C": 1,
			// Pixel offsets and extent of the displayed image region.
			"x": px * cropBox.Left / cols,
			"y": py * cropBox.Top / rows,
			"w": px * (cols - cropBox.Left - cropBox.Right) / cols,
			"h": py * (rows - cropBox.Top - cropBox.Bottom) / rows,
		})
		return blockLines(visibleWidth, visibleHeight, c.term.WrapPassthrough(cmd))
	})
}

func (c *KittyControl) hideCmd() string {
	return c.term.WrapPassthrough(kittyCmd("", map[string]any{
		"a": "d",
		"d": "i",
		"i": c.imageID,
		"q": 1,
	}))
}

// Hide removes the placement but keeps the transmitted image so it can be
// shown again without a retransmit.
func (c *KittyControl) Hide() {
	c.loadMu.Lock()
	id := c.imageID
	c.loadMu.Unlock()
	if id > 0 {
		c.out.WriteRaw(c.hideCmd())
		c.out.Flush()
	}
}

// Close deletes the transmitted image from the terminal.
func (c *KittyControl) Close() {
	c.Hide()
	c.loadMu.Lock()
	id := c.imageID
	c.loaded = false
	c.loadMu.Unlock()
	if id > 0 {
		c.out.WriteRaw(c.term.WrapPassthrough(kittyCmd("", map[string]any{
			"a": "D",
			"d": "I",
			"i": id,
			"q": 2,
		})))
		c.out.Flush()
	}
}

var _ Control = (*KittyControl)(nil)
