package graphics

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/joouha/termview/pkg/convert"
	"github.com/joouha/termview/pkg/ft"
)

// SixelControl draws graphics with the DEC sixel protocol. Sixel is
// stateless: every render re-emits the full pixel stream, and cropping is
// performed on the stream itself.
type SixelControl struct {
	controlBase
}

func NewSixelControl(d *convert.Datum, term Terminal) *SixelControl {
	return &SixelControl{controlBase: newControlBase(d, term)}
}

func (c *SixelControl) RenderedLines(ctx context.Context, visibleWidth, visibleHeight int) []ft.Line {
	return c.cachedRender(c.renderKeyFor(visibleWidth), func() []ft.Line {
		dCols, dAspect, err := c.datum.CellSize(ctx)
		if err != nil {
			return nil
		}
		bbox := c.getBBox()
		cols, rows, cropBox := fitToBox(dCols, dAspect, visibleWidth, visibleHeight, bbox)

		cmd := c.convertData(ctx, cols, rows, cropBox)
		return blockLines(visibleWidth, visibleHeight, c.term.WrapPassthrough(cmd))
	})
}

func (c *SixelControl) convertData(ctx context.Context, cols, rows int, bbox BBox) string {
	p, err := c.datum.Convert(ctx, "sixel", cols, rows)
	if err != nil {
		return ""
	}
	cmd := strings.TrimSpace(p.AsText())
	if bbox.Any() {
		cw, ch := c.term.CellWidth, c.term.CellHeight
		cmd = CropSixel(cmd,
			bbox.Left*cw,
			bbox.Top*ch,
			(cols-bbox.Left-bbox.Right)*cw,
			(rows-bbox.Top-bbox.Bottom)*ch,
		)
	}
	return cmd
}

func (c *SixelControl) Hide()  {}
func (c *SixelControl) Close() {}

// CropSixel extracts the w x h pixel region at offset (x, y) from a sixel
// stream, returning a new stream.
//
// Sixel data is organized in 6-pixel-tall bands, so the vertical crop is
// band-granular: rows outside the region within a partially-kept band are
// masked to background rather than shifted, which can leave up to 5 blank
// pixel rows at the top of the output. Horizontal cropping is exact;
// repeat runs spanning a crop edge are split.
func CropSixel(data string, x, y, w, h int) string {
	start := strings.IndexByte(data, 'q')
	if start < 0 {
		return data
	}
	intro := data[:start+1]
	body := data[start+1:]
	if end := strings.Index(body, "\x1b\\"); end >= 0 {
		body = body[:end]
	}

	// Replace any raster attribute header with one for the crop size.
	if strings.HasPrefix(body, "\"") {
		i := 1
		for i < len(body) && (body[i] == ';' || body[i] >= '0' && body[i] <= '9') {
			i++
		}
		body = body[i:]
	}

	var sb strings.Builder
	sb.WriteString(intro)
	fmt.Fprintf(&sb, "\"1;1;%d;%d", w, h)

	firstBand := y / 6
	lastBand := (y + h - 1) / 6

	band := 0
	for _, raw := range strings.Split(body, "-") {
		if band > lastBand {
			break
		}
		if band >= firstBand {
			if band > firstBand {
				sb.WriteByte('-')
			}
			sb.WriteString(cropBand(raw, band*6, x, y, w, h))
		}
		band++
	}

	sb.WriteString("\x1b\\")
	return sb.String()
}

// cropBand crops one 6-pixel band horizontally to [x, x+w) and masks any
// pixel rows outside [y, y+h).
func cropBand(band string, bandTop, x, y, w, h int) string {
	mask := 0
	for bit := 0; bit < 6; bit++ {
		row := bandTop + bit
		if row >= y && row < y+h {
			mask |= 1 << bit
		}
	}

	var sb strings.Builder
	pos := 0

	emit := func(ch byte, count int) {
		// Clip the run to the horizontal window.
		lo := max(pos, x)
		hi := min(pos+count, x+w)
		pos += count
		if hi <= lo {
			return
		}
		n := hi - lo
		masked := byte((int(ch-63)&mask) + 63)
		if n >= 4 {
			fmt.Fprintf(&sb, "!%d%c", n, masked)
		} else {
			for i := 0; i < n; i++ {
				sb.WriteByte(masked)
			}
		}
	}

	for i := 0; i < len(band); i++ {
		ch := band[i]
		switch {
		case ch == '$':
			sb.WriteByte('$')
			pos = 0
		case ch == '#':
			// Color definition or selection; copy through unchanged.
			j := i + 1
			for j < len(band) && (band[j] == ';' || band[j] >= '0' && band[j] <= '9') {
				j++
			}
			sb.WriteString(band[i:j])
			i = j - 1
		case ch == '!':
			j := i + 1
			for j < len(band) && band[j] >= '0' && band[j] <= '9' {
				j++
			}
			count, err := strconv.Atoi(band[i+1 : j])
			if err != nil || j >= len(band) {
				continue
			}
			emit(band[j], count)
			i = j
		case ch >= '?' && ch <= '~':
			emit(ch, 1)
		}
	}
	return sb.String()
}
