package graphics

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/joouha/termview/pkg/convert"
	"github.com/joouha/termview/pkg/ft"
)

// ItermControl draws graphics with the iTerm OSC 1337 inline image
// protocol. Like sixel it is stateless, but the payload is a base64 PNG,
// so cropping means decoding, cutting the image and re-encoding.
type ItermControl struct {
	controlBase
	reg *convert.Registry
}

func NewItermControl(reg *convert.Registry, d *convert.Datum, term Terminal) *ItermControl {
	return &ItermControl{controlBase: newControlBase(d, term), reg: reg}
}

func (c *ItermControl) RenderedLines(ctx context.Context, visibleWidth, visibleHeight int) []ft.Line {
	return c.cachedRender(c.renderKeyFor(visibleWidth), func() []ft.Line {
		dCols, dAspect, err := c.datum.CellSize(ctx)
		if err != nil {
			return nil
		}
		bbox := c.getBBox()
		cols, rows, cropBox := fitToBox(dCols, dAspect, visibleWidth, visibleHeight, bbox)

		if rows-cropBox.Top-cropBox.Bottom <= 0 || cols-cropBox.Left-cropBox.Right <= 0 {
			return nil
		}

		b64 := c.convertData(ctx, cols, rows, cropBox)
		cmd := fmt.Sprintf("\x1b]1337;File=inline=1;width=%d:%s\a", cols, b64)
		return blockLines(visibleWidth, visibleHeight, c.term.WrapPassthrough(cmd))
	})
}

// convertData produces the base64 PNG payload, cropping via a decode,
// thumbnail and re-encode cycle when a crop box is set.
func (c *ItermControl) convertData(ctx context.Context, cols, rows int, bbox BBox) string {
	datum := c.datum

	if bbox.Any() {
		if p, err := datum.Convert(ctx, "image", cols, rows); err == nil {
			if img, ok := p.Image(); ok {
				cw, ch := c.term.CellWidth, c.term.CellHeight
				// Downscale to the target region first so the crop
				// coordinates are exact; never upscale.
				img = imaging.Fit(img, cols*cw, rows*ch, imaging.Lanczos)

				left := bbox.Left * cw
				top := bbox.Top * ch
				right := (cols - bbox.Right) * cw
				bottom := (rows - bbox.Bottom) * ch
				if top > bottom {
					top, bottom = bottom, top
				}
				cropped := imaging.Crop(img, image.Rect(left, top, right, bottom))

				var buf bytes.Buffer
				if err := png.Encode(&buf, cropped); err == nil {
					datum = c.reg.NewDatum(convert.Bytes(buf.Bytes()), "png")
				}
			}
		}
	}

	var b64 string
	if rest, found := strings.CutPrefix(datum.Format(), "base64-"); found && rest != "" {
		b64 = datum.Data().AsText()
	} else if p, err := datum.Convert(ctx, "base64-png", cols, rows); err == nil {
		b64 = p.AsText()
	}
	return strings.TrimSpace(strings.ReplaceAll(b64, "\n", ""))
}

func (c *ItermControl) Hide()  {}
func (c *ItermControl) Close() {}

var _ Control = (*ItermControl)(nil)
var _ Control = (*SixelControl)(nil)
