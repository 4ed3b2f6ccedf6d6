package graphics

import (
	"context"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/joouha/termview/pkg/convert"
	"github.com/joouha/termview/pkg/ft"
)

func testImagePx(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 5), B: 99, A: 255})
		}
	}
	return img
}

func kittyTerm() Terminal {
	return Terminal{Kitty: true, CellWidth: 8, CellHeight: 16}
}

func newKittyControl(t *testing.T) (*KittyControl, *fakeOutput) {
	t.Helper()
	reg := convert.NewRegistry(convert.WithCellPixelSize(8, 16))
	convert.RegisterBuiltins(reg)
	out := &fakeOutput{}
	d := reg.NewDatum(convert.Image(testImagePx(20, 20)), "image")
	return NewKittyControl(reg, d, kittyTerm(), out), out
}

func TestKittyCmdFormat(t *testing.T) {
	cmd := kittyCmd("AAAA", map[string]any{"a": "t", "i": 3, "m": 0})
	if cmd != "\x1b_Ga=t,i=3,m=0;AAAA\x1b\\" {
		t.Errorf("cmd = %q", cmd)
	}
	if got := kittyCmd("", map[string]any{"a": "d"}); got != "\x1b_Ga=d\x1b\\" {
		t.Errorf("cmd without chunk = %q", got)
	}
}

func TestKittyPadsToCellMultiple(t *testing.T) {
	c, _ := newKittyControl(t)
	padded := c.padDatum(context.Background())

	px, py, err := padded.PixelSize(context.Background())
	if err != nil {
		t.Fatalf("PixelSize: %v", err)
	}
	// 20x20 at 8x16 cells pads up to 24x32.
	if px != 24 || py != 32 {
		t.Errorf("padded size = (%d, %d), want (24, 32)", px, py)
	}
}

func TestKittyLoadTransmitsOnce(t *testing.T) {
	c, out := newKittyControl(t)
	ctx := context.Background()

	lines := c.RenderedLines(ctx, 10, 5)
	if len(lines) == 0 {
		t.Fatal("no rendered lines")
	}
	written := out.sb.String()
	if !strings.Contains(written, "a=t") || !strings.Contains(written, "f=100") {
		t.Errorf("transmit command missing: %q", written)
	}
	if c.imageID == 0 {
		t.Error("no image id allocated")
	}

	// A second render at another size must not retransmit.
	before := out.sb.Len()
	c.RenderedLines(ctx, 8, 4)
	after := out.sb.String()[before:]
	if strings.Contains(after, "a=t") {
		t.Error("image retransmitted on re-render")
	}
}

func TestKittyPlacementInRenderedLines(t *testing.T) {
	c, _ := newKittyControl(t)

	raw := ft.Raw(c.RenderedLines(context.Background(), 10, 5))
	if !strings.Contains(raw, "a=p") {
		t.Errorf("placement command missing: %q", raw)
	}
	if !strings.Contains(raw, "\x1b[s") || !strings.Contains(raw, "\x1b[u") {
		t.Errorf("cursor save/restore missing: %q", raw)
	}
}

func TestKittyHideAndClose(t *testing.T) {
	c, out := newKittyControl(t)
	c.RenderedLines(context.Background(), 10, 5)

	before := out.sb.Len()
	c.Hide()
	hidden := out.sb.String()[before:]
	if !strings.Contains(hidden, "a=d") || !strings.Contains(hidden, "d=i") {
		t.Errorf("hide command wrong: %q", hidden)
	}

	before = out.sb.Len()
	c.Close()
	closed := out.sb.String()[before:]
	if !strings.Contains(closed, "a=D") || !strings.Contains(closed, "d=I") {
		t.Errorf("delete command wrong: %q", closed)
	}
}

func TestKittyHideBeforeLoadIsNoop(t *testing.T) {
	c, out := newKittyControl(t)
	c.Hide()
	if out.sb.Len() != 0 {
		t.Errorf("hide before load wrote %q", out.sb.String())
	}
}

func TestItermRendersInlineImage(t *testing.T) {
	reg := convert.NewRegistry(convert.WithCellPixelSize(8, 16))
	convert.RegisterBuiltins(reg)
	d := reg.NewDatum(convert.Image(testImagePx(16, 16)), "image")
	c := NewItermControl(reg, d, Terminal{Iterm: true, CellWidth: 8, CellHeight: 16})

	raw := ft.Raw(c.RenderedLines(context.Background(), 10, 5))
	if !strings.Contains(raw, "\x1b]1337;File=inline=1;width=") {
		t.Errorf("iTerm command missing: %q", raw)
	}
	if !strings.Contains(raw, "\a") {
		t.Errorf("OSC terminator missing: %q", raw)
	}
}

func TestSixelRendersStream(t *testing.T) {
	reg := convert.NewRegistry(convert.WithCellPixelSize(8, 16))
	convert.RegisterBuiltins(reg)
	d := reg.NewDatum(convert.Image(testImagePx(16, 16)), "image")
	c := NewSixelControl(d, sixelTerm())

	raw := ft.Raw(c.RenderedLines(context.Background(), 10, 5))
	if !strings.Contains(raw, "\x1bP") {
		t.Errorf("sixel stream missing: %q", raw)
	}
}
