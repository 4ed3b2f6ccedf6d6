package graphics

import (
	"strings"
	"testing"
)

// A minimal two-band stream: 8px wide, 12px tall, one color.
const testSixel = "\x1bPq\"1;1;8;12#0;2;100;0;0#0!8~-!8~\x1b\\"

func TestCropSixelRewritesRasterAttributes(t *testing.T) {
	out := CropSixel(testSixel, 0, 0, 4, 6)
	if !strings.Contains(out, "\"1;1;4;6") {
		t.Errorf("raster attributes not rewritten: %q", out)
	}
	if !strings.HasPrefix(out, "\x1bPq") || !strings.HasSuffix(out, "\x1b\\") {
		t.Errorf("stream framing damaged: %q", out)
	}
}

func TestCropSixelHorizontal(t *testing.T) {
	out := CropSixel(testSixel, 2, 0, 4, 12)
	// An 8-wide run clipped to [2, 6) leaves 4 columns.
	if !strings.Contains(out, "!4~") {
		t.Errorf("run not clipped to 4 columns: %q", out)
	}
}

func TestCropSixelDropsBandsOutsideRegion(t *testing.T) {
	out := CropSixel(testSixel, 0, 6, 8, 6)
	// Only the second band survives, so no band separator remains.
	if strings.Contains(out, "-") {
		t.Errorf("expected a single band: %q", out)
	}
	if !strings.Contains(out, "!8~") {
		t.Errorf("kept band content missing: %q", out)
	}
}

func TestCropSixelMasksPartialBand(t *testing.T) {
	// Keep only the top 3 pixel rows: bits 3-5 of the first band must be
	// cleared ('~' is 63+0b111111; masked to 0b000111 = 'F').
	out := CropSixel(testSixel, 0, 0, 8, 3)
	if !strings.Contains(out, "F") {
		t.Errorf("partial band not masked: %q", out)
	}
	if strings.Contains(out, "~") {
		t.Errorf("unmasked pixels leaked through: %q", out)
	}
}

func TestCropSixelPreservesColorDefinitions(t *testing.T) {
	out := CropSixel(testSixel, 0, 0, 4, 6)
	if !strings.Contains(out, "#0;2;100;0;0") {
		t.Errorf("color definition lost: %q", out)
	}
}

func TestCropSixelNoSixelPassthrough(t *testing.T) {
	if out := CropSixel("not a sixel stream", 0, 0, 1, 1); out != "not a sixel stream" {
		t.Errorf("non-sixel input mangled: %q", out)
	}
}
