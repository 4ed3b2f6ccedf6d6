package graphics

import "testing"

func TestFitToBoxNoScaling(t *testing.T) {
	// A 10x5 graphic in a 20x10 area is left alone.
	cols, rows, bbox := fitToBox(10, 0.5, 20, 10, BBox{})
	if cols != 10 || rows != 5 {
		t.Errorf("size = (%d, %d), want (10, 5)", cols, rows)
	}
	if bbox.Any() {
		t.Errorf("unexpected crop: %+v", bbox)
	}
}

func TestFitToBoxScalesDownWidth(t *testing.T) {
	// Too wide: 40 cols into 20. Never upscaled back.
	cols, rows, _ := fitToBox(40, 0.25, 20, 10, BBox{})
	if cols != 20 {
		t.Errorf("cols = %d, want 20", cols)
	}
	if rows != 5 {
		t.Errorf("rows = %d, want 5", rows)
	}
}

func TestFitToBoxScalesDownHeight(t *testing.T) {
	// Height is the constrained axis: 10 cols * 2.0 aspect = 20 rows
	// into 5 visible rows.
	cols, rows, _ := fitToBox(10, 2.0, 40, 5, BBox{})
	if rows > 5 {
		t.Errorf("rows = %d, exceeds available height", rows)
	}
	if cols != 2 {
		t.Errorf("cols = %d, want 2", cols)
	}
}

func TestFitToBoxCropMargins(t *testing.T) {
	// The graphic fits the total area exactly but 3 rows are scrolled
	// off the top: the crop box carries them through.
	cols, rows, bbox := fitToBox(10, 1.0, 10, 7, BBox{Top: 3})
	if cols != 10 || rows != 10 {
		t.Errorf("size = (%d, %d), want (10, 10)", cols, rows)
	}
	if bbox.Top != 3 || bbox.Bottom != 0 || bbox.Left != 0 || bbox.Right != 0 {
		t.Errorf("bbox = %+v, want {Top:3}", bbox)
	}
}

func TestFitToBoxOverflowBecomesCrop(t *testing.T) {
	// Wider than the total area even after scaling floors: the excess
	// shows up as a right crop.
	cols, rows, bbox := fitToBox(10, 1.0, 8, 20, BBox{})
	if cols != 8 {
		t.Errorf("cols = %d, want 8", cols)
	}
	if rows != 8 {
		t.Errorf("rows = %d, want 8", rows)
	}
	if bbox.Right != 0 {
		t.Errorf("bbox = %+v, want no crop after scaling", bbox)
	}
}

func TestFitToBoxNeverUpscales(t *testing.T) {
	cols, rows, _ := fitToBox(4, 1.0, 100, 100, BBox{})
	if cols != 4 || rows != 4 {
		t.Errorf("size = (%d, %d), want (4, 4)", cols, rows)
	}
}

func TestBBoxAny(t *testing.T) {
	if (BBox{}).Any() {
		t.Error("zero box reports cropping")
	}
	if !(BBox{Left: 1}).Any() {
		t.Error("cropped box reports no cropping")
	}
}
