// Package graphics renders image data to terminals using the sixel, iTerm
// and kitty graphics protocols.
//
// A Control wraps a datum and knows how to produce the escape sequences
// that draw it at a given size, cropped to a bounding box when the graphic
// is partially scrolled out of view. A Processor scans rendered text for
// graphic markers and paints the referenced graphics at the marker
// positions.
package graphics

import "math"

// Point is a cell coordinate, origin top-left.
type Point struct {
	X int
	Y int
}

// BBox gives the number of cells cropped from each edge of a graphic.
type BBox struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// Any reports whether any edge is cropped.
func (b BBox) Any() bool {
	return b.Top != 0 || b.Right != 0 || b.Bottom != 0 || b.Left != 0
}

// WritePosition locates a rectangle on the screen, with an optional crop
// region applied to the content drawn inside it.
type WritePosition struct {
	XPos   int
	YPos   int
	Width  int
	Height int
	BBox   BBox
}

// fitToBox scales a graphic of the given intrinsic cell size down to fit
// the visible area plus its cropped margins, then derives the crop box at
// the scaled size. Graphics are never scaled up.
//
// The returned cols and rows are the full extent the graphic is drawn at;
// the returned box is the region of that extent hidden from view.
func fitToBox(dCols int, dAspect float64, visibleWidth, visibleHeight int, bbox BBox) (cols, rows int, out BBox) {
	dRows := float64(dCols) * dAspect

	totalW := visibleWidth + bbox.Left + bbox.Right
	totalH := visibleHeight + bbox.Top + bbox.Bottom

	ratio := 1.0
	if totalW > 0 && totalH > 0 && (dRows > float64(totalH) || dCols > totalW) {
		if dRows/float64(totalH) > float64(dCols)/float64(totalW) {
			ratio = min(1, float64(totalH)/dRows)
		} else {
			ratio = min(1, float64(totalW)/float64(dCols))
		}
	}

	cols = int(math.Floor(float64(dCols) * ratio))
	rows = int(math.Ceil(float64(cols) * dAspect))
	out = BBox{
		Top:    bbox.Top,
		Right:  max(0, cols-(totalW-bbox.Right)),
		Bottom: max(0, rows-(totalH-bbox.Bottom)),
		Left:   bbox.Left,
	}
	return cols, rows, out
}
