// Package ft provides the styled-text fragment model shared by the
// conversion and graphics layers.
//
// A Fragment pairs a style string with a run of text. Style strings are
// space-separated tokens; most are opaque to this package, but two are
// significant:
//
//   - ZeroWidthEscape marks a fragment whose text is a raw terminal escape
//     sequence occupying no screen cells.
//   - Graphic markers of the form "[Graphic_<key>]" record that a graphic
//     with the given size-association key begins at the fragment's position.
//
// Converters producing the "ft" format emit []Line values; the graphics
// processor scans them to locate embedded graphics.
package ft

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// ZeroWidthEscape is the style token marking raw escape-sequence fragments.
// Text in such fragments is written to the terminal but occupies no cells.
const ZeroWidthEscape = "[ZeroWidthEscape]"

// graphicPrefix introduces a graphic marker style token.
const graphicPrefix = "[Graphic_"

// Fragment is a run of text with an associated style string.
type Fragment struct {
	Style string
	Text  string
}

// Line is a sequence of fragments forming one visual row.
type Line []Fragment

// Graphic builds the marker style token for a size-association key.
func Graphic(key string) string {
	return graphicPrefix + key + "]"
}

// GraphicKey extracts the size-association key from a style token, if the
// token is a graphic marker.
func GraphicKey(token string) (string, bool) {
	if strings.HasPrefix(token, graphicPrefix) && strings.HasSuffix(token, "]") {
		return token[len(graphicPrefix) : len(token)-1], true
	}
	return "", false
}

// IsZeroWidth reports whether a style string contains the zero-width token.
func IsZeroWidth(style string) bool {
	for _, tok := range strings.Fields(style) {
		if tok == ZeroWidthEscape {
			return true
		}
	}
	return false
}

// SplitLines splits fragments on newline characters into visual lines.
// Newlines inside zero-width fragments are preserved verbatim: escape
// payloads are opaque and must not be broken apart.
func SplitLines(frags []Fragment) []Line {
	lines := []Line{{}}
	for _, frag := range frags {
		if IsZeroWidth(frag.Style) {
			lines[len(lines)-1] = append(lines[len(lines)-1], frag)
			continue
		}
		parts := strings.Split(frag.Text, "\n")
		for i, part := range parts {
			if i > 0 {
				lines = append(lines, Line{})
			}
			if part != "" {
				lines[len(lines)-1] = append(lines[len(lines)-1], Fragment{Style: frag.Style, Text: part})
			}
		}
	}
	return lines
}

// Width returns the number of terminal cells the line occupies.
// Zero-width fragments contribute nothing.
func Width(line Line) int {
	w := 0
	for _, frag := range line {
		if IsZeroWidth(frag.Style) {
			continue
		}
		w += runewidth.StringWidth(frag.Text)
	}
	return w
}

// Text concatenates the visible text of lines, joined by newlines.
// Zero-width escape fragments are skipped.
func Text(lines []Line) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, frag := range line {
			if IsZeroWidth(frag.Style) {
				continue
			}
			b.WriteString(frag.Text)
		}
	}
	return b.String()
}

// Raw concatenates all fragment text of lines, including escape payloads,
// joined by newlines. This is what actually gets written to the terminal.
func Raw(lines []Line) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, frag := range line {
			b.WriteString(frag.Text)
		}
	}
	return b.String()
}
