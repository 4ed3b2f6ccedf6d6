// Package convert implements the format-conversion graph engine.
//
// Display data moves through the system as Datum values: immutable,
// content-addressed wrappers around one piece of displayable data. A
// Registry holds converter functions between named formats; routes between
// formats are planned over the registry graph and executed stage by stage,
// with every intermediate output cached on the originating datum.
//
// # Architecture
//
// The engine consists of four cooperating parts:
//
//  1. Registry: converter storage keyed [target][source], each converter
//     carrying an applicability filter and a tie-break weight.
//  2. Route planner: reverse depth-first search producing minimum-weight
//     conversion chains, cached per (from, to) pair.
//  3. Datum store: content-hash deduplication, per-datum conversion caches,
//     memoized pixel and cell sizes.
//  4. Scheduler: a single background goroutine all conversions run on, so
//     conversion work never blocks the interactive thread.
//
// # Usage
//
//	reg := convert.NewRegistry()
//	convert.RegisterBuiltins(reg)
//	d := reg.NewDatum(convert.Bytes(pngData), "png")
//	out, err := d.Convert(ctx, "sixel", 80, 24)
package convert

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/joouha/termview/pkg/ft"
)

// Kind identifies the payload variant a Payload carries.
type Kind int

// Payload variants. Converters declare, through their format tags, which
// variants they consume and produce; the engine itself treats payloads as
// opaque.
const (
	KindZero   Kind = iota // no value (failed conversion stage)
	KindBytes              // raw bytes (encoded images, documents)
	KindText               // plain or ANSI text
	KindLines              // styled-text fragment lines ("ft" format)
	KindImage              // decoded image.Image
	KindOpaque             // renderable object owned by a plugin converter
)

// Payload is a tagged union of the data variants that flow through the
// conversion graph. The zero Payload reports KindZero and marks a failed
// stage.
type Payload struct {
	kind   Kind
	b      []byte
	s      string
	lines  []ft.Line
	img    image.Image
	opaque any
}

// Bytes wraps raw bytes.
func Bytes(b []byte) Payload { return Payload{kind: KindBytes, b: b} }

// Text wraps a text string.
func Text(s string) Payload { return Payload{kind: KindText, s: s} }

// Lines wraps styled-text lines.
func Lines(lines []ft.Line) Payload { return Payload{kind: KindLines, lines: lines} }

// Image wraps a decoded image.
func Image(img image.Image) Payload { return Payload{kind: KindImage, img: img} }

// Opaque wraps a renderable object owned by a plugin converter.
func Opaque(v any) Payload { return Payload{kind: KindOpaque, opaque: v} }

// Kind returns the variant tag.
func (p Payload) Kind() Kind { return p.kind }

// IsZero reports whether the payload carries no value.
func (p Payload) IsZero() bool { return p.kind == KindZero }

// Bytes returns the byte value, if the payload holds one.
func (p Payload) Bytes() ([]byte, bool) { return p.b, p.kind == KindBytes }

// Text returns the text value, if the payload holds one.
func (p Payload) Text() (string, bool) { return p.s, p.kind == KindText }

// Lines returns the styled-line value, if the payload holds one.
func (p Payload) Lines() ([]ft.Line, bool) { return p.lines, p.kind == KindLines }

// Image returns the decoded image, if the payload holds one.
func (p Payload) Image() (image.Image, bool) { return p.img, p.kind == KindImage }

// Opaque returns the opaque value, if the payload holds one.
func (p Payload) Opaque() (any, bool) { return p.opaque, p.kind == KindOpaque }

// AsText renders the payload as a string where possible: text directly,
// bytes via string conversion, lines via their visible text. Other variants
// return "".
func (p Payload) AsText() string {
	switch p.kind {
	case KindText:
		return p.s
	case KindBytes:
		return string(p.b)
	case KindLines:
		return ft.Text(p.lines)
	}
	return ""
}

// canonicalBytes returns the byte representation used for content hashing.
// Two payloads with equal canonical bytes are the same logical content.
// Decoded images are normalized to NRGBA pixel data so that the same image
// hashes identically regardless of its in-memory representation.
func (p Payload) canonicalBytes() []byte {
	switch p.kind {
	case KindBytes:
		return p.b
	case KindText:
		return []byte(p.s)
	case KindLines:
		var out []byte
		for _, line := range p.lines {
			for _, frag := range line {
				out = append(out, frag.Style...)
				out = append(out, 0)
				out = append(out, frag.Text...)
			}
			out = append(out, '\n')
		}
		return out
	case KindImage:
		return imaging.Clone(p.img).Pix
	case KindOpaque:
		if s, ok := p.opaque.(fmt.Stringer); ok {
			return []byte(s.String())
		}
		return []byte(fmt.Sprintf("%T:%v", p.opaque, p.opaque))
	}
	return nil
}

// String implements fmt.Stringer for logging.
func (p Payload) String() string {
	switch p.kind {
	case KindZero:
		return "Payload(zero)"
	case KindBytes:
		return fmt.Sprintf("Payload(bytes, %d)", len(p.b))
	case KindText:
		return fmt.Sprintf("Payload(text, %d)", len(p.s))
	case KindLines:
		return fmt.Sprintf("Payload(lines, %d)", len(p.lines))
	case KindImage:
		b := p.img.Bounds()
		return fmt.Sprintf("Payload(image, %dx%d)", b.Dx(), b.Dy())
	default:
		return fmt.Sprintf("Payload(opaque, %T)", p.opaque)
	}
}
