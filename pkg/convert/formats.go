package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/disintegration/imaging"
	"github.com/mattn/go-sixel"

	"github.com/joouha/termview/pkg/errors"
	"github.com/joouha/termview/pkg/ft"
)

const svgTimeout = 30 * time.Second

// RegisterBuiltins installs the stock converter set: raster decode and
// encode, base64 wrapping, sixel and half-block ANSI rendering, markdown
// rendering, the ANSI/fragment bridge, and SVG rasterization when
// rsvg-convert is on PATH.
func RegisterBuiltins(r *Registry) {
	r.Register([]string{"png", "jpeg", "gif"}, "image", decodeImage)
	r.Register([]string{"image"}, "png", encodePNG)
	r.Register([]string{"png"}, "base64-png", encodeBase64)
	r.Register([]string{"base64-png"}, "png", decodeBase64)
	r.Register([]string{"image"}, "sixel", encodeSixel, WithWeight(2))
	r.Register([]string{"image"}, "ansi", renderHalfBlocks, WithWeight(3))
	r.Register([]string{"markdown"}, "ansi", renderMarkdown)
	r.Register([]string{"ansi"}, "ft", ansiToFragments)
	r.Register([]string{"ft"}, "ansi", fragmentsToANSI)
	r.Register([]string{"svg"}, "png", rasterizeSVG, WithFilter(haveRsvgConvert))
}

func rawBytes(d *Datum) ([]byte, error) {
	if b, ok := d.Data().Bytes(); ok {
		return b, nil
	}
	if s, ok := d.Data().Text(); ok {
		return []byte(s), nil
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "datum holds no byte content")
}

func decodeImage(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
	raw, err := rawBytes(d)
	if err != nil {
		return Payload{}, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Payload{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decoding image")
	}
	return Image(img), nil
}

func encodePNG(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
	img, ok := d.Data().Image()
	if !ok {
		return Payload{}, errors.New(errors.ErrCodeInvalidInput, "datum holds no image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Payload{}, errors.Wrap(errors.ErrCodeConversionFailed, err, "encoding png")
	}
	return Bytes(buf.Bytes()), nil
}

func encodeBase64(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
	raw, err := rawBytes(d)
	if err != nil {
		return Payload{}, err
	}
	return Text(base64.StdEncoding.EncodeToString(raw)), nil
}

func decodeBase64(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
	s, ok := d.Data().Text()
	if !ok {
		if b, bok := d.Data().Bytes(); bok {
			s = string(b)
		} else {
			return Payload{}, errors.New(errors.ErrCodeInvalidInput, "datum holds no text content")
		}
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Payload{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decoding base64")
	}
	return Bytes(raw), nil
}

// sizeInPixels maps a requested cell extent to pixels using the registry's
// cell metrics. Zero cells means "keep the source dimension".
func sizeInPixels(r *Registry, img image.Image, cols, rows int) (int, int) {
	cellW, cellH := r.CellPixelSize()
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if cols > 0 {
		w = cols * cellW
	}
	if rows > 0 {
		h = rows * cellH
	}
	return w, h
}

func encodeSixel(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
	img, ok := d.Data().Image()
	if !ok {
		return Payload{}, errors.New(errors.ErrCodeInvalidInput, "datum holds no image")
	}
	if cols > 0 || rows > 0 {
		w, h := sizeInPixels(d.reg, img, cols, rows)
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := sixel.NewEncoder(&buf).Encode(img); err != nil {
		return Payload{}, errors.Wrap(errors.ErrCodeConversionFailed, err, "encoding sixel")
	}
	return Text(buf.String()), nil
}

// renderHalfBlocks draws an image as upper-half-block characters, two
// pixels per cell vertically, using 24-bit SGR colors. This is the lowest
// fidelity raster path and carries the highest weight.
func renderHalfBlocks(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
	img, ok := d.Data().Image()
	if !ok {
		return Payload{}, errors.New(errors.ErrCodeInvalidInput, "datum holds no image")
	}
	b := img.Bounds()
	targetW := b.Dx()
	if cols > 0 && cols < targetW {
		targetW = cols
	}
	if targetW < 1 {
		targetW = 1
	}
	targetH := 0
	if rows > 0 {
		targetH = rows * 2
	}
	nrgba := imaging.Resize(img, targetW, targetH, imaging.Lanczos)

	var sb strings.Builder
	bounds := nrgba.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 2 {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			tr, tg, tb, _ := nrgba.At(x, y).RGBA()
			br, bgc, bb := tr, tg, tb
			if y+1 < bounds.Max.Y {
				br, bgc, bb, _ = nrgba.At(x, y+1).RGBA()
			}
			fmt.Fprintf(&sb, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm▀",
				tr>>8, tg>>8, tb>>8, br>>8, bgc>>8, bb>>8)
		}
		sb.WriteString("\x1b[0m\n")
	}
	return Text(sb.String()), nil
}

func renderMarkdown(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
	src, ok := d.Data().Text()
	if !ok {
		raw, err := rawBytes(d)
		if err != nil {
			return Payload{}, err
		}
		src = string(raw)
	}
	width := cols
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return Payload{}, errors.Wrap(errors.ErrCodeConversionFailed, err, "creating markdown renderer")
	}
	out, err := renderer.Render(src)
	if err != nil {
		return Payload{}, errors.Wrap(errors.ErrCodeConversionFailed, err, "rendering markdown")
	}
	return Text(out), nil
}

// sgrState tracks the style accumulated across SGR sequences while parsing
// ANSI text into styled fragments.
type sgrState struct {
	bold, italic, underline bool
	fg, bg                  string
}

func (s sgrState) style() string {
	var parts []string
	if s.bold {
		parts = append(parts, "bold")
	}
	if s.italic {
		parts = append(parts, "italic")
	}
	if s.underline {
		parts = append(parts, "underline")
	}
	if s.fg != "" {
		parts = append(parts, "fg:"+s.fg)
	}
	if s.bg != "" {
		parts = append(parts, "bg:"+s.bg)
	}
	return strings.Join(parts, " ")
}

var sgrBaseColors = [...]string{
	"black", "red", "green", "yellow", "blue", "magenta", "cyan", "white",
}

// apply consumes one semicolon-separated SGR parameter list.
func (s *sgrState) apply(params []string) {
	for i := 0; i < len(params); i++ {
		n, err := strconv.Atoi(params[i])
		if err != nil {
			continue
		}
		switch {
		case n == 0:
			*s = sgrState{}
		case n == 1:
			s.bold = true
		case n == 3:
			s.italic = true
		case n == 4:
			s.underline = true
		case n == 22:
			s.bold = false
		case n == 23:
			s.italic = false
		case n == 24:
			s.underline = false
		case n >= 30 && n <= 37:
			s.fg = sgrBaseColors[n-30]
		case n == 39:
			s.fg = ""
		case n >= 40 && n <= 47:
			s.bg = sgrBaseColors[n-40]
		case n == 49:
			s.bg = ""
		case n >= 90 && n <= 97:
			s.fg = "bright" + sgrBaseColors[n-90]
		case n >= 100 && n <= 107:
			s.bg = "bright" + sgrBaseColors[n-100]
		case n == 38 || n == 48:
			color, skip := parseExtendedColor(params[i+1:])
			if color != "" {
				if n == 38 {
					s.fg = color
				} else {
					s.bg = color
				}
			}
			i += skip
		}
	}
}

// parseExtendedColor handles the 38/48 sub-parameters: "2;r;g;b" for
// truecolor, "5;n" for the 256-color palette (rendered as a hex
// approximation is out of scope; such colors are dropped).
func parseExtendedColor(rest []string) (color string, consumed int) {
	if len(rest) == 0 {
		return "", 0
	}
	switch rest[0] {
	case "2":
		if len(rest) < 4 {
			return "", len(rest)
		}
		r, _ := strconv.Atoi(rest[1])
		g, _ := strconv.Atoi(rest[2])
		b, _ := strconv.Atoi(rest[3])
		return fmt.Sprintf("#%02x%02x%02x", r, g, b), 4
	case "5":
		if len(rest) < 2 {
			return "", len(rest)
		}
		return "", 2
	default:
		return "", 1
	}
}

// ansiToFragments parses ANSI text into styled fragments, interpreting SGR
// sequences and discarding any other escape sequences.
func ansiToFragments(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
	src, ok := d.Data().Text()
	if !ok {
		raw, err := rawBytes(d)
		if err != nil {
			return Payload{}, err
		}
		src = string(raw)
	}

	var frags []ft.Fragment
	var state sgrState
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			frags = append(frags, ft.Fragment{Style: state.style(), Text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != 0x1b {
			text.WriteByte(c)
			continue
		}
		if i+1 < len(src) && src[i+1] == '[' {
			end := i + 2
			for end < len(src) && (src[end] < 0x40 || src[end] > 0x7e) {
				end++
			}
			if end < len(src) && src[end] == 'm' {
				flush()
				state.apply(strings.Split(src[i+2:end], ";"))
			}
			i = end
			continue
		}
		// Unrecognized escape; drop the introducer only.
	}
	flush()

	return Lines(ft.SplitLines(frags)), nil
}

var styleSGR = map[string]string{
	"bold":      "1",
	"italic":    "3",
	"underline": "4",
}

// sgrForStyle translates a fragment style string back into SGR parameters.
func sgrForStyle(style string) string {
	var params []string
	for _, token := range strings.Fields(style) {
		if code, ok := styleSGR[token]; ok {
			params = append(params, code)
			continue
		}
		if color, found := strings.CutPrefix(token, "fg:"); found {
			params = append(params, colorSGR(color, 38, 30)...)
		} else if color, found := strings.CutPrefix(token, "bg:"); found {
			params = append(params, colorSGR(color, 48, 40)...)
		}
	}
	return strings.Join(params, ";")
}

func colorSGR(color string, extended, base int) []string {
	if hexStr, found := strings.CutPrefix(color, "#"); found && len(hexStr) == 6 {
		v, err := strconv.ParseUint(hexStr, 16, 32)
		if err == nil {
			return []string{
				strconv.Itoa(extended), "2",
				strconv.Itoa(int(v >> 16 & 0xff)),
				strconv.Itoa(int(v >> 8 & 0xff)),
				strconv.Itoa(int(v & 0xff)),
			}
		}
	}
	name, bright := strings.CutPrefix(color, "bright")
	for i, c := range sgrBaseColors {
		if c == name {
			n := base + i
			if bright {
				n += 60
			}
			return []string{strconv.Itoa(n)}
		}
	}
	if color == "darkred" {
		return []string{strconv.Itoa(base + 1)}
	}
	return nil
}

// fragmentsToANSI renders styled lines back to ANSI text. Zero-width
// fragments are omitted from the output.
func fragmentsToANSI(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
	lines, ok := d.Data().Lines()
	if !ok {
		return Payload{}, errors.New(errors.ErrCodeInvalidInput, "datum holds no styled lines")
	}
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		for _, frag := range line {
			if ft.IsZeroWidth(frag.Style) {
				continue
			}
			params := sgrForStyle(frag.Style)
			if params != "" {
				sb.WriteString("\x1b[" + params + "m")
			}
			sb.WriteString(frag.Text)
			if params != "" {
				sb.WriteString("\x1b[0m")
			}
		}
	}
	return Text(sb.String()), nil
}

func haveRsvgConvert() bool {
	_, err := exec.LookPath("rsvg-convert")
	return err == nil
}

// rasterizeSVG shells out to rsvg-convert, which handles the full SVG
// feature set far better than any pure Go renderer.
func rasterizeSVG(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
	raw, err := rawBytes(d)
	if err != nil {
		return Payload{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, svgTimeout)
	defer cancel()

	args := []string{"--format", "png"}
	if cols > 0 {
		cellW, _ := d.reg.CellPixelSize()
		args = append(args, "--width", strconv.Itoa(cols*cellW), "--keep-aspect-ratio")
	}
	cmd := exec.CommandContext(cctx, "rsvg-convert", args...)
	cmd.Stdin = bytes.NewReader(raw)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Payload{}, errors.Wrap(errors.ErrCodeConversionFailed, err,
			"rsvg-convert: %s", strings.TrimSpace(stderr.String()))
	}
	return Bytes(out.Bytes()), nil
}
