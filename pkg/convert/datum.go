package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"runtime"
	"strings"
	"sync"
	"weak"

	"github.com/google/uuid"

	"github.com/joouha/termview/pkg/cache"
	"github.com/joouha/termview/pkg/ft"
)

// Size is an on-screen extent in terminal cells.
type Size struct {
	Rows int
	Cols int
}

// convKey keys a datum's conversion cache.
type convKey struct {
	to         string
	cols, rows int
	fg, bg     string
}

// Datum is the content-addressable wrapper around one piece of displayable
// data plus its declared format, pixel size and color metadata.
//
// Datums are deduplicated process-wide: constructing one from bit-identical
// content with identical declared metadata returns the existing instance, so
// unrelated call sites sharing the same bytes reuse cached conversions. The
// dedup table holds weak pointers, so it never keeps a datum alive; when the
// last strong reference is dropped, a cleanup purges the dedup slot and any
// size associations for the content hash.
//
// Content is immutable once wrapped: the conversion cache and the memoized
// pixel/cell sizes are never invalidated for the datum's lifetime.
type Datum struct {
	reg    *Registry
	data   Payload
	format string
	px, py int // declared pixel size; 0 = unknown
	fg, bg string
	path   string
	source weak.Pointer[Datum] // datum this one was derived from; zero for originals

	hash string

	mu          sync.Mutex
	conversions map[convKey]Payload
	sizeDone    bool
	cellDone    bool
	cellCols    int
	cellAspect  float64
}

// DatumOption configures datum construction.
type DatumOption func(*Datum)

// WithPixelSize declares the content's pixel dimensions. Either value may
// be 0 (unknown); a missing dimension is inferred from the intrinsic aspect
// ratio on first pixel-size query.
func WithPixelSize(px, py int) DatumOption {
	return func(d *Datum) { d.px, d.py = px, py }
}

// WithColors declares foreground and background color hints carried into
// conversions.
func WithColors(fg, bg string) DatumOption {
	return func(d *Datum) { d.fg, d.bg = fg, bg }
}

// WithPath records the source file path, made available to converters that
// shell out.
func WithPath(path string) DatumOption {
	return func(d *Datum) { d.path = path }
}

// withSource links a derived datum to the stage it was produced from.
// Internal: set by the conversion engine for intermediate outputs.
func withSource(src *Datum) DatumOption {
	return func(d *Datum) { d.source = weak.Make(src) }
}

// NewDatum wraps content in a Datum, deduplicating by content identity.
// The returned datum may be a previously-created instance if identical
// content with identical metadata was wrapped before and is still alive.
func (r *Registry) NewDatum(data Payload, format string, opts ...DatumOption) *Datum {
	d := &Datum{
		reg:    r,
		data:   data,
		format: format,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.hash = cache.Hash(data.canonicalBytes())

	key := dedupKey{hash: d.hash, format: format, px: d.px, py: d.py, fg: d.fg, bg: d.bg}

	r.dedupMu.Lock()
	if wp, ok := r.dedup[key]; ok {
		if existing := wp.Value(); existing != nil {
			r.dedupMu.Unlock()
			return existing
		}
	}
	d.conversions = map[convKey]Payload{}
	r.dedup[key] = weak.Make(d)
	r.dedupMu.Unlock()

	runtime.AddCleanup(d, r.cleanupDatum, key)
	return d
}

// Data returns the wrapped payload.
func (d *Datum) Data() Payload { return d.data }

// Format returns the declared format tag.
func (d *Datum) Format() string { return d.format }

// Hash returns the content hash identifying the datum's data.
func (d *Datum) Hash() string { return d.hash }

// Path returns the declared source file path, if any.
func (d *Datum) Path() string { return d.path }

// Colors returns the declared foreground and background color hints.
func (d *Datum) Colors() (fg, bg string) { return d.fg, d.bg }

// Root resolves the chain of source references to the original, non-derived
// datum. If an ancestor has been garbage collected the walk stops at the
// last reachable datum.
func (d *Datum) Root() *Datum {
	root := d
	for {
		src := root.source.Value()
		if src == nil || src == root {
			return root
		}
		root = src
	}
}

func (d *Datum) String() string {
	return fmt.Sprintf("Datum(format=%q)", d.format)
}

// cachedConversion returns a previously-computed output for a key.
func (d *Datum) cachedConversion(key convKey) (Payload, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.conversions[key]
	return p, ok
}

// storeConversion records an output. Outputs are deterministic for
// identical inputs, so concurrent writers for the same key are harmless
// (last writer wins with an equal value).
func (d *Datum) storeConversion(key convKey, p Payload) {
	d.mu.Lock()
	d.conversions[key] = p
	d.mu.Unlock()
}

// errorOutput is the declared fallback substituted when conversion fails:
// a plain marker for text-like targets, a styled fragment for the "ft"
// target, a generic marker otherwise. Conversion failures degrade to these
// values; they are never raised to the caller.
func errorOutput(to string) Payload {
	switch to {
	case "ansi":
		return Text("(Format Conversion Error)")
	case "ft":
		return Lines([]ft.Line{{{Style: "fg:white bg:darkred", Text: "(Format Conversion Error)"}}})
	default:
		return Text("(Conversion Error)")
	}
}

// ConvertAsync performs a conversion on the calling goroutine, caching the
// result. It is the true implementation Convert bridges to; converters use
// it directly for nested conversions since they already run on the
// scheduler.
//
// Failures never propagate: if no route exists, or every route fails, the
// declared error placeholder for the target format is returned.
func (d *Datum) ConvertAsync(ctx context.Context, to string, cols, rows int, fg, bg string) Payload {
	if to == d.format {
		// Identity conversion; cropping to cols/rows is deliberately not
		// performed here. Known limitation inherited from the protocol
		// contract.
		return d.data
	}

	if fg == "" {
		fg = d.fg
		if fg == "" {
			fg = d.reg.defaultFG
		}
	}
	if bg == "" {
		bg = d.bg
		if bg == "" {
			bg = d.reg.defaultBG
		}
	}

	key := convKey{to: to, cols: cols, rows: rows, fg: fg, bg: bg}
	if p, ok := d.cachedConversion(key); ok {
		return p
	}
	if p, ok := d.reg.persistentFetch(ctx, d.hash, key); ok {
		d.storeConversion(key, p)
		return p
	}

	routes := d.reg.Routes(d.format, to)
	if len(routes) == 0 {
		d.reg.logger.Error("No conversion route found", "from", d.format, "to", to)
		return errorOutput(to)
	}

	output := d.runRoutes(ctx, routes, key)
	if output.IsZero() {
		output = errorOutput(to)
	} else {
		d.reg.persistentStore(ctx, d.hash, key, output)
	}
	return output
}

// runRoutes walks candidate routes in planner order, executing each stage
// with the lowest-weight applicable converter and falling back to the next
// route when a stage fails. Every stage output is cached on this datum
// under the stage's format, so partial progress survives route failures.
func (d *Datum) runRoutes(ctx context.Context, routes []Route, key convKey) Payload {
	for _, route := range routes {
		datum := d
		var output Payload
		failed := false

		for i := 0; i+1 < len(route); i++ {
			stageA, stageB := route[i], route[i+1]
			stageKey := convKey{to: stageB, cols: key.cols, rows: key.rows, fg: key.fg, bg: key.bg}

			if cached, ok := d.cachedConversion(stageKey); ok {
				output = cached
			} else {
				output = d.runStage(ctx, datum, stageA, stageB, stageKey)
			}

			if output.IsZero() {
				d.reg.logger.Error("Conversion route failed",
					"from", d.format, "to", key.to, "route", route, "stage", stageB)
				failed = true
				break
			}

			if i+2 < len(route) {
				datum = d.reg.NewDatum(output, stageB,
					WithPixelSize(d.px, d.py),
					WithColors(key.fg, key.bg),
					WithPath(d.path),
					withSource(datum),
				)
			}
		}

		if !failed {
			return output
		}
	}
	return Payload{}
}

// runStage invokes converters for one hop in ascending weight order until
// one succeeds. Panics in converter bodies are recovered and treated as
// invocation failures.
func (d *Datum) runStage(ctx context.Context, datum *Datum, stageA, stageB string, stageKey convKey) Payload {
	for _, conv := range d.reg.applicable(stageA, stageB) {
		output, err := invoke(ctx, conv, datum, stageKey)
		if err != nil {
			d.reg.logger.Debug("Conversion step failed",
				"from", stageA, "to", stageB, "weight", conv.Weight, "err", err)
			continue
		}
		if output.IsZero() {
			continue
		}
		d.storeConversion(stageKey, output)
		return output
	}
	d.reg.logger.Warn("An error occurred during format conversion", "from", stageA, "to", stageB)
	return Payload{}
}

// invoke calls a converter, converting panics into errors.
func invoke(ctx context.Context, conv Converter, datum *Datum, key convKey) (out Payload, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = Payload{}
			err = fmt.Errorf("converter panic: %v", rec)
		}
	}()
	return conv.Func(ctx, datum, key.cols, key.rows, key.fg, key.bg)
}

// Convert converts the datum's data to another format, blocking until the
// conversion completes on the scheduler. Conversion failures degrade to the
// target's error placeholder; the returned error is non-nil only for
// context cancellation or a reentrant call from the scheduler's own
// context.
func (d *Datum) Convert(ctx context.Context, to string, cols, rows int) (Payload, error) {
	return submit(d.reg, ctx, func(sctx context.Context) Payload {
		return d.ConvertAsync(sctx, to, cols, rows, "", "")
	})
}

// PixelSizeAsync returns the content's dimensions in pixels (0 for a
// dimension that cannot be determined). Declared dimensions win; otherwise
// the content is probed, converting to PNG first if the probe cannot read
// the native format, and a missing dimension is inferred from the intrinsic
// aspect ratio. The result is memoized.
func (d *Datum) PixelSizeAsync(ctx context.Context) (int, int) {
	d.mu.Lock()
	if d.sizeDone {
		px, py := d.px, d.py
		d.mu.Unlock()
		return px, py
	}
	d.mu.Unlock()

	px, py := d.probePixelSize(ctx)

	d.mu.Lock()
	if !d.sizeDone {
		d.px, d.py = px, py
		d.sizeDone = true
	}
	px, py = d.px, d.py
	d.mu.Unlock()
	return px, py
}

func (d *Datum) probePixelSize(ctx context.Context) (int, int) {
	px, py := d.px, d.py
	data := d.data
	format := d.format

	for px == 0 || py == 0 {
		// ANSI art has no meaningful pixel size; don't bother probing.
		if format == "ansi" {
			break
		}

		if img, ok := data.Image(); ok {
			b := img.Bounds()
			px, py = b.Dx(), b.Dy()
			break
		}

		var raw []byte
		if rest, found := strings.CutPrefix(format, "base64-"); found {
			if b, ok := d.ConvertAsync(ctx, rest, 0, 0, "", "").Bytes(); ok {
				raw = b
			}
		} else if s, ok := data.Text(); ok {
			raw = []byte(s)
		} else if b, ok := data.Bytes(); ok {
			raw = b
		}

		pxCalc, pyCalc := -1, -1
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(raw)); err == nil {
			pxCalc, pyCalc = cfg.Width, cfg.Height
		}

		if format != "png" && pxCalc <= 0 && pyCalc <= 0 && len(d.reg.Routes(format, "png")) > 0 {
			// Probe failed on the native format; try again via PNG.
			converted := d.ConvertAsync(ctx, "png", 0, 0, "", "")
			if b, ok := converted.Bytes(); ok {
				data = Bytes(b)
				format = "png"
				continue
			}
			break
		}

		if px == 0 && pxCalc > 0 {
			if py > 0 && pyCalc > 0 {
				px = pxCalc * py / pyCalc
			} else {
				px = pxCalc
			}
		}
		if py == 0 && pyCalc > 0 {
			if px > 0 && pxCalc > 0 {
				py = pyCalc * px / pxCalc
			} else {
				py = pyCalc
			}
		}
		break
	}

	return px, py
}

// PixelSize is the blocking wrapper around PixelSizeAsync.
func (d *Datum) PixelSize(ctx context.Context) (int, int, error) {
	type dims struct{ px, py int }
	v, err := submit(d.reg, ctx, func(sctx context.Context) dims {
		px, py := d.PixelSizeAsync(sctx)
		return dims{px, py}
	})
	if err != nil {
		return 0, 0, err
	}
	return v.px, v.py, nil
}

// CellSizeAsync returns the content's width in terminal columns and its
// aspect ratio in cell units (row height over column width), computed from
// the terminal's cell pixel size. Returns (0, 0.0) when the pixel size is
// unavailable. Memoized after first computation.
func (d *Datum) CellSizeAsync(ctx context.Context) (int, float64) {
	d.mu.Lock()
	if d.cellDone {
		cols, aspect := d.cellCols, d.cellAspect
		d.mu.Unlock()
		return cols, aspect
	}
	d.mu.Unlock()

	cols, aspect := 0, 0.0
	px, py := d.PixelSizeAsync(ctx)
	if px > 0 && py > 0 {
		cellW, cellH := d.reg.CellPixelSize()
		cols = max(1, px/cellW)
		aspect = (float64(py) / float64(cellH)) / (float64(px) / float64(cellW))
	}

	d.mu.Lock()
	if !d.cellDone {
		d.cellCols, d.cellAspect = cols, aspect
		d.cellDone = true
	}
	cols, aspect = d.cellCols, d.cellAspect
	d.mu.Unlock()
	return cols, aspect
}

// CellSize is the blocking wrapper around CellSizeAsync.
func (d *Datum) CellSize(ctx context.Context) (int, float64, error) {
	type cell struct {
		cols   int
		aspect float64
	}
	v, err := submit(d.reg, ctx, func(sctx context.Context) cell {
		cols, aspect := d.CellSizeAsync(sctx)
		return cell{cols, aspect}
	})
	if err != nil {
		return 0, 0, err
	}
	return v.cols, v.aspect, nil
}

// AddSize registers the on-screen size this datum is displayed at and
// returns an opaque key. The graphics processor later recovers the datum
// and size from markers embedding the key. The association holds only a
// weak reference: it never keeps the datum alive, and it is purged when the
// datum is collected.
func (d *Datum) AddSize(size Size) string {
	key := uuid.NewString()
	d.reg.sizeMu.Lock()
	d.reg.sizes[key] = sizeEntry{ref: weak.Make(d), size: size}
	d.reg.sizeMu.Unlock()
	return key
}
