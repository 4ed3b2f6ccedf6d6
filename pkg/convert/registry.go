package convert

import (
	"context"
	"sort"
	"sync"
	"time"
	"weak"

	"github.com/charmbracelet/log"

	"github.com/joouha/termview/pkg/cache"
)

// Filter is a runtime applicability check for a converter. A converter whose
// filter returns false is skipped during both route planning and execution,
// so routes always reflect the current environment (a missing external tool,
// an unavailable optional dependency).
type Filter func() bool

// Func performs one format-to-format conversion hop. cols and rows are the
// target size in terminal cells (0 means unconstrained); fg and bg are color
// hints. Returning an error or a zero payload fails the hop.
type Func func(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error)

// Converter is one registered conversion hop.
type Converter struct {
	From   string
	To     string
	Func   Func
	Filter Filter // nil means always applicable
	Weight int    // positive tie-break cost; lower is preferred
}

// Applicable evaluates the converter's filter.
func (c Converter) Applicable() bool {
	return c.Filter == nil || c.Filter()
}

// pair keys the route cache.
type pair struct {
	from, to string
}

// dedupKey identifies a logical datum: content hash plus the declared
// metadata that affects conversion output. Path and source deliberately
// excluded, matching the conversion cache key space.
type dedupKey struct {
	hash   string
	format string
	px, py int
	fg, bg string
}

type sizeEntry struct {
	ref  weak.Pointer[Datum]
	size Size
}

// Registry stores converters and owns the shared state of the conversion
// engine: the route cache, the datum deduplication table, the
// size-association table and the conversion scheduler.
//
// Registration happens once at startup (RegisterBuiltins plus any plugin
// registrations) before routes are queried; the registry is read-mostly
// afterwards. All tables are internally locked, so a Registry is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	converters map[string]map[string][]Converter // [target][source]

	routeMu sync.Mutex
	routes  map[pair][]Route

	dedupMu sync.Mutex
	dedup   map[dedupKey]weak.Pointer[Datum]

	sizeMu sync.Mutex
	sizes  map[string]sizeEntry

	schedOnce sync.Once
	sched     *scheduler

	logger *log.Logger

	cellWidth, cellHeight int // terminal cell size in pixels
	defaultFG, defaultBG  string

	persist    cache.Cache
	persistTTL time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for conversion diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithCellPixelSize sets the terminal cell size in pixels, used for
// cell-size computation and pixel-exact converter sizing. Defaults to 10x20.
func WithCellPixelSize(w, h int) Option {
	return func(r *Registry) {
		if w > 0 && h > 0 {
			r.cellWidth, r.cellHeight = w, h
		}
	}
}

// WithDefaultColors sets the fallback foreground and background color hints
// applied when neither the caller nor the datum declares them.
func WithDefaultColors(fg, bg string) Option {
	return func(r *Registry) { r.defaultFG, r.defaultBG = fg, bg }
}

// WithPersistentCache adds a persistent byte cache consulted before route
// execution and populated after, so expensive conversions survive across
// processes. Only byte- and text-valued outputs are persisted.
func WithPersistentCache(c cache.Cache, ttl time.Duration) Option {
	return func(r *Registry) { r.persist, r.persistTTL = c, ttl }
}

// NewRegistry creates an empty converter registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		converters: map[string]map[string][]Converter{},
		routes:     map[pair][]Route{},
		dedup:      map[dedupKey]weak.Pointer[Datum]{},
		sizes:      map[string]sizeEntry{},
		logger:     log.Default(),
		cellWidth:  10,
		cellHeight: 20,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ConverterOption configures a registration.
type ConverterOption func(*Converter)

// WithFilter attaches an applicability filter to a converter.
func WithFilter(f Filter) ConverterOption {
	return func(c *Converter) { c.Filter = f }
}

// WithWeight sets a converter's tie-break weight (default 1).
func WithWeight(w int) ConverterOption {
	return func(c *Converter) {
		if w > 0 {
			c.Weight = w
		}
	}
}

// Register adds a converter from each of the given source formats to the
// target format. Multiple registrations for the same pair append rather than
// replace; the lowest-weight applicable converter wins at execution time.
//
// Registering never fails: a missing converter for a needed hop is reported
// at execution time, not here.
func (r *Registry) Register(from []string, to string, fn Func, opts ...ConverterOption) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.converters[to] == nil {
		r.converters[to] = map[string][]Converter{}
	}
	for _, src := range from {
		conv := Converter{From: src, To: to, Func: fn, Weight: 1}
		for _, opt := range opts {
			opt(&conv)
		}
		r.converters[to][src] = append(r.converters[to][src], conv)
	}
}

// applicable returns the currently-applicable converters for one hop,
// sorted ascending by weight. Order among equal weights follows
// registration order.
func (r *Registry) applicable(from, to string) []Converter {
	r.mu.RLock()
	all := r.converters[to][from]
	r.mu.RUnlock()

	convs := make([]Converter, 0, len(all))
	for _, c := range all {
		if c.Applicable() {
			convs = append(convs, c)
		}
	}
	sort.SliceStable(convs, func(i, j int) bool { return convs[i].Weight < convs[j].Weight })
	return convs
}

// minWeight returns the minimum weight among currently-applicable
// converters for a hop, or 0 with ok=false when none applies.
func (r *Registry) minWeight(from, to string) (int, bool) {
	convs := r.applicable(from, to)
	if len(convs) == 0 {
		return 0, false
	}
	return convs[0].Weight, true
}

// Edge describes one registered converter for introspection (route
// debugging, graph dumps).
type Edge struct {
	From       string
	To         string
	Weight     int
	Applicable bool
}

// Edges returns all registered converters in deterministic order.
func (r *Registry) Edges() []Edge {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var edges []Edge
	targets := make([]string, 0, len(r.converters))
	for to := range r.converters {
		targets = append(targets, to)
	}
	sort.Strings(targets)
	for _, to := range targets {
		sources := make([]string, 0, len(r.converters[to]))
		for from := range r.converters[to] {
			sources = append(sources, from)
		}
		sort.Strings(sources)
		for _, from := range sources {
			for _, c := range r.converters[to][from] {
				edges = append(edges, Edge{From: from, To: to, Weight: c.Weight, Applicable: c.Applicable()})
			}
		}
	}
	return edges
}

// Formats returns all format tags appearing in any registration, sorted.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	for to, sources := range r.converters {
		seen[to] = true
		for from := range sources {
			seen[from] = true
		}
	}
	formats := make([]string, 0, len(seen))
	for f := range seen {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// CellPixelSize returns the configured terminal cell size in pixels.
func (r *Registry) CellPixelSize() (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cellWidth, r.cellHeight
}

// SetCellPixelSize updates the terminal cell size in pixels, typically after
// terminal detection. Cached cell sizes computed before the update are not
// recomputed; set this before creating datums.
func (r *Registry) SetCellPixelSize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	r.mu.Lock()
	r.cellWidth, r.cellHeight = w, h
	r.mu.Unlock()
}

// SizedDatum retrieves a datum and its registered on-screen size by
// association key. Returns ok=false if the key is unknown or the datum has
// been garbage collected; callers treat that as "no graphic", not an error.
func (r *Registry) SizedDatum(key string) (*Datum, Size, bool) {
	r.sizeMu.Lock()
	entry, ok := r.sizes[key]
	r.sizeMu.Unlock()
	if !ok {
		return nil, Size{}, false
	}
	d := entry.ref.Value()
	if d == nil {
		return nil, Size{}, false
	}
	return d, entry.size, true
}

// cleanupDatum runs when the last strong reference to a datum is dropped:
// the dedup slot and any size associations tied to the content hash are
// purged so the tables do not accumulate dead entries.
func (r *Registry) cleanupDatum(key dedupKey) {
	r.dedupMu.Lock()
	if wp, ok := r.dedup[key]; ok && wp.Value() == nil {
		delete(r.dedup, key)
	}
	r.dedupMu.Unlock()

	r.sizeMu.Lock()
	for k, entry := range r.sizes {
		d := entry.ref.Value()
		if d == nil || d.hash == key.hash {
			delete(r.sizes, k)
		}
	}
	r.sizeMu.Unlock()
}
