package convert

import (
	"context"
	"image"
	"image/color"
	"runtime"
	"strings"
	"testing"
	"time"
)

func newTextRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	r.Register([]string{"a"}, "b", func(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
		s, _ := d.Data().Text()
		return Text(s + ">b"), nil
	})
	r.Register([]string{"b"}, "c", func(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
		s, _ := d.Data().Text()
		return Text(s + ">c"), nil
	})
	return r
}

func testImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestNewDatumDeduplicates(t *testing.T) {
	r := newTextRegistry(t)

	d1 := r.NewDatum(Text("hello"), "a")
	d2 := r.NewDatum(Text("hello"), "a")
	if d1 != d2 {
		t.Error("identical content and metadata should return the same instance")
	}

	d3 := r.NewDatum(Text("hello"), "b")
	if d1 == d3 {
		t.Error("different format must not deduplicate")
	}
	d4 := r.NewDatum(Text("hello"), "a", WithPixelSize(10, 10))
	if d1 == d4 {
		t.Error("different pixel size must not deduplicate")
	}
}

func TestConvertMultiHop(t *testing.T) {
	r := newTextRegistry(t)
	d := r.NewDatum(Text("x"), "a")

	out, err := d.Convert(context.Background(), "c", 0, 0)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	s, _ := out.Text()
	if s != "x>b>c" {
		t.Errorf("output = %q, want %q", s, "x>b>c")
	}
}

func TestConvertIdentity(t *testing.T) {
	r := newTextRegistry(t)
	d := r.NewDatum(Text("same"), "a")

	out, err := d.Convert(context.Background(), "a", 20, 10)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if s, _ := out.Text(); s != "same" {
		t.Errorf("identity conversion changed data: %q", s)
	}
}

func TestConvertNoRoutePlaceholders(t *testing.T) {
	r := newTextRegistry(t)
	d := r.NewDatum(Text("x"), "a")
	ctx := context.Background()

	out, err := d.Convert(ctx, "nothing", 0, 0)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if s, _ := out.Text(); s != "(Conversion Error)" {
		t.Errorf("default placeholder = %q", s)
	}

	d2 := r.NewDatum(Text("y"), "q")
	out, err = d2.Convert(ctx, "ansi", 0, 0)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if s, _ := out.Text(); s != "(Format Conversion Error)" {
		t.Errorf("ansi placeholder = %q", s)
	}

	out, err = d2.Convert(ctx, "ft", 0, 0)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	lines, ok := out.Lines()
	if !ok || len(lines) != 1 || len(lines[0]) != 1 {
		t.Fatalf("ft placeholder shape: %v", lines)
	}
	frag := lines[0][0]
	if frag.Style != "fg:white bg:darkred" || frag.Text != "(Format Conversion Error)" {
		t.Errorf("ft placeholder fragment = %+v", frag)
	}
}

func TestConvertCachesPerParameters(t *testing.T) {
	calls := 0
	r := NewRegistry()
	r.Register([]string{"a"}, "b", func(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
		calls++
		return Text("out"), nil
	})
	d := r.NewDatum(Text("x"), "a")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := d.Convert(ctx, "b", 10, 5); err != nil {
			t.Fatalf("Convert: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("converter ran %d times for identical parameters, want 1", calls)
	}

	if _, err := d.Convert(ctx, "b", 20, 5); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if calls != 2 {
		t.Errorf("converter ran %d times after size change, want 2", calls)
	}
}

func TestConvertFallsBackAcrossRoutes(t *testing.T) {
	r := NewRegistry()
	// Cheap direct hop that always fails, plus a working two-hop path.
	r.Register([]string{"a"}, "b", func(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
		panic("broken converter")
	}, WithWeight(1))
	r.Register([]string{"a"}, "mid", func(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
		return Text("m"), nil
	}, WithWeight(2))
	r.Register([]string{"mid"}, "b", func(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
		s, _ := d.Data().Text()
		return Text(s + ">b"), nil
	}, WithWeight(2))

	d := r.NewDatum(Text("x"), "a")
	out, err := d.Convert(context.Background(), "b", 0, 0)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if s, _ := out.Text(); s != "m>b" {
		t.Errorf("output = %q, want fallback via mid", s)
	}
}

func TestConvertReentrantRejected(t *testing.T) {
	r := NewRegistry()
	var inner error
	r.Register([]string{"a"}, "b", func(ctx context.Context, d *Datum, cols, rows int, fg, bg string) (Payload, error) {
		_, inner = d.Convert(ctx, "b", 0, 0)
		return Text("out"), nil
	})

	d := r.NewDatum(Text("x"), "a")
	if _, err := d.Convert(context.Background(), "b", 0, 0); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if inner == nil {
		t.Fatal("blocking call inside a converter should fail")
	}
	if !strings.Contains(inner.Error(), "Async") {
		t.Errorf("unexpected reentrancy error: %v", inner)
	}
}

func TestPixelSizeDeclared(t *testing.T) {
	r := newTextRegistry(t)
	d := r.NewDatum(Text("x"), "a", WithPixelSize(640, 480))

	px, py, err := d.PixelSize(context.Background())
	if err != nil {
		t.Fatalf("PixelSize: %v", err)
	}
	if px != 640 || py != 480 {
		t.Errorf("size = (%d, %d), want (640, 480)", px, py)
	}
}

func TestPixelSizeFromImage(t *testing.T) {
	r := NewRegistry()
	d := r.NewDatum(Image(testImage(256, 128)), "image")

	px, py, err := d.PixelSize(context.Background())
	if err != nil {
		t.Fatalf("PixelSize: %v", err)
	}
	if px != 256 || py != 128 {
		t.Errorf("size = (%d, %d), want (256, 128)", px, py)
	}
}

func TestPixelSizeInfersMissingDimension(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	// A 100x50 PNG with only the width declared: the missing height
	// follows the intrinsic 2:1 ratio scaled to the declared width.
	d := r.NewDatum(Image(testImage(100, 50)), "image")
	enc, err := d.Convert(context.Background(), "png", 0, 0)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	raw, _ := enc.Bytes()

	d2 := r.NewDatum(Bytes(raw), "png", WithPixelSize(256, 0))
	px, py, err := d2.PixelSize(context.Background())
	if err != nil {
		t.Fatalf("PixelSize: %v", err)
	}
	if px != 256 || py != 128 {
		t.Errorf("size = (%d, %d), want (256, 128)", px, py)
	}
}

func TestCellSize(t *testing.T) {
	r := NewRegistry(WithCellPixelSize(8, 16))
	d := r.NewDatum(Image(testImage(256, 128)), "image")

	cols, aspect, err := d.CellSize(context.Background())
	if err != nil {
		t.Fatalf("CellSize: %v", err)
	}
	if cols != 32 {
		t.Errorf("cols = %d, want 32", cols)
	}
	if aspect != 0.25 {
		t.Errorf("aspect = %v, want 0.25", aspect)
	}
}

func TestCellSizeUnknown(t *testing.T) {
	r := newTextRegistry(t)
	d := r.NewDatum(Text("plain"), "ansi")

	cols, aspect, err := d.CellSize(context.Background())
	if err != nil {
		t.Fatalf("CellSize: %v", err)
	}
	if cols != 0 || aspect != 0 {
		t.Errorf("got (%d, %v), want (0, 0) for unknown size", cols, aspect)
	}
}

func TestRootResolvesSourceChain(t *testing.T) {
	r := newTextRegistry(t)
	d := r.NewDatum(Text("x"), "a")

	if _, err := d.Convert(context.Background(), "c", 0, 0); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	// The intermediate "b" datum created during the two-hop conversion
	// points back at the original.
	mid := r.NewDatum(Text("x>b"), "b", WithColors(r.defaultFG, r.defaultBG))
	if got := mid.Root(); got != d {
		t.Errorf("Root() = %v, want original datum", got)
	}
}

func TestSizedDatumLifetime(t *testing.T) {
	r := newTextRegistry(t)
	d := r.NewDatum(Text("sized"), "a")

	key := d.AddSize(Size{Rows: 4, Cols: 10})
	got, size, ok := r.SizedDatum(key)
	if !ok {
		t.Fatal("size association missing")
	}
	if got != d {
		t.Error("recovered datum is not the original")
	}
	if size.Rows != 4 || size.Cols != 10 {
		t.Errorf("size = %+v", size)
	}

	if _, _, ok := r.SizedDatum("no-such-key"); ok {
		t.Error("unknown key should miss")
	}
}

func TestDatumCollectionPurgesDedup(t *testing.T) {
	r := newTextRegistry(t)

	key := func() dedupKey {
		d := r.NewDatum(Text("ephemeral"), "a")
		return dedupKey{hash: d.Hash(), format: "a"}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		runtime.GC()
		r.dedupMu.Lock()
		_, present := r.dedup[key]
		r.dedupMu.Unlock()
		if !present {
			break
		}
		if time.Now().After(deadline) {
			t.Skip("cleanup did not run; GC timing dependent")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
