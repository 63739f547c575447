package scene

import (
	"context"
	"errors"
	"image/color"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/youruser/animelens/internal/capture"
	"github.com/youruser/animelens/internal/geometry"
	imagepkg "github.com/youruser/animelens/internal/image"
	"github.com/youruser/animelens/internal/retry"
)

var (
	blue = color.NRGBA{B: 255, A: 255}
	red  = color.NRGBA{R: 255, A: 255}
)

func pngURI(t *testing.T, w, h int, c color.NRGBA) string {
	t.Helper()
	b, err := imagepkg.EncodePNG(imaging.New(w, h, c))
	if err != nil {
		t.Fatal(err)
	}
	return imagepkg.DataURI("image/png", b)
}

func testPhoto(t *testing.T, w, h int) *capture.Photo {
	t.Helper()
	b, err := imagepkg.EncodePNG(imaging.New(w, h, red))
	if err != nil {
		t.Fatal(err)
	}
	return &capture.Photo{ID: "p1", Data: b, MediaType: "image/png", Width: w, Height: h}
}

func newTestEngine() *Engine {
	return NewEngine(imagepkg.NewLoader(imagepkg.WithPolicy(retry.Policy{Attempts: 3, Backoff: time.Millisecond})))
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func sameColor(a, b color.NRGBA) bool {
	d := func(x, y uint8) bool {
		v := int(x) - int(y)
		return v > 2 || v < -2
	}
	return !d(a.R, b.R) && !d(a.G, b.G) && !d(a.B, b.B) && !d(a.A, b.A)
}

func TestInit_PhotoCoversCutout(t *testing.T) {
	tests := []struct {
		name string
		w, h int
	}{
		{"landscape", 1600, 900},
		{"portrait", 900, 1600},
		{"square", 800, 800},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			frame := imagepkg.Src(pngURI(t, 759, 1117, blue))
			if err := e.Init(context.Background(), frame, testPhoto(t, tt.w, tt.h)); err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			defer e.Dispose()

			p, clip, ok := e.PhotoPlacement()
			if !ok {
				t.Fatal("no photo layer")
			}
			want := geometry.Cutout.Scale(geometry.Edit.Ratio())
			if clip != want {
				t.Errorf("clip = %+v, want %+v", clip, want)
			}
			if !near(p.X, want.X) || !near(p.Y, want.Y) {
				t.Errorf("photo anchored at (%v,%v), want cutout origin", p.X, p.Y)
			}
			if p.W < want.W-1e-6 || p.H < want.H-1e-6 {
				t.Errorf("photo %vx%v does not cover cutout %vx%v", p.W, p.H, want.W, want.H)
			}
			if !near(p.W, want.W) && !near(p.H, want.H) {
				t.Errorf("neither photo dimension matches the cutout: %vx%v", p.W, p.H)
			}
		})
	}
}

func TestRender_ClipsPhotoToCutout(t *testing.T) {
	e := newTestEngine()
	frame := imagepkg.Src(pngURI(t, 759, 1117, blue))
	if err := e.Init(context.Background(), frame, testPhoto(t, 900, 1600)); err != nil {
		t.Fatal(err)
	}
	img, err := e.Render()
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 500 || b.Dy() != 735 {
		t.Fatalf("preview %v, want 500x735", b)
	}

	if got := img.NRGBAAt(250, 300); !sameColor(got, red) {
		t.Errorf("inside cutout = %v, want photo", got)
	}
	// the portrait photo overflows downward; the overflow must not show
	if got := img.NRGBAAt(250, 600); !sameColor(got, blue) {
		t.Errorf("below cutout = %v, want frame", got)
	}
	if got := img.NRGBAAt(5, 5); !sameColor(got, blue) {
		t.Errorf("corner = %v, want frame", got)
	}
}

func TestInit_WithoutPhoto(t *testing.T) {
	e := newTestEngine()
	if err := e.Init(context.Background(), imagepkg.Src(pngURI(t, 10, 10, blue)), nil); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := e.PhotoPlacement(); ok {
		t.Error("photo layer present without a photo")
	}
	img, err := e.Render()
	if err != nil {
		t.Fatal(err)
	}
	if got := img.NRGBAAt(499, 734); !sameColor(got, blue) {
		t.Errorf("frame does not fill the surface: %v", got)
	}
}

func TestInit_Twice(t *testing.T) {
	e := newTestEngine()
	frame := imagepkg.Src(pngURI(t, 10, 10, blue))
	if err := e.Init(context.Background(), frame, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.Init(context.Background(), frame, nil); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Init err = %v", err)
	}

	e.Dispose()
	e.Dispose()
	if e.Initialized() {
		t.Fatal("still initialized after Dispose")
	}
	if err := e.Init(context.Background(), frame, nil); err != nil {
		t.Errorf("Init after Dispose err = %v", err)
	}
}

func TestInit_FrameFailureMountsNothing(t *testing.T) {
	e := newTestEngine()
	err := e.Init(context.Background(), imagepkg.Src("data:image/png;base64,AAAA"), testPhoto(t, 10, 10))

	var loadErr *imagepkg.ImageLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("err = %v, want *ImageLoadError", err)
	}
	if e.Initialized() {
		t.Error("surface mounted after a failed load")
	}
	if _, err := e.Render(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Render err = %v", err)
	}
}

type gatedLoader struct {
	release chan struct{}
	next    ImageLoader
}

func (g *gatedLoader) Load(ctx context.Context, src imagepkg.Source) (*imagepkg.Picture, error) {
	<-g.release
	return g.next.Load(ctx, src)
}

func TestInit_DisposedWhileLoading(t *testing.T) {
	gl := &gatedLoader{release: make(chan struct{}), next: imagepkg.NewLoader()}
	e := NewEngine(gl)

	done := make(chan error, 1)
	go func() {
		done <- e.Init(context.Background(), imagepkg.Src(pngURI(t, 10, 10, blue)), nil)
	}()

	time.Sleep(10 * time.Millisecond)
	e.Dispose()
	close(gl.release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Init err = %v, want ErrSuperseded", err)
	}
	if e.Initialized() {
		t.Error("stale load mounted a surface")
	}
}

func TestStickers(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	if _, err := e.AddSticker(ctx, imagepkg.Src(pngURI(t, 100, 100, red))); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("AddSticker before Init err = %v", err)
	}
	if err := e.Init(ctx, imagepkg.Src(pngURI(t, 10, 10, blue)), testPhoto(t, 10, 10)); err != nil {
		t.Fatal(err)
	}

	if e.RemoveSticker() {
		t.Error("RemoveSticker removed something with no active sticker")
	}

	s1, err := e.AddSticker(ctx, imagepkg.Src(pngURI(t, 100, 80, red)))
	if err != nil {
		t.Fatal(err)
	}
	if s1.X != 250 || s1.Y != 367.5 {
		t.Errorf("sticker center = (%v,%v), want (250,367.5)", s1.X, s1.Y)
	}
	if s1.Scale != StickerScale || s1.Width != 50 || s1.Height != 40 {
		t.Errorf("sticker = %+v", s1)
	}
	if !s1.Active {
		t.Error("new sticker is not active")
	}

	s2, err := e.AddSticker(ctx, imagepkg.Src(pngURI(t, 20, 20, red)))
	if err != nil {
		t.Fatal(err)
	}
	if s2.ID == s1.ID {
		t.Error("duplicate sticker ids")
	}

	moved, err := e.MoveSticker(s1.ID, 100, 120)
	if err != nil {
		t.Fatal(err)
	}
	if moved.X != 100 || moved.Y != 120 || !moved.Active {
		t.Errorf("moved = %+v", moved)
	}
	scaled, err := e.ScaleSticker(s1.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if scaled.X != 100 || scaled.Width != 100 {
		t.Errorf("scaled = %+v", scaled)
	}
	if _, err := e.MoveSticker("nope", 0, 0); !errors.Is(err, ErrStickerNotFound) {
		t.Errorf("unknown id err = %v", err)
	}

	if !e.RemoveSticker() {
		t.Fatal("RemoveSticker() = false with an active sticker")
	}
	left := e.Stickers()
	if len(left) != 1 || left[0].ID != s2.ID {
		t.Errorf("remaining = %+v", left)
	}

	if err := e.Select(""); err != nil {
		t.Fatal(err)
	}
	if e.RemoveSticker() {
		t.Error("removed with selection cleared")
	}
	if _, _, ok := e.PhotoPlacement(); !ok {
		t.Error("photo layer lost")
	}
}

type taintingLoader struct{ next ImageLoader }

func (l taintingLoader) Load(ctx context.Context, src imagepkg.Source) (*imagepkg.Picture, error) {
	p, err := l.next.Load(ctx, src)
	if err == nil && src.URI == "tainted" {
		p.Tainted = true
	}
	return p, err
}

func TestRasterize_Tainted(t *testing.T) {
	clean := imagepkg.Src(pngURI(t, 10, 10, blue))
	inner := imagepkg.NewLoader(imagepkg.WithFetcher("file", imagepkg.FetcherFunc(
		func(ctx context.Context, uri string) (*imagepkg.Fetched, error) {
			b, _ := imagepkg.EncodePNG(imaging.New(4, 4, red))
			return &imagepkg.Fetched{Data: b}, nil
		})))
	e := NewEngine(taintingLoader{next: inner})
	ctx := context.Background()
	if err := e.Init(ctx, clean, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Rasterize(2); err != nil {
		t.Fatalf("clean surface: %v", err)
	}
	if _, err := e.AddSticker(ctx, imagepkg.Src("tainted")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Rasterize(2); !errors.Is(err, ErrTainted) {
		t.Errorf("err = %v, want ErrTainted", err)
	}
}

func TestRasterize_Multiplier(t *testing.T) {
	e := newTestEngine()
	if err := e.Init(context.Background(), imagepkg.Src(pngURI(t, 10, 10, blue)), nil); err != nil {
		t.Fatal(err)
	}
	img, err := e.Rasterize(geometry.Multiplier(geometry.Edit, geometry.Canonical))
	if err != nil {
		t.Fatal(err)
	}
	// 735 * 759/500 rounds to 1116; the poster step stretches it to 1117.
	if b := img.Bounds(); b.Dx() != 759 || b.Dy() != 1116 {
		t.Errorf("bounds = %v, want 759x1116", b)
	}
}

func TestSameColor(t *testing.T) {
	if sameColor(color.NRGBA{R: 255, A: 255}, color.NRGBA{A: 255}) {
		t.Error("white-red and black compared equal")
	}
	if sameColor(color.NRGBA{B: 254, A: 255}, color.NRGBA{B: 3, A: 255}) {
		t.Error("saturated channel compared equal to a dark one")
	}
	if !sameColor(color.NRGBA{R: 255, A: 255}, color.NRGBA{R: 253, A: 255}) {
		t.Error("values within tolerance compared unequal")
	}
}

func TestRasterize_PhotoFillsCutoutPixels(t *testing.T) {
	dims := [][2]int{{1600, 900}, {900, 1600}, {1280, 720}, {1000, 1000}}
	mults := []float64{1, geometry.Multiplier(geometry.Edit, geometry.Canonical), 2}
	for _, d := range dims {
		e := newTestEngine()
		if err := e.Init(context.Background(), imagepkg.Src(pngURI(t, 759, 1117, color.NRGBA{})), testPhoto(t, d[0], d[1])); err != nil {
			t.Fatal(err)
		}
		for _, m := range mults {
			img, err := e.Rasterize(m)
			if err != nil {
				t.Fatal(err)
			}
			cb := geometry.Cutout.Scale(geometry.Edit.Ratio()).Scale(m).Bounds()
			gaps := 0
			for y := cb.Min.Y; y < cb.Max.Y; y++ {
				for x := cb.Min.X; x < cb.Max.X; x++ {
					if img.NRGBAAt(x, y).A == 0 {
						gaps++
					}
				}
			}
			if gaps > 0 {
				t.Errorf("photo %dx%d at x%.4f: %d transparent pixels inside %v", d[0], d[1], m, gaps, cb)
			}
			// nothing leaks past the clip
			if got := img.NRGBAAt(cb.Min.X-1, cb.Min.Y-1); got.A != 0 {
				t.Errorf("photo %dx%d at x%.4f: pixel outside clip = %v", d[0], d[1], m, got)
			}
		}
		e.Dispose()
	}
}

func TestRasterize_ConcurrentStickerEdits(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	if err := e.Init(ctx, imagepkg.Src(pngURI(t, 50, 50, blue)), testPhoto(t, 40, 30)); err != nil {
		t.Fatal(err)
	}
	st, err := e.AddSticker(ctx, imagepkg.Src(pngURI(t, 40, 40, red)))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := e.MoveSticker(st.ID, float64(100+i), float64(200+i)); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := e.ScaleSticker(st.ID, 0.5+float64(i%5)/10); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	for i := 0; i < 20; i++ {
		if _, err := e.Render(); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
}

func TestSurface_LayersAndDispose(t *testing.T) {
	s := NewSurface(geometry.Edit)
	a := &Layer{ID: "a", ScaleX: 1, ScaleY: 1}
	b := &Layer{ID: "b", ScaleX: 1, ScaleY: 1}
	s.Add(a)
	s.Add(b)
	s.BringToFront(a)

	got := s.Layers()
	if len(got) != 2 || got[0] != b || got[1] != a {
		t.Fatalf("stack = %v, want [b a]", got)
	}
	got[0] = nil
	if s.Layers()[0] != b {
		t.Error("Layers() exposed the internal stack")
	}

	s.Dispose()
	s.Dispose()
	if !s.Disposed() {
		t.Fatal("Disposed() = false after Dispose")
	}
	if len(s.Layers()) != 0 {
		t.Error("layers kept after Dispose")
	}
	if _, err := s.Rasterize(1); !errors.Is(err, ErrDisposed) {
		t.Errorf("err = %v, want ErrDisposed", err)
	}
}

func TestCaption(t *testing.T) {
	c := NewCaption("naruto uzumaki")
	if c.Text() != "NARUTO UZUMAKI" {
		t.Errorf("Text() = %q", c.Text())
	}
	if c.FontSize() != 55 || c.DisplayFontSize() != 36 {
		t.Errorf("sizes = %d/%d", c.FontSize(), c.DisplayFontSize())
	}

	long := NewCaption("abcdefghijklmnopqrstuvwxyz0123456789")
	if long.Len() != MaxCaptionRunes {
		t.Errorf("Len() = %d, want %d", long.Len(), MaxCaptionRunes)
	}
	if !NewCaption("   ").Blank() {
		t.Error("whitespace caption not blank")
	}
}
