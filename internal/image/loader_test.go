package imagepkg

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/youruser/animelens/internal/retry"
)

var fastRetry = retry.Policy{Attempts: 3, Backoff: time.Millisecond}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	b, err := EncodePNG(imaging.New(w, h, c))
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	return b
}

func TestLoad_DataURI(t *testing.T) {
	l := NewLoader(WithPolicy(fastRetry))
	uri := DataURI("image/png", solidPNG(t, 4, 3, color.NRGBA{R: 255, A: 255}))

	pic, err := l.Load(context.Background(), Src(uri))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if pic.Bounds().Dx() != 4 || pic.Bounds().Dy() != 3 {
		t.Errorf("bounds = %v, want 4x3", pic.Bounds())
	}
	if pic.Tainted {
		t.Error("data URI picture is tainted")
	}
}

func TestLoad_FilePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.png")
	if err := os.WriteFile(path, solidPNG(t, 2, 2, color.NRGBA{A: 255}), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(WithPolicy(fastRetry))
	for _, uri := range []string{path, "file://" + path} {
		if _, err := l.Load(context.Background(), Src(uri)); err != nil {
			t.Errorf("Load(%q) error = %v", uri, err)
		}
	}
}

func TestLoad_RetriesThenFails(t *testing.T) {
	var calls int32
	failing := FetcherFunc(func(ctx context.Context, uri string) (*Fetched, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection reset")
	})
	l := NewLoader(WithPolicy(fastRetry), WithFetcher("https", failing))

	_, err := l.Load(context.Background(), Src("https://cdn.example.com/sticker.png"))
	if err == nil {
		t.Fatal("Load() succeeded with a failing fetcher")
	}

	var loadErr *ImageLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("error %T is not *ImageLoadError", err)
	}
	if loadErr.Source != "https://cdn.example.com/sticker.png" {
		t.Errorf("Source = %q", loadErr.Source)
	}
	if loadErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", loadErr.Attempts)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("fetcher called %d times, want 3", got)
	}
}

func TestLoad_RecoversOnSecondAttempt(t *testing.T) {
	png := solidPNG(t, 1, 1, color.NRGBA{A: 255})
	var calls int32
	flaky := FetcherFunc(func(ctx context.Context, uri string) (*Fetched, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return &Fetched{Data: []byte("not an image")}, nil
		}
		return &Fetched{Data: png}, nil
	})
	l := NewLoader(WithPolicy(fastRetry), WithFetcher("file", flaky))

	if _, err := l.Load(context.Background(), Src("/assets/frame.png")); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestLoad_EmptySource(t *testing.T) {
	l := NewLoader(WithPolicy(fastRetry))
	_, err := l.Load(context.Background(), Src(""))
	if !errors.Is(err, ErrEmptySourceURI) {
		t.Errorf("err = %v, want ErrEmptySourceURI", err)
	}
}

func TestLoad_UnknownScheme(t *testing.T) {
	l := NewLoader(WithPolicy(fastRetry))
	_, err := l.Load(context.Background(), Src("ftp://example.com/a.png"))
	if !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("err = %v, want ErrUnknownScheme", err)
	}
}

func TestLoad_CrossOrigin(t *testing.T) {
	png := solidPNG(t, 2, 2, color.NRGBA{G: 255, A: 255})

	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}))
	defer plain.Close()

	cors := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}))
	defer cors.Close()

	l := NewLoader(WithPolicy(fastRetry), WithOrigin("http://kiosk.local"))
	ctx := context.Background()

	t.Run("no policy taints foreign images", func(t *testing.T) {
		pic, err := l.Load(ctx, Src(plain.URL+"/a.png"))
		if err != nil {
			t.Fatal(err)
		}
		if !pic.Tainted {
			t.Error("expected tainted picture")
		}
	})

	t.Run("anonymous without header fails", func(t *testing.T) {
		_, err := l.Load(ctx, Source{URI: plain.URL + "/a.png", CrossOrigin: CrossOriginAnonymous})
		if !errors.Is(err, ErrCORSRejected) {
			t.Errorf("err = %v, want ErrCORSRejected", err)
		}
	})

	t.Run("anonymous with header is clean", func(t *testing.T) {
		pic, err := l.Load(ctx, Source{URI: cors.URL + "/a.png", CrossOrigin: CrossOriginAnonymous})
		if err != nil {
			t.Fatal(err)
		}
		if pic.Tainted {
			t.Error("CORS-approved picture is tainted")
		}
	})

	t.Run("same origin is clean", func(t *testing.T) {
		same := NewLoader(WithPolicy(fastRetry), WithOrigin(plain.URL))
		pic, err := same.Load(ctx, Src(plain.URL+"/a.png"))
		if err != nil {
			t.Fatal(err)
		}
		if pic.Tainted {
			t.Error("same-origin picture is tainted")
		}
	})
}

func TestLoad_HTTPNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	l := NewLoader(WithPolicy(fastRetry))
	_, err := l.Load(context.Background(), Src(srv.URL+"/missing.png"))
	var loadErr *ImageLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("err = %v, want *ImageLoadError", err)
	}
}

func TestLoad_ConcurrentDistinctSources(t *testing.T) {
	l := NewLoader(WithPolicy(fastRetry))
	uris := []string{
		DataURI("image/png", solidPNG(t, 1, 1, color.NRGBA{A: 255})),
		DataURI("image/png", solidPNG(t, 2, 2, color.NRGBA{A: 255})),
		DataURI("image/png", solidPNG(t, 3, 3, color.NRGBA{A: 255})),
	}

	type result struct {
		size int
		err  error
	}
	results := make(chan result, len(uris))
	for _, u := range uris {
		go func(u string) {
			p, err := l.Load(context.Background(), Src(u))
			if err != nil {
				results <- result{err: err}
				return
			}
			results <- result{size: p.Bounds().Dx()}
		}(u)
	}

	seen := map[int]bool{}
	for range uris {
		r := <-results
		if r.err != nil {
			t.Fatal(r.err)
		}
		seen[r.size] = true
	}
	if len(seen) != 3 {
		t.Errorf("sizes seen = %v", seen)
	}
}

func TestParseDataURI(t *testing.T) {
	mt, data, err := ParseDataURI("data:text/plain,hello%20world")
	if err != nil {
		t.Fatal(err)
	}
	if mt != "text/plain" || string(data) != "hello world" {
		t.Errorf("got %q %q", mt, data)
	}

	if _, _, err := ParseDataURI("data:image/png;base64"); !errors.Is(err, ErrMalformedDataURI) {
		t.Errorf("missing comma: err = %v", err)
	}
	if _, _, err := ParseDataURI("http://x"); !errors.Is(err, ErrMalformedDataURI) {
		t.Errorf("wrong prefix: err = %v", err)
	}
}

func TestSchemeOf(t *testing.T) {
	tests := map[string]string{
		"https://a/b.png":   "https",
		"HTTP://a/b.png":    "http",
		"data:image/png,":   "data",
		"s3://bucket/k.png": "s3",
		"/abs/frame.png":    "file",
		"rel/frame.png":     "file",
		"file:///x.png":     "file",
		`C:\art\frame.png`:  "file",
	}
	for in, want := range tests {
		if got := schemeOf(in); got != want {
			t.Errorf("schemeOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDrawLayer_Clip(t *testing.T) {
	dst := NewCanvas(10, 10)
	src := imaging.New(4, 4, color.NRGBA{R: 255, A: 255})

	out := DrawLayer(dst, src, 0, 0, 2, 2, image.Rect(2, 2, 5, 5))

	if a := out.NRGBAAt(3, 3).A; a != 255 {
		t.Errorf("inside clip alpha = %d, want 255", a)
	}
	if a := out.NRGBAAt(1, 1).A; a != 0 {
		t.Errorf("outside clip alpha = %d, want 0", a)
	}
	if a := out.NRGBAAt(6, 6).A; a != 0 {
		t.Errorf("outside clip alpha = %d, want 0", a)
	}
}

func TestMirror(t *testing.T) {
	src := imaging.New(2, 1, color.NRGBA{})
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})

	m := Mirror(src)
	if m.NRGBAAt(1, 0).R != 255 || m.NRGBAAt(0, 0).R != 0 {
		t.Errorf("Mirror did not flip: %v %v", m.NRGBAAt(0, 0), m.NRGBAAt(1, 0))
	}
}
