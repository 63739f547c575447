package imagepkg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/youruser/animelens/internal/retry"
)

// CrossOrigin mirrors the browser's crossorigin attribute for remote images.
type CrossOrigin int

const (
	// CrossOriginNone loads foreign images but marks them tainted.
	CrossOriginNone CrossOrigin = iota
	// CrossOriginAnonymous requires the remote host to allow our origin.
	CrossOriginAnonymous
)

func (c CrossOrigin) String() string {
	if c == CrossOriginAnonymous {
		return "anonymous"
	}
	return "none"
}

// Source identifies an image: an http(s) URL, a data: URI, an s3:// object
// or a filesystem path.
type Source struct {
	URI         string
	CrossOrigin CrossOrigin
}

// Src is shorthand for a Source with the default cross-origin policy.
func Src(uri string) Source {
	return Source{URI: uri}
}

// Picture is a decoded image plus what the loader learned about its origin.
// A tainted picture may be drawn but its pixels must never be read back.
type Picture struct {
	image.Image
	Source  string
	Tainted bool
}

// ImageLoadError is returned once every attempt to load Source failed.
type ImageLoadError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("load image %s failed after %d attempts: %v", ShortSource(e.Source), e.Attempts, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

var (
	ErrNilImage       = errors.New("decoded image is nil")
	ErrCORSRejected   = errors.New("remote host does not allow this origin")
	ErrUnknownScheme  = errors.New("no fetcher registered for scheme")
	ErrEmptySourceURI = errors.New("empty image source")
)

// Fetched is the raw payload a Fetcher returns.
type Fetched struct {
	Data []byte
	// Origin is scheme://host of a remote resource; empty for local data.
	Origin string
	// AllowOrigin is the Access-Control-Allow-Origin response value.
	AllowOrigin string
}

// Fetcher retrieves the bytes behind a URI of one scheme.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (*Fetched, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, uri string) (*Fetched, error)

func (f FetcherFunc) Fetch(ctx context.Context, uri string) (*Fetched, error) {
	return f(ctx, uri)
}

// Loader resolves Sources into decoded pictures with bounded retries.
// It holds no per-call state and is safe for concurrent use.
type Loader struct {
	origin   string
	policy   retry.Policy
	fetchers map[string]Fetcher
	log      logrus.FieldLogger
}

type Option func(*Loader)

// WithOrigin sets the origin the loader acts on behalf of, e.g.
// "http://localhost:8080". Remote images from any other origin are
// cross-origin.
func WithOrigin(origin string) Option {
	return func(l *Loader) { l.origin = strings.TrimRight(origin, "/") }
}

func WithPolicy(p retry.Policy) Option {
	return func(l *Loader) { l.policy = p }
}

// WithFetcher registers f for scheme, replacing any default.
func WithFetcher(scheme string, f Fetcher) Option {
	return func(l *Loader) { l.fetchers[scheme] = f }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Loader) { l.log = log }
}

// NewLoader returns a loader with http(s), data and file fetchers
// registered and the default three-attempt retry policy.
func NewLoader(opts ...Option) *Loader {
	httpf := NewHTTPFetcher(nil)
	l := &Loader{
		policy: retry.Default,
		fetchers: map[string]Fetcher{
			"http":  httpf,
			"https": httpf,
			"data":  FetcherFunc(fetchDataURI),
			"file":  FetcherFunc(fetchFile),
		},
		log: logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load fetches and decodes src. Every failed attempt is logged; once the
// retry budget is spent the result is an *ImageLoadError.
func (l *Loader) Load(ctx context.Context, src Source) (*Picture, error) {
	if src.URI == "" {
		return nil, &ImageLoadError{Source: src.URI, Err: ErrEmptySourceURI}
	}

	var attempts int
	pic, err := retry.Do(ctx, l.policy, func(ctx context.Context, attempt int) (*Picture, error) {
		attempts = attempt
		p, err := l.loadOnce(ctx, src)
		if err != nil {
			l.log.WithFields(logrus.Fields{
				"source":  ShortSource(src.URI),
				"attempt": attempt,
			}).WithError(err).Warn("image load attempt failed")
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, retry.ErrExhausted) {
			return nil, err
		}
		return nil, &ImageLoadError{Source: src.URI, Attempts: attempts, Err: err}
	}
	return pic, nil
}

func (l *Loader) loadOnce(ctx context.Context, src Source) (*Picture, error) {
	scheme := schemeOf(src.URI)
	f, ok := l.fetchers[scheme]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownScheme, scheme)
	}

	fetched, err := f.Fetch(ctx, src.URI)
	if err != nil {
		return nil, err
	}

	tainted, err := l.checkOrigin(src, fetched)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(fetched.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if img == nil {
		return nil, ErrNilImage
	}
	return &Picture{Image: img, Source: src.URI, Tainted: tainted}, nil
}

// checkOrigin applies the cross-origin rules: foreign images taint unless
// loaded anonymously, and anonymous loads need the host's permission.
func (l *Loader) checkOrigin(src Source, f *Fetched) (tainted bool, err error) {
	if f.Origin == "" || f.Origin == l.origin {
		return false, nil
	}
	if src.CrossOrigin == CrossOriginNone {
		return true, nil
	}
	if f.AllowOrigin == "*" || (l.origin != "" && f.AllowOrigin == l.origin) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s (allow-origin %q)", ErrCORSRejected, f.Origin, f.AllowOrigin)
}

// schemeOf returns the lower-cased URI scheme; plain paths map to "file".
func schemeOf(uri string) string {
	if strings.HasPrefix(uri, "data:") {
		return "data"
	}
	u, err := url.Parse(uri)
	if err != nil || len(u.Scheme) <= 1 {
		// no scheme, or a Windows drive letter
		return "file"
	}
	return strings.ToLower(u.Scheme)
}

// ShortSource trims long sources (mostly data URIs) for logs and messages.
func ShortSource(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
