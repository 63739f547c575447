package scene

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/youruser/animelens/internal/capture"
	"github.com/youruser/animelens/internal/geometry"
	imagepkg "github.com/youruser/animelens/internal/image"
)

var (
	ErrNotInitialized     = errors.New("editor surface is not initialized")
	ErrAlreadyInitialized = errors.New("editor surface is already initialized")
	ErrStickerNotFound    = errors.New("sticker not found")
	ErrInvalidScale       = errors.New("scale must be positive")
	// ErrSuperseded is returned by loads that finished after the surface
	// they were meant for was torn down.
	ErrSuperseded = errors.New("editor surface was disposed while loading")
)

// FailureMessage is what the editor shows when the frame or photo cannot
// be placed.
const FailureMessage = "Error loading frame or photo. Check console for details."

// StickerScale is the scale a freshly added sticker starts at.
const StickerScale = 0.5

// ImageLoader is the part of imagepkg.Loader the editor needs.
type ImageLoader interface {
	Load(ctx context.Context, src imagepkg.Source) (*imagepkg.Picture, error)
}

// StickerInfo describes a placed sticker in edit-surface units. X and Y are
// its center.
type StickerInfo struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Scale  float64 `json:"scale"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Active bool    `json:"active"`
}

type document struct {
	frame    *Layer
	photo    *Layer
	stickers []*Layer
	sources  map[*Layer]string
	caption  Caption
}

// Engine owns the interactive edit surface: the frame, the clipped photo
// and any stickers. There is at most one live surface per engine.
type Engine struct {
	loader ImageLoader
	res    geometry.Resolution
	log    logrus.FieldLogger

	mu      sync.Mutex
	surface *Surface
	doc     *document
	// gen changes on every Dispose so late loads can tell they are stale
	gen      uint64
	pending  bool
	stickerN int
}

type Option func(*Engine)

func WithResolution(res geometry.Resolution) Option {
	return func(e *Engine) { e.res = res }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

func NewEngine(loader ImageLoader, opts ...Option) *Engine {
	e := &Engine{
		loader: loader,
		res:    geometry.Edit,
		log:    logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Resolution() geometry.Resolution { return e.res }

// Initialized reports whether a surface is mounted.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface != nil
}

// Init builds the surface from the frame art and, if given, the photo. The
// frame is stretched to fill the surface; the photo is cover-fit into the
// cutout, clipped to it and raised above the frame. Either the whole
// surface is mounted or nothing is.
func (e *Engine) Init(ctx context.Context, frame imagepkg.Source, photo *capture.Photo) error {
	e.mu.Lock()
	if e.surface != nil || e.pending {
		e.mu.Unlock()
		return ErrAlreadyInitialized
	}
	e.pending = true
	g := e.gen
	e.mu.Unlock()

	surface := NewSurface(e.res)
	doc := &document{sources: map[*Layer]string{}}

	fail := func(err error) error {
		surface.Dispose()
		e.mu.Lock()
		if e.gen == g {
			e.pending = false
		}
		e.mu.Unlock()
		return err
	}

	framePic, err := e.loader.Load(ctx, frame)
	if !e.current(g) {
		return fail(ErrSuperseded)
	}
	if err != nil {
		e.log.WithError(err).Error("scene: failed to load frame")
		return fail(fmt.Errorf("load frame: %w", err))
	}
	b := framePic.Bounds()
	sx, sy := geometry.Fill(b.Dx(), b.Dy(), e.res)
	doc.frame = &Layer{ID: "frame", Kind: KindFrame, Pic: framePic, ScaleX: sx, ScaleY: sy}
	doc.sources[doc.frame] = frame.URI
	surface.Add(doc.frame)

	if photo != nil {
		pic, err := e.loader.Load(ctx, imagepkg.Src(photo.URI()))
		if !e.current(g) {
			return fail(ErrSuperseded)
		}
		if err != nil {
			e.log.WithError(err).Error("scene: failed to load photo")
			return fail(fmt.Errorf("load photo: %w", err))
		}
		cut := geometry.Cutout.Scale(e.res.Ratio())
		pb := pic.Bounds()
		p := geometry.CoverFit(pb.Dx(), pb.Dy(), cut)
		doc.photo = &Layer{
			ID:     "photo",
			Kind:   KindPhoto,
			Pic:    pic,
			X:      p.X,
			Y:      p.Y,
			ScaleX: p.Scale,
			ScaleY: p.Scale,
			Clip:   &cut,
		}
		doc.sources[doc.photo] = photo.ID
		surface.Add(doc.photo)
		surface.BringToFront(doc.photo)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != g {
		surface.Dispose()
		return ErrSuperseded
	}
	e.surface, e.doc, e.pending = surface, doc, false
	return nil
}

func (e *Engine) current(g uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen == g
}

// Dispose tears the surface down and invalidates loads still in flight.
// It is safe to call repeatedly, and Init may be called again afterwards.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.pending = false
	if e.surface != nil {
		e.surface.Dispose()
	}
	e.surface, e.doc = nil, nil
}

// SetCaption replaces the poster caption.
func (e *Engine) SetCaption(c Caption) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc != nil {
		e.doc.caption = c
	}
}

func (e *Engine) Caption() Caption {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return Caption{}
	}
	return e.doc.caption
}

// AddSticker loads src and places it at half scale in the middle of the
// surface, making it the active layer.
func (e *Engine) AddSticker(ctx context.Context, src imagepkg.Source) (StickerInfo, error) {
	e.mu.Lock()
	if e.surface == nil {
		e.mu.Unlock()
		return StickerInfo{}, ErrNotInitialized
	}
	g := e.gen
	e.mu.Unlock()

	pic, err := e.loader.Load(ctx, src)
	if err != nil {
		e.log.WithError(err).WithField("source", imagepkg.ShortSource(src.URI)).Warn("scene: failed to load sticker")
		return StickerInfo{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != g || e.surface == nil {
		return StickerInfo{}, ErrSuperseded
	}
	e.stickerN++
	l := &Layer{
		ID:          fmt.Sprintf("sticker-%d", e.stickerN),
		Kind:        KindSticker,
		Pic:         pic,
		ScaleX:      StickerScale,
		ScaleY:      StickerScale,
		Interactive: true,
	}
	l.MoveCenterTo(geometry.Point{X: float64(e.res.Width) / 2, Y: float64(e.res.Height) / 2})
	e.surface.Add(l)
	e.surface.SetActive(l)
	e.doc.stickers = append(e.doc.stickers, l)
	e.doc.sources[l] = src.URI
	return e.infoLocked(l), nil
}

// RemoveSticker deletes the active layer if it is a sticker. It reports
// whether anything was removed.
func (e *Engine) RemoveSticker() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.surface == nil {
		return false
	}
	l := e.surface.Active()
	if l == nil || l.Kind != KindSticker {
		return false
	}
	e.surface.Remove(l)
	e.dropStickerLocked(l)
	return true
}

func (e *Engine) dropStickerLocked(l *Layer) {
	for i, s := range e.doc.stickers {
		if s == l {
			e.doc.stickers = append(e.doc.stickers[:i], e.doc.stickers[i+1:]...)
			break
		}
	}
	delete(e.doc.sources, l)
}

// Select makes the sticker with the given id active. An empty id clears
// the selection.
func (e *Engine) Select(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.surface == nil {
		return ErrNotInitialized
	}
	if id == "" {
		e.surface.SetActive(nil)
		return nil
	}
	l, err := e.stickerLocked(id)
	if err != nil {
		return err
	}
	e.surface.SetActive(l)
	return nil
}

// MoveSticker centers the sticker at (x, y) and makes it active.
func (e *Engine) MoveSticker(id string, x, y float64) (StickerInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.surface == nil {
		return StickerInfo{}, ErrNotInitialized
	}
	l, err := e.stickerLocked(id)
	if err != nil {
		return StickerInfo{}, err
	}
	l.MoveCenterTo(geometry.Point{X: x, Y: y})
	e.surface.SetActive(l)
	return e.infoLocked(l), nil
}

// ScaleSticker applies a uniform scale around the sticker's center.
func (e *Engine) ScaleSticker(id string, scale float64) (StickerInfo, error) {
	if scale <= 0 {
		return StickerInfo{}, fmt.Errorf("%w: %v", ErrInvalidScale, scale)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.surface == nil {
		return StickerInfo{}, ErrNotInitialized
	}
	l, err := e.stickerLocked(id)
	if err != nil {
		return StickerInfo{}, err
	}
	l.ScaleAboutCenter(scale)
	e.surface.SetActive(l)
	return e.infoLocked(l), nil
}

func (e *Engine) stickerLocked(id string) (*Layer, error) {
	for _, l := range e.doc.stickers {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrStickerNotFound, id)
}

// Stickers lists placed stickers bottom to top.
func (e *Engine) Stickers() []StickerInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return []StickerInfo{}
	}
	out := make([]StickerInfo, 0, len(e.doc.stickers))
	for _, l := range e.doc.stickers {
		out = append(out, e.infoLocked(l))
	}
	return out
}

func (e *Engine) infoLocked(l *Layer) StickerInfo {
	c := l.Center()
	w, h := l.Size()
	return StickerInfo{
		ID:     l.ID,
		Source: imagepkg.ShortSource(e.doc.sources[l]),
		X:      c.X,
		Y:      c.Y,
		Scale:  l.ScaleX,
		Width:  w,
		Height: h,
		Active: e.surface.Active() == l,
	}
}

// PhotoPlacement returns where the photo layer sits and the cutout it is
// clipped to, in edit-surface units.
func (e *Engine) PhotoPlacement() (geometry.Placement, geometry.Rect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil || e.doc.photo == nil {
		return geometry.Placement{}, geometry.Rect{}, false
	}
	l := e.doc.photo
	w, h := l.Size()
	return geometry.Placement{X: l.X, Y: l.Y, Scale: l.ScaleX, W: w, H: h}, *l.Clip, true
}

// Rasterize renders the current surface scaled by multiplier. Sticker
// edits wait until the render is done.
func (e *Engine) Rasterize(multiplier float64) (*image.NRGBA, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.surface == nil {
		return nil, ErrNotInitialized
	}
	return e.surface.Rasterize(multiplier)
}

// Render is the edit-resolution preview.
func (e *Engine) Render() (*image.NRGBA, error) {
	return e.Rasterize(1)
}
