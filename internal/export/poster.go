package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/sirupsen/logrus"

	"github.com/youruser/animelens/internal/geometry"
	imagepkg "github.com/youruser/animelens/internal/image"
	"github.com/youruser/animelens/internal/scene"
)

const (
	PosterFilename = "wanted-poster.png"
	MediaTypePNG   = "image/png"

	// CaptionStretch is the vertical stretch applied to the caption glyphs.
	CaptionStretch = 1.5

	BlockedMessage = "Cannot export poster: images may be blocked by CORS. Host images locally or enable CORS on remote images."
	FailedMessage  = "Failed to generate downloadable image. This may be caused by CORS on images."
)

var (
	// ErrExportBlocked means the edit surface could not be read back because
	// a layer came from a foreign origin without permission.
	ErrExportBlocked = errors.New(BlockedMessage)
	// ErrRenderFailed means the poster surface itself could not be encoded.
	ErrRenderFailed = errors.New(FailedMessage)
)

// Result is a finished file ready to hand to a Downloader.
type Result struct {
	Filename  string
	MediaType string
	Data      []byte
	Width     int
	Height    int
}

// Surface is what the pipeline reads the artwork from.
type Surface interface {
	Rasterize(multiplier float64) (*image.NRGBA, error)
}

// Pipeline turns the edit surface plus a caption into the printable poster.
type Pipeline struct {
	loader   scene.ImageLoader
	typeface *imagepkg.Typeface
	log      logrus.FieldLogger
}

type Option func(*Pipeline)

func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = log }
}

func NewPipeline(loader scene.ImageLoader, typeface *imagepkg.Typeface, opts ...Option) *Pipeline {
	p := &Pipeline{
		loader:   loader,
		typeface: typeface,
		log:      logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Poster renders src at canonical resolution, prints the caption over it and
// returns the PNG. Nothing is returned on failure.
func (p *Pipeline) Poster(ctx context.Context, src Surface, caption scene.Caption) (*Result, error) {
	raster, err := src.Rasterize(geometry.Multiplier(geometry.Edit, geometry.Canonical))
	if err != nil {
		p.log.WithError(err).Error("export: failed to read back edit surface")
		if errors.Is(err, scene.ErrTainted) {
			return nil, ErrExportBlocked
		}
		return nil, fmt.Errorf("rasterize edit surface: %w", err)
	}
	encoded, err := imagepkg.EncodePNG(raster)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	base, err := p.loader.Load(ctx, imagepkg.Src(imagepkg.DataURI(MediaTypePNG, encoded)))
	if err != nil {
		p.log.WithError(err).Error("export: failed to reload poster base")
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	poster := scene.NewSurface(geometry.Canonical)
	defer poster.Dispose()

	b := base.Bounds()
	sx, sy := geometry.Fill(b.Dx(), b.Dy(), geometry.Canonical)
	poster.Add(&scene.Layer{ID: "base", Kind: scene.KindFrame, Pic: base, ScaleX: sx, ScaleY: sy})

	if l := p.captionLayer(caption); l != nil {
		poster.Add(l)
	}

	out, err := poster.Rasterize(1)
	if err != nil {
		p.log.WithError(err).Error("export: failed to render poster")
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	data, err := imagepkg.EncodePNG(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	p.log.WithFields(logrus.Fields{
		"caption": caption.Text(),
		"bytes":   len(data),
	}).Info("export: poster rendered")

	return &Result{
		Filename:  PosterFilename,
		MediaType: MediaTypePNG,
		Data:      data,
		Width:     out.Bounds().Dx(),
		Height:    out.Bounds().Dy(),
	}, nil
}

// captionLayer rasterizes the caption at the full-resolution size and
// stretches the glyphs vertically, keeping them centered on the anchor.
func (p *Pipeline) captionLayer(c scene.Caption) *scene.Layer {
	if c.Blank() || p.typeface == nil {
		return nil
	}
	glyphs := p.typeface.RenderText(c.Text(), float64(c.FontSize()), color.Black)
	if glyphs == nil {
		return nil
	}
	l := &scene.Layer{
		ID:     "caption",
		Kind:   scene.KindText,
		Pic:    &imagepkg.Picture{Image: glyphs},
		ScaleX: 1,
		ScaleY: CaptionStretch,
	}
	l.MoveCenterTo(geometry.CaptionAnchor)
	return l
}
