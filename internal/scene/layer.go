package scene

import (
	"image"
	"math"

	"github.com/youruser/animelens/internal/geometry"
	imagepkg "github.com/youruser/animelens/internal/image"
)

// Kind tells the surface what a layer is for.
type Kind int

const (
	KindFrame Kind = iota
	KindPhoto
	KindSticker
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "frame"
	case KindPhoto:
		return "photo"
	case KindSticker:
		return "sticker"
	case KindText:
		return "text"
	}
	return "unknown"
}

// Layer is one positioned image on a Surface. X and Y are the top-left
// corner in surface units; Clip, when set, is absolute to the surface and
// does not move with the layer.
type Layer struct {
	ID          string
	Kind        Kind
	Pic         *imagepkg.Picture
	X, Y        float64
	ScaleX      float64
	ScaleY      float64
	Clip        *geometry.Rect
	Interactive bool
}

// Size is the drawn size of the layer in surface units.
func (l *Layer) Size() (w, h float64) {
	if l.Pic == nil || l.Pic.Image == nil {
		return 0, 0
	}
	b := l.Pic.Bounds()
	return float64(b.Dx()) * l.ScaleX, float64(b.Dy()) * l.ScaleY
}

func (l *Layer) Center() geometry.Point {
	w, h := l.Size()
	return geometry.Point{X: l.X + w/2, Y: l.Y + h/2}
}

// MoveCenterTo repositions the layer so its center sits at p.
func (l *Layer) MoveCenterTo(p geometry.Point) {
	w, h := l.Size()
	l.X = p.X - w/2
	l.Y = p.Y - h/2
}

// ScaleAboutCenter sets a uniform scale and keeps the center in place.
func (l *Layer) ScaleAboutCenter(s float64) {
	c := l.Center()
	l.ScaleX, l.ScaleY = s, s
	l.MoveCenterTo(c)
}

func (l *Layer) tainted() bool {
	return l.Pic != nil && l.Pic.Tainted
}

func (l *Layer) draw(dst *image.NRGBA, m float64) *image.NRGBA {
	if l.Pic == nil || l.Pic.Image == nil {
		return dst
	}
	if l.Clip == nil {
		return imagepkg.DrawLayer(dst, l.Pic.Image, l.X*m, l.Y*m, l.ScaleX*m, l.ScaleY*m, image.Rectangle{})
	}

	clip := l.Clip.Scale(m).Bounds()
	if clip.Empty() {
		return dst
	}
	// A clipped layer is snapped to pixels with the same rounding as its
	// clip, so a layer that covers the clip in surface units also covers it
	// in pixels.
	w, h := l.Size()
	at := image.Rect(
		geometry.FloorPx(l.X*m), geometry.FloorPx(l.Y*m),
		geometry.CeilPx((l.X+w)*m), geometry.CeilPx((l.Y+h)*m),
	)
	sb := l.Pic.Bounds()
	if at.Empty() || sb.Empty() {
		return dst
	}
	sx := float64(at.Dx()) / float64(sb.Dx())
	sy := float64(at.Dy()) / float64(sb.Dy())
	return imagepkg.DrawLayer(dst, l.Pic.Image, float64(at.Min.X), float64(at.Min.Y), sx, sy, clip)
}

func round(v float64) int { return int(math.Round(v)) }
