// Package geometry holds the poster's reference layout. Every rectangle is
// defined once at the canonical 759x1117 resolution and scaled by a single
// ratio to whatever resolution a surface is rendered at.
package geometry

import (
	"image"
	"math"
)

// Canonical poster size. Export always happens at this size.
const (
	CanonicalWidth  = 759
	CanonicalHeight = 1117
)

// Editing surface size.
const (
	EditWidth  = 500
	EditHeight = 735
)

// Resolution is a render target size in pixels.
type Resolution struct {
	Width  int
	Height int
}

var (
	Canonical = Resolution{Width: CanonicalWidth, Height: CanonicalHeight}
	Edit      = Resolution{Width: EditWidth, Height: EditHeight}
)

// Ratio returns the uniform scale factor from canonical units to r.
func (r Resolution) Ratio() float64 {
	return float64(r.Width) / CanonicalWidth
}

// Multiplier returns the factor that re-renders a surface of size from at
// size to, e.g. 759/500 when going from the edit surface to export.
func Multiplier(from, to Resolution) float64 {
	return float64(to.Width) / float64(from.Width)
}

// Point is a position in surface units.
type Point struct {
	X float64
	Y float64
}

// Scale multiplies both coordinates by r.
func (p Point) Scale(r float64) Point {
	return Point{X: p.X * r, Y: p.Y * r}
}

// Rect is an axis-aligned rectangle in surface units.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Scale multiplies every component by r.
func (rc Rect) Scale(r float64) Rect {
	return Rect{X: rc.X * r, Y: rc.Y * r, W: rc.W * r, H: rc.H * r}
}

func (rc Rect) Aspect() float64 {
	if rc.H == 0 {
		return 0
	}
	return rc.W / rc.H
}

func (rc Rect) Center() Point {
	return Point{X: rc.X + rc.W/2, Y: rc.Y + rc.H/2}
}

// Bounds converts the rectangle to integer pixel bounds. The min corner is
// floored and the max corner is ceiled so nothing inside is lost.
func (rc Rect) Bounds() image.Rectangle {
	return image.Rect(FloorPx(rc.X), FloorPx(rc.Y), CeilPx(rc.X+rc.W), CeilPx(rc.Y+rc.H))
}

// pxEps absorbs float noise from scaling between resolutions, so that
// 704.0000000001 still lands on pixel 704.
const pxEps = 1e-6

// FloorPx is the pixel column or row a min edge at v starts on.
func FloorPx(v float64) int { return int(math.Floor(v + pxEps)) }

// CeilPx is the exclusive pixel bound of a max edge at v.
func CeilPx(v float64) int { return int(math.Ceil(v - pxEps)) }

// Reference rectangles at canonical resolution.
var (
	// Cutout is the dark window in the frame art the photo shows through.
	Cutout = Rect{X: 59.5, Y: 234.5, W: 684 - 59.5, H: 704 - 234.5}

	// CaptionAnchor is the center point of the name caption.
	CaptionAnchor = Point{X: CanonicalWidth / 2.0, Y: 865}

	// CaptionBounds is the band reserved for the caption below the cutout.
	CaptionBounds = Rect{X: Cutout.X, Y: 865 - 90, W: Cutout.W, H: 180}
)

// Placement is where a source image lands inside a surface: its top-left
// corner, the uniform scale applied to it and the resulting drawn size.
type Placement struct {
	X     float64
	Y     float64
	Scale float64
	W     float64
	H     float64
}

// CoverFit scales a srcW x srcH image uniformly so it fully covers target.
// A relatively wider image matches target's height and overflows to the
// right; anything else matches target's width and overflows downward. The
// image is anchored at target's top-left corner; callers clip to target.
func CoverFit(srcW, srcH int, target Rect) Placement {
	w := float64(max(srcW, 1))
	h := float64(max(srcH, 1))

	var scale float64
	if w/h > target.Aspect() {
		scale = target.H / h
	} else {
		scale = target.W / w
	}

	return Placement{
		X:     target.X,
		Y:     target.Y,
		Scale: scale,
		W:     w * scale,
		H:     h * scale,
	}
}

// Fill returns the non-uniform scale factors that stretch srcW x srcH to
// exactly res.
func Fill(srcW, srcH int, res Resolution) (sx, sy float64) {
	return float64(res.Width) / float64(max(srcW, 1)), float64(res.Height) / float64(max(srcH, 1))
}
