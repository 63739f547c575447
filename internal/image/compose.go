package imagepkg

import (
	"bytes"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// NewCanvas returns a fully transparent w x h surface.
func NewCanvas(w, h int) *image.NRGBA {
	return imaging.New(w, h, color.NRGBA{})
}

// Mirror flips img horizontally, the way a selfie preview is shown.
func Mirror(img image.Image) *image.NRGBA {
	return imaging.FlipH(img)
}

// DrawLayer composites src onto dst with its top-left corner at (x, y),
// scaled by sx and sy. Only the part of src inside clip is drawn; an empty
// clip means no clipping beyond dst's own bounds. The result may be a new
// image; callers must use the returned value.
func DrawLayer(dst *image.NRGBA, src image.Image, x, y, sx, sy float64, clip image.Rectangle) *image.NRGBA {
	sb := src.Bounds()
	w := int(math.Round(float64(sb.Dx()) * sx))
	h := int(math.Round(float64(sb.Dy()) * sy))
	if w <= 0 || h <= 0 {
		return dst
	}

	var scaled *image.NRGBA
	if w == sb.Dx() && h == sb.Dy() {
		scaled = imaging.Clone(src)
	} else {
		scaled = imaging.Resize(src, w, h, imaging.Lanczos)
	}

	at := image.Rect(0, 0, w, h).Add(image.Pt(int(math.Round(x)), int(math.Round(y))))
	vis := at.Intersect(dst.Bounds())
	if !clip.Empty() {
		vis = vis.Intersect(clip)
	}
	if vis.Empty() {
		return dst
	}

	part := imaging.Crop(scaled, vis.Sub(at.Min))
	return imaging.Overlay(dst, part, vis.Min, 1.0)
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBytes decodes any format imaging understands, honoring EXIF
// orientation.
func DecodeBytes(b []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
}
