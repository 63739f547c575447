package imagepkg

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
)

// Typeface renders caption text.
type Typeface struct {
	font *truetype.Font
}

// DefaultTypeface is the embedded Go Bold face.
func DefaultTypeface() (*Typeface, error) {
	return parseTypeface(gobold.TTF)
}

// LoadTypeface reads a TrueType font file.
func LoadTypeface(path string) (*Typeface, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseTypeface(b)
}

func parseTypeface(b []byte) (*Typeface, error) {
	f, err := truetype.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return &Typeface{font: f}, nil
}

// RenderText draws text at size pixels onto a transparent image sized to
// the text's advance width and the face's ascent+descent. Empty text
// returns nil.
func (t *Typeface) RenderText(text string, size float64, fill color.Color) *image.NRGBA {
	if text == "" {
		return nil
	}
	face := truetype.NewFace(t.font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	defer face.Close()

	m := face.Metrics()
	w := font.MeasureString(face, text).Ceil()
	h := (m.Ascent + m.Descent).Ceil()
	if w <= 0 || h <= 0 {
		return nil
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fill),
		Face: face,
	}
	d.Dot = freetype.Pt(0, m.Ascent.Ceil())
	d.DrawString(text)
	return img
}
