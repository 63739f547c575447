package capture

import "image"

// blankSamples is roughly how many pixels IsBlank inspects.
const blankSamples = 1000

// IsBlank reports whether every sampled pixel of img is fully transparent.
// Pixels are sampled in row-major order at a stride of max(1, w*h/1000).
func IsBlank(img image.Image) bool {
	if img == nil {
		return true
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n := w * h
	if n == 0 {
		return true
	}
	step := max(1, n/blankSamples)

	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Stride == 4*w && len(nrgba.Pix) == 4*n {
		pix := nrgba.Pix
		for i := 3; i < len(pix); i += 4 * step {
			if pix[i] != 0 {
				return false
			}
		}
		return true
	}

	for k := 0; k < n; k += step {
		_, _, _, a := img.At(b.Min.X+k%w, b.Min.Y+k/w).RGBA()
		if a != 0 {
			return false
		}
	}
	return true
}
