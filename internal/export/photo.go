package export

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/youruser/animelens/internal/capture"
	imagepkg "github.com/youruser/animelens/internal/image"
)

// PhotoFilename names the n-th photo download, counting from 1.
func PhotoFilename(n int) string {
	return fmt.Sprintf("anime-lens-photo-%d.png", n)
}

// PhotoResult packages a photo at its native resolution as a PNG download.
// Non-PNG uploads are re-encoded.
func PhotoResult(photo capture.Photo, n int) (*Result, error) {
	data := photo.Data
	w, h := photo.Width, photo.Height
	if photo.MediaType != MediaTypePNG || w == 0 || h == 0 {
		img, err := imagepkg.DecodeBytes(photo.Data)
		if err != nil {
			return nil, fmt.Errorf("decode photo %s: %w", photo.ID, err)
		}
		if photo.MediaType != MediaTypePNG {
			if data, err = imagepkg.EncodePNG(img); err != nil {
				return nil, fmt.Errorf("encode photo %s: %w", photo.ID, err)
			}
		}
		w, h = img.Bounds().Dx(), img.Bounds().Dy()
	}
	return &Result{
		Filename:  PhotoFilename(n),
		MediaType: MediaTypePNG,
		Data:      data,
		Width:     w,
		Height:    h,
	}, nil
}

// ShareQR encodes url as a PNG QR code so a phone can fetch the poster.
func ShareQR(url string, size int) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("share qr: empty url")
	}
	b, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("share qr: %w", err)
	}
	return b, nil
}
