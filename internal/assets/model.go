package assets

import imagepkg "github.com/youruser/animelens/internal/image"

// Sticker is one decoration the visitor can drop on the poster.
type Sticker struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	// URI is what the image loader fetches: a path, URL or s3:// object.
	URI string `json:"-"`
}

func (s Sticker) Source() imagepkg.Source {
	return imagepkg.Src(s.URI)
}
