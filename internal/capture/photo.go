package capture

import (
	"sync"
	"time"

	imagepkg "github.com/youruser/animelens/internal/image"
)

// Origin tells where a photo came from.
type Origin string

const (
	OriginCapture Origin = "capture"
	OriginUpload  Origin = "upload"
)

// Photo is the user's chosen picture, kept encoded.
type Photo struct {
	ID        string    `json:"id"`
	Data      []byte    `json:"-"`
	MediaType string    `json:"media_type"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Origin    Origin    `json:"origin"`
	Blank     bool      `json:"blank"`
	CreatedAt time.Time `json:"created_at"`
}

// URI returns the photo as a data: URI for the image loader.
func (p Photo) URI() string {
	return imagepkg.DataURI(p.MediaType, p.Data)
}

// PhotoSlot holds at most one photo. Putting a photo always replaces the
// current one.
type PhotoSlot struct {
	mu    sync.RWMutex
	photo *Photo
}

func NewPhotoSlot() *PhotoSlot {
	return &PhotoSlot{}
}

func (s *PhotoSlot) Put(p Photo) {
	s.mu.Lock()
	s.photo = &p
	s.mu.Unlock()
}

// Photos returns the slot's contents as a list of zero or one photo.
func (s *PhotoSlot) Photos() []Photo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.photo == nil {
		return []Photo{}
	}
	return []Photo{*s.photo}
}

func (s *PhotoSlot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.photo == nil {
		return 0
	}
	return 1
}

// At returns the photo at index i.
func (s *PhotoSlot) At(i int) (Photo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i != 0 || s.photo == nil {
		return Photo{}, false
	}
	return *s.photo, true
}

// Current is At(0).
func (s *PhotoSlot) Current() (Photo, bool) {
	return s.At(0)
}

// Delete removes the photo at index i and reports whether one was removed.
func (s *PhotoSlot) Delete(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i != 0 || s.photo == nil {
		return false
	}
	s.photo = nil
	return true
}

func (s *PhotoSlot) Clear() {
	s.mu.Lock()
	s.photo = nil
	s.mu.Unlock()
}
