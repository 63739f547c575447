package capture

import (
	"context"
	"errors"
	"image"
	"sync"
)

var (
	// ErrPermissionDenied means the user or host refused camera access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrNoDevice means no matching video device exists.
	ErrNoDevice = errors.New("no camera device")
)

// Constraints describe the stream requested from MediaDevices.
type Constraints struct {
	FacingMode string
	Video      bool
	Audio      bool
}

// UserFacingVideo asks for the front camera, video only.
var UserFacingVideo = Constraints{FacingMode: "user", Video: true}

// MediaDevices hands out camera streams.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// Track is one media track of a stream.
type Track interface {
	Kind() string
	Stop()
	Live() bool
}

// VideoSource is what the capture routine samples.
type VideoSource interface {
	// VideoSize is the intrinsic frame size, 0x0 until the first frame
	// has been decoded.
	VideoSize() (w, h int)
	// DisplaySize is the preview's on-screen size, 0x0 if unknown.
	DisplaySize() (w, h int)
	// Play asks a paused source to resume.
	Play(ctx context.Context) error
	// CurrentFrame returns the newest frame, or nil.
	CurrentFrame() image.Image
}

// Stream is a live camera stream.
type Stream interface {
	VideoSource
	Tracks() []Track
}

// MediaSession is the engine's handle on a live stream.
type MediaSession struct {
	stream Stream
	once   sync.Once
}

func newMediaSession(s Stream) *MediaSession {
	return &MediaSession{stream: s}
}

// Stop stops every track. Safe to call more than once.
func (m *MediaSession) Stop() {
	m.once.Do(func() {
		for _, t := range m.stream.Tracks() {
			t.Stop()
		}
	})
}

// Live reports whether any track is still running.
func (m *MediaSession) Live() bool {
	for _, t := range m.stream.Tracks() {
		if t.Live() {
			return true
		}
	}
	return false
}

func (m *MediaSession) Source() VideoSource { return m.stream }
