package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// PushCamera is a MediaDevices whose frames are pushed in from outside,
// typically by the kiosk page posting its preview frames. It keeps only the
// newest frame; older ones are overwritten.
type PushCamera struct {
	mu       sync.RWMutex
	frame    image.Image
	displayW int
	displayH int
	denied   bool

	published uint64
}

func NewPushCamera() *PushCamera {
	return &PushCamera{}
}

// Publish replaces the current frame.
func (c *PushCamera) Publish(img image.Image) {
	c.mu.Lock()
	c.frame = img
	c.mu.Unlock()
	atomic.AddUint64(&c.published, 1)
}

// Published is the number of frames received so far.
func (c *PushCamera) Published() uint64 {
	return atomic.LoadUint64(&c.published)
}

// SetDisplaySize records the preview element's size.
func (c *PushCamera) SetDisplaySize(w, h int) {
	c.mu.Lock()
	c.displayW, c.displayH = w, h
	c.mu.Unlock()
}

// SetDenied makes GetUserMedia fail with ErrPermissionDenied, as when the
// page reports that the browser refused access.
func (c *PushCamera) SetDenied(denied bool) {
	c.mu.Lock()
	c.denied = denied
	c.mu.Unlock()
}

func (c *PushCamera) GetUserMedia(ctx context.Context, cons Constraints) (Stream, error) {
	if !cons.Video {
		return nil, fmt.Errorf("%w: video track required", ErrNoDevice)
	}
	if cons.Audio {
		return nil, fmt.Errorf("%w: audio capture is not supported", ErrNoDevice)
	}
	c.mu.RLock()
	denied := c.denied
	c.mu.RUnlock()
	if denied {
		return nil, ErrPermissionDenied
	}
	return &pushStream{cam: c, track: &pushTrack{}}, nil
}

type pushStream struct {
	cam   *PushCamera
	track *pushTrack
}

func (s *pushStream) Tracks() []Track { return []Track{s.track} }

func (s *pushStream) VideoSize() (int, int) {
	f := s.CurrentFrame()
	if f == nil {
		return 0, 0
	}
	b := f.Bounds()
	return b.Dx(), b.Dy()
}

func (s *pushStream) DisplaySize() (int, int) {
	s.cam.mu.RLock()
	defer s.cam.mu.RUnlock()
	return s.cam.displayW, s.cam.displayH
}

func (s *pushStream) Play(ctx context.Context) error { return nil }

func (s *pushStream) CurrentFrame() image.Image {
	if !s.track.Live() {
		return nil
	}
	s.cam.mu.RLock()
	defer s.cam.mu.RUnlock()
	return s.cam.frame
}

type pushTrack struct {
	stopped atomic.Bool
}

func (t *pushTrack) Kind() string { return "video" }
func (t *pushTrack) Stop()        { t.stopped.Store(true) }
func (t *pushTrack) Live() bool   { return !t.stopped.Load() }
