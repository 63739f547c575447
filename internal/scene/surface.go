package scene

import (
	"errors"
	"image"
	"sync"

	"github.com/youruser/animelens/internal/geometry"
	imagepkg "github.com/youruser/animelens/internal/image"
)

var (
	// ErrTainted is returned when a layer came from an origin that did not
	// permit pixel read-back.
	ErrTainted  = errors.New("surface contains cross-origin pixels")
	ErrDisposed = errors.New("surface is disposed")
)

// Surface is an ordered stack of layers at a fixed resolution. Later layers
// draw on top. At most one layer is active at a time.
type Surface struct {
	res geometry.Resolution

	mu       sync.RWMutex
	layers   []*Layer
	active   *Layer
	disposed bool
}

func NewSurface(res geometry.Resolution) *Surface {
	return &Surface{res: res}
}

func (s *Surface) Resolution() geometry.Resolution { return s.res }

func (s *Surface) Add(l *Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = append(s.layers, l)
}

// Remove drops l from the stack and reports whether it was present.
func (s *Surface) Remove(l *Layer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.layers {
		if cur == l {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			if s.active == l {
				s.active = nil
			}
			return true
		}
	}
	return false
}

func (s *Surface) BringToFront(l *Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.layers {
		if cur == l {
			s.layers = append(append(s.layers[:i], s.layers[i+1:]...), l)
			return
		}
	}
}

func (s *Surface) SetActive(l *Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = l
}

func (s *Surface) Active() *Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Layers returns the stack bottom to top.
func (s *Surface) Layers() []*Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Layer(nil), s.layers...)
}

// Dispose releases the layers. Calling it again is a no-op.
func (s *Surface) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers = nil
	s.active = nil
	s.disposed = true
}

func (s *Surface) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// Rasterize draws every layer into a new image scaled by multiplier. It
// fails with ErrTainted if any layer holds cross-origin pixels.
func (s *Surface) Rasterize(multiplier float64) (*image.NRGBA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disposed {
		return nil, ErrDisposed
	}
	for _, l := range s.layers {
		if l.tainted() {
			return nil, ErrTainted
		}
	}

	w := round(float64(s.res.Width) * multiplier)
	h := round(float64(s.res.Height) * multiplier)
	out := imagepkg.NewCanvas(w, h)
	for _, l := range s.layers {
		out = l.draw(out, multiplier)
	}
	return out, nil
}
