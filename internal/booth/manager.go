package booth

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/youruser/animelens/internal/capture"
	"github.com/youruser/animelens/internal/export"
	imagepkg "github.com/youruser/animelens/internal/image"
	"github.com/youruser/animelens/internal/scene"
)

// Deps is everything a session needs from the process.
type Deps struct {
	// NewDevices returns the camera for a new session.
	NewDevices func() (capture.MediaDevices, error)
	Loader     scene.ImageLoader
	Frame      imagepkg.Source
	Exporter   *export.Pipeline
	// Downloader keeps a copy of every download; nil disables it.
	Downloader export.Downloader
	Capture    capture.Config
	NoticeTTL  time.Duration
	Log        logrus.FieldLogger
}

// Manager owns the live sessions.
type Manager struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.NoticeTTL <= 0 {
		deps.NoticeTTL = NoticeTTL
	}
	if deps.Capture == (capture.Config{}) {
		deps.Capture = capture.DefaultConfig()
	}
	if deps.NewDevices == nil {
		deps.NewDevices = func() (capture.MediaDevices, error) {
			return capture.NewPushCamera(), nil
		}
	}
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Create() (*Session, error) {
	devices, err := m.deps.NewDevices()
	if err != nil {
		return nil, fmt.Errorf("open media devices: %w", err)
	}
	s := newSession(ulid.Make().String(), m.deps, devices)

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.deps.Log.WithFields(logrus.Fields{"session": s.ID, "live": n}).Info("booth: session created")
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Delete closes and forgets a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.Close()
	m.deps.Log.WithField("session", id).Info("booth: session closed")
	return nil
}

// IDs lists live sessions, oldest first. ULIDs sort by creation time.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close tears every session down.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// IsNotFound reports whether err means the session id is unknown.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
