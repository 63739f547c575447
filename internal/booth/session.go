package booth

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/youruser/animelens/internal/capture"
	"github.com/youruser/animelens/internal/export"
	imagepkg "github.com/youruser/animelens/internal/image"
	"github.com/youruser/animelens/internal/scene"
)

// View is the screen the kiosk is showing.
type View string

const (
	ViewCamera View = "camera"
	ViewName   View = "name"
	ViewEdit   View = "edit"
)

const (
	// NoticeTTL is how long a temporary error stays up.
	NoticeTTL = 6 * time.Second

	CameraErrorMessage  = "Failed to access camera. Please check permissions."
	StickerErrorMessage = "Failed to load sticker."
	NameRequiredMessage = "Please enter your name!"
	BlankFrameMessage   = "Capture produced an empty frame after retries; saved the last attempt."
)

var (
	ErrNameRequired    = errors.New("please enter your name")
	ErrNoPhoto         = errors.New("no photo to edit")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrWrongView       = errors.New("not available on this screen")
)

// Notice is the message banner shown over the kiosk.
type Notice struct {
	Message   string    `json:"message"`
	Temporary bool      `json:"temporary"`
	ShownAt   time.Time `json:"shown_at"`
}

// State is a read-only snapshot of a session for the UI.
type State struct {
	ID              string              `json:"id"`
	View            View                `json:"view"`
	CameraOn        bool                `json:"camera_on"`
	CaptureState    string              `json:"capture_state"`
	Countdown       *int                `json:"countdown,omitempty"`
	Photos          []capture.Photo     `json:"photos"`
	Name            string              `json:"name"`
	FontSize        int                 `json:"font_size,omitempty"`
	DisplayFontSize int                 `json:"display_font_size,omitempty"`
	Stickers        []scene.StickerInfo `json:"stickers"`
	Notice          *Notice             `json:"notice,omitempty"`
	LastWarning     string              `json:"last_warning,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// Session is one visitor's pass through the booth: take or upload a photo,
// type a name, decorate and export. It owns its capture engine and at most
// one editor surface.
type Session struct {
	ID        string
	CreatedAt time.Time

	deps    Deps
	devices capture.MediaDevices
	camera  *capture.Engine
	log     logrus.FieldLogger

	mu          sync.Mutex
	view        View
	name        string
	editor      *scene.Engine
	countdown   *int
	notice      *Notice
	noticeGen   uint64
	noticeTimer *time.Timer
	lastWarning string
	closed      bool
}

func newSession(id string, deps Deps, devices capture.MediaDevices) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		deps:      deps,
		devices:   devices,
		view:      ViewCamera,
		log:       deps.Log.WithField("session", id),
	}
	s.camera = capture.NewEngine(devices,
		capture.WithConfig(deps.Capture),
		capture.WithLogger(s.log),
		capture.WithTickHandler(s.onTick),
	)
	return s
}

// Devices is the media source feeding this session's camera.
func (s *Session) Devices() capture.MediaDevices { return s.devices }

func (s *Session) onTick(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countdown = &n
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:           s.ID,
		View:         s.view,
		CameraOn:     s.camera.CameraOn(),
		CaptureState: s.camera.State().String(),
		Photos:       s.camera.Slot().Photos(),
		Name:         s.name,
		Stickers:     []scene.StickerInfo{},
		LastWarning:  s.lastWarning,
		CreatedAt:    s.CreatedAt,
	}
	if s.countdown != nil {
		n := *s.countdown
		st.Countdown = &n
	}
	if s.name != "" {
		c := scene.NewCaption(s.name)
		st.FontSize, st.DisplayFontSize = c.FontSize(), c.DisplayFontSize()
	}
	if s.editor != nil {
		st.Stickers = s.editor.Stickers()
	}
	if s.notice != nil {
		n := *s.notice
		st.Notice = &n
	}
	return st
}

// ShowTemporaryError puts msg up and takes it down after NoticeTTL, unless
// another notice replaced it in the meantime.
func (s *Session) ShowTemporaryError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showLocked(msg, true)
}

func (s *Session) showLocked(msg string, temporary bool) {
	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
		s.noticeTimer = nil
	}
	s.noticeGen++
	s.notice = &Notice{Message: msg, Temporary: temporary, ShownAt: time.Now()}
	if !temporary {
		return
	}
	g := s.noticeGen
	s.noticeTimer = time.AfterFunc(s.deps.NoticeTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.noticeGen == g {
			s.notice = nil
			s.noticeTimer = nil
		}
	})
}

func (s *Session) clearNoticeLocked() {
	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
		s.noticeTimer = nil
	}
	s.noticeGen++
	s.notice = nil
}

func (s *Session) Notice() (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice == nil {
		return Notice{}, false
	}
	return *s.notice, true
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// StartCamera opens the camera. A failure stays on screen until the next
// successful start.
func (s *Session) StartCamera(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.camera.StartCamera(ctx); err != nil {
		s.mu.Lock()
		s.showLocked(CameraErrorMessage, false)
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	if s.notice != nil && s.notice.Message == CameraErrorMessage {
		s.clearNoticeLocked()
	}
	s.view = ViewCamera
	s.mu.Unlock()
	return nil
}

func (s *Session) StopCamera() {
	s.camera.StopCamera()
	s.mu.Lock()
	s.countdown = nil
	s.mu.Unlock()
}

// StartCountdown begins the 3-2-1 countdown. The capture lands in the photo
// slot in the background; the returned channel reports it for callers that
// want to wait.
func (s *Session) StartCountdown() (<-chan capture.Result, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	results, err := s.camera.StartCountdown()
	if err != nil {
		return nil, err
	}
	out := make(chan capture.Result, 1)
	go func() {
		defer close(out)
		res, ok := <-results
		s.mu.Lock()
		s.countdown = nil
		s.mu.Unlock()
		if !ok {
			return
		}
		s.recordCapture(res)
		out <- res
	}()
	return out, nil
}

func (s *Session) CaptureNow(ctx context.Context) (capture.Result, error) {
	if err := s.checkOpen(); err != nil {
		return capture.Result{}, err
	}
	res, err := s.camera.CaptureNow(ctx)
	if err != nil {
		return res, err
	}
	s.recordCapture(res)
	return res, nil
}

func (s *Session) recordCapture(res capture.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.Warning == nil {
		s.lastWarning = ""
		return
	}
	s.lastWarning = res.Warning.String()
	s.showLocked(BlankFrameMessage, true)
}

// Upload replaces the photo with a user-chosen image file.
func (s *Session) Upload(mediaType string, r io.Reader) (capture.Photo, error) {
	if err := s.checkOpen(); err != nil {
		return capture.Photo{}, err
	}
	return s.camera.Upload(mediaType, r)
}

func (s *Session) Photo(i int) (capture.Photo, bool) {
	return s.camera.Slot().At(i)
}

func (s *Session) DeletePhoto(i int) bool {
	return s.camera.Slot().Delete(i)
}

func (s *Session) ClearPhotos() {
	s.camera.Slot().Clear()
}

// DownloadPhoto packages photo i as anime-lens-photo-<i+1>.png.
func (s *Session) DownloadPhoto(ctx context.Context, i int) (*export.Result, error) {
	p, ok := s.Photo(i)
	if !ok {
		return nil, ErrNoPhoto
	}
	res, err := export.PhotoResult(p, i+1)
	if err != nil {
		return nil, err
	}
	s.save(ctx, res)
	return res, nil
}

// GoToEdit stops the camera and asks for a name.
func (s *Session) GoToEdit() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, ok := s.camera.Slot().Current(); !ok {
		return ErrNoPhoto
	}
	s.StopCamera()
	s.mu.Lock()
	s.view = ViewName
	s.mu.Unlock()
	return nil
}

// SetName stores the typed name, uppercased and cut to the caption limit.
func (s *Session) SetName(name string) string {
	c := scene.NewCaption(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = c.Text()
	return s.name
}

func (s *Session) CancelName() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = ""
	s.view = ViewCamera
}

// ProceedToEdit mounts the editor with the frame and the current photo.
// A blank name is refused. Any previous editor is disposed first.
func (s *Session) ProceedToEdit(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.mu.Lock()
	caption := scene.NewCaption(s.name)
	if caption.Blank() {
		s.mu.Unlock()
		return ErrNameRequired
	}
	if s.view != ViewName && s.view != ViewEdit {
		s.mu.Unlock()
		return ErrWrongView
	}
	if s.editor != nil {
		s.editor.Dispose()
		s.editor = nil
	}
	s.mu.Unlock()

	photo, ok := s.camera.Slot().Current()
	if !ok {
		return ErrNoPhoto
	}

	ed := scene.NewEngine(s.deps.Loader, scene.WithLogger(s.log))
	if err := ed.Init(ctx, s.deps.Frame, &photo); err != nil {
		ed.Dispose()
		s.log.WithError(err).Error("booth: editor init failed")
		s.ShowTemporaryError(scene.FailureMessage)
		return err
	}
	ed.SetCaption(caption)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		ed.Dispose()
		return ErrSessionClosed
	}
	if s.editor != nil {
		s.editor.Dispose()
	}
	s.editor = ed
	s.view = ViewEdit
	return nil
}

// BackToCamera closes the editor and forgets the name.
func (s *Session) BackToCamera() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editor != nil {
		s.editor.Dispose()
		s.editor = nil
	}
	s.name = ""
	s.view = ViewCamera
}

func (s *Session) currentEditor() (*scene.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.editor == nil {
		return nil, scene.ErrNotInitialized
	}
	return s.editor, nil
}

func (s *Session) AddSticker(ctx context.Context, src imagepkg.Source) (scene.StickerInfo, error) {
	ed, err := s.currentEditor()
	if err != nil {
		return scene.StickerInfo{}, err
	}
	info, err := ed.AddSticker(ctx, src)
	if err != nil {
		s.ShowTemporaryError(StickerErrorMessage)
		return info, err
	}
	return info, nil
}

func (s *Session) RemoveSticker() (bool, error) {
	ed, err := s.currentEditor()
	if err != nil {
		return false, err
	}
	return ed.RemoveSticker(), nil
}

func (s *Session) SelectSticker(id string) error {
	ed, err := s.currentEditor()
	if err != nil {
		return err
	}
	return ed.Select(id)
}

func (s *Session) MoveSticker(id string, x, y float64) (scene.StickerInfo, error) {
	ed, err := s.currentEditor()
	if err != nil {
		return scene.StickerInfo{}, err
	}
	return ed.MoveSticker(id, x, y)
}

func (s *Session) ScaleSticker(id string, scale float64) (scene.StickerInfo, error) {
	ed, err := s.currentEditor()
	if err != nil {
		return scene.StickerInfo{}, err
	}
	return ed.ScaleSticker(id, scale)
}

// Preview is the edit-resolution PNG of the editor surface.
func (s *Session) Preview() ([]byte, error) {
	ed, err := s.currentEditor()
	if err != nil {
		return nil, err
	}
	img, err := ed.Render()
	if err != nil {
		return nil, err
	}
	return imagepkg.EncodePNG(img)
}

// ExportPoster renders wanted-poster.png. Export failures are also shown
// as a temporary notice.
func (s *Session) ExportPoster(ctx context.Context) (*export.Result, error) {
	ed, err := s.currentEditor()
	if err != nil {
		return nil, err
	}
	res, err := s.deps.Exporter.Poster(ctx, ed, ed.Caption())
	switch {
	case errors.Is(err, export.ErrExportBlocked):
		s.ShowTemporaryError(export.BlockedMessage)
		return nil, err
	case errors.Is(err, export.ErrRenderFailed):
		s.ShowTemporaryError(export.FailedMessage)
		return nil, err
	case err != nil:
		return nil, err
	}
	s.save(ctx, res)
	return res, nil
}

func (s *Session) save(ctx context.Context, res *export.Result) {
	if s.deps.Downloader == nil {
		return
	}
	loc, err := s.deps.Downloader.Save(ctx, res)
	if err != nil {
		s.log.WithError(err).Warn("booth: failed to keep a copy of the download")
		return
	}
	s.log.WithField("location", loc).Info("booth: download saved")
}

// Close stops the camera, disposes the editor and cancels timers. Calling
// it again is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.editor != nil {
		s.editor.Dispose()
		s.editor = nil
	}
	if s.noticeTimer != nil {
		s.noticeTimer.Stop()
		s.noticeTimer = nil
	}
	s.mu.Unlock()

	s.camera.Teardown()
}
