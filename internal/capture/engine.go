package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	imagepkg "github.com/youruser/animelens/internal/image"
	"github.com/youruser/animelens/internal/retry"
)

// State is the capture engine's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateLive
	StateCountingDown
	StateCapturing
	StateCaptured
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLive:
		return "live"
	case StateCountingDown:
		return "counting_down"
	case StateCapturing:
		return "capturing"
	case StateCaptured:
		return "captured"
	default:
		return "unknown"
	}
}

var (
	ErrCameraOff       = errors.New("camera is not running")
	ErrBusy            = errors.New("a capture is already in progress")
	ErrClosed          = errors.New("capture engine is torn down")
	ErrInvalidFileType = errors.New("please select a valid image file")
	ErrUploadTooLarge  = errors.New("uploaded file is too large")

	// errStale marks work whose session was stopped while it ran.
	errStale = errors.New("capture superseded")
)

// MaxUploadBytes caps uploaded photo files.
const MaxUploadBytes = 20 << 20

// BlankFrameWarning reports that every capture attempt came back fully
// transparent and the last one was kept anyway.
type BlankFrameWarning struct {
	Attempts int
}

func (w *BlankFrameWarning) String() string {
	return fmt.Sprintf("capture produced an empty frame after %d attempts; kept the last attempt", w.Attempts)
}

// Config holds the engine's timing budgets.
type Config struct {
	CountdownFrom  int
	Tick           time.Duration
	ReadyTimeout   time.Duration
	ReadyPoll      time.Duration
	Attempts       int
	RetryDelay     time.Duration
	FallbackWidth  int
	FallbackHeight int
}

func DefaultConfig() Config {
	return Config{
		CountdownFrom:  3,
		Tick:           time.Second,
		ReadyTimeout:   time.Second,
		ReadyPoll:      100 * time.Millisecond,
		Attempts:       3,
		RetryDelay:     150 * time.Millisecond,
		FallbackWidth:  640,
		FallbackHeight: 480,
	}
}

// Result is the outcome of one capture.
type Result struct {
	Photo    Photo
	Attempts int
	Warning  *BlankFrameWarning
}

// Engine drives the camera session, the countdown and the capture routine,
// and owns the single photo slot.
type Engine struct {
	cfg     Config
	devices MediaDevices
	slot    *PhotoSlot
	log     logrus.FieldLogger
	onTick  func(n int)

	mu      sync.Mutex
	state   State
	session *MediaSession
	// gen is bumped whenever in-flight timers must be ignored
	gen             uint64
	cancelCountdown context.CancelFunc
	life            context.Context
	stop            context.CancelFunc
	closed          bool
}

type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithTickHandler registers fn to receive each countdown value, ending
// with 0 right before the capture.
func WithTickHandler(fn func(n int)) Option {
	return func(e *Engine) { e.onTick = fn }
}

func WithSlot(slot *PhotoSlot) Option {
	return func(e *Engine) { e.slot = slot }
}

func NewEngine(devices MediaDevices, opts ...Option) *Engine {
	e := &Engine{
		cfg:     DefaultConfig(),
		devices: devices,
		slot:    NewPhotoSlot(),
		log:     logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(e)
	}
	e.life, e.stop = context.WithCancel(context.Background())
	return e
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CameraOn reports whether a media session is open.
func (e *Engine) CameraOn() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

func (e *Engine) Slot() *PhotoSlot { return e.slot }

// StartCamera opens a user-facing, video-only session. A failure leaves the
// engine idle and can be retried.
func (e *Engine) StartCamera(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.session != nil {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	stream, err := e.devices.GetUserMedia(ctx, UserFacingVideo)
	if err != nil {
		e.log.WithError(err).Warn("camera: failed to open media session")
		return fmt.Errorf("start camera: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.session != nil {
		// lost a race with Teardown or another StartCamera
		newMediaSession(stream).Stop()
		if e.closed {
			return ErrClosed
		}
		return nil
	}
	e.session = newMediaSession(stream)
	e.state = StateLive
	e.log.Info("camera: media session started")
	return nil
}

// StopCamera stops every track, cancels a pending countdown and returns to
// idle. Stopping a stopped camera is a no-op.
func (e *Engine) StopCamera() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.gen++
	if e.cancelCountdown != nil {
		e.cancelCountdown()
		e.cancelCountdown = nil
	}
	if e.session != nil {
		e.session.Stop()
		e.session = nil
		e.log.Info("camera: media session stopped")
	}
	e.state = StateIdle
}

// Teardown releases the camera and stops all timers for good. It may be
// called any number of times.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.stopLocked()
	e.closed = true
	e.stop()
}

// StartCountdown counts down from Config.CountdownFrom, one value per
// Tick, and captures exactly once when it reaches zero. The returned
// channel yields the capture result and is closed afterwards; it is closed
// without a value if the camera stops first or the capture fails.
func (e *Engine) StartCountdown() (<-chan Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.session == nil {
		return nil, ErrCameraOff
	}
	if e.state == StateCountingDown || e.state == StateCapturing {
		return nil, ErrBusy
	}

	e.gen++
	g := e.gen
	ctx, cancel := context.WithCancel(e.life)
	e.cancelCountdown = cancel
	e.state = StateCountingDown

	out := make(chan Result, 1)
	go e.runCountdown(ctx, g, out)
	return out, nil
}

func (e *Engine) runCountdown(ctx context.Context, g uint64, out chan<- Result) {
	defer close(out)

	for n := e.cfg.CountdownFrom; ; n-- {
		if !e.isCurrent(g) {
			return
		}
		if e.onTick != nil {
			e.onTick(n)
		}
		if n <= 0 {
			break
		}
		if err := retry.Sleep(ctx, e.cfg.Tick); err != nil {
			return
		}
	}

	res, err := e.capture(ctx, g)
	if err != nil {
		if !errors.Is(err, errStale) {
			e.log.WithError(err).Error("camera: countdown capture failed")
		}
		return
	}
	out <- res
}

// CaptureNow runs the capture routine immediately.
func (e *Engine) CaptureNow(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Result{}, ErrClosed
	}
	if e.state == StateCountingDown || e.state == StateCapturing {
		e.mu.Unlock()
		return Result{}, ErrBusy
	}
	g := e.gen
	e.mu.Unlock()

	res, err := e.capture(ctx, g)
	if errors.Is(err, errStale) {
		return Result{}, ErrCameraOff
	}
	return res, err
}

func (e *Engine) isCurrent(g uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen == g && !e.closed
}

func (e *Engine) capture(ctx context.Context, g uint64) (Result, error) {
	e.mu.Lock()
	if e.gen != g || e.closed {
		e.mu.Unlock()
		return Result{}, errStale
	}
	if e.session == nil {
		e.mu.Unlock()
		return Result{}, ErrCameraOff
	}
	src := e.session.Source()
	e.state = StateCapturing
	e.mu.Unlock()

	res, err := e.grab(ctx, src)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != g || e.closed {
		return Result{}, errStale
	}
	e.cancelCountdown = nil
	if err != nil {
		e.state = StateLive
		return Result{}, err
	}
	e.slot.Put(res.Photo)
	e.state = StateCaptured
	return res, nil
}

// grab waits for the source to report its size, then draws mirrored
// frames until one is not fully transparent or the attempts run out.
func (e *Engine) grab(ctx context.Context, src VideoSource) (Result, error) {
	hasSize := func() bool {
		w, h := src.VideoSize()
		return w > 0 && h > 0
	}
	retry.Poll(ctx, e.cfg.ReadyPoll, e.cfg.ReadyTimeout, hasSize)

	w, h := src.VideoSize()
	if w <= 0 || h <= 0 {
		w, h = src.DisplaySize()
		if w <= 0 || h <= 0 {
			w, h = e.cfg.FallbackWidth, e.cfg.FallbackHeight
		}
		e.log.WithFields(logrus.Fields{"width": w, "height": h}).
			Warn("camera: video dimensions not ready, using fallback")
		if err := src.Play(ctx); err != nil {
			e.log.WithError(err).Debug("camera: play after fallback failed")
		}
	}

	policy := retry.Policy{Attempts: e.cfg.Attempts, Backoff: e.cfg.RetryDelay}
	frame, attempts, ok, err := retry.Until(ctx, policy,
		func(ctx context.Context, attempt int) (*image.NRGBA, error) {
			img := drawMirrored(src.CurrentFrame(), w, h)
			e.log.WithFields(logrus.Fields{"attempt": attempt, "empty": IsBlank(img)}).Debug("camera: capture attempt")
			return img, nil
		},
		func(img *image.NRGBA) bool { return !IsBlank(img) },
	)
	if err != nil {
		return Result{}, err
	}

	res := Result{Attempts: attempts}
	if !ok {
		res.Warning = &BlankFrameWarning{Attempts: attempts}
		e.log.WithField("attempts", attempts).Warn("camera: " + res.Warning.String())
	}

	data, err := imagepkg.EncodePNG(frame)
	if err != nil {
		return Result{}, fmt.Errorf("encode capture: %w", err)
	}
	res.Photo = Photo{
		ID:        uuid.NewString(),
		Data:      data,
		MediaType: "image/png",
		Width:     w,
		Height:    h,
		Origin:    OriginCapture,
		Blank:     !ok,
		CreatedAt: time.Now(),
	}
	return res, nil
}

// drawMirrored scales frame to w x h and flips it horizontally so the
// still matches the mirrored live preview.
func drawMirrored(frame image.Image, w, h int) *image.NRGBA {
	canvas := imagepkg.NewCanvas(w, h)
	if frame == nil {
		return canvas
	}
	fb := frame.Bounds()
	if fb.Empty() {
		return canvas
	}
	sx := float64(w) / float64(fb.Dx())
	sy := float64(h) / float64(fb.Dy())
	return imagepkg.DrawLayer(canvas, imagepkg.Mirror(frame), 0, 0, sx, sy, image.Rectangle{})
}

// Upload decodes a user-chosen file into the photo slot. Files whose media
// type is not image/* are rejected without touching the slot.
func (e *Engine) Upload(mediaType string, r io.Reader) (Photo, error) {
	if !strings.HasPrefix(mediaType, "image/") {
		return Photo{}, ErrInvalidFileType
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return Photo{}, ErrClosed
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return Photo{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return Photo{}, ErrUploadTooLarge
	}
	img, err := imagepkg.DecodeBytes(data)
	if err != nil {
		return Photo{}, fmt.Errorf("%w: %v", ErrInvalidFileType, err)
	}

	b := img.Bounds()
	p := Photo{
		ID:        uuid.NewString(),
		Data:      data,
		MediaType: mediaType,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Origin:    OriginUpload,
		CreatedAt: time.Now(),
	}
	e.slot.Put(p)
	e.log.WithFields(logrus.Fields{"photo_id": p.ID, "media_type": mediaType}).Info("camera: photo uploaded")
	return p, nil
}
