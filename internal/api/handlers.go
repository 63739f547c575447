package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/youruser/animelens/internal/assets"
	"github.com/youruser/animelens/internal/booth"
	"github.com/youruser/animelens/internal/capture"
	"github.com/youruser/animelens/internal/export"
	imagepkg "github.com/youruser/animelens/internal/image"
	"github.com/youruser/animelens/internal/scene"
)

// Handler serves the kiosk API on top of a session manager.
type Handler struct {
	manager   *booth.Manager
	catalog   *assets.Catalog
	publicURL string
	log       logrus.FieldLogger
}

func NewHandler(manager *booth.Manager, catalog *assets.Catalog, publicURL string, log logrus.FieldLogger) *Handler {
	if catalog == nil {
		catalog = assets.NewCatalog(nil)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		manager:   manager,
		catalog:   catalog,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		log:       log,
	}
}

// health
func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) stickerCatalog(c *gin.Context) {
	opt := assets.FilterOptions{FreeWords: c.Query("q")}
	if cat := c.Query("category"); cat != "" {
		opt.Categories = strings.Split(cat, ",")
	}
	out := assets.Filter(h.catalog.Stickers, opt)
	c.JSON(http.StatusOK, gin.H{"count": len(out), "stickers": out})
}

func (h *Handler) createSession(c *gin.Context) {
	s, err := h.manager.Create()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.State())
}

func (h *Handler) session(c *gin.Context) (*booth.Session, bool) {
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) getSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.State())
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.manager.Delete(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) startCamera(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.StartCamera(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.State())
}

func (h *Handler) stopCamera(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.StopCamera()
	c.JSON(http.StatusOK, s.State())
}

// pushFrame feeds one encoded frame into a push camera.
func (h *Handler) pushFrame(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	cam, ok := s.Devices().(*capture.PushCamera)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "this session's camera is not fed over HTTP"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, capture.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body) > capture.MaxUploadBytes {
		h.fail(c, capture.ErrUploadTooLarge)
		return
	}
	img, err := imagepkg.DecodeBytes(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "frame is not a decodable image"})
		return
	}
	if w, _ := strconv.Atoi(c.Query("display_width")); w > 0 {
		hgt, _ := strconv.Atoi(c.Query("display_height"))
		cam.SetDisplaySize(w, hgt)
	}
	cam.Publish(img)
	c.Status(http.StatusNoContent)
}

func (h *Handler) countdown(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := s.StartCountdown(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.State())
}

func (h *Handler) captureNow(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.CaptureNow(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := gin.H{"photo": res.Photo, "attempts": res.Attempts}
	if res.Warning != nil {
		resp["warning"] = res.Warning.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) upload(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	photo, err := s.Upload(fh.Header.Get("Content-Type"), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photo": photo})
}

func photoIndex(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo index"})
		return 0, false
	}
	return i, true
}

func (h *Handler) deletePhoto(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	i, ok := photoIndex(c)
	if !ok {
		return
	}
	if !s.DeletePhoto(i) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no photo at that index"})
		return
	}
	c.JSON(http.StatusOK, s.State())
}

func (h *Handler) clearPhotos(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.ClearPhotos()
	c.JSON(http.StatusOK, s.State())
}

func (h *Handler) downloadPhoto(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	i, ok := photoIndex(c)
	if !ok {
		return
	}
	res, err := s.DownloadPhoto(c.Request.Context(), i)
	if err != nil {
		h.fail(c, err)
		return
	}
	attachment(c, res)
}

func (h *Handler) goToEdit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.GoToEdit(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.State())
}

func (h *Handler) setName(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := c.BindJSON(&req); err != nil {
		return
	}
	s.SetName(req.Name)
	c.JSON(http.StatusOK, s.State())
}

func (h *Handler) cancelName(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.CancelName()
	c.JSON(http.StatusOK, s.State())
}

func (h *Handler) proceedToEdit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.ProceedToEdit(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.State())
}

func (h *Handler) backToCamera(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.BackToCamera()
	c.JSON(http.StatusOK, s.State())
}

func (h *Handler) addSticker(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		StickerID string `json:"sticker_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, ok := h.catalog.Lookup(req.StickerID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown sticker " + req.StickerID})
		return
	}
	info, err := s.AddSticker(c.Request.Context(), st.Source())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *Handler) selectSticker(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if err := c.BindJSON(&req); err != nil {
		return
	}
	if err := s.SelectSticker(req.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.State())
}

func (h *Handler) removeSticker(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	removed, err := s.RemoveSticker()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// transformSticker moves and/or rescales one sticker. Coordinates are the
// sticker center in preview pixels.
func (h *Handler) transformSticker(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		X     *float64 `json:"x"`
		Y     *float64 `json:"y"`
		Scale *float64 `json:"scale"`
	}
	if err := c.BindJSON(&req); err != nil {
		return
	}
	if (req.X == nil) != (req.Y == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "x and y go together"})
		return
	}
	if req.X == nil && req.Scale == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to change"})
		return
	}

	id := c.Param("sticker")
	var info scene.StickerInfo
	var err error
	if req.Scale != nil {
		if info, err = s.ScaleSticker(id, *req.Scale); err != nil {
			h.fail(c, err)
			return
		}
	}
	if req.X != nil {
		if info, err = s.MoveSticker(id, *req.X, *req.Y); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) preview(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	b, err := s.Preview()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", b)
}

func (h *Handler) poster(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.ExportPoster(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	attachment(c, res)
}

// posterQR returns a QR code linking to this session's poster download.
func (h *Handler) posterQR(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	size := 400
	if v, err := strconv.Atoi(c.Query("size")); err == nil && v > 0 {
		size = v
	}
	b, err := export.ShareQR(fmt.Sprintf("%s/api/sessions/%s/poster", h.publicURL, s.ID), size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", b)
}

func attachment(c *gin.Context, res *export.Result) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	c.DataFromReader(http.StatusOK, int64(len(res.Data)), res.MediaType, bytes.NewReader(res.Data), nil)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("api: request failed")
	}
	c.JSON(status, gin.H{"error": msg})
}

// statusFor maps domain errors to an HTTP status and the message the kiosk
// should show.
func statusFor(err error) (int, string) {
	var loadErr *imagepkg.ImageLoadError
	switch {
	case errors.Is(err, booth.ErrSessionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, booth.ErrSessionClosed):
		return http.StatusGone, err.Error()
	case errors.Is(err, booth.ErrNameRequired):
		return http.StatusBadRequest, booth.NameRequiredMessage
	case errors.Is(err, capture.ErrInvalidFileType):
		return http.StatusBadRequest, "Please select a valid image file"
	case errors.Is(err, capture.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden, booth.CameraErrorMessage
	case errors.Is(err, capture.ErrNoDevice):
		return http.StatusServiceUnavailable, booth.CameraErrorMessage
	case errors.Is(err, scene.ErrInvalidScale):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, scene.ErrStickerNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, export.ErrExportBlocked):
		return http.StatusUnprocessableEntity, export.BlockedMessage
	case errors.Is(err, export.ErrRenderFailed):
		return http.StatusInternalServerError, export.FailedMessage
	case errors.As(err, &loadErr):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, booth.ErrNoPhoto),
		errors.Is(err, booth.ErrWrongView),
		errors.Is(err, capture.ErrCameraOff),
		errors.Is(err, capture.ErrBusy),
		errors.Is(err, capture.ErrClosed),
		errors.Is(err, scene.ErrNotInitialized),
		errors.Is(err, scene.ErrSuperseded):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}
