package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/youruser/animelens/internal/api"
	"github.com/youruser/animelens/internal/assets"
	"github.com/youruser/animelens/internal/booth"
	"github.com/youruser/animelens/internal/capture"
	"github.com/youruser/animelens/internal/config"
	"github.com/youruser/animelens/internal/export"
	imagepkg "github.com/youruser/animelens/internal/image"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logrus.WithError(err).Warn("failed to read .env")
	}
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		logrus.Fatal(err)
	}

	logrus.SetLevel(cfg.LogLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log := logrus.StandardLogger()

	ctx := context.Background()
	loader := newLoader(ctx, cfg, log)

	typeface, err := loadTypeface(cfg.FontPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load caption font")
	}

	// stickers are optional; the editor still works without them
	catalog, err := assets.LoadStickersFromDir(cfg.StickerDir)
	if err != nil {
		logrus.WithError(err).Warn("no sticker catalog")
		catalog = assets.NewCatalog(nil)
	}

	downloader, err := export.NewDownloader(ctx, cfg.OutputDir)
	if err != nil {
		logrus.WithError(err).Fatal("failed to set up output")
	}

	manager := booth.NewManager(booth.Deps{
		NewDevices: cameraFactory(cfg, log),
		Loader:     loader,
		Frame:      imagepkg.Src(cfg.FrameSource),
		Exporter:   export.NewPipeline(loader, typeface, export.WithLogger(log)),
		Downloader: downloader,
		Capture:    capture.DefaultConfig(),
		Log:        log,
	})
	defer manager.Close()

	if cfg.LogLevel < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(log))
	api.RegisterRoutes(r, api.NewHandler(manager, catalog, cfg.PublicURL, log))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: withCORS(cfg, r),
	}

	logrus.WithFields(logrus.Fields{
		"addr":     srv.Addr,
		"camera":   cfg.Camera,
		"frame":    imagepkg.ShortSource(cfg.FrameSource),
		"stickers": len(catalog.Stickers),
	}).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(srv)
}

func newLoader(ctx context.Context, cfg config.Config, log logrus.FieldLogger) *imagepkg.Loader {
	opts := []imagepkg.Option{
		imagepkg.WithOrigin(cfg.AssetOrigin),
		imagepkg.WithLogger(log),
	}
	if strings.HasPrefix(cfg.FrameSource, "s3://") || strings.HasPrefix(cfg.StickerDir, "s3://") || os.Getenv("AWS_REGION") != "" {
		f, err := imagepkg.NewDefaultS3Fetcher(ctx)
		if err != nil {
			log.WithError(err).Warn("s3 assets disabled")
		} else {
			opts = append(opts, imagepkg.WithFetcher("s3", f))
		}
	}
	return imagepkg.NewLoader(opts...)
}

func loadTypeface(path string) (*imagepkg.Typeface, error) {
	if path == "" {
		return imagepkg.DefaultTypeface()
	}
	return imagepkg.LoadTypeface(path)
}

func cameraFactory(cfg config.Config, log logrus.FieldLogger) func() (capture.MediaDevices, error) {
	if cfg.Camera == config.CameraV4L2 {
		return func() (capture.MediaDevices, error) {
			return capture.NewV4L2Camera(cfg.CameraDevice, 1280, 720, log)
		}
	}
	return func() (capture.MediaDevices, error) {
		return capture.NewPushCamera(), nil
	}
}

// withCORS lets the kiosk page call the API from a dev server on another
// port.
func withCORS(cfg config.Config, h http.Handler) http.Handler {
	origins := []string{"http://localhost:*", "http://127.0.0.1:*"}
	if cfg.AssetOrigin != "" {
		origins = append(origins, cfg.AssetOrigin)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Origin"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	})(h)
}

func waitForShutdown(srv *http.Server) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	<-ctx.Done()

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("server shutdown")
	}
}
