package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	CameraPush = "push"
	CameraV4L2 = "v4l2"
)

type Config struct {
	Port         int
	LogLevel     logrus.Level
	AssetDir     string
	FrameSource  string
	StickerDir   string
	OutputDir    string
	Camera       string
	CameraDevice string
	FontPath     string
	PublicURL    string
	AssetOrigin  string
}

// LoadDotEnv reads .env files into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ParseFlags reads flags first and falls back to environment variables.
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var level string

	fs := flag.NewFlagSet("animelens", flag.ContinueOnError)

	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&level, "loglevel", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.AssetDir, "assets", "", "Asset directory")
	fs.StringVar(&cfg.FrameSource, "frame", "", "Poster frame image (path, URL or s3://)")
	fs.StringVar(&cfg.StickerDir, "stickers", "", "Sticker directory")
	fs.StringVar(&cfg.OutputDir, "out", "", "Where to keep downloads (directory or s3://bucket/prefix)")
	fs.StringVar(&cfg.Camera, "camera", "", "Camera source (push or v4l2)")
	fs.StringVar(&cfg.CameraDevice, "device", "", "V4L2 device")
	fs.StringVar(&cfg.FontPath, "font", "", "TrueType font for the caption")
	fs.StringVar(&cfg.PublicURL, "public-url", "", "Base URL phones use to fetch posters")
	fs.StringVar(&cfg.AssetOrigin, "origin", "", "Origin the kiosk page is served from")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 8080
		}
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("port %d out of range", cfg.Port)
	}

	if level == "" {
		level = envOr("LOG_LEVEL", "info")
	}
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return Config{}, fmt.Errorf("invalid log level %q", level)
	}
	cfg.LogLevel = lv

	fallback(&cfg.AssetDir, "ASSET_DIR", "public")
	fallback(&cfg.FrameSource, "FRAME_SOURCE", filepath.Join(cfg.AssetDir, "frame", "frame.png"))
	fallback(&cfg.StickerDir, "STICKER_DIR", filepath.Join(cfg.AssetDir, "stickers"))
	fallback(&cfg.OutputDir, "OUTPUT_DIR", "")
	fallback(&cfg.Camera, "CAMERA", CameraPush)
	fallback(&cfg.CameraDevice, "CAMERA_DEVICE", "/dev/video0")
	fallback(&cfg.FontPath, "FONT_PATH", "")
	fallback(&cfg.PublicURL, "PUBLIC_URL", fmt.Sprintf("http://localhost:%d", cfg.Port))
	fallback(&cfg.AssetOrigin, "ASSET_ORIGIN", "")

	if cfg.Camera != CameraPush && cfg.Camera != CameraV4L2 {
		return Config{}, fmt.Errorf("unknown camera %q (use push or v4l2)", cfg.Camera)
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fallback(dst *string, key, def string) {
	if *dst == "" {
		*dst = envOr(key, def)
	}
}
