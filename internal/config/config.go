package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string        `env:"LISTEN_ADDR" envDefault:":8080"`
	DatabasePath      string        `env:"DATABASE_PATH" envDefault:"lensfolio.db"`
	SessionSecret     string        `env:"SESSION_SECRET" envDefault:"lensfolio-dev-secret"`
	GinMode           string        `env:"GIN_MODE" envDefault:"release"`
	UploadDir         string        `env:"UPLOAD_DIR" envDefault:"web/static/uploads"`
	UploadURLPath     string        `env:"UPLOAD_URL_PATH" envDefault:"/static/uploads"`
	SiteBaseURL       string        `env:"SITE_BASE_URL" envDefault:"http://localhost:8080"`
	SuperRootUserName string        `env:"SUPER_ROOT_USER_NAME"`
	SuperRootPassword string        `env:"SUPER_ROOT_PASSWORD"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	RedisURL          string        `env:"REDIS_URL"`
	TranslationTTL    time.Duration `env:"TRANSLATION_CACHE_TTL" envDefault:"720h"`
	EnrichmentWorkers int           `env:"ENRICHMENT_CONCURRENCY" envDefault:"3"`
	AIRateLimit       float64       `env:"AI_RATE_LIMIT" envDefault:"2"`
	AIRateBurst       int           `env:"AI_RATE_BURST" envDefault:"4"`
	GeocoderBaseURL   string        `env:"GEOCODER_BASE_URL"`
	GeocoderUserAgent string        `env:"GEOCODER_USER_AGENT" envDefault:"lensfolio/1.0"`
}

// Load 先尝试加载 .env 文件，再从环境变量读取应用配置，并为缺失项提供默认值。
func Load() (AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := env.ParseAs[AppConfig]()
	if err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return normalize(cfg), nil
}

func normalize(cfg AppConfig) AppConfig {
	defaults := AppConfig{
		ListenAddr:        ":8080",
		DatabasePath:      "lensfolio.db",
		SessionSecret:     "lensfolio-dev-secret",
		GinMode:           "release",
		UploadDir:         "web/static/uploads",
		UploadURLPath:     "/static/uploads",
		SiteBaseURL:       "http://localhost:8080",
		LogLevel:          "info",
		GeocoderUserAgent: "lensfolio/1.0",
	}

	cfg.ListenAddr = fallback(cfg.ListenAddr, defaults.ListenAddr)
	cfg.DatabasePath = fallback(cfg.DatabasePath, defaults.DatabasePath)
	cfg.SessionSecret = fallback(cfg.SessionSecret, defaults.SessionSecret)
	cfg.GinMode = fallback(cfg.GinMode, defaults.GinMode)
	cfg.UploadDir = fallback(cfg.UploadDir, defaults.UploadDir)
	cfg.UploadURLPath = "/" + strings.Trim(fallback(cfg.UploadURLPath, defaults.UploadURLPath), "/")
	cfg.SiteBaseURL = strings.TrimRight(fallback(cfg.SiteBaseURL, defaults.SiteBaseURL), "/")
	cfg.LogLevel = strings.ToLower(fallback(cfg.LogLevel, defaults.LogLevel))
	cfg.GeocoderUserAgent = fallback(cfg.GeocoderUserAgent, defaults.GeocoderUserAgent)
	cfg.SuperRootUserName = strings.TrimSpace(cfg.SuperRootUserName)
	cfg.SuperRootPassword = strings.TrimSpace(cfg.SuperRootPassword)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.GeocoderBaseURL = strings.TrimRight(strings.TrimSpace(cfg.GeocoderBaseURL), "/")

	if cfg.EnrichmentWorkers <= 0 {
		cfg.EnrichmentWorkers = 3
	}
	if cfg.AIRateLimit <= 0 {
		cfg.AIRateLimit = 2
	}
	if cfg.AIRateBurst <= 0 {
		cfg.AIRateBurst = 4
	}
	if cfg.TranslationTTL <= 0 {
		cfg.TranslationTTL = 720 * time.Hour
	}
	return cfg
}

func fallback(value, def string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return def
}
