package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/lensfolio/internal/config"
	"github.com/lensfolio/internal/db"
	"github.com/lensfolio/internal/handler"
	"github.com/lensfolio/internal/router"
	"github.com/lensfolio/internal/service"
	"github.com/lensfolio/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	if err := db.EnsureUser(cfg.SuperRootUserName, cfg.SuperRootPassword); err != nil {
		logger.Fatal("failed to ensure super root user", zap.Error(err))
	}

	store, err := storage.NewLocalStore(cfg.UploadDir, cfg.UploadURLPath, logger)
	if err != nil {
		logger.Fatal("failed to prepare upload dir", zap.Error(err))
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.AIRateLimit), cfg.AIRateBurst)
	cache := newTranslationCache(cfg, logger)

	settings := service.NewSystemSettingService(db.DB)
	translator := service.NewAITranslationService(settings, cache, logger)
	translator.SetRateLimiter(limiter)
	analyzer := service.NewAIImageAnalysisService(settings, logger)
	analyzer.SetRateLimiter(limiter)
	analyzer.SetPublicBaseURL(cfg.SiteBaseURL)

	var geocoder service.Geocoder
	if cfg.GeocoderBaseURL != "" {
		geocoder = service.NewNominatimGeocoder(cfg.GeocoderBaseURL, cfg.GeocoderUserAgent)
	}

	autofill := service.NewAutofillEngine(translator, logger)
	taxonomy := service.NewTaxonomyService(db.DB, logger)
	locations := service.NewLocationService(db.DB, geocoder, logger)
	enrichment := service.NewEnrichmentRunner(db.DB, analyzer, autofill, taxonomy, store, cfg.EnrichmentWorkers, logger)
	pictureSets := service.NewPictureSetService(db.DB, taxonomy, locations, autofill, enrichment, store, logger)
	pictureSets.SetUploadURLPath(cfg.UploadURLPath)

	api := handler.NewAPI(handler.Options{
		DB:          db.DB,
		PictureSets: pictureSets,
		Taxonomy:    taxonomy,
		Sections:    service.NewSectionService(db.DB),
		System:      settings,
		Store:       store,
		Logger:      logger,
	})

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(api, router.Config{
		SessionSecret: cfg.SessionSecret,
		UploadDir:     cfg.UploadDir,
		UploadURLPath: cfg.UploadURLPath,
		Logger:        logger,
	})
	logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := r.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("failed to run server", zap.Error(err))
	}
}

func newLogger(cfg config.AppConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewDevelopmentConfig()
	if cfg.GinMode == gin.ReleaseMode {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// newTranslationCache 配置了 REDIS_URL 时使用共享缓存，连接失败则退回进程内缓存。
func newTranslationCache(cfg config.AppConfig, logger *zap.Logger) service.TranslationCache {
	if cfg.RedisURL == "" {
		return service.NewMemoryTranslationCache(cfg.TranslationTTL)
	}
	cache, err := service.NewRedisTranslationCache(context.Background(), cfg.RedisURL, cfg.TranslationTTL)
	if err != nil {
		logger.Warn("redis translation cache unavailable, falling back to memory", zap.Error(err))
		return service.NewMemoryTranslationCache(cfg.TranslationTTL)
	}
	return cache
}
