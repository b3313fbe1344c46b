package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/lensfolio/internal/config"
	"github.com/lensfolio/internal/db"
	"github.com/lensfolio/internal/service"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// backfill_translations 对全部作品集执行一次双语补全，用于修复翻译服务故障期间留下的空译文。
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	var dbPath string
	var onlyPublished bool
	flag.StringVar(&dbPath, "db", cfg.DatabasePath, "sqlite db path")
	flag.BoolVar(&onlyPublished, "published", false, "only backfill published picture sets")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := db.Init(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "init db: %v\n", err)
		os.Exit(1)
	}

	settings := service.NewSystemSettingService(db.DB)
	translator := service.NewAITranslationService(settings, service.NewMemoryTranslationCache(cfg.TranslationTTL), logger)
	translator.SetRateLimiter(rate.NewLimiter(rate.Limit(cfg.AIRateLimit), cfg.AIRateBurst))
	taxonomy := service.NewTaxonomyService(db.DB, logger)
	pictureSets := service.NewPictureSetService(db.DB, taxonomy, service.NewLocationService(db.DB, nil, logger),
		service.NewAutofillEngine(translator, logger), nil, nil, logger)

	query := db.DB.Model(&db.PictureSet{}).Order("id asc")
	if onlyPublished {
		query = query.Where("is_published = ?", true)
	}
	var ids []uint
	if err := query.Pluck("id", &ids).Error; err != nil {
		fmt.Fprintf(os.Stderr, "list picture sets: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	failed := 0
	for _, id := range ids {
		if err := pictureSets.FillTranslations(ctx, id); err != nil {
			failed++
			logger.Warn("backfill picture set failed", zap.Uint("id", id), zap.Error(err))
		}
	}

	fmt.Printf("done: processed %d picture sets, %d failed\n", len(ids), failed)
	if failed > 0 {
		os.Exit(1)
	}
}
