package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lensfolio/internal/db"
	"github.com/lensfolio/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	minEnrichmentConcurrency = 1
	maxEnrichmentConcurrency = 6
)

// EnrichmentOptions 控制批量补全时需要调用的 AI 能力。
// Concurrency 为 0 时使用配置的默认值，其余取值被限制在 [1, 6]。
type EnrichmentOptions struct {
	GenerateTitle       bool `json:"generateTitle"`
	GenerateSubtitle    bool `json:"generateSubtitle"`
	GenerateDescription bool `json:"generateDescription"`
	GenerateTags        bool `json:"generateTags"`
	Concurrency         int  `json:"concurrency" binding:"min=0,max=64"`
}

// Any reports whether at least one generation flag is set.
func (o EnrichmentOptions) Any() bool {
	return o.GenerateTitle || o.GenerateSubtitle || o.GenerateDescription || o.GenerateTags
}

// EnrichmentResult 记录单张图片的补全结果；Err 汇总该图片遇到的全部错误。
type EnrichmentResult struct {
	PictureID            uint   `json:"pictureId"`
	TitleGenerated       bool   `json:"titleGenerated"`
	SubtitleGenerated    bool   `json:"subtitleGenerated"`
	DescriptionGenerated bool   `json:"descriptionGenerated"`
	TranslationsFilled   bool   `json:"translationsFilled"`
	TagsAdded            []uint `json:"tagsAdded"`
	Error                string `json:"error,omitempty"`
	Err                  error  `json:"-"`
}

// EnrichmentRunner 以有限并发逐张图片执行 AI 生成、双语补全与标签生成。
type EnrichmentRunner struct {
	db                 *gorm.DB
	analyzer           ImageAnalyzer
	autofill           *AutofillEngine
	taxonomy           *TaxonomyService
	store              storage.Store
	defaultConcurrency int
	logger             *zap.Logger
}

func NewEnrichmentRunner(gdb *gorm.DB, analyzer ImageAnalyzer, autofill *AutofillEngine, taxonomy *TaxonomyService, store storage.Store, defaultConcurrency int, logger *zap.Logger) *EnrichmentRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrichmentRunner{
		db:                 gdb,
		analyzer:           analyzer,
		autofill:           autofill,
		taxonomy:           taxonomy,
		store:              store,
		defaultConcurrency: defaultConcurrency,
		logger:             logger,
	}
}

func clampConcurrency(requested, fallback int) int {
	value := requested
	if value == 0 {
		value = fallback
	}
	if value < minEnrichmentConcurrency {
		return minEnrichmentConcurrency
	}
	if value > maxEnrichmentConcurrency {
		return maxEnrichmentConcurrency
	}
	return value
}

// Run 对每张图片执行补全，单张失败不会取消其他任务；结果顺序与 pictureIDs 一致。
func (r *EnrichmentRunner) Run(ctx context.Context, pictureIDs []uint, opts EnrichmentOptions) []EnrichmentResult {
	results := make([]EnrichmentResult, len(pictureIDs))
	if len(pictureIDs) == 0 {
		return results
	}

	limit := clampConcurrency(opts.Concurrency, r.defaultConcurrency)
	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range pictureIDs {
		g.Go(func() error {
			results[i] = r.enrichPicture(ctx, id, opts)
			return nil
		})
	}
	_ = g.Wait()

	for i, result := range results {
		if result.Err != nil {
			results[i].Error = result.Err.Error()
			r.logger.Warn("picture enrichment incomplete", zap.Uint("picture_id", result.PictureID), zap.Error(result.Err))
		}
	}
	return results
}

func (r *EnrichmentRunner) enrichPicture(ctx context.Context, pictureID uint, opts EnrichmentOptions) (result EnrichmentResult) {
	result.PictureID = pictureID
	defer func() {
		if recovered := recover(); recovered != nil {
			result.Err = errors.Join(result.Err, fmt.Errorf("enrichment panic: %v", recovered))
		}
	}()

	gdb := r.db.WithContext(ctx)
	var picture db.Picture
	if err := gdb.First(&picture, pictureID).Error; err != nil {
		result.Err = fmt.Errorf("load picture: %w", err)
		return result
	}

	imageURL := r.imageURL(picture)
	var aiErrs []error

	updates := map[string]interface{}{}
	generate := []struct {
		enabled bool
		current *string
		kind    ImageAnalysisKind
		column  string
		flag    *bool
	}{
		{opts.GenerateTitle, &picture.Title, AnalysisTitle, "title", &result.TitleGenerated},
		{opts.GenerateSubtitle, &picture.Subtitle, AnalysisSubtitle, "subtitle", &result.SubtitleGenerated},
		{opts.GenerateDescription, &picture.Description, AnalysisDescription, "description", &result.DescriptionGenerated},
	}
	for _, item := range generate {
		if !item.enabled || strings.TrimSpace(*item.current) != "" {
			continue
		}
		text, err := r.analyze(ctx, imageURL, item.kind)
		if err != nil {
			aiErrs = append(aiErrs, fmt.Errorf("generate %s: %w", item.kind, err))
			continue
		}
		if text == "" {
			continue
		}
		*item.current = text
		updates[item.column] = text
		*item.flag = true
	}
	if len(updates) > 0 {
		if err := gdb.Model(&db.Picture{}).Where("id = ?", pictureID).Updates(updates).Error; err != nil {
			result.Err = errors.Join(append(aiErrs, fmt.Errorf("save generated text: %w", err))...)
			return result
		}
	}

	if r.autofill != nil {
		texts, err := loadPictureTexts(ctx, r.db, picture)
		if err != nil {
			result.Err = errors.Join(append(aiErrs, err)...)
			return result
		}
		if r.autofill.FillTexts(ctx, &texts) {
			if err := savePictureTexts(ctx, r.db, pictureID, texts); err != nil {
				result.Err = errors.Join(append(aiErrs, err)...)
				return result
			}
			result.TranslationsFilled = true
		}
	}

	if opts.GenerateTags {
		added, err := r.generateTags(ctx, pictureID, imageURL)
		if err != nil {
			aiErrs = append(aiErrs, err)
		}
		result.TagsAdded = added
	}

	result.Err = errors.Join(aiErrs...)
	return result
}

// generateTags 仅在图片当前没有任何标签时调用模型，新标签以并集方式追加。
func (r *EnrichmentRunner) generateTags(ctx context.Context, pictureID uint, imageURL string) ([]uint, error) {
	existing, err := PictureTags.Existing(ctx, r.db, pictureID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}

	raw, err := r.analyze(ctx, imageURL, AnalysisTags)
	if err != nil {
		return nil, fmt.Errorf("generate tags: %w", err)
	}
	names := ParseTagList(raw)
	if len(names) == 0 || r.taxonomy == nil {
		return nil, nil
	}

	ids, err := r.taxonomy.EnsureTagIDs(ctx, r.db, names, db.TagTypeTopic)
	if err != nil {
		return nil, err
	}
	return PictureTags.AddOnly(ctx, r.db, pictureID, ids)
}

func (r *EnrichmentRunner) analyze(ctx context.Context, imageURL string, kind ImageAnalysisKind) (string, error) {
	if r.analyzer == nil {
		return "", ErrAIAPIKeyMissing
	}
	if imageURL == "" {
		return "", errors.New("picture has no image")
	}
	text, err := r.analyzer.Analyze(ctx, imageURL, kind)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (r *EnrichmentRunner) imageURL(picture db.Picture) string {
	key := strings.TrimSpace(picture.ImageURL)
	if key == "" {
		key = strings.TrimSpace(picture.RawImageURL)
	}
	if key == "" || r.store == nil {
		return key
	}
	return r.store.PublicURL(key)
}
