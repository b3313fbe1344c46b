package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lensfolio/internal/db"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTagInUse    = errors.New("tag is associated with picture sets or pictures")
	ErrTagNotFound = errors.New("tag not found")
)

// TaxonomyService 负责按类型管理标签，并把自由输入的标签名解析为稳定的 ID。
type TaxonomyService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewTaxonomyService creates a TaxonomyService instance.
func NewTaxonomyService(gdb *gorm.DB, logger *zap.Logger) *TaxonomyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaxonomyService{db: gdb, logger: logger}
}

// TagSlug 生成 "type:name" 形式的去重键：NFKC 归一、小写，连续空白替换为单个连字符。
func TagSlug(tagType, name string) string {
	normalized := norm.NFKC.String(name)
	normalized = strings.ToLower(strings.Join(strings.Fields(normalized), "-"))
	return tagType + ":" + normalized
}

var tagListSeparators = []string{",", ";", "\n", "\r", "，", "；", "、"}

// ParseTagList 拆分模型或用户输入的标签串，支持中英文逗号、分号、顿号与换行。
func ParseTagList(raw string) []string {
	normalized := raw
	for _, sep := range tagListSeparators {
		normalized = strings.ReplaceAll(normalized, sep, ",")
	}

	parts := strings.Split(normalized, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		names = append(names, strings.TrimLeft(strings.TrimSpace(part), "#"))
	}
	return normalizeTagNames(names)
}

// normalizeTagNames 去除首尾空白与空项，按原样（区分大小写）去重并保留首次出现的顺序。
func normalizeTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// EnsureTagIDs 保证每个标签名在指定类型下存在并返回其 ID。
// tx 为空时使用服务自身的连接；写入冲突被忽略，随后的查询决定最终结果。
func (s *TaxonomyService) EnsureTagIDs(ctx context.Context, tx *gorm.DB, names []string, tagType string) ([]uint, error) {
	tags, err := s.ensureTags(ctx, tx, names, tagType)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(tags))
	for _, tag := range tags {
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

// ensureTagsBySlug 与 EnsureTagIDs 相同，但返回以 slug 为键的标签，便于调用方按名称取 ID。
func (s *TaxonomyService) ensureTagsBySlug(ctx context.Context, tx *gorm.DB, names []string, tagType string) (map[string]db.Tag, error) {
	tags, err := s.ensureTags(ctx, tx, names, tagType)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]db.Tag, len(tags))
	for _, tag := range tags {
		bySlug[tag.Slug] = tag
	}
	return bySlug, nil
}

func (s *TaxonomyService) ensureTags(ctx context.Context, tx *gorm.DB, names []string, tagType string) ([]db.Tag, error) {
	normalized := normalizeTagNames(names)
	if len(normalized) == 0 {
		return []db.Tag{}, nil
	}
	if tx == nil {
		tx = s.db
	}
	tx = tx.WithContext(ctx)

	rows := make([]db.Tag, 0, len(normalized))
	slugs := make([]string, 0, len(normalized))
	seenSlug := make(map[string]struct{}, len(normalized))
	for _, name := range normalized {
		slug := TagSlug(tagType, name)
		slugs = append(slugs, slug)
		if _, ok := seenSlug[slug]; ok {
			continue
		}
		seenSlug[slug] = struct{}{}
		rows = append(rows, db.Tag{Name: name, Type: tagType, Slug: slug})
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&rows).Error; err != nil {
		s.logger.Warn("upsert tags failed, relying on re-select",
			zap.String("type", tagType),
			zap.Strings("names", normalized),
			zap.Error(err),
		)
	}

	var tags []db.Tag
	if err := tx.
		Where("type = ? AND (name IN ? OR slug IN ?)", tagType, normalized, slugs).
		Order("id asc").
		Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("select %s tags: %w", tagType, err)
	}
	return tags, nil
}

// List returns tags of the given type, or all tags when tagType is empty.
func (s *TaxonomyService) List(ctx context.Context, tagType string) ([]db.Tag, error) {
	query := s.db.WithContext(ctx).Model(&db.Tag{})
	if tagType = strings.TrimSpace(tagType); tagType != "" {
		query = query.Where("type = ?", tagType)
	}

	var tags []db.Tag
	if err := query.Order("type asc").Order("name asc").Order("id asc").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// Find 按 ID 读取标签，顺序与数据库返回一致。
func (s *TaxonomyService) Find(ctx context.Context, tx *gorm.DB, ids []uint) ([]db.Tag, error) {
	if len(ids) == 0 {
		return []db.Tag{}, nil
	}
	if tx == nil {
		tx = s.db
	}
	var tags []db.Tag
	if err := tx.WithContext(ctx).Where("id IN ?", ids).Order("name asc").Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

// Delete removes a tag if nothing references it.
func (s *TaxonomyService) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tag db.Tag
		if err := tx.First(&tag, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTagNotFound
			}
			return err
		}

		count, err := tagUsageCount(tx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrTagInUse
		}
		return tx.Delete(&tag).Error
	})
}

func tagUsageCount(tx *gorm.DB, id uint) (int64, error) {
	checks := []struct {
		model  any
		column string
	}{
		{&db.PictureSetTag{}, "tag_id"},
		{&db.PictureSetCategory{}, "category_id"},
		{&db.PictureTag{}, "tag_id"},
		{&db.PictureCategory{}, "category_id"},
		{&db.PictureSet{}, "season_id"},
		{&db.Picture{}, "season_id"},
	}

	var total int64
	for _, check := range checks {
		var count int64
		if err := tx.Model(check.model).Where(check.column+" = ?", id).Count(&count).Error; err != nil {
			return 0, fmt.Errorf("count tag usage: %w", err)
		}
		total += count
	}
	return total, nil
}
