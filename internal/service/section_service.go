package service

import (
	"context"
	"errors"
	"strings"

	"github.com/lensfolio/internal/db"
	"gorm.io/gorm"
)

var (
	ErrSectionExists      = errors.New("section already exists")
	ErrSectionNameMissing = errors.New("section name is required")
)

// SectionService 管理首页分区。
type SectionService struct {
	db *gorm.DB
}

func NewSectionService(gdb *gorm.DB) *SectionService {
	return &SectionService{db: gdb}
}

func sectionSlug(name string) string {
	return strings.TrimPrefix(TagSlug("section", name), "section:")
}

// List 按排序值返回全部分区。
func (s *SectionService) List(ctx context.Context) ([]db.Section, error) {
	var sections []db.Section
	if err := s.db.WithContext(ctx).Order("sort_order asc").Order("id asc").Find(&sections).Error; err != nil {
		return nil, err
	}
	return sections, nil
}

// Create 新建分区，名称或 slug 重复时返回 ErrSectionExists。
func (s *SectionService) Create(ctx context.Context, name string, sortOrder int) (db.Section, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return db.Section{}, ErrSectionNameMissing
	}
	section := db.Section{Name: name, Slug: sectionSlug(name), SortOrder: sortOrder}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.Section{}).Where("name = ? OR slug = ?", section.Name, section.Slug).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrSectionExists
		}
		return tx.Create(&section).Error
	})
	if err != nil {
		return db.Section{}, err
	}
	return section, nil
}
