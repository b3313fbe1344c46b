package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lensfolio/internal/db"
	"github.com/lensfolio/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrPictureSetNotFound  = errors.New("picture set not found")
	ErrPictureNotInSet     = errors.New("picture does not belong to this set")
	ErrDuplicatePicture    = errors.New("picture submitted more than once")
	ErrPictureImageMissing = errors.New("picture image is required")
	ErrPictureSetConflict  = errors.New("picture set was modified by another request")
	ErrInvalidPosition     = errors.New("position must be up or down")
	ErrSectionNotFound     = errors.New("section not found")
)

// PictureSetInput 是保存作品集时提交的完整状态。
// 关联字段（标签、分类、分区）为全量替换；Pictures 按 ID 合并，未提交的已有图片会被删除。
type PictureSetInput struct {
	ExpectedVersion   int                `json:"expectedVersion" binding:"min=0"`
	Title             string             `json:"title" binding:"max=255"`
	Subtitle          string             `json:"subtitle" binding:"max=255"`
	Description       string             `json:"description" binding:"max=20000"`
	CoverImageURL     *string            `json:"coverImageUrl"`
	Position          string             `json:"position" binding:"omitempty,oneof=up down"`
	IsPublished       bool               `json:"isPublished"`
	Translations      *TranslationsInput `json:"translations"`
	Tags              []string           `json:"tags" binding:"max=64,dive,max=120"`
	Categories        []string           `json:"categories" binding:"max=32,dive,max=120"`
	PrimaryCategory   string             `json:"primaryCategory" binding:"max=120"`
	Season            string             `json:"season" binding:"max=120"`
	SectionIDs        []uint             `json:"sectionIds"`
	Location          *LocationInput     `json:"location"`
	Pictures          []PictureInput     `json:"pictures" binding:"max=500,dive"`
	PropagateTaxonomy bool               `json:"propagateTaxonomy"`
	Enrichment        EnrichmentOptions  `json:"enrichment"`
}

// PictureInput 是作品集中的一张图片；ID 为空表示新图片。
type PictureInput struct {
	ID              *uint              `json:"id"`
	Title           string             `json:"title" binding:"max=255"`
	Subtitle        string             `json:"subtitle" binding:"max=255"`
	Description     string             `json:"description" binding:"max=20000"`
	ImageURL        string             `json:"imageUrl" binding:"required"`
	RawImageURL     string             `json:"rawImageUrl"`
	ImageWidth      int                `json:"imageWidth" binding:"min=0"`
	ImageHeight     int                `json:"imageHeight" binding:"min=0"`
	Translations    *TranslationsInput `json:"translations"`
	Tags            []string           `json:"tags" binding:"max=64,dive,max=120"`
	Categories      []string           `json:"categories" binding:"max=32,dive,max=120"`
	PrimaryCategory string             `json:"primaryCategory" binding:"max=120"`
	Season          string             `json:"season" binding:"max=120"`
	Style           string             `json:"style" binding:"max=120"`
	Location        *LocationInput     `json:"location"`
}

func (in PictureInput) existingID() uint {
	if in.ID == nil {
		return 0
	}
	return *in.ID
}

// PictureSetFilter 控制列表查询。
type PictureSetFilter struct {
	Published *bool
	Page      int
	PerPage   int
}

// TagSummary 是响应中引用的标签。
type TagSummary struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Primary bool   `json:"primary,omitempty"`
}

// PictureDetail 是单张图片的完整视图。
type PictureDetail struct {
	ID                uint               `json:"id"`
	OrderIndex        int                `json:"orderIndex"`
	Title             string             `json:"title"`
	Subtitle          string             `json:"subtitle"`
	Description       string             `json:"description"`
	ImageURL          string             `json:"imageUrl"`
	RawImageURL       string             `json:"rawImageUrl"`
	ImagePublicURL    string             `json:"imagePublicUrl"`
	RawImagePublicURL string             `json:"rawImagePublicUrl,omitempty"`
	ImageWidth        int                `json:"imageWidth"`
	ImageHeight       int                `json:"imageHeight"`
	Style             string             `json:"style,omitempty"`
	Season            *TagSummary        `json:"season,omitempty"`
	Tags              []TagSummary       `json:"tags"`
	Categories        []TagSummary       `json:"categories"`
	Location          *db.Location       `json:"location,omitempty"`
	Translations      TranslationsDetail `json:"translations"`
}

// PictureSetDetail 是作品集的完整视图，包含图片、关联与双语文本。
type PictureSetDetail struct {
	ID                uint               `json:"id"`
	Title             string             `json:"title"`
	Subtitle          string             `json:"subtitle"`
	Description       string             `json:"description"`
	CoverImageURL     string             `json:"coverImageUrl,omitempty"`
	CoverPublicURL    string             `json:"coverPublicUrl,omitempty"`
	Position          string             `json:"position"`
	IsPublished       bool               `json:"isPublished"`
	Version           int                `json:"version"`
	PrimaryCategoryID *uint              `json:"primaryCategoryId"`
	Season            *TagSummary        `json:"season,omitempty"`
	Tags              []TagSummary       `json:"tags"`
	Categories        []TagSummary       `json:"categories"`
	Sections          []db.Section       `json:"sections"`
	Location          *db.Location       `json:"location,omitempty"`
	Translations      TranslationsDetail `json:"translations"`
	Pictures          []PictureDetail    `json:"pictures"`
	Enrichment        []EnrichmentResult `json:"enrichment,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// PictureSetSummary 是列表中的一项。
type PictureSetSummary struct {
	ID             uint               `json:"id"`
	Title          string             `json:"title"`
	Subtitle       string             `json:"subtitle"`
	CoverImageURL  string             `json:"coverImageUrl,omitempty"`
	CoverPublicURL string             `json:"coverPublicUrl,omitempty"`
	Position       string             `json:"position"`
	IsPublished    bool               `json:"isPublished"`
	PictureCount   int64              `json:"pictureCount"`
	Translations   TranslationsDetail `json:"translations"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// PictureSetPage 是分页列表结果。
type PictureSetPage struct {
	Items   []PictureSetSummary `json:"items"`
	Total   int64               `json:"total"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"perPage"`
}

// PictureSetService 负责作品集的保存、读取与删除。
type PictureSetService struct {
	db            *gorm.DB
	taxonomy      *TaxonomyService
	locations     *LocationService
	autofill      *AutofillEngine
	enrichment    *EnrichmentRunner
	store         storage.Store
	uploadURLPath string
	logger        *zap.Logger
}

func NewPictureSetService(gdb *gorm.DB, taxonomy *TaxonomyService, locations *LocationService, autofill *AutofillEngine, enrichment *EnrichmentRunner, store storage.Store, logger *zap.Logger) *PictureSetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PictureSetService{
		db:         gdb,
		taxonomy:   taxonomy,
		locations:  locations,
		autofill:   autofill,
		enrichment: enrichment,
		store:      store,
		logger:     logger,
	}
}

// SetUploadURLPath 设置静态文件挂载路径，提交的公开地址会被还原为对象 key。
func (s *PictureSetService) SetUploadURLPath(path string) {
	s.uploadURLPath = path
}

func (s *PictureSetService) storageKey(value string) string {
	return storage.KeyFromURL(s.uploadURLPath, value)
}

func (s *PictureSetService) publicURL(key string) string {
	if key == "" || s.store == nil {
		return key
	}
	return s.store.PublicURL(key)
}

func validatePictureSetInput(input PictureSetInput) error {
	position := strings.TrimSpace(input.Position)
	if position != "" && position != db.PositionUp && position != db.PositionDown {
		return ErrInvalidPosition
	}
	seen := make(map[uint]struct{}, len(input.Pictures))
	for i, picture := range input.Pictures {
		if strings.TrimSpace(picture.ImageURL) == "" {
			return fmt.Errorf("picture %d: %w", i, ErrPictureImageMissing)
		}
		id := picture.existingID()
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("picture %d: %w", id, ErrDuplicatePicture)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Save 创建（id 为 0）或更新作品集。
// 数据库写入在同一个事务内完成；提交后再清理不再引用的存储对象、执行 AI 补全与双语补全。
func (s *PictureSetService) Save(ctx context.Context, id uint, input PictureSetInput) (*PictureSetDetail, error) {
	if err := validatePictureSetInput(input); err != nil {
		return nil, err
	}

	input.Pictures = append([]PictureInput(nil), input.Pictures...)
	input.Location = s.geocode(ctx, input.Location)
	for i := range input.Pictures {
		input.Pictures[i].Location = s.geocode(ctx, input.Pictures[i].Location)
	}

	var (
		setID      uint
		pictureIDs []uint
		staleKeys  []string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		set, replaced, err := s.upsertSet(ctx, tx, id, input)
		if err != nil {
			return err
		}
		setID = set.ID
		staleKeys = append(staleKeys, replaced...)

		ids, removed, err := s.mergePictures(ctx, tx, set.ID, input.Pictures)
		if err != nil {
			return err
		}
		pictureIDs = ids
		staleKeys = append(staleKeys, removed...)

		setTaxonomy, err := s.syncSetTaxonomy(ctx, tx, set.ID, input)
		if err != nil {
			return err
		}
		for i, picture := range input.Pictures {
			if err := s.syncPictureTaxonomy(ctx, tx, ids[i], picture, setTaxonomy, input.PropagateTaxonomy); err != nil {
				return err
			}
		}

		if s.locations != nil {
			if err := s.locations.ApplyInput(ctx, tx, SetLocations, set.ID, input.Location); err != nil {
				return err
			}
			for i, picture := range input.Pictures {
				if err := s.locations.ApplyInput(ctx, tx, PictureLocations, ids[i], picture.Location); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cleanupStorage(ctx, staleKeys)

	var results []EnrichmentResult
	if input.Enrichment.Any() && s.enrichment != nil && len(pictureIDs) > 0 {
		results = s.enrichment.Run(ctx, pictureIDs, input.Enrichment)
	}

	if err := s.FillTranslations(ctx, setID); err != nil {
		return nil, err
	}

	detail, err := s.Get(ctx, setID)
	if err != nil {
		return nil, err
	}
	detail.Enrichment = results
	return detail, nil
}

func (s *PictureSetService) geocode(ctx context.Context, in *LocationInput) *LocationInput {
	if in == nil || s.locations == nil {
		return in
	}
	resolved := s.locations.Geocode(ctx, *in)
	return &resolved
}

// upsertSet 写入作品集自身字段与提交的译文，返回被替换掉的封面 key。
func (s *PictureSetService) upsertSet(ctx context.Context, tx *gorm.DB, id uint, input PictureSetInput) (db.PictureSet, []string, error) {
	title := strings.TrimSpace(input.Title)
	subtitle := strings.TrimSpace(input.Subtitle)
	description := strings.TrimSpace(input.Description)
	position := strings.TrimSpace(input.Position)

	var cover *string
	if input.CoverImageURL != nil {
		cover = nullable(s.storageKey(*input.CoverImageURL))
	}

	if id == 0 {
		if position == "" {
			next, err := s.NextPosition(ctx, tx)
			if err != nil {
				return db.PictureSet{}, nil, err
			}
			position = next
		}
		set := db.PictureSet{
			Title:         title,
			Subtitle:      subtitle,
			Description:   description,
			CoverImageURL: cover,
			Position:      position,
			IsPublished:   input.IsPublished,
			Version:       1,
		}
		if err := tx.Create(&set).Error; err != nil {
			return db.PictureSet{}, nil, fmt.Errorf("create picture set: %w", err)
		}
		if input.Translations != nil {
			texts := BilingualTexts{}
			texts.Title.Base, texts.Subtitle.Base, texts.Description.Base = title, subtitle, description
			input.Translations.applyTo(&texts)
			if err := saveSetTexts(ctx, tx, set.ID, texts); err != nil {
				return db.PictureSet{}, nil, err
			}
		}
		return set, nil, nil
	}

	var previous db.PictureSet
	if err := tx.First(&previous, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return db.PictureSet{}, nil, ErrPictureSetNotFound
		}
		return db.PictureSet{}, nil, fmt.Errorf("load picture set: %w", err)
	}

	updates := map[string]interface{}{
		"title":        title,
		"subtitle":     subtitle,
		"description":  description,
		"is_published": input.IsPublished,
		"version":      gorm.Expr("version + 1"),
		"updated_at":   time.Now(),
	}
	if position != "" {
		updates["position"] = position
	}
	var replaced []string
	if input.CoverImageURL != nil {
		updates["cover_image_url"] = cover
		if old := deref(previous.CoverImageURL); old != "" && old != deref(cover) {
			replaced = append(replaced, old)
		}
	}

	query := tx.Model(&db.PictureSet{}).Where("id = ?", id)
	if input.ExpectedVersion > 0 {
		query = query.Where("version = ?", input.ExpectedVersion)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return db.PictureSet{}, nil, fmt.Errorf("update picture set: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return db.PictureSet{}, nil, ErrPictureSetConflict
	}

	var set db.PictureSet
	if err := tx.First(&set, id).Error; err != nil {
		return db.PictureSet{}, nil, fmt.Errorf("reload picture set: %w", err)
	}

	texts, err := loadSetTexts(ctx, tx, set)
	if err != nil {
		return db.PictureSet{}, nil, err
	}
	var changed bool
	if input.Translations != nil {
		input.Translations.applyTo(&texts)
		changed = true
	} else {
		changed = invalidateChangedBase(&texts, previous.Title, previous.Subtitle, previous.Description)
	}
	if changed {
		if err := saveSetTexts(ctx, tx, set.ID, texts); err != nil {
			return db.PictureSet{}, nil, err
		}
	}
	return set, replaced, nil
}

// mergePictures 按 ID 合并图片：已有 ID 原地更新，无 ID 新建，未提交的删除。
// 返回与提交顺序一致的图片 ID，以及需要在提交后清理的存储 key。
func (s *PictureSetService) mergePictures(ctx context.Context, tx *gorm.DB, setID uint, inputs []PictureInput) ([]uint, []string, error) {
	var existing []db.Picture
	if err := tx.Where("picture_set_id = ?", setID).Find(&existing).Error; err != nil {
		return nil, nil, fmt.Errorf("load pictures: %w", err)
	}
	byID := make(map[uint]db.Picture, len(existing))
	for _, picture := range existing {
		byID[picture.ID] = picture
	}

	submitted := make(map[uint]struct{}, len(inputs))
	for _, in := range inputs {
		if id := in.existingID(); id > 0 {
			if _, ok := byID[id]; !ok {
				return nil, nil, fmt.Errorf("picture %d: %w", id, ErrPictureNotInSet)
			}
			submitted[id] = struct{}{}
		}
	}

	var stale []string
	ids := make([]uint, len(inputs))
	for index, in := range inputs {
		row := db.Picture{
			PictureSetID: setID,
			OrderIndex:   index,
			Title:        strings.TrimSpace(in.Title),
			Subtitle:     strings.TrimSpace(in.Subtitle),
			Description:  strings.TrimSpace(in.Description),
			ImageURL:     s.storageKey(in.ImageURL),
			RawImageURL:  s.storageKey(in.RawImageURL),
			ImageWidth:   in.ImageWidth,
			ImageHeight:  in.ImageHeight,
			Style:        nullable(in.Style),
		}

		previous, exists := byID[in.existingID()]
		if !exists {
			if err := tx.Create(&row).Error; err != nil {
				return nil, nil, fmt.Errorf("create picture: %w", err)
			}
			ids[index] = row.ID
			if in.Translations != nil {
				texts := BilingualTexts{}
				texts.Title.Base, texts.Subtitle.Base, texts.Description.Base = row.Title, row.Subtitle, row.Description
				in.Translations.applyTo(&texts)
				if err := savePictureTexts(ctx, tx, row.ID, texts); err != nil {
					return nil, nil, err
				}
			}
			continue
		}

		if err := tx.Model(&db.Picture{}).Where("id = ?", previous.ID).Updates(map[string]interface{}{
			"order_index":   row.OrderIndex,
			"title":         row.Title,
			"subtitle":      row.Subtitle,
			"description":   row.Description,
			"image_url":     row.ImageURL,
			"raw_image_url": row.RawImageURL,
			"image_width":   row.ImageWidth,
			"image_height":  row.ImageHeight,
			"style":         row.Style,
			"updated_at":    time.Now(),
		}).Error; err != nil {
			return nil, nil, fmt.Errorf("update picture %d: %w", previous.ID, err)
		}
		ids[index] = previous.ID
		if previous.ImageURL != "" && previous.ImageURL != row.ImageURL {
			stale = append(stale, previous.ImageURL)
		}
		if previous.RawImageURL != "" && previous.RawImageURL != row.RawImageURL {
			stale = append(stale, previous.RawImageURL)
		}

		row.ID = previous.ID
		texts, err := loadPictureTexts(ctx, tx, row)
		if err != nil {
			return nil, nil, err
		}
		var changed bool
		if in.Translations != nil {
			in.Translations.applyTo(&texts)
			changed = true
		} else {
			changed = invalidateChangedBase(&texts, previous.Title, previous.Subtitle, previous.Description)
		}
		if changed {
			if err := savePictureTexts(ctx, tx, row.ID, texts); err != nil {
				return nil, nil, err
			}
		}
	}

	var removed []uint
	for _, picture := range existing {
		if _, ok := submitted[picture.ID]; ok {
			continue
		}
		removed = append(removed, picture.ID)
		stale = append(stale, picture.ImageURL, picture.RawImageURL)
	}
	if err := deletePictureRows(ctx, tx, removed); err != nil {
		return nil, nil, err
	}
	return ids, stale, nil
}

func deletePictureRows(ctx context.Context, tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	tx = tx.WithContext(ctx)
	for _, model := range []any{&db.PictureTag{}, &db.PictureCategory{}, &db.PictureLocation{}, &db.PictureTranslation{}} {
		if err := tx.Where("picture_id IN ?", ids).Delete(model).Error; err != nil {
			return fmt.Errorf("delete picture links: %w", err)
		}
	}
	if err := tx.Where("id IN ?", ids).Delete(&db.Picture{}).Error; err != nil {
		return fmt.Errorf("delete pictures: %w", err)
	}
	return nil
}

// setTaxonomy 保存作品集解析后的分类与季节，供图片继承。
type setTaxonomy struct {
	categoryIDs []uint
	primaryID   uint
	seasonID    *uint
}

func (s *PictureSetService) syncSetTaxonomy(ctx context.Context, tx *gorm.DB, setID uint, input PictureSetInput) (setTaxonomy, error) {
	tagIDs, err := s.taxonomy.EnsureTagIDs(ctx, tx, input.Tags, db.TagTypeTopic)
	if err != nil {
		return setTaxonomy{}, err
	}
	if _, err := SetTags.Sync(ctx, tx, setID, tagIDs); err != nil {
		return setTaxonomy{}, err
	}

	categoryIDs, primaryID, err := s.resolveCategories(ctx, tx, input.Categories, input.PrimaryCategory)
	if err != nil {
		return setTaxonomy{}, err
	}
	if _, err := SetCategories.Sync(ctx, tx, setID, categoryIDs); err != nil {
		return setTaxonomy{}, err
	}
	if err := SetCategories.MarkPrimary(ctx, tx, setID, primaryID); err != nil {
		return setTaxonomy{}, err
	}

	seasonID, err := s.resolveSingle(ctx, tx, input.Season, db.TagTypeSeason)
	if err != nil {
		return setTaxonomy{}, err
	}

	sectionIDs := uniqueIDs(input.SectionIDs)
	if len(sectionIDs) > 0 {
		var count int64
		if err := tx.Model(&db.Section{}).Where("id IN ?", sectionIDs).Count(&count).Error; err != nil {
			return setTaxonomy{}, fmt.Errorf("check sections: %w", err)
		}
		if count != int64(len(sectionIDs)) {
			return setTaxonomy{}, ErrSectionNotFound
		}
	}
	if _, err := SetSections.Sync(ctx, tx, setID, sectionIDs); err != nil {
		return setTaxonomy{}, err
	}

	var primary *uint
	if primaryID > 0 {
		primary = &primaryID
	}
	if err := tx.Model(&db.PictureSet{}).Where("id = ?", setID).Updates(map[string]interface{}{
		"primary_category_id": primary,
		"season_id":           seasonID,
	}).Error; err != nil {
		return setTaxonomy{}, fmt.Errorf("update set taxonomy: %w", err)
	}
	return setTaxonomy{categoryIDs: categoryIDs, primaryID: primaryID, seasonID: seasonID}, nil
}

func (s *PictureSetService) syncPictureTaxonomy(ctx context.Context, tx *gorm.DB, pictureID uint, input PictureInput, inherited setTaxonomy, propagate bool) error {
	tagIDs, err := s.taxonomy.EnsureTagIDs(ctx, tx, input.Tags, db.TagTypeTopic)
	if err != nil {
		return err
	}
	if _, err := PictureTags.Sync(ctx, tx, pictureID, tagIDs); err != nil {
		return err
	}

	categoryIDs, primaryID, err := s.resolveCategories(ctx, tx, input.Categories, input.PrimaryCategory)
	if err != nil {
		return err
	}
	if propagate && len(categoryIDs) == 0 {
		categoryIDs, primaryID = inherited.categoryIDs, inherited.primaryID
	}
	if _, err := PictureCategories.Sync(ctx, tx, pictureID, categoryIDs); err != nil {
		return err
	}
	if err := PictureCategories.MarkPrimary(ctx, tx, pictureID, primaryID); err != nil {
		return err
	}

	seasonID, err := s.resolveSingle(ctx, tx, input.Season, db.TagTypeSeason)
	if err != nil {
		return err
	}
	if propagate && seasonID == nil {
		seasonID = inherited.seasonID
	}
	if _, err := s.resolveSingle(ctx, tx, input.Style, db.TagTypeStyle); err != nil {
		return err
	}

	if err := tx.Model(&db.Picture{}).Where("id = ?", pictureID).Update("season_id", seasonID).Error; err != nil {
		return fmt.Errorf("update picture season: %w", err)
	}
	return nil
}

// resolveCategories 返回分类 ID（按提交顺序）与主分类 ID；未指定主分类时取第一个。
func (s *PictureSetService) resolveCategories(ctx context.Context, tx *gorm.DB, names []string, primaryName string) ([]uint, uint, error) {
	primaryName = strings.TrimSpace(primaryName)
	all := names
	if primaryName != "" {
		all = append(append([]string{}, names...), primaryName)
	}
	normalized := normalizeTagNames(all)
	if len(normalized) == 0 {
		return nil, 0, nil
	}
	if primaryName == "" {
		primaryName = normalized[0]
	}

	bySlug, err := s.taxonomy.ensureTagsBySlug(ctx, tx, normalized, db.TagTypeCategory)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]uint, 0, len(normalized))
	for _, name := range normalized {
		if tag, ok := bySlug[TagSlug(db.TagTypeCategory, name)]; ok {
			ids = append(ids, tag.ID)
		}
	}
	return uniqueIDs(ids), bySlug[TagSlug(db.TagTypeCategory, primaryName)].ID, nil
}

func (s *PictureSetService) resolveSingle(ctx context.Context, tx *gorm.DB, name, tagType string) (*uint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	bySlug, err := s.taxonomy.ensureTagsBySlug(ctx, tx, []string{name}, tagType)
	if err != nil {
		return nil, err
	}
	tag, ok := bySlug[TagSlug(tagType, name)]
	if !ok {
		return nil, nil
	}
	return &tag.ID, nil
}

// NextPosition 为新作品集选择展示行，使 up 与 down 两行数量保持平衡。
func (s *PictureSetService) NextPosition(ctx context.Context, tx *gorm.DB) (string, error) {
	if tx == nil {
		tx = s.db
	}
	var up, down int64
	if err := tx.WithContext(ctx).Model(&db.PictureSet{}).Where("position = ?", db.PositionUp).Count(&up).Error; err != nil {
		return "", err
	}
	if err := tx.WithContext(ctx).Model(&db.PictureSet{}).Where("position = ?", db.PositionDown).Count(&down).Error; err != nil {
		return "", err
	}
	if up <= down {
		return db.PositionUp, nil
	}
	return db.PositionDown, nil
}

// FillTranslations 对作品集与其全部图片执行一次双语补全并保存变化。
func (s *PictureSetService) FillTranslations(ctx context.Context, id uint) error {
	if s.autofill == nil {
		return nil
	}
	gdb := s.db.WithContext(ctx)

	var set db.PictureSet
	if err := gdb.First(&set, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPictureSetNotFound
		}
		return err
	}
	texts, err := loadSetTexts(ctx, s.db, set)
	if err != nil {
		return err
	}
	if s.autofill.FillTexts(ctx, &texts) {
		if err := saveSetTexts(ctx, s.db, set.ID, texts); err != nil {
			return err
		}
	}

	var pictures []db.Picture
	if err := gdb.Where("picture_set_id = ?", id).Order("order_index asc").Find(&pictures).Error; err != nil {
		return fmt.Errorf("load pictures: %w", err)
	}
	for _, picture := range pictures {
		texts, err := loadPictureTexts(ctx, s.db, picture)
		if err != nil {
			return err
		}
		if !s.autofill.FillTexts(ctx, &texts) {
			continue
		}
		if err := savePictureTexts(ctx, s.db, picture.ID, texts); err != nil {
			return err
		}
	}
	return nil
}

// Get 读取作品集详情。
func (s *PictureSetService) Get(ctx context.Context, id uint) (*PictureSetDetail, error) {
	gdb := s.db.WithContext(ctx)
	var set db.PictureSet
	if err := gdb.First(&set, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPictureSetNotFound
		}
		return nil, err
	}

	detail := &PictureSetDetail{
		ID:                set.ID,
		Title:             set.Title,
		Subtitle:          set.Subtitle,
		Description:       set.Description,
		CoverImageURL:     deref(set.CoverImageURL),
		CoverPublicURL:    s.publicURL(deref(set.CoverImageURL)),
		Position:          set.Position,
		IsPublished:       set.IsPublished,
		Version:           set.Version,
		PrimaryCategoryID: set.PrimaryCategoryID,
		CreatedAt:         set.CreatedAt,
		UpdatedAt:         set.UpdatedAt,
	}

	texts, err := loadSetTexts(ctx, s.db, set)
	if err != nil {
		return nil, err
	}
	detail.Translations = detailFromTexts(texts)

	if detail.Tags, err = s.joinedTags(ctx, SetTags, set.ID); err != nil {
		return nil, err
	}
	if detail.Categories, err = s.joinedTags(ctx, SetCategories, set.ID); err != nil {
		return nil, err
	}
	if detail.Season, err = s.tagSummary(ctx, set.SeasonID); err != nil {
		return nil, err
	}
	sectionIDs, err := SetSections.Existing(ctx, s.db, set.ID)
	if err != nil {
		return nil, err
	}
	detail.Sections = []db.Section{}
	if len(sectionIDs) > 0 {
		if err := gdb.Where("id IN ?", sectionIDs).Order("sort_order asc").Order("id asc").Find(&detail.Sections).Error; err != nil {
			return nil, err
		}
	}
	if s.locations != nil {
		if detail.Location, err = s.locations.PrimaryLocation(ctx, s.db, SetLocations, set.ID); err != nil {
			return nil, err
		}
	}

	var pictures []db.Picture
	if err := gdb.Where("picture_set_id = ?", set.ID).Order("order_index asc").Order("id asc").Find(&pictures).Error; err != nil {
		return nil, err
	}
	detail.Pictures = make([]PictureDetail, 0, len(pictures))
	for _, picture := range pictures {
		item, err := s.pictureDetail(ctx, picture)
		if err != nil {
			return nil, err
		}
		detail.Pictures = append(detail.Pictures, item)
	}
	return detail, nil
}

func (s *PictureSetService) pictureDetail(ctx context.Context, picture db.Picture) (PictureDetail, error) {
	item := PictureDetail{
		ID:                picture.ID,
		OrderIndex:        picture.OrderIndex,
		Title:             picture.Title,
		Subtitle:          picture.Subtitle,
		Description:       picture.Description,
		ImageURL:          picture.ImageURL,
		RawImageURL:       picture.RawImageURL,
		ImagePublicURL:    s.publicURL(picture.ImageURL),
		RawImagePublicURL: s.publicURL(picture.RawImageURL),
		ImageWidth:        picture.ImageWidth,
		ImageHeight:       picture.ImageHeight,
		Style:             deref(picture.Style),
	}

	texts, err := loadPictureTexts(ctx, s.db, picture)
	if err != nil {
		return PictureDetail{}, err
	}
	item.Translations = detailFromTexts(texts)

	if item.Tags, err = s.joinedTags(ctx, PictureTags, picture.ID); err != nil {
		return PictureDetail{}, err
	}
	if item.Categories, err = s.joinedTags(ctx, PictureCategories, picture.ID); err != nil {
		return PictureDetail{}, err
	}
	if item.Season, err = s.tagSummary(ctx, picture.SeasonID); err != nil {
		return PictureDetail{}, err
	}
	if s.locations != nil {
		if item.Location, err = s.locations.PrimaryLocation(ctx, s.db, PictureLocations, picture.ID); err != nil {
			return PictureDetail{}, err
		}
	}
	return item, nil
}

func (s *PictureSetService) joinedTags(ctx context.Context, table JoinTable, ownerID uint) ([]TagSummary, error) {
	ids, err := table.Existing(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	primaryID, err := table.Primary(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	tags, err := s.taxonomy.Find(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]TagSummary, 0, len(tags))
	for _, tag := range tags {
		out = append(out, TagSummary{ID: tag.ID, Name: tag.Name, Type: tag.Type, Primary: tag.ID == primaryID})
	}
	return out, nil
}

func (s *PictureSetService) tagSummary(ctx context.Context, id *uint) (*TagSummary, error) {
	if id == nil || *id == 0 {
		return nil, nil
	}
	tags, err := s.taxonomy.Find(ctx, s.db, []uint{*id})
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return &TagSummary{ID: tags[0].ID, Name: tags[0].Name, Type: tags[0].Type}, nil
}

// List 分页返回作品集摘要，按 ID 倒序。
func (s *PictureSetService) List(ctx context.Context, filter PictureSetFilter) (PictureSetPage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	applyFilter := func(query *gorm.DB) *gorm.DB {
		if filter.Published != nil {
			query = query.Where("is_published = ?", *filter.Published)
		}
		return query
	}

	var total int64
	if err := applyFilter(s.db.WithContext(ctx).Model(&db.PictureSet{})).Count(&total).Error; err != nil {
		return PictureSetPage{}, err
	}

	var sets []db.PictureSet
	if err := applyFilter(s.db.WithContext(ctx).Model(&db.PictureSet{})).Order("id desc").Offset((page - 1) * perPage).Limit(perPage).Find(&sets).Error; err != nil {
		return PictureSetPage{}, err
	}

	counts := map[uint]int64{}
	if len(sets) > 0 {
		ids := make([]uint, 0, len(sets))
		for _, set := range sets {
			ids = append(ids, set.ID)
		}
		var rows []struct {
			PictureSetID uint
			Total        int64
		}
		if err := s.db.WithContext(ctx).Model(&db.Picture{}).
			Select("picture_set_id, COUNT(*) AS total").
			Where("picture_set_id IN ?", ids).
			Group("picture_set_id").
			Scan(&rows).Error; err != nil {
			return PictureSetPage{}, err
		}
		for _, row := range rows {
			counts[row.PictureSetID] = row.Total
		}
	}

	items := make([]PictureSetSummary, 0, len(sets))
	for _, set := range sets {
		texts, err := loadSetTexts(ctx, s.db, set)
		if err != nil {
			return PictureSetPage{}, err
		}
		items = append(items, PictureSetSummary{
			ID:             set.ID,
			Title:          set.Title,
			Subtitle:       set.Subtitle,
			CoverImageURL:  deref(set.CoverImageURL),
			CoverPublicURL: s.publicURL(deref(set.CoverImageURL)),
			Position:       set.Position,
			IsPublished:    set.IsPublished,
			PictureCount:   counts[set.ID],
			Translations:   detailFromTexts(texts),
			UpdatedAt:      set.UpdatedAt,
		})
	}
	return PictureSetPage{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// Delete 删除作品集及其图片、关联与译文，提交后清理存储对象。
func (s *PictureSetService) Delete(ctx context.Context, id uint) error {
	var keys []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var set db.PictureSet
		if err := tx.First(&set, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPictureSetNotFound
			}
			return err
		}
		keys = append(keys, deref(set.CoverImageURL))

		var pictures []db.Picture
		if err := tx.Where("picture_set_id = ?", id).Find(&pictures).Error; err != nil {
			return err
		}
		pictureIDs := make([]uint, 0, len(pictures))
		for _, picture := range pictures {
			pictureIDs = append(pictureIDs, picture.ID)
			keys = append(keys, picture.ImageURL, picture.RawImageURL)
		}
		if err := deletePictureRows(ctx, tx, pictureIDs); err != nil {
			return err
		}

		for _, table := range []JoinTable{SetTags, SetCategories, SetSections} {
			if err := table.Clear(ctx, tx, id); err != nil {
				return err
			}
		}
		if err := tx.Where("picture_set_id = ?", id).Delete(&db.PictureSetLocation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("picture_set_id = ?", id).Delete(&db.PictureSetTranslation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&set).Error
	})
	if err != nil {
		return err
	}
	s.cleanupStorage(ctx, keys)
	return nil
}

// cleanupStorage 删除不再被任何作品集或图片引用的对象，失败只记录日志。
func (s *PictureSetService) cleanupStorage(ctx context.Context, keys []string) {
	if s.store == nil {
		return
	}
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" || strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		referenced, err := s.keyReferenced(ctx, key)
		if err != nil {
			s.logger.Warn("check storage reference failed", zap.String("key", key), zap.Error(err))
			continue
		}
		if referenced {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("delete storage object failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *PictureSetService) keyReferenced(ctx context.Context, key string) (bool, error) {
	gdb := s.db.WithContext(ctx)
	var count int64
	if err := gdb.Model(&db.Picture{}).Where("image_url = ? OR raw_image_url = ?", key, key).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	if err := gdb.Model(&db.PictureSet{}).Where("cover_image_url = ?", key).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
