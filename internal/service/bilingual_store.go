package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/lensfolio/internal/db"
	"github.com/lensfolio/internal/locale"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TextInput 是请求中单个字段的译文，Touch 标记英文是否为人工撰写。
type TextInput struct {
	EN    string        `json:"en" binding:"max=10000"`
	ZH    string        `json:"zh" binding:"max=10000"`
	Touch db.TouchState `json:"touch" binding:"omitempty,oneof=untouched authored_en"`
}

// TranslationsInput 汇总请求中的三个字段译文。
type TranslationsInput struct {
	Title       TextInput `json:"title"`
	Subtitle    TextInput `json:"subtitle"`
	Description TextInput `json:"description"`
}

func (in TranslationsInput) applyTo(texts *BilingualTexts) {
	pairs := []struct {
		input TextInput
		field *FieldState
	}{
		{in.Title, &texts.Title},
		{in.Subtitle, &texts.Subtitle},
		{in.Description, &texts.Description},
	}
	for _, pair := range pairs {
		pair.field.EN = strings.TrimSpace(pair.input.EN)
		pair.field.ZH = strings.TrimSpace(pair.input.ZH)
		pair.field.Touch = normalizeTouch(pair.input.Touch)
	}
}

// LocalizedText 是响应中单个字段的译文。
type LocalizedText struct {
	EN    string        `json:"en"`
	ZH    string        `json:"zh"`
	Touch db.TouchState `json:"touch"`
}

// TranslationsDetail 是响应中的三个字段译文。
type TranslationsDetail struct {
	Title       LocalizedText `json:"title"`
	Subtitle    LocalizedText `json:"subtitle"`
	Description LocalizedText `json:"description"`
}

func detailFromTexts(texts BilingualTexts) TranslationsDetail {
	convert := func(f FieldState) LocalizedText {
		return LocalizedText{EN: f.EN, ZH: f.ZH, Touch: normalizeTouch(f.Touch)}
	}
	return TranslationsDetail{
		Title:       convert(texts.Title),
		Subtitle:    convert(texts.Subtitle),
		Description: convert(texts.Description),
	}
}

func normalizeTouch(state db.TouchState) db.TouchState {
	if state == db.TouchAuthoredEnglish {
		return db.TouchAuthoredEnglish
	}
	return db.TouchUntouched
}

type localeRow struct {
	Title            *string
	Subtitle         *string
	Description      *string
	TitleState       db.TouchState
	SubtitleState    db.TouchState
	DescriptionState db.TouchState
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func nullable(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func textsFromRows(title, subtitle, description string, en, zh localeRow) BilingualTexts {
	return BilingualTexts{
		Title:       FieldState{Base: title, EN: deref(en.Title), ZH: deref(zh.Title), Touch: normalizeTouch(en.TitleState)},
		Subtitle:    FieldState{Base: subtitle, EN: deref(en.Subtitle), ZH: deref(zh.Subtitle), Touch: normalizeTouch(en.SubtitleState)},
		Description: FieldState{Base: description, EN: deref(en.Description), ZH: deref(zh.Description), Touch: normalizeTouch(en.DescriptionState)},
	}
}

// rowsFromTexts 拆分为 en 与 zh 两行，touch 状态只记录在 en 行。
func rowsFromTexts(texts BilingualTexts) (localeRow, localeRow) {
	en := localeRow{
		Title:            nullable(texts.Title.EN),
		Subtitle:         nullable(texts.Subtitle.EN),
		Description:      nullable(texts.Description.EN),
		TitleState:       normalizeTouch(texts.Title.Touch),
		SubtitleState:    normalizeTouch(texts.Subtitle.Touch),
		DescriptionState: normalizeTouch(texts.Description.Touch),
	}
	zh := localeRow{
		Title:            nullable(texts.Title.ZH),
		Subtitle:         nullable(texts.Subtitle.ZH),
		Description:      nullable(texts.Description.ZH),
		TitleState:       db.TouchUntouched,
		SubtitleState:    db.TouchUntouched,
		DescriptionState: db.TouchUntouched,
	}
	return en, zh
}

var translationUpdateColumns = []string{
	"title", "subtitle", "description",
	"title_state", "subtitle_state", "description_state",
	"updated_at",
}

func loadSetTexts(ctx context.Context, tx *gorm.DB, set db.PictureSet) (BilingualTexts, error) {
	var rows []db.PictureSetTranslation
	if err := tx.WithContext(ctx).Where("picture_set_id = ?", set.ID).Find(&rows).Error; err != nil {
		return BilingualTexts{}, fmt.Errorf("load set translations: %w", err)
	}
	var en, zh localeRow
	for _, row := range rows {
		converted := localeRow{row.Title, row.Subtitle, row.Description, row.TitleState, row.SubtitleState, row.DescriptionState}
		switch row.Locale {
		case locale.LanguageEnglish:
			en = converted
		case locale.LanguageChinese:
			zh = converted
		}
	}
	return textsFromRows(set.Title, set.Subtitle, set.Description, en, zh), nil
}

func saveSetTexts(ctx context.Context, tx *gorm.DB, setID uint, texts BilingualTexts) error {
	en, zh := rowsFromTexts(texts)
	rows := make([]db.PictureSetTranslation, 0, 2)
	for _, item := range []struct {
		locale string
		row    localeRow
	}{{locale.LanguageEnglish, en}, {locale.LanguageChinese, zh}} {
		rows = append(rows, db.PictureSetTranslation{
			PictureSetID:     setID,
			Locale:           item.locale,
			Title:            item.row.Title,
			Subtitle:         item.row.Subtitle,
			Description:      item.row.Description,
			TitleState:       item.row.TitleState,
			SubtitleState:    item.row.SubtitleState,
			DescriptionState: item.row.DescriptionState,
		})
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "picture_set_id"}, {Name: "locale"}},
		DoUpdates: clause.AssignmentColumns(translationUpdateColumns),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("save set translations: %w", err)
	}
	return nil
}

func loadPictureTexts(ctx context.Context, tx *gorm.DB, picture db.Picture) (BilingualTexts, error) {
	var rows []db.PictureTranslation
	if err := tx.WithContext(ctx).Where("picture_id = ?", picture.ID).Find(&rows).Error; err != nil {
		return BilingualTexts{}, fmt.Errorf("load picture translations: %w", err)
	}
	var en, zh localeRow
	for _, row := range rows {
		converted := localeRow{row.Title, row.Subtitle, row.Description, row.TitleState, row.SubtitleState, row.DescriptionState}
		switch row.Locale {
		case locale.LanguageEnglish:
			en = converted
		case locale.LanguageChinese:
			zh = converted
		}
	}
	return textsFromRows(picture.Title, picture.Subtitle, picture.Description, en, zh), nil
}

func savePictureTexts(ctx context.Context, tx *gorm.DB, pictureID uint, texts BilingualTexts) error {
	en, zh := rowsFromTexts(texts)
	rows := make([]db.PictureTranslation, 0, 2)
	for _, item := range []struct {
		locale string
		row    localeRow
	}{{locale.LanguageEnglish, en}, {locale.LanguageChinese, zh}} {
		rows = append(rows, db.PictureTranslation{
			PictureID:        pictureID,
			Locale:           item.locale,
			Title:            item.row.Title,
			Subtitle:         item.row.Subtitle,
			Description:      item.row.Description,
			TitleState:       item.row.TitleState,
			SubtitleState:    item.row.SubtitleState,
			DescriptionState: item.row.DescriptionState,
		})
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "picture_id"}, {Name: "locale"}},
		DoUpdates: clause.AssignmentColumns(translationUpdateColumns),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("save picture translations: %w", err)
	}
	return nil
}

// invalidateChangedBase 在基础字段被修改时清空派生译文，人工撰写的英文保留。
func invalidateChangedBase(texts *BilingualTexts, title, subtitle, description string) bool {
	changed := false
	previous := []string{title, subtitle, description}
	for i, field := range texts.fields() {
		if strings.TrimSpace(field.Base) == strings.TrimSpace(previous[i]) {
			continue
		}
		field.ZH = ""
		if !field.touched() {
			field.EN = ""
		}
		changed = true
	}
	return changed
}
