package db

import "time"

const (
	PositionUp   = "up"
	PositionDown = "down"
)

// TouchState 标记英文译文的来源：未触碰（可被自动填充覆盖）或人工撰写。
type TouchState string

const (
	TouchUntouched       TouchState = "untouched"
	TouchAuthoredEnglish TouchState = "authored_en"
)

// PictureSet 定义摄影作品集，基础字段不带语言标记。
// PrimaryCategoryID 与 SeasonID 是多对多关联之上的单值便捷字段。
type PictureSet struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Title             string    `json:"title"`
	Subtitle          string    `json:"subtitle"`
	Description       string    `gorm:"type:text" json:"description"`
	CoverImageURL     *string   `json:"coverImageUrl"`
	Position          string    `gorm:"size:8;default:up" json:"position"`
	IsPublished       bool      `gorm:"index" json:"isPublished"`
	PrimaryCategoryID *uint     `json:"primaryCategoryId"`
	SeasonID          *uint     `json:"seasonId"`
	Version           int       `gorm:"not null;default:1" json:"version"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (PictureSet) TableName() string {
	return "picture_sets"
}

// Picture 是作品集中的单张图片，OrderIndex 决定展示顺序。
type Picture struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	PictureSetID uint      `gorm:"not null;index" json:"pictureSetId"`
	OrderIndex   int       `gorm:"not null;default:0" json:"orderIndex"`
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle"`
	Description  string    `gorm:"type:text" json:"description"`
	ImageURL     string    `gorm:"not null" json:"imageUrl"`
	RawImageURL  string    `json:"rawImageUrl"`
	ImageWidth   int       `json:"imageWidth"`
	ImageHeight  int       `json:"imageHeight"`
	Style        *string   `gorm:"size:120" json:"style"`
	SeasonID     *uint     `json:"seasonId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (Picture) TableName() string {
	return "pictures"
}

// PictureSetTranslation 以 (picture_set_id, locale) 为复合主键保存译文。
// *State 字段只在 en 行上有意义。
type PictureSetTranslation struct {
	PictureSetID     uint       `gorm:"primaryKey;autoIncrement:false" json:"pictureSetId"`
	Locale           string     `gorm:"primaryKey;size:8" json:"locale"`
	Title            *string    `json:"title"`
	Subtitle         *string    `json:"subtitle"`
	Description      *string    `gorm:"type:text" json:"description"`
	TitleState       TouchState `gorm:"size:16;default:untouched" json:"titleState"`
	SubtitleState    TouchState `gorm:"size:16;default:untouched" json:"subtitleState"`
	DescriptionState TouchState `gorm:"size:16;default:untouched" json:"descriptionState"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (PictureSetTranslation) TableName() string {
	return "picture_set_translations"
}

// PictureTranslation 以 (picture_id, locale) 为复合主键保存译文。
type PictureTranslation struct {
	PictureID        uint       `gorm:"primaryKey;autoIncrement:false" json:"pictureId"`
	Locale           string     `gorm:"primaryKey;size:8" json:"locale"`
	Title            *string    `json:"title"`
	Subtitle         *string    `json:"subtitle"`
	Description      *string    `gorm:"type:text" json:"description"`
	TitleState       TouchState `gorm:"size:16;default:untouched" json:"titleState"`
	SubtitleState    TouchState `gorm:"size:16;default:untouched" json:"subtitleState"`
	DescriptionState TouchState `gorm:"size:16;default:untouched" json:"descriptionState"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (PictureTranslation) TableName() string {
	return "picture_translations"
}
