package db

import "time"

const (
	TagTypeTopic    = "topic"
	TagTypeCategory = "category"
	TagTypeSeason   = "season"
	TagTypeStyle    = "style"
)

// Tag 定义了分类体系中的标签，Type 区分 topic/category/season/style。
// Slug 形如 "type:normalized-name"，是并发写入时唯一的去重依据。
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:120;not null;index:idx_tags_name_type" json:"name"`
	Type      string    `gorm:"size:32;not null;index:idx_tags_name_type" json:"type"`
	Slug      string    `gorm:"size:200;not null;uniqueIndex" json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (Tag) TableName() string {
	return "tags"
}

// Location 通过 (name, latitude, longitude) 精确匹配复用，不做地理范围去重。
type Location struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null;index:idx_locations_exact" json:"name"`
	Latitude  float64   `gorm:"index:idx_locations_exact" json:"latitude"`
	Longitude float64   `gorm:"index:idx_locations_exact" json:"longitude"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 指定自定义表名。
func (Location) TableName() string {
	return "locations"
}

// Section 表示首页上的作品分区。
type Section struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:120;not null;uniqueIndex" json:"name"`
	Slug      string    `gorm:"size:160;not null;uniqueIndex" json:"slug"`
	SortOrder int       `gorm:"default:0" json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (Section) TableName() string {
	return "sections"
}
