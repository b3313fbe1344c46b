package db

// 以下为多对多关联表，成员关系是集合而非列表，不记录顺序。

// PictureSetTag 作品集与 topic 标签的关联。
type PictureSetTag struct {
	PictureSetID uint `gorm:"primaryKey;autoIncrement:false"`
	TagID        uint `gorm:"primaryKey;autoIncrement:false;index"`
}

// TableName 指定自定义表名。
func (PictureSetTag) TableName() string {
	return "picture_set_tags"
}

// PictureSetCategory 作品集与分类的关联，IsPrimary 标记主分类。
type PictureSetCategory struct {
	PictureSetID uint `gorm:"primaryKey;autoIncrement:false"`
	CategoryID   uint `gorm:"primaryKey;autoIncrement:false;index"`
	IsPrimary    bool `gorm:"default:false"`
}

// TableName 指定自定义表名。
func (PictureSetCategory) TableName() string {
	return "picture_set_categories"
}

// PictureSetSection 作品集与首页分区的关联。
type PictureSetSection struct {
	PictureSetID uint `gorm:"primaryKey;autoIncrement:false"`
	SectionID    uint `gorm:"primaryKey;autoIncrement:false;index"`
}

// TableName 指定自定义表名。
func (PictureSetSection) TableName() string {
	return "picture_set_sections"
}

// PictureSetLocation 作品集的地点关联，每个作品集至多一个主地点。
type PictureSetLocation struct {
	PictureSetID uint `gorm:"primaryKey;autoIncrement:false"`
	LocationID   uint `gorm:"primaryKey;autoIncrement:false;index"`
	IsPrimary    bool `gorm:"default:false"`
}

// TableName 指定自定义表名。
func (PictureSetLocation) TableName() string {
	return "picture_set_locations"
}

// PictureTag 图片与 topic 标签的关联。
type PictureTag struct {
	PictureID uint `gorm:"primaryKey;autoIncrement:false"`
	TagID     uint `gorm:"primaryKey;autoIncrement:false;index"`
}

// TableName 指定自定义表名。
func (PictureTag) TableName() string {
	return "picture_tags"
}

// PictureCategory 图片与分类的关联。
type PictureCategory struct {
	PictureID  uint `gorm:"primaryKey;autoIncrement:false"`
	CategoryID uint `gorm:"primaryKey;autoIncrement:false;index"`
	IsPrimary  bool `gorm:"default:false"`
}

// TableName 指定自定义表名。
func (PictureCategory) TableName() string {
	return "picture_categories"
}

// PictureLocation 图片的地点关联。
type PictureLocation struct {
	PictureID  uint `gorm:"primaryKey;autoIncrement:false"`
	LocationID uint `gorm:"primaryKey;autoIncrement:false;index"`
	IsPrimary  bool `gorm:"default:false"`
}

// TableName 指定自定义表名。
func (PictureLocation) TableName() string {
	return "picture_locations"
}
