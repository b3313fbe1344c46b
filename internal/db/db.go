package db

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

const sqlitePragmas = "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"

// Init 初始化数据库连接并执行自动迁移。
// databasePath 为空时将回退到默认值 lensfolio.db。
func Init(databasePath string) error {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = "lensfolio.db"
	}

	if err := ensureParentDir(path); err != nil {
		return err
	}

	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&" + sqlitePragmas
	} else {
		dsn += "?" + sqlitePragmas
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return err
	}

	return Migrate(DB)
}

// Migrate 为全部模型创建或更新表结构，测试中也直接复用。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&User{},
		&SystemSetting{},
		&Tag{},
		&Location{},
		&Section{},
		&PictureSet{},
		&PictureSetTranslation{},
		&Picture{},
		&PictureTranslation{},
		&PictureSetTag{},
		&PictureSetCategory{},
		&PictureSetSection{},
		&PictureSetLocation{},
		&PictureTag{},
		&PictureCategory{},
		&PictureLocation{},
	)
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
