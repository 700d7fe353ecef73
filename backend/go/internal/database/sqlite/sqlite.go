package sqlite

import (
	"fmt"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 打开（必要时创建）本地 SQLite 数据库文件。
// SQLite 只允许单写者，因此连接池限制为 1。
func Open(cfg config.SQLiteConfig) (*gorm.DB, error) {
	path := cfg.Path
	if path == "" {
		path = "knowledge.db"
	}
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("无法打开 SQLite 数据库 '%s': %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("无法获取底层 SQL DB 实例: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
