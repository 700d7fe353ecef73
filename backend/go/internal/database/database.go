// Package database 负责按配置打开知识库所用的关系型数据库。
package database

import (
	"context"
	"fmt"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/internal/database/mysql"
	"github.com/Farx1/esilvchatbot/backend/go/internal/database/sqlite"
	"gorm.io/gorm"
)

// OpenGorm 根据 databases.driver 打开 MySQL 或 SQLite。
// driver 为 "memory" 时返回 nil, nil，调用方改用内存存储。
func OpenGorm(cfg config.DatabaseConfigs) (*gorm.DB, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(cfg.MySQL)
	case "sqlite":
		return sqlite.Open(cfg.SQLite)
	case "memory":
		return nil, nil
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}
}

// Close 安全地关闭数据库连接。
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 SQL DB 实例失败: %w", err)
	}
	return sqlDB.Close()
}

// HealthCheck 检查数据库连接的健康状况。
func HealthCheck(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库连接未初始化")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("无法获取底层 SQL DB 实例进行健康检查: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
