package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ConnOption func(*gorm.Config)

// WithSilentLogger 關閉 gorm 自帶的 sql log，統一由 zerolog 記錄
func WithSilentLogger() ConnOption {
	return func(c *gorm.Config) {
		c.Logger = logger.Default.LogMode(logger.Silent)
	}
}

func DSN(dbname, host, port, user, pas string) string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=disable", user, pas, host, port, dbname)
}

// MigrationURL golang-migrate 使用的連線字串
func MigrationURL(dbname, host, port, user, pas string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pas, host, port, dbname)
}

func GetDbConn(dbname, host, port, user, pas string, options ...ConnOption) (*gorm.DB, error) {
	cf := &gorm.Config{}
	for _, option := range options {
		option(cf)
	}

	// 連線到資料庫
	db, err := gorm.Open(postgres.Open(DSN(dbname, host, port, user, pas)), cf)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
