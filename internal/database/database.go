package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marketlens/resolver-api/internal/cache"
	"github.com/marketlens/resolver-api/internal/resolution"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&cache.CachedStock{},
		&resolution.SearchHistoryRecord{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
