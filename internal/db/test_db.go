package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates a private in-memory SQLite database for one test and
// closes it when the test ends.
func SetupTestDB(t testing.TB) (*gorm.DB, error) {
	t.Helper()

	// named shared-cache DB so every pooled connection sees the same data
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get test database instance: %w", err)
	}
	// sqlite allows one writer; a single connection keeps writers queued
	// instead of failing with SQLITE_LOCKED under shared cache
	sqlDB.SetMaxOpenConns(1)

	if err := MigrateDB(db); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}

	t.Cleanup(func() { CleanupTestDB(db) })
	return db, nil
}

// CleanupTestDB closes the test database
func CleanupTestDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
