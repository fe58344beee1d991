package testing

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/amirphl/booster/repository"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var sqliteSeq atomic.Int64

// NewSQLiteDB opens a private in-memory SQLite database with the boost tables
// migrated. name keeps databases of parallel tests apart.
func NewSQLiteDB(name string) (*gorm.DB, error) {
	safe := strings.NewReplacer("/", "_", " ", "_").Replace(name)
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", safe, sqliteSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := repository.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// CloseDB releases the connection pool of db
func CloseDB(db *gorm.DB) {
	closeGorm(db)
}

// TestWithSQLite runs testFunc against a fresh in-memory database
func TestWithSQLite(name string, testFunc func(db *gorm.DB) error) error {
	db, err := NewSQLiteDB(name)
	if err != nil {
		return fmt.Errorf("failed to setup sqlite database: %w", err)
	}
	defer closeGorm(db)

	return testFunc(db)
}
