// Package storage persists raw catalog build records using GORM and SQLite
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Sentinel errors following Dave Cheney's principle: define errors as values
var (
	ErrDatabaseMissing = errors.New("database file does not exist")
	ErrEmptyItemID     = errors.New("build item id cannot be empty")
)

// insertBatchSize bounds the number of rows per INSERT statement.
const insertBatchSize = 500

// BuildRow is one raw build record as fetched from the upstream package API.
// Revision and dates are duplicated out of Record so the table can be ordered
// without decoding the JSON payload.
type BuildRow struct {
	ItemID       string `gorm:"column:item_id;primaryKey"`
	Revision     int64  `gorm:"column:revision;index:idx_revision_build_date,priority:1"`
	CheckoutDate string `gorm:"column:checkout_date"`
	BuildDate    string `gorm:"column:build_date;index:idx_revision_build_date,priority:2"`
	Record       string `gorm:"column:record;type:text"`
}

// TableName keeps the table name used by existing record dumps.
func (BuildRow) TableName() string {
	return "_"
}

// DB wraps gorm.DB with the catalog record operations
type DB struct {
	db *gorm.DB
}

// Config holds database configuration
type Config struct {
	DatabasePath string
	LogLevel     string // silent, error, warn, info

	// ReadOnly opens an existing database without migrating it.
	// InitDB fails with ErrDatabaseMissing when the file is absent.
	ReadOnly bool
}

// InitDB initializes the database connection and runs migrations
func InitDB(cfg Config) (*DB, error) {
	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	inMemory := cfg.DatabasePath == ":memory:"
	if cfg.ReadOnly && !inMemory {
		if _, err := os.Stat(cfg.DatabasePath); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseMissing, cfg.DatabasePath)
		}
	}
	if !cfg.ReadOnly && !inMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if inMemory {
		// every new connection to :memory: is a fresh, empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if !cfg.ReadOnly {
		if err := db.AutoMigrate(&BuildRow{}); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// CountBuilds returns the number of stored build records.
func (d *DB) CountBuilds(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&BuildRow{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count builds: %w", err)
	}
	return count, nil
}

// ListBuilds returns every stored build record, newest revision first and,
// within a revision, newest build date first.
func (d *DB) ListBuilds(ctx context.Context) ([]BuildRow, error) {
	var rows []BuildRow
	if err := d.db.WithContext(ctx).Order("revision DESC, build_date DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	return rows, nil
}

// InsertBuilds stores rows, ignoring any whose item id is already present.
// Returns the number of rows actually inserted.
func (d *DB) InsertBuilds(ctx context.Context, rows []BuildRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i := range rows {
		if rows[i].ItemID == "" {
			return 0, fmt.Errorf("row %d: %w", i, ErrEmptyItemID)
		}
	}

	result := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, insertBatchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to insert builds: %w", result.Error)
	}
	return result.RowsAffected, nil
}
