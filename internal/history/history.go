// Package history persists per-file compression outcomes to a local sqlite
// database so savings can be inspected across runs.
package history

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Record statuses.
const (
	StatusCompressed = "compressed"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
)

// Record is one processed file in one run.
type Record struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	FilePath       string    `gorm:"index" json:"file_path"`
	OriginalSize   int64     `json:"original_size"`
	CompressedSize int64     `json:"compressed_size"`
	SavedBytes     int64     `json:"saved_bytes"`
	PercentSaved   int64     `json:"percent_saved"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store handles history database operations.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at dbPath and migrates the
// schema.
func Open(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Add inserts one record.
func (s *Store) Add(rec *Record) error {
	return s.db.Create(rec).Error
}

// Recent returns the most recent records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []Record
	err := s.db.Order("id desc").Limit(limit).Find(&records).Error
	return records, err
}

// TotalSaved returns the aggregate bytes saved across all successful records.
func (s *Store) TotalSaved() (int64, error) {
	var total int64
	err := s.db.Model(&Record{}).
		Where("status = ?", StatusCompressed).
		Select("coalesce(sum(saved_bytes), 0)").
		Scan(&total).Error
	return total, err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
