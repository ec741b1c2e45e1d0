// Package store persists one row per completed audit so repeated snapshots
// of a contract can be compared over time. Persistence is a convenience:
// the report file is the product, and store failures never fail a run.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"argus/internal/config"
	"argus/internal/logger"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type AuditRecord struct {
	ID             uint   `gorm:"primaryKey"`
	Address        string `gorm:"size:42;index"`
	Chain          string `gorm:"size:32"`
	Implementation string `gorm:"size:42"`
	FromBlock      uint64
	ToBlock        uint64

	InitFunctions          int
	UnprotectedInits       int
	UnprotectedRoleSetters int
	InternalTransferCalls  int

	TransferEvents    int
	BlacklistedEvents int
	UpgradedEvents    int
	SkippedWindows    int

	SlitherRan bool
	ReportPath string
	CreatedAt  time.Time
}

type Store struct {
	db *gorm.DB
}

// Open connects to Postgres when a DSN is configured and falls back to a
// local SQLite file otherwise (or when Postgres is unreachable).
func Open(cfg config.DatabaseConfig) (*Store, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var db *gorm.DB
	var err error

	if cfg.DSN != "" {
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
		if err != nil {
			// gorm.Open hands back a non-nil handle even on a failed ping
			logger.Warn("PostgreSQL connection failed: %v", err)
			logger.Info("🔄 Falling back to SQLite...")
			db = nil
		}
	}

	if db == nil {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", mkErr)
			}
		}
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
	}

	if err := db.AutoMigrate(&AuditRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit history schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Record(rec *AuditRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to record audit: %w", err)
	}
	return nil
}

// History returns past records for an address, newest first.
func (s *Store) History(address string, limit int) ([]AuditRecord, error) {
	var recs []AuditRecord
	q := s.db.Where("address = ?", address).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
