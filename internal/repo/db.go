// Package repo implements the persistence layer for promocodes, catalog data,
// curated recommendations and idempotency records. Every store has an
// in-memory implementation (the default demo backend) and a GORM-backed one
// for SQLite or Postgres.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-promo-reco/internal/domain"
)

// Supported DB drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the configured driver, installs the OpenTelemetry tracing
// plugin and tunes the connection pool.
func Open(driver, dsn string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(driver) {
	case DriverSQLite, "":
		db, err = OpenSQLite(dsn)
	case DriverPostgres:
		db, err = OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("install tracing plugin: %w", err)
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
// In-memory DSNs ("file::memory:", "...mode=memory") skip the directory check.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if !isMemoryDSN(dsn) {
		// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
		path := strings.TrimPrefix(dsn, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	if !isMemoryDSN(dsn) {
		db.Exec("PRAGMA journal_mode=WAL;")
	}
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	tunePool(db, sqlitePool(dsn))
	return db, nil
}

// OpenPostgres opens a Postgres database through the pgx-based GORM driver.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	tunePool(db, poolLimits{maxOpen: 25, maxIdle: 25, idleTime: 5 * time.Minute, lifetime: 30 * time.Minute})
	return db, nil
}

// AutoMigrate creates or updates every table used by the services.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Promocode{},
		&domain.Product{},
		&domain.UserHistoryEntry{},
		&domain.CuratedRecommendation{},
		&domain.Idempotency{},
	)
}

type poolLimits struct {
	maxOpen  int
	maxIdle  int
	idleTime time.Duration
	lifetime time.Duration
}

// sqlitePool returns the pool settings for dsn. A shared in-memory database
// lives only while a connection is open, so its connections never expire.
func sqlitePool(dsn string) poolLimits {
	if isMemoryDSN(dsn) {
		return poolLimits{maxOpen: 10, maxIdle: 10}
	}
	return poolLimits{maxOpen: 10, maxIdle: 10, idleTime: 5 * time.Minute, lifetime: 30 * time.Minute}
}

func tunePool(db *gorm.DB, l poolLimits) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(l.maxOpen)
		sqlDB.SetMaxIdleConns(l.maxIdle)
		sqlDB.SetConnMaxIdleTime(l.idleTime)
		sqlDB.SetConnMaxLifetime(l.lifetime)
	}
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" ||
		strings.HasPrefix(dsn, "file::memory:") ||
		strings.Contains(dsn, "mode=memory")
}
