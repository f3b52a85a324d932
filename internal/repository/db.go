package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/ledgerline/ledgerlog/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB opens the log store named by the configured DSN: postgres://... or sqlite://path.
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := "sqlite://ledgerlog.db"
	if cfg != nil && cfg.Database.DSN != "" {
		dsn = cfg.Database.DSN
	}
	return Open(dsn)
}

func Open(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(dsn, "postgres"):
		dialector = postgres.Open(dsn)
	case strings.HasPrefix(dsn, "sqlite://"):
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported log store dsn: %q", dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// Timestamps are stored in UTC so day buckets agree across dialects.
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	if dialector.Name() == "sqlite" {
		// A single connection keeps :memory: databases shared and serializes writers.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(1 * time.Hour)
	}

	return db, nil
}

// Migrate creates or updates the four log tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.APILog{},
		&model.ErrorLog{},
		&model.UserActivity{},
		&model.FrontendLog{},
	)
}
