package config

import (
	"context"
	"fmt"
	"time"

	"github.com/bellapacxx/bingo-live/store"
	"github.com/bellapacxx/bingo-live/utils/logger"
	"github.com/glebarez/sqlite"
	"github.com/spf13/afero"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ConnectDB opens postgres when a DSN is configured, otherwise a sqlite file.
func ConnectDB(cfg *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case cfg.DatabaseURL != "":
		dialector = postgres.Open(cfg.DatabaseURL)
	case cfg.DatabasePath != "":
		dialector = sqlite.Open(cfg.DatabasePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	default:
		return nil, fmt.Errorf("no database configured")
	}

	level := gormlogger.Warn
	if cfg.Verbose {
		level = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.DatabaseURL == "" {
		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// OpenStore builds the configured storage backend, migrating the relational
// schema when needed.
func OpenStore(ctx context.Context, cfg *Config) (store.Store, error) {
	switch cfg.Storage {
	case StorageRelational:
		db, err := ConnectDB(cfg)
		if err != nil {
			return nil, err
		}
		g := store.NewGorm(db)
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := Migrate(ctx, g); err != nil {
			g.Close()
			return nil, err
		}
		logger.Info("[Config] relational storage ready")
		return g, nil
	case StorageLocal:
		l, err := store.OpenLocal(afero.NewOsFs(), cfg.LocalDir, cfg.LocalKey)
		if err != nil {
			return nil, err
		}
		logger.Infof("[Config] local storage at %s", l.Path())
		return l, nil
	default:
		return store.NewMemory(), nil
	}
}
