package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/coursegen/internal/platform/logger"
)

type Config struct {
	Driver string // postgres | sqlite
	DSN    string
	Debug  bool
}

// Open connects to the configured driver. sqlite is meant for local single
// process runs and tests; postgres is required for multi-worker claiming.
func Open(cfg Config, baseLog *logger.Logger) (*gorm.DB, error) {
	level := gormLogger.Warn
	if cfg.Debug {
		level = gormLogger.Info
	}
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	var (
		conn *gorm.DB
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "postgres", "postgresql":
		conn, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
	case "sqlite":
		conn, err = gorm.Open(sqlite.Open(cfg.DSN), gcfg)
		if err == nil {
			// sqlite serialises writers; one connection avoids SQLITE_BUSY across goroutines.
			if sqlDB, derr := conn.DB(); derr == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if baseLog != nil {
		baseLog.Info("Database connected", "driver", conn.Dialector.Name())
	}
	return conn, nil
}
