package testutil

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	dbpkg "github.com/yungbote/coursegen/internal/data/db"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a migrated database private to the calling test. It is an
// in-memory sqlite database unless TEST_POSTGRES_DSN is set, in which case
// every test runs inside a transaction that is rolled back on cleanup.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}

	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		return Tx(tb, openPostgres(tb, dsn, cfg))
	}
	return openSQLite(tb, cfg)
}

// ConcurrentDB is like DB but hands out a plain connection pool, so
// goroutines can hold overlapping transactions on postgres. Callers remove
// what they seed; see DeleteCourseTree.
func ConcurrentDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		return openPostgres(tb, dsn, cfg)
	}
	return openSQLite(tb, cfg)
}

func openPostgres(tb testing.TB, dsn string, cfg *gorm.Config) *gorm.DB {
	tb.Helper()
	conn, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		tb.Fatalf("open postgres: %v", err)
	}
	if err := dbpkg.AutoMigrateAll(conn); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	if sqlDB, err := conn.DB(); err == nil {
		tb.Cleanup(func() { _ = sqlDB.Close() })
	}
	return conn
}

func openSQLite(tb testing.TB, cfg *gorm.Config) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:cg_%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })
	if err := dbpkg.AutoMigrateAll(conn); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return conn
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
