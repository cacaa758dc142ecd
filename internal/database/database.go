// Package database opens the local and remote SQL stores and applies their schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"softspot/internal/config"
	"softspot/internal/middleware"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// CustomGormLogger integrates GORM with slog
type CustomGormLogger struct {
	logger *slog.Logger
	Config logger.Config
}

// NewGormLogger returns a slog-backed GORM logger at warn level.
func NewGormLogger() *CustomGormLogger {
	return &CustomGormLogger{
		logger: middleware.Logger,
		Config: logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	}
}

// LogMode sets the logging level and returns a new interface instance.
func (l *CustomGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newlogger := *l
	newlogger.Config.LogLevel = level
	return &newlogger
}

// Info logs an informational message with context.
func (l *CustomGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Warn logs a warning message with context.
func (l *CustomGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *CustomGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.Config.LogLevel >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Trace logs SQL with its execution time. Errors and slow queries are raised to error and warn.
func (l *CustomGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.Config.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.Config.LogLevel >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.logger.ErrorContext(ctx, "GORM query error",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
	case elapsed > l.Config.SlowThreshold && l.Config.SlowThreshold != 0 && l.Config.LogLevel >= logger.Warn:
		l.logger.WarnContext(ctx, "GORM slow query",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	case l.Config.LogLevel >= logger.Info:
		l.logger.InfoContext(ctx, "GORM query",
			slog.String("sql", sql),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	}
}

// Open connects to driver at dsn with the slog GORM logger.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	if err := configurePool(db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

// ConnectLocal opens the local store and migrates the slot and outbox tables.
func ConnectLocal(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg.LocalDBDriver, cfg.LocalDBDSN)
	if err != nil {
		return nil, err
	}
	if err := MigrateLocal(ctx, db); err != nil {
		return nil, err
	}
	middleware.Logger.Info("Local store connected", slog.String("driver", cfg.LocalDBDriver))
	return db, nil
}

// ConnectRemote opens the remote relational store used by REMOTE_MODE=sql.
// The driver is inferred from the DSN.
func ConnectRemote(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	driver := DriverFromDSN(cfg.RemoteDBDSN)
	db, err := Open(driver, cfg.RemoteDBDSN)
	if err != nil {
		return nil, err
	}
	if err := ApplyRemoteSchema(ctx, db, cfg); err != nil {
		return nil, err
	}
	middleware.Logger.Info("Remote store connected", slog.String("driver", driver))
	return db, nil
}

// DriverFromDSN treats key=value and postgres:// DSNs as Postgres and anything else as a SQLite path.
func DriverFromDSN(dsn string) string {
	switch {
	case len(dsn) >= 11 && dsn[:11] == "postgres://",
		len(dsn) >= 13 && dsn[:13] == "postgresql://",
		len(dsn) >= 5 && dsn[:5] == "host=":
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

func configurePool(db *gorm.DB, driver string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if driver == DriverSQLite {
		// One writer; also keeps :memory: databases on a single connection.
		sqlDB.SetMaxOpenConns(1)
		return nil
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return nil
}
