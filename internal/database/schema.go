package database

import (
	"context"
	"fmt"
	"log/slog"

	"softspot/internal/config"
	"softspot/internal/middleware"
	"softspot/internal/models"

	"gorm.io/gorm"
)

// MigrateLocal creates the slot, outbox and DLQ tables.
func MigrateLocal(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(models.LocalModels()...); err != nil {
		return fmt.Errorf("auto-migrate local store: %w", err)
	}
	return nil
}

// ApplyRemoteSchema migrates the remote tables. On Postgres the embedded SQL
// migrations then add the RPC functions and partial indexes PostgREST relies on.
func ApplyRemoteSchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	if !cfg.IsProduction() || db.Dialector.Name() == DriverSQLite {
		middleware.Logger.Info("Running GORM AutoMigrate", slog.String("env", cfg.Env))
		if err := db.WithContext(ctx).AutoMigrate(models.RemoteModels()...); err != nil {
			return fmt.Errorf("auto-migrate remote store: %w", err)
		}
	}
	if db.Dialector.Name() != DriverPostgres {
		return nil
	}
	if err := RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run sql migrations: %w", err)
	}
	return nil
}

// SchemaStatus reports applied and pending SQL migrations.
type SchemaStatus struct {
	Dialect           string
	AppliedVersions   []int
	PendingMigrations []Migration
}

// GetSchemaStatus inspects the migration log of db.
func GetSchemaStatus(ctx context.Context, db *gorm.DB) (*SchemaStatus, error) {
	status := &SchemaStatus{Dialect: db.Dialector.Name()}
	applied, err := NewMigrationStore(db).GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	status.AppliedVersions = applied

	appliedSet := make(map[int]bool, len(applied))
	for _, version := range applied {
		appliedSet[version] = true
	}
	for _, m := range GetMigrations() {
		if !appliedSet[m.Version] {
			status.PendingMigrations = append(status.PendingMigrations, m)
		}
	}
	return status, nil
}
