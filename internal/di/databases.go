// Package di provides dependency injection for database connections.
package di

import (
	"context"
	"fmt"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the snapshot database and applies its schema.
// A read-only container skips the migration and rejects writes.
func InitializeDatabases(ctx context.Context, cfg *config.Config, readOnly bool, log zerolog.Logger) (*Container, error) {
	profile := database.ProfileStandard
	if readOnly {
		profile = database.ProfileReadOnly
	}

	snapshotDB, err := database.New(database.Config{
		Path:    cfg.SnapshotPath,
		Profile: profile,
		Name:    "snapshot",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot database: %w", err)
	}

	if !readOnly {
		if err := snapshotDB.Migrate(ctx); err != nil {
			snapshotDB.Close()
			return nil, fmt.Errorf("failed to migrate snapshot database: %w", err)
		}
	}

	log.Info().
		Str("path", snapshotDB.Path()).
		Str("profile", string(snapshotDB.Profile())).
		Msg("Snapshot database initialized")

	return &Container{SnapshotDB: snapshotDB}, nil
}
