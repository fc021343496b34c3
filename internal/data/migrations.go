package data

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/target/cyano-batch/internal/migrate"
)

// RunMigrations brings the batch job schema up to date by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	return migrate.RunWithLogger(ctx, db, logger)
}
