package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/config"
	"github.com/spec-kit/protocol-service/internal/persistence"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Apply the embedded PostgreSQL migrations or report their status.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withPostgres(cmd.Context(), persistence.RunMigrations)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withPostgres(cmd.Context(), persistence.MigrationStatus)
			},
		},
	)
	return cmd
}

type migrationFunc func(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error

func withPostgres(parent context.Context, fn migrationFunc) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	if rt.cfg.Storage.Driver != config.StoragePostgres {
		return fmt.Errorf("migrations require STORAGE_DRIVER=%s", config.StoragePostgres)
	}

	ctx := contextOrBackground(parent)
	pg, err := persistence.NewPostgres(ctx, rt.cfg.Postgres, rt.logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	rt.postgres = pg
	return fn(ctx, pg.Pool, rt.logger)
}
