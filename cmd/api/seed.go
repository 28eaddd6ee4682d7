package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/app"
	"github.com/spec-kit/protocol-service/internal/config"
	"github.com/spec-kit/protocol-service/internal/seed"
)

func newSeedCommand() *cobra.Command {
	var sample bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the default problem types and admin account",
		Long:  `Create the default problem types and the admin superuser when missing. --sample also loads demo clients and tickets into an empty base.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime()
			if err != nil {
				return err
			}
			defer rt.close()
			if rt.cfg.Storage.Driver == config.StorageMemory {
				return fmt.Errorf("seeding the memory store is done by serve")
			}

			ctx := contextOrBackground(cmd.Context())
			if err := rt.openStorage(ctx, rt.cfg.Postgres.RunMigrations); err != nil {
				return err
			}
			services := app.Build(app.Options{Config: rt.cfg, Repos: rt.repos, Cache: rt.cache, Logger: rt.logger})
			report, err := seed.Run(ctx, services, rt.cfg.Seed, sample, rt.logger)
			if err != nil {
				rt.logger.Error("seed failed", zap.Error(err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "problem types created: %d, clients: %d, tickets: %d, admin created: %t\n",
				report.ProblemTypesCreated, report.ClientsCreated, report.TicketsCreated, report.AdminCreated)
			return nil
		},
	}
	cmd.Flags().BoolVar(&sample, "sample", false, "Also load sample clients, tickets and updates")
	return cmd
}
