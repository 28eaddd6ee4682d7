package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/protocol-service/internal/app"
	"github.com/spec-kit/protocol-service/internal/config"
	"github.com/spec-kit/protocol-service/internal/observability"
	"github.com/spec-kit/protocol-service/internal/seed"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var sample bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  `Start the HTTP API. With STORAGE_DRIVER=memory the default taxonomy and admin account are seeded on start.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), sample)
		},
	}
	cmd.Flags().BoolVar(&sample, "sample", false, "Load sample clients and tickets when seeding the memory store")
	return cmd
}

func runServe(parent context.Context, sample bool) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	ctx, cancel := context.WithCancel(contextOrBackground(parent))
	defer cancel()

	if err := rt.openStorage(ctx, rt.cfg.Postgres.RunMigrations); err != nil {
		logger.Error("storage unavailable", zap.Error(err))
		return err
	}

	services := app.Build(app.Options{
		Config: rt.cfg,
		Repos:  rt.repos,
		Cache:  rt.cache,
		Logger: logger,
	})
	if rt.cfg.Storage.Driver == config.StorageMemory {
		if _, err := seed.Run(ctx, services, rt.cfg.Seed, sample, logger); err != nil {
			return err
		}
	}

	metrics := observability.NewMetrics()
	server := app.NewHTTPServer(rt.cfg, services, rt.repos.Users, logger, metrics, rt.readinessChecks())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", rt.cfg.App.Addr()))
		errCh <- server.Listen(rt.cfg.App.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("fiber listen", zap.Error(err))
			return err
		}
	}

	return server.ShutdownWithTimeout(shutdownTimeout)
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
