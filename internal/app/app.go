// Package app assembles services, handlers and the HTTP server over a repository set.
package app

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/protocol-service/internal/api/http"
	"github.com/spec-kit/protocol-service/internal/api/http/handlers"
	"github.com/spec-kit/protocol-service/internal/auth"
	"github.com/spec-kit/protocol-service/internal/cache"
	"github.com/spec-kit/protocol-service/internal/config"
	"github.com/spec-kit/protocol-service/internal/events"
	"github.com/spec-kit/protocol-service/internal/observability"
	"github.com/spec-kit/protocol-service/internal/repository"
	"github.com/spec-kit/protocol-service/internal/service"
	"github.com/spec-kit/protocol-service/internal/worker"
)

// Options configures Build.
type Options struct {
	Config *config.Config
	Repos  repository.Repositories
	// Cache backs the dashboard summary. Nil disables caching.
	Cache  cache.Cache
	Logger *zap.Logger
	Clock  service.Clock
}

// Services holds the application services sharing one dispatcher.
type Services struct {
	Dispatcher    events.Dispatcher
	Tickets       *service.TicketService
	Taxonomy      *service.TaxonomyService
	Clients       *service.ClientService
	Reports       *service.ReportService
	Auth          *service.AuthService
	Notifications *service.NotificationService
}

// Build constructs every service and registers the event subscribers.
func Build(opts Options) *Services {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config
	dispatcher := events.NewInMemoryDispatcher()
	deps := service.Dependencies{
		Repos:      opts.Repos,
		Dispatcher: dispatcher,
		Logger:     logger,
		Clock:      opts.Clock,
	}

	svc := &Services{
		Dispatcher: dispatcher,
		Tickets:    service.NewTicketService(deps),
		Taxonomy:   service.NewTaxonomyService(deps),
		Clients:    service.NewClientService(deps, cfg.Auth.BcryptCost),
		Reports: service.NewReportService(deps, service.ReportOptions{
			Cache:        opts.Cache,
			DashboardTTL: cfg.Cache.DashboardTTL(),
		}),
		Auth:          service.NewAuthService(cfg.Auth, deps),
		Notifications: service.NewNotificationService(dispatcher, logger, cfg.Notification),
	}
	worker.StartEventSubscribers(dispatcher, svc.Notifications, svc.Reports)
	return svc
}

// NewHTTPServer wires handlers for svc into a fiber application.
// Only the non-nil entries of dependencies are probed by /health/ready.
func NewHTTPServer(cfg *config.Config, svc *Services, users repository.UserRepository, logger *zap.Logger,
	metrics *observability.Metrics, dependencies map[string]handlers.Pinger) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}
	authMiddleware := auth.NewAuthMiddleware(svc.Auth.TokenManager(), users)

	return httptransport.NewServer(httptransport.ServerConfig{
		Name:           cfg.App.Name,
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.App.RequestTimeout(),
	}, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies, metrics),
		Auth:           handlers.NewAuthHandler(svc.Auth),
		Tickets:        handlers.NewTicketsHandler(svc.Tickets),
		Reports:        handlers.NewReportsHandler(svc.Reports),
		Clients:        handlers.NewClientsHandler(svc.Clients),
		ProblemTypes:   handlers.NewProblemTypesHandler(svc.Taxonomy),
		Admin:          handlers.NewAdminHandler(svc.Tickets, svc.Auth),
		AuthMiddleware: authMiddleware,
	})
}
