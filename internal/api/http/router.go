package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/protocol-service/internal/api/http/handlers"
	"github.com/spec-kit/protocol-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Reports        *handlers.ReportsHandler
	Clients        *handlers.ClientsHandler
	ProblemTypes   *handlers.ProblemTypesHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	app.Post("/auth/login", cfg.Auth.Login)

	authenticated := cfg.AuthMiddleware.Handle

	tickets := app.Group("/tickets", authenticated)
	tickets.Get("/next-number", cfg.Tickets.NextNumber)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/status", cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/finalize", cfg.Tickets.Finalize)
	tickets.Post("/:id/updates", cfg.Tickets.AppendUpdate)
	tickets.Get("/:id/updates", cfg.Tickets.ListUpdates)

	app.Get("/dashboard", authenticated, cfg.Reports.Dashboard)
	app.Get("/search", authenticated, cfg.Reports.Search)
	app.Get("/export/tickets.csv", authenticated, cfg.Reports.ExportTickets)

	clients := app.Group("/clients", authenticated)
	clients.Get("/", cfg.Clients.List)
	clients.Post("/", cfg.Clients.Register)
	clients.Get("/:id", cfg.Clients.Get)
	clients.Patch("/:id", cfg.Clients.Update)
	clients.Post("/:id/verify-secret", cfg.Clients.VerifySecret)
	clients.Delete("/:id", cfg.Clients.Delete)

	superuser := auth.RequireSuperuser()

	problemTypes := app.Group("/problem-types", authenticated)
	problemTypes.Get("/", cfg.ProblemTypes.List)
	problemTypes.Post("/", superuser, cfg.ProblemTypes.Create)
	problemTypes.Patch("/:id", superuser, cfg.ProblemTypes.Update)
	problemTypes.Delete("/:id", superuser, cfg.ProblemTypes.Delete)

	admin := app.Group("/admin", authenticated, superuser)
	admin.Get("/tickets", cfg.Admin.ListTickets)
	admin.Patch("/tickets/:id", cfg.Admin.UpdateTicket)
	admin.Delete("/tickets/:id", cfg.Admin.DeleteTicket)
	admin.Post("/users", cfg.Admin.CreateUser)
}
