package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/oh-queue/internal/api/http/handlers"
	"github.com/spec-kit/oh-queue/internal/auth"
	"github.com/spec-kit/oh-queue/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Queue          *handlers.QueueHandler
	Appointments   *handlers.AppointmentsHandler
	Stream         *handlers.StreamHandler
	Auth           *handlers.AuthHandler
	AuthMiddleware *auth.AuthMiddleware
	// DevAuth exposes the token-minting endpoint.
	DevAuth bool
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	if cfg.DevAuth {
		app.Post("/auth/dev/token", cfg.Auth.DevToken)
	}

	api := app.Group("/api", cfg.AuthMiddleware.Handle)
	api.Get("/me", cfg.Auth.Me)
	api.Get("/stream", cfg.Stream.Stream)
	api.Get("/next", cfg.Queue.Next)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Queue.Create)
	tickets.Post("/assign", cfg.Queue.Assign)
	tickets.Post("/unassign", cfg.Queue.Unassign)
	tickets.Post("/resolve", cfg.Queue.Resolve)
	tickets.Post("/delete", cfg.Queue.Delete)
	tickets.Post("/refresh", cfg.Queue.Refresh)
	tickets.Get("/:id", cfg.Queue.Get)
	tickets.Get("/:id/history", cfg.Queue.History)
	tickets.Put("/:id/description", cfg.Queue.Describe)

	appointments := api.Group("/appointments")
	appointments.Get("/", cfg.Appointments.List)
	appointments.Post("/claim", cfg.Appointments.Claim)
}

// NewApp creates the fiber app with the global middleware installed.
func NewApp(name string, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, logger, metrics, timeout)
	return app
}
