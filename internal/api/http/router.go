package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/patient-queue-service/internal/api/http/handlers"
	"github.com/spec-kit/patient-queue-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Queue          *handlers.QueueHandler
	Scheduler      *handlers.SchedulerHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Read paths (lookup, estimates, token
// validation) are open to the gateway; queue advancement requires a staff
// principal.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Get("/tickets/:id", cfg.Queue.GetTicket)
	app.Get("/tickets/:id/estimate", cfg.Queue.GetEstimate)
	app.Get("/estimates/preview", cfg.Queue.PreviewEstimate)
	app.Get("/tokens/:token", cfg.Queue.ValidateToken)

	staff := app.Group("", cfg.AuthMiddleware.Handle)
	staff.Post("/tickets", auth.RequireRole(auth.RoleReception, auth.RoleAdmin), cfg.Queue.CreateTicket)
	staff.Post("/queue/call-next", auth.RequireRole(auth.RolePhysician, auth.RoleAdmin), cfg.Scheduler.CallNext)
	staff.Post("/tickets/:id/complete", auth.RequireRole(auth.RolePhysician, auth.RoleAdmin), cfg.Scheduler.CompleteTicket)
	staff.Post("/tickets/:id/expire", auth.RequireRole(auth.RoleReception, auth.RoleAdmin), cfg.Scheduler.ExpireTicket)
	staff.Post("/queue/sweep", auth.RequireRole(auth.RoleAdmin), cfg.Scheduler.RunSweep)
}
