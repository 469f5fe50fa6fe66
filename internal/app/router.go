// ============================================================================
// FILE: internal/app/router.go
// PURPOSE: HTTP router wiring every core API surface route
// ============================================================================

package app

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/xipebhui/autopublish/internal/middleware"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(c *Container) *chi.Mux {
	r := chi.NewRouter()

	// ========================================================================
	// GLOBAL MIDDLEWARE
	// ========================================================================

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(c.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.SecurityHeaders)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(c.RateLimiter.Limit)
	r.Use(middleware.Idempotency(c.Cache, c.Logger))

	// ========================================================================
	// PUBLIC ROUTES
	// ========================================================================

	r.Get("/health", c.SystemHandler.Health)

	// ========================================================================
	// API V1 ROUTES
	// ========================================================================

	r.Route("/api/v1", func(r chi.Router) {
		// ====================================================================
		// PIPELINE REGISTRY
		// ====================================================================
		r.Route("/pipelines", func(r chi.Router) {
			r.Post("/", c.PipelineHandler.Register)
			r.Get("/", c.PipelineHandler.List)
			r.Get("/{id}", c.PipelineHandler.Get)
			r.Put("/{id}", c.PipelineHandler.Update)
			r.Delete("/{id}", c.PipelineHandler.Delete)
		})

		// ====================================================================
		// ACCOUNTS & GROUPS
		// ====================================================================
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", c.GroupHandler.CreateAccount)
			r.Get("/", c.GroupHandler.ListAccounts)
			r.Put("/{id}", c.GroupHandler.UpdateAccount)
			r.Delete("/{id}", c.GroupHandler.DeleteAccount)
		})
		r.Route("/account-groups", func(r chi.Router) {
			r.Post("/", c.GroupHandler.CreateGroup)
			r.Get("/", c.GroupHandler.ListGroups)
			r.Get("/{id}", c.GroupHandler.GetGroup)
			r.Put("/{id}", c.GroupHandler.UpdateGroup)
			r.Delete("/{id}", c.GroupHandler.DeleteGroup)
			r.Post("/{id}/members", c.GroupHandler.AddMembers)
			r.Delete("/{id}/members/{accountId}", c.GroupHandler.RemoveMember)
		})

		// ====================================================================
		// PUBLISH CONFIGS & RING SLOTS
		// ====================================================================
		r.Route("/publish-configs", func(r chi.Router) {
			r.Post("/", c.ConfigHandler.Create)
			r.Get("/", c.ConfigHandler.List)
			r.Get("/{id}", c.ConfigHandler.Get)
			r.Put("/{id}", c.ConfigHandler.Update)
			r.Delete("/{id}", c.ConfigHandler.Delete)
			r.Post("/{id}/toggle", c.ConfigHandler.Toggle)
			r.Get("/{id}/next-fire-time", c.ConfigHandler.NextFireTime)
		})
		r.Route("/schedule", func(r chi.Router) {
			r.Post("/generate-slots", c.ConfigHandler.GenerateSlots)
			r.Get("/slots", c.ConfigHandler.ListSlots)
		})

		// ====================================================================
		// STRATEGIES
		// ====================================================================
		r.Route("/strategies", func(r chi.Router) {
			r.Post("/", c.StrategyHandler.Create)
			r.Get("/", c.StrategyHandler.List)
			r.Get("/{id}", c.StrategyHandler.Get)
			r.Put("/{id}", c.StrategyHandler.Update)
			r.Delete("/{id}", c.StrategyHandler.Delete)
			r.Post("/{id}/assignments", c.StrategyHandler.CreateAssignment)
			r.Get("/{id}/assignments", c.StrategyHandler.ListAssignments)
			r.Delete("/{id}/assignments/{assignmentId}", c.StrategyHandler.DeleteAssignment)
		})

		// ====================================================================
		// MONITORS
		// ====================================================================
		r.Route("/monitors", func(r chi.Router) {
			r.Post("/", c.MonitorHandler.Create)
			r.Get("/", c.MonitorHandler.List)
			r.Get("/{id}", c.MonitorHandler.Get)
			r.Put("/{id}", c.MonitorHandler.Update)
			r.Delete("/{id}", c.MonitorHandler.Delete)
			r.Post("/{id}/start", c.MonitorHandler.Start)
			r.Post("/{id}/stop", c.MonitorHandler.StopMonitor)
		})

		// ====================================================================
		// AUTO-PUBLISH TASKS
		// ====================================================================
		r.Route("/auto-publish/tasks", func(r chi.Router) {
			r.Get("/", c.TaskHandler.List)
			r.Get("/{id}", c.TaskHandler.Get)
			r.Post("/{id}/retry", c.TaskHandler.Retry)
			r.Post("/{id}/cancel", c.TaskHandler.Cancel)
		})

		// ====================================================================
		// PUBLISH TASKS & SCHEDULER QUEUE
		// ====================================================================
		r.Route("/publish", func(r chi.Router) {
			r.Post("/schedule", c.PublishHandler.Schedule)
			r.Get("/tasks", c.PublishHandler.List)
			r.Post("/tasks/{id}/retry", c.PublishHandler.Retry)
			r.Get("/scheduler/queue", c.PublishHandler.Queue)
			r.Delete("/scheduler/{id}", c.PublishHandler.Cancel)
			r.Post("/scheduler/reschedule/{id}", c.PublishHandler.Reschedule)
		})

		// ====================================================================
		// EXECUTOR CONTROL & OVERVIEW
		// ====================================================================
		r.Post("/executor/start", c.SystemHandler.StartExecutor)
		r.Post("/executor/stop", c.SystemHandler.StopExecutor)
		r.Get("/executor/status", c.SystemHandler.ExecutorStatus)
		r.Get("/overview", c.SystemHandler.Overview)
	})

	return r
}
