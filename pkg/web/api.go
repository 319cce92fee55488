package web

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/loomhq/loom/pkg/eventbus"
	"github.com/loomhq/loom/pkg/persistence"
)

// NewApp builds the fiber application with all API routes registered.
func NewApp(store persistence.Persistence, publisher eventbus.EventPublisher) *fiber.App {
	handlers := NewAPIHandlers(store, publisher, validator.New())

	app := fiber.New(fiber.Config{
		AppName: "loom-api",
	})

	app.Get("/health", handlers.Health)

	app.Get("/workflows", handlers.GetWorkflows)
	app.Post("/workflows", handlers.SaveWorkflow)
	app.Get("/workflows/:id", handlers.GetWorkflow)
	app.Post("/workflows/:id/run", handlers.RunWorkflow)
	app.Get("/workflows/:id/executions", handlers.ListWorkflowExecutions)

	app.Get("/executions/:id", handlers.GetExecution)

	app.Post("/schedules", handlers.CreateSchedule)
	app.Get("/schedules/:id", handlers.GetSchedule)
	app.Post("/schedules/:id/cancel", handlers.CancelSchedule)

	return app
}
