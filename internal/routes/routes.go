package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/marminbh/discourse-autoreply/internal/handlers"
)

// SetupRoutes configures all application routes with dependencies
func SetupRoutes(
	app *fiber.App,
	healthHandler *handlers.HealthHandler,
	webhookHandler *handlers.WebhookHandler,
	cannedHandler *handlers.CannedResponseHandler,
) {
	app.Get("/", handlers.Status)

	// Health check endpoint
	app.Get("/health", healthHandler.HealthCheck)

	// Discourse webhooks
	webhooks := app.Group("/webhooks")
	{
		webhooks.Post("/accepted_answer", webhookHandler.AcceptedAnswer)
	}

	// Diagnostics
	app.Get("/_/canned_response", cannedHandler.CannedResponse)
}
