package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artivo/restyle-api/internal/api"
	apiMiddleware "github.com/artivo/restyle-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware. It accepts the application dependencies to create handlers
// and register routes. Returns the configured router.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	// Create API handlers using the application's services
	transformationHandler := api.NewTransformationHandler(app.orchestrator, app.transformationStore)
	webhookHandler := api.NewWebhookHandler(app.subscriberStore)
	eventsHandler := api.NewEventsHandler(
		app.bus,
		time.Duration(app.config.Events.HeartbeatSeconds)*time.Second,
	)
	stylesHandler := api.NewStylesHandler(app.styleCatalog)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		// The style catalog is public
		r.Get("/styles", stylesHandler.ListStyles)

		// Owner-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.OwnerMiddleware)

			// Transformation endpoints
			r.Post("/transformations", transformationHandler.SubmitTransformation)
			r.Get("/transformations/{id}", transformationHandler.GetTransformation)
			r.Post("/transformations/{id}/cancel", transformationHandler.CancelTransformation)

			// Webhook subscription endpoints
			r.Post("/webhooks", webhookHandler.RegisterWebhook)
			r.Delete("/webhooks/{id}", webhookHandler.UnregisterWebhook)

			// Live event stream
			r.Get("/events", eventsHandler.StreamEvents)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
