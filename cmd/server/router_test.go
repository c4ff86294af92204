package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artivo/restyle-api/internal/api/middleware"
	"github.com/artivo/restyle-api/internal/config"
	"github.com/artivo/restyle-api/internal/events"
	"github.com/artivo/restyle-api/internal/pipeline"
	"github.com/artivo/restyle-api/internal/platform/memory"
	"github.com/artivo/restyle-api/internal/platform/styles"
	"github.com/artivo/restyle-api/internal/queue"
)

type noopBlobStore struct{}

func (noopBlobStore) Upload(context.Context, string, pipeline.Image) error { return nil }

func (noopBlobStore) Download(context.Context, string) (pipeline.Image, error) {
	return pipeline.Image{Data: []byte("source"), MIMEType: "image/png"}, nil
}

type noopTransformer struct{}

func (noopTransformer) Transform(context.Context, pipeline.TransformRequest) (*pipeline.TransformOutput, error) {
	return &pipeline.TransformOutput{
		Result: pipeline.Image{Data: []byte("styled"), MIMEType: "image/png"},
	}, nil
}

// testApplication builds an application over in-memory stores, bypassing
// newApplication so no external transform client is required.
func testApplication(t *testing.T) *application {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "info"},
		Events: config.EventsConfig{HeartbeatSeconds: 30, SubscriberBuffer: 8},
	}

	jobs := queue.New(queue.DefaultConfig(), logger)
	t.Cleanup(jobs.Close)
	bus := events.NewBus(events.DefaultBusConfig(), logger)
	t.Cleanup(bus.Close)

	app := &application{
		config:              cfg,
		logger:              logger,
		transformationStore: memory.NewTransformationStore(),
		subscriberStore:     memory.NewWebhookSubscriberStore(),
		usageRecorder:       memory.NewUsageRecorder(),
		blobStore:           noopBlobStore{},
		styleCatalog:        styles.NewCatalog(),
		transformer:         noopTransformer{},
		jobs:                jobs,
		bus:                 bus,
	}
	app.orchestrator = pipeline.NewOrchestrator(
		app.transformationStore, app.jobs, app.bus, app.blobStore,
		app.transformer, app.styleCatalog, app.usageRecorder,
		time.Second, logger,
	)
	return app
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := testApplication(t).setupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRouterStyleCatalogIsPublic(t *testing.T) {
	router := testApplication(t).setupRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/styles", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "watercolor")
}

func TestRouterRequiresOwnerHeader(t *testing.T) {
	router := testApplication(t).setupRouter()

	body := []byte(`{"sourceAssetRef":"assets/a.png","styleRef":"watercolor"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/transformations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterSubmitTransformation(t *testing.T) {
	router := testApplication(t).setupRouter()

	body := []byte(`{"sourceAssetRef":"assets/a.png","styleRef":"watercolor"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/transformations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.OwnerIDHeader, uuid.New().String())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
}
