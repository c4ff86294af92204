package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artivo/restyle-api/internal/api/middleware"
	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/events"
	"github.com/artivo/restyle-api/internal/pipeline"
	"github.com/artivo/restyle-api/internal/platform/memory"
	"github.com/artivo/restyle-api/internal/queue"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testBlobStore satisfies pipeline.BlobStore with a fixed source asset.
type testBlobStore struct{}

func (testBlobStore) Upload(context.Context, string, pipeline.Image) error { return nil }

func (testBlobStore) Download(_ context.Context, ref string) (pipeline.Image, error) {
	if ref != "assets/source.png" {
		return pipeline.Image{}, fmt.Errorf("%w: %s", pipeline.ErrAssetNotFound, ref)
	}
	return pipeline.Image{Data: []byte("source"), MIMEType: "image/png"}, nil
}

type testTransformer struct{}

func (testTransformer) Transform(context.Context, pipeline.TransformRequest) (*pipeline.TransformOutput, error) {
	return &pipeline.TransformOutput{
		Result: pipeline.Image{Data: []byte("styled"), MIMEType: "image/png"},
	}, nil
}

type testCatalog struct{}

func (testCatalog) GetStyle(_ context.Context, ref string) (*pipeline.Style, error) {
	return &pipeline.Style{Ref: ref, Name: ref, Prompt: "p"}, nil
}

type testUsage struct{}

func (testUsage) IncrementUsage(context.Context, uuid.UUID) error { return nil }

// apiHarness wires handlers onto a chi router over in-memory stores.
type apiHarness struct {
	router  chi.Router
	records *memory.TransformationStore
	subs    *memory.WebhookSubscriberStore
	jobs    *queue.JobQueue
	bus     *events.Bus
	ownerID uuid.UUID
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	qcfg := queue.DefaultConfig()
	qcfg.DequeueRate = 100
	qcfg.DequeueWindow = time.Second

	h := &apiHarness{
		records: memory.NewTransformationStore(),
		subs:    memory.NewWebhookSubscriberStore(),
		jobs:    queue.New(qcfg, setupTestLogger()),
		bus:     events.NewBus(events.DefaultBusConfig(), setupTestLogger()),
		ownerID: uuid.New(),
	}
	t.Cleanup(h.jobs.Close)
	t.Cleanup(h.bus.Close)

	orchestrator := pipeline.NewOrchestrator(
		h.records, h.jobs, h.bus, testBlobStore{}, testTransformer{},
		testCatalog{}, testUsage{}, time.Second, setupTestLogger(),
	)

	transformations := NewTransformationHandler(orchestrator, h.records)
	webhooks := NewWebhookHandler(h.subs)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.OwnerMiddleware)
		r.Post("/transformations", transformations.SubmitTransformation)
		r.Get("/transformations/{id}", transformations.GetTransformation)
		r.Post("/transformations/{id}/cancel", transformations.CancelTransformation)
		r.Post("/webhooks", webhooks.RegisterWebhook)
		r.Delete("/webhooks/{id}", webhooks.UnregisterWebhook)
	})
	h.router = r
	return h
}

// do runs a request through the router as the harness owner.
func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.OwnerIDHeader, h.ownerID.String())

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func validSubmitBody() map[string]any {
	return map[string]any{
		"sourceAssetRef": "assets/source.png",
		"styleRef":       "styles/watercolor",
		"quality":        "high",
		"priority":       "normal",
	}
}

func TestSubmitTransformationAccepted(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/api/transformations", validSubmitBody())
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp TransformationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, h.ownerID.String(), resp.OwnerID)
	assert.Equal(t, "high", resp.Quality)
	assert.Zero(t, resp.Progress)

	id, err := uuid.Parse(resp.ID)
	require.NoError(t, err)
	assert.True(t, h.jobs.InFlight(id))
}

func TestSubmitTransformationDefaultsQualityAndPriority(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/api/transformations", map[string]any{
		"sourceAssetRef": "assets/source.png",
		"styleRef":       "styles/watercolor",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp TransformationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "standard", resp.Quality)
	assert.Equal(t, "normal", resp.Priority)
}

func TestSubmitTransformationValidation(t *testing.T) {
	h := newAPIHarness(t)

	cases := []map[string]any{
		{"styleRef": "styles/watercolor"},
		{"sourceAssetRef": "assets/source.png"},
		{"sourceAssetRef": "a", "styleRef": "s", "quality": "bogus"},
		{"sourceAssetRef": "a", "styleRef": "s", "priority": "urgent"},
		{"sourceAssetRef": "a", "styleRef": "s", "id": "not-a-uuid"},
	}
	for i, body := range cases {
		rec := h.do(t, http.MethodPost, "/api/transformations", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "case %d", i)
	}
}

func TestSubmitTransformationIdempotentWithID(t *testing.T) {
	h := newAPIHarness(t)

	body := validSubmitBody()
	body["id"] = uuid.New().String()

	first := h.do(t, http.MethodPost, "/api/transformations", body)
	require.Equal(t, http.StatusAccepted, first.Code)
	second := h.do(t, http.MethodPost, "/api/transformations", body)
	require.Equal(t, http.StatusAccepted, second.Code)

	var a, b TransformationResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ID, b.ID)
}

func TestSubmitTransformationIDHeldByAnotherOwner(t *testing.T) {
	h := newAPIHarness(t)

	body := validSubmitBody()
	body["id"] = uuid.New().String()

	rec := h.do(t, http.MethodPost, "/api/transformations", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// A different owner replaying the ID gets a conflict, not the record.
	h.ownerID = uuid.New()
	rec = h.do(t, http.MethodPost, "/api/transformations", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotContains(t, rec.Body.String(), "assets/source.png")
}

func TestSubmitTransformationRequiresOwner(t *testing.T) {
	h := newAPIHarness(t)

	encoded, err := json.Marshal(validSubmitBody())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/transformations", bytes.NewReader(encoded))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetTransformation(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/api/transformations", validSubmitBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created TransformationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = h.do(t, http.MethodGet, "/api/transformations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got TransformationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "queued", got.Status)
}

func TestGetTransformationNotFoundCases(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodGet, "/api/transformations/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/transformations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A record owned by someone else is indistinguishable from a missing one.
	other, err := domain.NewTransformation(uuid.New(), "assets/a.png", "styles/s",
		domain.QualityStandard, domain.PriorityNormal)
	require.NoError(t, err)
	require.NoError(t, h.records.Create(context.Background(), other))

	rec = h.do(t, http.MethodGet, "/api/transformations/"+other.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelTransformation(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/api/transformations", validSubmitBody())
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created TransformationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = h.do(t, http.MethodPost, "/api/transformations/"+created.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cancelled TransformationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)

	// A second cancel hits the terminal record.
	rec = h.do(t, http.MethodPost, "/api/transformations/"+created.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
