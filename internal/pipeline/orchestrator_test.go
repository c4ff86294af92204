package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/events"
	"github.com/artivo/restyle-api/internal/platform/memory"
	"github.com/artivo/restyle-api/internal/queue"
	"github.com/artivo/restyle-api/internal/store"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// fakeBlobStore is an in-memory BlobStore.
type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string]Image
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string]Image)}
}

func (f *fakeBlobStore) Upload(_ context.Context, ref string, img Image) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[ref] = img
	return nil
}

func (f *fakeBlobStore) Download(_ context.Context, ref string) (Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.blobs[ref]
	if !ok {
		return Image{}, fmt.Errorf("%w: %s", ErrAssetNotFound, ref)
	}
	return img, nil
}

// fakeTransformer fails its first failures calls, then succeeds. An
// optional hook runs before each call.
type fakeTransformer struct {
	mu       sync.Mutex
	calls    int
	failures int
	hook     func()
}

func (f *fakeTransformer) Transform(ctx context.Context, req TransformRequest) (*TransformOutput, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if call <= f.failures {
		return nil, fmt.Errorf("model overloaded on call %d", call)
	}
	return &TransformOutput{
		Result:   Image{Data: []byte("styled:" + string(req.Source.Data)), MIMEType: "image/png"},
		Analysis: "applied " + req.Style.Name,
	}, nil
}

func (f *fakeTransformer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeCatalog knows a fixed set of styles.
type fakeCatalog struct {
	styles map[string]*Style
}

func newFakeCatalog(refs ...string) *fakeCatalog {
	c := &fakeCatalog{styles: make(map[string]*Style)}
	for _, ref := range refs {
		c.styles[ref] = &Style{Ref: ref, Name: ref, Prompt: "render as " + ref}
	}
	return c
}

func (f *fakeCatalog) GetStyle(_ context.Context, ref string) (*Style, error) {
	style, ok := f.styles[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStyleNotFound, ref)
	}
	return style, nil
}

// fakeUsage counts increments per owner.
type fakeUsage struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{counts: make(map[uuid.UUID]int)}
}

func (f *fakeUsage) IncrementUsage(_ context.Context, ownerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[ownerID]++
	return nil
}

func (f *fakeUsage) count(ownerID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[ownerID]
}

// progressRecorder wraps a TransformationStore and records accepted
// progress writes in order.
type progressRecorder struct {
	store.TransformationStore
	mu    sync.Mutex
	marks []progressMark
}

type progressMark struct {
	Progress float64
	Step     domain.PipelineStep
}

func (r *progressRecorder) UpdateProgress(
	ctx context.Context,
	id uuid.UUID,
	progress float64,
	step domain.PipelineStep,
) error {
	err := r.TransformationStore.UpdateProgress(ctx, id, progress, step)
	if err == nil {
		r.mu.Lock()
		r.marks = append(r.marks, progressMark{Progress: progress, Step: step})
		r.mu.Unlock()
	}
	return err
}

// harness bundles an orchestrator with its collaborators for tests.
type harness struct {
	orchestrator *Orchestrator
	records      *memory.TransformationStore
	jobs         *queue.JobQueue
	bus          *events.Bus
	blobs        *fakeBlobStore
	transformer  *fakeTransformer
	usage        *fakeUsage
	ownerID      uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	qcfg := queue.DefaultConfig()
	qcfg.RetryBackoff = 10 * time.Millisecond
	qcfg.DequeueRate = 100
	qcfg.DequeueWindow = time.Second

	h := &harness{
		records:     memory.NewTransformationStore(),
		jobs:        queue.New(qcfg, setupTestLogger()),
		bus:         events.NewBus(events.DefaultBusConfig(), setupTestLogger()),
		blobs:       newFakeBlobStore(),
		transformer: &fakeTransformer{},
		usage:       newFakeUsage(),
		ownerID:     uuid.New(),
	}
	t.Cleanup(h.jobs.Close)
	t.Cleanup(h.bus.Close)

	require.NoError(t, h.blobs.Upload(context.Background(), "assets/source.png",
		Image{Data: []byte("source"), MIMEType: "image/png"}))

	h.orchestrator = NewOrchestrator(
		h.records, h.jobs, h.bus, h.blobs, h.transformer,
		newFakeCatalog("styles/watercolor"), h.usage,
		time.Second, setupTestLogger(),
	)
	return h
}

func (h *harness) submit(t *testing.T) *domain.Transformation {
	t.Helper()
	record, err := h.orchestrator.Submit(context.Background(), SubmitRequest{
		OwnerID:        h.ownerID,
		SourceAssetRef: "assets/source.png",
		StyleRef:       "styles/watercolor",
		Quality:        domain.QualityStandard,
		Priority:       domain.PriorityNormal,
	})
	require.NoError(t, err)
	return record
}

func (h *harness) dequeue(t *testing.T) *queue.Entry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	entry, err := h.jobs.Dequeue(ctx)
	require.NoError(t, err)
	return entry
}

func TestSubmitCreatesQueuedRecordAndJob(t *testing.T) {
	h := newHarness(t)

	record := h.submit(t)
	assert.Equal(t, domain.StatusQueued, record.Status)
	assert.Zero(t, record.Progress)
	assert.True(t, h.jobs.InFlight(record.ID))

	stored, err := h.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, stored.ID)
}

func TestSubmitWithExplicitIDIsIdempotent(t *testing.T) {
	h := newHarness(t)

	req := SubmitRequest{
		ID:             uuid.New(),
		OwnerID:        h.ownerID,
		SourceAssetRef: "assets/source.png",
		StyleRef:       "styles/watercolor",
		Quality:        domain.QualityStandard,
		Priority:       domain.PriorityNormal,
	}

	first, err := h.orchestrator.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.ID, first.ID)

	second, err := h.orchestrator.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Only one job exists for the pair of submissions.
	h.dequeue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = h.jobs.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitRejectsIDHeldByAnotherOwner(t *testing.T) {
	h := newHarness(t)

	req := SubmitRequest{
		ID:             uuid.New(),
		OwnerID:        h.ownerID,
		SourceAssetRef: "assets/source.png",
		StyleRef:       "styles/watercolor",
		Quality:        domain.QualityStandard,
		Priority:       domain.PriorityNormal,
	}
	first, err := h.orchestrator.Submit(context.Background(), req)
	require.NoError(t, err)

	// Another owner reusing the ID must not receive the existing record.
	other := req
	other.OwnerID = uuid.New()
	_, err = h.orchestrator.Submit(context.Background(), other)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	stored, err := h.records.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, h.ownerID, stored.OwnerID)
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator.Submit(context.Background(), SubmitRequest{
		OwnerID:  h.ownerID,
		StyleRef: "styles/watercolor",
		Quality:  domain.QualityStandard,
		Priority: domain.PriorityNormal,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, domain.ErrTransformationSourceEmpty)
}

func TestProcessHappyPath(t *testing.T) {
	h := newHarness(t)
	sub := h.bus.Subscribe(events.EventTransformationCompleted)
	defer h.bus.Unsubscribe(sub)

	record := h.submit(t)
	entry := h.dequeue(t)

	require.NoError(t, h.orchestrator.Process(context.Background(), entry))

	final, err := h.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.Equal(t, 1.0, final.Progress)
	assert.Equal(t, 1, final.Attempts)
	require.NotNil(t, final.Result)
	assert.Equal(t, "outputs/"+record.ID.String()+".png", final.Result.OutputAssetRef)
	assert.NotNil(t, final.CompletedAt)
	assert.Nil(t, final.Error)

	// The styled output landed in the blob store.
	output, err := h.blobs.Download(context.Background(), final.Result.OutputAssetRef)
	require.NoError(t, err)
	assert.Equal(t, []byte("styled:source"), output.Data)

	assert.Equal(t, 1, h.usage.count(h.ownerID))

	select {
	case event := <-sub.Events():
		assert.Equal(t, events.EventTransformationCompleted, event.Name)
		assert.Equal(t, h.ownerID, event.OwnerID)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for completed event")
	}
}

func TestProcessWalksProgressCheckpointsInOrder(t *testing.T) {
	h := newHarness(t)
	recorder := &progressRecorder{TransformationStore: h.records}
	h.orchestrator.transformations = recorder

	record := h.submit(t)
	entry := h.dequeue(t)
	require.NoError(t, h.orchestrator.Process(context.Background(), entry))

	assert.Equal(t, []progressMark{
		{Progress: 0.1, Step: domain.StepUploading},
		{Progress: 0.3, Step: domain.StepAnalyzing},
		{Progress: 0.5, Step: domain.StepTransforming},
		{Progress: 0.7, Step: domain.StepFinalizing},
	}, recorder.marks)

	final, err := h.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.Equal(t, 1.0, final.Progress)
}

func TestProcessUnknownStyleIsNotRetryable(t *testing.T) {
	h := newHarness(t)
	record := h.submit(t)
	entry := h.dequeue(t)
	entry.Payload.StyleRef = "styles/unknown"

	err := h.orchestrator.Process(context.Background(), entry)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.False(t, IsRetryable(err))

	// The record was never claimed.
	stored, err := h.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, stored.Status)
}

func TestProcessMissingSourceAssetIsNotRetryable(t *testing.T) {
	h := newHarness(t)
	h.submit(t)
	entry := h.dequeue(t)
	entry.Payload.SourceAssetRef = "assets/missing.png"

	err := h.orchestrator.Process(context.Background(), entry)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestProcessTransientTransformFailureIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.transformer.failures = 1
	h.submit(t)
	entry := h.dequeue(t)

	err := h.orchestrator.Process(context.Background(), entry)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransformFailed)
	assert.True(t, IsRetryable(err))
}

func TestProcessSkipsRecordCancelledWhileQueued(t *testing.T) {
	h := newHarness(t)
	record := h.submit(t)
	entry := h.dequeue(t)

	_, err := h.orchestrator.Cancel(context.Background(), record.ID)
	require.NoError(t, err)

	// The settled attempt reports no error so the worker acks.
	require.NoError(t, h.orchestrator.Process(context.Background(), entry))

	stored, err := h.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
}

func TestProcessCompletionLosesRaceWithCancel(t *testing.T) {
	h := newHarness(t)
	record := h.submit(t)
	entry := h.dequeue(t)

	// Cancel lands while the transform call is running.
	h.transformer.hook = func() {
		_, err := h.orchestrator.Cancel(context.Background(), record.ID)
		require.NoError(t, err)
	}

	require.NoError(t, h.orchestrator.Process(context.Background(), entry))

	final, err := h.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, final.Status)
	assert.Nil(t, final.Result)
	assert.Zero(t, h.usage.count(h.ownerID))
}

func TestCancelQueuedEmitsEvent(t *testing.T) {
	h := newHarness(t)
	sub := h.bus.Subscribe(events.EventTransformationCancelled)
	defer h.bus.Unsubscribe(sub)

	record := h.submit(t)
	cancelled, err := h.orchestrator.Cancel(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)

	select {
	case event := <-sub.Events():
		var payload events.TransformationEventPayload
		require.NoError(t, event.UnmarshalPayload(&payload))
		assert.Equal(t, record.ID, payload.TransformationID)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for cancelled event")
	}
}

func TestCancelTerminalRecordRejected(t *testing.T) {
	h := newHarness(t)
	h.submit(t)
	entry := h.dequeue(t)
	require.NoError(t, h.orchestrator.Process(context.Background(), entry))

	_, err := h.orchestrator.Cancel(context.Background(), entry.JobID)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	_, err = h.orchestrator.Cancel(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTransformationNotFound)
}

func TestMarkRetryingReturnsRecordToQueued(t *testing.T) {
	h := newHarness(t)
	sub := h.bus.Subscribe(events.EventTransformationRetrying)
	defer h.bus.Unsubscribe(sub)

	h.transformer.failures = 1
	record := h.submit(t)
	entry := h.dequeue(t)

	cause := h.orchestrator.Process(context.Background(), entry)
	require.Error(t, cause)
	h.orchestrator.MarkRetrying(context.Background(), entry, cause)

	stored, err := h.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, stored.Status)
	assert.Zero(t, stored.Progress)
	require.NotNil(t, stored.Error)
	assert.True(t, stored.Error.Retryable)

	select {
	case event := <-sub.Events():
		assert.Equal(t, events.EventTransformationRetrying, event.Name)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for retrying event")
	}
}

func TestMarkFailedTerminallyFailsRecord(t *testing.T) {
	h := newHarness(t)
	sub := h.bus.Subscribe(events.EventTransformationFailed)
	defer h.bus.Unsubscribe(sub)

	h.transformer.failures = 1
	record := h.submit(t)
	entry := h.dequeue(t)

	cause := h.orchestrator.Process(context.Background(), entry)
	require.Error(t, cause)
	h.orchestrator.MarkFailed(context.Background(), entry, cause)

	stored, err := h.records.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.False(t, stored.Error.Retryable)
	assert.Equal(t, "transform_failed", stored.Error.Code)
	assert.NotNil(t, stored.CompletedAt)

	select {
	case event := <-sub.Events():
		var payload events.TransformationEventPayload
		require.NoError(t, event.UnmarshalPayload(&payload))
		assert.Equal(t, "transform_failed", payload.ErrorCode)
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for failed event")
	}
}

func TestTransformTimeoutIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.orchestrator.transformTimeout = 10 * time.Millisecond
	h.transformer.hook = func() { time.Sleep(50 * time.Millisecond) }

	h.submit(t)
	entry := h.dequeue(t)

	err := h.orchestrator.Process(context.Background(), entry)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsRetryable(err))
}
