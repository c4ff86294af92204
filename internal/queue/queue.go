// Package queue implements the durable-ish job queue feeding the worker
// pool: at-least-once delivery keyed by transformation ID, with priority,
// dedup, exponential retry backoff, retention bookkeeping, and a global
// dequeue rate limit.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/artivo/restyle-api/internal/domain"
)

// Common errors returned by the JobQueue
var (
	ErrQueueClosed = errors.New("job queue is closed")

	ErrQueueFull = errors.New("job queue is full")

	// ErrAlreadyQueued is returned when an Enqueue targets a job ID that is
	// already queued, scheduled for retry, or in flight. A transformation
	// must never have two simultaneous executions.
	ErrAlreadyQueued = errors.New("job is already queued or in flight")

	// ErrUnknownJob is returned when an Ack or Nack targets a job ID the
	// queue is not tracking as in flight.
	ErrUnknownJob = errors.New("job is not in flight")
)

// Payload is the minimal JSON-serializable job payload: references into
// the collaborators, never bytes.
type Payload struct {
	JobID          uuid.UUID       `json:"jobId"`
	OwnerID        uuid.UUID       `json:"ownerId"`
	SourceAssetRef string          `json:"sourceAssetRef"`
	StyleRef       string          `json:"styleRef,omitempty"`
	CustomStyle    json.RawMessage `json:"customStyle,omitempty"`
	Priority       domain.Priority `json:"priority"`
}

// Entry is one unit of queued work.
type Entry struct {
	JobID         uuid.UUID
	Payload       Payload
	Priority      domain.Priority
	Attempts      int
	NextAttemptAt time.Time
	EnqueuedAt    time.Time
}

// jobState tracks where a deduplicated job currently lives.
type jobState int

const (
	stateQueued jobState = iota
	stateScheduled
	stateInFlight
)

// retained is a queue-side bookkeeping record for completed/failed entries,
// kept for operator diagnosis independent of the record store.
type retained struct {
	JobID      uuid.UUID
	Attempts   int
	FinishedAt time.Time
}

// Config holds configuration for the job queue.
type Config struct {
	// Size determines the buffer size of each priority lane.
	Size int

	// MaxAttempts bounds how many executions a job may start before the
	// queue gives up on it.
	MaxAttempts int

	// RetryBackoff is the base delay for exponential backoff between
	// attempts (base, 2*base, 4*base, ...).
	RetryBackoff time.Duration

	// DequeueRate and DequeueWindow cap total dequeue throughput at
	// DequeueRate jobs per rolling DequeueWindow, independent of worker
	// concurrency.
	DequeueRate   int
	DequeueWindow time.Duration

	// CompletedRetention and FailedRetention bound the queue-side
	// bookkeeping of finished entries.
	CompletedRetention int
	FailedRetention    int
}

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() Config {
	return Config{
		Size:               100,
		MaxAttempts:        3,
		RetryBackoff:       time.Second,
		DequeueRate:        10,
		DequeueWindow:      10 * time.Second,
		CompletedRetention: 100,
		FailedRetention:    500,
	}
}

// JobQueue is an in-process, at-least-once work queue keyed by job ID.
// At most one live entry exists per job ID across the queued, scheduled,
// and in-flight states.
type JobQueue struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	high   chan *Entry
	normal chan *Entry

	mu        sync.Mutex
	states    map[uuid.UUID]jobState
	entries   map[uuid.UUID]*Entry
	timers    map[uuid.UUID]*time.Timer
	completed []retained
	failed    []retained
	closed    bool

	done chan struct{}
}

// New creates a job queue with the given configuration.
func New(cfg Config, logger *slog.Logger) *JobQueue {
	if cfg.Size <= 0 {
		cfg.Size = DefaultConfig().Size
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	if cfg.DequeueRate <= 0 {
		cfg.DequeueRate = DefaultConfig().DequeueRate
	}
	if cfg.DequeueWindow <= 0 {
		cfg.DequeueWindow = DefaultConfig().DequeueWindow
	}
	if cfg.CompletedRetention <= 0 {
		cfg.CompletedRetention = DefaultConfig().CompletedRetention
	}
	if cfg.FailedRetention <= 0 {
		cfg.FailedRetention = DefaultConfig().FailedRetention
	}

	// DequeueRate tokens per DequeueWindow, with the full window available
	// as burst so idle periods don't starve a waking worker pool.
	interval := cfg.DequeueWindow / time.Duration(cfg.DequeueRate)
	limiter := rate.NewLimiter(rate.Every(interval), cfg.DequeueRate)

	return &JobQueue{
		cfg:     cfg,
		logger:  logger.With("component", "job_queue"),
		limiter: limiter,
		high:    make(chan *Entry, cfg.Size),
		normal:  make(chan *Entry, cfg.Size),
		states:  make(map[uuid.UUID]jobState),
		entries: make(map[uuid.UUID]*Entry),
		timers:  make(map[uuid.UUID]*time.Timer),
		done:    make(chan struct{}),
	}
}

// Enqueue adds a job to the queue. Enqueue for a job ID that is already
// queued, scheduled, or in flight returns ErrAlreadyQueued.
func (q *JobQueue) Enqueue(payload Payload) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if _, exists := q.states[payload.JobID]; exists {
		return ErrAlreadyQueued
	}

	entry := &Entry{
		JobID:      payload.JobID,
		Payload:    payload,
		Priority:   payload.Priority,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := q.pushLocked(entry); err != nil {
		return err
	}

	q.states[payload.JobID] = stateQueued
	q.entries[payload.JobID] = entry
	q.logger.Debug("job enqueued",
		"job_id", payload.JobID,
		"priority", entry.Priority,
		"queue_len", len(q.high)+len(q.normal))
	return nil
}

// pushLocked places an entry on its priority lane. Callers hold q.mu.
func (q *JobQueue) pushLocked(entry *Entry) error {
	lane := q.normal
	if entry.Priority == domain.PriorityHigh {
		lane = q.high
	}

	select {
	case lane <- entry:
		return nil
	default:
		return fmt.Errorf("%w: lane capacity %d reached", ErrQueueFull, cap(lane))
	}
}

// Dequeue blocks until a job is available, the context is cancelled, or
// the queue is closed. It applies the global rate limit before handing out
// work and marks the returned entry in flight, counting the new attempt.
func (q *JobQueue) Dequeue(ctx context.Context) (*Entry, error) {
	if err := q.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	for {
		// Drain high-priority work first.
		select {
		case entry := <-q.high:
			return q.claim(entry)
		default:
		}

		select {
		case entry := <-q.high:
			return q.claim(entry)
		case entry := <-q.normal:
			return q.claim(entry)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, ErrQueueClosed
		}
	}
}

// claim transitions a dequeued entry to the in-flight state.
func (q *JobQueue) claim(entry *Entry) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	entry.Attempts++
	q.states[entry.JobID] = stateInFlight

	cp := *entry
	return &cp, nil
}

// Ack marks an in-flight job as successfully finished and releases its
// dedup slot.
func (q *JobQueue) Ack(jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, err := q.takeInFlightLocked(jobID)
	if err != nil {
		return err
	}

	q.completed = appendRetained(q.completed, retained{
		JobID:      jobID,
		Attempts:   entry.Attempts,
		FinishedAt: time.Now().UTC(),
	}, q.cfg.CompletedRetention)

	q.logger.Debug("job acked", "job_id", jobID, "attempts", entry.Attempts)
	return nil
}

// Nack reports a failed execution. When retryable is true and attempts
// remain, the job is rescheduled with exponential backoff and Nack returns
// true. Otherwise the job is dropped from the queue, recorded in the
// failed retention ring, and Nack returns false; the caller is then
// responsible for terminally failing the transformation record.
//
// beforeRetry (may be nil) runs on the requeue path after the retry
// decision but before the retry timer is armed, so the caller can restore
// record state the next attempt depends on without racing it.
func (q *JobQueue) Nack(jobID uuid.UUID, retryable bool, beforeRetry func()) (bool, error) {
	q.mu.Lock()

	entry, err := q.takeInFlightLocked(jobID)
	if err != nil {
		q.mu.Unlock()
		return false, err
	}

	if q.closed || !retryable || entry.Attempts >= q.cfg.MaxAttempts {
		q.failed = appendRetained(q.failed, retained{
			JobID:      jobID,
			Attempts:   entry.Attempts,
			FinishedAt: time.Now().UTC(),
		}, q.cfg.FailedRetention)

		q.logger.Info("job dropped from queue",
			"job_id", jobID,
			"attempts", entry.Attempts,
			"retryable", retryable)
		q.mu.Unlock()
		return false, nil
	}

	// Exponential backoff: base, 2*base, 4*base, ...
	delay := q.cfg.RetryBackoff << (entry.Attempts - 1)
	entry.NextAttemptAt = time.Now().UTC().Add(delay)

	q.states[jobID] = stateScheduled
	q.entries[jobID] = entry
	q.mu.Unlock()

	// The callback must not hold q.mu: it may perform store writes.
	if beforeRetry != nil {
		beforeRetry()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		// Close raced the callback; the scheduled entry is dropped the same
		// way Close drops pending timers.
		delete(q.states, jobID)
		delete(q.entries, jobID)
		return true, nil
	}
	q.timers[jobID] = time.AfterFunc(delay, func() { q.requeue(jobID) })

	q.logger.Info("job scheduled for retry",
		"job_id", jobID,
		"attempts", entry.Attempts,
		"delay", delay)
	return true, nil
}

// takeInFlightLocked removes an in-flight job's tracking state. Callers
// hold q.mu.
func (q *JobQueue) takeInFlightLocked(jobID uuid.UUID) (*Entry, error) {
	state, ok := q.states[jobID]
	if !ok || state != stateInFlight {
		return nil, ErrUnknownJob
	}

	entry := q.entries[jobID]
	delete(q.states, jobID)
	delete(q.entries, jobID)
	return entry, nil
}

// requeue moves a backoff-scheduled job back onto its priority lane.
func (q *JobQueue) requeue(jobID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.timers, jobID)

	if q.closed {
		return
	}

	state, ok := q.states[jobID]
	if !ok || state != stateScheduled {
		return
	}

	entry := q.entries[jobID]
	if err := q.pushLocked(entry); err != nil {
		// The lane is full; drop the job and record it as failed rather
		// than retrying the push and risking an unbounded timer chain.
		delete(q.states, jobID)
		delete(q.entries, jobID)
		q.failed = appendRetained(q.failed, retained{
			JobID:      jobID,
			Attempts:   entry.Attempts,
			FinishedAt: time.Now().UTC(),
		}, q.cfg.FailedRetention)
		q.logger.Error("failed to requeue job after backoff, lane full", "job_id", jobID)
		return
	}

	q.states[jobID] = stateQueued
}

// InFlight reports whether the given job is currently queued, scheduled,
// or executing.
func (q *JobQueue) InFlight(jobID uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.states[jobID]
	return ok
}

// FailedHistory returns a copy of the retained failed-entry records,
// newest last.
func (q *JobQueue) FailedHistory() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]uuid.UUID, len(q.failed))
	for i, r := range q.failed {
		out[i] = r.JobID
	}
	return out
}

// CompletedHistory returns a copy of the retained completed-entry records,
// newest last.
func (q *JobQueue) CompletedHistory() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]uuid.UUID, len(q.completed))
	for i, r := range q.completed {
		out[i] = r.JobID
	}
	return out
}

// Close stops the queue. Blocked Dequeue calls return ErrQueueClosed and
// pending retry timers are cancelled.
func (q *JobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true

	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}

	close(q.done)
	q.logger.Info("job queue closed")
}

// appendRetained appends a record and trims the slice to the retention
// bound, keeping the newest entries.
func appendRetained(records []retained, r retained, limit int) []retained {
	records = append(records, r)
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records
}
