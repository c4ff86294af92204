// Package worker runs the fixed-size pool that drains the job queue and
// drives the pipeline orchestrator.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/artivo/restyle-api/internal/pipeline"
	"github.com/artivo/restyle-api/internal/queue"
)

// Processor is the pipeline surface the pool drives. Satisfied by
// *pipeline.Orchestrator.
type Processor interface {
	// Process runs one attempt; a nil return means the attempt settled.
	Process(ctx context.Context, entry *queue.Entry) error

	// MarkRetrying returns the record to queued ahead of the next attempt.
	MarkRetrying(ctx context.Context, entry *queue.Entry, cause error)

	// MarkFailed terminally fails the record.
	MarkFailed(ctx context.Context, entry *queue.Entry, cause error)
}

// Pool is a fixed-size worker pool. Each worker loops dequeue, process,
// then ack or nack; the queue's dedup guarantees at most one worker holds
// a given job at a time.
type Pool struct {
	jobs      *queue.JobQueue
	processor Processor
	size      int
	logger    *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a pool of the given size. A non-positive size falls back
// to 5 workers.
func New(jobs *queue.JobQueue, processor Processor, size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 5
	}
	return &Pool{
		jobs:      jobs,
		processor: processor,
		size:      size,
		logger:    logger.With("component", "worker_pool"),
	}
}

// Start launches the workers. They run until Stop is called, the context
// is cancelled, or the queue is closed.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.logger.Info("starting worker pool", "size", p.size)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop signals the workers and waits for in-flight attempts to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// run is one worker's loop.
func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With("worker", id)
	log.Debug("worker started")

	for {
		entry, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) || errors.Is(err, context.Canceled) {
				log.Debug("worker exiting", "reason", err)
				return
			}
			log.Error("dequeue failed", "error", err)
			continue
		}

		p.handle(ctx, log, entry)
	}
}

// handle runs one attempt and settles the job with the queue.
func (p *Pool) handle(ctx context.Context, log *slog.Logger, entry *queue.Entry) {
	err := p.processor.Process(ctx, entry)
	if err == nil {
		if ackErr := p.jobs.Ack(entry.JobID); ackErr != nil {
			log.Error("failed to ack job", "job_id", entry.JobID, "error", ackErr)
		}
		return
	}

	retryable := pipeline.IsRetryable(err)
	// MarkRetrying runs before the retry timer is armed so the next attempt
	// cannot claim the record while it is still marked processing.
	requeued, nackErr := p.jobs.Nack(entry.JobID, retryable, func() {
		p.processor.MarkRetrying(ctx, entry, err)
	})
	if nackErr != nil {
		log.Error("failed to nack job", "job_id", entry.JobID, "error", nackErr)
		return
	}
	if requeued {
		return
	}
	p.processor.MarkFailed(ctx, entry, err)
}
