package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the queue is at capacity.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned when enqueueing after Stop.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrDuplicateJob is returned when a queued job already has the dedupe key.
	ErrDuplicateJob = errors.New("duplicate job")
)

// Handler speaks one job. It must return promptly once ctx is cancelled.
type Handler func(ctx context.Context, job *NarrationJob) error

// Queue is a bounded FIFO drained by a single worker, so at most one
// narration is spoken at a time.
type Queue struct {
	mu            sync.Mutex
	jobs          []*NarrationJob
	capacity      int
	dedupeKeys    map[string]struct{}
	closed        bool
	idleTimeout   time.Duration
	handler       Handler
	onIdle        func()
	onCompleted   func(*NarrationJob)
	onShutdown    func()
	cancelCurrent context.CancelFunc
	logger        *slog.Logger

	wg        sync.WaitGroup
	stopCh    chan struct{}
	enqueueCh chan struct{}
}

// NewQueue creates a queue. An idleTimeout of zero disables the idle callback.
func NewQueue(capacity int, idleTimeout time.Duration, logger *slog.Logger) *Queue {
	return &Queue{
		jobs:        make([]*NarrationJob, 0, capacity),
		capacity:    capacity,
		dedupeKeys:  make(map[string]struct{}),
		idleTimeout: idleTimeout,
		logger:      logger,
		stopCh:      make(chan struct{}),
		enqueueCh:   make(chan struct{}, 1),
	}
}

// SetHandler sets the function the worker runs for each job.
func (q *Queue) SetHandler(fn Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = fn
}

// SetIdleCallback sets the function called once the queue has been empty
// for the idle timeout.
func (q *Queue) SetIdleCallback(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onIdle = fn
}

// SetJobCompletedCallback sets the function called after every job the
// worker picked up, whatever its outcome.
func (q *Queue) SetJobCompletedCallback(fn func(*NarrationJob)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onCompleted = fn
}

// SetShutdownCallback sets the function Stop calls after the worker exits.
func (q *Queue) SetShutdownCallback(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onShutdown = fn
}

// Enqueue adds a job. A job with Interrupt set first cancels the current
// job and drops everything queued ahead of it.
func (q *Queue) Enqueue(job *NarrationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if job.Interrupt {
		q.interruptLocked()
	}
	if len(q.jobs) >= q.capacity {
		return ErrQueueFull
	}
	if job.DedupeKey != "" {
		if _, ok := q.dedupeKeys[job.DedupeKey]; ok {
			return ErrDuplicateJob
		}
		q.dedupeKeys[job.DedupeKey] = struct{}{}
	}

	q.jobs = append(q.jobs, job)
	q.logger.Debug("job enqueued", "job_id", job.ID, "queue_depth", len(q.jobs))

	select {
	case q.enqueueCh <- struct{}{}:
	default:
	}
	return nil
}

// Interrupt cancels the current job and clears the queue.
func (q *Queue) Interrupt() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.interruptLocked()
}

func (q *Queue) interruptLocked() {
	if q.cancelCurrent != nil {
		q.cancelCurrent()
		q.cancelCurrent = nil
	}
	cleared := len(q.jobs)
	q.jobs = q.jobs[:0]
	clear(q.dedupeKeys)
	q.logger.Info("queue interrupted", "jobs_cleared", cleared)
}

// Len returns the number of waiting jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Start launches the worker.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
}

// Stop closes the queue, cancels the current job, waits for the worker and
// then runs the shutdown callback.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.cancelCurrent != nil {
		q.cancelCurrent()
	}
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()

	q.mu.Lock()
	onShutdown := q.onShutdown
	q.mu.Unlock()
	if onShutdown != nil {
		onShutdown()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	var idle *time.Timer
	var idleC <-chan time.Time
	stopIdle := func() {
		if idle != nil {
			idle.Stop()
		}
		idleC = nil
	}

	for {
		if job := q.dequeue(); job != nil {
			stopIdle()
			q.process(job)
			continue
		}

		if idleC == nil && q.idleTimeout > 0 {
			idle = time.NewTimer(q.idleTimeout)
			idleC = idle.C
		}

		select {
		case <-q.stopCh:
			stopIdle()
			return
		case <-q.enqueueCh:
		case <-idleC:
			// Left nil so the callback fires once per idle period.
			idleC = nil
			q.mu.Lock()
			onIdle := q.onIdle
			q.mu.Unlock()
			if onIdle != nil {
				q.logger.Info("idle timeout reached")
				onIdle()
			}
		}
	}
}

// dequeue pops the next unexpired job.
func (q *Queue) dequeue() *NarrationJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.jobs) > 0 {
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		if job.DedupeKey != "" {
			delete(q.dedupeKeys, job.DedupeKey)
		}
		if job.IsExpired() {
			q.logger.Debug("skipping expired job", "job_id", job.ID)
			continue
		}
		return job
	}
	return nil
}

func (q *Queue) process(job *NarrationJob) {
	q.mu.Lock()
	handler := q.handler
	onCompleted := q.onCompleted
	ctx, cancel := context.WithCancel(context.Background())
	q.cancelCurrent = cancel
	q.mu.Unlock()

	defer func() {
		cancel()
		q.mu.Lock()
		q.cancelCurrent = nil
		q.mu.Unlock()
		if onCompleted != nil {
			onCompleted(job)
		}
	}()

	if handler == nil {
		q.logger.Warn("no handler set, skipping job", "job_id", job.ID)
		return
	}

	q.logger.Info("processing job", "job_id", job.ID, "text_length", len(job.Text))
	switch err := handler(ctx, job); {
	case err == nil:
		q.logger.Info("job completed", "job_id", job.ID)
	case errors.Is(err, context.Canceled):
		q.logger.Info("job cancelled", "job_id", job.ID)
	default:
		q.logger.Error("job failed", "job_id", job.ID, "error", err)
	}
}
