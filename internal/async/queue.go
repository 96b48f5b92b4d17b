package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

// Job is one submitted document waiting for a pipeline run.
type Job struct {
	RunID       uuid.UUID
	Document    entity.Document
	SubmittedAt time.Time
	RequestID   string
}

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, runID string, doc entity.Document) (entity.Outcome, error)
}

// ProcessorQueue runs jobs on a fixed pool of workers. Each job gets its own
// timeout-bounded context, detached from the request that enqueued it.
type ProcessorQueue struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(runner Runner, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		runner:  runner,
		logger:  logger,
		workers: 2,
		timeout: 10 * time.Minute,
		ch:      make(chan Job, 32),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)
				for job := range q.ch {
					q.process(workerID, job)
				}
				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) process(workerID int, job Job) {
	ctx := context.Background()
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	runID := job.RunID.String()
	out, err := q.runner.Run(ctx, runID, job.Document)
	if err != nil {
		q.logger.Error("run failed", "worker_id", workerID, "run_id", runID, "error", err)
		return
	}
	q.logger.Info("run finished",
		"worker_id", workerID,
		"run_id", runID,
		"kind", out.Kind(),
		"queued_ms", time.Since(job.SubmittedAt).Milliseconds(),
	)
}

// Enqueue hands job to a worker without blocking. It returns ErrQueueFull when
// every buffer slot is taken and ErrQueueClosed after Shutdown.
func (q *ProcessorQueue) Enqueue(_ context.Context, job Job) error {
	if job.RunID == uuid.Nil {
		job.RunID = uuid.New()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "run_id", job.RunID)
		return common.ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued document for processing", "run_id", job.RunID, "filename", job.Document.Filename)
		return nil
	default:
		q.logger.Warn("queue full, rejecting document", "run_id", job.RunID)
		return common.ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx to end.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
