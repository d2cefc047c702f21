package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/yuckyman/url-portal/internal/jobstore"
	"github.com/yuckyman/url-portal/internal/metrics"
	"github.com/yuckyman/url-portal/internal/portal/domain"
	"github.com/yuckyman/url-portal/shared/clock"
)

// Executor runs a named action. A result whose "success" entry is not true
// counts as a failure.
type Executor interface {
	Execute(ctx context.Context, action string, payload map[string]any) (map[string]any, error)
}

// Observer is told about every job that reaches a terminal status
type Observer interface {
	JobFinished(ctx context.Context, rec domain.JobStatusRecord) error
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Store           *jobstore.Store
	Queue           *jobstore.Queue
	Executor        Executor
	Clock           clock.Clock
	Metrics         *metrics.Metrics
	Observers       []Observer
	Concurrency     int
	JobTimeout      time.Duration
	ObserverTimeout time.Duration
	WorkerID        string
}

// Worker is a fixed pool of goroutines draining the job queue
type Worker struct {
	logger          *slog.Logger
	store           *jobstore.Store
	queue           *jobstore.Queue
	executor        Executor
	clock           clock.Clock
	metrics         *metrics.Metrics
	observers       []Observer
	concurrency     int
	jobTimeout      time.Duration
	observerTimeout time.Duration
	workerID        string

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker creates a new worker pool
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:          cfg.Logger,
		store:           cfg.Store,
		queue:           cfg.Queue,
		executor:        cfg.Executor,
		clock:           cfg.Clock,
		metrics:         cfg.Metrics,
		observers:       cfg.Observers,
		concurrency:     cfg.Concurrency,
		jobTimeout:      cfg.JobTimeout,
		observerTimeout: cfg.ObserverTimeout,
		workerID:        cfg.WorkerID,
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.clock == nil {
		w.clock = clock.NewRealClock()
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.observerTimeout <= 0 {
		w.observerTimeout = 5 * time.Second
	}
	if w.workerID == "" {
		w.workerID = "portal-worker"
	}

	return w
}

// Start spawns the pool and returns. Workers run until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	if w.store == nil || w.queue == nil || w.executor == nil {
		return errors.New("worker requires a store, a queue and an executor")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return errors.New("worker already started")
	}
	w.started = true

	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	poolCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.spawnWorkerPool(poolCtx)

	return nil
}

// Stop signals every worker to exit and waits for them. A job already handed
// to the executor is allowed to finish and is recorded before its worker exits.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	if cancel == nil {
		return
	}

	w.logger.Info("Stopping worker...")
	cancel()
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
