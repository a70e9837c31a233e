package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/kyc-extractor/internal/common"
)

type AnalyzerQueue struct {
	analyzer Analyzer
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	onDone   func(Outcome)

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// closed flips once under mu; done wakes senders blocked on a full queue and
	// senders tracks them so ch is only closed when nobody can send on it.
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	senders sync.WaitGroup
}

type Option func(*AnalyzerQueue)

func WithWorkers(n int) Option {
	return func(q *AnalyzerQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *AnalyzerQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *AnalyzerQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithOnDone sets the callback receiving every outcome. It runs on worker
// goroutines and must be safe for concurrent use.
func WithOnDone(fn func(Outcome)) Option {
	return func(q *AnalyzerQueue) { q.onDone = fn }
}

func NewAnalyzerQueue(analyzer Analyzer, logger *slog.Logger, opts ...Option) *AnalyzerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &AnalyzerQueue{
		analyzer: analyzer,
		logger:   logger,
		workers:  4,
		timeout:  2 * time.Minute,
		ch:       make(chan Job, 64),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *AnalyzerQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("queue.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *AnalyzerQueue) run(workerID int, job Job) {
	start := time.Now()
	ctx := common.WithRequestID(context.Background(), job.TraceID)
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	res, err := q.analyzer.Analyze(ctx, job.Document)
	cancel()

	out := Outcome{Job: job, WorkerID: workerID, Result: res, Err: err, Duration: time.Since(start)}
	if err != nil {
		q.logger.Error("queue.job.failed", "worker_id", workerID, "job_id", job.ID, "document", job.Document.Name, "error", err)
	} else {
		q.logger.Info("queue.job.ok", "worker_id", workerID, "job_id", job.ID, "document", job.Document.Name, "band", res.Band)
	}
	if q.onDone != nil {
		q.onDone(out)
	}
}

// Enqueue blocks while the queue is full, until ctx is done or the queue shuts down.
func (q *AnalyzerQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.TraceID == "" {
		job.TraceID = job.ID
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		q.logger.Warn("queue.enqueue.closed", "job_id", job.ID)
		return ErrQueueClosed
	}
	q.senders.Add(1)
	q.mu.RUnlock()
	defer q.senders.Done()

	select {
	case q.ch <- job:
		q.logger.Debug("queue.enqueue.ok", "job_id", job.ID, "document", job.Document.Name)
		return nil
	default:
	}

	q.logger.Warn("queue.full", "job_id", job.ID)
	select {
	case q.ch <- job:
		return nil
	case <-q.done:
		q.logger.Warn("queue.enqueue.closed", "job_id", job.ID)
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish, or for ctx.
// Callers blocked in Enqueue return ErrQueueClosed.
func (q *AnalyzerQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.senders.Wait()
	close(q.ch)

	finished := make(chan struct{})
	go func() { defer close(finished); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-finished:
		q.logger.Info("queue.shutdown.ok")
	}
}

var _ Queue = (*AnalyzerQueue)(nil)
