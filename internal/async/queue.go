package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/kyc-extractor/internal/pipeline"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one document waiting for analysis.
type Job struct {
	ID          string
	Document    pipeline.Document
	SubmittedAt time.Time
	TraceID     string
}

// Outcome is reported once per job, from the worker that ran it.
type Outcome struct {
	Job      Job
	WorkerID int
	Result   *pipeline.Result
	Err      error
	Duration time.Duration
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Analyzer is the part of pipeline.Analyzer the workers use.
type Analyzer interface {
	Analyze(ctx context.Context, doc pipeline.Document) (*pipeline.Result, error)
}
