package async

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/anchit2000/invoice-parsing-llms/constants"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

// Job is one queued unit of pipeline work: a stored file bound to a schema
// snapshot and an owning identity. The snapshot travels with the job so
// later schema edits never affect in-flight work.
type Job struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Schema      *entity.Schema
	FilePath    string
	FileName    string
	FileSize    int64
	SubmittedAt time.Time
}

// Status is the caller-visible snapshot of a job.
type Status struct {
	ID           uuid.UUID           `json:"id"`
	State        constants.JobState  `json:"state"`
	Progress     int                 `json:"progress"`
	Result       any                 `json:"result,omitempty"`
	FailedReason string              `json:"failed_reason,omitempty"`
	SubmittedAt  time.Time           `json:"submitted_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}

// Event names mirror the queue lifecycle a caller can observe.
type Event string

const (
	EventCompleted Event = "completed"
	EventFailed    Event = "failed"
	EventStalled   Event = "stalled"
)

// Handler receives the job status at the moment the event fired.
type Handler func(Status)

// ProgressFunc advances a job's progress counter. Progress is monotonic;
// reports below the current value are ignored. Each report also counts as a
// liveness heartbeat.
type ProgressFunc func(pct int)

// Processor is the work a worker runs for one job.
type Processor interface {
	Process(ctx context.Context, job Job, report ProgressFunc) (result any, err error)
}

// Queue is the shared job queue the pipeline hangs off. Constructed and
// injected explicitly so tests can substitute their own.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Status(id uuid.UUID) (Status, bool)
	On(event Event, h Handler)
	Shutdown(ctx context.Context)
}
