package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anchit2000/invoice-parsing-llms/constants"
)

type jobRecord struct {
	job          Job
	state        constants.JobState
	progress     int
	result       any
	failedReason string
	submittedAt  time.Time
	startedAt    *time.Time
	finishedAt   *time.Time
	lastBeat     time.Time
}

// MemoryQueue is an in-process Queue: a fixed worker pool pulling from one
// buffered channel. A job id is held by at most one worker at a time, and a
// monitor marks jobs stalled when their worker stops heartbeating.
type MemoryQueue struct {
	proc         Processor
	logger       *slog.Logger
	workers      int
	jobTimeout   time.Duration
	stallTimeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu       sync.Mutex
	closed   bool
	registry map[uuid.UUID]*jobRecord
	handlers map[Event][]Handler

	// done signals shutdown. The job channel itself is never closed, so a
	// blocked Enqueue can always bail out instead of sending after close.
	done chan struct{}
}

type Option func(*MemoryQueue)

func WithWorkers(n int) Option {
	return func(q *MemoryQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *MemoryQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(q *MemoryQueue) {
		if d > 0 {
			q.jobTimeout = d
		}
	}
}

func WithStallTimeout(d time.Duration) Option {
	return func(q *MemoryQueue) {
		if d > 0 {
			q.stallTimeout = d
		}
	}
}

func NewMemoryQueue(proc Processor, logger *slog.Logger, opts ...Option) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &MemoryQueue{
		proc:         proc,
		logger:       logger,
		workers:      2,
		jobTimeout:   5 * time.Minute,
		stallTimeout: 90 * time.Second,
		ch:           make(chan Job, 256),
		registry:     make(map[uuid.UUID]*jobRecord),
		handlers:     make(map[Event][]Handler),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

var _ Queue = (*MemoryQueue)(nil)

func (q *MemoryQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for {
					select {
					case <-q.done:
						// drain what was buffered before shutdown, then exit
						for {
							select {
							case job := <-q.ch:
								q.runJob(workerID, job)
							default:
								q.logger.Info("worker stopped", "worker_id", workerID)
								return
							}
						}
					case job := <-q.ch:
						q.runJob(workerID, job)
					}
				}
			}(i + 1)
		}
		go q.monitor()
	})
}

// Enqueue registers the job as WAITING and hands it to the worker pool.
// A job id already queued or active is rejected; the queue guarantees
// mutual exclusion per id.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is shutting down")
	}
	if rec, ok := q.registry[job.ID]; ok && !rec.state.Terminal() {
		q.mu.Unlock()
		return fmt.Errorf("job %s already queued", job.ID)
	}
	q.registry[job.ID] = &jobRecord{
		job:         job,
		state:       constants.JobStateWaiting,
		submittedAt: job.SubmittedAt,
		lastBeat:    time.Now(),
	}
	q.mu.Unlock()

	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue full, applying backpressure", "job_id", job.ID)
		select {
		case q.ch <- job:
		case <-q.done:
			q.mu.Lock()
			delete(q.registry, job.ID)
			q.mu.Unlock()
			return fmt.Errorf("queue is shutting down")
		}
	}
	q.logger.Info("queued job", "job_id", job.ID, "file", job.FileName)
	return nil
}

func (q *MemoryQueue) runJob(workerID int, job Job) {
	now := time.Now()
	q.mu.Lock()
	rec, ok := q.registry[job.ID]
	if !ok {
		q.mu.Unlock()
		return
	}
	rec.state = constants.JobStateActive
	rec.startedAt = &now
	rec.lastBeat = now
	q.mu.Unlock()

	report := func(pct int) {
		q.mu.Lock()
		if pct > rec.progress {
			rec.progress = pct
		}
		rec.lastBeat = time.Now()
		q.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
	result, err := q.proc.Process(ctx, job, report)
	cancel()

	finished := time.Now()
	q.mu.Lock()
	rec.finishedAt = &finished
	if err != nil {
		rec.state = constants.JobStateFailed
		rec.failedReason = err.Error()
	} else {
		rec.state = constants.JobStateCompleted
		rec.progress = 100
		rec.result = result
	}
	status := statusOf(rec)
	q.mu.Unlock()

	if err != nil {
		q.logger.Error("job failed", "worker_id", workerID, "job_id", job.ID, "error", err)
		q.emit(EventFailed, status)
	} else {
		q.logger.Info("job completed", "worker_id", workerID, "job_id", job.ID)
		q.emit(EventCompleted, status)
	}
}

// monitor flags ACTIVE jobs whose worker stopped heartbeating. A stalled job
// is observable as such until its worker eventually reports a terminal
// outcome; the transition back is tolerated by design.
func (q *MemoryQueue) monitor() {
	interval := q.stallTimeout / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			var stalled []Status
			q.mu.Lock()
			for _, rec := range q.registry {
				if rec.state == constants.JobStateActive && time.Since(rec.lastBeat) > q.stallTimeout {
					rec.state = constants.JobStateStalled
					stalled = append(stalled, statusOf(rec))
				}
			}
			q.mu.Unlock()
			for _, s := range stalled {
				q.logger.Warn("job stalled", "job_id", s.ID, "progress", s.Progress)
				q.emit(EventStalled, s)
			}
		}
	}
}

// Status returns the caller-visible snapshot for a job id.
func (q *MemoryQueue) Status(id uuid.UUID) (Status, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.registry[id]
	if !ok {
		return Status{}, false
	}
	return statusOf(rec), true
}

// On registers a handler for an event. Handlers run synchronously on the
// worker goroutine; keep them short.
func (q *MemoryQueue) On(event Event, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[event] = append(q.handlers[event], h)
}

func (q *MemoryQueue) emit(event Event, s Status) {
	q.mu.Lock()
	hs := append([]Handler(nil), q.handlers[event]...)
	q.mu.Unlock()
	for _, h := range hs {
		h(s)
	}
}

// Shutdown stops intake, drains in-flight jobs, and waits up to ctx.
func (q *MemoryQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)

	drained := make(chan struct{})
	go func() { defer close(drained); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-drained:
		q.sweepUndelivered()
		q.logger.Info("queue drained, shutdown complete")
	}
}

// sweepUndelivered fails any job a racing Enqueue buffered after the workers
// finished their drain pass.
func (q *MemoryQueue) sweepUndelivered() {
	for {
		select {
		case job := <-q.ch:
			now := time.Now()
			q.mu.Lock()
			rec, ok := q.registry[job.ID]
			if ok && !rec.state.Terminal() {
				rec.state = constants.JobStateFailed
				rec.failedReason = "queue shut down before processing"
				rec.finishedAt = &now
			}
			var status Status
			if ok {
				status = statusOf(rec)
			}
			q.mu.Unlock()
			if ok {
				q.emit(EventFailed, status)
			}
		default:
			return
		}
	}
}

func statusOf(rec *jobRecord) Status {
	return Status{
		ID:           rec.job.ID,
		State:        rec.state,
		Progress:     rec.progress,
		Result:       rec.result,
		FailedReason: rec.failedReason,
		SubmittedAt:  rec.submittedAt,
		StartedAt:    rec.startedAt,
		FinishedAt:   rec.finishedAt,
	}
}
