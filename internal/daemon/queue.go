package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Raydrick/docship/internal/logfields"
	"github.com/Raydrick/docship/internal/metrics"
)

// JobType identifies what triggered a run job.
type JobType string

const (
	JobTypeManual    JobType = "manual"
	JobTypeScheduled JobType = "scheduled"
	JobTypeWebhook   JobType = "webhook"
)

// JobStatus tracks a job through its lifecycle.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one queued pipeline run request.
type Job struct {
	ID          string        `json:"id"`
	Type        JobType       `json:"type"`
	Branch      string        `json:"branch"`
	Commit      string        `json:"commit,omitempty"`
	Status      JobStatus     `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Outcome     string        `json:"outcome,omitempty"`
	Error       string        `json:"error,omitempty"`

	cancel context.CancelFunc
}

// Runner executes one job and reports its aggregate outcome.
type Runner interface {
	Run(ctx context.Context, job *Job) (outcome string, err error)
}

// RunQueue is a bounded FIFO of run jobs processed by a fixed worker pool.
// A full queue rejects new jobs rather than blocking the producer.
type RunQueue struct {
	jobs        chan *Job
	workers     int
	maxSize     int
	mu          sync.RWMutex
	active      map[string]*Job
	history     []*Job
	historySize int
	stopChan    chan struct{}
	wg          sync.WaitGroup
	runner      Runner
	recorder    metrics.Recorder
}

// NewRunQueue creates a queue with the given capacity and worker count.
func NewRunQueue(maxSize, workers int, runner Runner, recorder metrics.Recorder) *RunQueue {
	if maxSize <= 0 {
		maxSize = 100
	}
	if workers <= 0 {
		workers = 1
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &RunQueue{
		jobs:        make(chan *Job, maxSize),
		workers:     workers,
		maxSize:     maxSize,
		active:      make(map[string]*Job),
		historySize: 50,
		stopChan:    make(chan struct{}),
		runner:      runner,
		recorder:    recorder,
	}
}

// Start launches the worker pool.
func (q *RunQueue) Start(ctx context.Context) {
	slog.Info("Starting run queue",
		slog.Int("workers", q.workers), slog.Int("max_size", q.maxSize))
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop cancels active jobs and waits for workers to drain.
func (q *RunQueue) Stop() {
	slog.Info("Stopping run queue")
	close(q.stopChan)

	q.mu.Lock()
	for _, job := range q.active {
		if job.cancel != nil {
			job.cancel()
		}
	}
	q.mu.Unlock()

	q.wg.Wait()
	slog.Info("Run queue stopped")
}

// Enqueue adds a job; a full queue returns an error immediately.
func (q *RunQueue) Enqueue(job *Job) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	job.Status = JobStatusQueued

	select {
	case q.jobs <- job:
		q.recorder.SetQueueLength(len(q.jobs))
		slog.Info("Run job enqueued",
			slog.String("job_id", job.ID),
			slog.String("type", string(job.Type)),
			logfields.Branch(job.Branch))
		return nil
	default:
		return fmt.Errorf("run queue is full (%d jobs)", q.maxSize)
	}
}

// Length returns the number of queued jobs.
func (q *RunQueue) Length() int { return len(q.jobs) }

// ActiveJobs returns a snapshot of jobs currently being processed.
func (q *RunQueue) ActiveJobs() []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	active := make([]*Job, 0, len(q.active))
	for _, job := range q.active {
		active = append(active, job)
	}
	return active
}

// History returns recent completed jobs, newest last.
func (q *RunQueue) History() []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	history := make([]*Job, len(q.history))
	copy(history, q.history)
	return history
}

func (q *RunQueue) worker(ctx context.Context, workerID string) {
	defer q.wg.Done()
	slog.Debug("Run worker started", slog.String("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopChan:
			return
		case job := <-q.jobs:
			if job != nil {
				q.recorder.SetQueueLength(len(q.jobs))
				q.processJob(ctx, job, workerID)
			}
		}
	}
}

// processJob runs one job to completion. No retries: a failed run stays
// failed until the next trigger.
func (q *RunQueue) processJob(ctx context.Context, job *Job, workerID string) {
	jobCtx, cancel := context.WithCancel(ctx)
	job.cancel = cancel
	defer cancel()

	start := time.Now()
	job.StartedAt = &start
	job.Status = JobStatusRunning

	q.mu.Lock()
	q.active[job.ID] = job
	q.mu.Unlock()

	slog.Info("Run job started",
		slog.String("job_id", job.ID),
		slog.String("worker", workerID),
		logfields.Branch(job.Branch))

	outcome, err := q.runner.Run(jobCtx, job)

	end := time.Now()
	job.CompletedAt = &end
	job.Duration = end.Sub(start)
	job.Outcome = outcome

	q.mu.Lock()
	delete(q.active, job.ID)
	q.addToHistory(job)
	q.mu.Unlock()

	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		slog.Error("Run job failed",
			slog.String("job_id", job.ID),
			slog.Duration("duration", job.Duration),
			logfields.Error(err))
		return
	}
	job.Status = JobStatusCompleted
	slog.Info("Run job completed",
		slog.String("job_id", job.ID),
		slog.String("outcome", outcome),
		slog.Duration("duration", job.Duration))
}

func (q *RunQueue) addToHistory(job *Job) {
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		copy(q.history, q.history[len(q.history)-q.historySize:])
		q.history = q.history[:q.historySize]
	}
}
