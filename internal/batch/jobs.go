package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/inbox-sweeper/api/schemas"
)

// JobState is the lifecycle state of a queued batch.
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// ErrManagerStopped is returned when submitting to a manager that is not running.
var ErrManagerStopped = errors.New("job manager is not running")

// JobFunc is the work behind a job. It reports progress through reporter.
type JobFunc func(ctx context.Context, reporter schemas.ProgressReporter) (schemas.BatchResult, error)

// Job is a point-in-time view of a submitted batch.
type Job struct {
	ID         string               `json:"id"`
	State      JobState             `json:"status"`
	Progress   int                  `json:"progress"`
	Result     *schemas.BatchResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
	FinishedAt *time.Time           `json:"finishedAt,omitempty"`
}

type jobEntry struct {
	Job
	fn JobFunc
}

// JobManager queues batches and runs them one at a time on a single worker,
// so two batches never drive the shared browser concurrently. Finished jobs
// are kept for the retention window so their status can be polled.
type JobManager struct {
	logger    *zap.Logger
	retention time.Duration
	queue     chan *jobEntry
	now       func() time.Time

	mu   sync.Mutex
	jobs map[string]*jobEntry

	stateLock sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewJobManager creates a manager. Call Start before submitting jobs.
func NewJobManager(retention time.Duration, queueSize int, logger *zap.Logger) *JobManager {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &JobManager{
		logger:    logger.Named("job_manager"),
		retention: retention,
		queue:     make(chan *jobEntry, queueSize),
		now:       time.Now,
		jobs:      make(map[string]*jobEntry),
	}
}

// Start launches the worker goroutine. Repeated calls are ignored.
func (m *JobManager) Start(ctx context.Context) {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	if m.isRunning {
		m.logger.Warn("JobManager.Start called, but manager is already running.")
		return
	}
	workerCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.isRunning = true

	m.wg.Add(1)
	go m.runWorker(workerCtx)
	m.logger.Info("Job manager started.")
}

// Stop cancels the running job, if any, and waits for the worker to exit.
func (m *JobManager) Stop() {
	m.stateLock.Lock()
	if !m.isRunning {
		m.stateLock.Unlock()
		return
	}
	m.isRunning = false
	m.cancel()
	m.stateLock.Unlock()

	m.wg.Wait()
	m.logger.Info("Job manager stopped.")
}

// Submit queues fn and returns its job ID.
func (m *JobManager) Submit(fn JobFunc) (string, error) {
	m.stateLock.Lock()
	defer m.stateLock.Unlock()
	if !m.isRunning {
		return "", ErrManagerStopped
	}

	entry := &jobEntry{
		Job: Job{ID: uuid.NewString(), State: JobWaiting, CreatedAt: m.now()},
		fn:  fn,
	}

	m.mu.Lock()
	m.pruneLocked()
	m.jobs[entry.ID] = entry
	m.mu.Unlock()

	select {
	case m.queue <- entry:
	default:
		m.mu.Lock()
		delete(m.jobs, entry.ID)
		m.mu.Unlock()
		return "", errors.New("job queue is full")
	}
	m.logger.Info("Job queued.", zap.String("job_id", entry.ID))
	return entry.ID, nil
}

// Get returns a copy of the job with the given ID.
func (m *JobManager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()
	entry, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return entry.Job, true
}

func (m *JobManager) runWorker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Context cancelled, job worker shutting down.", zap.Error(ctx.Err()))
			return
		case entry := <-m.queue:
			m.process(ctx, entry)
		}
	}
}

func (m *JobManager) process(ctx context.Context, entry *jobEntry) {
	logger := m.logger.With(zap.String("job_id", entry.ID))
	m.update(entry, func(j *Job) { j.State = JobActive })
	logger.Info("Processing job.")

	reporter := schemas.ProgressFunc(func(p int) {
		m.update(entry, func(j *Job) { j.Progress = p })
	})

	res, err := m.run(ctx, entry.fn, reporter)
	m.update(entry, func(j *Job) {
		finished := m.now()
		j.FinishedAt = &finished
		if err != nil {
			j.State = JobFailed
			j.Error = err.Error()
			return
		}
		j.State = JobCompleted
		j.Progress = 100
		j.Result = &res
	})

	if err != nil {
		logger.Error("Job failed.", zap.Error(err))
		return
	}
	logger.Info("Job completed.", zap.Int("successful", res.Successful), zap.Int("failed", res.Failed))
}

// run shields the worker from a panicking job.
func (m *JobManager) run(ctx context.Context, fn JobFunc, reporter schemas.ProgressReporter) (res schemas.BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("job panicked")
			m.logger.Error("Recovered from panic in job.", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	return fn(ctx, reporter)
}

func (m *JobManager) update(entry *jobEntry, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&entry.Job)
}

// pruneLocked drops finished jobs older than the retention window.
func (m *JobManager) pruneLocked() {
	if m.retention <= 0 {
		return
	}
	cutoff := m.now().Add(-m.retention)
	for id, entry := range m.jobs {
		if entry.FinishedAt != nil && entry.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}
