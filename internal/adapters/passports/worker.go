// Package passports publishes consumer passports asynchronously and tracks
// each publication as a job.
package passports

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tracechain/internal/core"
	"tracechain/pkg/domain"
)

// JobStatus describes the lifecycle stage of a publication request.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// AutoRequester is recorded as the requester of jobs queued by HandleEvent.
const AutoRequester = "auto"

// DefaultQueueSize bounds pending jobs when NewWorker is given no size.
const DefaultQueueSize = 32

// DefaultJobRetention bounds the finished jobs kept for Get. Older finished
// jobs are forgotten first; queued and running jobs are never evicted.
const DefaultJobRetention = 1024

// ErrQueueFull is returned by Enqueue when no slot is free.
var ErrQueueFull = errors.New("passport queue full")

// Job tracks one publication request and its outcome.
type Job struct {
	ID          string                `json:"id"`
	Lot         string                `json:"lot"`
	Status      JobStatus             `json:"status"`
	Error       string                `json:"error,omitempty"`
	Receipt     *core.PassportReceipt `json:"receipt,omitempty"`
	RequestedBy string                `json:"requested_by"`
	Reason      string                `json:"reason,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// Publisher renders and archives the passport of a lot.
type Publisher interface {
	PublishPassport(ctx context.Context, lot string) (core.PassportReceipt, error)
}

// Worker executes passport publications on a single goroutine.
type Worker struct {
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time

	queue    chan string
	mu       sync.RWMutex
	jobs     map[string]*Job
	finished []string
	retain   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a worker with room for size pending jobs.
func NewWorker(publisher Publisher, size int, logger *zap.Logger) *Worker {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		publisher: publisher,
		logger:    logger.Named("passports"),
		now:       func() time.Time { return time.Now().UTC() },
		queue:     make(chan string, size),
		jobs:      make(map[string]*Job),
		retain:    DefaultJobRetention,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetRetention changes how many finished jobs are kept. n <= 0 restores
// DefaultJobRetention.
func (w *Worker) SetRetention(n int) {
	if n <= 0 {
		n = DefaultJobRetention
	}
	w.mu.Lock()
	w.retain = n
	w.evictLocked()
	w.mu.Unlock()
}

// Start begins processing queued jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the job in flight.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue schedules a publication for lot and returns the queued job.
func (w *Worker) Enqueue(_ context.Context, lot, requestedBy, reason string) (Job, error) {
	if lot == "" {
		return Job{}, domain.NewLedgerError(domain.ErrInvalidKey, "enqueue_passport", "", "empty lot identifier")
	}
	now := w.now()
	job := &Job{
		ID:          uuid.NewString(),
		Lot:         lot,
		Status:      JobQueued,
		RequestedBy: requestedBy,
		Reason:      reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[job.ID] = job
	queued := job.copy()
	w.mu.Unlock()

	select {
	case w.queue <- job.ID:
	default:
		w.mu.Lock()
		delete(w.jobs, job.ID)
		w.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	w.logger.Debug("passport queued", zap.String("job", job.ID), zap.String("lot", lot), zap.String("requested_by", requestedBy))
	return queued, nil
}

// Get returns a snapshot of the job.
func (w *Worker) Get(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	job, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.copy(), true
}

// HandleEvent queues a publication whenever a lot reaches the completed
// stage. Pass it to events.Bus.Subscribe.
func (w *Worker) HandleEvent(ctx context.Context, event domain.Event) {
	if event.Type != domain.EventStageUpdated {
		return
	}
	if stage, ok := event.Data["stage"].(domain.Stage); !ok || stage != domain.StageCompleted {
		return
	}
	if _, err := w.Enqueue(ctx, event.Lot, AutoRequester, "lot completed"); err != nil {
		w.logger.Warn("auto passport not queued", zap.String("lot", event.Lot), zap.Error(err))
	}
}

func (w *Worker) process(id string) {
	lot, ok := w.markRunning(id)
	if !ok {
		return
	}
	receipt, err := w.publisher.PublishPassport(w.ctx, lot)
	if err != nil {
		w.fail(id, err)
		return
	}
	w.complete(id, receipt)
}

func (w *Worker) markRunning(id string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	job, ok := w.jobs[id]
	if !ok {
		return "", false
	}
	job.Status = JobRunning
	job.UpdatedAt = w.now()
	return job.Lot, true
}

func (w *Worker) complete(id string, receipt core.PassportReceipt) {
	now := w.now()
	w.mu.Lock()
	if job, ok := w.jobs[id]; ok {
		job.Status = JobSucceeded
		job.Error = ""
		job.Receipt = &receipt
		job.UpdatedAt = now
		job.CompletedAt = &now
		w.finishLocked(id)
	}
	w.mu.Unlock()
	w.logger.Info("passport published", zap.String("job", id), zap.String("key", receipt.Blob.Key))
}

func (w *Worker) fail(id string, err error) {
	now := w.now()
	w.mu.Lock()
	if job, ok := w.jobs[id]; ok {
		job.Status = JobFailed
		job.Error = err.Error()
		job.UpdatedAt = now
		job.CompletedAt = &now
		w.finishLocked(id)
	}
	w.mu.Unlock()
	w.logger.Warn("passport publication failed", zap.String("job", id), zap.Error(err))
}

func (w *Worker) finishLocked(id string) {
	w.finished = append(w.finished, id)
	w.evictLocked()
}

func (w *Worker) evictLocked() {
	for len(w.finished) > w.retain {
		delete(w.jobs, w.finished[0])
		w.finished = w.finished[1:]
	}
}

func (j *Job) copy() Job {
	out := *j
	if j.Receipt != nil {
		receipt := *j.Receipt
		out.Receipt = &receipt
	}
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		out.CompletedAt = &at
	}
	return out
}
