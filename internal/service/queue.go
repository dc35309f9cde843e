package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/soyoonlab/notare/internal/domain"
	"github.com/soyoonlab/notare/internal/infrastructure/logger"
	"github.com/soyoonlab/notare/internal/observability"
)

// Pipeline runs the full transcription for one submission: separation, pitch
// extraction and result assembly. A call may take minutes; it must respect ctx.
type Pipeline interface {
	Process(ctx context.Context, input domain.Submission) (*domain.Result, error)
}

// RejectionError is returned by Submit when the waiting line is at capacity.
// It is a transient service-busy condition, not a client error.
type RejectionError struct {
	Max int
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("queue full (%d), please try again later", e.Max)
}

func (e *RejectionError) Unwrap() error { return domain.ErrQueueFull }

// JobHandle is what a successful submission returns to the client.
type JobHandle struct {
	ID       string           `json:"job_id"`
	Status   domain.JobStatus `json:"status"`
	Position int              `json:"position"`
	Message  string           `json:"message"`
}

// StatusView is the client-facing snapshot of a job, shaped per status:
// waiting carries a live position, completed the result, failed the error.
type StatusView struct {
	JobID    string           `json:"job_id"`
	Status   domain.JobStatus `json:"status"`
	Position int              `json:"position,omitempty"`
	Message  string           `json:"message"`
	Result   *domain.Result   `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

const (
	msgProcessing = "Transcription in progress..."
	msgCompleted  = "Completed."
	msgFailed     = "An error occurred during processing."
)

func waitingMessage(position int) string {
	return fmt.Sprintf("You are number %d in the queue.", position)
}

// QueueService serializes transcription requests into one FIFO line of work
// consumed by a single worker, so that exactly one job is ever in flight
// against the separation backend.
//
// The job map and the order slice form one critical section guarded by mu.
// The order slice holds ids whose status is waiting or processing; its head
// is the job the worker is on (or will take next). Terminal jobs stay in the
// map so late polls still resolve.
type QueueService struct {
	pipeline Pipeline
	maxSize  int

	mu    sync.Mutex
	jobs  map[string]*domain.Job
	order []string

	// wake carries the "work may be available" signal to the worker.
	// Buffered so submitters never block and duplicate signals collapse.
	wake chan struct{}
}

const defaultMaxQueueSize = 10

func NewQueueService(pipeline Pipeline, maxSize int) *QueueService {
	if maxSize <= 0 {
		maxSize = defaultMaxQueueSize
	}
	return &QueueService{
		pipeline: pipeline,
		maxSize:  maxSize,
		jobs:     make(map[string]*domain.Job),
		order:    make([]string, 0, maxSize+1),
		wake:     make(chan struct{}, 1),
	}
}

// Submit admits a new job or rejects it when the waiting line is full.
// Creation and enqueueing happen atomically: either both occur or neither.
// The reported position is the new queue length, head included.
func (q *QueueService) Submit(input domain.Submission) (*JobHandle, error) {
	q.mu.Lock()
	if q.waitingCountLocked() >= q.maxSize {
		q.mu.Unlock()
		observability.JobsRejected.Inc()
		return nil, &RejectionError{Max: q.maxSize}
	}

	job := domain.NewJob(input)
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	position := len(q.order)
	observability.QueueDepth.Set(float64(len(q.order)))
	q.mu.Unlock()

	observability.JobsSubmitted.Inc()
	q.signal()

	logger.Info.Printf("job %s submitted at position %d (file=%s, vocal=%s)",
		job.ID, position, logger.SanitizeForLog(input.OriginalFilename), input.VocalType)

	return &JobHandle{
		ID:       job.ID,
		Status:   domain.JobStatusWaiting,
		Position: position,
		Message:  waitingMessage(position),
	}, nil
}

// Status reads one job's current state. Position is computed at read time and
// shrinks as earlier jobs finish; terminal views are stable forever.
func (q *QueueService) Status(id string) (*StatusView, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	view := &StatusView{JobID: id, Status: job.Status}
	switch job.Status {
	case domain.JobStatusWaiting:
		view.Position = q.positionLocked(id)
		view.Message = waitingMessage(view.Position)
	case domain.JobStatusProcessing:
		view.Message = msgProcessing
	case domain.JobStatusCompleted:
		view.Message = msgCompleted
		view.Result = job.Result
	case domain.JobStatusFailed:
		view.Message = msgFailed
		view.Error = job.Error
	}
	return view, nil
}

// Run is the worker loop. It blocks until signaled, drains the queue head by
// head, and goes back to sleep when the line is empty. Call it from exactly
// one goroutine; it returns when ctx is canceled.
func (q *QueueService) Run(ctx context.Context) {
	logger.Info.Printf("transcription worker started (max queue size %d)", q.maxSize)
	for {
		select {
		case <-ctx.Done():
			logger.Info.Printf("transcription worker shutting down")
			return
		case <-q.wake:
		}
		q.drain(ctx)
	}
}

// drain processes jobs strictly head-first until the queue is empty. The
// pipeline runs without the lock held; only the status transitions and the
// head removal take it.
func (q *QueueService) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.order) == 0 {
			q.mu.Unlock()
			return
		}
		id := q.order[0]
		job := q.jobs[id]
		job.Status = domain.JobStatusProcessing
		job.UpdatedAt = time.Now()
		input := job.Input
		q.mu.Unlock()

		logger.Info.Printf("job %s: processing started", id)
		start := time.Now()
		result, err := q.pipeline.Process(ctx, input)
		elapsed := time.Since(start)

		q.mu.Lock()
		if err != nil {
			job.Status = domain.JobStatusFailed
			job.Error = err.Error()
			observability.JobsProcessed.WithLabelValues("failed").Inc()
		} else {
			job.Status = domain.JobStatusCompleted
			job.Result = result
			observability.JobsProcessed.WithLabelValues("completed").Inc()
		}
		job.UpdatedAt = time.Now()
		// Remove only if still at the head; anything else means the queue
		// structure was corrupted and dropping a different id would make
		// it worse.
		if len(q.order) > 0 && q.order[0] == id {
			q.order = q.order[1:]
		}
		observability.QueueDepth.Set(float64(len(q.order)))
		q.mu.Unlock()

		observability.ProcessingDuration.Observe(elapsed.Seconds())
		if err != nil {
			logger.Error.Printf("job %s: failed after %s: %v", id, elapsed.Round(time.Millisecond), err)
		} else {
			logger.Info.Printf("job %s: completed in %s", id, elapsed.Round(time.Millisecond))
		}
	}
}

// EvictTerminal drops completed and failed jobs whose last transition is
// older than the retention window, and returns how many were removed.
// Waiting and processing jobs are never touched.
func (q *QueueService) EvictTerminal(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := 0
	for id, job := range q.jobs {
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(q.jobs, id)
			evicted++
		}
	}
	return evicted
}

func (q *QueueService) waitingCountLocked() int {
	n := 0
	for _, id := range q.order {
		if q.jobs[id].Status == domain.JobStatusWaiting {
			n++
		}
	}
	return n
}

func (q *QueueService) positionLocked(id string) int {
	for i, queued := range q.order {
		if queued == id {
			return i + 1
		}
	}
	return 0
}

func (q *QueueService) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
