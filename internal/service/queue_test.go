package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyoonlab/notare/internal/domain"
)

type pipelineFunc func(ctx context.Context, input domain.Submission) (*domain.Result, error)

func (f pipelineFunc) Process(ctx context.Context, input domain.Submission) (*domain.Result, error) {
	return f(ctx, input)
}

func submission(name string) domain.Submission {
	return domain.Submission{
		OriginalFilename: name + ".mp3",
		StorageKey:       name + ".mp3",
		ContentType:      "audio/mpeg",
		Namespace:        name,
		VocalType:        domain.VocalTypeFemale,
	}
}

func startWorker(t *testing.T, q *QueueService) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go q.Run(ctx)
}

func TestQueue_Submit_ReportsSequentialPositions(t *testing.T) {
	q := NewQueueService(pipelineFunc(func(context.Context, domain.Submission) (*domain.Result, error) {
		return &domain.Result{}, nil
	}), 10)
	// Worker intentionally not started: every job stays waiting.

	for i := 1; i <= 5; i++ {
		handle, err := q.Submit(submission(fmt.Sprintf("track-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, i, handle.Position)
		assert.Equal(t, domain.JobStatusWaiting, handle.Status)
		assert.Contains(t, handle.Message, fmt.Sprintf("number %d", i))
	}
}

func TestQueue_Submit_RejectsWhenFull(t *testing.T) {
	q := NewQueueService(nil, 2)

	_, err := q.Submit(submission("a"))
	require.NoError(t, err)
	_, err = q.Submit(submission("b"))
	require.NoError(t, err)

	before := len(q.jobs)

	_, err = q.Submit(submission("c"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	assert.Contains(t, err.Error(), "queue full (2)")
	assert.Len(t, q.jobs, before, "rejected submission must not create a job")
}

func TestQueue_Submit_ProcessingJobDoesNotCountAgainstCapacity(t *testing.T) {
	block := make(chan struct{})
	q := NewQueueService(pipelineFunc(func(ctx context.Context, _ domain.Submission) (*domain.Result, error) {
		<-block
		return &domain.Result{}, nil
	}), 1)
	t.Cleanup(func() { close(block) })
	startWorker(t, q)

	first, err := q.Submit(submission("in-flight"))
	require.NoError(t, err)

	// Wait for the worker to pick up the head.
	require.Eventually(t, func() bool {
		view, err := q.Status(first.ID)
		return err == nil && view.Status == domain.JobStatusProcessing
	}, time.Second, 10*time.Millisecond)

	// Capacity is defined over waiting jobs only, so one more fits.
	second, err := q.Submit(submission("queued"))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Position)

	_, err = q.Submit(submission("rejected"))
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestQueue_Worker_ScenarioQueueFullAtThree(t *testing.T) {
	block := make(chan struct{})
	q := NewQueueService(pipelineFunc(func(ctx context.Context, _ domain.Submission) (*domain.Result, error) {
		<-block
		return &domain.Result{}, nil
	}), 3)
	t.Cleanup(func() { close(block) })

	positions := make([]int, 0, 3)
	for i := range 3 {
		handle, err := q.Submit(submission(fmt.Sprintf("track-%d", i)))
		require.NoError(t, err)
		positions = append(positions, handle.Position)
	}
	assert.Equal(t, []int{1, 2, 3}, positions)

	_, err := q.Submit(submission("overflow"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full (3)")
}

func TestQueue_Worker_AtMostOneJobInFlight(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	q := NewQueueService(pipelineFunc(func(ctx context.Context, _ domain.Submission) (*domain.Result, error) {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &domain.Result{}, nil
	}), 20)
	startWorker(t, q)

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handle, err := q.Submit(submission(fmt.Sprintf("track-%d", i)))
			if err == nil {
				ids[i] = handle.ID
			}
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			if id == "" {
				continue
			}
			view, err := q.Status(id)
			if err != nil || !view.Status.Terminal() {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), maxInFlight.Load(), "worker must process one job at a time")
}

func TestQueue_Worker_CompletesInSubmissionOrder(t *testing.T) {
	var mu sync.Mutex
	var processed []string
	q := NewQueueService(pipelineFunc(func(ctx context.Context, input domain.Submission) (*domain.Result, error) {
		mu.Lock()
		processed = append(processed, input.Namespace)
		mu.Unlock()
		return &domain.Result{}, nil
	}), 10)
	startWorker(t, q)

	var want []string
	var ids []string
	for i := range 6 {
		name := fmt.Sprintf("track-%d", i)
		handle, err := q.Submit(submission(name))
		require.NoError(t, err)
		want = append(want, name)
		ids = append(ids, handle.ID)
	}

	require.Eventually(t, func() bool {
		view, err := q.Status(ids[len(ids)-1])
		return err == nil && view.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, processed, "jobs must be processed strictly FIFO")
}

func TestQueue_Worker_PipelineErrorMarksJobFailed(t *testing.T) {
	q := NewQueueService(pipelineFunc(func(context.Context, domain.Submission) (*domain.Result, error) {
		return nil, errors.New("analysis server connection failed")
	}), 10)
	startWorker(t, q)

	handle, err := q.Submit(submission("doomed"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		view, err := q.Status(handle.ID)
		return err == nil && view.Status == domain.JobStatusFailed
	}, time.Second, 10*time.Millisecond)

	view, err := q.Status(handle.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, view.Error)
	assert.Contains(t, view.Error, "analysis server connection failed")
	assert.Nil(t, view.Result)
}

func TestQueue_Worker_SurvivesFailuresAndKeepsProcessing(t *testing.T) {
	q := NewQueueService(pipelineFunc(func(ctx context.Context, input domain.Submission) (*domain.Result, error) {
		if input.Namespace == "bad" {
			return nil, errors.New("boom")
		}
		return &domain.Result{}, nil
	}), 10)
	startWorker(t, q)

	bad, err := q.Submit(submission("bad"))
	require.NoError(t, err)
	good, err := q.Submit(submission("good"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		view, err := q.Status(good.ID)
		return err == nil && view.Status == domain.JobStatusCompleted
	}, time.Second, 10*time.Millisecond)

	view, err := q.Status(bad.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, view.Status)
}

func TestQueue_Worker_ScenarioMaleVocalCompletes(t *testing.T) {
	notes := []domain.Note{{Note: "C4", StartTime: 0.5, Duration: 1.2, EndTime: 1.7}}
	q := NewQueueService(pipelineFunc(func(ctx context.Context, input domain.Submission) (*domain.Result, error) {
		return &domain.Result{
			Clef:             input.VocalType.Clef(),
			OriginalFilename: "track",
			FileURL:          "https://storage.example/track.mp3?sig=abc",
			Notes:            notes,
		}, nil
	}), 10)
	startWorker(t, q)

	input := submission("track")
	input.VocalType = domain.VocalTypeMale
	handle, err := q.Submit(input)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		view, err := q.Status(handle.ID)
		return err == nil && view.Status == domain.JobStatusCompleted
	}, time.Second, 10*time.Millisecond)

	view, err := q.Status(handle.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Result)
	assert.Equal(t, domain.ClefBass, view.Result.Clef)
	assert.Equal(t, notes, view.Result.Notes)
	assert.Empty(t, view.Error)
}

func TestQueue_Status_UnknownIDNotFound(t *testing.T) {
	q := NewQueueService(nil, 10)

	_, err := q.Status("no-such-job")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQueue_Status_TerminalViewIsStable(t *testing.T) {
	q := NewQueueService(pipelineFunc(func(context.Context, domain.Submission) (*domain.Result, error) {
		return &domain.Result{Clef: domain.ClefTreble, FileURL: "https://storage.example/a"}, nil
	}), 10)
	startWorker(t, q)

	handle, err := q.Submit(submission("stable"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		view, err := q.Status(handle.ID)
		return err == nil && view.Status == domain.JobStatusCompleted
	}, time.Second, 10*time.Millisecond)

	first, err := q.Status(handle.ID)
	require.NoError(t, err)
	for range 5 {
		again, err := q.Status(handle.ID)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestQueue_Status_WaitingPositionShrinksAsJobsComplete(t *testing.T) {
	release := make(chan struct{})
	q := NewQueueService(pipelineFunc(func(ctx context.Context, _ domain.Submission) (*domain.Result, error) {
		<-release
		return &domain.Result{}, nil
	}), 10)
	startWorker(t, q)

	first, err := q.Submit(submission("first"))
	require.NoError(t, err)
	second, err := q.Submit(submission("second"))
	require.NoError(t, err)
	require.Equal(t, 2, second.Position)

	require.Eventually(t, func() bool {
		view, err := q.Status(first.ID)
		return err == nil && view.Status == domain.JobStatusProcessing
	}, time.Second, 10*time.Millisecond)

	view, err := q.Status(second.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Position, "position counts the in-flight head")

	release <- struct{}{}

	require.Eventually(t, func() bool {
		view, err := q.Status(second.ID)
		return err == nil && view.Status == domain.JobStatusProcessing
	}, time.Second, 10*time.Millisecond)

	close(release)
}

func TestQueue_EvictTerminal_RemovesOnlyOldFinishedJobs(t *testing.T) {
	q := NewQueueService(pipelineFunc(func(context.Context, domain.Submission) (*domain.Result, error) {
		return &domain.Result{}, nil
	}), 10)
	startWorker(t, q)

	done, err := q.Submit(submission("old"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		view, err := q.Status(done.ID)
		return err == nil && view.Status.Terminal()
	}, time.Second, 10*time.Millisecond)

	// Fresh terminal jobs stay.
	assert.Zero(t, q.EvictTerminal(time.Hour))
	_, err = q.Status(done.ID)
	require.NoError(t, err)

	// Backdate and evict.
	q.mu.Lock()
	q.jobs[done.ID].UpdatedAt = time.Now().Add(-2 * time.Hour)
	q.mu.Unlock()

	assert.Equal(t, 1, q.EvictTerminal(time.Hour))
	_, err = q.Status(done.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
