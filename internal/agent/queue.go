package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/types"
)

// Job is one accepted relay request waiting for an agent reply.
type Job struct {
	ID         types.RelayID
	Workspace  types.WorkspaceID
	Username   string
	Message    string
	Command    chat.Command
	ReceivedAt time.Time
}

// Queue manages per-workspace lanes with a global concurrency semaphore.
// Each workspace gets its own FIFO channel (lane) so that replies within a
// workspace are produced in request order, while the semaphore limits the
// total number of jobs in progress across all workspaces.
type Queue struct {
	lanes     map[types.WorkspaceID]chan *Job
	semaphore *semaphore.Weighted
	processor func(context.Context, *Job) error
	onFailure func(context.Context, *Job, error)
	active    atomic.Int64
	// outstanding counts jobs accepted but not yet finished.
	outstanding atomic.Int64
	logger      *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// NewQueue creates a Queue that allows up to maxConcurrent jobs to execute
// simultaneously across all workspace lanes.
func NewQueue(maxConcurrent int64, logger *slog.Logger) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		lanes:     make(map[types.WorkspaceID]chan *Job),
		semaphore: semaphore.NewWeighted(maxConcurrent),
		logger:    logger,
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	if !q.stopped {
		q.stopped = true
		for _, lane := range q.lanes {
			close(lane)
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a Job to its workspace lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full.
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx == nil || q.stopped {
		return fmt.Errorf("queue not running")
	}

	lane, exists := q.lanes[job.Workspace]
	if !exists {
		lane = make(chan *Job, 100)
		q.lanes[job.Workspace] = lane
		q.wg.Add(1)
		go q.processLane(lane)
	}

	q.outstanding.Add(1)
	select {
	case lane <- job:
		return nil
	default:
		q.outstanding.Add(-1)
		return fmt.Errorf("queue full for workspace %s", job.Workspace)
	}
}

// processLane drains a single workspace lane, acquiring a semaphore slot
// before running the processor synchronously.
func (q *Queue) processLane(lane chan *Job) {
	defer q.wg.Done()
	for {
		select {
		case job, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				q.outstanding.Add(-1)
				return
			}
			if q.processor != nil {
				q.active.Add(1)
				if err := q.processor(q.ctx, job); err != nil {
					q.logger.Error("relay job failed", "relay_id", string(job.ID), "workspace_id", string(job.Workspace), "error", err)
					if q.onFailure != nil {
						q.onFailure(q.ctx, job, err)
					}
				}
				q.active.Add(-1)
			}
			q.semaphore.Release(1)
			q.outstanding.Add(-1)
		case <-q.ctx.Done():
			return
		}
	}
}

// Active returns the number of jobs currently being processed.
func (q *Queue) Active() int64 {
	return q.active.Load()
}

// Pending returns the number of queued jobs not yet picked up.
func (q *Queue) Pending() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, lane := range q.lanes {
		n += len(lane)
	}
	return n
}

// WaitIdle blocks until no jobs are queued or in progress, or the timeout
// expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.outstanding.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued Job.
func (q *Queue) SetProcessor(fn func(context.Context, *Job) error) {
	q.processor = fn
}

// SetFailureHandler sets the function invoked when the processor fails.
func (q *Queue) SetFailureHandler(fn func(context.Context, *Job, error)) {
	q.onFailure = fn
}
