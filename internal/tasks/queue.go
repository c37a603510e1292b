// Package tasks runs best-effort background work. The credential pool uses it
// to refresh cached credential sets after a response has been sent: a task
// failure is logged and otherwise ignored, and a saturated queue drops work
// rather than delaying the request that scheduled it.
package tasks

import (
	"context"
	"sync"

	"github.com/hexprox/hexprox/internal/logging"
)

// Task is one unit of background work.
type Task struct {
	// Name appears in log output.
	Name string
	// Run does the work. The context is the queue's lifetime, not the
	// request that enqueued the task.
	Run func(ctx context.Context) error
}

// Queue executes tasks on a fixed set of workers.
type Queue struct {
	ch     chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a queue with the given buffer size and worker count.
// Values below 1 are clamped to 1.
func NewQueue(size, workers int) *Queue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		ch:     make(chan Task, size),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue schedules t and returns whether it was accepted. A full queue
// rejects immediately; the caller is never blocked.
func (q *Queue) Enqueue(t Task) bool {
	select {
	case q.ch <- t:
		return true
	default:
		logging.Logger.Warn("task queue full, dropping task", "task", t.Name)
		return false
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case t := <-q.ch:
			if err := t.Run(q.ctx); err != nil {
				logging.Logger.Warn("background task failed", "task", t.Name, "error", err.Error())
			}
		}
	}
}

// Close stops the workers. Queued tasks that have not started are discarded.
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()
}
