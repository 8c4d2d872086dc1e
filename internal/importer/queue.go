package importer

// queue.go is the in-memory FIFO of pending import tasks.
//
// Enqueue never blocks and is safe for any number of concurrent submitters.
// Exactly one worker goroutine drains the queue, so at most one importer run
// is active at any moment; that single-writer guarantee is what keeps job
// counters deterministic. Queued-but-undequeued tasks are lost on process
// restart.

import (
	"context"
	"log/slog"
	"sync"
)

// Queue holds pending tasks in strict FIFO order and drives them through a
// single worker loop.
type Queue struct {
	run func(ctx context.Context, task Task)

	mu    sync.Mutex
	tasks []Task

	wake chan struct{}
	done chan struct{}
}

// NewQueue creates a queue whose worker invokes run for each dequeued task.
// The worker does not start until Start is called.
func NewQueue(run func(ctx context.Context, task Task)) *Queue {
	return &Queue{
		run:  run,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Enqueue appends a task and nudges the worker. Never blocks.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of tasks waiting to be dequeued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Start launches the worker goroutine. The worker drains tasks sequentially
// until ctx is cancelled; a task already running when ctx is cancelled runs
// to completion before the worker exits.
func (q *Queue) Start(ctx context.Context) {
	go q.drain(ctx)
}

// Done is closed once the worker has exited, i.e. after the in-flight task
// (if any) finished. Used by graceful shutdown.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) drain(ctx context.Context) {
	defer close(q.done)

	for {
		if ctx.Err() != nil {
			return
		}

		task, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		q.runTask(ctx, task)
	}
}

func (q *Queue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return Task{}, false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, true
}

// runTask executes one task with a panic guard. The importer terminalizes
// its job before any failure can escape, so this catch is a last-resort
// safety net that keeps the worker loop alive.
func (q *Queue) runTask(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in import task",
				"job_id", task.JobID,
				"file", task.Filename,
				"panic", r,
			)
		}
	}()

	q.run(ctx, task)
}
