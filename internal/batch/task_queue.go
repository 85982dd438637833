// Package batch runs independent units of work on a bounded worker pool with
// per-task retries. Failures are reported per task; one failing task never
// stops the others.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Task represents a unit of work to be processed
type Task[T any] interface {
	Execute(ctx context.Context) (T, error)
	ID() string
	MaxRetries() int
}

// TaskFunc adapts a function to Task.
type TaskFunc[T any] struct {
	TaskID  string
	Retries int
	Fn      func(ctx context.Context) (T, error)
}

// Execute calls Fn.
func (t TaskFunc[T]) Execute(ctx context.Context) (T, error) { return t.Fn(ctx) }

// ID returns the task ID
func (t TaskFunc[T]) ID() string { return t.TaskID }

// MaxRetries returns the task-specific retry budget; zero uses the queue's.
func (t TaskFunc[T]) MaxRetries() int { return t.Retries }

// TaskResult represents the result of a task execution
type TaskResult[T any] struct {
	TaskID  string
	Result  T
	Error   error
	Retries int
}

// TaskQueue is a queue for processing tasks with retry capabilities
type TaskQueue[T any] struct {
	tasks      []Task[T]
	maxWorkers int
	maxRetries int
	retryDelay time.Duration
	mu         sync.Mutex
}

// NewTaskQueue creates a new task queue
func NewTaskQueue[T any](maxWorkers int) *TaskQueue[T] {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	return &TaskQueue[T]{
		tasks:      make([]Task[T], 0),
		maxWorkers: maxWorkers,
		maxRetries: 2,
		retryDelay: time.Second,
	}
}

// AddTask adds a task to the queue
func (q *TaskQueue[T]) AddTask(task Task[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
}

// Len returns the number of queued tasks.
func (q *TaskQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// SetMaxRetries sets the maximum number of retries for tasks. Negative values
// disable retries.
func (q *TaskQueue[T]) SetMaxRetries(maxRetries int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxRetries = maxRetries
}

// SetRetryDelay sets the delay between retries
func (q *TaskQueue[T]) SetRetryDelay(delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retryDelay = delay
}

// ProcessAll processes all tasks in the queue and returns the results keyed
// by task ID. It returns once every task has finished.
func (q *TaskQueue[T]) ProcessAll(ctx context.Context) map[string]*TaskResult[T] {
	q.mu.Lock()
	tasksCopy := make([]Task[T], len(q.tasks))
	copy(tasksCopy, q.tasks)
	defaultRetries := q.maxRetries
	retryDelay := q.retryDelay
	q.mu.Unlock()

	taskCh := make(chan Task[T], len(tasksCopy))
	resultCh := make(chan *TaskResult[T], len(tasksCopy))

	var wg sync.WaitGroup
	workerCount := min(q.maxWorkers, len(tasksCopy))
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				maxRetries := task.MaxRetries()
				if maxRetries == 0 {
					maxRetries = defaultRetries
				}
				resultCh <- runTask(ctx, task, max(maxRetries, 0), retryDelay)
			}
		}()
	}

	for _, task := range tasksCopy {
		taskCh <- task
	}
	close(taskCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make(map[string]*TaskResult[T], len(tasksCopy))
	for result := range resultCh {
		results[result.TaskID] = result
	}

	return results
}

func runTask[T any](ctx context.Context, task Task[T], maxRetries int, delay time.Duration) *TaskResult[T] {
	var result T
	var err error
	retries := 0
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("task cancelled: %w", ctxErr)
			break
		}
		result, err = task.Execute(ctx)
		if err == nil || retries >= maxRetries {
			break
		}
		retries++

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			err = fmt.Errorf("task cancelled: %w", ctx.Err())
			return &TaskResult[T]{TaskID: task.ID(), Result: result, Error: err, Retries: retries}
		}
	}
	return &TaskResult[T]{TaskID: task.ID(), Result: result, Error: err, Retries: retries}
}
