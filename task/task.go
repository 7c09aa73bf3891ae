// Package task runs a cancellable worker goroutine with deterministic join.
//
// A Task owns a context derived from its parent. The context is the task's
// cancellation token: the worker observes it, and only the Task (through
// Cancel or Stop) or the parent can trigger it. Stop is the equivalent of
// destroying the task: it requests cancellation and waits for the worker to
// return, so no callback captured by the worker can fire afterwards.
package task

import (
	"context"
	"sync"
)

// Task is a single background worker.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches run in its own goroutine. The context passed to run is
// cancelled when Cancel or Stop is called or when parent is cancelled.
func Start(parent context.Context, name string, run func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer cancel()
		run(ctx)
	}()

	return t
}

// Name returns the name the task was started with.
func (t *Task) Name() string {
	return t.name
}

// Cancel requests cancellation. It is safe to call any number of times.
func (t *Task) Cancel() {
	t.cancel()
}

// Join blocks until the worker has returned.
func (t *Task) Join() {
	<-t.done
}

// Stop cancels the task and waits for the worker to return.
func (t *Task) Stop() {
	t.Cancel()
	t.Join()
}

// Done is closed once the worker has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Once wraps fn so that it runs at most once no matter how often the
// returned function is called. A nil fn yields a no-op.
func Once(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(fn)
	}
}
