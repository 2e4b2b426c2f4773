package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Dispatcher runs fire-and-forget tasks with bounded concurrency. Tasks
// never report back to the caller; their errors go to the logger.
//
// At most workers tasks run at once and at most queue more wait for a
// worker. Tasks beyond that are dropped, so a slow relay cannot pile up
// goroutines.
//
// Thread Safety: all methods are safe for concurrent use. Go and Close
// are ordered by stateMu, so no task is admitted once Close has begun
// draining.
type Dispatcher struct {
	workers *semaphore.Weighted
	slots   *semaphore.Weighted
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stateMu sync.RWMutex
	closed  bool

	mu     sync.RWMutex
	logger Logger
}

// NewDispatcher creates a dispatcher running at most workers tasks at once
// with up to queue more waiting, each bounded by timeout.
func NewDispatcher(workers, queue int, timeout time.Duration) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		workers: semaphore.NewWeighted(int64(workers)),
		slots:   semaphore.NewWeighted(int64(workers + queue)),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		logger:  noopLogger{},
	}
}

// SetLogger sets the sink for task errors.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

func (d *Dispatcher) log() Logger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.logger
}

// Go schedules task and returns immediately. It reports false when the
// task was dropped because the dispatcher is closed or its queue is full.
func (d *Dispatcher) Go(name string, task func(ctx context.Context) error) bool {
	if !d.admit(name) {
		return false
	}

	go func() {
		defer d.wg.Done()
		defer d.slots.Release(1)

		if err := d.workers.Acquire(d.ctx, 1); err != nil {
			d.log().Warn("task dropped before start", "task", name, "error", err)
			return
		}
		defer d.workers.Release(1)

		ctx := d.ctx
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(d.ctx, d.timeout)
			defer cancel()
		}

		if err := run(ctx, task); err != nil {
			d.log().Warn("off-band notification failed", "task", name, "error", err)
			return
		}
		d.log().Debug("off-band notification sent", "task", name)
	}()
	return true
}

// admit reserves a queue slot and registers the task with the wait group.
func (d *Dispatcher) admit(name string) bool {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	if d.closed {
		d.log().Warn("dispatcher closed, dropping task", "task", name)
		return false
	}
	if !d.slots.TryAcquire(1) {
		d.log().Warn("dispatcher queue full, dropping task", "task", name)
		return false
	}
	d.wg.Add(1)
	return true
}

// Close stops accepting tasks and waits for running ones until ctx is done,
// then cancels whatever is left. Calling Close again is safe.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.stateMu.Lock()
	d.closed = true
	d.stateMu.Unlock()
	defer d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notify: waiting for pending tasks: %w", ctx.Err())
	}
}

// run recovers a panicking task into an error.
func run(ctx context.Context, task func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("notify: task panicked: %v", rec)
		}
	}()
	return task(ctx)
}
