// Package runloop provides a single-goroutine task loop with delayed posting.
//
// A Loop executes every posted task on the goroutine that called Run, one
// at a time and in posting order. Delayed tasks are posted into the same
// queue when their delay elapses, so code driven by a Loop never needs its
// own locking as long as it is only touched from tasks.
package runloop

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/anrd/internal/infrastructure/logging"
)

// Loop is a FIFO task executor.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{} // buffered, size 1

	logger *logging.Logger
}

// New creates a loop. Nothing runs until Run is called.
func New(logger *logging.Logger) *Loop {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Loop{
		tasks:  make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
		logger: logger.Named("runloop"),
	}
}

// Post enqueues a task. Safe to call from any goroutine. Returns false if
// the loop is closed.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || task == nil {
		return false
	}
	l.tasks = append(l.tasks, task)

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

// PostDelayed enqueues task once d has elapsed. The returned function
// cancels it and reports whether it was still pending.
func (l *Loop) PostDelayed(d time.Duration, task func()) (cancel func() bool) {
	if d <= 0 {
		l.Post(task)
		return func() bool { return false }
	}
	t := time.AfterFunc(d, func() {
		l.Post(task)
	})
	return t.Stop
}

// Run executes tasks until ctx is done or the loop is closed and drained.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			l.execute(task)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		l.mu.Lock()
		done := l.closed && len(l.tasks) == 0
		l.mu.Unlock()
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.signal:
		}
	}
}

// Close stops accepting tasks. Run returns once queued tasks are drained.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	close(l.signal)
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tasks) == 0 {
		return nil, false
	}
	task := l.tasks[0]
	l.tasks[0] = nil
	l.tasks = l.tasks[1:]
	if len(l.tasks) == 0 {
		l.tasks = l.tasks[:0]
	}
	return task, true
}

func (l *Loop) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task()
}
