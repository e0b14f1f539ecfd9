package scheduler

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// TaskQueue runs queued functions one at a time on a single goroutine. Every
// function enqueued on the same queue observes the effects of the ones
// before it, which lets callers keep state without locks as long as it is
// only touched from queued functions.
type TaskQueue struct {
	ch     chan func()
	done   chan struct{}
	once   sync.Once
	logger *logrus.Entry
}

// NewTaskQueue creates a queue with the given buffer size.
func NewTaskQueue(bufferSize int, logger *logrus.Entry) *TaskQueue {
	if bufferSize < 1 {
		bufferSize = 64
	}
	return &TaskQueue{
		ch:     make(chan func(), bufferSize),
		done:   make(chan struct{}),
		logger: logger.WithField("component", "task_queue"),
	}
}

// Enqueue adds fn to the queue, waiting for buffer space if needed. It
// returns false without queueing if the queue has stopped.
func (q *TaskQueue) Enqueue(fn func()) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- fn:
		return true
	case <-q.done:
		return false
	}
}

// TryEnqueue adds fn only if there is room right now. A full queue drops fn
// with a warning; it suits periodic work where the next period will retry.
func (q *TaskQueue) TryEnqueue(fn func()) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- fn:
		return true
	case <-q.done:
		return false
	default:
		q.logger.Warn("task queue full, dropping task")
		return false
	}
}

// Start processes queued tasks sequentially until ctx is cancelled or Stop is
// called. Functions still buffered at that point are discarded.
func (q *TaskQueue) Start(ctx context.Context) {
	q.logger.Debug("task queue started")
	defer q.Stop()
	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("task queue stopping (context cancelled)")
			return
		case <-q.done:
			return
		case fn := <-q.ch:
			q.run(fn)
		}
	}
}

// Stop makes the queue reject further work and ends Start. It is safe to
// call more than once.
func (q *TaskQueue) Stop() {
	q.once.Do(func() { close(q.done) })
}

// Done is closed once the queue has stopped.
func (q *TaskQueue) Done() <-chan struct{} {
	return q.done
}

func (q *TaskQueue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.WithField("panic", r).Error("queued task panicked")
		}
	}()
	fn()
}
