package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"socialhub/internal/metrics"
)

// Queue is an in-process Publisher drained by one worker goroutine. When the
// buffer is full new events are dropped and logged.
type Queue struct {
	ch      chan Event
	handler Handler
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewQueue returns a Queue buffering up to size events.
func NewQueue(size int, handler Handler, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{
		ch:      make(chan Event, size),
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start runs the worker until Close drains the buffer.
func (q *Queue) Start() {
	go func() {
		defer close(q.done)
		for e := range q.ch {
			if err := q.handler.Handle(context.Background(), e); err != nil {
				q.logger.Error("notification delivery failed",
					zap.String("event", string(e.Name)),
					zap.Error(err))
			}
		}
	}()
}

func (q *Queue) Publish(_ context.Context, e Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.NotificationsTotal.WithLabelValues(string(e.Name), "dropped").Inc()
		q.logger.Warn("notification queue closed, event dropped", zap.String("event", string(e.Name)))
		return
	}
	select {
	case q.ch <- e:
	default:
		metrics.NotificationsTotal.WithLabelValues(string(e.Name), "dropped").Inc()
		q.logger.Warn("notification queue full, event dropped", zap.String("event", string(e.Name)))
	}
}

// Close stops accepting events and waits for queued ones to be handled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
