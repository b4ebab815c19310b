// ABOUTME: Detached background task runner for fire-and-forget writes
// ABOUTME: Tasks outlive the request context, recover panics, and are awaited on shutdown
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harper/duet/internal/logging"
	"github.com/harper/duet/internal/metrics"
	"go.uber.org/zap"
)

// ErrTasksClosed is returned when a task is submitted after Close
var ErrTasksClosed = errors.New("background tasks closed")

// Tasks runs detached work. Callers never wait on an individual task;
// failures are logged and counted.
type Tasks struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewTasks creates a runner
func NewTasks(logger *zap.Logger, m *metrics.Collector) *Tasks {
	logger = logging.OrNop(logger)
	return &Tasks{
		logger:  logger.With(zap.String("component", "tasks")),
		metrics: m,
	}
}

// Go starts fn in its own goroutine. The task keeps ctx's values but not its
// cancellation, so finishing the request does not abort the write.
func (t *Tasks) Go(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.metrics.RecordBackground(name, metrics.StatusDropped)
		return ErrTasksClosed
	}
	t.wg.Add(1)
	t.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer t.wg.Done()

		err := t.run(detached, fn)
		if err != nil {
			t.logger.Warn("background task failed", zap.String("task", name), zap.Error(err))
			t.metrics.RecordBackground(name, metrics.StatusError)
			return
		}
		t.metrics.RecordBackground(name, metrics.StatusOK)
	}()
	return nil
}

func (t *Tasks) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every running task finishes or ctx is done
func (t *Tasks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new tasks and waits for running ones
func (t *Tasks) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.Wait(ctx)
}
