// Package queue runs dispatches on a fixed pool of goroutines, off the request path
// of the status change that produced them.
package queue

import (
	"context"
	"errors"
	"sync"

	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/common/metrics"
	"hiring-notifications/internal/models"
	"hiring-notifications/internal/notify/dispatcher"
)

var (
	ErrQueueFull = errors.New("dispatch queue is full")
	ErrClosed    = errors.New("dispatch queue is closed")
)

// DispatchFunc is satisfied by (*dispatcher.Dispatcher).Dispatch.
type DispatchFunc func(ctx context.Context, req dispatcher.Request) models.Notification

// Sink receives every outcome that was not a successful send.
type Sink func(req dispatcher.Request, n models.Notification)

type Config struct {
	Workers int
	Size    int
}

type Queue struct {
	dispatch DispatchFunc
	sink     Sink
	logger   logger.Logger

	jobs   chan dispatcher.Request
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New starts cfg.Workers goroutines reading from a buffer of cfg.Size requests.
// A nil sink logs failures at error level.
func New(dispatch DispatchFunc, cfg Config, sink Sink, log logger.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Size < 0 {
		cfg.Size = 0
	}

	q := &Queue{
		dispatch: dispatch,
		logger:   logger.Component(log, "dispatch-queue"),
		jobs:     make(chan dispatcher.Request, cfg.Size),
	}
	q.sink = sink
	if q.sink == nil {
		q.sink = q.logFailure
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	return q
}

// Enqueue hands req to the pool without blocking.
func (q *Queue) Enqueue(req dispatcher.Request) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.jobs <- req:
		metrics.NotificationQueueDepth.Set(float64(len(q.jobs)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Len is the number of requests waiting for a worker.
func (q *Queue) Len() int {
	return len(q.jobs)
}

func (q *Queue) Cap() int {
	return cap(q.jobs)
}

// Shutdown stops intake and waits for queued requests to finish. When ctx expires
// first, in-flight dispatches are cancelled and ctx.Err() is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for req := range q.jobs {
		metrics.NotificationQueueDepth.Set(float64(len(q.jobs)))
		n := q.dispatch(q.ctx, req)
		if !n.Sent() {
			q.sink(req, n)
		}
	}
}

func (q *Queue) logFailure(req dispatcher.Request, n models.Notification) {
	if n.Outcome != models.OutcomeFailed {
		return
	}
	q.logger.Error("Queued dispatch failed", map[string]interface{}{
		"notificationId": n.ID,
		"applicantId":    req.ApplicantID,
		"orgId":          req.OrgID,
		"status":         req.Status,
		"reason":         n.Reason,
	})
}
