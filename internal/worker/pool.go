package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Handler processes one queued delivery id.
type Handler interface {
	Deliver(ctx context.Context, deliveryID string)
}

// Pool manages a fixed number of worker goroutines that process delivery ids
// from a bounded queue.
type Pool struct {
	numWorkers int
	queue      chan string
	handler    Handler
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers and queue
// capacity.
func NewPool(numWorkers, queueSize int, handler Handler, logger *slog.Logger) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueSize < 1 {
		queueSize = numWorkers * 2
	}
	return &Pool{
		numWorkers: numWorkers,
		queue:      make(chan string, queueSize),
		handler:    handler,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They run until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers, "queue_size", cap(p.queue))
}

// TrySubmit queues a delivery id without blocking. It reports false when the
// queue is full.
func (p *Pool) TrySubmit(deliveryID string) bool {
	select {
	case p.queue <- deliveryID:
		return true
	default:
		return false
	}
}

// Depth returns the number of ids waiting for a worker.
func (p *Pool) Depth() int {
	return len(p.queue)
}

// Wait blocks until every worker has exited, letting in-flight attempts
// finish. Ids still queued are dropped; their records stay PENDING or
// RETRYING and are picked up by a later sweep.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.logger.Info("worker pool stopped", "dropped", len(p.queue))
}

// worker stops taking ids once ctx is cancelled. An attempt already running
// is not cut short by the cancellation; the HTTP client timeout bounds it.
func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	deliverCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case id := <-p.queue:
			p.handler.Deliver(deliverCtx, id)
		}
	}
}
