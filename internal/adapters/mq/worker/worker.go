// Package worker settles resolved markets off the settlement queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/lastcall/internal/adapters/mq/queue"
	"github.com/okian/lastcall/internal/domain/model"
	"github.com/okian/lastcall/pkg/logger"
	"github.com/okian/lastcall/pkg/metrics"
)

// Job is what workers read off the queue.
type Job = queue.Job

// Settler runs the engine over a market's current snapshot.
type Settler interface {
	Settle(ctx context.Context, marketID string) (model.Settlement, error)
}

// Recorder persists a settlement.
type Recorder interface {
	SaveSettlement(ctx context.Context, s model.Settlement) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue() <-chan Job
}

// Worker processes settlement jobs.
type Worker interface {
	// Run consumes jobs until ctx is cancelled, Shutdown is called or the
	// queue is closed and drained.
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	settler  Settler
	recorder Recorder
	opts     options

	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, settler Settler, recorder Recorder, opts ...Option) *InMemoryWorker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.Named(o.name)

	return &InMemoryWorker{
		queue:    q,
		settler:  settler,
		recorder: recorder,
		opts:     o,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, job); err != nil {
				w.opts.logger.Error(ctx, "settlement failed",
					logger.String("market_id", job.MarketID),
					logger.Error(err),
				)
				w.opts.onFailure(ctx, job, err)
			}
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.opts.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) process(ctx context.Context, job Job) error {
	metrics.RecordQueueDequeue()
	metrics.UpdateWorkerActiveCount(1)
	start := time.Now()
	defer func() {
		metrics.UpdateWorkerActiveCount(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	settlement, err := w.settler.Settle(ctx, job.MarketID)
	if err != nil {
		metrics.RecordSettlementError()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "settle")
		return fmt.Errorf("settle market %s: %w", job.MarketID, err)
	}

	if err := w.recorder.SaveSettlement(ctx, settlement); err != nil {
		metrics.RecordSettlementError()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "persist")
		return fmt.Errorf("save settlement %s: %w", job.MarketID, err)
	}

	var paid float64
	for _, r := range settlement.Results {
		paid += r.Payout
	}
	metrics.RecordSettlement()
	metrics.RecordPayout(paid)

	w.opts.logger.Info(ctx, "market settled",
		logger.String("market_id", job.MarketID),
		logger.Int("entries", len(settlement.Results)),
		logger.Float64("pot", settlement.Pot),
		logger.Float64("paid", paid),
		logger.Duration("queued_for", start.Sub(job.RequestedAt)),
	)
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool. A non-positive workerCount uses runtime.NumCPU().
func NewPool(workerCount int, q Queue, settler Settler, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  o.logger.Named("worker-pool"),
	}
	for i := range p.workers {
		workerOpts := append(append([]Option(nil), opts...), WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(q, settler, recorder, workerOpts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start runs every worker in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Stop signals every worker to stop after its current job and waits for them.
func (p *Pool) Stop(ctx context.Context) error {
	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil && firstErr == nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			firstErr = err
		}
	}
	return firstErr
}

// Shutdown closes the queue, lets the workers drain what is pending and
// waits for them until ctx expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			return p.Stop(ctx)
		}
	}
	p.logger.Info(ctx, "worker pool drained")
	return nil
}
