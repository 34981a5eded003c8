package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type Handler func(ctx context.Context, task Task) error

// WorkerPool is the in-process queue: a buffered channel drained by a
// fixed number of workers, each task bounded by jobTimeout.
type WorkerPool struct {
	queue      chan Task
	workers    int
	jobTimeout time.Duration
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewWorkerPool(workers int, jobTimeout time.Duration, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:      make(chan Task, 128),
		workers:    workers,
		jobTimeout: jobTimeout,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *WorkerPool) Start(handler Handler) {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(handler)
		}
	})
}

// Stop stops accepting work and waits for running tasks. Tasks still in the
// buffer are dropped and stay queued until the reconciler picks them up.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *WorkerPool) Enqueue(ctx context.Context, task Task) error {
	if p.ctx.Err() != nil {
		return ErrPoolStopped
	}
	select {
	case p.queue <- task:
		return nil
	case <-p.ctx.Done():
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *WorkerPool) worker(handler Handler) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.queue:
			p.execute(handler, task)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) execute(handler Handler, task Task) {
	ctx := context.Background()
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}
	if err := handler(ctx, task); err != nil {
		p.logger.Error("task failed", slog.String("execution_id", task.ExecutionID), slog.String("error", err.Error()))
	}
}
