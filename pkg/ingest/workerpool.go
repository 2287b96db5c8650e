package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Job is a unit of work submitted to the WorkerPool.
type Job func(ctx context.Context) error

// WorkerPool runs jobs on a fixed number of goroutines. Composition is CPU
// bound, so the pool is sized to the cores the caller wants to spend.
type WorkerPool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	workers int
	logger  zerolog.Logger

	closeMu sync.Mutex
	closed  bool
	quit    chan struct{}
	senders sync.WaitGroup
}

// NewWorkerPool creates a pool with the given number of workers and job
// queue capacity.
func NewWorkerPool(workers, queue int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 2
	}
	return &WorkerPool{
		jobs:    make(chan Job, queue),
		workers: workers,
		logger:  zerolog.Nop(),
		quit:    make(chan struct{}),
	}
}

// WithLogger sets the logger used for failed jobs.
func (p *WorkerPool) WithLogger(l zerolog.Logger) *WorkerPool {
	p.logger = l
	return p
}

// Start launches the workers. They exit when ctx is done or the pool is
// closed and drained.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					if err := p.run(ctx, job); err != nil {
						p.logger.Debug().Int("worker", worker).Err(err).Msg("job failed")
					}
				}
			}
		}(i)
	}
}

// run executes job, turning a panic into an error so one bad input does not
// take the process down.
func (p *WorkerPool) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx)
}

// Submit enqueues a job, blocking while the queue is full.
func (p *WorkerPool) Submit(job Job) error {
	return p.SubmitCtx(context.Background(), job)
}

// SubmitCtx enqueues a job but gives up when ctx is done or the pool is
// closed while waiting for queue space.
func (p *WorkerPool) SubmitCtx(ctx context.Context, job Job) error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return ErrPoolClosed
	}
	p.senders.Add(1)
	p.closeMu.Unlock()
	defer p.senders.Done()

	select {
	case p.jobs <- job:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, lets the workers drain the queue and waits for
// them to finish. Blocked submitters return ErrPoolClosed.
func (p *WorkerPool) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.quit)
	p.closeMu.Unlock()

	p.senders.Wait()
	close(p.jobs)
	p.wg.Wait()
}

// ErrPoolClosed is returned if a Submit is attempted after Close.
var ErrPoolClosed = &PoolError{"worker pool closed"}

// PoolError is the error type for pool operations.
type PoolError struct{ msg string }

func (e *PoolError) Error() string { return e.msg }
