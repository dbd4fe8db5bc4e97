// Package worker runs background jobs on a fixed number of goroutines.
package worker

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrClosed    = errors.New("worker pool is closed")
)

type Job func(ctx context.Context)

// Pool bounds how many jobs run at once. Submit never blocks: when the queue
// is full the job is refused.
type Pool struct {
	jobs   chan Job
	ctx    context.Context
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts workers goroutines reading from a queue of queueSize. Jobs
// receive ctx, which should outlive any single request.
func New(ctx context.Context, workers, queueSize int, logger zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		jobs:   make(chan Job, queueSize),
		ctx:    ctx,
		logger: logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop(i)
	}
	return p
}

func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) loop(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(id, job)
	}
}

func (p *Pool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Int("worker", id).Interface("panic", r).Msg("job panicked")
		}
	}()
	job(p.ctx)
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending is the number of queued jobs not yet picked up.
func (p *Pool) Pending() int {
	return len(p.jobs)
}
