package pool

import (
	"context"
	"sync"
	"sync/atomic"
)

// Pool runs jobs on a fixed set of workers. Jobs still queued when ctx is
// done are dropped without running.
type Pool struct {
	ctx     context.Context
	jobs    chan func(context.Context)
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func New(ctx context.Context, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		ctx:  ctx,
		jobs: make(chan func(context.Context), workers*2),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for f := range p.jobs {
		if f == nil {
			continue
		}
		if p.ctx.Err() != nil {
			p.dropped.Add(1)
			continue
		}
		f(p.ctx)
	}
}

func (p *Pool) Submit(f func(context.Context)) {
	p.jobs <- f
}

// Wait stops accepting jobs, waits for the workers and returns the number
// of jobs that were dropped.
func (p *Pool) Wait() int {
	close(p.jobs)
	p.wg.Wait()
	return int(p.dropped.Load())
}
