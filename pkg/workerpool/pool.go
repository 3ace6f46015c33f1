// Package workerpool runs console programs concurrently with a bound on
// how many children are alive at once.
package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sibikrish3000/conrelay/pkg/console"
	"golang.org/x/sync/errgroup"
)

// ErrShutdown is returned by Submit after Shutdown.
var ErrShutdown = errors.New("workerpool: pool is shut down")

// Result is the outcome of one submitted job.
type Result struct {
	// Index is the submission order of the job, starting at 0.
	Index  int
	Config console.Config
	Output console.Output
	Err    error
}

// ExecutorFunc runs one job. console.Run is the default; tests inject fakes.
type ExecutorFunc func(ctx context.Context, cfg console.Config) (console.Output, error)

// Pool runs submitted jobs on at most Concurrency goroutines. Results must
// be drained while jobs are submitted.
type Pool struct {
	concurrency int
	executor    ExecutorFunc
	group       errgroup.Group
	results     chan Result
	ctx         context.Context
	cancel      context.CancelFunc

	mu        sync.RWMutex // held for writing by Shutdown
	next      atomic.Int64
	shut      bool
	closeOnce sync.Once
}

// NewPool creates a pool. A concurrency <= 0 means runtime.NumCPU(); a nil
// executor means console.Run.
func NewPool(concurrency int, executor ExecutorFunc) *Pool {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	if executor == nil {
		executor = console.Run
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		concurrency: concurrency,
		executor:    executor,
		results:     make(chan Result, concurrency*2),
		ctx:         ctx,
		cancel:      cancel,
	}
	p.group.SetLimit(concurrency)
	return p
}

// Submit queues cfg and returns its index. It blocks while all workers are
// busy.
func (p *Pool) Submit(cfg console.Config) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.shut {
		return -1, ErrShutdown
	}
	idx := int(p.next.Add(1) - 1)

	p.group.Go(func() error {
		r := Result{Index: idx, Config: cfg}
		if err := p.ctx.Err(); err != nil {
			r.Err = err
		} else {
			r.Output, r.Err = p.executor(p.ctx, cfg)
		}
		p.results <- r
		return nil
	})
	return idx, nil
}

// Results returns the channel of finished jobs, in completion order. It is
// closed by Shutdown.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown stops accepting jobs, waits for running ones and closes the
// results channel.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shut = true
	p.mu.Unlock()

	p.group.Wait()
	p.closeOnce.Do(func() { close(p.results) })
}

// Cancel aborts running jobs through their context; queued jobs finish with
// the context error without running.
func (p *Pool) Cancel() {
	p.cancel()
}
