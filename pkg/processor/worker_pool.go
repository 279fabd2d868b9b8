// Package processor runs a whole worker group inside one process, one
// goroutine per rank, wired together with an in-process transport.
package processor

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"go-blur-halo/pkg/comm"
	"go-blur-halo/pkg/coordinator"
)

// WorkerPool is a fixed-size group of in-process workers.
type WorkerPool struct {
	numWorkers int
	cfg        coordinator.Config
	verbose    bool
	states     []coordinator.State
}

func NewWorkerPool(numWorkers int, cfg coordinator.Config) *WorkerPool {
	return &WorkerPool{numWorkers: numWorkers, cfg: cfg}
}

// Verbose routes every worker's log to stderr with a rank prefix.
func (wp *WorkerPool) Verbose(v bool) *WorkerPool {
	wp.verbose = v
	return wp
}

func (wp *WorkerPool) logger(rank int) *log.Logger {
	if rank == coordinator.Root && wp.cfg.Logger != nil {
		return wp.cfg.Logger
	}
	if !wp.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, fmt.Sprintf("[rank %d] ", rank), log.LstdFlags)
}

// Run starts every worker and waits for all of them. The first failure
// cancels the rest of the group. The root's result is returned.
func (wp *WorkerPool) Run(ctx context.Context) (*coordinator.Result, error) {
	if wp.numWorkers < 1 {
		return nil, fmt.Errorf("worker pool: %d workers: %w", wp.numWorkers, comm.ErrPeerRange)
	}

	group := comm.NewLocalGroup(wp.numWorkers)
	defer group.Shutdown()

	workers := make([]*coordinator.Worker, wp.numWorkers)
	for rank := range workers {
		c, err := group.Comm(rank)
		if err != nil {
			return nil, err
		}
		cfg := wp.cfg
		cfg.Logger = wp.logger(rank)
		workers[rank] = coordinator.NewWorker(c, cfg)
	}

	g, ctx := errgroup.WithContext(ctx)
	results := make([]*coordinator.Result, wp.numWorkers)
	errs := make([]error, wp.numWorkers)
	for rank, w := range workers {
		rank, w := rank, w
		g.Go(func() error {
			res, err := w.Run(ctx)
			results[rank] = res
			if err != nil {
				errs[rank] = fmt.Errorf("worker %d: %w", rank, err)
			}
			return errs[rank]
		})
	}
	err := g.Wait()

	wp.states = make([]coordinator.State, wp.numWorkers)
	for rank, w := range workers {
		wp.states[rank] = w.State()
	}
	// The root's error names the cause; the others only saw the abort.
	if errs[coordinator.Root] != nil {
		return nil, errs[coordinator.Root]
	}
	if err != nil {
		return nil, err
	}
	return results[coordinator.Root], nil
}

// States reports the final state of every worker after Run.
func (wp *WorkerPool) States() []coordinator.State {
	return wp.states
}
