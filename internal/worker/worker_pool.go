// ============================================================================
// LSSEFT Worker Pool - in-process workers
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Purpose: Run N workers as goroutines on an in-process network.
//
// Lifecycle:
//   1. NewPool(network, table) - bind to ranks 1..N of the network
//   2. Start(ctx)              - launch one goroutine per worker
//   3. Wait()                  - block until every worker returned
//
// Errors:
//   The first worker error cancels the remaining workers and is returned by
//   Wait. Workers that receive Terminate return nil.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/transport"
)

var (
	// ErrPoolStarted is returned when Start is called twice.
	ErrPoolStarted = errors.New("worker pool already started")
	// ErrPoolNotStarted is returned by Wait before Start.
	ErrPoolNotStarted = errors.New("worker pool not started")
)

// Pool owns the in-process workers of a standalone run.
type Pool struct {
	network *transport.Network
	table   *protocol.Table
	workers []*Worker

	mu      sync.Mutex
	group   *errgroup.Group
	started bool
}

// NewPool creates one worker per non-master rank of network.
func NewPool(network *transport.Network, table *protocol.Table) *Pool {
	size := network.Endpoint(transport.MasterRank).Size()
	p := &Pool{network: network, table: table}
	for r := 1; r < size; r++ {
		p.workers = append(p.workers, New(network.Endpoint(r), table))
	}
	return p
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrPoolStarted
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
	p.group = g
	p.started = true
	return nil
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() error {
	p.mu.Lock()
	g := p.group
	p.mu.Unlock()
	if g == nil {
		return ErrPoolNotStarted
	}
	return g.Wait()
}

// Size is the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Computed sums the items finished by every worker. Call after Wait.
func (p *Pool) Computed() int {
	n := 0
	for _, w := range p.workers {
		n += w.Computed()
	}
	return n
}
