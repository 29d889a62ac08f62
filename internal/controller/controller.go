// ============================================================================
// LSSEFT Controller - run orchestration
// ============================================================================
//
// Package: internal/controller
// File: controller.go
// Purpose: Wire configuration, store, builder, master and workers into one
//          run, and answer status queries against the cache.
//
// Run flow:
//   1. prepare()  - load the spectrum, tokenize model, spectrum and grid
//   2. transport  - in-process network (standalone) or gRPC server (master)
//   3. drive()    - for each kind in phase order: build the missing work
//                   list, skip it when empty, otherwise run one phase
//   4. Terminate  - release every worker
//
//   Nothing is scheduled before step 1 succeeds, so a missing spectrum or an
//   unusable store ends the run without contacting workers.
//
// Standalone failure handling:
//   Master and worker pool share one errgroup. A worker error cancels the
//   master and a master error cancels the workers; the first error wins.
//
// Rerun semantics:
//   A rerun after a crash or a full run consults the cache again. Completed
//   tuples are skipped and partial ones are cleaned and recomputed.
//
// ============================================================================

package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/cache"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/cfgdb"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/config"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/kernels"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/logger"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/master"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/metrics"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/spectrum"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/store"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/tasks"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/transport"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/worker"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/workload"
	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

// ============================================================================
// Types
// ============================================================================

// Controller owns the store and the kind table of one process.
type Controller struct {
	cfg     *config.Config
	db      *store.DB
	table   *protocol.Table
	kernels kernels.Kernels
	metrics *metrics.Collector
	runID   string
	log     *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithKernels replaces the reference kernels.
func WithKernels(k kernels.Kernels) Option {
	return func(c *Controller) { c.kernels = k }
}

// WithMetrics reports scheduling and cache statistics to m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

// Summary describes a finished run.
type Summary struct {
	RunID string
	// Items is the number of items scheduled per kind name.
	Items map[string]int
	Took  time.Duration
}

// FamilyStatus is the cache state of one family.
type FamilyStatus struct {
	Family   string
	Required int
	Missing  int
}

// ============================================================================
// Lifecycle
// ============================================================================

// New opens the store and creates every result relation.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Controller, error) {
	c := &Controller{
		cfg:     cfg,
		kernels: kernels.Reference{},
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.Named("controller").With(zap.String("run", c.runID))

	table, err := tasks.NewTable(c.kernels)
	if err != nil {
		return nil, err
	}
	c.table = table

	db, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureRelations(ctx, tasks.AllRelations()...); err != nil {
		db.Close()
		return nil, err
	}
	c.db = db
	return c, nil
}

// RunID identifies this run in logs.
func (c *Controller) RunID() string { return c.runID }

// Close releases the store.
func (c *Controller) Close() error { return c.db.Close() }

// ============================================================================
// Run
// ============================================================================

// Run executes every phase over the configured transport.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	builder, err := c.prepare(ctx)
	if err != nil {
		return Summary{}, err
	}
	switch c.cfg.Transport.Mode {
	case config.ModeGRPC:
		return c.runMaster(ctx, builder)
	default:
		return c.runStandalone(ctx, builder)
	}
}

func (c *Controller) runStandalone(ctx context.Context, builder *workload.Builder) (Summary, error) {
	nw := transport.NewNetwork(c.cfg.Workers.Count)
	defer nw.Close()

	g, gctx := errgroup.WithContext(ctx)
	pool := worker.NewPool(nw, c.table)
	if err := pool.Start(gctx); err != nil {
		return Summary{}, err
	}
	g.Go(pool.Wait)

	var summary Summary
	g.Go(func() error {
		var err error
		summary, err = c.drive(gctx, nw.Endpoint(transport.MasterRank), builder)
		return err
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}
	c.log.Info("standalone run finished", zap.Int("computed", pool.Computed()))
	return summary, nil
}

func (c *Controller) runMaster(ctx context.Context, builder *workload.Builder) (Summary, error) {
	lis, err := net.Listen("tcp", c.cfg.Transport.Listen)
	if err != nil {
		return Summary{}, fmt.Errorf("listen on %s: %w", c.cfg.Transport.Listen, err)
	}
	srv := transport.NewServer(c.cfg.Workers.Count)
	defer srv.Close()
	go func() {
		if err := srv.Serve(lis); err != nil {
			c.log.Warn("transport server stopped", zap.Error(err))
		}
	}()

	c.log.Info("waiting for workers", zap.String("listen", lis.Addr().String()), zap.Int("workers", c.cfg.Workers.Count))
	if err := srv.WaitForWorkers(ctx); err != nil {
		return Summary{}, fmt.Errorf("waiting for workers: %w", err)
	}
	return c.drive(ctx, srv, builder)
}

// drive runs the phases in order on a master endpoint.
func (c *Controller) drive(ctx context.Context, ep transport.Endpoint, builder *workload.Builder) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: c.runID, Items: make(map[string]int)}

	opts := []master.Option{master.WithLogger(logger.Named("master"))}
	if c.metrics != nil {
		opts = append(opts, master.WithRecorder(c.metrics))
	}
	m := master.New(ep, c.table, tasks.StoreSink{Store: c.db}, master.Config{
		IdleTimeout: c.cfg.Workers.IdleTimeout,
		RunID:       c.runID,
	}, opts...)

	// kinds are numbered in execution order
	for _, kind := range c.table.Kinds() {
		name := c.table.Name(kind)
		items, err := builder.Build(ctx, kind)
		if err != nil {
			return summary, fmt.Errorf("build %s work list: %w", name, err)
		}
		summary.Items[name] = len(items)
		if len(items) == 0 {
			c.log.Info("nothing to compute", zap.String("kind", name))
			continue
		}
		if err := m.RunPhase(ctx, kind, items); err != nil {
			c.log.Error("phase failed", zap.String("kind", name), zap.Error(err))
			return summary, err
		}
	}

	if err := m.Terminate(ctx); err != nil {
		return summary, err
	}
	summary.Took = time.Since(start)
	return summary, nil
}

// ============================================================================
// Status
// ============================================================================

// Status counts missing tuples per family without computing or deleting.
func (c *Controller) Status(ctx context.Context) ([]FamilyStatus, error) {
	builder, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	resolver := c.resolver()

	var out []FamilyStatus
	for _, kind := range tasks.Phases {
		fam, _ := tasks.FamilyOf(kind)
		required, err := builder.Required(kind)
		if err != nil {
			return nil, err
		}
		n, err := resolver.CountMissing(ctx, fam, required)
		if err != nil {
			return nil, err
		}
		out = append(out, FamilyStatus{Family: fam.Name, Required: len(required), Missing: n})
	}
	return out, nil
}

// ============================================================================
// Preparation
// ============================================================================

// ErrSpectrumUnavailable reports an unreadable or invalid spectrum file.
var ErrSpectrumUnavailable = errors.New("power spectrum unavailable")

func (c *Controller) resolver() *cache.Resolver {
	opts := []cache.Option{}
	if c.metrics != nil {
		opts = append(opts, cache.WithRecorder(c.metrics))
	}
	return cache.NewResolver(c.db, opts...)
}

// prepare tokenizes the configuration and returns a builder over it.
func (c *Controller) prepare(ctx context.Context) (*workload.Builder, error) {
	pk, err := spectrum.Load(c.cfg.Spectrum.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpectrumUnavailable, err)
	}

	grid := workload.Grid{Params: c.cfg.Model.Params(), Spectrum: pk}
	if grid.Model, err = c.db.TokenizeModel(ctx, grid.Params); err != nil {
		return nil, err
	}
	if grid.Pk, err = c.db.TokenizeSpectrum(ctx, pk.FingerprintHex(), c.cfg.Spectrum.Path); err != nil {
		return nil, err
	}

	axes := c.cfg.Grid.Axes()
	values := func(dim types.Dimension) []float64 {
		v, _ := axes[dim].Values()
		return v
	}
	if grid.K, err = cfgdb.Build[types.KToken](ctx, c.db, types.DimWavenumber, values(types.DimWavenumber)); err != nil {
		return nil, err
	}
	if grid.UV, err = cfgdb.Build[types.UVToken](ctx, c.db, types.DimUVCutoff, values(types.DimUVCutoff)); err != nil {
		return nil, err
	}
	if grid.IR, err = cfgdb.Build[types.IRToken](ctx, c.db, types.DimIRCutoff, values(types.DimIRCutoff)); err != nil {
		return nil, err
	}
	if grid.Resum, err = cfgdb.Build[types.ResumToken](ctx, c.db, types.DimResum, values(types.DimResum)); err != nil {
		return nil, err
	}
	if grid.Z, err = cfgdb.Build[types.ZToken](ctx, c.db, types.DimRedshift, values(types.DimRedshift)); err != nil {
		return nil, err
	}

	c.log.Info("configuration tokenized",
		zap.Uint32("model", uint32(grid.Model)),
		zap.Uint32("pk", uint32(grid.Pk)),
		zap.Int("k", grid.K.Len()),
		zap.Int("uv", grid.UV.Len()),
		zap.Int("ir", grid.IR.Len()),
		zap.Int("resum", grid.Resum.Len()),
		zap.Int("z", grid.Z.Len()))

	return workload.NewBuilder(grid, c.resolver(), c.db), nil
}

// ============================================================================
// Remote worker
// ============================================================================

// RunWorker connects to a gRPC master and serves assignments until Terminate.
func RunWorker(ctx context.Context, addr string, k kernels.Kernels) error {
	table, err := tasks.NewTable(k)
	if err != nil {
		return err
	}
	client, err := transport.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("connected to master", zap.String("master", addr), zap.Int("rank", client.Rank()))
	w := worker.New(client, table)
	if err := w.Run(ctx); err != nil {
		return err
	}
	logger.Info("worker finished", zap.Int("computed", w.Computed()))
	return nil
}
