// ============================================================================
// LSSEFT Workload - work-list builder
// ============================================================================
//
// Package: internal/workload
// File: builder.go
// Purpose: Cross the configuration grid into work items for one kind,
//          keeping only what the resolver reports as missing.
//
// Dependencies between phases:
//   one_loop_pk   reads growth and loop integrals
//   multipole_pk  reads growth, one-loop spectra and Matsubara XY
//   These are loaded from the store while building, so workers receive
//   self-contained items.
//
// Grid filtering:
//   Wavenumbers outside the tabulated spectrum, cutoff pairs with IR >= UV
//   or with no overlap with the table, and resummation scales at or below
//   the table minimum are skipped, both when building and when counting.
//
// ============================================================================

package workload

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/cache"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/cfgdb"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/kernels"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/logger"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/spectrum"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/tasks"
	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

// Grid is the tokenized configuration of one run.
type Grid struct {
	Model    types.ModelToken
	Params   types.Model
	Pk       types.PkToken
	Spectrum *spectrum.Table

	K     *cfgdb.Database[types.KToken]
	UV    *cfgdb.Database[types.UVToken]
	IR    *cfgdb.Database[types.IRToken]
	Resum *cfgdb.Database[types.ResumToken]
	Z     *cfgdb.Database[types.ZToken]
}

// Reader loads stored results.
type Reader interface {
	Get(ctx context.Context, relation string, key types.Key, out any) error
}

// Builder produces work lists.
type Builder struct {
	grid     Grid
	resolver *cache.Resolver
	reader   Reader
	log      *zap.Logger
}

// NewBuilder creates a builder over grid.
func NewBuilder(grid Grid, resolver *cache.Resolver, reader Reader) *Builder {
	return &Builder{grid: grid, resolver: resolver, reader: reader, log: logger.Named("workload")}
}

type loopPoint struct {
	key       types.Key
	k, uv, ir float64
}

// loops enumerates usable (k, UV, IR) combinations in value order.
func (b *Builder) loops() []loopPoint {
	var out []loopPoint
	for _, k := range b.grid.K.Records() {
		if k.Value() < b.grid.Spectrum.Min() || k.Value() > b.grid.Spectrum.Max() {
			continue
		}
		for _, uv := range b.grid.UV.Records() {
			for _, ir := range b.grid.IR.Records() {
				if ir.Value() >= uv.Value() {
					continue
				}
				if _, _, ok := kernels.LoopWindow(b.grid.Spectrum, uv.Value(), ir.Value()); !ok {
					continue
				}
				out = append(out, loopPoint{
					key: types.Key{
						Model: b.grid.Model,
						Pk:    b.grid.Pk,
						K:     k.Token(),
						UV:    uv.Token(),
						IR:    ir.Token(),
					},
					k:  k.Value(),
					uv: uv.Value(),
					ir: ir.Value(),
				})
			}
		}
	}
	return out
}

// resums lists the resummation scales that leave a non-empty window.
func (b *Builder) resums() []types.ResumToken {
	var out []types.ResumToken
	for _, r := range b.grid.Resum.Records() {
		if _, _, ok := kernels.ResumWindow(b.grid.Spectrum, r.Value()); ok {
			out = append(out, r.Token())
		}
	}
	return out
}

// Required lists every tuple kind must hold for this grid.
func (b *Builder) Required(kind protocol.Kind) ([]types.Key, error) {
	var keys []types.Key
	switch kind {
	case tasks.KindGrowth:
		for _, z := range b.grid.Z.Tokens() {
			keys = append(keys, types.Key{Model: b.grid.Model, Z: z})
		}
	case tasks.KindLoopIntegral:
		for _, lp := range b.loops() {
			keys = append(keys, lp.key)
		}
	case tasks.KindOneLoop:
		for _, lp := range b.loops() {
			for _, z := range b.grid.Z.Tokens() {
				keys = append(keys, lp.key.WithZ(z))
			}
		}
	case tasks.KindMatsubaraXY:
		for _, r := range b.resums() {
			keys = append(keys, b.xyKey(r))
		}
	case tasks.KindMultipole:
		for _, lp := range b.loops() {
			for _, r := range b.resums() {
				fixed := lp.key
				fixed.Resum = r
				for _, z := range b.grid.Z.Tokens() {
					keys = append(keys, fixed.WithZ(z))
				}
			}
		}
	default:
		return nil, fmt.Errorf("unknown work kind %d", kind)
	}
	return keys, nil
}

func (b *Builder) xyKey(r types.ResumToken) types.Key {
	return types.Key{Model: b.grid.Model, Pk: b.grid.Pk, Resum: r}
}

// Build resolves kind against the store and returns the items still to compute.
func (b *Builder) Build(ctx context.Context, kind protocol.Kind) ([]protocol.Keyed, error) {
	var (
		items []protocol.Keyed
		err   error
	)
	switch kind {
	case tasks.KindGrowth:
		items, err = b.growth(ctx)
	case tasks.KindLoopIntegral:
		items, err = b.loopIntegrals(ctx)
	case tasks.KindOneLoop:
		items, err = b.oneLoop(ctx)
	case tasks.KindMatsubaraXY:
		items, err = b.matsubaraXY(ctx)
	case tasks.KindMultipole:
		items, err = b.multipoles(ctx)
	default:
		return nil, fmt.Errorf("unknown work kind %d", kind)
	}
	if err != nil {
		return nil, err
	}
	b.log.Debug("built work list", zap.Uint8("kind", uint8(kind)), zap.Int("items", len(items)))
	return items, nil
}

func (b *Builder) growth(ctx context.Context) ([]protocol.Keyed, error) {
	fixed := types.Key{Model: b.grid.Model}
	zs, err := b.resolver.MissingRedshiftsFor(ctx, tasks.GrowthFamily, fixed, b.grid.Z.Tokens())
	if err != nil {
		return nil, err
	}
	if len(zs) == 0 {
		return nil, nil
	}

	item := tasks.GrowthItem{Model: b.grid.Model, Params: b.grid.Params}
	for _, z := range zs {
		v, err := b.grid.Z.Value(z)
		if err != nil {
			return nil, err
		}
		item.Redshifts = append(item.Redshifts, tasks.Redshift{Token: z, Value: v})
	}
	return []protocol.Keyed{item}, nil
}

func (b *Builder) loopIntegrals(ctx context.Context) ([]protocol.Keyed, error) {
	points := b.loops()
	required := make([]types.Key, len(points))
	for i, lp := range points {
		required[i] = lp.key
	}
	missing, err := b.resolver.MissingFor(ctx, tasks.LoopIntegralFamily, required)
	if err != nil {
		return nil, err
	}

	var items []protocol.Keyed
	for _, lp := range points {
		if !missing.Has(lp.key) {
			continue
		}
		items = append(items, tasks.LoopIntegralItem{
			Tuple:    lp.key,
			K:        lp.k,
			UV:       lp.uv,
			IR:       lp.ir,
			Spectrum: *b.grid.Spectrum,
		})
	}
	return items, nil
}

func (b *Builder) oneLoop(ctx context.Context) ([]protocol.Keyed, error) {
	required, err := b.Required(tasks.KindOneLoop)
	if err != nil {
		return nil, err
	}
	missing, err := b.resolver.MissingFor(ctx, tasks.OneLoopFamily, required)
	if err != nil {
		return nil, err
	}

	growth := make(map[types.ZToken]kernels.Growth)
	var items []protocol.Keyed
	for _, key := range missing.Sorted() {
		g, err := b.cachedGrowth(ctx, growth, key.Z)
		if err != nil {
			return nil, err
		}
		li, err := b.loadIntegrals(ctx, key.WithoutZ())
		if err != nil {
			return nil, err
		}
		k, err := b.grid.K.Value(key.K)
		if err != nil {
			return nil, err
		}
		tree, err := b.grid.Spectrum.At(k)
		if err != nil {
			return nil, err
		}
		items = append(items, tasks.OneLoopItem{Tuple: key, TreeP: tree, Growth: g, Integrals: li})
	}
	return items, nil
}

func (b *Builder) matsubaraXY(ctx context.Context) ([]protocol.Keyed, error) {
	required, err := b.Required(tasks.KindMatsubaraXY)
	if err != nil {
		return nil, err
	}
	missing, err := b.resolver.MissingFor(ctx, tasks.MatsubaraXYFamily, required)
	if err != nil {
		return nil, err
	}

	var items []protocol.Keyed
	for _, key := range missing.Sorted() {
		v, err := b.grid.Resum.Value(key.Resum)
		if err != nil {
			return nil, err
		}
		items = append(items, tasks.MatsubaraXYItem{Tuple: key, Resum: v, Spectrum: *b.grid.Spectrum})
	}
	return items, nil
}

func (b *Builder) multipoles(ctx context.Context) ([]protocol.Keyed, error) {
	growth := make(map[types.ZToken]kernels.Growth)
	xy := make(map[types.ResumToken]kernels.XY)
	zs := b.grid.Z.Tokens()
	resums := b.resums()

	var items []protocol.Keyed
	for _, lp := range b.loops() {
		for _, r := range resums {
			fixed := lp.key
			fixed.Resum = r
			missing, err := b.resolver.MissingRedshiftsFor(ctx, tasks.MultipoleFamily, fixed, zs)
			if err != nil {
				return nil, err
			}
			if len(missing) == 0 {
				continue
			}

			disp, ok := xy[r]
			if !ok {
				if err := b.reader.Get(ctx, tasks.RelMatsubaraXY, b.xyKey(r), &disp); err != nil {
					return nil, fmt.Errorf("multipoles need Matsubara XY: %w", err)
				}
				xy[r] = disp
			}

			for _, z := range missing {
				g, err := b.cachedGrowth(ctx, growth, z)
				if err != nil {
					return nil, err
				}
				pk, err := b.loadOneLoop(ctx, lp.key.WithZ(z))
				if err != nil {
					return nil, err
				}
				items = append(items, tasks.MultipoleItem{
					Tuple:  fixed.WithZ(z),
					K:      lp.k,
					Growth: g,
					Pk:     pk,
					XY:     disp,
				})
			}
		}
	}
	return items, nil
}
