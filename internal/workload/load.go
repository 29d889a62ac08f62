package workload

import (
	"context"
	"fmt"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/kernels"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/tasks"
	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

func (b *Builder) cachedGrowth(ctx context.Context, memo map[types.ZToken]kernels.Growth, z types.ZToken) (kernels.Growth, error) {
	if g, ok := memo[z]; ok {
		return g, nil
	}
	key := types.Key{Model: b.grid.Model, Z: z}
	var g kernels.Growth
	if err := b.reader.Get(ctx, tasks.RelGrowthFactor, key, &g.D); err != nil {
		return g, fmt.Errorf("load growth factor: %w", err)
	}
	if err := b.reader.Get(ctx, tasks.RelGrowthRate, key, &g.F); err != nil {
		return g, fmt.Errorf("load growth rate: %w", err)
	}
	memo[z] = g
	return g, nil
}

func (b *Builder) loadIntegrals(ctx context.Context, key types.Key) (kernels.LoopIntegrals, error) {
	var li kernels.LoopIntegrals
	for rel, dst := range map[string]*float64{
		tasks.RelDelta22: &li.Delta22,
		tasks.RelDelta13: &li.Delta13,
		tasks.RelRSD22:   &li.RSD22,
		tasks.RelRSD13:   &li.RSD13,
	} {
		if err := b.reader.Get(ctx, rel, key, dst); err != nil {
			return li, fmt.Errorf("load loop integrals: %w", err)
		}
	}
	return li, nil
}

func (b *Builder) loadOneLoop(ctx context.Context, key types.Key) (kernels.OneLoopPk, error) {
	var pk kernels.OneLoopPk
	for rel, dst := range map[string]*kernels.Value{
		tasks.RelPkDD:  &pk.DD,
		tasks.RelPkMu0: &pk.Mu0,
		tasks.RelPkMu2: &pk.Mu2,
		tasks.RelPkMu4: &pk.Mu4,
	} {
		if err := b.reader.Get(ctx, rel, key, dst); err != nil {
			return pk, fmt.Errorf("load one-loop spectrum: %w", err)
		}
	}
	return pk, nil
}
