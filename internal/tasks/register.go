package tasks

import (
	"context"
	"fmt"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/kernels"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
)

// NewTable registers every kind against k.
func NewTable(k kernels.Kernels) (*protocol.Table, error) {
	return protocol.NewTable(
		protocol.Register(KindGrowth, GrowthFamily.Name, growth(k)),
		protocol.Register(KindLoopIntegral, LoopIntegralFamily.Name, loopIntegral(k)),
		protocol.Register(KindOneLoop, OneLoopFamily.Name, oneLoop(k)),
		protocol.Register(KindMatsubaraXY, MatsubaraXYFamily.Name, matsubaraXY(k)),
		protocol.Register(KindMultipole, MultipoleFamily.Name, multipole(k)),
	)
}

func growth(k kernels.Kernels) protocol.ComputeFunc[GrowthItem, GrowthResult] {
	return func(ctx context.Context, it GrowthItem) (GrowthResult, error) {
		res := GrowthResult{Model: it.Model, Points: make([]GrowthPoint, 0, len(it.Redshifts))}
		for _, z := range it.Redshifts {
			if err := ctx.Err(); err != nil {
				return GrowthResult{}, err
			}
			g, err := k.Growth(it.Params, z.Value)
			if err != nil {
				return GrowthResult{}, fmt.Errorf("growth at z=%g: %w", z.Value, err)
			}
			res.Points = append(res.Points, GrowthPoint{Z: z.Token, Growth: g})
		}
		return res, nil
	}
}

func loopIntegral(k kernels.Kernels) protocol.ComputeFunc[LoopIntegralItem, LoopIntegralResult] {
	return func(_ context.Context, it LoopIntegralItem) (LoopIntegralResult, error) {
		li, err := k.LoopIntegrals(&it.Spectrum, it.K, it.UV, it.IR)
		if err != nil {
			return LoopIntegralResult{}, err
		}
		return LoopIntegralResult{Tuple: it.Tuple, Integrals: li}, nil
	}
}

func oneLoop(k kernels.Kernels) protocol.ComputeFunc[OneLoopItem, OneLoopResult] {
	return func(_ context.Context, it OneLoopItem) (OneLoopResult, error) {
		pk, err := k.OneLoop(it.TreeP, it.Growth, it.Integrals)
		if err != nil {
			return OneLoopResult{}, err
		}
		return OneLoopResult{Tuple: it.Tuple, Pk: pk}, nil
	}
}

func matsubaraXY(k kernels.Kernels) protocol.ComputeFunc[MatsubaraXYItem, MatsubaraXYResult] {
	return func(_ context.Context, it MatsubaraXYItem) (MatsubaraXYResult, error) {
		xy, err := k.MatsubaraXY(&it.Spectrum, it.Resum)
		if err != nil {
			return MatsubaraXYResult{}, err
		}
		return MatsubaraXYResult{Tuple: it.Tuple, XY: xy}, nil
	}
}

func multipole(k kernels.Kernels) protocol.ComputeFunc[MultipoleItem, MultipoleResult] {
	return func(_ context.Context, it MultipoleItem) (MultipoleResult, error) {
		m, err := k.Multipoles(it.K, it.Growth, it.Pk, it.XY)
		if err != nil {
			return MultipoleResult{}, err
		}
		return MultipoleResult{Tuple: it.Tuple, Multipoles: m}, nil
	}
}
