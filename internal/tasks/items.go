package tasks

import (
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/kernels"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/spectrum"
	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

// Row is one relation entry produced by a result.
type Row struct {
	Relation string
	Key      types.Key
	Value    any
}

// Persistable results know how they are stored.
type Persistable interface {
	Rows() []Row
}

// Redshift pairs a token with its value.
type Redshift struct {
	Token types.ZToken
	Value float64
}

// GrowthItem asks for D and f of one model at several redshifts.
type GrowthItem struct {
	Model     types.ModelToken
	Params    types.Model
	Redshifts []Redshift
}

func (i GrowthItem) Key() types.Key { return types.Key{Model: i.Model} }

// GrowthPoint is D and f at one redshift.
type GrowthPoint struct {
	Z      types.ZToken
	Growth kernels.Growth
}

type GrowthResult struct {
	Model  types.ModelToken
	Points []GrowthPoint
}

func (r GrowthResult) Key() types.Key { return types.Key{Model: r.Model} }

func (r GrowthResult) Rows() []Row {
	rows := make([]Row, 0, 2*len(r.Points))
	for _, p := range r.Points {
		key := types.Key{Model: r.Model, Z: p.Z}
		rows = append(rows,
			Row{Relation: RelGrowthFactor, Key: key, Value: p.Growth.D},
			Row{Relation: RelGrowthRate, Key: key, Value: p.Growth.F},
		)
	}
	return rows
}

// LoopIntegralItem asks for the loop coefficients at one (k, UV, IR).
type LoopIntegralItem struct {
	Tuple    types.Key
	K        float64
	UV       float64
	IR       float64
	Spectrum spectrum.Table
}

func (i LoopIntegralItem) Key() types.Key { return i.Tuple }

type LoopIntegralResult struct {
	Tuple     types.Key
	Integrals kernels.LoopIntegrals
}

func (r LoopIntegralResult) Key() types.Key { return r.Tuple }

func (r LoopIntegralResult) Rows() []Row {
	return []Row{
		{Relation: RelDelta22, Key: r.Tuple, Value: r.Integrals.Delta22},
		{Relation: RelDelta13, Key: r.Tuple, Value: r.Integrals.Delta13},
		{Relation: RelRSD22, Key: r.Tuple, Value: r.Integrals.RSD22},
		{Relation: RelRSD13, Key: r.Tuple, Value: r.Integrals.RSD13},
	}
}

// OneLoopItem carries everything the one-loop spectrum needs.
type OneLoopItem struct {
	Tuple     types.Key
	TreeP     float64
	Growth    kernels.Growth
	Integrals kernels.LoopIntegrals
}

func (i OneLoopItem) Key() types.Key { return i.Tuple }

type OneLoopResult struct {
	Tuple types.Key
	Pk    kernels.OneLoopPk
}

func (r OneLoopResult) Key() types.Key { return r.Tuple }

func (r OneLoopResult) Rows() []Row {
	return []Row{
		{Relation: RelPkDD, Key: r.Tuple, Value: r.Pk.DD},
		{Relation: RelPkMu0, Key: r.Tuple, Value: r.Pk.Mu0},
		{Relation: RelPkMu2, Key: r.Tuple, Value: r.Pk.Mu2},
		{Relation: RelPkMu4, Key: r.Tuple, Value: r.Pk.Mu4},
	}
}

// MatsubaraXYItem asks for X and Y at one resummation scale.
type MatsubaraXYItem struct {
	Tuple    types.Key
	Resum    float64
	Spectrum spectrum.Table
}

func (i MatsubaraXYItem) Key() types.Key { return i.Tuple }

type MatsubaraXYResult struct {
	Tuple types.Key
	XY    kernels.XY
}

func (r MatsubaraXYResult) Key() types.Key { return r.Tuple }

func (r MatsubaraXYResult) Rows() []Row {
	return []Row{{Relation: RelMatsubaraXY, Key: r.Tuple, Value: r.XY}}
}

// MultipoleItem carries the one-loop spectrum, growth and XY of one tuple.
type MultipoleItem struct {
	Tuple  types.Key
	K      float64
	Growth kernels.Growth
	Pk     kernels.OneLoopPk
	XY     kernels.XY
}

func (i MultipoleItem) Key() types.Key { return i.Tuple }

type MultipoleResult struct {
	Tuple      types.Key
	Multipoles kernels.Multipoles
}

func (r MultipoleResult) Key() types.Key { return r.Tuple }

func (r MultipoleResult) Rows() []Row {
	m := r.Multipoles
	return []Row{
		{Relation: RelP0, Key: r.Tuple, Value: m.P0},
		{Relation: RelP2, Key: r.Tuple, Value: m.P2},
		{Relation: RelP4, Key: r.Tuple, Value: m.P4},
		{Relation: RelP0SPT, Key: r.Tuple, Value: m.P0SPT},
		{Relation: RelP2SPT, Key: r.Tuple, Value: m.P2SPT},
		{Relation: RelP4SPT, Key: r.Tuple, Value: m.P4SPT},
	}
}
