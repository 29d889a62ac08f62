// ============================================================================
// LSSEFT Tasks - work kinds, payloads and relation families
// ============================================================================
//
// Package: internal/tasks
// File: kinds.go
// Purpose: Bind each kind of work to its payload types, its kernel and the
//          relations its results are written to.
//
// Kinds (in phase order):
//   growth        model, z                          growth_factor, growth_rate
//   loop_integral model, pk, k, UV, IR              delta22, delta13, rsd22, rsd13
//   one_loop_pk   model, pk, k, UV, IR, z           pk_dd, pk_mu0, pk_mu2, pk_mu4
//   matsubara_xy  model, pk, resum                  matsubara_xy
//   multipole_pk  model, pk, k, UV, IR, resum, z    p0, p2, p4, p0_spt, p2_spt, p4_spt
//
// A growth item carries every missing redshift of one model, so the
// integration runs once per model.
//
// ============================================================================

package tasks

import (
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/cache"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
)

const (
	KindGrowth protocol.Kind = iota
	KindLoopIntegral
	KindOneLoop
	KindMatsubaraXY
	KindMultipole
)

// Relation names.
const (
	RelGrowthFactor = "growth_factor"
	RelGrowthRate   = "growth_rate"

	RelDelta22 = "delta22"
	RelDelta13 = "delta13"
	RelRSD22   = "rsd22"
	RelRSD13   = "rsd13"

	RelPkDD  = "pk_dd"
	RelPkMu0 = "pk_mu0"
	RelPkMu2 = "pk_mu2"
	RelPkMu4 = "pk_mu4"

	RelMatsubaraXY = "matsubara_xy"

	RelP0    = "p0"
	RelP2    = "p2"
	RelP4    = "p4"
	RelP0SPT = "p0_spt"
	RelP2SPT = "p2_spt"
	RelP4SPT = "p4_spt"
)

var (
	GrowthFamily       = cache.Family{Name: "growth", Relations: []string{RelGrowthFactor, RelGrowthRate}}
	LoopIntegralFamily = cache.Family{Name: "loop_integral", Relations: []string{RelDelta22, RelDelta13, RelRSD22, RelRSD13}}
	OneLoopFamily      = cache.Family{Name: "one_loop_pk", Relations: []string{RelPkDD, RelPkMu0, RelPkMu2, RelPkMu4}}
	MatsubaraXYFamily  = cache.Family{Name: "matsubara_xy", Relations: []string{RelMatsubaraXY}}
	MultipoleFamily    = cache.Family{Name: "multipole_pk", Relations: []string{RelP0, RelP2, RelP4, RelP0SPT, RelP2SPT, RelP4SPT}}
)

// Phases lists the kinds in execution order.
var Phases = []protocol.Kind{KindGrowth, KindLoopIntegral, KindOneLoop, KindMatsubaraXY, KindMultipole}

// FamilyOf returns the relation family written by kind.
func FamilyOf(kind protocol.Kind) (cache.Family, bool) {
	switch kind {
	case KindGrowth:
		return GrowthFamily, true
	case KindLoopIntegral:
		return LoopIntegralFamily, true
	case KindOneLoop:
		return OneLoopFamily, true
	case KindMatsubaraXY:
		return MatsubaraXYFamily, true
	case KindMultipole:
		return MultipoleFamily, true
	}
	return cache.Family{}, false
}

// AllRelations lists every relation of every family.
func AllRelations() []string {
	var out []string
	for _, k := range Phases {
		fam, _ := FamilyOf(k)
		out = append(out, fam.Relations...)
	}
	return out
}
