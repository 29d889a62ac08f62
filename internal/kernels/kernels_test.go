package kernels

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/spectrum"
	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

var planck = types.Model{Name: "planck", OmegaM: 0.31, OmegaCC: 0.69, H: 0.68}

func powerLaw(t *testing.T) *spectrum.Table {
	t.Helper()
	tab := &spectrum.Table{}
	for i := 0; i <= 40; i++ {
		k := math.Pow(10, -3+0.1*float64(i))
		tab.K = append(tab.K, k)
		tab.P = append(tab.P, 1e4*k/(1+math.Pow(k/0.02, 2.5)))
	}
	require.NoError(t, tab.Validate())
	return tab
}

func TestGrowthNormalisation(t *testing.T) {
	var r Reference

	g0, err := r.Growth(planck, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, g0.D, 1e-12)
	assert.InDelta(t, math.Pow(0.31, 0.55), g0.F, 1e-12)

	g1, err := r.Growth(planck, 1)
	require.NoError(t, err)
	assert.Less(t, g1.D, g0.D)
	assert.Greater(t, g1.F, g0.F, "matter dominates at higher z")

	// Einstein-de Sitter: D = a, f = 1
	eds, err := r.Growth(types.Model{OmegaM: 1}, 3)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, eds.D, 1e-12)
	assert.InDelta(t, 1.0, eds.F, 1e-12)

	_, err = r.Growth(planck, -0.5)
	assert.Error(t, err)
}

func TestLoopIntegrals(t *testing.T) {
	var r Reference
	pk := powerLaw(t)

	li, err := r.LoopIntegrals(pk, 0.1, 1.0, 1e-3)
	require.NoError(t, err)
	assert.Greater(t, li.Delta22, 0.0)
	assert.Less(t, li.Delta13, 0.0)
	assert.InDelta(t, 98.0/9.0*li.Delta22, 14.0/3.0*li.RSD22, 1e-9*li.RSD22)

	again, err := r.LoopIntegrals(pk, 0.1, 1.0, 1e-3)
	require.NoError(t, err)
	assert.Equal(t, li, again, "kernels are deterministic")

	_, err = r.LoopIntegrals(pk, 0.1, 0.01, 0.1)
	assert.Error(t, err)
	_, err = r.LoopIntegrals(pk, 0.1, 1e3, 50)
	assert.ErrorIs(t, err, ErrEmptyRange)
}

func TestKaiserLimit(t *testing.T) {
	var r Reference
	g := Growth{D: 1, F: 0.5}

	pk, err := r.OneLoop(100, g, LoopIntegrals{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, pk.DD.Tree)
	assert.Equal(t, 0.0, pk.DD.Loop)

	m, err := r.Multipoles(0.1, g, pk, XY{})
	require.NoError(t, err)

	f := g.F
	assert.InDelta(t, (1+2*f/3+f*f/5)*100, m.P0SPT.Tree, 1e-9)
	assert.InDelta(t, (4*f/3+4*f*f/7)*100, m.P2SPT.Tree, 1e-9)
	assert.InDelta(t, 8*f*f/35*100, m.P4SPT.Tree, 1e-9)
	assert.Equal(t, m.P0SPT, m.P0, "no damping without displacement")
}

func TestResummationDamps(t *testing.T) {
	var r Reference
	pk := powerLaw(t)

	xy, err := r.MatsubaraXY(pk, 0.2)
	require.NoError(t, err)
	sigma2 := xy.X + xy.Y
	assert.Greater(t, sigma2, 0.0)

	g := Growth{D: 0.8, F: 0.7}
	one, err := r.OneLoop(50, g, LoopIntegrals{})
	require.NoError(t, err)
	m, err := r.Multipoles(0.2, g, one, xy)
	require.NoError(t, err)

	want := math.Exp(-0.04 * g.D * g.D * sigma2)
	assert.InDelta(t, want*m.P0SPT.Total(), m.P0.Total(), 1e-9)
	assert.Less(t, m.P0.Total(), m.P0SPT.Total())

	_, err = r.MatsubaraXY(pk, 1e-4)
	assert.ErrorIs(t, err, ErrEmptyRange)
}

func TestWindows(t *testing.T) {
	pk := powerLaw(t)

	tests := []struct {
		name     string
		uv, ir   float64
		lo, hi   float64
		wantOpen bool
	}{
		{"inside", 1, 0.01, 0.01, 1, true},
		{"clipped both ends", 100, 1e-5, pk.Min(), pk.Max(), true},
		{"above table", 100, 50, 50, pk.Max(), false},
		{"below table", 1e-4, 1e-5, pk.Min(), 1e-4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, ok := LoopWindow(pk, tt.uv, tt.ir)
			assert.Equal(t, tt.wantOpen, ok)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}

	_, hi, ok := ResumWindow(pk, 0.2)
	assert.True(t, ok)
	assert.Equal(t, 0.2, hi)
	_, _, ok = ResumWindow(pk, pk.Min())
	assert.False(t, ok)
}
