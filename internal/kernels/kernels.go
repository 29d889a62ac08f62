// ============================================================================
// LSSEFT Kernels - physics compute functions
// ============================================================================
//
// Package: internal/kernels
// File: kernels.go
// Purpose: The numerical kernels invoked by workers, behind one interface.
//
// Reference implementation:
//   Reference evaluates deterministic closed forms:
//   - growth:     Carroll-Press-Turner D(z) normalised to D(0)=1, f = Omega_m(z)^0.55
//   - loops:      trapezoid weights of P(q) between the IR and UV cutoffs
//   - one loop:   P(k,mu) = A + B mu^2 + C mu^4 with tree and loop parts
//   - XY:         Matsubara X and Y at the BAO scale up to the resummation cutoff
//   - multipoles: Legendre projection of P(k,mu), damped by exp(-k^2 Sigma^2)
//
//   Production kernels plug in by implementing Kernels.
//
// ============================================================================

package kernels

import (
	"errors"
	"fmt"
	"math"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/spectrum"
	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

// ErrEmptyRange is returned when an integration window has no overlap with the
// tabulated spectrum.
var ErrEmptyRange = errors.New("integration range is empty")

// LoopWindow clips the cutoff window [ir, uv] to the tabulated range of pk.
// ok is false when nothing of the window is left.
func LoopWindow(pk *spectrum.Table, uv, ir float64) (lo, hi float64, ok bool) {
	lo, hi = math.Max(ir, pk.Min()), math.Min(uv, pk.Max())
	return lo, hi, lo < hi
}

// ResumWindow is the range integrated for a resummation scale.
func ResumWindow(pk *spectrum.Table, resum float64) (lo, hi float64, ok bool) {
	lo, hi = pk.Min(), math.Min(resum, pk.Max())
	return lo, hi, lo < hi
}

// Growth is the linear growth factor and rate at one redshift.
type Growth struct {
	D float64
	F float64
}

// LoopIntegrals are the one-loop coefficients at one wavenumber.
type LoopIntegrals struct {
	Delta22 float64
	Delta13 float64
	RSD22   float64
	RSD13   float64
}

// Value splits a spectrum into tree and one-loop parts.
type Value struct {
	Tree float64
	Loop float64
}

// Total is tree plus loop.
func (v Value) Total() float64 { return v.Tree + v.Loop }

func (v Value) scale(s float64) Value { return Value{Tree: v.Tree * s, Loop: v.Loop * s} }

func (v Value) add(o Value) Value { return Value{Tree: v.Tree + o.Tree, Loop: v.Loop + o.Loop} }

// OneLoopPk holds the mu^0, mu^2, mu^4 coefficients of P(k, mu) plus the
// real-space density spectrum.
type OneLoopPk struct {
	DD  Value
	Mu0 Value
	Mu2 Value
	Mu4 Value
}

// XY are the Matsubara displacement integrals; Sigma^2 = X + Y.
type XY struct {
	X float64
	Y float64
}

// Multipoles are the Legendre moments, resummed and in plain SPT.
type Multipoles struct {
	P0    Value
	P2    Value
	P4    Value
	P0SPT Value
	P2SPT Value
	P4SPT Value
}

// Kernels computes every work kind. Implementations must be pure.
type Kernels interface {
	Growth(m types.Model, z float64) (Growth, error)
	LoopIntegrals(pk *spectrum.Table, k, uv, ir float64) (LoopIntegrals, error)
	OneLoop(treeP float64, g Growth, li LoopIntegrals) (OneLoopPk, error)
	MatsubaraXY(pk *spectrum.Table, resum float64) (XY, error)
	Multipoles(k float64, g Growth, pk OneLoopPk, xy XY) (Multipoles, error)
}

// Reference is the closed-form kernel set.
type Reference struct {
	// Samples is the number of quadrature points; 0 means 128.
	Samples int
	// BAOScale is the separation used for X and Y in Mpc/h; 0 means 110.
	BAOScale float64
}

var _ Kernels = Reference{}

func (r Reference) samples() int {
	if r.Samples > 1 {
		return r.Samples
	}
	return 128
}

func (r Reference) baoScale() float64 {
	if r.BAOScale > 0 {
		return r.BAOScale
	}
	return 110
}

func (Reference) Growth(m types.Model, z float64) (Growth, error) {
	if z < 0 {
		return Growth{}, fmt.Errorf("negative redshift %g", z)
	}
	if m.OmegaM <= 0 {
		return Growth{}, fmt.Errorf("model %q: omega_m must be positive", m.Name)
	}
	om, ol := densities(m, z)
	d := cpt(om, ol) / (1 + z)
	om0, ol0 := densities(m, 0)
	return Growth{D: d / cpt(om0, ol0), F: math.Pow(om, 0.55)}, nil
}

func densities(m types.Model, z float64) (omegaM, omegaL float64) {
	a3 := math.Pow(1+z, 3)
	ok := 1 - m.OmegaM - m.OmegaCC
	e2 := m.OmegaM*a3 + m.OmegaCC + ok*(1+z)*(1+z)
	return m.OmegaM * a3 / e2, m.OmegaCC / e2
}

func cpt(om, ol float64) float64 {
	return 2.5 * om / (math.Pow(om, 4.0/7.0) - ol + (1+om/2)*(1+ol/70))
}

func (r Reference) LoopIntegrals(pk *spectrum.Table, k, uv, ir float64) (LoopIntegrals, error) {
	if ir >= uv {
		return LoopIntegrals{}, fmt.Errorf("IR cutoff %g not below UV cutoff %g", ir, uv)
	}
	lo, hi, ok := LoopWindow(pk, uv, ir)
	if !ok {
		return LoopIntegrals{}, fmt.Errorf("%w: [%g, %g] against table [%g, %g]", ErrEmptyRange, ir, uv, pk.Min(), pk.Max())
	}

	sigma2, err := integrateLog(lo, hi, r.samples(), func(q float64) (float64, error) {
		p, err := pk.At(q)
		return q * p, err
	})
	if err != nil {
		return LoopIntegrals{}, err
	}
	tail, err := integrateLog(lo, hi, r.samples(), func(q float64) (float64, error) {
		p, err := pk.At(q)
		return q * q * q * p * p, err
	})
	if err != nil {
		return LoopIntegrals{}, err
	}
	sigma2 /= 6 * math.Pi * math.Pi
	tail /= 2 * math.Pi * math.Pi

	k2 := k * k
	return LoopIntegrals{
		Delta22: 9.0 / 98.0 * tail,
		Delta13: -61.0 / 105.0 * k2 * sigma2,
		RSD22:   3.0 / 14.0 * tail,
		RSD13:   -1.0 / 3.0 * k2 * sigma2,
	}, nil
}

func (Reference) OneLoop(treeP float64, g Growth, li LoopIntegrals) (OneLoopPk, error) {
	d2 := g.D * g.D
	d4 := d2 * d2
	f := g.F

	dd := Value{Tree: d2 * treeP, Loop: d4 * (li.Delta22 + li.Delta13*treeP)}
	rsd := Value{Tree: d2 * treeP, Loop: d4 * (li.RSD22 + li.RSD13*treeP)}
	return OneLoopPk{
		DD:  dd,
		Mu0: dd,
		Mu2: rsd.scale(2 * f),
		Mu4: rsd.scale(f * f),
	}, nil
}

func (r Reference) MatsubaraXY(pk *spectrum.Table, resum float64) (XY, error) {
	lo, hi, ok := ResumWindow(pk, resum)
	if !ok {
		return XY{}, fmt.Errorf("%w: resummation scale %g below table minimum %g", ErrEmptyRange, resum, lo)
	}
	rs := r.baoScale()

	x, err := integrateLog(lo, hi, r.samples(), func(q float64) (float64, error) {
		p, err := pk.At(q)
		qr := q * rs
		return q * p * (2.0/3.0 - 2*j1(qr)/qr), err
	})
	if err != nil {
		return XY{}, err
	}
	y, err := integrateLog(lo, hi, r.samples(), func(q float64) (float64, error) {
		p, err := pk.At(q)
		qr := q * rs
		return q * p * (-2*j0(qr) + 6*j1(qr)/qr), err
	})
	if err != nil {
		return XY{}, err
	}
	norm := 1 / (2 * math.Pi * math.Pi)
	return XY{X: x * norm, Y: y * norm}, nil
}

func (Reference) Multipoles(k float64, g Growth, pk OneLoopPk, xy XY) (Multipoles, error) {
	a, b, c := pk.Mu0, pk.Mu2, pk.Mu4

	p0 := a.add(b.scale(1.0 / 3.0)).add(c.scale(1.0 / 5.0))
	p2 := b.scale(2.0 / 3.0).add(c.scale(4.0 / 7.0))
	p4 := c.scale(8.0 / 35.0)

	sigma2 := g.D * g.D * (xy.X + xy.Y)
	damp := math.Exp(-k * k * sigma2)
	return Multipoles{
		P0:    p0.scale(damp),
		P2:    p2.scale(damp),
		P4:    p4.scale(damp),
		P0SPT: p0,
		P2SPT: p2,
		P4SPT: p4,
	}, nil
}

// integrateLog evaluates the integral of fn over ln q with the trapezoid rule.
func integrateLog(lo, hi float64, n int, fn func(q float64) (float64, error)) (float64, error) {
	a, b := math.Log(lo), math.Log(hi)
	h := (b - a) / float64(n-1)
	sum := 0.0
	for i := 0; i < n; i++ {
		q := math.Exp(a + float64(i)*h)
		switch i {
		case 0:
			q = lo
		case n - 1:
			q = hi
		}
		v, err := fn(q)
		if err != nil {
			return 0, err
		}
		if i == 0 || i == n-1 {
			v /= 2
		}
		sum += v
	}
	return sum * h, nil
}

func j0(x float64) float64 {
	if x < 1e-4 {
		return 1 - x*x/6
	}
	return math.Sin(x) / x
}

func j1(x float64) float64 {
	if x < 1e-4 {
		return x / 3
	}
	return math.Sin(x)/(x*x) - math.Cos(x)/x
}
