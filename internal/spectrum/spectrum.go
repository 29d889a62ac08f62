// Package spectrum loads tabulated linear power spectra and interpolates them.
package spectrum

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/dgryski/go-farm"
)

var (
	ErrTooFewSamples = errors.New("power spectrum needs at least two samples")
	ErrNotAscending  = errors.New("power spectrum wavenumbers must be strictly ascending")
	ErrOutOfRange    = errors.New("wavenumber outside tabulated range")
)

// Table is a sampled P(k). Both slices have the same length and K ascends.
type Table struct {
	K []float64
	P []float64
}

// Load reads a two-column text file.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open power spectrum: %w", err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse reads whitespace separated (k, P) pairs. Blank lines and lines
// starting with '#' are skipped.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected two columns", line)
		}
		k, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t.K = append(t.K, k)
		t.P = append(t.P, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the sampling invariants.
func (t *Table) Validate() error {
	if len(t.K) != len(t.P) {
		return fmt.Errorf("power spectrum has %d wavenumbers but %d values", len(t.K), len(t.P))
	}
	if len(t.K) < 2 {
		return ErrTooFewSamples
	}
	for i := 1; i < len(t.K); i++ {
		if t.K[i] <= t.K[i-1] {
			return fmt.Errorf("%w: k[%d]=%g after %g", ErrNotAscending, i, t.K[i], t.K[i-1])
		}
	}
	if t.K[0] <= 0 {
		return fmt.Errorf("power spectrum wavenumbers must be positive, got %g", t.K[0])
	}
	return nil
}

// Min returns the smallest tabulated wavenumber.
func (t *Table) Min() float64 { return t.K[0] }

// Max returns the largest tabulated wavenumber.
func (t *Table) Max() float64 { return t.K[len(t.K)-1] }

// At interpolates P(k). Positive neighbours are joined log-log, anything else linearly.
func (t *Table) At(k float64) (float64, error) {
	if k < t.Min() || k > t.Max() {
		return 0, fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfRange, k, t.Min(), t.Max())
	}
	lo, hi := 0, len(t.K)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if t.K[mid] <= k {
			lo = mid
		} else {
			hi = mid
		}
	}

	k0, k1 := t.K[lo], t.K[hi]
	p0, p1 := t.P[lo], t.P[hi]
	if p0 > 0 && p1 > 0 {
		w := math.Log(k/k0) / math.Log(k1/k0)
		return math.Exp(math.Log(p0) + w*(math.Log(p1)-math.Log(p0))), nil
	}
	w := (k - k0) / (k1 - k0)
	return p0 + w*(p1-p0), nil
}

// Fingerprint hashes the samples. Equal tables share a fingerprint.
func (t *Table) Fingerprint() uint64 {
	buf := make([]byte, 0, 16*len(t.K))
	for i := range t.K {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(t.K[i]))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(t.P[i]))
	}
	return farm.Hash64(buf)
}

// FingerprintHex renders Fingerprint for storage.
func (t *Table) FingerprintHex() string {
	return fmt.Sprintf("%016x", t.Fingerprint())
}
