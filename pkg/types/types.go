// ============================================================================
// LSSEFT Types - shared identities and composite cache keys
// ============================================================================
//
// Package: pkg/types
// File: types.go
// Purpose: Token identities for persisted configuration values and the
//          composite Key built from them.
//
// Token model:
//   Every distinct configuration value (a cosmological model, a wavenumber,
//   a UV/IR cutoff, an IR resummation scale, a redshift, a linear power
//   spectrum) is stored once and receives a small integer token. Tokens are
//   assigned by the store, never reused, and zero means "dimension absent".
//
// Key:
//   A Key is a plain comparable struct of tokens. It is used directly as a
//   map key, so equality and hashing are structural.
//
// ============================================================================

package types

import (
	"fmt"
	"sort"
	"strings"
)

// ModelToken identifies a cosmological model.
type ModelToken uint32

// KToken identifies a wavenumber.
type KToken uint32

// UVToken identifies a UV cutoff of the loop integrals.
type UVToken uint32

// IRToken identifies an IR cutoff of the loop integrals.
type IRToken uint32

// ResumToken identifies an IR resummation scale.
type ResumToken uint32

// ZToken identifies a redshift.
type ZToken uint32

// PkToken identifies a linear power spectrum.
type PkToken uint32

// Dimension names one configuration axis. The value doubles as the suffix of
// the store table holding the axis values.
type Dimension string

const (
	DimWavenumber Dimension = "wavenumber"
	DimUVCutoff   Dimension = "uv_cutoff"
	DimIRCutoff   Dimension = "ir_cutoff"
	DimResum      Dimension = "ir_resummation"
	DimRedshift   Dimension = "redshift"
)

// Dimensions lists the scalar axes in a stable order.
var Dimensions = []Dimension{DimWavenumber, DimUVCutoff, DimIRCutoff, DimResum, DimRedshift}

// Model holds the parameters of a flat FRW cosmology.
type Model struct {
	Name    string  `yaml:"name" toml:"name"`
	OmegaM  float64 `yaml:"omega_m" toml:"omega_m"`
	OmegaCC float64 `yaml:"omega_cc" toml:"omega_cc"`
	H       float64 `yaml:"h" toml:"h"`
}

// Key is a composite cache key. Unused dimensions stay zero.
type Key struct {
	Model ModelToken
	Pk    PkToken
	K     KToken
	UV    UVToken
	IR    IRToken
	Resum ResumToken
	Z     ZToken
}

// WithZ returns a copy of k with the redshift dimension replaced.
func (k Key) WithZ(z ZToken) Key {
	k.Z = z
	return k
}

// WithoutZ returns a copy of k with the redshift dimension cleared.
func (k Key) WithoutZ() Key {
	k.Z = 0
	return k
}

// Less orders keys lexicographically by dimension.
func (k Key) Less(o Key) bool {
	a := k.tuple()
	b := o.tuple()
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (k Key) tuple() [7]uint32 {
	return [7]uint32{
		uint32(k.Model), uint32(k.Pk), uint32(k.K), uint32(k.UV),
		uint32(k.IR), uint32(k.Resum), uint32(k.Z),
	}
}

// String renders only the dimensions that are present.
func (k Key) String() string {
	names := [7]string{"model", "pk", "k", "uv", "ir", "resum", "z"}
	var parts []string
	for i, v := range k.tuple() {
		if v != 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", names[i], v))
		}
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// KeySet is an unordered set of keys.
type KeySet map[Key]struct{}

// NewKeySet builds a set from keys.
func NewKeySet(keys ...Key) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Add inserts k.
func (s KeySet) Add(k Key) { s[k] = struct{}{} }

// Has reports whether k is in the set.
func (s KeySet) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Len returns the set size.
func (s KeySet) Len() int { return len(s) }

// Sorted returns the members in Key order.
func (s KeySet) Sorted() []Key {
	out := make([]Key, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Minus returns the members of s that are not in o.
func (s KeySet) Minus(o KeySet) KeySet {
	out := make(KeySet)
	for k := range s {
		if !o.Has(k) {
			out.Add(k)
		}
	}
	return out
}
