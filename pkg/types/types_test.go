package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyEqualityIsStructural(t *testing.T) {
	a := Key{Model: 1, K: 3, Z: 4}
	b := Key{Model: 1, K: 3, Z: 4}

	set := NewKeySet(a)
	assert.True(t, set.Has(b))
	assert.Equal(t, 1, set.Len())

	set.Add(b)
	assert.Equal(t, 1, set.Len())
}

func TestKeyWithZ(t *testing.T) {
	base := Key{Model: 2, K: 7}
	withZ := base.WithZ(9)

	assert.Equal(t, ZToken(9), withZ.Z)
	assert.Equal(t, ZToken(0), base.Z, "receiver must not change")
	assert.Equal(t, base, withZ.WithoutZ())
}

func TestKeyOrdering(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		less bool
	}{
		{"model dominates", Key{Model: 1, K: 9}, Key{Model: 2, K: 1}, true},
		{"k before z", Key{Model: 1, K: 1, Z: 9}, Key{Model: 1, K: 2}, true},
		{"equal", Key{Model: 1}, Key{Model: 1}, false},
		{"greater", Key{Model: 1, Z: 3}, Key{Model: 1, Z: 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.less, tt.a.Less(tt.b))
		})
	}
}

func TestKeySetSortedAndMinus(t *testing.T) {
	s := NewKeySet(Key{K: 3}, Key{K: 1}, Key{K: 2})
	assert.Equal(t, []Key{{K: 1}, {K: 2}, {K: 3}}, s.Sorted())

	diff := s.Minus(NewKeySet(Key{K: 2}))
	assert.Equal(t, []Key{{K: 1}, {K: 3}}, diff.Sorted())
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "{model=1 k=4 z=2}", Key{Model: 1, K: 4, Z: 2}.String())
	assert.Equal(t, "{}", Key{}.String())
}
