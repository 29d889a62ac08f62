package cfgdb

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

func TestAddKeepsValueOrder(t *testing.T) {
	db := New[types.KToken]()
	require.NoError(t, db.Add(0.3, 1))
	require.NoError(t, db.Add(0.1, 2))
	require.NoError(t, db.Add(0.2, 3))

	assert.Equal(t, []types.KToken{2, 3, 1}, db.Tokens())
	assert.Equal(t, 3, db.Len())

	r, ok := db.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, 0.3, r.Value())
	assert.Equal(t, types.KToken(1), r.Token())

	v, err := db.Value(3)
	require.NoError(t, err)
	assert.Equal(t, 0.2, v)
	_, err = db.Value(9)
	assert.Error(t, err)
}

func TestAddConflicts(t *testing.T) {
	db := New[types.ZToken]()
	require.NoError(t, db.Add(1.0, 4))
	require.NoError(t, db.Add(1.0, 4), "same pair is idempotent")
	assert.ErrorIs(t, db.Add(2.0, 4), ErrTokenConflict)
	assert.ErrorIs(t, db.Add(2.0, 0), ErrZeroToken)
	assert.Equal(t, 1, db.Len())
}

func TestRecordsIsACopy(t *testing.T) {
	db := New[types.UVToken]()
	require.NoError(t, db.Add(1, 1))
	recs := db.Records()
	recs[0] = Record[types.UVToken]{}

	r, ok := db.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, 1.0, r.Value())
}

type roundingTokenizer struct {
	tokens map[float64]uint32
}

func (r *roundingTokenizer) Tokenize(_ context.Context, _ types.Dimension, v float64) (uint32, error) {
	key := math.Round(v*1e6) / 1e6
	if t, ok := r.tokens[key]; ok {
		return t, nil
	}
	t := uint32(len(r.tokens) + 1)
	r.tokens[key] = t
	return t, nil
}

func TestBuildCollapsesEquivalentValues(t *testing.T) {
	tok := &roundingTokenizer{tokens: map[float64]uint32{}}
	db, err := Build[types.ZToken](context.Background(), tok, types.DimRedshift, []float64{2, 0.5, 2.0000000001, 1})
	require.NoError(t, err)

	assert.Equal(t, 3, db.Len())
	assert.Equal(t, []types.ZToken{2, 3, 1}, db.Tokens())
}
