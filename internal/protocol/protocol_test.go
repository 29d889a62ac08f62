package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type squareItem struct {
	Tuple types.Key
	X     float64
}

func (s squareItem) Key() types.Key { return s.Tuple }

type squareResult struct {
	Tuple types.Key
	Y     float64
}

func (s squareResult) Key() types.Key { return s.Tuple }

func square(_ context.Context, in squareItem) (squareResult, error) {
	if in.X < 0 {
		return squareResult{}, errors.New("negative input")
	}
	return squareResult{Tuple: in.Tuple, Y: in.X * in.X}, nil
}

func TestTagLayout(t *testing.T) {
	tests := []struct {
		tag   Tag
		class Class
		kind  Kind
		ok    bool
	}{
		{TagEnterPhase, ClassControl, 0, false},
		{TagTerminate, ClassControl, 0, false},
		{Tag(9), ClassUnknown, 0, false},
		{AssignmentTag(0), ClassAssignment, 0, true},
		{ResultTag(0), ClassResult, 0, true},
		{AssignmentTag(4), ClassAssignment, 4, true},
		{ResultTag(4), ClassResult, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.tag.String(), func(t *testing.T) {
			assert.Equal(t, tt.class, tt.tag.Class())
			k, ok := tt.tag.Kind()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, k)
		})
	}
}

func TestTagsAreDistinctAcrossKinds(t *testing.T) {
	seen := map[Tag]bool{}
	for _, c := range []Tag{TagEnterPhase, TagReady, TagEndOfWork, TagEndOfWorkAck, TagTerminate} {
		seen[c] = true
	}
	for k := Kind(0); k < 32; k++ {
		for _, tag := range []Tag{AssignmentTag(k), ResultTag(k)} {
			assert.False(t, seen[tag], "tag %s reused", tag)
			seen[tag] = true
		}
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	e := Register[squareItem, squareResult](3, "square", square)
	table, err := NewTable(e)
	require.NoError(t, err)

	got, ok := table.ByAssignment(AssignmentTag(3))
	require.True(t, ok)
	assert.Equal(t, "square", got.Name)
	assert.Equal(t, ResultTag(3), got.Result)

	key := types.Key{Model: 1, K: 2}
	body, err := got.EncodeItem(squareItem{Tuple: key, X: 3})
	require.NoError(t, err)

	out, itemKey, err := got.Compute(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, key, itemKey)

	res, err := got.DecodeResult(out)
	require.NoError(t, err)
	assert.Equal(t, squareResult{Tuple: key, Y: 9}, res)
}

func TestComputeErrorPropagates(t *testing.T) {
	e := Register[squareItem, squareResult](1, "square", square)
	body, err := e.EncodeItem(squareItem{X: -1})
	require.NoError(t, err)

	_, _, err = e.Compute(context.Background(), body)
	assert.EqualError(t, err, "negative input")
}

func TestEncodeItemRejectsForeignType(t *testing.T) {
	e := Register[squareItem, squareResult](1, "square", square)
	_, err := e.EncodeItem(squareResult{})
	assert.Error(t, err)
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	e := Register[squareItem, squareResult](1, "square", square)
	_, err := NewTable(e, e)
	assert.Error(t, err)

	_, err = NewTable(Entry{Kind: 2, Name: "bare"})
	assert.Error(t, err)
}

func TestViolationf(t *testing.T) {
	err := Violationf("unexpected %s from worker %d", TagReady, 2)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Contains(t, err.Error(), "unexpected Ready from worker 2")
}
