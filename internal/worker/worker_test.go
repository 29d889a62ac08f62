package worker

// ============================================================================
// Worker Test File
// Purpose: Verify the worker state machine against a scripted master
// ============================================================================

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/transport"
	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

type doubleItem struct {
	Tuple types.Key
	X     float64
}

func (d doubleItem) Key() types.Key { return d.Tuple }

type doubleResult struct {
	Tuple types.Key
	Y     float64
}

func (d doubleResult) Key() types.Key { return d.Tuple }

var errOdd = errors.New("odd input")

func testTable(t *testing.T) *protocol.Table {
	t.Helper()
	table, err := protocol.NewTable(protocol.Register[doubleItem, doubleResult](1, "double",
		func(_ context.Context, in doubleItem) (doubleResult, error) {
			if int(in.X)%2 == 1 {
				return doubleResult{}, errOdd
			}
			return doubleResult{Tuple: in.Tuple, Y: 2 * in.X}, nil
		}),
		protocol.Register[doubleItem, doubleResult](2, "negate",
			func(_ context.Context, in doubleItem) (doubleResult, error) {
				return doubleResult{Tuple: in.Tuple, Y: -in.X}, nil
			}))
	require.NoError(t, err)
	return table
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func startWorker(t *testing.T, ctx context.Context) (*transport.LocalEndpoint, *Worker, chan error) {
	t.Helper()
	nw := transport.NewNetwork(1)
	t.Cleanup(nw.Close)
	w := New(nw.Endpoint(1), testTable(t))
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return nw.Endpoint(transport.MasterRank), w, done
}

func enterPhase(t *testing.T, ctx context.Context, master *transport.LocalEndpoint) {
	t.Helper()
	hdr, err := protocol.Encode(protocol.PhaseHeader{RunID: "test", Phase: 1, Kind: 1})
	require.NoError(t, err)
	require.NoError(t, master.Send(ctx, 1, protocol.TagEnterPhase, hdr))
	msg, err := master.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, protocol.TagReady, msg.Tag)
	assert.Equal(t, 1, msg.Source)
}

func TestWorkerFullCycle(t *testing.T) {
	ctx := testContext(t)
	master, w, done := startWorker(t, ctx)
	table := testTable(t)
	entry, _ := table.Lookup(1)

	for phase := 0; phase < 2; phase++ {
		enterPhase(t, ctx, master)

		for i := 0; i < 3; i++ {
			key := types.Key{K: types.KToken(i + 1)}
			body, err := entry.EncodeItem(doubleItem{Tuple: key, X: float64(2 * i)})
			require.NoError(t, err)
			require.NoError(t, master.Send(ctx, 1, entry.Assignment, body))

			msg, err := master.Recv(ctx)
			require.NoError(t, err)
			require.Equal(t, entry.Result, msg.Tag)
			res, err := entry.DecodeResult(msg.Body)
			require.NoError(t, err)
			assert.Equal(t, doubleResult{Tuple: key, Y: float64(4 * i)}, res)
		}

		require.NoError(t, master.Send(ctx, 1, protocol.TagEndOfWork, nil))
		msg, err := master.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, protocol.TagEndOfWorkAck, msg.Tag)
	}

	require.NoError(t, master.Send(ctx, 1, protocol.TagTerminate, nil))
	require.NoError(t, <-done)
	assert.Equal(t, Terminated, w.State())
	assert.Equal(t, 6, w.Computed())
}

func TestWorkerRejectsAssignmentBeforePhase(t *testing.T) {
	ctx := testContext(t)
	master, _, done := startWorker(t, ctx)

	require.NoError(t, master.Send(ctx, 1, protocol.AssignmentTag(1), nil))
	err := <-done
	assert.ErrorIs(t, err, protocol.ErrProtocolViolation)
}

func TestWorkerRejectsUnknownKind(t *testing.T) {
	ctx := testContext(t)
	master, _, done := startWorker(t, ctx)
	enterPhase(t, ctx, master)

	require.NoError(t, master.Send(ctx, 1, protocol.AssignmentTag(7), nil))
	assert.ErrorIs(t, <-done, protocol.ErrProtocolViolation)
}

func TestWorkerRejectsAssignmentOfAnotherKind(t *testing.T) {
	ctx := testContext(t)
	master, w, done := startWorker(t, ctx)
	enterPhase(t, ctx, master)

	other, ok := testTable(t).Lookup(2)
	require.True(t, ok)
	body, err := other.EncodeItem(doubleItem{X: 4})
	require.NoError(t, err)
	require.NoError(t, master.Send(ctx, 1, other.Assignment, body))

	assert.ErrorIs(t, <-done, protocol.ErrProtocolViolation)
	assert.Zero(t, w.Computed())
}

func TestWorkerRejectsTerminateMidPhase(t *testing.T) {
	ctx := testContext(t)
	master, _, done := startWorker(t, ctx)
	enterPhase(t, ctx, master)

	require.NoError(t, master.Send(ctx, 1, protocol.TagTerminate, nil))
	assert.ErrorIs(t, <-done, protocol.ErrProtocolViolation)
}

func TestWorkerComputeFailureIsFatal(t *testing.T) {
	ctx := testContext(t)
	master, _, done := startWorker(t, ctx)
	enterPhase(t, ctx, master)

	entry, _ := testTable(t).Lookup(1)
	body, err := entry.EncodeItem(doubleItem{X: 3})
	require.NoError(t, err)
	require.NoError(t, master.Send(ctx, 1, entry.Assignment, body))

	assert.ErrorIs(t, <-done, errOdd)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, w, done := startWorker(t, ctx)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, AwaitingPhase, w.State())
}

func TestPool(t *testing.T) {
	ctx := testContext(t)
	nw := transport.NewNetwork(3)
	defer nw.Close()
	master := nw.Endpoint(transport.MasterRank)

	pool := NewPool(nw, testTable(t))
	assert.Equal(t, 3, pool.Size())
	assert.ErrorIs(t, pool.Wait(), ErrPoolNotStarted)

	require.NoError(t, pool.Start(ctx))
	assert.ErrorIs(t, pool.Start(ctx), ErrPoolStarted)

	for r := 1; r <= 3; r++ {
		require.NoError(t, master.Send(ctx, r, protocol.TagTerminate, nil))
	}
	require.NoError(t, pool.Wait())
	assert.Equal(t, 0, pool.Computed())
}

func TestPoolFailureCancelsSiblings(t *testing.T) {
	ctx := testContext(t)
	nw := transport.NewNetwork(2)
	defer nw.Close()
	master := nw.Endpoint(transport.MasterRank)

	pool := NewPool(nw, testTable(t))
	require.NoError(t, pool.Start(ctx))

	require.NoError(t, master.Send(ctx, 1, protocol.TagReady, nil))
	assert.ErrorIs(t, pool.Wait(), protocol.ErrProtocolViolation)
}
