// ============================================================================
// LSSEFT Worker - compute peer
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Purpose: The worker side of the scatter/gather protocol.
//
// State machine:
//
//   awaiting-phase --EnterPhase/Ready--> awaiting-item
//   awaiting-phase --Terminate--> exit
//   awaiting-item  --Assign(kind)--> computing --Result(kind)--> awaiting-item
//   awaiting-item  --EndOfWork/EndOfWorkAck--> awaiting-phase
//
// Rules:
//   - Exactly one result is sent per assignment.
//   - A worker talks only to the master.
//   - Any other tag in a state is a protocol violation and ends the worker.
//     So is an assignment whose kind differs from the current phase.
//   - A kernel error ends the worker. The master then fails the phase,
//     because items are never retried.
//
// ============================================================================

package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/logger"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/transport"
)

// State is the position of a worker in its protocol.
type State int

const (
	AwaitingPhase State = iota
	AwaitingItem
	Computing
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitingPhase:
		return "awaiting-phase"
	case AwaitingItem:
		return "awaiting-item"
	case Computing:
		return "computing"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Worker serves assignments from the master over one endpoint.
type Worker struct {
	ep    transport.Endpoint
	table *protocol.Table
	log   *zap.Logger

	state    State
	phase    protocol.PhaseHeader
	computed int
}

// New creates a worker bound to ep.
func New(ep transport.Endpoint, table *protocol.Table) *Worker {
	return &Worker{
		ep:    ep,
		table: table,
		log:   logger.Named("worker").With(zap.Int("rank", ep.Rank())),
	}
}

// State returns the current state.
func (w *Worker) State() State { return w.state }

// Computed returns how many items this worker has finished.
func (w *Worker) Computed() int { return w.computed }

// Run processes messages until Terminate, an error or ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	w.state = AwaitingPhase
	for {
		msg, err := w.ep.Recv(ctx)
		if err != nil {
			return fmt.Errorf("worker %d: receive: %w", w.ep.Rank(), err)
		}
		if msg.Source != transport.MasterRank {
			return protocol.Violationf("worker %d: message %s from rank %d", w.ep.Rank(), msg.Tag, msg.Source)
		}

		switch w.state {
		case AwaitingPhase:
			done, err := w.awaitPhase(ctx, msg)
			if err != nil {
				return err
			}
			if done {
				w.state = Terminated
				w.log.Debug("terminated", zap.Int("computed", w.computed))
				return nil
			}
		case AwaitingItem:
			if err := w.awaitItem(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) awaitPhase(ctx context.Context, msg protocol.Message) (bool, error) {
	switch msg.Tag {
	case protocol.TagTerminate:
		return true, nil
	case protocol.TagEnterPhase:
		var hdr protocol.PhaseHeader
		if err := protocol.Decode(msg.Body, &hdr); err != nil {
			return false, protocol.Violationf("worker %d: bad phase header: %v", w.ep.Rank(), err)
		}
		w.phase = hdr
		if err := w.ep.Send(ctx, transport.MasterRank, protocol.TagReady, nil); err != nil {
			return false, err
		}
		w.state = AwaitingItem
		w.log.Debug("entered phase", zap.Int("phase", hdr.Phase), zap.String("kind", w.table.Name(hdr.Kind)))
		return false, nil
	}
	return false, protocol.Violationf("worker %d: %s while awaiting a phase", w.ep.Rank(), msg.Tag)
}

func (w *Worker) awaitItem(ctx context.Context, msg protocol.Message) error {
	if msg.Tag == protocol.TagEndOfWork {
		if err := w.ep.Send(ctx, transport.MasterRank, protocol.TagEndOfWorkAck, nil); err != nil {
			return err
		}
		w.state = AwaitingPhase
		return nil
	}

	entry, ok := w.table.ByAssignment(msg.Tag)
	if !ok {
		return protocol.Violationf("worker %d: %s while awaiting an item", w.ep.Rank(), msg.Tag)
	}
	if entry.Kind != w.phase.Kind {
		return protocol.Violationf("worker %d: %s assignment during a %s phase",
			w.ep.Rank(), entry.Name, w.table.Name(w.phase.Kind))
	}

	w.state = Computing
	start := time.Now()
	body, key, err := entry.Compute(ctx, msg.Body)
	if err != nil {
		w.log.Error("compute failed", zap.String("kind", entry.Name), zap.Stringer("key", key), zap.Error(err))
		return fmt.Errorf("worker %d: %s %s: %w", w.ep.Rank(), entry.Name, key, err)
	}
	if err := w.ep.Send(ctx, transport.MasterRank, entry.Result, body); err != nil {
		return err
	}
	w.computed++
	w.state = AwaitingItem
	w.log.Debug("computed item",
		zap.String("kind", entry.Name),
		zap.Stringer("key", key),
		zap.Duration("took", time.Since(start)))
	return nil
}
