// ============================================================================
// LSSEFT Master - scatter/gather controller
// ============================================================================
//
// Package: internal/master
// File: master.go
// Purpose: Distribute one work list per phase over the workers and persist
//          every result exactly once.
//
// Phase protocol:
//   1. Handshake   EnterPhase to every worker; each Ready initializes a slot.
//   2. Scatter     while a worker is free and items remain, send the next
//                  item with its kind's assignment tag.
//   3. Gather      receive from any worker. A result is checked against the
//                  assignment, persisted in one transaction and frees the
//                  worker.
//   4. Drain       once the list is empty every free worker gets EndOfWork
//                  exactly once; its EndOfWorkAck retires it.
//   5. The phase ends when every worker is retired.
//
//   Terminate is sent once after the last phase of a run.
//
// Failure policy:
//   Any unexpected tag, sender or key is ErrProtocolViolation. Store and
//   transport errors are returned as they are. Nothing is retried; a rerun
//   recomputes whatever the resolver reports missing.
//
// ============================================================================

package master

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/logger"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/scheduler"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/transport"
	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

var (
	ErrNoWorkers     = errors.New("no workers available")
	ErrUnknownKind   = errors.New("unknown work kind")
	ErrWorkerStalled = errors.New("no message from any worker within the idle timeout")
)

// Sink persists one result atomically.
type Sink interface {
	Persist(ctx context.Context, kind protocol.Kind, res protocol.Keyed) error
}

// Recorder receives scheduling statistics.
type Recorder interface {
	RecordAssigned(kind string)
	RecordPersisted(kind string, latency time.Duration)
	RecordPhase(kind string, d time.Duration)
	SetActiveWorkers(n int)
}

// Config tunes the master loop.
type Config struct {
	// IdleTimeout fails a phase when nothing arrives for this long. Zero waits forever.
	IdleTimeout time.Duration
	RunID       string
}

// Master drives phases over one endpoint. It is not safe for concurrent use.
type Master struct {
	ep       transport.Endpoint
	table    *protocol.Table
	sink     Sink
	cfg      Config
	recorder Recorder
	log      *zap.Logger
	phase    int
}

// Option configures a Master.
type Option func(*Master)

// WithRecorder reports statistics to rec.
func WithRecorder(rec Recorder) Option {
	return func(m *Master) { m.recorder = rec }
}

// WithLogger replaces the default logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Master) { m.log = l }
}

// New creates a master on ep, which must have rank 0.
func New(ep transport.Endpoint, table *protocol.Table, sink Sink, cfg Config, opts ...Option) *Master {
	m := &Master{
		ep:    ep,
		table: table,
		sink:  sink,
		cfg:   cfg,
		log:   logger.Named("master"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if cfg.RunID != "" {
		m.log = m.log.With(zap.String("run", cfg.RunID))
	}
	return m
}

// Workers is the number of worker peers.
func (m *Master) Workers() int { return m.ep.Size() - 1 }

type inflight struct {
	key   types.Key
	since time.Time
}

// RunPhase distributes items of kind and returns once every worker has
// acknowledged the end of the phase.
func (m *Master) RunPhase(ctx context.Context, kind protocol.Kind, items []protocol.Keyed) error {
	entry, ok := m.table.Lookup(kind)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	n := m.Workers()
	if n < 1 {
		return ErrNoWorkers
	}

	m.phase++
	start := time.Now()
	log := m.log.With(zap.Int("phase", m.phase), zap.String("kind", entry.Name))
	log.Info("phase started", zap.Int("items", len(items)), zap.Int("workers", n))

	sched := scheduler.New(n)
	if err := m.handshake(ctx, sched, kind); err != nil {
		return err
	}
	m.setActive(n)

	queue := append([]protocol.Keyed(nil), items...)
	assigned := make(map[int]inflight, n)
	closing := make(map[int]bool, n)
	persisted, retired := 0, 0

	for !sched.AllInactive() {
		for len(queue) > 0 && sched.IsAssignable() {
			w := sched.Unassigned()[0]
			item := queue[0]
			body, err := entry.EncodeItem(item)
			if err != nil {
				return fmt.Errorf("encode %s item %s: %w", entry.Name, item.Key(), err)
			}
			if err := m.ep.Send(ctx, transport.WorkerRank(w), entry.Assignment, body); err != nil {
				return fmt.Errorf("assign to worker %d: %w", w, err)
			}
			if err := sched.Assign(w); err != nil {
				return fmt.Errorf("%w: %v", protocol.ErrProtocolViolation, err)
			}
			queue = queue[1:]
			assigned[w] = inflight{key: item.Key(), since: time.Now()}
			if m.recorder != nil {
				m.recorder.RecordAssigned(entry.Name)
			}
			log.Debug("assigned", zap.Int("worker", w), zap.Stringer("key", item.Key()))
		}

		if len(queue) == 0 {
			for _, w := range sched.Unassigned() {
				if closing[w] {
					continue
				}
				if err := m.ep.Send(ctx, transport.WorkerRank(w), protocol.TagEndOfWork, nil); err != nil {
					return fmt.Errorf("end of work to worker %d: %w", w, err)
				}
				closing[w] = true
			}
		}

		msg, err := m.recv(ctx)
		if err != nil {
			return err
		}
		w := transport.WorkerNumber(msg.Source)
		if w < 0 || w >= n {
			return protocol.Violationf("message %s from rank %d", msg.Tag, msg.Source)
		}

		switch msg.Tag {
		case entry.Result:
			job, ok := assigned[w]
			if !ok {
				return protocol.Violationf("result from worker %d which holds no item", w)
			}
			res, err := entry.DecodeResult(msg.Body)
			if err != nil {
				return protocol.Violationf("undecodable %s result from worker %d: %v", entry.Name, w, err)
			}
			if res.Key() != job.key {
				return protocol.Violationf("worker %d returned %s for assignment %s", w, res.Key(), job.key)
			}
			if err := m.sink.Persist(ctx, kind, res); err != nil {
				return fmt.Errorf("persist %s %s: %w", entry.Name, job.key, err)
			}
			delete(assigned, w)
			if err := sched.Unassign(w); err != nil {
				return fmt.Errorf("%w: %v", protocol.ErrProtocolViolation, err)
			}
			persisted++
			if m.recorder != nil {
				m.recorder.RecordPersisted(entry.Name, time.Since(job.since))
			}
			log.Debug("persisted", zap.Int("worker", w), zap.Stringer("key", job.key))

		case protocol.TagEndOfWorkAck:
			if !closing[w] {
				return protocol.Violationf("EndOfWorkAck from worker %d which was not closing", w)
			}
			if err := sched.MarkInactive(w); err != nil {
				return fmt.Errorf("%w: %v", protocol.ErrProtocolViolation, err)
			}
			retired++
			m.setActive(n - retired)

		default:
			return protocol.Violationf("unexpected %s from worker %d during %s phase", msg.Tag, w, entry.Name)
		}
	}

	elapsed := time.Since(start)
	if m.recorder != nil {
		m.recorder.RecordPhase(entry.Name, elapsed)
	}
	log.Info("phase finished", zap.Int("persisted", persisted), zap.Duration("took", elapsed))
	return nil
}

func (m *Master) handshake(ctx context.Context, sched *scheduler.Scheduler, kind protocol.Kind) error {
	hdr, err := protocol.Encode(protocol.PhaseHeader{RunID: m.cfg.RunID, Phase: m.phase, Kind: kind})
	if err != nil {
		return err
	}
	for w := 0; w < sched.Size(); w++ {
		if err := m.ep.Send(ctx, transport.WorkerRank(w), protocol.TagEnterPhase, hdr); err != nil {
			return fmt.Errorf("enter phase on worker %d: %w", w, err)
		}
	}
	for !sched.IsReady() {
		msg, err := m.recv(ctx)
		if err != nil {
			return err
		}
		if msg.Tag != protocol.TagReady {
			return protocol.Violationf("%s from rank %d during handshake", msg.Tag, msg.Source)
		}
		if err := sched.Initialize(transport.WorkerNumber(msg.Source)); err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrProtocolViolation, err)
		}
	}
	return nil
}

func (m *Master) recv(ctx context.Context) (protocol.Message, error) {
	if m.cfg.IdleTimeout <= 0 {
		return m.ep.Recv(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, m.cfg.IdleTimeout)
	defer cancel()
	msg, err := m.ep.Recv(tctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return msg, fmt.Errorf("%w (%s)", ErrWorkerStalled, m.cfg.IdleTimeout)
	}
	return msg, err
}

// Terminate tells every worker that the run is over.
func (m *Master) Terminate(ctx context.Context) error {
	for w := 0; w < m.Workers(); w++ {
		if err := m.ep.Send(ctx, transport.WorkerRank(w), protocol.TagTerminate, nil); err != nil {
			return fmt.Errorf("terminate worker %d: %w", w, err)
		}
	}
	m.log.Info("run terminated", zap.Int("phases", m.phase))
	return nil
}

func (m *Master) setActive(n int) {
	if m.recorder != nil {
		m.recorder.SetActiveWorkers(n)
	}
}
