// ============================================================================
// LSSEFT Cache - missing-set resolver
// ============================================================================
//
// Package: internal/cache
// File: resolver.go
// Purpose: Decide which tuples still need computing and repair partially
//          written families of relations.
//
// Family consistency:
//   A kind of work writes one row into each relation of its family. A tuple
//   is complete only when every relation of the family holds it. After an
//   interrupted run some relations may hold a tuple that others lack.
//
// Resolution (MissingFor):
//   1. per relation, collect the required tuples it does not hold
//   2. union those sets: the tuples that must be recomputed
//   3. per relation, delete the union members it does hold, so the
//      recomputation can insert cleanly
//   Steps run in one store transaction.
//
// Idempotence:
//   Resolving twice without computing in between yields the same set and
//   deletes nothing the second time.
//
// ============================================================================

package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/logger"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/store"
	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

// Family is a set of relations that are written together.
type Family struct {
	Name      string
	Relations []string
}

// Store is the persistence the resolver needs.
type Store interface {
	store.Tx
	Transaction(ctx context.Context, fn func(tx store.Tx) error) error
}

// Recorder receives resolution statistics.
type Recorder interface {
	RecordMissing(family string, n int)
	RecordReconciled(family string, deleted int64)
}

// Resolver computes missing sets. It is used by the master only.
type Resolver struct {
	store    Store
	recorder Recorder
	log      *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRecorder reports statistics to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) { r.recorder = rec }
}

// WithLogger replaces the default logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// NewResolver creates a resolver over s.
func NewResolver(s Store, opts ...Option) *Resolver {
	r := &Resolver{store: s, log: logger.Named("cache")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MissingFor returns the subset of required that is not complete in fam and
// deletes partial rows of those tuples. required is not modified.
func (r *Resolver) MissingFor(ctx context.Context, fam Family, required []types.Key) (types.KeySet, error) {
	var missing types.KeySet
	var deleted int64
	err := r.store.Transaction(ctx, func(tx store.Tx) error {
		perRelation, union, err := scan(ctx, tx, fam, required)
		if err != nil {
			return err
		}
		for _, rel := range fam.Relations {
			stale := union.Minus(perRelation[rel])
			if stale.Len() == 0 {
				continue
			}
			n, err := tx.Delete(ctx, rel, stale.Sorted())
			if err != nil {
				return err
			}
			if n > 0 {
				r.log.Info("dropped partial rows",
					zap.String("family", fam.Name),
					zap.String("relation", rel),
					zap.Int64("rows", n))
			}
			deleted += n
		}
		missing = union
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", fam.Name, err)
	}

	if r.recorder != nil {
		r.recorder.RecordMissing(fam.Name, missing.Len())
		r.recorder.RecordReconciled(fam.Name, deleted)
	}
	r.log.Debug("resolved missing set",
		zap.String("family", fam.Name),
		zap.Int("required", len(required)),
		zap.Int("missing", missing.Len()))
	return missing, nil
}

// MissingRedshiftsFor resolves fixed combined with each redshift and returns
// the redshifts that are missing, in the order given.
func (r *Resolver) MissingRedshiftsFor(ctx context.Context, fam Family, fixed types.Key, zs []types.ZToken) ([]types.ZToken, error) {
	keys := make([]types.Key, len(zs))
	for i, z := range zs {
		keys[i] = fixed.WithZ(z)
	}
	missing, err := r.MissingFor(ctx, fam, keys)
	if err != nil {
		return nil, err
	}
	out := make([]types.ZToken, 0, missing.Len())
	seen := make(map[types.ZToken]bool, len(zs))
	for _, z := range zs {
		if missing.Has(fixed.WithZ(z)) && !seen[z] {
			out = append(out, z)
			seen[z] = true
		}
	}
	return out, nil
}

// CountMissing reports how many required tuples are incomplete without
// deleting anything.
func (r *Resolver) CountMissing(ctx context.Context, fam Family, required []types.Key) (int, error) {
	_, union, err := scan(ctx, r.store, fam, required)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", fam.Name, err)
	}
	return union.Len(), nil
}

func scan(ctx context.Context, tx store.Tx, fam Family, required []types.Key) (map[string]types.KeySet, types.KeySet, error) {
	keys := types.NewKeySet(required...).Sorted()
	perRelation := make(map[string]types.KeySet, len(fam.Relations))
	union := make(types.KeySet)
	for _, rel := range fam.Relations {
		absent := make(types.KeySet)
		for _, k := range keys {
			ok, err := tx.Contains(ctx, rel, k)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				absent.Add(k)
				union.Add(k)
			}
		}
		perRelation[rel] = absent
	}
	return perRelation, union, nil
}
