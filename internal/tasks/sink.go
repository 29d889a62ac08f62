package tasks

import (
	"context"
	"fmt"

	"github.com/LBJ-Wade/LSSEFT-sub001/internal/protocol"
	"github.com/LBJ-Wade/LSSEFT-sub001/internal/store"
)

// Transactor is the store surface the sink writes through.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx store.Tx) error) error
}

// StoreSink persists results, one transaction per result.
type StoreSink struct {
	Store Transactor
}

// Persist writes every row of res or none of them.
func (s StoreSink) Persist(ctx context.Context, kind protocol.Kind, res protocol.Keyed) error {
	p, ok := res.(Persistable)
	if !ok {
		return fmt.Errorf("result of kind %d (%T) cannot be stored", kind, res)
	}
	return s.Store.Transaction(ctx, func(tx store.Tx) error {
		for _, row := range p.Rows() {
			if err := tx.Insert(ctx, row.Relation, row.Key, row.Value); err != nil {
				return err
			}
		}
		return nil
	})
}
