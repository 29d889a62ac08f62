// Package cfgdb holds ordered in-memory databases of tokenized configuration
// values, one per dimension.
package cfgdb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

var (
	ErrTokenConflict = errors.New("token already bound to a different value")
	ErrZeroToken     = errors.New("token zero is reserved")
)

// Record binds a value to its token. Records are immutable once added.
type Record[T ~uint32] struct {
	value float64
	token T
}

func (r Record[T]) Value() float64 { return r.value }

func (r Record[T]) Token() T { return r.token }

// Database keeps records in ascending value order with a reverse token index.
type Database[T ~uint32] struct {
	records []Record[T]
	byToken map[T]int
}

// New returns an empty database.
func New[T ~uint32]() *Database[T] {
	return &Database[T]{byToken: make(map[T]int)}
}

// Add inserts value under token. Adding the same pair twice is a no-op.
func (d *Database[T]) Add(value float64, token T) error {
	if token == 0 {
		return ErrZeroToken
	}
	if i, ok := d.byToken[token]; ok {
		if d.records[i].value != value {
			return fmt.Errorf("%w: token %d has %g, not %g", ErrTokenConflict, token, d.records[i].value, value)
		}
		return nil
	}

	i := sort.Search(len(d.records), func(i int) bool { return d.records[i].value > value })
	d.records = append(d.records, Record[T]{})
	copy(d.records[i+1:], d.records[i:])
	d.records[i] = Record[T]{value: value, token: token}

	for j := i; j < len(d.records); j++ {
		d.byToken[d.records[j].token] = j
	}
	return nil
}

// Lookup finds the record for token.
func (d *Database[T]) Lookup(token T) (Record[T], bool) {
	i, ok := d.byToken[token]
	if !ok {
		return Record[T]{}, false
	}
	return d.records[i], true
}

// Value returns the value bound to token.
func (d *Database[T]) Value(token T) (float64, error) {
	r, ok := d.Lookup(token)
	if !ok {
		return 0, fmt.Errorf("unknown token %d", token)
	}
	return r.value, nil
}

// Len is the number of records.
func (d *Database[T]) Len() int { return len(d.records) }

// Records returns a copy of the records in ascending value order.
func (d *Database[T]) Records() []Record[T] {
	out := make([]Record[T], len(d.records))
	copy(out, d.records)
	return out
}

// Tokens returns the tokens in ascending value order.
func (d *Database[T]) Tokens() []T {
	out := make([]T, len(d.records))
	for i, r := range d.records {
		out[i] = r.token
	}
	return out
}

// Tokenizer assigns store tokens to configuration values.
type Tokenizer interface {
	Tokenize(ctx context.Context, dim types.Dimension, value float64) (uint32, error)
}

// Build tokenizes every value of one dimension and collects the records.
// Values equal within the store's tolerance collapse onto one record.
func Build[T ~uint32](ctx context.Context, tok Tokenizer, dim types.Dimension, values []float64) (*Database[T], error) {
	db := New[T]()
	for _, v := range values {
		t, err := tok.Tokenize(ctx, dim, v)
		if err != nil {
			return nil, fmt.Errorf("tokenize %s %g: %w", dim, v, err)
		}
		if _, seen := db.Lookup(T(t)); seen {
			continue
		}
		if err := db.Add(v, T(t)); err != nil {
			return nil, err
		}
	}
	return db, nil
}
