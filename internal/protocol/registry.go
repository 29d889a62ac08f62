package protocol

import (
	"context"
	"fmt"
	"sort"

	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

// Keyed is implemented by work items and results.
type Keyed interface {
	Key() types.Key
}

// ComputeFunc turns one item into one result. It must be pure.
type ComputeFunc[I, R Keyed] func(ctx context.Context, item I) (R, error)

// Entry is the registration of one work kind.
type Entry struct {
	Kind       Kind
	Name       string
	Assignment Tag
	Result     Tag

	encodeItem   func(Keyed) ([]byte, error)
	decodeItem   func([]byte) (Keyed, error)
	compute      func(context.Context, []byte) ([]byte, types.Key, error)
	decodeResult func([]byte) (Keyed, error)
}

// Register builds the entry for a kind. I and R must be value types so the
// decoder can allocate them.
func Register[I, R Keyed](kind Kind, name string, fn ComputeFunc[I, R]) Entry {
	return Entry{
		Kind:       kind,
		Name:       name,
		Assignment: AssignmentTag(kind),
		Result:     ResultTag(kind),
		encodeItem: func(v Keyed) ([]byte, error) {
			item, ok := v.(I)
			if !ok {
				return nil, fmt.Errorf("%s: item has type %T", name, v)
			}
			return Encode(item)
		},
		decodeItem: func(b []byte) (Keyed, error) {
			var item I
			if err := Decode(b, &item); err != nil {
				return nil, err
			}
			return item, nil
		},
		compute: func(ctx context.Context, b []byte) ([]byte, types.Key, error) {
			var item I
			if err := Decode(b, &item); err != nil {
				return nil, types.Key{}, fmt.Errorf("%s: decode item: %w", name, err)
			}
			res, err := fn(ctx, item)
			if err != nil {
				return nil, item.Key(), err
			}
			out, err := Encode(res)
			if err != nil {
				return nil, item.Key(), fmt.Errorf("%s: encode result: %w", name, err)
			}
			return out, item.Key(), nil
		},
		decodeResult: func(b []byte) (Keyed, error) {
			var res R
			if err := Decode(b, &res); err != nil {
				return nil, err
			}
			return res, nil
		},
	}
}

// EncodeItem serialises an item of this kind.
func (e Entry) EncodeItem(item Keyed) ([]byte, error) { return e.encodeItem(item) }

// DecodeItem reverses EncodeItem.
func (e Entry) DecodeItem(b []byte) (Keyed, error) { return e.decodeItem(b) }

// Compute decodes an assignment body, runs the kernel and encodes the result.
// The returned key is the item's key, useful for diagnostics on failure.
func (e Entry) Compute(ctx context.Context, body []byte) ([]byte, types.Key, error) {
	return e.compute(ctx, body)
}

// DecodeResult deserialises a result body of this kind.
func (e Entry) DecodeResult(b []byte) (Keyed, error) { return e.decodeResult(b) }

// Table is the static kind registry shared by master and workers.
type Table struct {
	byKind map[Kind]Entry
}

// NewTable validates and indexes entries.
func NewTable(entries ...Entry) (*Table, error) {
	t := &Table{byKind: make(map[Kind]Entry, len(entries))}
	for _, e := range entries {
		if e.compute == nil {
			return nil, fmt.Errorf("kind %d (%s): entry not built with Register", e.Kind, e.Name)
		}
		if _, dup := t.byKind[e.Kind]; dup {
			return nil, fmt.Errorf("kind %d (%s): registered twice", e.Kind, e.Name)
		}
		t.byKind[e.Kind] = e
	}
	return t, nil
}

// Lookup returns the entry for k.
func (t *Table) Lookup(k Kind) (Entry, bool) {
	e, ok := t.byKind[k]
	return e, ok
}

// ByAssignment resolves an assignment tag.
func (t *Table) ByAssignment(tag Tag) (Entry, bool) {
	if tag.Class() != ClassAssignment {
		return Entry{}, false
	}
	k, _ := tag.Kind()
	return t.Lookup(k)
}

// Kinds lists registered kinds in ascending order.
func (t *Table) Kinds() []Kind {
	out := make([]Kind, 0, len(t.byKind))
	for k := range t.byKind {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Name returns the registered name of k, or its number.
func (t *Table) Name(k Kind) string {
	if e, ok := t.byKind[k]; ok {
		return e.Name
	}
	return fmt.Sprintf("kind-%d", k)
}
