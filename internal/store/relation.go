package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shamaton/msgpack/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

// Row is one computed tuple of a relation. Absent dimensions store zero.
type Row struct {
	Model   uint32 `gorm:"column:model;primaryKey;autoIncrement:false"`
	Pk      uint32 `gorm:"column:pk;primaryKey;autoIncrement:false"`
	K       uint32 `gorm:"column:k;primaryKey;autoIncrement:false"`
	UV      uint32 `gorm:"column:uv;primaryKey;autoIncrement:false"`
	IR      uint32 `gorm:"column:ir;primaryKey;autoIncrement:false"`
	Resum   uint32 `gorm:"column:resum;primaryKey;autoIncrement:false"`
	Z       uint32 `gorm:"column:z;primaryKey;autoIncrement:false"`
	Payload []byte `gorm:"column:payload"`
}

func rowFor(key types.Key) Row {
	return Row{
		Model: uint32(key.Model),
		Pk:    uint32(key.Pk),
		K:     uint32(key.K),
		UV:    uint32(key.UV),
		IR:    uint32(key.IR),
		Resum: uint32(key.Resum),
		Z:     uint32(key.Z),
	}
}

// Key rebuilds the tuple of r.
func (r Row) Key() types.Key {
	return types.Key{
		Model: types.ModelToken(r.Model),
		Pk:    types.PkToken(r.Pk),
		K:     types.KToken(r.K),
		UV:    types.UVToken(r.UV),
		IR:    types.IRToken(r.IR),
		Resum: types.ResumToken(r.Resum),
		Z:     types.ZToken(r.Z),
	}
}

// match builds a condition that also pins zero-valued dimensions.
func match(key types.Key) map[string]any {
	r := rowFor(key)
	return map[string]any{
		"model": r.Model,
		"pk":    r.Pk,
		"k":     r.K,
		"uv":    r.UV,
		"ir":    r.IR,
		"resum": r.Resum,
		"z":     r.Z,
	}
}

// Contains reports whether relation holds a row for key.
func (s *DB) Contains(ctx context.Context, relation string, key types.Key) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Table(relation).Where(match(key)).Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("query %s%s: %w", relation, key, err)
	}
	return n > 0, nil
}

// Get decodes the payload stored for key into out.
func (s *DB) Get(ctx context.Context, relation string, key types.Key, out any) error {
	var row Row
	err := s.db.WithContext(ctx).Table(relation).Where(match(key)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s%s", ErrNotFound, relation, key)
	}
	if err != nil {
		return fmt.Errorf("read %s%s: %w", relation, key, err)
	}
	if err := msgpack.Unmarshal(row.Payload, out); err != nil {
		return fmt.Errorf("decode %s%s: %w", relation, key, err)
	}
	return nil
}

// Insert writes payload for key, replacing an existing row.
func (s *DB) Insert(ctx context.Context, relation string, key types.Key, payload any) error {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s%s: %w", relation, key, err)
	}
	row := rowFor(key)
	row.Payload = data
	err = s.db.WithContext(ctx).Table(relation).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("write %s%s: %w", relation, key, err)
	}
	return nil
}

// Delete removes the rows for keys and returns how many existed.
func (s *DB) Delete(ctx context.Context, relation string, keys []types.Key) (int64, error) {
	var total int64
	for _, key := range keys {
		res := s.db.WithContext(ctx).Table(relation).Where(match(key)).Delete(&Row{})
		if res.Error != nil {
			return total, fmt.Errorf("delete %s%s: %w", relation, key, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// Keys lists every tuple stored in relation.
func (s *DB) Keys(ctx context.Context, relation string) ([]types.Key, error) {
	var rows []Row
	err := s.db.WithContext(ctx).Table(relation).
		Select("model", "pk", "k", "uv", "ir", "resum", "z").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", relation, err)
	}
	keys := make([]types.Key, len(rows))
	for i, r := range rows {
		keys[i] = r.Key()
	}
	return keys, nil
}
