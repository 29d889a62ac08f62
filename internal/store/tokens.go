package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/LBJ-Wade/LSSEFT-sub001/pkg/types"
)

// ConfigValue is one tokenized scalar. The id is the token.
type ConfigValue struct {
	ID    uint32  `gorm:"column:id;primaryKey;autoIncrement"`
	Value float64 `gorm:"column:value"`
}

// ModelRecord is one tokenized cosmological model.
type ModelRecord struct {
	ID      uint32  `gorm:"column:id;primaryKey;autoIncrement"`
	Name    string  `gorm:"column:name"`
	OmegaM  float64 `gorm:"column:omega_m"`
	OmegaCC float64 `gorm:"column:omega_cc"`
	H       float64 `gorm:"column:h"`
}

func (ModelRecord) TableName() string { return "config_model" }

// SpectrumRecord is one tokenized linear power spectrum.
type SpectrumRecord struct {
	ID          uint32 `gorm:"column:id;primaryKey;autoIncrement"`
	Fingerprint string `gorm:"column:fingerprint;size:16;uniqueIndex"`
	Source      string `gorm:"column:source"`
}

func (SpectrumRecord) TableName() string { return "config_power_spectrum" }

func valueTable(dim types.Dimension) string { return "config_" + string(dim) }

func (s *DB) migrateConfig() error {
	if err := s.db.AutoMigrate(&ModelRecord{}, &SpectrumRecord{}); err != nil {
		return fmt.Errorf("migrate configuration tables: %w", err)
	}
	for _, dim := range types.Dimensions {
		if err := s.db.Table(valueTable(dim)).AutoMigrate(&ConfigValue{}); err != nil {
			return fmt.Errorf("migrate %s: %w", valueTable(dim), err)
		}
	}
	return nil
}

// window is the closed interval of values treated as equal to v.
func (s *DB) window(v float64) (float64, float64) {
	d := s.tolerance * math.Max(math.Abs(v), 1)
	return v - d, v + d
}

// Tokenize returns the token of value, creating one if no stored value lies
// within tolerance.
func (s *DB) Tokenize(ctx context.Context, dim types.Dimension, value float64) (uint32, error) {
	var token uint32
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lo, hi := s.window(value)
		var found ConfigValue
		err := tx.Table(valueTable(dim)).
			Where("value >= ? AND value <= ?", lo, hi).
			Order("id").Take(&found).Error
		switch {
		case err == nil:
			token = found.ID
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		rec := ConfigValue{Value: value}
		if err := tx.Table(valueTable(dim)).Create(&rec).Error; err != nil {
			return err
		}
		token = rec.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("tokenize %s %g: %w", dim, value, err)
	}
	return token, nil
}

// TokenizeModel returns the token of a model with matching parameters.
func (s *DB) TokenizeModel(ctx context.Context, m types.Model) (types.ModelToken, error) {
	var token uint32
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&ModelRecord{})
		for col, v := range map[string]float64{"omega_m": m.OmegaM, "omega_cc": m.OmegaCC, "h": m.H} {
			lo, hi := s.window(v)
			q = q.Where(col+" >= ? AND "+col+" <= ?", lo, hi)
		}
		var found ModelRecord
		err := q.Order("id").Take(&found).Error
		switch {
		case err == nil:
			token = found.ID
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		rec := ModelRecord{Name: m.Name, OmegaM: m.OmegaM, OmegaCC: m.OmegaCC, H: m.H}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		token = rec.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("tokenize model %q: %w", m.Name, err)
	}
	return types.ModelToken(token), nil
}

// TokenizeSpectrum returns the token for a spectrum fingerprint.
func (s *DB) TokenizeSpectrum(ctx context.Context, fingerprint, source string) (types.PkToken, error) {
	var token uint32
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found SpectrumRecord
		err := tx.Where("fingerprint = ?", fingerprint).Take(&found).Error
		switch {
		case err == nil:
			token = found.ID
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		rec := SpectrumRecord{Fingerprint: fingerprint, Source: source}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		token = rec.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("tokenize power spectrum %s: %w", fingerprint, err)
	}
	return types.PkToken(token), nil
}
