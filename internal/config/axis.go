package config

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Range is an evenly spaced axis, linear or logarithmic. Both ends are included.
type Range struct {
	Min   float64 `yaml:"min" toml:"min"`
	Max   float64 `yaml:"max" toml:"max"`
	Count int     `yaml:"count" toml:"count"`
	Log   bool    `yaml:"log" toml:"log"`
}

// Values expands the range.
func (r Range) Values() ([]float64, error) {
	switch {
	case r.Count < 1:
		return nil, fmt.Errorf("range count %d", r.Count)
	case r.Max < r.Min:
		return nil, fmt.Errorf("range max %g below min %g", r.Max, r.Min)
	case r.Log && r.Min <= 0:
		return nil, fmt.Errorf("log range needs a positive min, got %g", r.Min)
	case r.Count == 1:
		return []float64{r.Min}, nil
	}

	lo, hi := r.Min, r.Max
	if r.Log {
		lo, hi = math.Log(lo), math.Log(hi)
	}
	step := (hi - lo) / float64(r.Count-1)
	out := make([]float64, r.Count)
	for i := range out {
		v := lo + float64(i)*step
		if r.Log {
			v = math.Exp(v)
		}
		out[i] = v
	}
	out[0], out[r.Count-1] = r.Min, r.Max
	return out, nil
}

// Axis is either an explicit list or a Range.
type Axis struct {
	List  []float64
	Range *Range
}

// Values returns the axis points.
func (a Axis) Values() ([]float64, error) {
	if a.Range != nil {
		return a.Range.Values()
	}
	return a.List, nil
}

// UnmarshalYAML accepts a sequence, a mapping or a single scalar.
func (a *Axis) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Decode(&a.List)
	case yaml.MappingNode:
		var r Range
		if err := node.Decode(&r); err != nil {
			return err
		}
		a.Range = &r
		return nil
	case yaml.ScalarNode:
		var v float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		a.List = []float64{v}
		return nil
	}
	return fmt.Errorf("line %d: %w", node.Line, ErrBadAxisFormat)
}

// UnmarshalTOML accepts an array, an inline table or a single number.
func (a *Axis) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case []any:
		a.List = make([]float64, len(v))
		for i, x := range v {
			f, err := tomlNumber(x)
			if err != nil {
				return err
			}
			a.List[i] = f
		}
		return nil
	case map[string]any:
		r := Range{}
		for key, x := range v {
			var err error
			switch key {
			case "min":
				r.Min, err = tomlNumber(x)
			case "max":
				r.Max, err = tomlNumber(x)
			case "count":
				var f float64
				f, err = tomlNumber(x)
				r.Count = int(f)
			case "log":
				b, ok := x.(bool)
				if !ok {
					err = fmt.Errorf("log must be a boolean, got %T", x)
				}
				r.Log = b
			default:
				err = fmt.Errorf("unknown range key %q", key)
			}
			if err != nil {
				return err
			}
		}
		a.Range = &r
		return nil
	default:
		f, err := tomlNumber(data)
		if err != nil {
			return ErrBadAxisFormat
		}
		a.List = []float64{f}
		return nil
	}
}

func tomlNumber(x any) (float64, error) {
	switch n := x.(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", x)
}
