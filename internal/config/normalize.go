package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/conformity/internal/ir"
)

// NormalizeErrorKind classifies normalization failures.
type NormalizeErrorKind string

const (
	// DivideByZero means no enabled parameter carries weight.
	DivideByZero NormalizeErrorKind = "DivideByZero"
)

// NormalizeError is returned by Normalize when weights cannot be scaled.
type NormalizeError struct {
	Kind     NormalizeErrorKind
	ConfigID string
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize config %q: %s: enabled weights sum to zero", e.ConfigID, e.Kind)
}

// IsDivideByZero reports whether err is a DivideByZero NormalizeError.
func IsDivideByZero(err error) bool {
	var ne *NormalizeError
	return errors.As(err, &ne) && ne.Kind == DivideByZero
}

// Normalize returns a copy of cfg whose enabled weights sum to 100.
// Each enabled weight w becomes w*100/sum; disabled parameters are untouched.
// A config already within ir.WeightTolerance of 100 is returned unchanged.
func Normalize(cfg ir.OrganizationConfig) (ir.OrganizationConfig, error) {
	out := cfg.Clone()

	sum := out.EnabledWeightSum()
	if out.EnabledCount() == 0 || sum == 0 {
		return ir.OrganizationConfig{}, &NormalizeError{Kind: DivideByZero, ConfigID: cfg.ID}
	}
	if math.Abs(sum-100) <= ir.WeightTolerance {
		return out, nil
	}

	for i := range out.Parameters {
		if out.Parameters[i].Enabled {
			out.Parameters[i].Weight = out.Parameters[i].Weight * 100 / sum
		}
	}
	return out, nil
}

// ApplyPreset returns a copy of cfg with weights taken from preset.
// A parameter is enabled exactly when the preset names it; parameters the
// preset omits keep their weight.
func ApplyPreset(cfg ir.OrganizationConfig, preset map[string]float64) ir.OrganizationConfig {
	out := cfg.Clone()
	for i := range out.Parameters {
		w, ok := preset[out.Parameters[i].ID]
		out.Parameters[i].Enabled = ok
		if ok {
			out.Parameters[i].Weight = w
		}
	}
	return out
}
