package engine

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/conformity/internal/config"
	"github.com/roach88/conformity/internal/ir"
)

// Override replaces fields of one parameter for a single analysis.
// Nil fields keep the resolved value.
type Override struct {
	Weight  *float64 `json:"weight,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
	Value   any      `json:"value,omitempty"`
}

// applyOverrides returns a copy of cfg with overrides merged in.
// Every bad override is reported, in parameter id order.
func applyOverrides(cfg ir.OrganizationConfig, overrides map[string]Override) (ir.OrganizationConfig, error) {
	out := cfg.Clone()
	if len(overrides) == 0 {
		return out, nil
	}

	index := make(map[string]int, len(out.Parameters))
	for i, p := range out.Parameters {
		index[p.ID] = i
	}

	ids := make([]string, 0, len(overrides))
	for id := range overrides {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var errs []config.ValidationError
	for _, id := range ids {
		o := overrides[id]
		field := fmt.Sprintf("overrides[%s]", id)

		i, ok := index[id]
		if !ok {
			errs = append(errs, config.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown parameter %q", id),
				Code:    config.ErrParameterID,
			})
			continue
		}

		p := &out.Parameters[i]
		if o.Weight != nil {
			w := *o.Weight
			if math.IsNaN(w) || w < 0 || w > 100 {
				errs = append(errs, config.ValidationError{
					Field:   field + ".weight",
					Message: fmt.Sprintf("weight %v outside [0,100]", w),
					Code:    config.ErrWeightRange,
				})
				continue
			}
			p.Weight = w
		}
		if o.Enabled != nil {
			p.Enabled = *o.Enabled
		}
		if o.Value != nil {
			p.Value = o.Value
		}
	}

	if len(errs) > 0 {
		return ir.OrganizationConfig{}, &config.ValidationFailedError{Errors: errs}
	}
	return out, nil
}
