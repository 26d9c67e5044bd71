package ir

import "time"

// WeightTolerance is the allowed deviation of an enabled weight sum from 100.
const WeightTolerance = 0.01

// OrganizationConfig is an organization's scoring configuration.
//
// A config is treated as an immutable value once resolved for an analysis.
// Transformations return new values; use Clone before mutating a copy that
// may be shared.
type OrganizationConfig struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organizationId"`
	Name           string      `json:"name"`
	Description    string      `json:"description"`
	Parameters     []Parameter `json:"parameters"`
	Rules          []Rule      `json:"rules"`
	IsActive       bool        `json:"isActive"`
	IsDefault      bool        `json:"isDefault"`
	Version        int64       `json:"version"`
	Preset         string      `json:"preset,omitempty"`
	CreatedAt      *time.Time  `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time  `json:"updatedAt,omitempty"`
}

// Clone returns a deep copy of c.
func (c OrganizationConfig) Clone() OrganizationConfig {
	out := c
	if c.Parameters != nil {
		out.Parameters = make([]Parameter, len(c.Parameters))
		for i, p := range c.Parameters {
			out.Parameters[i] = p.Clone()
		}
	}
	if c.Rules != nil {
		out.Rules = make([]Rule, len(c.Rules))
		for i, r := range c.Rules {
			out.Rules[i] = r.Clone()
		}
	}
	if c.CreatedAt != nil {
		t := *c.CreatedAt
		out.CreatedAt = &t
	}
	if c.UpdatedAt != nil {
		t := *c.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

// EnabledWeightSum returns the sum of weights over enabled parameters.
func (c OrganizationConfig) EnabledWeightSum() float64 {
	var sum float64
	for _, p := range c.Parameters {
		if p.Enabled {
			sum += p.Weight
		}
	}
	return sum
}

// EnabledCount returns the number of enabled parameters.
func (c OrganizationConfig) EnabledCount() int {
	n := 0
	for _, p := range c.Parameters {
		if p.Enabled {
			n++
		}
	}
	return n
}

// Parameter returns the parameter with the given id.
func (c OrganizationConfig) Parameter(id string) (Parameter, bool) {
	for _, p := range c.Parameters {
		if p.ID == id {
			return p, true
		}
	}
	return Parameter{}, false
}
