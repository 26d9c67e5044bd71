package config

import "github.com/roach88/conformity/internal/ir"

// DefaultIDPrefix prefixes the id of an organization's built-in default config.
const DefaultIDPrefix = "default:"

// DefaultParameters returns the four stage-category parameters with
// STANDARD weights.
func DefaultParameters() []ir.Parameter {
	return []ir.Parameter{
		{
			ID:          ParamStructural,
			Name:        "Structural analysis",
			Description: "Document structure and completeness of specifications",
			Category:    ir.CategoryStructural,
			ValueType:   ir.ValueNumber,
			Weight:      25,
			Enabled:     true,
		},
		{
			ID:          ParamLegal,
			Name:        "Legal conformity",
			Description: "Mandatory clauses and legal requirements",
			Category:    ir.CategoryLegal,
			ValueType:   ir.ValueNumber,
			Weight:      25,
			Enabled:     true,
		},
		{
			ID:          ParamClarity,
			Name:        "Clarity",
			Description: "Unambiguous wording and defined criteria",
			Category:    ir.CategoryClarity,
			ValueType:   ir.ValueNumber,
			Weight:      25,
			Enabled:     true,
		},
		{
			ID:          ParamFormal,
			Name:        "Formal requirements",
			Description: "Modality, validity and formal elements",
			Category:    ir.CategoryFormal,
			ValueType:   ir.ValueNumber,
			Weight:      25,
			Enabled:     true,
		},
	}
}

// DefaultConfig returns the built-in default config for orgID. It carries
// no custom rules; document-type built-in checks still apply at analysis.
func DefaultConfig(orgID string) ir.OrganizationConfig {
	return ir.OrganizationConfig{
		ID:             DefaultIDPrefix + orgID,
		OrganizationID: orgID,
		Name:           "Default configuration",
		Description:    "Built-in configuration with STANDARD weights",
		Parameters:     DefaultParameters(),
		Rules:          []ir.Rule{},
		IsDefault:      true,
		Version:        1,
		Preset:         PresetStandard,
	}
}
