package ir

import "slices"

// Severity grades a finding. It drives the score deduction.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Category groups parameters and rules. The set is open; the constants
// below are the categories with a fixed place in the pipeline.
type Category string

const (
	CategoryStructural Category = "structural"
	CategoryLegal      Category = "legal"
	CategoryClarity    Category = "clarity"
	CategoryFormal     Category = "formal"
	CategoryGeneral    Category = "general"
)

// StageCategories are evaluated as named pipeline stages, in this order.
var StageCategories = []Category{
	CategoryStructural,
	CategoryLegal,
	CategoryClarity,
	CategoryFormal,
}

// CategoryOrder fixes the cross-category ordering of problems in a result.
var CategoryOrder = []Category{
	CategoryStructural,
	CategoryLegal,
	CategoryClarity,
	CategoryFormal,
	CategoryGeneral,
}

// Stage returns the pipeline stage that evaluates rules of category c.
// Categories without a stage of their own run under general.
func (c Category) Stage() Category {
	if slices.Contains(StageCategories, c) {
		return c
	}
	return CategoryGeneral
}

// ValueType is the type of a parameter's value.
type ValueType string

const (
	ValueBoolean    ValueType = "boolean"
	ValueNumber     ValueType = "number"
	ValueString     ValueType = "string"
	ValueEnumSelect ValueType = "enumSelect"
	ValueRange      ValueType = "range"
)

// Valid reports whether v is a known value type.
func (v ValueType) Valid() bool {
	switch v {
	case ValueBoolean, ValueNumber, ValueString, ValueEnumSelect, ValueRange:
		return true
	}
	return false
}

// Parameter is a weighted, configurable scoring input.
// Its weight is the share of its category in the overall score.
type Parameter struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    Category  `json:"category"`
	ValueType   ValueType `json:"valueType"`
	Value       any       `json:"value,omitempty"`
	Weight      float64   `json:"weight"`
	Enabled     bool      `json:"enabled"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Options     []string  `json:"options,omitempty"`
}

// Clone returns a deep copy of p.
func (p Parameter) Clone() Parameter {
	out := p
	out.Value = cloneValue(p.Value)
	if p.Min != nil {
		v := *p.Min
		out.Min = &v
	}
	if p.Max != nil {
		v := *p.Max
		out.Max = &v
	}
	out.Options = slices.Clone(p.Options)
	return out
}

// cloneValue copies the JSON-shaped containers a parameter value may hold.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case []string:
		return slices.Clone(val)
	default:
		return v
	}
}

// Classification describes the document under analysis. It selects the
// built-in checks and the boilerplate recommendations.
type Classification struct {
	ObjectType      string `json:"objectType,omitempty" yaml:"object_type,omitempty"`
	PrimaryModality string `json:"primaryModality,omitempty" yaml:"primary_modality,omitempty"`
	Subtype         string `json:"subtype,omitempty" yaml:"subtype,omitempty"`
	DocumentType    string `json:"documentType,omitempty" yaml:"document_type,omitempty"`
}

// Well-known document types.
const (
	DocEdital            = "edital"
	DocTermoReferencia   = "tr"
	DocMinutaContrato    = "minuta_contrato"
	DocAtaRegistroPrecos = "ata_registro_precos"
	DocParecerJuridico   = "parecer_juridico"
	DocProjetoBasico     = "projeto_basico"
)

// ModalityProcessoLicitatorio is the primary modality that requires an
// electronic system to be named.
const ModalityProcessoLicitatorio = "processo_licitatorio"
