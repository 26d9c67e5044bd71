package config

import (
	"slices"

	"github.com/roach88/conformity/internal/ir"
)

// Template categories.
const (
	TemplateEdital   = "edital"
	TemplateTR       = "tr"
	TemplateContrato = "contrato"
	TemplateProjeto  = "projeto"
	TemplateGeral    = "geral"
)

// Template is a starting point for a new config.
type Template struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Preset      string         `json:"preset,omitempty"`
	Parameters  []ir.Parameter `json:"parameters"`
	Rules       []ir.Rule      `json:"rules"`
}

// Clone returns a deep copy of t.
func (t Template) Clone() Template {
	out := t
	out.Parameters = make([]ir.Parameter, len(t.Parameters))
	for i, p := range t.Parameters {
		out.Parameters[i] = p.Clone()
	}
	out.Rules = make([]ir.Rule, len(t.Rules))
	for i, r := range t.Rules {
		out.Rules[i] = r.Clone()
	}
	return out
}

func presetParameters(name string) []ir.Parameter {
	p, _ := Preset(name)
	return ApplyPreset(ir.OrganizationConfig{Parameters: DefaultParameters()}, p).Parameters
}

var templates = []Template{
	{
		ID:          "edital-padrao",
		Name:        "Edital padrão",
		Description: "Rigorous legal review for calls for bids",
		Category:    TemplateEdital,
		Preset:      PresetRigorous,
		Parameters:  presetParameters(PresetRigorous),
		Rules: []ir.Rule{
			{
				ID:          "habilitacao",
				Name:        "Habilitação",
				Description: "qualification requirements are not stated",
				Category:    ir.CategoryLegal,
				Check:       ir.AnyKeyword{Keywords: []string{"habilitação", "qualificação técnica"}},
				ProblemKind: ir.ProblemMissingClause,
				Location:    "qualification",
				Severity:    ir.SeverityHigh,
				Suggestion:  "Add a qualification section listing the documents bidders must submit",
				Enabled:     true,
				Priority:    10,
			},
			{
				ID:          "impugnacao",
				Name:        "Impugnação",
				Description: "no procedure to challenge the call for bids",
				Category:    ir.CategoryFormal,
				Check:       ir.Pattern{Expr: `impugna(ção|cao|r)`},
				ProblemKind: ir.ProblemMissingClause,
				Severity:    ir.SeverityMedium,
				Suggestion:  "State the deadline and channel for challenges",
				Enabled:     true,
			},
		},
	},
	{
		ID:          "tr-padrao",
		Name:        "Termo de referência padrão",
		Description: "Technical review weighted toward structure and specification",
		Category:    TemplateTR,
		Preset:      PresetTechnical,
		Parameters:  presetParameters(PresetTechnical),
		Rules: []ir.Rule{
			{
				ID:          "criterios-aceitacao",
				Name:        "Critérios de aceitação",
				Description: "acceptance criteria are not defined",
				Category:    ir.CategoryStructural,
				Check:       ir.AnyKeyword{Keywords: []string{"aceitação", "recebimento"}},
				ProblemKind: ir.ProblemIncompleteSpecification,
				Location:    "acceptance",
				Severity:    ir.SeverityHigh,
				Suggestion:  "Describe how deliveries will be received and accepted",
				Enabled:     true,
				Priority:    5,
			},
		},
	},
	{
		ID:          "contrato-padrao",
		Name:        "Contrato padrão",
		Description: "Standard review of contract drafts",
		Category:    TemplateContrato,
		Preset:      PresetStandard,
		Parameters:  presetParameters(PresetStandard),
		Rules: []ir.Rule{
			{
				ID:          "foro",
				Name:        "Foro",
				Description: "jurisdiction clause not found",
				Category:    ir.CategoryLegal,
				Check:       ir.AllKeywords{Keywords: []string{"foro"}},
				ProblemKind: ir.ProblemMissingClause,
				Severity:    ir.SeverityMedium,
				Suggestion:  "Name the court with jurisdiction over disputes",
				Enabled:     true,
			},
		},
	},
}

// Templates returns copies of the built-in templates in declaration order.
func Templates() []Template {
	out := make([]Template, len(templates))
	for i, t := range templates {
		out[i] = t.Clone()
	}
	return out
}

// LookupTemplate returns a copy of the template with the given id.
func LookupTemplate(id string) (Template, bool) {
	i := slices.IndexFunc(templates, func(t Template) bool { return t.ID == id })
	if i < 0 {
		return Template{}, false
	}
	return templates[i].Clone(), true
}
