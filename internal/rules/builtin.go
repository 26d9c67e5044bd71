package rules

import "github.com/roach88/conformity/internal/ir"

// BuiltinPrefix prefixes the ids of built-in checks.
const BuiltinPrefix = "builtin."

// Description of the edital object check. Callers match on it.
const DescObjectUndefined = "object of the bidding is not clearly defined"

var documentChecks = map[string][]ir.Rule{
	ir.DocEdital: {
		{
			ID:          "builtin.edital.object",
			Name:        "Bidding object",
			Description: DescObjectUndefined,
			Category:    ir.CategoryLegal,
			Check:       ir.AnyKeyword{Keywords: []string{"objeto", "finalidade"}},
			ProblemKind: ir.ProblemMissingClause,
			Severity:    ir.SeverityCritical,
			Suggestion:  "Define the object of the bidding clearly (art. 40, I, Law 8.666/93)",
		},
		{
			ID:          "builtin.edital.judgement",
			Name:        "Judgement criteria",
			Description: "judgement criteria are not clearly defined",
			Category:    ir.CategoryLegal,
			Check:       ir.AnyKeyword{Keywords: []string{"critério", "julgamento"}},
			ProblemKind: ir.ProblemIrregularCriterion,
			Severity:    ir.SeverityHigh,
			Suggestion:  "State objective judgement criteria (art. 45, Law 8.666/93)",
		},
		{
			ID:          "builtin.edital.deadline",
			Name:        "Proposal deadline",
			Description: "deadline for submitting proposals is not specified",
			Category:    ir.CategoryLegal,
			Check:       ir.AnyKeyword{Keywords: []string{"prazo", "data limite"}},
			ProblemKind: ir.ProblemMissingClause,
			Severity:    ir.SeverityCritical,
			Suggestion:  "Set explicit dates and deadlines for proposal submission",
		},
	},
	ir.DocTermoReferencia: {
		{
			ID:          "builtin.tr.specification",
			Name:        "Technical specification",
			Description: "technical specification is incomplete",
			Category:    ir.CategoryStructural,
			Check:       ir.AnyKeyword{Keywords: []string{"especificação", "detalhamento"}},
			ProblemKind: ir.ProblemIncompleteSpecification,
			Severity:    ir.SeverityHigh,
			Suggestion:  "Detail the technical specification of the object",
		},
		{
			ID:          "builtin.tr.quantities",
			Name:        "Quantities",
			Description: "quantities are not adequately specified",
			Category:    ir.CategoryStructural,
			Check:       ir.AnyKeyword{Keywords: []string{"quantitativo", "quantidade"}},
			ProblemKind: ir.ProblemIncompleteSpecification,
			Severity:    ir.SeverityMedium,
			Suggestion:  "List estimated quantities for each item",
		},
		{
			ID:          "builtin.tr.justification",
			Name:        "Justification",
			Description: "justification for the procurement is missing",
			Category:    ir.CategoryLegal,
			Check:       ir.AnyKeyword{Keywords: []string{"justificativa"}},
			ProblemKind: ir.ProblemMissingClause,
			Severity:    ir.SeverityHigh,
			Suggestion:  "Present the justification for the procurement",
		},
	},
	ir.DocMinutaContrato: contractClauseChecks(
		"vigência", "objeto", "penalidades", "rescisão", "garantia",
		"fiscalização", "pagamento", "reajuste", "alteração",
	),
	ir.DocAtaRegistroPrecos: {
		{
			ID:          "builtin.ata_registro_precos.validity",
			Name:        "Validity period",
			Description: "validity period of the price registration is not specified",
			Category:    ir.CategoryFormal,
			Check:       ir.AnyKeyword{Keywords: []string{"validade", "vigência"}},
			ProblemKind: ir.ProblemMissingClause,
			Severity:    ir.SeverityHigh,
			Suggestion:  "State the validity period of the price registration (max. 12 months)",
		},
	},
	ir.DocParecerJuridico: {
		{
			ID:          "builtin.parecer_juridico.legal_basis",
			Name:        "Legal basis",
			Description: "legal basis is insufficient",
			Category:    ir.CategoryLegal,
			Check:       ir.AnyKeyword{Keywords: []string{"fundamentação legal"}},
			ProblemKind: ir.ProblemMissingClause,
			Severity:    ir.SeverityHigh,
			Suggestion:  "Cite the statutes and case law supporting the opinion",
		},
		{
			ID:          "builtin.parecer_juridico.conclusion",
			Name:        "Conclusion",
			Description: "conclusion of the opinion is not clearly stated",
			Category:    ir.CategoryFormal,
			Check:       ir.AnyKeyword{Keywords: []string{"conclusão"}},
			Severity:    ir.SeverityMedium,
			Suggestion:  "Close the opinion with an explicit conclusion",
		},
	},
	ir.DocProjetoBasico: {
		{
			ID:          "builtin.projeto_basico.memorial",
			Name:        "Descriptive memorial",
			Description: "descriptive memorial not found",
			Category:    ir.CategoryStructural,
			Check:       ir.AnyKeyword{Keywords: []string{"memorial descritivo"}},
			ProblemKind: ir.ProblemMissingClause,
			Severity:    ir.SeverityHigh,
			Suggestion:  "Attach the descriptive memorial of the work",
		},
		{
			ID:          "builtin.projeto_basico.budget",
			Name:        "Budget spreadsheet",
			Description: "budget spreadsheet not identified",
			Category:    ir.CategoryStructural,
			Check:       ir.AnyKeyword{Keywords: []string{"planilha", "orçamento"}},
			ProblemKind: ir.ProblemMissingClause,
			Severity:    ir.SeverityCritical,
			Suggestion:  "Include the detailed budget spreadsheet",
		},
	},
}

var modalityChecks = map[string][]ir.Rule{
	ir.ModalityProcessoLicitatorio: {
		{
			ID:          "builtin.processo_licitatorio.electronic",
			Name:        "Electronic system",
			Description: "electronic bidding system is not specified",
			Category:    ir.CategoryFormal,
			Check:       ir.AnyKeyword{Keywords: []string{"sistema", "eletrônico"}},
			ProblemKind: ir.ProblemIncorrectModality,
			Severity:    ir.SeverityMedium,
			Suggestion:  "Name the electronic system used to run the bidding",
		},
	},
}

func contractClauseChecks(clauses ...string) []ir.Rule {
	out := make([]ir.Rule, 0, len(clauses))
	for _, c := range clauses {
		out = append(out, ir.Rule{
			ID:          BuiltinPrefix + ir.DocMinutaContrato + "." + c,
			Name:        "Clause: " + c,
			Description: "clause on " + c + " not found",
			Category:    ir.CategoryLegal,
			Check:       ir.AnyKeyword{Keywords: []string{c}},
			ProblemKind: ir.ProblemMissingClause,
			Severity:    ir.SeverityHigh,
			Suggestion:  "Include a specific clause on " + c,
		})
	}
	return out
}

// Builtins returns the built-in checks for a classification: document
// checks first, then modality checks. The returned rules are enabled
// copies.
func Builtins(cls ir.Classification) []ir.Rule {
	var out []ir.Rule
	for _, r := range documentChecks[cls.DocumentType] {
		r = r.Clone()
		r.Enabled = true
		out = append(out, r)
	}
	for _, r := range modalityChecks[cls.PrimaryModality] {
		r = r.Clone()
		r.Enabled = true
		out = append(out, r)
	}
	return out
}
