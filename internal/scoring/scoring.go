// Package scoring turns findings into category scores, an overall weighted
// score, recommendations and clause metrics.
package scoring

import (
	"math"
	"regexp"
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/conformity/internal/ir"
)

// MaxScore is the starting score of every category.
const MaxScore = 100.0

// Deduction returns the points a finding of severity s removes from its
// category score.
func Deduction(s ir.Severity) float64 {
	switch s {
	case ir.SeverityCritical:
		return 25
	case ir.SeverityHigh:
		return 15
	case ir.SeverityMedium:
		return 10
	case ir.SeverityLow:
		return 5
	default:
		return 0
	}
}

// Scores is the outcome of Aggregate.
type Scores struct {
	PerCategory map[ir.Category]float64
	Overall     float64
}

// CategoryWeights sums the weights of enabled parameters per category.
func CategoryWeights(cfg ir.OrganizationConfig) map[ir.Category]float64 {
	weights := make(map[ir.Category]float64)
	for _, p := range cfg.Parameters {
		if p.Enabled {
			weights[p.Category] += p.Weight
		}
	}
	return weights
}

// EqualWeights spreads 100 evenly over the stage categories.
func EqualWeights() map[ir.Category]float64 {
	weights := make(map[ir.Category]float64, len(ir.StageCategories))
	share := MaxScore / float64(len(ir.StageCategories))
	for _, c := range ir.StageCategories {
		weights[c] = share
	}
	return weights
}

// Aggregate deducts each finding from its category score and combines the
// category scores into the overall score.
//
// Every stage category, every weighted category and every category with a
// finding gets a score. Category scores are clamped to [0, 100]. The overall
// score is Σ score·weight/100 over categories with positive weight, clamped
// to [0, 100] and rounded to two decimals; weights are expected to be
// normalized.
func Aggregate(findings []ir.Problem, weights map[ir.Category]float64) Scores {
	per := make(map[ir.Category]float64, len(ir.StageCategories))
	for _, c := range ir.StageCategories {
		per[c] = MaxScore
	}
	for c, w := range weights {
		if w > 0 {
			per[c] = MaxScore
		}
	}

	for _, f := range findings {
		c := f.Category
		if c == "" {
			c = ir.CategoryGeneral
		}
		score, ok := per[c]
		if !ok {
			score = MaxScore
		}
		per[c] = clamp(score - Deduction(f.Severity))
	}

	// Summed in category order so equal input gives a bit-identical score.
	var overall float64
	for _, c := range SortedCategories(weights) {
		if w := weights[c]; w > 0 {
			overall += per[c] * w / 100
		}
	}

	return Scores{
		PerCategory: per,
		Overall:     round2(clamp(overall)),
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(MaxScore, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var boilerplate = map[string][]string{
	ir.DocEdital: {
		"Review conformity with Law 8.666/93 and Law 10.520/02",
		"Verify alignment with TCU guidance",
	},
	ir.DocTermoReferencia: {
		"Confirm the technical specification supports the market research",
	},
	ir.DocMinutaContrato: {
		"Check contract clauses against art. 55 of Law 8.666/93",
	},
}

// Recommendations returns the non-empty suggestions of findings in
// first-seen order without duplicates, followed by the fixed
// recommendations for the document type.
func Recommendations(findings []ir.Problem, cls ir.Classification) []string {
	seen := make(map[string]struct{}, len(findings))
	out := make([]string, 0, len(findings))
	add := func(s string) {
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, f := range findings {
		add(f.Suggestion)
	}
	for _, s := range boilerplate[cls.DocumentType] {
		add(s)
	}
	return out
}

var clausePattern = regexp.MustCompile(`(?i)cláusula|artigo|item|parágrafo`)

// Metrics counts clause references in text and classifies findings.
// ProcessingTimeMs and the cache counters are left for the caller.
func Metrics(text string, findings []ir.Problem) ir.Metrics {
	total := len(clausePattern.FindAllStringIndex(norm.NFC.String(text), -1))

	var missing, incomplete, inconsistencies int
	for _, f := range findings {
		switch f.Kind {
		case ir.ProblemMissingClause:
			missing++
		case ir.ProblemIncompleteSpecification:
			incomplete++
		case ir.ProblemInconsistency:
			inconsistencies++
		}
	}

	return ir.Metrics{
		TotalClauses:    total,
		ValidClauses:    max(0, total-missing-incomplete),
		MissingClauses:  missing,
		Inconsistencies: inconsistencies,
	}
}

// SortedCategories returns the categories of per in problem order: the
// fixed categories first, then the rest alphabetically.
func SortedCategories(per map[ir.Category]float64) []ir.Category {
	out := make([]ir.Category, 0, len(per))
	for _, c := range ir.CategoryOrder {
		if _, ok := per[c]; ok {
			out = append(out, c)
		}
	}
	var rest []ir.Category
	for c := range per {
		if !slices.Contains(ir.CategoryOrder, c) {
			rest = append(rest, c)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}
