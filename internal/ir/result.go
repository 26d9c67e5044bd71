package ir

import "slices"

// Well-known problem kinds.
const (
	ProblemMissingClause           = "missing_clause"
	ProblemIrregularCriterion      = "irregular_criterion"
	ProblemIncompleteSpecification = "incomplete_specification"
	ProblemIncorrectModality       = "incorrect_modality"
	ProblemInconsistency           = DefaultProblemKind
)

// Problem is a single rule-evaluation failure.
// (Kind, Description) is its identity for deduplication.
type Problem struct {
	Kind        string   `json:"kind"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Location    string   `json:"location,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Category    Category `json:"category"`
	RuleID      string   `json:"ruleId,omitempty"`
}

// Metrics are measured, never estimated.
type Metrics struct {
	TotalClauses     int   `json:"totalClauses"`
	ValidClauses     int   `json:"validClauses"`
	MissingClauses   int   `json:"missingClauses"`
	Inconsistencies  int   `json:"inconsistencies"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
	CacheHits        int64 `json:"cacheHits"`
	CacheMisses      int64 `json:"cacheMisses"`
	FallbackCount    int64 `json:"fallbackCount"`
}

// AnalysisResult is the outcome of a completed analysis.
type AnalysisResult struct {
	ID               string               `json:"id"`
	OverallScore     float64              `json:"overallScore"`
	PerCategoryScore map[Category]float64 `json:"perCategoryScore"`
	Problems         []Problem            `json:"problems"`
	Recommendations  []string             `json:"recommendations"`
	Warnings         []string             `json:"warnings,omitempty"`
	Metrics          Metrics              `json:"metrics"`
}

// Clone returns a deep copy of r.
func (r AnalysisResult) Clone() AnalysisResult {
	out := r
	if r.PerCategoryScore != nil {
		out.PerCategoryScore = make(map[Category]float64, len(r.PerCategoryScore))
		for k, v := range r.PerCategoryScore {
			out.PerCategoryScore[k] = v
		}
	}
	out.Problems = slices.Clone(r.Problems)
	out.Recommendations = slices.Clone(r.Recommendations)
	out.Warnings = slices.Clone(r.Warnings)
	return out
}
