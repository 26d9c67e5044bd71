package ir

import (
	"encoding/json"
	"fmt"
	"slices"
)

// RuleKind names a rule variant on the wire.
type RuleKind string

const (
	KindAllKeywords RuleKind = "AllKeywords"
	KindAnyKeyword  RuleKind = "AnyKeyword"
	KindPattern     RuleKind = "Pattern"
	KindCustom      RuleKind = "Custom"
)

// Check is the variant part of a Rule. The set of implementations is closed:
// AllKeywords, AnyKeyword, Pattern and Custom.
type Check interface {
	Kind() RuleKind
	isCheck()
}

// AllKeywords fails when any keyword is absent from the text.
type AllKeywords struct {
	Keywords []string
}

// AnyKeyword fails when none of the keywords is present in the text.
type AnyKeyword struct {
	Keywords []string
}

// Pattern fails when the case-insensitive expression does not match.
type Pattern struct {
	Expr string
}

// Custom delegates the decision to a predicate registered under Hook.
type Custom struct {
	Hook string
}

func (AllKeywords) Kind() RuleKind { return KindAllKeywords }
func (AnyKeyword) Kind() RuleKind  { return KindAnyKeyword }
func (Pattern) Kind() RuleKind     { return KindPattern }
func (Custom) Kind() RuleKind      { return KindCustom }

func (AllKeywords) isCheck() {}
func (AnyKeyword) isCheck()  {}
func (Pattern) isCheck()     {}
func (Custom) isCheck()      {}

// Default finding attributes used when a rule leaves them empty.
const (
	DefaultProblemKind = "inconsistency"
	DefaultLocation    = "document-general"
)

// Rule is an operator-authored check evaluated against document text.
type Rule struct {
	ID          string
	Name        string
	Description string
	Category    Category
	Check       Check
	ProblemKind string
	Location    string
	Severity    Severity
	Suggestion  string
	Enabled     bool
	Priority    int
}

// Kind returns the variant kind, or "" when the rule has no check.
func (r Rule) Kind() RuleKind {
	if r.Check == nil {
		return ""
	}
	return r.Check.Kind()
}

// Clone returns a deep copy of r.
func (r Rule) Clone() Rule {
	out := r
	switch c := r.Check.(type) {
	case AllKeywords:
		out.Check = AllKeywords{Keywords: slices.Clone(c.Keywords)}
	case AnyKeyword:
		out.Check = AnyKeyword{Keywords: slices.Clone(c.Keywords)}
	}
	return out
}

// ruleJSON is the wire shape of a Rule: the variant is flattened into
// kind plus the one field that kind needs.
type ruleJSON struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    Category `json:"category"`
	Kind        RuleKind `json:"kind"`
	KeywordsAll []string `json:"keywordsAll,omitempty"`
	KeywordsAny []string `json:"keywordsAny,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	Hook        string   `json:"hook,omitempty"`
	ProblemKind string   `json:"problemKind,omitempty"`
	Location    string   `json:"location,omitempty"`
	Severity    Severity `json:"severity"`
	Suggestion  string   `json:"suggestion,omitempty"`
	Enabled     bool     `json:"enabled"`
	Priority    int      `json:"priority"`
}

// MarshalJSON implements json.Marshaler.
func (r Rule) MarshalJSON() ([]byte, error) {
	w := ruleJSON{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		ProblemKind: r.ProblemKind,
		Location:    r.Location,
		Severity:    r.Severity,
		Suggestion:  r.Suggestion,
		Enabled:     r.Enabled,
		Priority:    r.Priority,
	}
	switch c := r.Check.(type) {
	case AllKeywords:
		w.Kind = KindAllKeywords
		w.KeywordsAll = c.Keywords
	case AnyKeyword:
		w.Kind = KindAnyKeyword
		w.KeywordsAny = c.Keywords
	case Pattern:
		w.Kind = KindPattern
		w.Pattern = c.Expr
	case Custom:
		w.Kind = KindCustom
		w.Hook = c.Hook
	case nil:
		return nil, fmt.Errorf("rule %q: missing check", r.ID)
	default:
		return nil, fmt.Errorf("rule %q: unsupported check %T", r.ID, r.Check)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
// Unknown kinds are rejected.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var w ruleJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var check Check
	switch w.Kind {
	case KindAllKeywords:
		check = AllKeywords{Keywords: w.KeywordsAll}
	case KindAnyKeyword:
		check = AnyKeyword{Keywords: w.KeywordsAny}
	case KindPattern:
		check = Pattern{Expr: w.Pattern}
	case KindCustom:
		check = Custom{Hook: w.Hook}
	default:
		return fmt.Errorf("rule %q: unknown kind %q", w.ID, w.Kind)
	}

	*r = Rule{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Category:    w.Category,
		Check:       check,
		ProblemKind: w.ProblemKind,
		Location:    w.Location,
		Severity:    w.Severity,
		Suggestion:  w.Suggestion,
		Enabled:     w.Enabled,
		Priority:    w.Priority,
	}
	return nil
}
