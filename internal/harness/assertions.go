package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/conformity/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the analysis outcome to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Analysis string // Step name
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Problems []ir.Problem
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (%s)\n", e.Type, e.Analysis)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Problems) > 0 {
		fmt.Fprintf(&buf, "\nReported problems:\n")
		for i, p := range e.Problems {
			fmt.Fprintf(&buf, "  [%d] %s %s (%s): %s\n", i+1, p.Severity, p.RuleID, p.Category, p.Description)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		outcome, ok := result.Outcome(a.Analysis)
		if !ok {
			errs = append(errs, fmt.Sprintf("assertion %s: unknown analysis %q", a.Type, a.Analysis))
			continue
		}
		if err := evaluateAssertion(outcome, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluateAssertion(o Outcome, a Assertion) error {
	switch a.Type {
	case AssertProblemPresent:
		return assertProblem(o, a, true)
	case AssertProblemAbsent:
		return assertProblem(o, a, false)
	case AssertScoreAtLeast:
		return assertScore(o, a, func(got float64) bool { return got >= a.Value }, ">=")
	case AssertScoreAtMost:
		return assertScore(o, a, func(got float64) bool { return got <= a.Value }, "<=")
	case AssertSteps:
		return assertSteps(o, a)
	case AssertCacheHit:
		return assertCacheHit(o, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func completed(o Outcome, a Assertion) (*ir.AnalysisResult, error) {
	if o.Result == nil {
		return nil, &AssertionError{
			Type:     a.Type,
			Analysis: o.Name,
			Expected: "a completed analysis",
			Actual:   describeState(o.Status),
		}
	}
	return o.Result, nil
}

// assertProblem checks whether the result reports a problem from a.Rule.
func assertProblem(o Outcome, a Assertion, want bool) error {
	res, err := completed(o, a)
	if err != nil {
		return err
	}

	found := slices.ContainsFunc(res.Problems, func(p ir.Problem) bool { return p.RuleID == a.Rule })
	if found == want {
		return nil
	}

	expected, actual := "problem from rule "+a.Rule, "not reported"
	if !want {
		expected, actual = "no problem from rule "+a.Rule, "reported"
	}
	return &AssertionError{
		Type:     a.Type,
		Analysis: o.Name,
		Expected: expected,
		Actual:   actual,
		Problems: res.Problems,
	}
}

// assertScore compares the overall score, or a category score when
// a.Category is set, against a.Value.
func assertScore(o Outcome, a Assertion, ok func(float64) bool, op string) error {
	res, err := completed(o, a)
	if err != nil {
		return err
	}

	label := "overall score"
	got := res.OverallScore
	if a.Category != "" {
		label = string(a.Category) + " score"
		score, present := res.PerCategoryScore[a.Category]
		if !present {
			return &AssertionError{
				Type:     a.Type,
				Analysis: o.Name,
				Expected: fmt.Sprintf("%s %s %g", label, op, a.Value),
				Actual:   "category not scored",
			}
		}
		got = score
	}

	if ok(got) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Analysis: o.Name,
		Expected: fmt.Sprintf("%s %s %g", label, op, a.Value),
		Actual:   fmt.Sprintf("%s %g", label, got),
		Problems: res.Problems,
	}
}

func assertSteps(o Outcome, a Assertion) error {
	if slices.Equal(o.Status.Steps, a.Steps) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Analysis: o.Name,
		Expected: fmt.Sprintf("steps %v", a.Steps),
		Actual:   fmt.Sprintf("steps %v", o.Status.Steps),
	}
}

func assertCacheHit(o Outcome, a Assertion) error {
	res, err := completed(o, a)
	if err != nil {
		return err
	}
	if res.Metrics.CacheHits == 1 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Analysis: o.Name,
		Expected: "result served from the content cache",
		Actual:   fmt.Sprintf("%d cache hits, %d misses", res.Metrics.CacheHits, res.Metrics.CacheMisses),
	}
}

// checkExpect compares an outcome against its step's expect clause.
func checkExpect(o Outcome, e *Expect) []string {
	if e == nil {
		return nil
	}

	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("analysis %s: ", o.Name)+fmt.Sprintf(format, args...))
	}

	if o.Status.State != e.State {
		fail("expected state %s, got %s", e.State, describeState(o.Status))
	}
	if e.ErrorKind != "" {
		var got ir.ErrorKind
		if o.Status.Error != nil {
			got = o.Status.Error.Kind
		}
		if got != e.ErrorKind {
			fail("expected error kind %s, got %q", e.ErrorKind, got)
		}
	}

	res := o.Result
	if res == nil {
		if e.OverallScore != nil || len(e.CategoryScores) > 0 || e.Problems != nil {
			fail("expected a result, analysis did not complete")
		}
		return errs
	}

	if e.OverallScore != nil && res.OverallScore != *e.OverallScore {
		fail("expected overall score %g, got %g", *e.OverallScore, res.OverallScore)
	}
	for c, want := range e.CategoryScores {
		got, ok := res.PerCategoryScore[c]
		switch {
		case !ok:
			fail("expected %s score %g, category not scored", c, want)
		case got != want:
			fail("expected %s score %g, got %g", c, want, got)
		}
	}
	if e.Problems != nil {
		got := make([]string, 0, len(res.Problems))
		for _, p := range res.Problems {
			got = append(got, p.RuleID)
		}
		if !slices.Equal(got, e.Problems) {
			fail("expected problems %v, got %v", e.Problems, got)
		}
	}
	return errs
}

func describeState(s ir.AnalysisStatus) string {
	if s.Error != nil {
		return fmt.Sprintf("%s (%s: %s)", s.State, s.Error.Kind, s.Error.Message)
	}
	return string(s.State)
}
