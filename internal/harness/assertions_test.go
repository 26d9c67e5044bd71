package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conformity/internal/ir"
)

func sampleResult() *Result {
	res := &ir.AnalysisResult{
		ID:           "analysis-1",
		OverallScore: 82.5,
		PerCategoryScore: map[ir.Category]float64{
			ir.CategoryLegal:  70,
			ir.CategoryFormal: 95,
		},
		Problems: []ir.Problem{
			{RuleID: "sancoes", Category: ir.CategoryLegal, Severity: ir.SeverityHigh, Description: "sanctions clause missing"},
		},
		Metrics: ir.Metrics{CacheMisses: 1},
	}
	return &Result{
		Pass: true,
		Analyses: []Outcome{
			{
				Name:   "ok",
				Status: ir.AnalysisStatus{ID: "analysis-1", State: ir.StateCompleted, Steps: []string{"resolve-config", "complete"}},
				Result: res,
			},
			{
				Name: "failed",
				Status: ir.AnalysisStatus{
					ID:    "analysis-2",
					State: ir.StateFailed,
					Error: &ir.ErrorInfo{Kind: ir.ErrorTimeout, Message: "analysis timed out"},
				},
			},
		},
	}
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertProblemPresent, Analysis: "ok", Rule: "sancoes"},
		{Type: AssertProblemAbsent, Analysis: "ok", Rule: "cnpj"},
		{Type: AssertScoreAtLeast, Analysis: "ok", Value: 80},
		{Type: AssertScoreAtMost, Analysis: "ok", Category: ir.CategoryLegal, Value: 70},
		{Type: AssertSteps, Analysis: "ok", Steps: []string{"resolve-config", "complete"}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      []string
	}{
		{
			name:      "problem present",
			assertion: Assertion{Type: AssertProblemPresent, Analysis: "ok", Rule: "cnpj"},
			want:      []string{"Expected: problem from rule cnpj", "Actual: not reported", "[1] high sancoes (legal)"},
		},
		{
			name:      "problem absent",
			assertion: Assertion{Type: AssertProblemAbsent, Analysis: "ok", Rule: "sancoes"},
			want:      []string{"Expected: no problem from rule sancoes", "Actual: reported"},
		},
		{
			name:      "score at least",
			assertion: Assertion{Type: AssertScoreAtLeast, Analysis: "ok", Value: 90},
			want:      []string{"Expected: overall score >= 90", "Actual: overall score 82.5"},
		},
		{
			name:      "category score at most",
			assertion: Assertion{Type: AssertScoreAtMost, Analysis: "ok", Category: ir.CategoryFormal, Value: 90},
			want:      []string{"Expected: formal score <= 90", "Actual: formal score 95"},
		},
		{
			name:      "unscored category",
			assertion: Assertion{Type: AssertScoreAtLeast, Analysis: "ok", Category: ir.CategoryClarity, Value: 1},
			want:      []string{"Actual: category not scored"},
		},
		{
			name:      "steps",
			assertion: Assertion{Type: AssertSteps, Analysis: "ok", Steps: []string{"resolve-config"}},
			want:      []string{"Expected: steps [resolve-config]", "Actual: steps [resolve-config complete]"},
		},
		{
			name:      "cache hit",
			assertion: Assertion{Type: AssertCacheHit, Analysis: "ok"},
			want:      []string{"Actual: 0 cache hits, 1 misses"},
		},
		{
			name:      "failed analysis",
			assertion: Assertion{Type: AssertProblemPresent, Analysis: "failed", Rule: "sancoes"},
			want:      []string{"Expected: a completed analysis", "Actual: Failed (Timeout: analysis timed out)"},
		},
		{
			name:      "unknown analysis",
			assertion: Assertion{Type: AssertCacheHit, Analysis: "missing"},
			want:      []string{`unknown analysis "missing"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion})
			require.Len(t, errs, 1)
			for _, w := range tt.want {
				assert.Contains(t, errs[0], w)
			}
		})
	}
}

func TestCheckExpect(t *testing.T) {
	result := sampleResult()
	ok, _ := result.Outcome("ok")
	failed, _ := result.Outcome("failed")

	assert.Empty(t, checkExpect(ok, nil))
	assert.Empty(t, checkExpect(ok, &Expect{
		State:          ir.StateCompleted,
		OverallScore:   ptr(82.5),
		CategoryScores: map[ir.Category]float64{ir.CategoryLegal: 70},
		Problems:       []string{"sancoes"},
	}))
	assert.Empty(t, checkExpect(failed, &Expect{State: ir.StateFailed, ErrorKind: ir.ErrorTimeout}))

	errs := checkExpect(failed, &Expect{
		State:        ir.StateCompleted,
		ErrorKind:    ir.ErrorCancelled,
		OverallScore: ptr(50.0),
	})
	require.Len(t, errs, 3)
	assert.Equal(t, "analysis failed: expected state Completed, got Failed (Timeout: analysis timed out)", errs[0])
	assert.Equal(t, `analysis failed: expected error kind Cancelled, got "Timeout"`, errs[1])
	assert.Equal(t, "analysis failed: expected a result, analysis did not complete", errs[2])

	errs = checkExpect(ok, &Expect{
		State:          ir.StateCompleted,
		CategoryScores: map[ir.Category]float64{ir.CategoryClarity: 100},
	})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "expected clarity score 100, category not scored")
}

func TestResultAddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
