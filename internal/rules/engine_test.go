package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conformity/internal/ir"
)

func keywordRule(id string, check ir.Check) ir.Rule {
	return ir.Rule{
		ID:          id,
		Name:        id,
		Description: id + " failed",
		Category:    ir.CategoryFormal,
		Check:       check,
		Severity:    ir.SeverityMedium,
		Suggestion:  "fix " + id,
		Enabled:     true,
	}
}

func TestEvaluateAllKeywordsReportsMissingKeyword(t *testing.T) {
	e := New()
	rule := keywordRule("sys", ir.AllKeywords{Keywords: []string{"sistema", "eletrônico"}})

	p, err := e.Evaluate(context.Background(), rule, Prepare("Usaremos o SISTEMA de compras"))
	require.NoError(t, err)
	require.NotNil(t, p, "eletrônico is absent, rule must fail")
	assert.Equal(t, "sys failed", p.Description)
	assert.Equal(t, ir.DefaultProblemKind, p.Kind)
	assert.Equal(t, ir.DefaultLocation, p.Location)
	assert.Equal(t, "sys", p.RuleID)

	p, err = e.Evaluate(context.Background(), rule, Prepare("Sistema Eletrônico de compras"))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestEvaluateAnyKeyword(t *testing.T) {
	e := New()
	rule := keywordRule("obj", ir.AnyKeyword{Keywords: []string{"objeto", "finalidade"}})

	tests := []struct {
		name string
		text string
		fail bool
	}{
		{"first present", "O objeto desta licitação", false},
		{"second present", "Com a FINALIDADE de", false},
		{"none present", "Texto sem nada", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := e.Evaluate(context.Background(), rule, Prepare(tt.text))
			require.NoError(t, err)
			assert.Equal(t, tt.fail, p != nil)
		})
	}
}

func TestEvaluateKeywordMatchingIsNormalizationInsensitive(t *testing.T) {
	e := New()
	// keyword precomposed, text decomposed and upper case
	rule := keywordRule("n", ir.AllKeywords{Keywords: []string{"licita\u00e7\u00e3o"}})

	p, err := e.Evaluate(context.Background(), rule, Prepare("LICITAC\u0327A\u0303O"))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestEvaluatePatternIsCaseInsensitive(t *testing.T) {
	e := New()
	rule := keywordRule("art", ir.Pattern{Expr: `Art\.\s*\d+`})

	p, err := e.Evaluate(context.Background(), rule, Prepare("conforme ART. 40"))
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = e.Evaluate(context.Background(), rule, Prepare("sem referência"))
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestEvaluateInvalidPatternIsSkipped(t *testing.T) {
	e := New()
	rule := keywordRule("bad", ir.Pattern{Expr: "(unclosed"})

	p, err := e.Evaluate(context.Background(), rule, "anything")
	assert.Nil(t, p)
	require.Error(t, err)
	assert.True(t, IsRuleCompilationError(err))

	var rc *RuleCompilationError
	require.True(t, errors.As(err, &rc))
	assert.Equal(t, "bad", rc.RuleID)
	assert.Equal(t, "(unclosed", rc.Pattern)
}

func TestEvaluateAllInvalidPatternDoesNotBlockOthers(t *testing.T) {
	e := New()
	rules := []ir.Rule{
		keywordRule("bad", ir.Pattern{Expr: "[a-"}),
		keywordRule("missing", ir.AllKeywords{Keywords: []string{"garantia"}}),
		keywordRule("present", ir.AllKeywords{Keywords: []string{"prazo"}}),
	}

	ev, err := e.EvaluateAll(context.Background(), rules, Prepare("o prazo é de 10 dias"), ir.Classification{})
	require.NoError(t, err)

	require.Len(t, ev.Findings, 1)
	assert.Equal(t, "missing", ev.Findings[0].RuleID)
	require.Len(t, ev.Warnings, 1)
	assert.Contains(t, ev.Warnings[0], `rule "bad"`)
	assert.Zero(t, ev.Fallbacks)
}

func TestRegexCacheMemoizesPerRule(t *testing.T) {
	e := New()
	rule := keywordRule("p", ir.Pattern{Expr: "edital"})

	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), rule, "edital")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, e.regexes.Len())

	// Same rule id, new expression: new entry
	rule.Check = ir.Pattern{Expr: "termo"}
	_, err := e.Evaluate(context.Background(), rule, "termo")
	require.NoError(t, err)
	assert.Equal(t, 2, e.regexes.Len())

	// Compile failures are cached too
	bad := keywordRule("bad", ir.Pattern{Expr: "("})
	_, err = e.Evaluate(context.Background(), bad, "x")
	require.Error(t, err)
	_, err = e.Evaluate(context.Background(), bad, "x")
	require.Error(t, err)
	assert.Equal(t, 3, e.regexes.Len())
}

func TestEvaluateEmptyKeywordListIsSkipped(t *testing.T) {
	e := New()
	for _, check := range []ir.Check{
		ir.AllKeywords{},
		ir.AnyKeyword{Keywords: []string{"  "}},
	} {
		p, err := e.Evaluate(context.Background(), keywordRule("empty", check), "text")
		assert.Nil(t, p)
		assert.True(t, IsRuleCompilationError(err))
	}
}

func TestEvaluateCustomPredicate(t *testing.T) {
	e := New(WithPredicate("has-cnpj", func(_ context.Context, _ ir.Rule, text string) (bool, error) {
		return !containsAny(text, []string{"cnpj"}), nil
	}))
	rule := keywordRule("cnpj", ir.Custom{Hook: "has-cnpj"})

	p, err := e.Evaluate(context.Background(), rule, Prepare("CNPJ 00.000.000/0001-00"))
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = e.Evaluate(context.Background(), rule, Prepare("sem identificação"))
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestEvaluateCustomFallbacks(t *testing.T) {
	e := New()
	e.Register("boom", func(context.Context, ir.Rule, string) (bool, error) {
		panic("kaboom")
	})
	e.Register("err", func(context.Context, ir.Rule, string) (bool, error) {
		return false, errors.New("upstream down")
	})

	rules := []ir.Rule{
		keywordRule("unknown", ir.Custom{Hook: "nope"}),
		keywordRule("panics", ir.Custom{Hook: "boom"}),
		keywordRule("errors", ir.Custom{Hook: "err"}),
	}

	ev, err := e.EvaluateAll(context.Background(), rules, "text", ir.Classification{})
	require.NoError(t, err)
	assert.Empty(t, ev.Findings)
	assert.Len(t, ev.Warnings, 3)
	assert.Equal(t, 3, ev.Fallbacks)

	_, err = e.Evaluate(context.Background(), rules[0], "text")
	assert.ErrorIs(t, err, ErrUnknownHook)
	assert.True(t, e.HasPredicate("boom"))
	assert.False(t, e.HasPredicate("nope"))
}

func TestEvaluateAllPriorityOrder(t *testing.T) {
	e := New()
	mk := func(id string, prio int) ir.Rule {
		r := keywordRule(id, ir.AllKeywords{Keywords: []string{"absent"}})
		r.Priority = prio
		return r
	}
	disabled := mk("disabled", 100)
	disabled.Enabled = false

	rules := []ir.Rule{mk("low", 1), mk("high", 10), disabled, mk("mid-a", 5), mk("mid-b", 5)}

	ev, err := e.EvaluateAll(context.Background(), rules, "text", ir.Classification{})
	require.NoError(t, err)

	var ids []string
	for _, f := range ev.Findings {
		ids = append(ids, f.RuleID)
	}
	assert.Equal(t, []string{"high", "mid-a", "mid-b", "low"}, ids)
}

func TestEvaluateAllRunsBuiltinsAfterConfiguredRules(t *testing.T) {
	e := New()
	rules := []ir.Rule{keywordRule("custom", ir.AllKeywords{Keywords: []string{"absent"}})}

	ev, err := e.EvaluateAll(context.Background(), rules, Prepare("texto qualquer"), ir.Classification{DocumentType: ir.DocEdital})
	require.NoError(t, err)

	require.NotEmpty(t, ev.Findings)
	assert.Equal(t, "custom", ev.Findings[0].RuleID)
	assert.Equal(t, "builtin.edital.object", ev.Findings[1].RuleID)
	assert.Equal(t, ir.SeverityCritical, ev.Findings[1].Severity)
	assert.Equal(t, DescObjectUndefined, ev.Findings[1].Description)
}

func TestEvaluateCategoryFiltersByStage(t *testing.T) {
	e := New()
	legal := keywordRule("legal", ir.AllKeywords{Keywords: []string{"absent"}})
	legal.Category = ir.CategoryLegal
	abnt := keywordRule("abnt", ir.AllKeywords{Keywords: []string{"absent"}})
	abnt.Category = "abnt"
	rules := []ir.Rule{legal, abnt}

	cls := ir.Classification{DocumentType: ir.DocEdital}

	ev, err := e.EvaluateCategory(context.Background(), ir.CategoryLegal, rules, "nada", cls)
	require.NoError(t, err)
	var ids []string
	for _, f := range ev.Findings {
		ids = append(ids, f.RuleID)
	}
	assert.Equal(t, []string{"legal", "builtin.edital.object", "builtin.edital.judgement", "builtin.edital.deadline"}, ids)

	ev, err = e.EvaluateCategory(context.Background(), ir.CategoryGeneral, rules, "nada", cls)
	require.NoError(t, err)
	require.Len(t, ev.Findings, 1)
	assert.Equal(t, "abnt", ev.Findings[0].RuleID)
	assert.Equal(t, ir.Category("abnt"), ev.Findings[0].Category)
}

func TestEvaluateAllStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	e := New(WithPredicate("cancel", func(context.Context, ir.Rule, string) (bool, error) {
		calls++
		cancel()
		return true, nil
	}))

	rules := []ir.Rule{
		keywordRule("first", ir.Custom{Hook: "cancel"}),
		keywordRule("second", ir.Custom{Hook: "cancel"}),
	}

	ev, err := e.EvaluateAll(ctx, rules, "text", ir.Classification{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ev.Findings, "partial findings are discarded")
	assert.Equal(t, 1, calls)
}

func TestEvaluateCustomPredicateObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := New(WithPredicate("wait", func(ctx context.Context, _ ir.Rule, _ string) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}))

	_, err := e.Evaluate(ctx, keywordRule("w", ir.Custom{Hook: "wait"}), "text")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsCustomRuleError(err))
}
