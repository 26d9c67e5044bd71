package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/conformity/internal/config"
	"github.com/roach88/conformity/internal/ir"
	"github.com/roach88/conformity/internal/rules"
	"github.com/roach88/conformity/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var gateRule = ir.Rule{
	ID:       "gate",
	Name:     "Gate",
	Category: ir.CategoryLegal,
	Check:    ir.Custom{Hook: "gate"},
	Severity: ir.SeverityLow,
	Enabled:  true,
}

var fullSteps = []string{
	ir.StepResolveConfig,
	string(ir.CategoryStructural),
	string(ir.CategoryLegal),
	string(ir.CategoryClarity),
	string(ir.CategoryFormal),
	ir.StepAggregate,
	ir.StepDedupe,
	ir.StepComplete,
}

const compliantEdital = "Edital de pregão. Cláusula 1: o objeto é a aquisição de papel. " +
	"Cláusula 2: critério de julgamento menor preço. Item 3: prazo de entrega de 10 dias."

const editalWithoutObject = "Edital de pregão. Cláusula 1: critério de julgamento menor preço. " +
	"Item 2: prazo de entrega de 10 dias."

func gatedConfig() ir.OrganizationConfig {
	cfg := config.DefaultConfig("org-1")
	cfg.Rules = []ir.Rule{gateRule}
	return cfg
}

// configs resolves by config id: "gated" or anything else (default).
type configs struct {
	mu    sync.Mutex
	orgs  []string
	onHit func()
}

func (c *configs) Resolve(_ context.Context, ref config.Ref) (ir.OrganizationConfig, error) {
	c.mu.Lock()
	c.orgs = append(c.orgs, ref.OrganizationID)
	hook := c.onHit
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	if ref.ConfigID == "gated" {
		return gatedConfig(), nil
	}
	return config.DefaultConfig(ref.OrganizationID), nil
}

func (c *configs) resolved() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.orgs...)
}

func newGated(t *testing.T, opts ...Option) (*Orchestrator, *configs, *testutil.Gate) {
	t.Helper()

	gate := testutil.NewGate()
	eng := rules.New(rules.WithLogger(discard), rules.WithPredicate("gate", gate.Predicate))
	res := &configs{}

	o := New(res, eng, append([]Option{WithLogger(discard)}, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, o.Close(ctx))
	})
	t.Cleanup(gate.Release)
	return o, res, gate
}

func waitEntered(t *testing.T, gate *testutil.Gate) {
	t.Helper()
	select {
	case <-gate.Entered():
	case <-time.After(2 * time.Second):
		t.Fatal("no analysis reached the gate")
	}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("analysis %s did not finish", h.ID)
	}
}

func gated(org string) Request {
	return Request{
		Text:   "documento com cláusula",
		Config: config.Ref{OrganizationID: org, ConfigID: "gated"},
	}
}

func TestOrchestrator_CompletesWithStepHistory(t *testing.T) {
	o, _, _ := newGated(t, WithIDGenerator(NewFixedGenerator("a-1")))

	res, err := o.Analyze(context.Background(), Request{
		Text:           compliantEdital,
		Classification: ir.Classification{DocumentType: ir.DocEdital},
		Config:         config.Ref{OrganizationID: "org-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "a-1", res.ID)
	assert.Equal(t, 100.0, res.OverallScore)
	assert.Empty(t, res.Problems)
	assert.NotNil(t, res.Problems, "problems serialize as an empty list")
	assert.Equal(t, 3, res.Metrics.TotalClauses)
	assert.Equal(t, int64(1), res.Metrics.CacheMisses)

	st, err := o.Status("a-1")
	require.NoError(t, err)
	assert.Equal(t, ir.StateCompleted, st.State)
	assert.Equal(t, 100, st.ProgressPct)
	assert.Equal(t, ir.StepComplete, st.CurrentStep)
	assert.Equal(t, fullSteps, st.Steps)
	assert.NotNil(t, st.CompletedAt)
	assert.Nil(t, st.Error)
}

func TestOrchestrator_CriticalEditalFinding(t *testing.T) {
	o, _, _ := newGated(t)

	res, err := o.Analyze(context.Background(), Request{
		Text:           editalWithoutObject,
		Classification: ir.Classification{DocumentType: ir.DocEdital},
		Config:         config.Ref{OrganizationID: "org-1"},
	})
	require.NoError(t, err)

	require.Len(t, res.Problems, 1)
	p := res.Problems[0]
	assert.Equal(t, rules.DescObjectUndefined, p.Description)
	assert.Equal(t, ir.SeverityCritical, p.Severity)
	assert.Equal(t, ir.ProblemMissingClause, p.Kind)

	assert.Equal(t, 75.0, res.PerCategoryScore[ir.CategoryLegal], "a critical finding deducts 25")
	assert.Equal(t, 93.75, res.OverallScore)
	assert.Equal(t, 1, res.Metrics.MissingClauses)
	assert.Contains(t, res.Recommendations, p.Suggestion)
}

func TestOrchestrator_OverridesWin(t *testing.T) {
	o, _, _ := newGated(t)

	res, err := o.Analyze(context.Background(), Request{
		Text:           editalWithoutObject,
		Classification: ir.Classification{DocumentType: ir.DocEdital},
		Config:         config.Ref{OrganizationID: "org-1"},
		Overrides: map[string]Override{
			config.ParamLegal:      {Weight: ptr(100.0)},
			config.ParamStructural: {Enabled: ptr(false)},
			config.ParamClarity:    {Enabled: ptr(false)},
			config.ParamFormal:     {Enabled: ptr(false)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 75.0, res.OverallScore, "only the legal category carries weight")
}

func TestOrchestrator_BadOverrideFailsWithValidation(t *testing.T) {
	o, _, _ := newGated(t, WithIDGenerator(NewFixedGenerator("a-1")))

	_, err := o.Analyze(context.Background(), Request{
		Text:      "texto",
		Config:    config.Ref{OrganizationID: "org-1"},
		Overrides: map[string]Override{"nope": {Weight: ptr(10.0)}},
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.True(t, config.IsValidationFailed(err), "the validation errors are not swallowed")

	st, err := o.Status("a-1")
	require.NoError(t, err)
	assert.Equal(t, ir.StateFailed, st.State)
	require.NotNil(t, st.Error)
	assert.Equal(t, ir.ErrorValidation, st.Error.Kind)
}

func TestOrchestrator_WeightFallback(t *testing.T) {
	o, _, _ := newGated(t)

	res, err := o.Analyze(context.Background(), Request{
		Text:           editalWithoutObject,
		Classification: ir.Classification{DocumentType: ir.DocEdital},
		Config:         config.Ref{OrganizationID: "org-1"},
		Overrides: map[string]Override{
			config.ParamStructural: {Enabled: ptr(false)},
			config.ParamLegal:      {Enabled: ptr(false)},
			config.ParamClarity:    {Enabled: ptr(false)},
			config.ParamFormal:     {Enabled: ptr(false)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Metrics.FallbackCount)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "equal category weights")
	assert.Equal(t, 93.75, res.OverallScore)
}

func TestOrchestrator_CustomRuleFallbackIsVisible(t *testing.T) {
	cfg := config.DefaultConfig("org-1")
	cfg.Rules = []ir.Rule{{
		ID:       "cnpj",
		Name:     "CNPJ",
		Category: ir.CategoryFormal,
		Check:    ir.Custom{Hook: "cnpj-valido"},
		Severity: ir.SeverityHigh,
		Enabled:  true,
	}}
	resolver := ResolverFunc(func(context.Context, config.Ref) (ir.OrganizationConfig, error) {
		return cfg, nil
	})
	o := New(resolver, rules.New(rules.WithLogger(discard)), WithLogger(discard))
	defer o.Close(context.Background())

	res, err := o.Analyze(context.Background(), Request{Text: "texto"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Metrics.FallbackCount)
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, 100.0, res.OverallScore)
	assert.Equal(t, int64(1), o.Stats().Fallbacks)
	assert.Equal(t, 0, o.Stats().ContentCacheEntries, "a degraded result is not cached")
}

func TestOrchestrator_DegradedResultIsRecomputed(t *testing.T) {
	cfg := config.DefaultConfig("org-1")
	cfg.Rules = []ir.Rule{{
		ID:       "cnpj",
		Name:     "CNPJ",
		Category: ir.CategoryFormal,
		Check:    ir.Custom{Hook: "cnpj-valido"},
		Severity: ir.SeverityHigh,
		Enabled:  true,
	}}
	resolver := ResolverFunc(func(context.Context, config.Ref) (ir.OrganizationConfig, error) {
		return cfg, nil
	})
	eng := rules.New(rules.WithLogger(discard))
	o := New(resolver, eng, WithLogger(discard))
	defer o.Close(context.Background())
	ctx := context.Background()

	first, err := o.Analyze(ctx, Request{Text: "texto"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Metrics.FallbackCount)
	assert.Empty(t, first.Problems)

	eng.Register("cnpj-valido", func(context.Context, ir.Rule, string) (bool, error) {
		return true, nil
	})

	second, err := o.Analyze(ctx, Request{Text: "texto"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Metrics.CacheMisses, "the same content is evaluated again")
	assert.Equal(t, int64(0), second.Metrics.CacheHits)
	assert.Equal(t, int64(0), second.Metrics.FallbackCount)
	require.Len(t, second.Problems, 1)
	assert.Equal(t, "cnpj", second.Problems[0].RuleID)
	assert.Equal(t, 85.0, second.PerCategoryScore[ir.CategoryFormal])

	stats := o.Stats()
	assert.Equal(t, int64(0), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, 1, stats.ContentCacheEntries)
}

func TestOrchestrator_DuplicateFindingsDeductOnce(t *testing.T) {
	guarantee := func(id string) ir.Rule {
		return ir.Rule{
			ID:          id,
			Name:        "Garantia",
			Description: "Garantia contratual não prevista",
			Category:    ir.CategoryLegal,
			Check:       ir.AnyKeyword{Keywords: []string{"garantia"}},
			ProblemKind: ir.ProblemMissingClause,
			Severity:    ir.SeverityHigh,
			Enabled:     true,
		}
	}
	cfg := config.DefaultConfig("org-1")
	cfg.Rules = []ir.Rule{guarantee("garantia-1"), guarantee("garantia-2")}
	resolver := ResolverFunc(func(context.Context, config.Ref) (ir.OrganizationConfig, error) {
		return cfg, nil
	})
	o := New(resolver, rules.New(rules.WithLogger(discard)), WithLogger(discard))
	defer o.Close(context.Background())

	res, err := o.Analyze(context.Background(), Request{Text: "texto sem cláusulas"})
	require.NoError(t, err)
	require.Len(t, res.Problems, 1)
	assert.Equal(t, "garantia-1", res.Problems[0].RuleID, "the first occurrence wins")
	assert.Equal(t, 85.0, res.PerCategoryScore[ir.CategoryLegal], "duplicates deduct once")
}

func TestOrchestrator_ContentCache(t *testing.T) {
	o, _, _ := newGated(t, WithIDGenerator(NewFixedGenerator("a-1", "a-2", "a-3", "a-4")))
	ctx := context.Background()
	req := Request{
		Text:           editalWithoutObject,
		Classification: ir.Classification{DocumentType: ir.DocEdital},
		Config:         config.Ref{OrganizationID: "org-1"},
	}

	first, err := o.Analyze(ctx, req)
	require.NoError(t, err)
	second, err := o.Analyze(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "a-2", second.ID)
	assert.Equal(t, int64(1), second.Metrics.CacheHits)
	assert.Equal(t, int64(0), second.Metrics.CacheMisses)
	assert.Equal(t, first.Problems, second.Problems)
	assert.Equal(t, first.OverallScore, second.OverallScore)

	st, err := o.Status("a-2")
	require.NoError(t, err)
	assert.Equal(t, []string{ir.StepResolveConfig, ir.StepComplete}, st.Steps)

	req.Overrides = map[string]Override{config.ParamLegal: {Weight: ptr(40.0)}}
	third, err := o.Analyze(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), third.Metrics.CacheMisses, "overrides change the content key")

	o.InvalidateContentCache()
	req.Overrides = nil
	fourth, err := o.Analyze(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fourth.Metrics.CacheMisses)

	stats := o.Stats()
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.Equal(t, 1, stats.ContentCacheEntries)
}

func TestOrchestrator_AdmissionIsBoundedAndFIFO(t *testing.T) {
	o, res, gate := newGated(t,
		WithMaxConcurrent(1),
		WithQueueLimit(3),
		WithIDGenerator(NewFixedGenerator("a", "b", "c", "d", "e")),
	)
	ctx := context.Background()

	h1, err := o.Submit(ctx, gated("org-a"))
	require.NoError(t, err)
	waitEntered(t, gate)

	var queued []*Handle
	for _, org := range []string{"org-b", "org-c", "org-d"} {
		h, err := o.Submit(ctx, gated(org))
		require.NoError(t, err)
		queued = append(queued, h)
	}

	st := queued[0].Status()
	assert.Equal(t, ir.StatePending, st.State)
	assert.Equal(t, ir.StepQueued, st.CurrentStep)
	assert.Equal(t, 0, st.ProgressPct)
	assert.Nil(t, st.EstimatedTimeRemainingSec, "no estimate before any completion")

	stats := o.Stats()
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, 3, stats.Pending)

	_, err = o.Submit(ctx, gated("org-e"))
	require.Error(t, err)
	assert.True(t, IsResourceExhausted(err))
	var re *ResourceExhaustedError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ResourceExhaustedError{Running: 1, Pending: 3, QueueLimit: 3}, *re)

	_, err = o.Result("b")
	assert.ErrorIs(t, err, ErrNotReady)

	gate.Release()
	_, err = h1.Wait(ctx)
	require.NoError(t, err)
	for _, h := range queued {
		_, err := h.Wait(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"org-a", "org-b", "org-c", "org-d"}, res.resolved(), "queued analyses start in submission order")
	assert.Equal(t, int64(1), o.Stats().Rejected)
}

func TestOrchestrator_QueuePosition(t *testing.T) {
	o, _, gate := newGated(t, WithMaxConcurrent(1))
	ctx := context.Background()

	running, err := o.Submit(ctx, gated("org-a"))
	require.NoError(t, err)
	waitEntered(t, gate)

	var queued []*Handle
	for _, org := range []string{"org-b", "org-c", "org-d"} {
		h, err := o.Submit(ctx, gated(org))
		require.NoError(t, err)
		queued = append(queued, h)
	}

	assert.Nil(t, running.Status().QueuePosition, "a processing analysis has no queue position")
	for i, h := range queued {
		pos := h.Status().QueuePosition
		require.NotNil(t, pos)
		assert.Equal(t, i+1, *pos)
	}

	queued[0].Cancel()
	waitDone(t, queued[0])
	assert.Nil(t, queued[0].Status().QueuePosition)

	st, err := o.Status(queued[2].ID)
	require.NoError(t, err)
	require.NotNil(t, st.QueuePosition)
	assert.Equal(t, 2, *st.QueuePosition, "positions shift after a removal")

	gate.Release()
	for _, h := range []*Handle{running, queued[1], queued[2]} {
		_, err := h.Wait(ctx)
		require.NoError(t, err)
	}
}

func TestOrchestrator_ConcurrencyCap(t *testing.T) {
	o, _, gate := newGated(t, WithMaxConcurrent(2))
	ctx := context.Background()

	for _, org := range []string{"org-a", "org-b", "org-c"} {
		_, err := o.Submit(ctx, gated(org))
		require.NoError(t, err)
	}
	waitEntered(t, gate)
	waitEntered(t, gate)

	stats := o.Stats()
	assert.Equal(t, 2, stats.Running)
	assert.Equal(t, 1, stats.Pending)

	live := o.List()
	require.Len(t, live, 3)
	assert.Equal(t, ir.StateProcessing, live[0].State)
	assert.Equal(t, ir.StateProcessing, live[1].State)
	assert.Equal(t, ir.StatePending, live[2].State)
}

func TestOrchestrator_CancelProcessing(t *testing.T) {
	o, _, gate := newGated(t, WithIDGenerator(NewFixedGenerator("a-1")))
	ctx := context.Background()
	req := gated("org-1")

	h, err := o.Submit(ctx, req)
	require.NoError(t, err)
	waitEntered(t, gate)

	require.NoError(t, o.Cancel(h.ID))
	_, err = h.Wait(ctx)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))

	st, err := o.Status(h.ID)
	require.NoError(t, err)
	assert.Equal(t, ir.StateCancelled, st.State)
	require.NotNil(t, st.Error)
	assert.Equal(t, ir.ErrorCancelled, st.Error.Kind)

	_, err = o.Result(h.ID)
	assert.True(t, IsCancelled(err))
	assert.NoError(t, o.Cancel(h.ID), "cancelling a terminal analysis is a no-op")

	// Let the worker observe the cancellation and exit.
	require.NoError(t, o.Close(ctx))

	key, err := contentKey(req.Text, gatedConfig(), req.Classification)
	require.NoError(t, err)
	assert.False(t, o.content.contains(key), "a cancelled analysis never writes the content cache")
	assert.Equal(t, 0, o.Stats().ContentCacheEntries)
	assert.Equal(t, int64(1), o.Stats().Cancelled)
}

func TestOrchestrator_CancelPending(t *testing.T) {
	o, _, gate := newGated(t, WithMaxConcurrent(1))
	ctx := context.Background()

	h1, err := o.Submit(ctx, gated("org-a"))
	require.NoError(t, err)
	waitEntered(t, gate)

	h2, err := o.Submit(ctx, gated("org-b"))
	require.NoError(t, err)

	h2.Cancel()
	waitDone(t, h2)
	assert.Equal(t, ir.StateCancelled, h2.Status().State)
	assert.Empty(t, h2.Status().Steps, "a pending analysis never started")
	assert.Equal(t, 0, o.Stats().Pending)

	gate.Release()
	_, err = h1.Wait(ctx)
	require.NoError(t, err)
}

func TestOrchestrator_Timeout(t *testing.T) {
	o, _, _ := newGated(t)
	ctx := context.Background()

	req := gated("org-1")
	req.Timeout = 20 * time.Millisecond

	h, err := o.Submit(ctx, req)
	require.NoError(t, err)

	_, err = h.Wait(ctx)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.False(t, IsCancelled(err), "a timeout is distinct from a cancellation")

	st := h.Status()
	assert.Equal(t, ir.StateFailed, st.State)
	require.NotNil(t, st.Error)
	assert.Equal(t, ir.ErrorTimeout, st.Error.Kind)
	assert.Equal(t, 0, o.Stats().ContentCacheEntries)
}

func TestOrchestrator_TimeoutIsTerminalWhileRuleIgnoresContext(t *testing.T) {
	unblock := make(chan struct{})
	var returned atomic.Bool
	stubborn := func(context.Context, ir.Rule, string) (bool, error) {
		<-unblock
		returned.Store(true)
		return false, nil
	}

	cfg := config.DefaultConfig("org-1")
	cfg.Rules = []ir.Rule{{
		ID:       "stubborn",
		Name:     "Stubborn",
		Category: ir.CategoryLegal,
		Check:    ir.Custom{Hook: "stubborn"},
		Severity: ir.SeverityLow,
		Enabled:  true,
	}}
	resolver := ResolverFunc(func(_ context.Context, ref config.Ref) (ir.OrganizationConfig, error) {
		if ref.ConfigID == "stubborn" {
			return cfg, nil
		}
		return config.DefaultConfig(ref.OrganizationID), nil
	})
	eng := rules.New(rules.WithLogger(discard), rules.WithPredicate("stubborn", stubborn))
	o := New(resolver, eng, WithLogger(discard), WithMaxConcurrent(1))
	ctx := context.Background()

	slow, err := o.Submit(ctx, Request{
		Text:    "texto",
		Config:  config.Ref{OrganizationID: "org-1", ConfigID: "stubborn"},
		Timeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	next, err := o.Submit(ctx, Request{Text: "texto", Config: config.Ref{OrganizationID: "org-2"}})
	require.NoError(t, err)

	waitDone(t, slow)
	assert.False(t, returned.Load(), "terminal before the rule returns")

	_, err = slow.Wait(ctx)
	assert.True(t, IsTimeout(err))
	st := slow.Status()
	assert.Equal(t, ir.StateFailed, st.State)
	require.NotNil(t, st.Error)
	assert.Equal(t, ir.ErrorTimeout, st.Error.Kind)

	_, err = next.Wait(ctx)
	require.NoError(t, err, "the freed slot runs the queued analysis")
	assert.False(t, returned.Load())
	assert.Equal(t, 0, o.Stats().Running)

	close(unblock)
	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, o.Close(closeCtx))

	assert.True(t, returned.Load())
	assert.Equal(t, ir.StateFailed, slow.Status().State, "the late outcome is dropped")
	stats := o.Stats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, 1, stats.ContentCacheEntries, "only the completed analysis is cached")
}

func TestOrchestrator_ResolveFailure(t *testing.T) {
	errBoom := errors.New("database unavailable")
	resolver := ResolverFunc(func(context.Context, config.Ref) (ir.OrganizationConfig, error) {
		return ir.OrganizationConfig{}, errBoom
	})
	o := New(resolver, rules.New(), WithLogger(discard))
	defer o.Close(context.Background())

	_, err := o.Analyze(context.Background(), Request{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)

	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ir.ErrorInternal, ae.Kind)
	assert.Equal(t, int64(1), o.Stats().Failed)
}

type panicEvaluator struct{}

func (panicEvaluator) EvaluateCategory(context.Context, ir.Category, []ir.Rule, string, ir.Classification) (rules.Evaluation, error) {
	panic("boom")
}

func TestOrchestrator_PanicBecomesInternalError(t *testing.T) {
	resolver := ResolverFunc(func(_ context.Context, ref config.Ref) (ir.OrganizationConfig, error) {
		return config.DefaultConfig(ref.OrganizationID), nil
	})
	o := New(resolver, panicEvaluator{}, WithLogger(discard))
	defer o.Close(context.Background())

	_, err := o.Analyze(context.Background(), Request{Text: "x"})
	require.Error(t, err)

	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ir.ErrorInternal, ae.Kind)
	assert.Contains(t, err.Error(), "panic: boom")
}

func TestOrchestrator_EstimatedTimeRemaining(t *testing.T) {
	clock := testutil.NewManualClock(time.Time{})
	o, res, gate := newGated(t, WithSequential(), WithNow(clock.Now))
	res.onHit = func() { clock.Advance(10 * time.Second) }
	ctx := context.Background()

	first, err := o.Analyze(ctx, Request{Text: "x", Config: config.Ref{OrganizationID: "org-1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), first.Metrics.ProcessingTimeMs, "processing time is measured")

	h, err := o.Submit(ctx, gated("org-1"))
	require.NoError(t, err)
	waitEntered(t, gate)

	st := h.Status()
	assert.Equal(t, ir.StateProcessing, st.State)
	assert.Equal(t, 20, st.ProgressPct, "structural finished, legal parked")
	require.NotNil(t, st.EstimatedTimeRemainingSec)
	assert.Equal(t, 8, *st.EstimatedTimeRemainingSec)
}

func TestOrchestrator_Close(t *testing.T) {
	o, _, gate := newGated(t, WithMaxConcurrent(1))
	ctx := context.Background()

	running, err := o.Submit(ctx, gated("org-a"))
	require.NoError(t, err)
	waitEntered(t, gate)
	pending, err := o.Submit(ctx, gated("org-b"))
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- o.Close(ctx) }()

	waitDone(t, pending)
	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, IsCancelled(err))

	_, err = o.Submit(ctx, gated("org-c"))
	assert.ErrorIs(t, err, ErrClosed)

	gate.Release()
	require.NoError(t, <-closed)
	_, err = running.Wait(ctx)
	assert.NoError(t, err, "close waits for running analyses")
}

func TestOrchestrator_CloseDeadlineCancelsRunning(t *testing.T) {
	o, _, gate := newGated(t)

	h, err := o.Submit(context.Background(), gated("org-a"))
	require.NoError(t, err)
	waitEntered(t, gate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = o.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = h.Wait(context.Background())
	assert.True(t, IsCancelled(err))
}

func TestOrchestrator_UnknownID(t *testing.T) {
	o, _, _ := newGated(t)

	_, err := o.Status("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = o.Result("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, o.Cancel("missing"), ErrNotFound)
	_, err = o.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrchestrator_AnalyzeCancelsOnContextDone(t *testing.T) {
	o, _, _ := newGated(t, WithIDGenerator(NewFixedGenerator("a-1")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.Analyze(ctx, gated("org-1"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	st, err := o.Status("a-1")
	require.NoError(t, err)
	assert.Equal(t, ir.StateCancelled, st.State)
}

func TestOrchestrator_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	o, _, _ := newGated(t, WithMetrics(m))

	req := Request{Text: "x", Config: config.Ref{OrganizationID: "org-1"}}
	_, err := o.Analyze(context.Background(), req)
	require.NoError(t, err)
	_, err = o.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.analysesTotal.WithLabelValues(string(ir.StateCompleted))))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.analysesActive))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.finished(ir.StateCompleted, time.Second)
		m.load(1, 2)
		m.cacheLookup(true)
		m.fallbacks(3)
		m.rejected()
	})
}
