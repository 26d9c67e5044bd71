package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/conformity/internal/config"
	"github.com/roach88/conformity/internal/dedupe"
	"github.com/roach88/conformity/internal/ir"
	"github.com/roach88/conformity/internal/rules"
	"github.com/roach88/conformity/internal/scoring"
)

// process runs the pipeline of a. It returns the result and the content
// cache key to store it under. The key is empty when the result came from
// the cache or is degraded by a fallback; neither is written back.
func (o *Orchestrator) process(ctx context.Context, a *analysis) (res ir.AnalysisResult, key string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &kindError{kind: ir.ErrorInternal, err: &panicError{value: r, stack: debug.Stack()}}
		}
	}()

	req := a.req
	start := o.now()

	o.setStep(a, ir.StepResolveConfig)
	resolved, err := o.resolver.Resolve(ctx, req.Config)
	if err != nil {
		return ir.AnalysisResult{}, "", &kindError{kind: ir.ErrorInternal, err: fmt.Errorf("resolve config: %w", err)}
	}

	effective, err := applyOverrides(resolved, req.Overrides)
	if err != nil {
		return ir.AnalysisResult{}, "", &kindError{kind: ir.ErrorValidation, err: fmt.Errorf("apply overrides: %w", err)}
	}

	key, err = contentKey(req.Text, effective, req.Classification)
	if err != nil {
		return ir.AnalysisResult{}, "", &kindError{kind: ir.ErrorInternal, err: err}
	}

	if cached, ok := o.content.get(key); ok {
		o.stats.cacheHits.Add(1)
		o.metrics.cacheLookup(true)
		o.logger.Debug("content cache hit", "analysis_id", a.id)

		cached.ID = a.id
		cached.Metrics.CacheHits = 1
		cached.Metrics.CacheMisses = 0
		cached.Metrics.FallbackCount = 0
		cached.Metrics.ProcessingTimeMs = o.now().Sub(start).Milliseconds()
		return cached, "", nil
	}
	o.stats.cacheMisses.Add(1)
	o.metrics.cacheLookup(false)

	var warnings []string
	fallbacks := 0

	weights, err := o.weights(a, effective)
	if err != nil {
		warnings = append(warnings, err.Error())
		fallbacks++
	}

	evals, err := o.evaluateStages(ctx, a, effective.Rules)
	if err != nil {
		return ir.AnalysisResult{}, "", err
	}

	o.setStep(a, ir.StepAggregate)
	var findings []ir.Problem
	for _, ev := range evals {
		findings = append(findings, ev.Findings...)
		warnings = append(warnings, ev.Warnings...)
		fallbacks += ev.Fallbacks
	}
	// Scores are computed over the deduplicated problems so a duplicate
	// never deducts twice.
	problems := dedupe.Dedupe(findings)
	scores := scoring.Aggregate(problems, weights)

	o.setStep(a, ir.StepDedupe)

	metrics := scoring.Metrics(req.Text, problems)
	metrics.CacheMisses = 1
	metrics.FallbackCount = int64(fallbacks)
	metrics.ProcessingTimeMs = o.now().Sub(start).Milliseconds()

	o.stats.fallbacks.Add(int64(fallbacks))
	o.metrics.fallbacks(fallbacks)
	if fallbacks > 0 {
		key = ""
	}

	if problems == nil {
		problems = []ir.Problem{}
	}
	return ir.AnalysisResult{
		ID:               a.id,
		OverallScore:     scores.Overall,
		PerCategoryScore: scores.PerCategory,
		Problems:         problems,
		Recommendations:  scoring.Recommendations(problems, req.Classification),
		Warnings:         warnings,
		Metrics:          metrics,
	}, key, nil
}

// weights normalizes the effective config into category weights. A config
// that cannot be normalized falls back to equal stage weights; the
// returned error describes the fallback and is not fatal.
func (o *Orchestrator) weights(a *analysis, cfg ir.OrganizationConfig) (map[ir.Category]float64, error) {
	normalized, err := config.Normalize(cfg)
	if err != nil {
		o.logger.Warn("weights fell back to equal shares", "analysis_id", a.id, "err", err)
		return scoring.EqualWeights(), fmt.Errorf("weights: %w; using equal category weights", err)
	}
	return scoring.CategoryWeights(normalized), nil
}

// evaluateStages runs one worker per pipeline stage, at most o.workers at
// a time. Results are indexed by ir.CategoryOrder regardless of finish
// order. The first worker error cancels the rest.
func (o *Orchestrator) evaluateStages(ctx context.Context, a *analysis, ruleSet []ir.Rule) ([]rules.Evaluation, error) {
	text := rules.Prepare(a.req.Text)
	cls := a.req.Classification

	evals := make([]rules.Evaluation, len(ir.CategoryOrder))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, stage := range ir.CategoryOrder {
		i, stage := i, stage
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &kindError{kind: ir.ErrorInternal, err: &panicError{value: r, stack: debug.Stack()}}
				}
			}()

			ev, err := o.evaluator.EvaluateCategory(gctx, stage, ruleSet, text, cls)
			if err != nil {
				return fmt.Errorf("stage %s: %w", stage, err)
			}
			evals[i] = ev
			o.stageDone(a, stage)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return evals, nil
}

// contentKey identifies an analysis by its text, effective config and
// classification.
func contentKey(text string, cfg ir.OrganizationConfig, cls ir.Classification) (string, error) {
	configFP, err := ir.ConfigFingerprint(cfg)
	if err != nil {
		return "", fmt.Errorf("content key: %w", err)
	}
	key, err := ir.CacheKey(ir.TextFingerprint(text), configFP, cls)
	if err != nil {
		return "", fmt.Errorf("content key: %w", err)
	}
	return key, nil
}
