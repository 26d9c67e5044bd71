package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/conformity/internal/compiler"
	"github.com/roach88/conformity/internal/config"
	"github.com/roach88/conformity/internal/engine"
	"github.com/roach88/conformity/internal/ir"
	"github.com/roach88/conformity/internal/rules"
	"github.com/roach88/conformity/internal/store"
	"github.com/roach88/conformity/internal/testutil"
)

// Outcome is what one analysis step produced.
type Outcome struct {
	Name   string
	Status ir.AnalysisStatus
	// Result is nil unless the analysis completed.
	Result *ir.AnalysisResult
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool

	// Analyses holds one outcome per step, in scenario order.
	Analyses []Outcome

	// Errors contains expectation and assertion failures.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcome returns the outcome of the named step.
func (r *Result) Outcome(name string) (Outcome, bool) {
	for _, o := range r.Analyses {
		if o.Name == name {
			return o, true
		}
	}
	return Outcome{}, false
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Analyses run one at a
// time on a manual clock with sequential ids, so repeated runs produce
// identical results. A Failed analysis is an outcome, not an error; Run
// fails only when the scenario cannot be set up.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewManualClock(testutil.Epoch)

	rulesEngine := rules.New(rules.WithLogger(logger))
	configs := config.NewStore(st,
		config.WithHooks(rulesEngine),
		config.WithIDGenerator(testutil.NewSequenceGenerator("config").Generate),
		config.WithClock(clock.Now),
		config.WithLogger(logger),
	)

	ref, err := setupConfig(ctx, configs, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to set up config: %w", err)
	}

	orch := engine.New(configs, rulesEngine,
		engine.WithSequential(),
		engine.WithNow(clock.Now),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("analysis")),
		engine.WithLogger(logger),
	)
	defer orch.Close(context.WithoutCancel(ctx))

	result := NewResult()
	for _, step := range scenario.Analyses {
		outcome, err := runStep(ctx, orch, ref, step)
		if err != nil {
			return nil, fmt.Errorf("analysis %s: %w", step.Name, err)
		}
		result.Analyses = append(result.Analyses, outcome)
		for _, msg := range checkExpect(outcome, step.Expect) {
			result.AddError(msg)
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// setupConfig stores the scenario's config and returns the reference
// analyses resolve it by. A scenario without config or preset uses the
// organization's built-in default.
func setupConfig(ctx context.Context, configs *config.Store, s *Scenario) (config.Ref, error) {
	org := s.Organization
	if org == "" {
		org = DefaultOrganization
	}
	ref := config.Ref{OrganizationID: org}

	if s.Config == "" && s.Preset == "" {
		return ref, nil
	}

	cfg := config.DefaultConfig(org)
	cfg.ID = ""
	cfg.Name = s.Name
	if s.Config != "" {
		src, err := compiler.LoadFile(s.Config)
		if err != nil {
			return config.Ref{}, err
		}
		cfg = src.Config
		if cfg.OrganizationID == "" {
			cfg.OrganizationID = org
		}
		ref.OrganizationID = cfg.OrganizationID
	}
	if s.Preset != "" {
		weights, _ := config.Preset(s.Preset)
		cfg = config.ApplyPreset(cfg, weights)
		cfg.Preset = strings.ToUpper(s.Preset)
	}

	created, err := configs.Create(ctx, cfg)
	if err != nil {
		return config.Ref{}, err
	}
	ref.ConfigID = created.ID
	return ref, nil
}

func runStep(ctx context.Context, orch *engine.Orchestrator, ref config.Ref, step AnalysisStep) (Outcome, error) {
	text := step.Text
	if step.Document != "" {
		data, err := os.ReadFile(step.Document)
		if err != nil {
			return Outcome{}, fmt.Errorf("read document: %w", err)
		}
		text = string(data)
	}

	req := engine.Request{
		Text:           text,
		Classification: step.Classification,
		Config:         ref,
	}
	if len(step.Overrides) > 0 {
		req.Overrides = make(map[string]engine.Override, len(step.Overrides))
		for id, o := range step.Overrides {
			req.Overrides[id] = engine.Override{Weight: o.Weight, Enabled: o.Enabled, Value: o.Value}
		}
	}

	h, err := orch.Submit(ctx, req)
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Name: step.Name}
	res, err := h.Wait(ctx)
	var ae *engine.AnalysisError
	switch {
	case err == nil:
		outcome.Result = &res
	case errors.As(err, &ae):
	default:
		return Outcome{}, err
	}
	outcome.Status = h.Status()
	return outcome, nil
}
