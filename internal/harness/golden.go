package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/conformity/internal/ir"
)

// Snapshot is the deterministic, comparable form of a scenario run.
// Timestamps and ETAs are left out; everything else an analysis reports
// is kept.
type Snapshot struct {
	Scenario string             `json:"scenario"`
	Analyses []AnalysisSnapshot `json:"analyses"`
}

// AnalysisSnapshot captures one analysis outcome.
type AnalysisSnapshot struct {
	Name   string             `json:"name"`
	ID     string             `json:"id"`
	State  ir.AnalysisState   `json:"state"`
	Steps  []string           `json:"steps"`
	Error  *ir.ErrorInfo      `json:"error,omitempty"`
	Result *ir.AnalysisResult `json:"result,omitempty"`
}

// NewSnapshot builds the snapshot of result.
func NewSnapshot(scenarioName string, result *Result) Snapshot {
	s := Snapshot{Scenario: scenarioName, Analyses: make([]AnalysisSnapshot, 0, len(result.Analyses))}
	for _, o := range result.Analyses {
		steps := o.Status.Steps
		if steps == nil {
			steps = []string{}
		}
		s.Analyses = append(s.Analyses, AnalysisSnapshot{
			Name:   o.Name,
			ID:     o.Status.ID,
			State:  o.Status.State,
			Steps:  steps,
			Error:  o.Status.Error,
			Result: o.Result,
		})
	}
	return s
}

// Marshal renders the snapshot as canonical JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass; test failure (via
// goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already-run result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
