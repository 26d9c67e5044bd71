package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/conformity/internal/config"
	"github.com/roach88/conformity/internal/ir"
)

// DefaultOrganization is the organization scenarios run under when they
// name none.
const DefaultOrganization = "scenario-org"

// Scenario defines a conformity test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Organization owns the scenario's config. Defaults to
	// DefaultOrganization.
	Organization string `yaml:"organization,omitempty"`

	// Config is a .cue or .json config file, relative to the scenario
	// file. Empty means the built-in default config.
	Config string `yaml:"config,omitempty"`

	// Preset overwrites the config's weights with a built-in preset.
	Preset string `yaml:"preset,omitempty"`

	// Analyses run in order, one at a time.
	Analyses []AnalysisStep `yaml:"analyses"`

	// Assertions are checked after every analysis finished.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// AnalysisStep submits one document.
type AnalysisStep struct {
	// Name identifies the step in assertions. Defaults to "analysis-<n>".
	Name string `yaml:"name,omitempty"`

	// Text is the document text. Exactly one of Text and Document is set.
	Text string `yaml:"text,omitempty"`

	// Document is a text file, relative to the scenario file.
	Document string `yaml:"document,omitempty"`

	Classification ir.Classification `yaml:"classification"`

	// Overrides replace parameters of the resolved config for this
	// analysis only, keyed by parameter id.
	Overrides map[string]OverrideSpec `yaml:"overrides,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// OverrideSpec is the YAML form of an engine.Override.
type OverrideSpec struct {
	Weight  *float64 `yaml:"weight,omitempty"`
	Enabled *bool    `yaml:"enabled,omitempty"`
	Value   any      `yaml:"value,omitempty"`
}

// Expect is checked against the analysis it belongs to.
type Expect struct {
	// State is the expected terminal state.
	State ir.AnalysisState `yaml:"state"`

	// ErrorKind is the expected error kind of a Failed or Cancelled
	// analysis.
	ErrorKind ir.ErrorKind `yaml:"error_kind,omitempty"`

	OverallScore *float64 `yaml:"overall_score,omitempty"`

	// CategoryScores is a subset match on the per-category scores.
	CategoryScores map[ir.Category]float64 `yaml:"category_scores,omitempty"`

	// Problems lists the rule ids of the reported problems, in order.
	// Nil skips the check; an empty list expects no problems.
	Problems []string `yaml:"problems,omitempty"`
}

// Assertion validates the outcome of one analysis.
type Assertion struct {
	// Type selects the check. See the Assert* constants.
	Type string `yaml:"type"`

	// Analysis is the name of the step the assertion applies to.
	Analysis string `yaml:"analysis"`

	// Rule is the rule id (problem_present, problem_absent).
	Rule string `yaml:"rule,omitempty"`

	// Category narrows score_at_least and score_at_most to one category
	// score; empty means the overall score.
	Category ir.Category `yaml:"category,omitempty"`

	// Value is the bound of score_at_least and score_at_most.
	Value float64 `yaml:"value,omitempty"`

	// Steps is the expected step history (steps).
	Steps []string `yaml:"steps,omitempty"`
}

// Assertion type constants.
const (
	AssertProblemPresent = "problem_present"
	AssertProblemAbsent  = "problem_absent"
	AssertScoreAtLeast   = "score_at_least"
	AssertScoreAtMost    = "score_at_most"
	AssertSteps          = "steps"
	AssertCacheHit       = "cache_hit"
)

// LoadScenario reads and parses a scenario YAML file. Config and document
// paths are resolved against the scenario file's directory.
//
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields; catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	scenario.Config = resolvePath(base, scenario.Config)
	for i := range scenario.Analyses {
		scenario.Analyses[i].Document = resolvePath(base, scenario.Analyses[i].Document)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// validateScenario checks required fields and fills in step names.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Analyses) == 0 {
		return fmt.Errorf("analyses list is required and must be non-empty")
	}
	if s.Config != "" {
		if _, err := os.Stat(s.Config); err != nil {
			return fmt.Errorf("config file not found: %s", s.Config)
		}
	}
	if s.Preset != "" {
		if _, ok := config.Preset(s.Preset); !ok {
			return fmt.Errorf("unknown preset %q (want one of %v)", s.Preset, config.PresetNames())
		}
	}

	names := make(map[string]bool, len(s.Analyses))
	for i := range s.Analyses {
		step := &s.Analyses[i]
		if step.Name == "" {
			step.Name = fmt.Sprintf("analysis-%d", i+1)
		}
		if names[step.Name] {
			return fmt.Errorf("analyses[%d]: duplicate name %q", i, step.Name)
		}
		names[step.Name] = true

		if (step.Text == "") == (step.Document == "") {
			return fmt.Errorf("analyses[%d]: exactly one of text and document is required", i)
		}
		if step.Expect != nil && step.Expect.State == "" {
			return fmt.Errorf("analyses[%d].expect: state is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], names); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, names map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if !names[a.Analysis] {
		return fmt.Errorf("assertions[%d]: unknown analysis %q", index, a.Analysis)
	}

	switch a.Type {
	case AssertProblemPresent, AssertProblemAbsent:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for %s", index, a.Type)
		}
	case AssertSteps:
		if len(a.Steps) == 0 {
			return fmt.Errorf("assertions[%d]: steps list is required for steps", index)
		}
	case AssertScoreAtLeast, AssertScoreAtMost, AssertCacheHit:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
