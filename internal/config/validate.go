package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/roach88/conformity/internal/ir"
	"github.com/roach88/conformity/internal/rules"
)

// Validation error codes (E200-E299)
const (
	// Config errors (E201-E202)
	ErrNameTooShort        = "E201" // name shorter than 3 characters
	ErrDescriptionTooShort = "E202" // description shorter than 10 characters

	// Parameter errors (E203-E209)
	ErrParameterID    = "E203" // missing or duplicate parameter id
	ErrWeightRange    = "E204" // weight outside [0,100]
	ErrRangeBounds    = "E205" // range without bounds or min >= max
	ErrEnumOptions    = "E206" // enumSelect without options
	ErrValueType      = "E207" // unknown valueType
	ErrParameterName  = "E208" // parameter name empty
	ErrParameterValue = "E209" // value outside [min,max]

	// Rule errors (E210-E219)
	ErrRuleID       = "E210" // missing or duplicate rule id
	ErrRuleName     = "E211" // rule name empty
	ErrSeverity     = "E212" // unknown severity
	ErrKeywords     = "E213" // empty keyword list or blank keyword
	ErrPattern      = "E214" // empty or non-compiling pattern
	ErrCustomHook   = "E215" // custom rule without hook
	ErrMissingCheck = "E216" // rule without a check

	// Activation errors (E220)
	ErrActiveWeightSum = "E220" // active config with enabled weights != 100
)

// Warning codes (W200-W299)
const (
	WarnNoEnabledParameters = "W201" // zero enabled parameters
	WarnNoRules             = "W202" // zero custom rules
	WarnWeightSum           = "W203" // inactive config with enabled weights != 100
	WarnUnknownHook         = "W204" // custom rule hook not registered
)

const (
	minNameLen        = 3
	minDescriptionLen = 10
)

// ValidationError represents a blocking config validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Warning is a non-blocking validation finding.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Report is the outcome of Validate.
type Report struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []Warning         `json:"warnings"`
}

// ValidationFailedError is returned by Store writes rejected by Validate.
type ValidationFailedError struct {
	Errors []ValidationError
}

func (e *ValidationFailedError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("validation failed: %d errors (first: %s)", len(e.Errors), e.Errors[0].Error())
}

// IsValidationFailed reports whether err is a *ValidationFailedError.
func IsValidationFailed(err error) bool {
	var vf *ValidationFailedError
	return errors.As(err, &vf)
}

// HookRegistry reports which custom predicates exist.
// *rules.Engine satisfies it.
type HookRegistry interface {
	HasPredicate(name string) bool
}

// Validate checks cfg and reports every problem found (does not fail-fast).
// It never returns an error; Report.Valid is false when Errors is non-empty.
func Validate(cfg ir.OrganizationConfig) Report {
	return validate(cfg, nil)
}

// ValidateWithHooks is Validate plus W204 for custom rules naming a hook
// that hooks does not know.
func ValidateWithHooks(cfg ir.OrganizationConfig, hooks HookRegistry) Report {
	return validate(cfg, hooks)
}

func validate(cfg ir.OrganizationConfig, hooks HookRegistry) Report {
	var (
		errs  []ValidationError
		warns []Warning
	)

	// E201
	if utf8.RuneCountInString(strings.TrimSpace(cfg.Name)) < minNameLen {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("name must have at least %d characters", minNameLen),
			Code:    ErrNameTooShort,
		})
	}

	// E202
	if utf8.RuneCountInString(strings.TrimSpace(cfg.Description)) < minDescriptionLen {
		errs = append(errs, ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("description must have at least %d characters", minDescriptionLen),
			Code:    ErrDescriptionTooShort,
		})
	}

	errs = append(errs, validateParameters(cfg.Parameters)...)

	ruleErrs, ruleWarns := validateRules(cfg.Rules, hooks)
	errs = append(errs, ruleErrs...)
	warns = append(warns, ruleWarns...)

	if cfg.EnabledCount() == 0 {
		warns = append(warns, Warning{
			Field:   "parameters",
			Message: "no enabled parameters; every category score carries zero weight",
			Code:    WarnNoEnabledParameters,
		})
	}
	if len(cfg.Rules) == 0 {
		warns = append(warns, Warning{
			Field:   "rules",
			Message: "no custom rules; only built-in checks will run",
			Code:    WarnNoRules,
		})
	}

	sum := cfg.EnabledWeightSum()
	if math.Abs(sum-100) > ir.WeightTolerance {
		msg := fmt.Sprintf("enabled weights sum to %.2f, expected 100", sum)
		if cfg.IsActive {
			// E220
			errs = append(errs, ValidationError{
				Field:   "parameters",
				Message: msg,
				Code:    ErrActiveWeightSum,
			})
		} else if cfg.EnabledCount() > 0 {
			warns = append(warns, Warning{
				Field:   "parameters",
				Message: msg,
				Code:    WarnWeightSum,
			})
		}
	}

	return Report{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
	}
}

func validateParameters(params []ir.Parameter) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)

	for i, p := range params {
		field := func(name string) string {
			return fmt.Sprintf("parameters[%d].%s", i, name)
		}

		// E203: id required and unique
		switch {
		case strings.TrimSpace(p.ID) == "":
			errs = append(errs, ValidationError{
				Field:   field("id"),
				Message: "parameter id is required",
				Code:    ErrParameterID,
			})
		case seen[p.ID]:
			errs = append(errs, ValidationError{
				Field:   field("id"),
				Message: fmt.Sprintf("duplicate parameter id: %q", p.ID),
				Code:    ErrParameterID,
			})
		}
		seen[p.ID] = true

		// E208
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   field("name"),
				Message: "parameter name is required",
				Code:    ErrParameterName,
			})
		}

		// E204
		if p.Weight < 0 || p.Weight > 100 || math.IsNaN(p.Weight) {
			errs = append(errs, ValidationError{
				Field:   field("weight"),
				Message: fmt.Sprintf("weight %v outside [0,100]", p.Weight),
				Code:    ErrWeightRange,
			})
		}

		switch p.ValueType {
		case ir.ValueRange:
			// E205
			if p.Min == nil || p.Max == nil {
				errs = append(errs, ValidationError{
					Field:   field("min"),
					Message: "range parameter requires min and max",
					Code:    ErrRangeBounds,
				})
			} else if *p.Min >= *p.Max {
				errs = append(errs, ValidationError{
					Field:   field("min"),
					Message: fmt.Sprintf("min %v must be less than max %v", *p.Min, *p.Max),
					Code:    ErrRangeBounds,
				})
			} else if v, ok := numeric(p.Value); ok && (v < *p.Min || v > *p.Max) {
				// E209
				errs = append(errs, ValidationError{
					Field:   field("value"),
					Message: fmt.Sprintf("value %v outside [%v,%v]", v, *p.Min, *p.Max),
					Code:    ErrParameterValue,
				})
			}
		case ir.ValueEnumSelect:
			// E206
			if len(p.Options) == 0 {
				errs = append(errs, ValidationError{
					Field:   field("options"),
					Message: "enumSelect parameter requires at least one option",
					Code:    ErrEnumOptions,
				})
			}
		case ir.ValueBoolean, ir.ValueNumber, ir.ValueString:
		default:
			// E207
			errs = append(errs, ValidationError{
				Field:   field("valueType"),
				Message: fmt.Sprintf("unknown valueType %q", p.ValueType),
				Code:    ErrValueType,
			})
		}
	}

	return errs
}

func validateRules(rs []ir.Rule, hooks HookRegistry) ([]ValidationError, []Warning) {
	var (
		errs  []ValidationError
		warns []Warning
	)
	seen := make(map[string]bool)

	for i, r := range rs {
		field := func(name string) string {
			return fmt.Sprintf("rules[%d].%s", i, name)
		}

		// E210
		switch {
		case strings.TrimSpace(r.ID) == "":
			errs = append(errs, ValidationError{
				Field:   field("id"),
				Message: "rule id is required",
				Code:    ErrRuleID,
			})
		case seen[r.ID]:
			errs = append(errs, ValidationError{
				Field:   field("id"),
				Message: fmt.Sprintf("duplicate rule id: %q", r.ID),
				Code:    ErrRuleID,
			})
		}
		seen[r.ID] = true

		// E211
		if strings.TrimSpace(r.Name) == "" {
			errs = append(errs, ValidationError{
				Field:   field("name"),
				Message: "rule name is required",
				Code:    ErrRuleName,
			})
		}

		// E212
		if !r.Severity.Valid() {
			errs = append(errs, ValidationError{
				Field:   field("severity"),
				Message: fmt.Sprintf("unknown severity %q", r.Severity),
				Code:    ErrSeverity,
			})
		}

		switch c := r.Check.(type) {
		case ir.AllKeywords:
			errs = append(errs, validateKeywords(field("keywordsAll"), c.Keywords)...)
		case ir.AnyKeyword:
			errs = append(errs, validateKeywords(field("keywordsAny"), c.Keywords)...)
		case ir.Pattern:
			// E214
			if strings.TrimSpace(c.Expr) == "" {
				errs = append(errs, ValidationError{
					Field:   field("pattern"),
					Message: "pattern is required",
					Code:    ErrPattern,
				})
			} else if err := rules.CheckPattern(c.Expr); err != nil {
				errs = append(errs, ValidationError{
					Field:   field("pattern"),
					Message: fmt.Sprintf("pattern does not compile: %v", err),
					Code:    ErrPattern,
				})
			}
		case ir.Custom:
			// E215
			if strings.TrimSpace(c.Hook) == "" {
				errs = append(errs, ValidationError{
					Field:   field("hook"),
					Message: "custom rule requires a hook name",
					Code:    ErrCustomHook,
				})
			} else if hooks != nil && !hooks.HasPredicate(c.Hook) {
				warns = append(warns, Warning{
					Field:   field("hook"),
					Message: fmt.Sprintf("no predicate registered for hook %q; the rule will fall back", c.Hook),
					Code:    WarnUnknownHook,
				})
			}
		case nil:
			// E216
			errs = append(errs, ValidationError{
				Field:   field("kind"),
				Message: "rule has no check",
				Code:    ErrMissingCheck,
			})
		}
	}

	return errs, warns
}

// validateKeywords enforces E213.
func validateKeywords(field string, keywords []string) []ValidationError {
	if len(keywords) == 0 {
		return []ValidationError{{
			Field:   field,
			Message: "keyword list must not be empty",
			Code:    ErrKeywords,
		}}
	}
	var errs []ValidationError
	for j, k := range keywords {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, j),
				Message: "keyword must not be blank",
				Code:    ErrKeywords,
			})
		}
	}
	return errs
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
