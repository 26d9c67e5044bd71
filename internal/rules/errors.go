package rules

import (
	"errors"
	"fmt"
)

// ErrUnknownHook is returned (wrapped) when a Custom rule names a hook with
// no registered predicate.
var ErrUnknownHook = errors.New("no predicate registered for hook")

// RuleCompilationError reports a rule that cannot be evaluated as written:
// an uncompilable pattern, an empty keyword list or a missing check.
// The rule is skipped; evaluation continues.
type RuleCompilationError struct {
	RuleID  string
	Pattern string
	Err     error
}

func (e *RuleCompilationError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("rule %q: invalid pattern %q: %v", e.RuleID, e.Pattern, e.Err)
	}
	return fmt.Sprintf("rule %q: %v", e.RuleID, e.Err)
}

func (e *RuleCompilationError) Unwrap() error {
	return e.Err
}

// CustomRuleError reports a Custom rule whose predicate is missing, failed
// or panicked. The rule is skipped and counted as a fallback.
type CustomRuleError struct {
	RuleID string
	Hook   string
	Err    error
}

func (e *CustomRuleError) Error() string {
	return fmt.Sprintf("rule %q: custom hook %q: %v", e.RuleID, e.Hook, e.Err)
}

func (e *CustomRuleError) Unwrap() error {
	return e.Err
}

// IsRuleCompilationError returns true if err is or wraps a RuleCompilationError.
func IsRuleCompilationError(err error) bool {
	var rc *RuleCompilationError
	return errors.As(err, &rc)
}

// IsCustomRuleError returns true if err is or wraps a CustomRuleError.
func IsCustomRuleError(err error) bool {
	var ce *CustomRuleError
	return errors.As(err, &ce)
}
