package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/conformity/internal/config"
	"github.com/roach88/conformity/internal/rules"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                     `json:"valid"`
	Errors   []config.ValidationError `json:"errors,omitempty"`
	Warnings []config.Warning         `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate an organization config file",
		Long: `Validate a CUE or JSON organization config without storing it.

Checks the config against the schema, then runs every config rule
(names, weight ranges, keyword lists, patterns, active weight sum) and
reports all errors with their source lines. Warnings do not fail.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	src, err := loadConfigFile(formatter, path)
	if err != nil {
		return err
	}

	eng := rules.New(rules.WithLogger(formatter.Logger()))
	report := config.ValidateWithHooks(src.Config, eng)
	formatter.VerboseLog("Checked %d parameter(s) and %d rule(s)", len(src.Config.Parameters), len(src.Config.Rules))

	for i := range report.Errors {
		report.Errors[i].Line = src.Line(report.Errors[i].Field)
	}

	if !report.Valid {
		return outputValidationErrors(formatter, report.Errors, report.Warnings)
	}

	return outputValidateSuccess(formatter, report.Warnings)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, warnings []config.Warning) error {
	if formatter.IsJSON() {
		return formatter.Success(ValidationResult{Valid: true, Warnings: warnings})
	}

	fmt.Fprintln(formatter.Writer, "✓ Config valid")
	printWarnings(formatter, warnings)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []config.ValidationError, warnings []config.Warning) error {
	if formatter.IsJSON() {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:    false,
				Errors:   errs,
				Warnings: warnings,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	printWarnings(formatter, warnings)

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

func printWarnings(formatter *OutputFormatter, warnings []config.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  warning %s: %s: %s\n", w.Code, w.Field, w.Message)
	}
}
