package cli

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/conformity/internal/config"
	"github.com/roach88/conformity/internal/engine"
	"github.com/roach88/conformity/internal/ir"
	"github.com/roach88/conformity/internal/scoring"
)

// AnalyzeOptions holds flags for the analyze command.
type AnalyzeOptions struct {
	*RootOptions
	ConfigFile     string // analyze with a config file instead of a stored config
	Organization   string // organization whose active (or default) config applies
	ConfigID       string // explicit stored config id
	Classification ir.Classification
	Timeout        time.Duration // per-analysis timeout; 0 uses the settings
	Overrides      []string      // id=weight or id=on|off
}

// AnalyzeOutput is the JSON payload of analyze.
type AnalyzeOutput struct {
	Status ir.AnalysisStatus  `json:"status"`
	Result *ir.AnalysisResult `json:"result,omitempty"`
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "analyze <text-file>",
		Short: "Score one document against an organization config",
		Long: `Run a document through the analysis pipeline and print its scores,
problems and recommendations.

The config is a file (--config), a stored config (--config-id), or the
organization's active config, falling back to the built-in default
(--org). --override replaces a parameter for this analysis only:

  --override legal=60      set the weight of parameter "legal"
  --override formal=off    disable parameter "formal"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "config file (.cue or .json)")
	cmd.Flags().StringVar(&opts.Organization, "org", "", "organization id")
	cmd.Flags().StringVar(&opts.ConfigID, "config-id", "", "stored config id")
	cmd.Flags().StringVar(&opts.Classification.DocumentType, "document-type", "", "document type (edital, tr, minuta_contrato, ...)")
	cmd.Flags().StringVar(&opts.Classification.PrimaryModality, "modality", "", "primary modality")
	cmd.Flags().StringVar(&opts.Classification.ObjectType, "object-type", "", "object type")
	cmd.Flags().StringVar(&opts.Classification.Subtype, "subtype", "", "modality subtype")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "analysis timeout (default from settings)")
	cmd.Flags().StringArrayVar(&opts.Overrides, "override", nil, "parameter override id=weight or id=on|off (repeatable)")

	cmd.MarkFlagsMutuallyExclusive("config", "config-id")

	return cmd
}

func runAnalyze(ctx context.Context, opts *AnalyzeOptions, textFile string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.ConfigFile == "" && opts.ConfigID == "" && opts.Organization == "" {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArgument, "one of --config, --config-id or --org is required", nil)
	}

	data, err := os.ReadFile(textFile)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeReadFailed, "failed to read document "+textFile, err)
	}

	overrides, err := parseOverrides(opts.Overrides)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArgument, err.Error(), nil)
	}

	svc, err := openServices(opts.RootOptions, formatter)
	if err != nil {
		return err
	}
	defer svc.Close()

	var resolver engine.Resolver = svc.configs
	ref := config.Ref{OrganizationID: opts.Organization, ConfigID: opts.ConfigID}
	if opts.ConfigFile != "" {
		src, err := loadConfigFile(formatter, opts.ConfigFile)
		if err != nil {
			return err
		}
		report := svc.configs.Validate(src.Config)
		if !report.Valid {
			for i := range report.Errors {
				report.Errors[i].Line = src.Line(report.Errors[i].Field)
			}
			return outputValidationErrors(formatter, report.Errors, report.Warnings)
		}
		cfg := src.Config
		ref.OrganizationID = cfg.OrganizationID
		resolver = engine.ResolverFunc(func(context.Context, config.Ref) (ir.OrganizationConfig, error) {
			return cfg.Clone(), nil
		})
	}

	settings, err := opts.Settings()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidArgument, "failed to load settings", err)
	}
	orch := engine.New(resolver, svc.rules, append(settings.EngineOptions(), engine.WithLogger(svc.logger))...)
	defer orch.Close(context.WithoutCancel(ctx))

	h, err := orch.Submit(ctx, engine.Request{
		Text:           string(data),
		Classification: opts.Classification,
		Config:         ref,
		Overrides:      overrides,
		Timeout:        opts.Timeout,
	})
	if err != nil {
		if engine.IsResourceExhausted(err) {
			return formatter.Fail(ExitCommandError, ErrCodeResourceExhausted, "analysis rejected", err)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to submit analysis", err)
	}
	formatter.VerboseLog("Submitted analysis %s", h.ID)

	res, err := h.Wait(ctx)
	status := h.Status()
	var ae *engine.AnalysisError
	if err != nil && !errors.As(err, &ae) {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "analysis interrupted", err)
	}

	out := AnalyzeOutput{Status: status}
	if err == nil {
		out.Result = &res
	}

	if formatter.IsJSON() {
		if err := formatter.encode(CLIResponse{Status: responseStatus(err), Data: out, Error: analysisCLIError(status)}); err != nil {
			return err
		}
	} else {
		printAnalysis(formatter, out)
	}

	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s: analysis %s %s", ErrCodeAnalysisFailed, status.ID, strings.ToLower(string(status.State))), err)
	}
	return nil
}

// parseOverrides turns id=weight and id=on|off flags into overrides.
// Repeating an id merges the later value into the earlier ones.
func parseOverrides(flags []string) (map[string]engine.Override, error) {
	if len(flags) == 0 {
		return nil, nil
	}

	out := make(map[string]engine.Override, len(flags))
	for _, f := range flags {
		id, value, ok := strings.Cut(f, "=")
		id = strings.TrimSpace(id)
		value = strings.TrimSpace(value)
		if !ok || id == "" || value == "" {
			return nil, fmt.Errorf("invalid override %q: want id=weight or id=on|off", f)
		}

		o := out[id]
		switch strings.ToLower(value) {
		case "on", "true":
			o.Enabled = ptr(true)
		case "off", "false":
			o.Enabled = ptr(false)
		default:
			w, err := strconv.ParseFloat(value, 64)
			if err != nil || math.IsNaN(w) {
				return nil, fmt.Errorf("invalid override %q: weight %q is not a number", f, value)
			}
			o.Weight = &w
		}
		out[id] = o
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }

func responseStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func analysisCLIError(status ir.AnalysisStatus) *CLIError {
	if status.Error == nil {
		return nil
	}
	return &CLIError{
		Code:    ErrCodeAnalysisFailed,
		Message: status.Error.Message,
		Details: status.Error.Kind,
	}
}

func printAnalysis(formatter *OutputFormatter, out AnalyzeOutput) {
	w := formatter.Writer
	st := out.Status

	if out.Result == nil {
		fmt.Fprintf(w, "✗ Analysis %s %s\n", st.ID, strings.ToLower(string(st.State)))
		if st.Error != nil {
			fmt.Fprintf(w, "  %s: %s\n", st.Error.Kind, st.Error.Message)
		}
		return
	}

	res := out.Result
	fmt.Fprintf(w, "✓ Analysis %s completed\n\n", st.ID)
	fmt.Fprintf(w, "Overall score: %.2f\n", res.OverallScore)
	for _, c := range scoring.SortedCategories(res.PerCategoryScore) {
		fmt.Fprintf(w, "  %-12s %6.2f\n", c, res.PerCategoryScore[c])
	}

	fmt.Fprintf(w, "\nProblems (%d):\n", len(res.Problems))
	for _, p := range res.Problems {
		fmt.Fprintf(w, "  [%s] %s: %s", p.Severity, p.Category, p.Description)
		if p.RuleID != "" {
			fmt.Fprintf(w, " (%s)", p.RuleID)
		}
		fmt.Fprintln(w)
	}

	if len(res.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for _, r := range res.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}

	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "\nwarning: %s", warning)
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintln(w)
	}

	formatter.VerboseLog("clauses: %d total, %d valid, %d missing; %d ms",
		res.Metrics.TotalClauses, res.Metrics.ValidClauses, res.Metrics.MissingClauses, res.Metrics.ProcessingTimeMs)
}
