package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/conformity/internal/config"
	"github.com/roach88/conformity/internal/ir"
	"github.com/roach88/conformity/internal/scoring"
)

// NormalizeOptions holds flags for the normalize command.
type NormalizeOptions struct {
	*RootOptions
	Preset string // apply a built-in preset before normalizing
}

// NormalizeResult is the JSON payload of normalize.
type NormalizeResult struct {
	Parameters      []ir.Parameter          `json:"parameters"`
	CategoryWeights map[ir.Category]float64 `json:"categoryWeights"`
	WeightSum       float64                 `json:"weightSum"`
}

// NewNormalizeCommand creates the normalize command.
func NewNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NormalizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "normalize <config>",
		Short: "Show a config's weights rescaled to sum to 100",
		Long: `Rescale the enabled parameter weights of a config so they sum to 100,
keeping their ratios, and show the resulting category weights.

With --preset, the preset's weights replace the config's first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNormalize(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Preset, "preset", "", "apply a preset first ("+strings.Join(config.PresetNames(), "|")+")")

	return cmd
}

func runNormalize(opts *NormalizeOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	src, err := loadConfigFile(formatter, path)
	if err != nil {
		return err
	}
	cfg := src.Config

	if opts.Preset != "" {
		weights, ok := config.Preset(opts.Preset)
		if !ok {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidArgument,
				fmt.Sprintf("unknown preset %q (want one of %v)", opts.Preset, config.PresetNames()), nil)
		}
		cfg = config.ApplyPreset(cfg, weights)
		formatter.VerboseLog("Applied preset %s", strings.ToUpper(opts.Preset))
	}

	normalized, err := config.Normalize(cfg)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeNormalize, "weights cannot be normalized", err)
	}

	result := NormalizeResult{
		Parameters:      normalized.Parameters,
		CategoryWeights: scoring.CategoryWeights(normalized),
		WeightSum:       normalized.EnabledWeightSum(),
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Weights normalized (sum %.2f)\n\n", result.WeightSum)
	for _, p := range result.Parameters {
		state := ""
		if !p.Enabled {
			state = " (disabled)"
		}
		fmt.Fprintf(w, "  %-20s %-12s %6.2f%s\n", p.ID, p.Category, p.Weight, state)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Category weights:")
	for _, c := range scoring.SortedCategories(result.CategoryWeights) {
		fmt.Fprintf(w, "  %-12s %6.2f\n", c, result.CategoryWeights[c])
	}
	return nil
}
