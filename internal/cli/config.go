package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/conformity/internal/config"
	"github.com/roach88/conformity/internal/ir"
	"github.com/roach88/conformity/internal/store"
)

// ConfigSummary is the list form of a stored config.
type ConfigSummary struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organizationId"`
	Name           string  `json:"name"`
	Version        int64   `json:"version"`
	IsActive       bool    `json:"isActive"`
	Preset         string  `json:"preset,omitempty"`
	WeightSum      float64 `json:"weightSum"`
}

func summarize(cfg ir.OrganizationConfig) ConfigSummary {
	return ConfigSummary{
		ID:             cfg.ID,
		OrganizationID: cfg.OrganizationID,
		Name:           cfg.Name,
		Version:        cfg.Version,
		IsActive:       cfg.IsActive,
		Preset:         cfg.Preset,
		WeightSum:      cfg.EnabledWeightSum(),
	}
}

// NewConfigCommand creates the config command and its CRUD subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage stored organization configs",
		Long: `Create, update and inspect the organization configs kept in the
--db database. Every write re-validates the whole config; an active
config's enabled weights must sum to 100.`,
	}

	cmd.AddCommand(
		newConfigCreateCommand(rootOpts),
		newConfigUpdateCommand(rootOpts),
		newConfigDeleteCommand(rootOpts),
		newConfigDuplicateCommand(rootOpts),
		newConfigShowCommand(rootOpts),
		newConfigListCommand(rootOpts),
		newConfigHistoryCommand(rootOpts),
		newConfigActivateCommand(rootOpts),
		newConfigApplyPresetCommand(rootOpts),
		newConfigApplyTemplateCommand(rootOpts),
		newConfigPresetsCommand(rootOpts),
		newConfigTemplatesCommand(rootOpts),
	)
	return cmd
}

// withServices runs fn with opened services and closes them afterwards.
func withServices(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, f *OutputFormatter, svc *services) error) error {
	f := newFormatter(opts, cmd)
	svc, err := openServices(opts, f)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, f, svc)
}

// outputConfig prints a single config after a write or a show.
func outputConfig(f *OutputFormatter, verb string, cfg ir.OrganizationConfig) error {
	if f.IsJSON() {
		return f.Success(cfg)
	}

	w := f.Writer
	fmt.Fprintf(w, "✓ %s config %s (version %d)\n", verb, cfg.ID, cfg.Version)
	fmt.Fprintf(w, "  organization: %s\n", cfg.OrganizationID)
	fmt.Fprintf(w, "  name:         %s\n", cfg.Name)
	fmt.Fprintf(w, "  active:       %t\n", cfg.IsActive)
	if cfg.Preset != "" {
		fmt.Fprintf(w, "  preset:       %s\n", cfg.Preset)
	}
	fmt.Fprintf(w, "  parameters:   %d (weights sum %.2f)\n", len(cfg.Parameters), cfg.EnabledWeightSum())
	fmt.Fprintf(w, "  rules:        %d\n", len(cfg.Rules))
	return nil
}

func newConfigCreateCommand(opts *RootOptions) *cobra.Command {
	var activate bool

	cmd := &cobra.Command{
		Use:           "create <config-file>",
		Short:         "Store a new config from a file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(opts, cmd, func(ctx context.Context, f *OutputFormatter, svc *services) error {
				src, err := loadConfigFile(f, args[0])
				if err != nil {
					return err
				}
				cfg := src.Config
				if activate {
					cfg.IsActive = true
				}

				created, err := svc.configs.Create(ctx, cfg)
				if err != nil {
					return storeFailure(f, "create config", err)
				}
				return outputConfig(f, "Created", created)
			})
		},
	}

	cmd.Flags().BoolVar(&activate, "activate", false, "make the new config the organization's active config")
	return cmd
}

func newConfigUpdateCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id> <config-file>",
		Short: "Replace a stored config with the contents of a file",
		Long: `Replace a stored config and bump its version. A non-zero version in
the file must match the stored version.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(opts, cmd, func(ctx context.Context, f *OutputFormatter, svc *services) error {
				src, err := loadConfigFile(f, args[1])
				if err != nil {
					return err
				}
				cfg := src.Config
				cfg.ID = args[0]

				updated, err := svc.configs.Update(ctx, cfg)
				if err != nil {
					return storeFailure(f, "update config", err)
				}
				return outputConfig(f, "Updated", updated)
			})
		},
	}
	return cmd
}

func newConfigDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a stored config",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(opts, cmd, func(ctx context.Context, f *OutputFormatter, svc *services) error {
				if err := svc.configs.Delete(ctx, args[0]); err != nil {
					return storeFailure(f, "delete config", err)
				}
				if f.IsJSON() {
					return f.Success(map[string]string{"deleted": args[0]})
				}
				fmt.Fprintf(f.Writer, "✓ Deleted config %s\n", args[0])
				return nil
			})
		},
	}
}

func newConfigDuplicateCommand(opts *RootOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:           "duplicate <id>",
		Short:         "Copy a config under a new id (inactive)",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(opts, cmd, func(ctx context.Context, f *OutputFormatter, svc *services) error {
				dup, err := svc.configs.Duplicate(ctx, args[0], name)
				if err != nil {
					return storeFailure(f, "duplicate config", err)
				}
				return outputConfig(f, "Created", dup)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name of the copy (default: \"<name> (copy)\")")
	return cmd
}

func newConfigShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored config",
		Long: `Show a stored config. "default:<organization>" shows the built-in
default config of an organization.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(opts, cmd, func(ctx context.Context, f *OutputFormatter, svc *services) error {
				cfg, err := svc.configs.Get(ctx, args[0])
				if err != nil {
					return storeFailure(f, "show config", err)
				}
				if err := outputConfig(f, "Found", cfg); err != nil {
					return err
				}
				if !f.IsJSON() {
					fmt.Fprintln(f.Writer)
					for _, p := range cfg.Parameters {
						fmt.Fprintf(f.Writer, "  %-20s %-12s %6.2f enabled=%t\n", p.ID, p.Category, p.Weight, p.Enabled)
					}
					for _, r := range cfg.Rules {
						fmt.Fprintf(f.Writer, "  rule %-15s %-12s %-8s enabled=%t\n", r.ID, r.Category, r.Severity, r.Enabled)
					}
				}
				return nil
			})
		},
	}
}

func newConfigListCommand(opts *RootOptions) *cobra.Command {
	var filter store.Filter

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List stored configs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(opts, cmd, func(ctx context.Context, f *OutputFormatter, svc *services) error {
				cfgs, err := svc.configs.List(ctx, filter)
				if err != nil {
					return storeFailure(f, "list configs", err)
				}
				return outputSummaries(f, cfgs)
			})
		},
	}

	cmd.Flags().StringVar(&filter.OrganizationID, "org", "", "only configs of this organization")
	cmd.Flags().BoolVar(&filter.ActiveOnly, "active", false, "only active configs")
	cmd.Flags().StringVar(&filter.Search, "search", "", "case-insensitive name substring")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of configs (0 = all)")
	return cmd
}

func newConfigHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <id>",
		Short:         "List every stored version of a config",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(opts, cmd, func(ctx context.Context, f *OutputFormatter, svc *services) error {
				versions, err := svc.store.ConfigHistory(ctx, args[0])
				if err != nil {
					return storeFailure(f, "config history", err)
				}
				if len(versions) == 0 {
					return f.Fail(ExitCommandError, ErrCodeNotFound, "config history: config not found", nil)
				}
				return outputSummaries(f, versions)
			})
		},
	}
}

func outputSummaries(f *OutputFormatter, cfgs []ir.OrganizationConfig) error {
	summaries := make([]ConfigSummary, 0, len(cfgs))
	for _, c := range cfgs {
		summaries = append(summaries, summarize(c))
	}

	if f.IsJSON() {
		return f.Success(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(f.Writer, "No configs found.")
		return nil
	}
	for _, s := range summaries {
		active := " "
		if s.IsActive {
			active = "*"
		}
		fmt.Fprintf(f.Writer, "%s %-38s v%-3d %-20s %s\n", active, s.ID, s.Version, s.OrganizationID, s.Name)
	}
	return nil
}

func newConfigActivateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "activate <id>",
		Short:         "Make a config its organization's active config",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(opts, cmd, func(ctx context.Context, f *OutputFormatter, svc *services) error {
				cfg, err := svc.configs.Activate(ctx, args[0])
				if err != nil {
					return storeFailure(f, "activate config", err)
				}
				return outputConfig(f, "Activated", cfg)
			})
		},
	}
}

func newConfigApplyPresetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "apply-preset <id> <preset>",
		Short:         "Overwrite a config's weights with a preset",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(opts, cmd, func(ctx context.Context, f *OutputFormatter, svc *services) error {
				cfg, err := svc.configs.ApplyPreset(ctx, args[0], args[1])
				if err != nil {
					return storeFailure(f, "apply preset", err)
				}
				return outputConfig(f, "Updated", cfg)
			})
		},
	}
}

func newConfigApplyTemplateCommand(opts *RootOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:           "apply-template <organization> <template>",
		Short:         "Create an inactive config from a built-in template",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(opts, cmd, func(ctx context.Context, f *OutputFormatter, svc *services) error {
				cfg, err := svc.configs.ApplyTemplate(ctx, args[0], args[1], name)
				if err != nil {
					return storeFailure(f, "apply template", err)
				}
				return outputConfig(f, "Created", cfg)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "config name (default: the template's)")
	return cmd
}

// PresetInfo is the JSON form of a preset.
type PresetInfo struct {
	Name    string             `json:"name"`
	Weights map[string]float64 `json:"weights"`
}

func newConfigPresetsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "presets",
		Short:         "List the built-in weight presets",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd)

			var presets []PresetInfo
			for _, name := range config.PresetNames() {
				weights, _ := config.Preset(name)
				presets = append(presets, PresetInfo{Name: name, Weights: weights})
			}
			if f.IsJSON() {
				return f.Success(presets)
			}

			ids := []string{config.ParamStructural, config.ParamLegal, config.ParamClarity, config.ParamFormal}
			for _, p := range presets {
				parts := make([]string, 0, len(ids))
				for _, id := range ids {
					parts = append(parts, fmt.Sprintf("%s=%g", id, p.Weights[id]))
				}
				fmt.Fprintf(f.Writer, "%-10s %s\n", p.Name, strings.Join(parts, " "))
			}
			return nil
		},
	}
}

// TemplateInfo is the JSON form of a template listing.
type TemplateInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Preset      string `json:"preset,omitempty"`
	Description string `json:"description"`
	Rules       int    `json:"rules"`
}

func newConfigTemplatesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "templates",
		Short:         "List the built-in config templates",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd)

			var infos []TemplateInfo
			for _, t := range config.Templates() {
				infos = append(infos, TemplateInfo{
					ID:          t.ID,
					Name:        t.Name,
					Category:    t.Category,
					Preset:      t.Preset,
					Description: t.Description,
					Rules:       len(t.Rules),
				})
			}
			if f.IsJSON() {
				return f.Success(infos)
			}
			for _, t := range infos {
				fmt.Fprintf(f.Writer, "%-22s %-10s %-10s %s\n", t.ID, t.Category, t.Preset, t.Name)
			}
			return nil
		},
	}
}
