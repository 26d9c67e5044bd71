package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose      bool
	Format       string // "json" | "text"
	DB           string // SQLite path of the config store
	SettingsFile string // optional settings file (yaml, json, toml)

	v        *viper.Viper
	settings *Settings
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the conformity CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{v: newViper()}

	cmd := &cobra.Command{
		Use:   "conformity",
		Short: "Conformity scoring for public-procurement documents",
		Long: `Scores procurement documents (editais, termos de referência, contract
drafts) against an organization's configurable parameters and rules.

Configs are CUE or JSON files, stored per organization in a SQLite
database. Engine settings come from --settings, CONFORMITY_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if _, err := opts.Settings(); err != nil {
				return WrapExitError(ExitCommandError, "failed to load settings", err)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", DefaultDatabase, "SQLite database of stored configs")
	cmd.PersistentFlags().StringVar(&opts.SettingsFile, "settings", "", "engine settings file")

	_ = opts.v.BindPFlag("db", cmd.PersistentFlags().Lookup("db"))

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewNormalizeCommand(opts))
	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Settings loads the settings once. Options built without the root
// command (as in tests) get a fresh viper instance with DB applied.
func (o *RootOptions) Settings() (*Settings, error) {
	if o.settings != nil {
		return o.settings, nil
	}
	v := o.v
	if v == nil {
		v = newViper()
		if o.DB != "" {
			v.Set("db", o.DB)
		}
	}

	s, err := LoadSettings(v, o.SettingsFile)
	if err != nil {
		return nil, err
	}
	o.settings = s
	return s, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// newFormatter builds the formatter of cmd.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
