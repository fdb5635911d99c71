package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/kvorm/internal/orm"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// ConfigPath names an optional YAML config file. Driver, DBPath and
	// Addr override the file's store section when set.
	ConfigPath string
	Driver     string
	DBPath     string
	Addr       string

	// MetricsFile, if set, receives the repository metrics in the
	// Prometheus text format after a successful command.
	MetricsFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the kvorm CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kvorm",
		Short: "kvorm - objects over a key-value store",
		Long: `Store typed records as hashes in a Redis-style key-value store and
maintain equality and sorted-set indexes over their properties.

Entity types are declared in CUE. Records live at prefix:id, equality
indexes at index:value and sorted indexes at index.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return writeMetrics(opts.MetricsFile)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "store driver (memory|sqlite|redis)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "SQLite database path")
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "", "Redis address (host:port)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write repository metrics to this file")

	// Add subcommands
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewMembersCommand(opts))
	cmd.AddCommand(NewRangeCommand(opts))
	cmd.AddCommand(NewKeysCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// writeMetrics gathers the repository collectors into a fresh registry
// and writes them to path. An empty path is a no-op.
func writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	reg := prometheus.NewRegistry()
	for _, c := range orm.Collectors() {
		if err := reg.Register(c); err != nil {
			return WrapExitError(ExitCommandError, "failed to register metrics", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return WrapExitError(ExitCommandError, "failed to write metrics", err)
	}
	return nil
}
