/*
Package commands implements the sifter command line: the search command,
the skipped-file report and version information.
*/
package commands

import (
	"fmt"

	"github.com/sonemaro/sifter/internal/config"
	"github.com/spf13/cobra"
)

// Options holds command-line options that apply to all commands
type Options struct {
	Config     *config.Config
	ConfigPath string
	Verbose    int
	NoProgress bool
	NoColor    bool
	LogFile    string
}

// NewRootCommand creates the root command for the application
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "sifter [command] [flags]",
		Short: "Concurrent, resource-aware local file search",
		Long: `Sifter searches a folder tree for files and folders whose names or
contents match a set of keywords.

It walks the tree with a bounded pool of workers, reads documents such as
PDF, spreadsheets, office files and mail, scans very large files partially,
and stays inside a memory budget while it runs.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeCommand(cmd, opts)
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		"YAML configuration file (default: $SIFTER_CONFIG)")
	rootCmd.PersistentFlags().CountVarP(&opts.Verbose, "verbose", "v",
		"verbose output (can be used multiple times)")
	rootCmd.PersistentFlags().BoolVar(&opts.NoProgress, "no-progress", false,
		"disable progress reporting")
	rootCmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false,
		"disable colored output")
	rootCmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "",
		"append logs to this file")

	rootCmd.AddCommand(
		newSearchCommand(opts),
		newSkippedCommand(opts),
		newVersionCommand(opts),
	)

	return rootCmd
}

// initializeCommand loads the configuration and applies the global flags
// given on the command line.
func initializeCommand(cmd *cobra.Command, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Verbose = opts.Verbose
	}
	if flags.Changed("no-progress") {
		cfg.NoProgress = opts.NoProgress
	}
	if flags.Changed("no-color") {
		cfg.NoColor = opts.NoColor
	}
	if flags.Changed("log-file") {
		cfg.LogFile = opts.LogFile
	}

	opts.Config = &cfg
	return nil
}
