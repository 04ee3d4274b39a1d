package commands

import (
	"github.com/sonemaro/sifter/cmd/sifter/app"
	"github.com/sonemaro/sifter/pkg/output"
	"github.com/spf13/cobra"
)

type skippedOptions struct {
	*Options
	format     string
	outputFile string
	categories []string
}

func newSkippedCommand(opts *Options) *cobra.Command {
	so := &skippedOptions{Options: opts}

	cmd := &cobra.Command{
		Use:   "skipped [flags] [logfile]",
		Short: "List files that were left out of content analysis",
		Long: `Reads a skip log written during a search (see --skip-log) and lists
the files it records with the reason each one was skipped.

Categories: size, extension, system, gigantic, declined, timeout, error.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := so.Config.SkipLog
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return cmd.Help()
			}
			return runSkipped(path, so)
		},
	}

	cmd.Flags().StringVarP(&so.format, "format", "o", "list",
		"output format: list|json|yaml (text is an alias of list)")
	cmd.Flags().StringVarP(&so.outputFile, "file", "f", "",
		"write output to file instead of stdout")
	cmd.Flags().StringSliceVar(&so.categories, "category", nil,
		"only show these categories (can be specified multiple times)")

	return cmd
}

func runSkipped(path string, opts *skippedOptions) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	application, err := app.New(opts.Config)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	return application.ShowSkipped(path, &app.SkippedOptions{
		Format:     format,
		OutputPath: opts.outputFile,
		Categories: opts.categories,
	})
}
