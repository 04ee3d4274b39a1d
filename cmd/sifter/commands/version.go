package commands

import (
	"encoding/json"
	"fmt"

	"github.com/sonemaro/sifter/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand(opts *Options) *cobra.Command {
	var (
		showFull bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				data, err := json.MarshalIndent(version.GetBuildInfo(), "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
			case showFull:
				fmt.Fprintln(out, version.FullVersion())
			default:
				fmt.Fprintln(out, version.Version)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showFull, "full", "f", false,
		"show full version information")
	cmd.Flags().BoolVar(&asJSON, "json", false,
		"print build information as JSON")

	return cmd
}
