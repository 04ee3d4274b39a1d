package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sonemaro/sifter/cmd/sifter/app"
	"github.com/sonemaro/sifter/internal/config"
	"github.com/sonemaro/sifter/pkg/content"
	"github.com/sonemaro/sifter/pkg/output"
	"github.com/sonemaro/sifter/pkg/search"
	"github.com/spf13/cobra"
)

type searchOptions struct {
	*Options

	names     bool
	folders   bool
	content   bool
	wholeWord bool

	maxDepth        int
	exclusions      []string
	excludePatterns []string

	minSize        string
	maxSize        string
	modifiedAfter  string
	modifiedBefore string

	workers     int
	fileTimeout time.Duration
	timeout     time.Duration
	level       string
	strict      bool
	maxFiles    int64
	prioritize  bool
	followLinks bool
	useIndex    bool

	format     string
	outputFile string
	skipLog    string
	confirm    string
}

func newSearchCommand(opts *Options) *cobra.Command {
	so := &searchOptions{Options: opts}

	cmd := &cobra.Command{
		Use:   "search [flags] <root> <keyword> [keyword...]",
		Short: "Search a folder tree for matching names and content",
		Long: `Searches every file and folder under root for the given keywords.

By default only file names are matched. Use --content to look inside files
and --folders to report matching folder names. The search level decides
which file types are read:

  basic     plain text, source and office documents
  advanced  basic plus mail, archives and more document formats
  deep      every readable file, including text files without an extension

Press Ctrl+C once to stop and keep the results found so far; press it again
to exit immediately.`,
		Example: `  sifter search ~/Documents invoice
  sifter search --content --level advanced /srv/share "quarterly report"
  sifter search --folders --max-depth 3 -o json -f out.json . backup`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(so, so.Config, cmd.Flags().Changed, args)
			if err != nil {
				return err
			}
			searchOpts, err := buildSearchOptions(so, so.Config, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("skip-log") {
				so.Config.SkipLog = so.skipLog
			}
			if cmd.Flags().Changed("use-index") {
				so.Config.UseIndex = so.useIndex
			}
			return runSearch(so.Config, req, searchOpts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&so.names, "names", true, "match keywords against file names")
	flags.BoolVar(&so.folders, "folders", false, "match keywords against folder names")
	flags.BoolVar(&so.content, "content", false, "match keywords inside files")
	flags.BoolVar(&so.wholeWord, "whole-word", false, "only match whole words in file content")

	flags.IntVarP(&so.maxDepth, "max-depth", "d", 0, "maximum folder depth (0 for unlimited)")
	flags.StringSliceVarP(&so.exclusions, "exclude", "e", nil, "path prefixes to skip")
	flags.StringSliceVarP(&so.excludePatterns, "exclude-pattern", "x", nil, "glob patterns of names to skip")

	flags.StringVar(&so.minSize, "min-size", "", "minimum file size (e.g. 10KB)")
	flags.StringVar(&so.maxSize, "max-size", "", "maximum file size (e.g. 2GB)")
	flags.StringVar(&so.modifiedAfter, "modified-after", "", "only files modified after this date (YYYY-MM-DD or RFC3339)")
	flags.StringVar(&so.modifiedBefore, "modified-before", "", "only files modified before this date (YYYY-MM-DD or RFC3339)")

	flags.IntVarP(&so.workers, "workers", "w", 0, "number of concurrent workers")
	flags.DurationVar(&so.fileTimeout, "file-timeout", 0, "base time allowed per file")
	flags.DurationVar(&so.timeout, "timeout", 0, "stop the search after this long (0 for none)")
	flags.StringVarP(&so.level, "level", "l", "", "search level: basic|advanced|deep")
	flags.BoolVar(&so.strict, "strict", false, "use the base file timeout for every file")
	flags.Int64Var(&so.maxFiles, "max-files", 0, "stop after checking this many files (0 for unlimited)")
	flags.BoolVar(&so.prioritize, "prioritize", false, "search document folders before the rest of the tree")
	flags.BoolVar(&so.followLinks, "follow-symlinks", false, "descend into symbolic links to folders")
	flags.BoolVar(&so.useIndex, "use-index", false, "answer name-only searches from the locate database")

	flags.StringVarP(&so.format, "output", "o", "", "output format: list|json|yaml")
	flags.StringVarP(&so.outputFile, "file", "f", "", "write results to file instead of stdout")
	flags.StringVar(&so.skipLog, "skip-log", "", "append skipped files to this log")
	flags.StringVar(&so.confirm, "confirm", string(app.ConfirmAsk), "answer for very large files: ask|yes|no")

	return cmd
}

func runSearch(cfg *config.Config, req search.Request, opts *app.SearchOptions) error {
	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	return application.Search(req, opts)
}

// buildRequest merges the search flags with the configuration. A flag the
// user did not set falls back to the configured value.
func buildRequest(so *searchOptions, cfg *config.Config, changed func(string) bool, args []string) (search.Request, error) {
	req := search.Request{
		Root:         args[0],
		Keywords:     args[1:],
		MatchNames:   so.names,
		MatchFolders: so.folders,
		MatchContent: so.content,
		WholeWord:    so.wholeWord,
		Strict:       so.strict,
		Prioritize:   so.prioritize,

		FollowSymlinks: so.followLinks,

		DepthLimit:      cfg.MaxDepth,
		Exclusions:      cfg.Exclusions,
		ExcludePatterns: cfg.ExcludePatterns,
		Workers:         cfg.Workers,
		FileTimeout:     cfg.Timeouts.File,
		OverallTimeout:  cfg.Timeouts.Overall,
		MaxFilesToCheck: cfg.MaxFiles,
		Level:           cfg.SearchLevel(),
	}

	if changed("max-depth") {
		req.DepthLimit = so.maxDepth
	}
	if changed("exclude") {
		req.Exclusions = append(append([]string(nil), cfg.Exclusions...), so.exclusions...)
	}
	if changed("exclude-pattern") {
		req.ExcludePatterns = append(append([]string(nil), cfg.ExcludePatterns...), so.excludePatterns...)
	}
	if changed("workers") {
		req.Workers = so.workers
	}
	if changed("file-timeout") {
		req.FileTimeout = so.fileTimeout
	}
	if changed("timeout") {
		req.OverallTimeout = so.timeout
	}
	if changed("max-files") {
		req.MaxFilesToCheck = so.maxFiles
	}
	if changed("level") {
		level, err := content.ParseLevel(so.level)
		if err != nil {
			return req, err
		}
		req.Level = level
	}

	var err error
	if req.MinSize, err = parseSizeFlag("min-size", so.minSize); err != nil {
		return req, err
	}
	if req.MaxSize, err = parseSizeFlag("max-size", so.maxSize); err != nil {
		return req, err
	}
	if req.ModifiedAfter, err = parseDateFlag("modified-after", so.modifiedAfter); err != nil {
		return req, err
	}
	if req.ModifiedBefore, err = parseDateFlag("modified-before", so.modifiedBefore); err != nil {
		return req, err
	}
	return req, nil
}

func buildSearchOptions(so *searchOptions, cfg *config.Config, changed func(string) bool) (*app.SearchOptions, error) {
	name := cfg.Output
	if changed("output") {
		name = so.format
	}
	format, err := output.ParseFormat(name)
	if err != nil {
		return nil, err
	}

	path := cfg.OutputFile
	if changed("file") {
		path = so.outputFile
	}

	mode, err := parseConfirmMode(so.confirm)
	if err != nil {
		return nil, err
	}

	return &app.SearchOptions{
		Format:     format,
		OutputPath: path,
		Confirm:    mode,
	}, nil
}

func parseSizeFlag(name, value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("--%s: invalid size %q", name, value)
	}
	return int64(n), nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("--%s: invalid date %q (use YYYY-MM-DD or RFC3339)", name, value)
}

func parseConfirmMode(s string) (app.ConfirmMode, error) {
	switch mode := app.ConfirmMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "", app.ConfirmAsk:
		return app.ConfirmAsk, nil
	case app.ConfirmYes, app.ConfirmNo:
		return mode, nil
	default:
		return "", fmt.Errorf("--confirm: must be ask, yes or no, got %q", s)
	}
}
