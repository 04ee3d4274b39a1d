/*
Package output renders search results and skip log entries as a plain list,
JSON or YAML. It supports colored output and a statistics footer.

Basic usage:

	formatter := output.NewFormatter(output.Config{
		Format:     output.FormatList,
		WithStats:  true,
		WithColors: true,
	}, log)

	text, err := formatter.Format(session.Results())
*/
package output

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/search"
	"github.com/sonemaro/sifter/pkg/skiplog"
)

// Format represents the output format type
type Format string

const (
	FormatList Format = "list"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts the names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatList, FormatJSON, FormatYAML:
		return f, nil
	case "text", "":
		return FormatList, nil
	}
	return "", fmt.Errorf("unsupported format: %s", s)
}

// Config holds formatter configuration
type Config struct {
	Format     Format
	WithStats  bool
	WithColors bool
}

// Formatter defines the interface for output formatting
type Formatter interface {
	Format(results []search.Result) (string, error)
	FormatSkipped(entries []skiplog.Entry) (string, error)
}

type formatter struct {
	config Config
	log    logger.Logger
}

// NewFormatter creates a new formatter instance
func NewFormatter(config Config, log logger.Logger) Formatter {
	return &formatter{
		config: config,
		log:    log,
	}
}

// Format renders results in the configured format, ordered by path. A nil
// slice is an empty result set.
func (f *formatter) Format(results []search.Result) (string, error) {
	results = sortedByPath(results)
	f.log.WithFields(logger.Fields{
		"format":     f.config.Format,
		"results":    len(results),
		"withStats":  f.config.WithStats,
		"withColors": f.config.WithColors,
	}).Debug("Starting format operation")

	switch f.config.Format {
	case FormatList:
		return f.formatList(results)
	case FormatJSON:
		return f.formatJSON(results)
	case FormatYAML:
		return f.formatYAML(results)
	default:
		return "", f.unsupported()
	}
}

// FormatSkipped renders skip log entries.
func (f *formatter) FormatSkipped(entries []skiplog.Entry) (string, error) {
	f.log.WithFields(logger.Fields{
		"format":  f.config.Format,
		"entries": len(entries),
	}).Debug("Formatting skipped files")

	switch f.config.Format {
	case FormatList:
		return f.formatSkippedList(entries), nil
	case FormatJSON:
		return f.marshalJSON(skippedOutput{Skipped: nonNil(entries), Categories: countCategories(entries)})
	case FormatYAML:
		return f.marshalYAML(skippedOutput{Skipped: nonNil(entries), Categories: countCategories(entries)})
	default:
		return "", f.unsupported()
	}
}

func (f *formatter) unsupported() error {
	msg := fmt.Sprintf("unsupported format: %s", f.config.Format)
	f.log.Error(msg)
	return errors.New(msg)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// sortedByPath returns a path-ordered copy; the caller's slice keeps its
// completion order.
func sortedByPath(results []search.Result) []search.Result {
	if results == nil {
		return nil
	}
	out := make([]search.Result, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
