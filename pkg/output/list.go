package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/search"
	"github.com/sonemaro/sifter/pkg/skiplog"
)

// formatList writes one line per result:
//
//	<kind> <path>  <size>  <matched by>[: keywords]
func (f *formatter) formatList(results []search.Result) (string, error) {
	f.log.Debug("Formatting list output")

	dirColor := color.New(color.FgBlue, color.Bold)
	nameColor := color.New(color.FgGreen)
	contentColor := color.New(color.FgYellow)
	if f.config.WithColors {
		f.log.Debug("Applying color formatting")
		for _, c := range []*color.Color{dirColor, nameColor, contentColor} {
			c.EnableColor()
		}
	} else {
		for _, c := range []*color.Color{dirColor, nameColor, contentColor} {
			c.DisableColor()
		}
	}

	var b strings.Builder
	for _, r := range results {
		f.log.WithFields(logger.Fields{
			"path":      r.Path,
			"matchedBy": r.MatchedBy,
		}).Trace("Formatting result")

		if r.Kind == search.KindDirectory {
			b.WriteString(dirColor.Sprint("[dir]  " + r.Path + "/"))
			b.WriteString("\n")
			continue
		}

		c := nameColor
		if r.MatchedBy == search.MatchedByContent {
			c = contentColor
		}
		b.WriteString("[file] ")
		b.WriteString(r.Path)
		b.WriteString("  ")
		b.WriteString(r.SizeFormatted)
		b.WriteString("  ")

		by := string(r.MatchedBy)
		if len(r.Keywords) > 0 {
			by += ": " + strings.Join(r.Keywords, ", ")
		}
		if r.FromNestedContainer {
			by += " (inside attachment or archive)"
		}
		b.WriteString(c.Sprint(by))
		b.WriteString("\n")
	}

	if len(results) == 0 {
		b.WriteString("No matches found.\n")
	}

	if f.config.WithStats {
		f.log.Debug("Adding statistics to output")
		s := f.calculateStats(results)
		b.WriteString("\nStatistics:\n")
		b.WriteString(fmt.Sprintf("  Matched Files: %d\n", s.Files))
		b.WriteString(fmt.Sprintf("  Matched Directories: %d\n", s.Dirs))
		b.WriteString(fmt.Sprintf("  By Name: %d\n", s.ByName))
		b.WriteString(fmt.Sprintf("  By Content: %d\n", s.ByContent))
		b.WriteString(fmt.Sprintf("  Inside Containers: %d\n", s.Nested))
		b.WriteString(fmt.Sprintf("  Total Size: %s\n", s.SizeDisplay))
	}

	return b.String(), nil
}

func (f *formatter) formatSkippedList(entries []skiplog.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("%s  %-10s %s  (%s)\n",
			e.Time.Format("2006-01-02 15:04:05"), e.Category, e.Path, e.Reason))
	}
	if len(entries) == 0 {
		b.WriteString("No skipped files recorded.\n")
	}

	if f.config.WithStats && len(entries) > 0 {
		counts := countCategories(entries)
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("\nBy Category:\n")
		for _, name := range names {
			b.WriteString(fmt.Sprintf("  %s: %d\n", name, counts[name]))
		}
	}
	return b.String()
}
