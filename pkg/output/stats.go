package output

import (
	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/pathclass"
	"github.com/sonemaro/sifter/pkg/search"
	"github.com/sonemaro/sifter/pkg/skiplog"
)

// stats summarizes a result set
type stats struct {
	Files       int    `json:"totalFiles" yaml:"total_files"`
	Dirs        int    `json:"totalDirectories" yaml:"total_directories"`
	ByName      int    `json:"matchedByName" yaml:"matched_by_name"`
	ByContent   int    `json:"matchedByContent" yaml:"matched_by_content"`
	Nested      int    `json:"fromNestedContainers" yaml:"from_nested_containers"`
	TotalSize   int64  `json:"totalSize" yaml:"total_size"`
	SizeDisplay string `json:"totalSizeFormatted" yaml:"total_size_formatted"`
}

func (f *formatter) calculateStats(results []search.Result) *stats {
	f.log.Debug("Calculating result statistics")

	s := &stats{}
	for _, r := range results {
		switch r.Kind {
		case search.KindDirectory:
			s.Dirs++
			continue
		case search.KindFile:
			s.Files++
			s.TotalSize += r.Size
		}
		switch r.MatchedBy {
		case search.MatchedByName:
			s.ByName++
		case search.MatchedByContent:
			s.ByContent++
		}
		if r.FromNestedContainer {
			s.Nested++
		}
	}
	s.SizeDisplay = pathclass.FormatSize(s.TotalSize)

	f.log.WithFields(logger.Fields{
		"files":   s.Files,
		"dirs":    s.Dirs,
		"nested":  s.Nested,
		"size":    s.TotalSize,
		"content": s.ByContent,
	}).Debug("Statistics calculated")

	return s
}

func countCategories(entries []skiplog.Entry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Category]++
	}
	return counts
}
