package output

import (
	"encoding/json"
	"time"

	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/search"
	"github.com/sonemaro/sifter/pkg/skiplog"
)

// resultOutput is the document written for json and yaml
type resultOutput struct {
	Results    []search.Result `json:"results" yaml:"results"`
	Statistics *stats          `json:"statistics,omitempty" yaml:"statistics,omitempty"`
	Generated  time.Time       `json:"generated" yaml:"generated"`
}

type skippedOutput struct {
	Skipped    []skiplog.Entry `json:"skipped" yaml:"skipped"`
	Categories map[string]int  `json:"categories" yaml:"categories"`
}

func (f *formatter) document(results []search.Result) *resultOutput {
	out := &resultOutput{
		Results:   nonNil(results),
		Generated: time.Now(),
	}
	if f.config.WithStats {
		f.log.WithFields(logger.Fields{"format": f.config.Format}).Debug("Adding statistics to document")
		out.Statistics = f.calculateStats(results)
	}
	return out
}

func (f *formatter) formatJSON(results []search.Result) (string, error) {
	f.log.Debug("Formatting JSON output")
	return f.marshalJSON(f.document(results))
}

func (f *formatter) marshalJSON(v any) (string, error) {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		f.log.WithFields(logger.Fields{
			"error": err,
		}).Error("Failed to marshal JSON")
		return "", err
	}
	return string(bytes), nil
}
