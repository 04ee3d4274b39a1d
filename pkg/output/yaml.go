package output

import (
	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/search"
	"gopkg.in/yaml.v3"
)

func (f *formatter) formatYAML(results []search.Result) (string, error) {
	f.log.Debug("Formatting YAML output")
	return f.marshalYAML(f.document(results))
}

func (f *formatter) marshalYAML(v any) (string, error) {
	bytes, err := yaml.Marshal(v)
	if err != nil {
		f.log.WithFields(logger.Fields{
			"error": err,
		}).Error("Failed to marshal YAML")
		return "", err
	}
	return string(bytes), nil
}
