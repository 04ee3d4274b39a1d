/*
Package extract turns structured documents into searchable text.

Every extractor reads through an afero.Fs so that the search core can run
against the host filesystem or an in-memory tree. Extractors never decide
whether something matches: they return a Document made of sections, and a
section flagged Nested came from inside a container (an e-mail attachment).

	reg := extract.Default()
	if ex, ok := reg.For("pdf"); ok {
	    doc, err := ex.Extract(ctx, fs, "/data/invoice.pdf")
	    ...
	}

Any extractor error means "no searchable text"; callers fall back to raw
scanning where that makes sense.
*/
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// ErrUnsupported is returned for files an extractor cannot handle.
var ErrUnsupported = errors.New("unsupported document")

// Section is one named piece of extracted text.
type Section struct {
	Name   string
	Text   string
	Nested bool
}

// Document is the text extracted from one file.
type Document struct {
	Sections []Section
}

// Text joins every section.
func (d Document) Text() string {
	parts := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n")
}

// Extractor extracts searchable text from a file.
type Extractor interface {
	Extract(ctx context.Context, fs afero.Fs, path string) (Document, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, fs afero.Fs, path string) (Document, error)

func (f ExtractorFunc) Extract(ctx context.Context, fs afero.Fs, path string) (Document, error) {
	return f(ctx, fs, path)
}

// Registry maps lower-case extensions (without dot) to extractors.
type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Extractor)}
}

// Default returns a registry with every built-in extractor.
func Default() *Registry {
	r := NewRegistry()
	r.Register(PDF{}, "pdf")
	r.Register(Spreadsheet{}, "xlsx", "xlsm")
	r.Register(HTML{}, "html", "htm")
	r.Register(Mail{}, "eml")
	r.Register(Mbox{}, "mbox")
	r.Register(Word{}, "docx")
	r.Register(Presentation{}, "pptx")
	r.Register(OpenDocument{}, "odt", "odp", "ods")
	return r
}

// Register binds e to each extension.
func (r *Registry) Register(e Extractor, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range exts {
		r.byExt[strings.ToLower(strings.TrimPrefix(ext, "."))] = e
	}
}

// For looks up the extractor for ext.
func (r *Registry) For(ext string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byExt[strings.ToLower(ext)]
	return e, ok
}

// Extensions lists the registered extensions.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	return out
}

// openSized opens path and returns the handle with its size.
func openSized(fs afero.Fs, path string) (afero.File, int64, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// readAll reads at most limit bytes of path.
func readAll(fs afero.Fs, path string, limit int64) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit))
}

// guard converts a panic inside a third-party parser into an error.
func guard(path string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("parser panic on %s: %v", path, r)
	}
}
