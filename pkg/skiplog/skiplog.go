// Package skiplog records files that were excluded from content analysis.
//
// The log is append-only, one tab-separated line per entry:
//
//	<RFC3339 time>\t<category>\t<file name>\t<path>\t<reason>
//
// Tabs and newlines inside fields are replaced by spaces.
package skiplog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Categories used by the search engine.
const (
	CategorySize      = "size"
	CategoryExtension = "extension"
	CategorySystem    = "system"
	CategoryGigantic  = "gigantic"
	CategoryDeclined  = "declined"
	CategoryTimeout   = "timeout"
	CategoryError     = "error"
)

// Entry is one skipped file.
type Entry struct {
	Time     time.Time `json:"time" yaml:"time"`
	Category string    `json:"category" yaml:"category"`
	Name     string    `json:"name" yaml:"name"`
	Path     string    `json:"path" yaml:"path"`
	Reason   string    `json:"reason" yaml:"reason"`
}

// Recorder accepts skip entries.
type Recorder interface {
	Record(Entry) error
}

// Log writes entries to an underlying writer. It is safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	count  atomic.Int64
	now    func() time.Time
}

// New writes to w. Close does not close w.
func New(w io.Writer) *Log {
	return &Log{w: w, now: time.Now}
}

// Open appends to the named file, creating it when needed.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open skip log: %w", err)
	}
	return &Log{w: f, closer: f, now: time.Now}, nil
}

// Record appends e. A zero Time is stamped with the current time.
func (l *Log) Record(e Entry) error {
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	line := strings.Join([]string{
		e.Time.Format(time.RFC3339),
		clean(e.Category),
		clean(e.Name),
		clean(e.Path),
		clean(e.Reason),
	}, "\t") + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, line); err != nil {
		return fmt.Errorf("write skip log: %w", err)
	}
	l.count.Add(1)
	return nil
}

// Count returns the number of entries written through l.
func (l *Log) Count() int64 { return l.count.Load() }

func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

var fieldCleaner = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func clean(s string) string { return fieldCleaner.Replace(s) }

// Read parses a skip log. Malformed lines are reported with their number.
func Read(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 1<<20)

	n := 0
	for sc.Scan() {
		n++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 5)
		if len(fields) != 5 {
			return entries, fmt.Errorf("line %d: expected 5 fields, got %d", n, len(fields))
		}
		ts, err := time.Parse(time.RFC3339, fields[0])
		if err != nil {
			return entries, fmt.Errorf("line %d: %w", n, err)
		}
		entries = append(entries, Entry{
			Time:     ts,
			Category: fields[1],
			Name:     fields[2],
			Path:     fields[3],
			Reason:   fields[4],
		})
	}
	return entries, sc.Err()
}

// Discard drops every entry.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Entry) error { return nil }
