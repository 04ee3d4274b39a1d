package config

import "time"

// OutputFormat represents the supported output formats
type OutputFormat string

const (
	OutputFormatList OutputFormat = "list"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

// Constants for configuration limits and defaults
const (
	// MinChunkSize is the smallest accepted read size for content scanning
	MinChunkSize = 4 << 10

	// MaxWorkers bounds the worker pool regardless of CPU count
	MaxWorkers = 32

	// UnlimitedDepth disables the depth limit
	UnlimitedDepth = 0

	DefaultFileTimeout = 30 * time.Second
)

// ThresholdsConfig holds the size category bounds as human readable sizes
// such as "50MiB".
type ThresholdsConfig struct {
	Medium   string
	Large    string
	Huge     string
	Gigantic string
}

// GiganticConfig holds the skip cut-offs for gigantic files.
type GiganticConfig struct {
	BinaryCutoff  string
	ArchiveCutoff string
	MediaCutoff   string
}

// TimeoutConfig holds the per-file deadline components.
type TimeoutConfig struct {
	File      time.Duration
	Network   time.Duration
	Large     time.Duration
	BinaryCap time.Duration
	Container time.Duration
	Overall   time.Duration
}

// MemoryConfig selects the memory policy.
type MemoryConfig struct {
	// Policy is automatic or manual
	Policy   string
	Interval time.Duration

	// Percent is the manual limit as a share of total RAM
	Percent float64

	// Ceiling fixes the automatic limit, e.g. "600MiB"
	Ceiling   string
	ResultCap int
}

// WatchdogConfig tunes stall detection.
type WatchdogConfig struct {
	Interval  time.Duration
	StallTime time.Duration
}
