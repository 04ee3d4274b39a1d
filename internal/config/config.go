package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sonemaro/sifter/pkg/content"
	"github.com/sonemaro/sifter/pkg/governor"
	"github.com/sonemaro/sifter/pkg/search"
	"github.com/spf13/viper"
)

// Config holds all configuration parameters for the application
type Config struct {
	// File is the YAML file the configuration was read from, if any
	File string

	// Workers is the number of concurrent file workers
	Workers int

	// MaxDepth is the maximum folder depth below the root (0 for unlimited)
	MaxDepth int

	// Exclusions are path prefixes never entered
	Exclusions []string

	// ExcludePatterns are glob patterns matched against names
	ExcludePatterns []string

	// NetworkMounts are extra prefixes treated as network locations
	NetworkMounts []string

	// Level is the default search level: basic, advanced or deep
	Level string

	// Extensions overrides the allow-list of each level
	Extensions map[string][]string

	Output     string
	OutputFile string

	// SkipLog is the file skipped files are appended to (empty disables it)
	SkipLog string

	// RateLimit is the maximum number of file tasks per second (0 for unlimited)
	RateLimit int

	ChunkSize      int
	MaxContentSize string

	MaxFiles int64

	Thresholds ThresholdsConfig
	Gigantic   GiganticConfig
	Timeouts   TimeoutConfig
	Memory     MemoryConfig
	Watchdog   WatchdogConfig

	// UseIndex allows the locate database to answer name-only searches
	UseIndex bool

	NoProgress bool
	NoColor    bool

	// Verbose sets the verbosity level
	Verbose   int
	LogFormat string
	LogFile   string
}

var validOutputFormats = map[string]bool{
	string(OutputFormatList): true,
	string(OutputFormatJSON): true,
	string(OutputFormatYAML): true,
}

func defaultWorkers() int {
	if n := runtime.NumCPU(); n < 8 {
		return n
	}
	return 8
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("workers", defaultWorkers())
	v.SetDefault("max_depth", UnlimitedDepth)
	v.SetDefault("level", "basic")
	v.SetDefault("output", string(OutputFormatList))
	v.SetDefault("rate_limit", 0)
	v.SetDefault("chunk_size", content.DefaultChunkSize)
	v.SetDefault("max_content_size", "0")
	v.SetDefault("max_files", 0)
	v.SetDefault("use_index", false)
	v.SetDefault("no_progress", false)
	v.SetDefault("no_color", false)
	v.SetDefault("verbose", 0)
	v.SetDefault("log_format", "console")

	v.SetDefault("thresholds.medium", "10MiB")
	v.SetDefault("thresholds.large", "50MiB")
	v.SetDefault("thresholds.huge", "500MiB")
	v.SetDefault("thresholds.gigantic", "2GiB")

	v.SetDefault("gigantic.binary_cutoff", "5GiB")
	v.SetDefault("gigantic.archive_cutoff", "4GiB")
	v.SetDefault("gigantic.media_cutoff", "3GiB")

	v.SetDefault("timeouts.file", DefaultFileTimeout)
	v.SetDefault("timeouts.network", 30*time.Second)
	v.SetDefault("timeouts.large", 60*time.Second)
	v.SetDefault("timeouts.binary_cap", 10*time.Second)
	v.SetDefault("timeouts.container", 120*time.Second)
	v.SetDefault("timeouts.overall", time.Duration(0))

	v.SetDefault("memory.policy", governor.Automatic.String())
	v.SetDefault("memory.interval", governor.DefaultInterval)
	v.SetDefault("memory.percent", governor.DefaultPercent)
	v.SetDefault("memory.ceiling", "")
	v.SetDefault("memory.result_cap", governor.DefaultResultCap)

	v.SetDefault("watchdog.interval", 30*time.Second)
	v.SetDefault("watchdog.stall_time", 180*time.Second)

	v.SetEnvPrefix("SIFTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("config")
	v.BindEnv("exclude")
	v.BindEnv("exclude_patterns")
	v.BindEnv("network_mounts")
	v.BindEnv("output_file")
	v.BindEnv("skip_log")
	v.BindEnv("log_file")

	return v
}

// Load reads the optional YAML file at path, then the SIFTER_ environment
// variables, and validates the result. An empty path falls back to
// SIFTER_CONFIG.
func Load(path string) (Config, error) {
	v := newViper()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if verboseStr := v.GetString("verbose"); verboseStr != "" && strings.Trim(verboseStr, "v") == "" {
		v.Set("verbose", strings.Count(verboseStr, "v"))
	}

	cfg := Config{
		File:            path,
		Workers:         v.GetInt("workers"),
		MaxDepth:        v.GetInt("max_depth"),
		Exclusions:      listValue(v, "exclude"),
		ExcludePatterns: listValue(v, "exclude_patterns"),
		NetworkMounts:   listValue(v, "network_mounts"),
		Level:           v.GetString("level"),
		Output:          v.GetString("output"),
		OutputFile:      v.GetString("output_file"),
		SkipLog:         v.GetString("skip_log"),
		RateLimit:       v.GetInt("rate_limit"),
		ChunkSize:       v.GetInt("chunk_size"),
		MaxContentSize:  v.GetString("max_content_size"),
		MaxFiles:        v.GetInt64("max_files"),
		UseIndex:        v.GetBool("use_index"),
		NoProgress:      v.GetBool("no_progress"),
		NoColor:         v.GetBool("no_color"),
		Verbose:         v.GetInt("verbose"),
		LogFormat:       v.GetString("log_format"),
		LogFile:         v.GetString("log_file"),
	}

	cfg.Thresholds = ThresholdsConfig{
		Medium:   v.GetString("thresholds.medium"),
		Large:    v.GetString("thresholds.large"),
		Huge:     v.GetString("thresholds.huge"),
		Gigantic: v.GetString("thresholds.gigantic"),
	}
	cfg.Gigantic = GiganticConfig{
		BinaryCutoff:  v.GetString("gigantic.binary_cutoff"),
		ArchiveCutoff: v.GetString("gigantic.archive_cutoff"),
		MediaCutoff:   v.GetString("gigantic.media_cutoff"),
	}
	cfg.Timeouts = TimeoutConfig{
		File:      v.GetDuration("timeouts.file"),
		Network:   v.GetDuration("timeouts.network"),
		Large:     v.GetDuration("timeouts.large"),
		BinaryCap: v.GetDuration("timeouts.binary_cap"),
		Container: v.GetDuration("timeouts.container"),
		Overall:   v.GetDuration("timeouts.overall"),
	}
	cfg.Memory = MemoryConfig{
		Policy:    strings.ToLower(v.GetString("memory.policy")),
		Interval:  v.GetDuration("memory.interval"),
		Percent:   v.GetFloat64("memory.percent"),
		Ceiling:   v.GetString("memory.ceiling"),
		ResultCap: v.GetInt("memory.result_cap"),
	}
	cfg.Watchdog = WatchdogConfig{
		Interval:  v.GetDuration("watchdog.interval"),
		StallTime: v.GetDuration("watchdog.stall_time"),
	}
	if v.IsSet("extensions") {
		cfg.Extensions = make(map[string][]string)
		for level := range v.GetStringMap("extensions") {
			cfg.Extensions[strings.ToLower(level)] = v.GetStringSlice("extensions." + level)
		}
	}

	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// listValue reads a list given either as a YAML sequence or as a
// comma-separated string from the environment.
func listValue(v *viper.Viper, key string) []string {
	var raw []string
	if s, ok := v.Get(key).(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = v.GetStringSlice(key)
	}

	var out []string
	for _, p := range raw {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseSize accepts "0", byte counts and humanized sizes like "50MiB".
func parseSize(field, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid size %q", field, s)
	}
	return int64(n), nil
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Workers < 0 {
		return errors.New("workers count must be positive")
	}
	if c.Workers > MaxWorkers {
		return fmt.Errorf("workers count cannot exceed %d", MaxWorkers)
	}

	if c.MaxDepth < 0 {
		return errors.New("max depth must be 0 (unlimited) or positive")
	}

	if !validOutputFormats[c.Output] {
		return errors.New("invalid output format: must be one of [list json yaml]")
	}

	if _, err := content.ParseLevel(c.Level); err != nil {
		return err
	}
	for level := range c.Extensions {
		if _, err := content.ParseLevel(level); err != nil {
			return fmt.Errorf("extensions: %w", err)
		}
	}

	if c.ChunkSize != 0 && c.ChunkSize < MinChunkSize {
		return fmt.Errorf("chunk size must be at least %d bytes", MinChunkSize)
	}

	if c.RateLimit < 0 {
		return errors.New("rate limit must be non-negative")
	}
	if c.MaxFiles < 0 {
		return errors.New("max files must be non-negative")
	}

	switch c.Memory.Policy {
	case governor.Automatic.String(), governor.Manual.String():
	default:
		return fmt.Errorf("memory policy must be automatic or manual, got %q", c.Memory.Policy)
	}

	if c.Timeouts.File <= 0 {
		return errors.New("file timeout must be positive")
	}
	if c.Timeouts.Overall < 0 {
		return errors.New("overall timeout must be non-negative")
	}

	_, err := c.Settings()
	return err
}

// Settings converts the configuration into the settings a search session
// loads when it starts.
func (c Config) Settings() (search.Settings, error) {
	s := search.DefaultSettings()

	sizes := []struct {
		field string
		value string
		dst   *int64
	}{
		{"thresholds.medium", c.Thresholds.Medium, &s.Thresholds.Medium},
		{"thresholds.large", c.Thresholds.Large, &s.Thresholds.Large},
		{"thresholds.huge", c.Thresholds.Huge, &s.Thresholds.Huge},
		{"thresholds.gigantic", c.Thresholds.Gigantic, &s.Thresholds.Gigantic},
		{"gigantic.binary_cutoff", c.Gigantic.BinaryCutoff, &s.Gigantic.BinaryCutoff},
		{"gigantic.archive_cutoff", c.Gigantic.ArchiveCutoff, &s.Gigantic.ArchiveCutoff},
		{"gigantic.media_cutoff", c.Gigantic.MediaCutoff, &s.Gigantic.MediaCutoff},
		{"max_content_size", c.MaxContentSize, &s.MaxContentSize},
	}
	for _, sz := range sizes {
		if strings.TrimSpace(sz.value) == "" {
			continue
		}
		n, err := parseSize(sz.field, sz.value)
		if err != nil {
			return search.Settings{}, err
		}
		*sz.dst = n
	}

	for name, exts := range c.Extensions {
		level, err := content.ParseLevel(name)
		if err != nil {
			return search.Settings{}, fmt.Errorf("extensions: %w", err)
		}
		s.Extensions[level] = append([]string(nil), exts...)
	}

	s.Exclusions = append([]string(nil), c.Exclusions...)
	s.NetworkMounts = append([]string(nil), c.NetworkMounts...)
	if c.ChunkSize > 0 {
		s.ChunkSize = c.ChunkSize
	}
	s.RateLimit = c.RateLimit

	s.Timeouts = search.TimeoutPolicy{
		Base:      c.Timeouts.File,
		Network:   c.Timeouts.Network,
		Large:     c.Timeouts.Large,
		BinaryCap: c.Timeouts.BinaryCap,
		Container: c.Timeouts.Container,
	}

	s.Memory.Interval = c.Memory.Interval
	s.Memory.ResultCap = c.Memory.ResultCap
	if c.Memory.Policy == governor.Manual.String() {
		s.Memory.Policy = governor.Manual
		s.Memory.Percent = c.Memory.Percent
	}
	ceiling, err := parseSize("memory.ceiling", c.Memory.Ceiling)
	if err != nil {
		return search.Settings{}, err
	}
	s.Memory.Ceiling = uint64(ceiling)

	if c.Watchdog.Interval > 0 {
		s.WatchdogInterval = c.Watchdog.Interval
	}
	if c.Watchdog.StallTime > 0 {
		s.StallTime = c.Watchdog.StallTime
	}

	if err := s.Validate(); err != nil {
		return search.Settings{}, err
	}
	return s, nil
}

// SearchLevel returns the parsed default level.
func (c Config) SearchLevel() content.Level {
	level, _ := content.ParseLevel(c.Level)
	return level
}

// String returns a string representation of the configuration
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{File: %s, Workers: %d, MaxDepth: %d, Level: %s, Output: %s, "+
			"RateLimit: %d, ChunkSize: %d, MaxFiles: %d, UseIndex: %v, "+
			"NoProgress: %v, NoColor: %v, Verbose: %d, Exclusions: %v, "+
			"ExcludePatterns: %v, Timeouts: %+v, Memory: %+v, OutputFile: %s, SkipLog: %s}",
		c.File, c.Workers, c.MaxDepth, c.Level, c.Output,
		c.RateLimit, c.ChunkSize, c.MaxFiles, c.UseIndex,
		c.NoProgress, c.NoColor, c.Verbose, c.Exclusions,
		c.ExcludePatterns, c.Timeouts, c.Memory, c.OutputFile, c.SkipLog,
	)
}
