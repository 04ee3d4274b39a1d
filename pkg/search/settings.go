package search

import (
	"fmt"
	"time"

	"github.com/sonemaro/sifter/pkg/content"
	"github.com/sonemaro/sifter/pkg/governor"
	"github.com/sonemaro/sifter/pkg/pathclass"
	"github.com/sonemaro/sifter/pkg/watchdog"
)

// TimeoutPolicy derives the deadline of one file task.
type TimeoutPolicy struct {
	Base      time.Duration
	Network   time.Duration
	Large     time.Duration
	BinaryCap time.Duration
	Container time.Duration
}

func DefaultTimeoutPolicy() TimeoutPolicy {
	return TimeoutPolicy{
		Base:      30 * time.Second,
		Network:   30 * time.Second,
		Large:     60 * time.Second,
		BinaryCap: 10 * time.Second,
		Container: 120 * time.Second,
	}
}

// For returns the deadline for a file with ext in category, on a network
// path or not.
func (p TimeoutPolicy) For(ext string, category pathclass.SizeCategory, network bool) time.Duration {
	d := p.Base
	if network {
		d += p.Network
	}
	if category >= pathclass.Large {
		d += p.Large
	}
	if content.ClassOf(ext) == content.ClassBinary && p.BinaryCap > 0 && d > p.BinaryCap {
		d = p.BinaryCap
	}
	if content.IsContainer(ext) {
		d += p.Container
	}
	return d
}

// Settings is the persisted configuration a session loads at start.
type Settings struct {
	Thresholds pathclass.Thresholds
	Gigantic   content.GiganticPolicy
	Extensions map[content.Level][]string

	// Exclusions are added to every request's exclusions
	Exclusions    []string
	NetworkMounts []string

	ChunkSize int
	// MaxContentSize skips content analysis above it; 0 disables the check
	MaxContentSize int64

	Timeouts  TimeoutPolicy
	RateLimit int

	Memory governor.Config

	WatchdogInterval time.Duration
	StallTime        time.Duration

	BatchSampleInterval time.Duration
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() Settings {
	return Settings{
		Thresholds:          pathclass.DefaultThresholds(),
		Gigantic:            content.DefaultGiganticPolicy(),
		Extensions:          content.DefaultExtensionLists(),
		ChunkSize:           content.DefaultChunkSize,
		Timeouts:            DefaultTimeoutPolicy(),
		Memory:              governor.Config{Interval: governor.DefaultInterval, ResultCap: governor.DefaultResultCap},
		WatchdogInterval:    watchdog.DefaultInterval,
		StallTime:           watchdog.DefaultStallTime,
		BatchSampleInterval: 30 * time.Second,
	}
}

func (s Settings) Validate() error {
	if err := s.Thresholds.Validate(); err != nil {
		return err
	}
	if s.ChunkSize < 0 {
		return fmt.Errorf("chunk size must be non-negative")
	}
	if s.MaxContentSize < 0 {
		return fmt.Errorf("max content size must be non-negative")
	}
	if s.Timeouts.Base <= 0 {
		return fmt.Errorf("base file timeout must be positive")
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("rate limit must be non-negative")
	}
	if p := s.Memory.Percent; p < 0 || p > 1 {
		return fmt.Errorf("memory percent must be between 0 and 1")
	}
	return nil
}
