package pathclass

import "fmt"

const (
	MB int64 = 1 << 20
	GB int64 = 1 << 30
)

// SizeCategory drives which content strategy applies to a file.
type SizeCategory int

const (
	Normal SizeCategory = iota
	Medium
	Large
	Huge
	Gigantic
)

func (c SizeCategory) String() string {
	switch c {
	case Normal:
		return "normal"
	case Medium:
		return "medium"
	case Large:
		return "large"
	case Huge:
		return "huge"
	case Gigantic:
		return "gigantic"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Thresholds are the lower bounds (exclusive) of each category above Normal.
type Thresholds struct {
	Medium   int64
	Large    int64
	Huge     int64
	Gigantic int64
}

// DefaultThresholds returns 10MB/50MB/500MB/2GB.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Medium:   10 * MB,
		Large:    50 * MB,
		Huge:     500 * MB,
		Gigantic: 2 * GB,
	}
}

// Categorize evaluates the thresholds top-down, Gigantic first.
func (t Thresholds) Categorize(size int64) SizeCategory {
	switch {
	case size > t.Gigantic:
		return Gigantic
	case size > t.Huge:
		return Huge
	case size > t.Large:
		return Large
	case size > t.Medium:
		return Medium
	default:
		return Normal
	}
}

// Validate checks that the thresholds are positive and strictly increasing.
func (t Thresholds) Validate() error {
	if t.Medium <= 0 {
		return fmt.Errorf("medium threshold must be positive")
	}
	if t.Large <= t.Medium || t.Huge <= t.Large || t.Gigantic <= t.Huge {
		return fmt.Errorf("size thresholds must be strictly increasing: %d/%d/%d/%d",
			t.Medium, t.Large, t.Huge, t.Gigantic)
	}
	return nil
}
