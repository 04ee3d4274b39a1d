package progress

import "time"

// Style represents the type of progress visualization
type Style string

const (
	// StyleSpinner shows an indeterminate spinner with running counts
	StyleSpinner Style = "spinner"

	// StyleSimple shows one line of text progress
	StyleSimple Style = "simple"

	// StyleNone disables progress output
	StyleNone Style = "none"
)

// Config holds the configuration for progress visualization
type Config struct {
	Style Style

	// Width is the maximum line width (0 = auto-detect)
	Width int

	// ShowStats adds the checking rate and elapsed time
	ShowStats bool

	NoColor bool

	// RefreshRate defines how often the display updates
	RefreshRate time.Duration

	// HideAfterComplete removes the progress line after completion
	HideAfterComplete bool
}

// Status is the search progress shown to the user.
type Status struct {
	FilesChecked int64
	DirsChecked  int64
	Matches      int

	// CurrentItem is the folder or file last reported
	CurrentItem string

	// Notice is a one-off message such as a recovery
	Notice string
}

// Statistics are derived from the status stream
type Statistics struct {
	StartTime   time.Time
	ElapsedTime time.Duration

	// FilesPerSecond is the average checking rate
	FilesPerSecond float64
}

// Progress defines the interface for progress visualization
type Progress interface {
	// Start begins progress visualization with initial message
	Start(message string)

	Update(status Status)

	// Complete marks the search as finished
	Complete(message string)

	// Error marks the search as failed
	Error(message string)

	Stop()

	EnableStats(enable bool)

	// IsSupportedTerminal checks if the writer is an interactive terminal
	IsSupportedTerminal() bool
}
