package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

type renderer interface {
	render(Status, string, Statistics)
	finish(message string, failed bool)
	clear()
}

// spinnerRenderer drives an indeterminate progressbar; the search never
// knows how many files are left.
type spinnerRenderer struct {
	w         io.Writer
	bar       *progressbar.ProgressBar
	showStats bool
	ok        *color.Color
	bad       *color.Color
}

func newSpinnerRenderer(w io.Writer, width int, noColor, showStats bool) *spinnerRenderer {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Searching"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(width),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionEnableColorCodes(!noColor),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &spinnerRenderer{
		w:         w,
		bar:       bar,
		showStats: showStats,
		ok:        newColor(noColor, color.FgGreen),
		bad:       newColor(noColor, color.FgRed),
	}
}

func (r *spinnerRenderer) render(status Status, message string, stats Statistics) {
	desc := message
	if status.CurrentItem != "" {
		desc += " " + truncateLeft(status.CurrentItem, 40)
	}
	desc += fmt.Sprintf(" | %d matches", status.Matches)
	if r.showStats {
		desc += fmt.Sprintf(" | %.1f files/s | %s", stats.FilesPerSecond, formatDuration(stats.ElapsedTime))
	}
	r.bar.Describe(desc)
	_ = r.bar.Set64(status.FilesChecked)
}

func (r *spinnerRenderer) finish(message string, failed bool) {
	_ = r.bar.Clear()
	c := r.ok
	if failed {
		c = r.bad
	}
	fmt.Fprintln(r.w, c.Sprint(message))
}

func (r *spinnerRenderer) clear() { _ = r.bar.Clear() }

type simpleRenderer struct {
	w         io.Writer
	width     int
	showStats bool
	tty       bool
	ok        *color.Color
	bad       *color.Color
}

func (r *simpleRenderer) render(status Status, message string, stats Statistics) {
	line := fmt.Sprintf("%s %d files, %d folders checked, %d matches",
		message, status.FilesChecked, status.DirsChecked, status.Matches)
	if r.showStats {
		line += fmt.Sprintf(" (%.1f files/s, %s)", stats.FilesPerSecond, formatDuration(stats.ElapsedTime))
	}
	if r.width > 0 && len(line) > r.width {
		line = line[:r.width]
	}
	r.clear()
	fmt.Fprint(r.w, line)
	if !r.tty {
		fmt.Fprintln(r.w)
	}
}

func (r *simpleRenderer) finish(message string, failed bool) {
	r.clear()
	c := r.ok
	if failed {
		c = r.bad
	}
	fmt.Fprintln(r.w, c.Sprint(message))
}

func (r *simpleRenderer) clear() {
	if r.tty {
		fmt.Fprint(r.w, "\r\033[K")
	}
}

type noneRenderer struct{}

func (noneRenderer) render(Status, string, Statistics) {}
func (noneRenderer) finish(string, bool)               {}
func (noneRenderer) clear()                            {}

func newColor(noColor bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if noColor {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm%ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func truncateLeft(s string, n int) string {
	if n <= 3 || len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
