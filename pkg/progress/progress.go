package progress

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sonemaro/sifter/pkg/logger"
	"golang.org/x/term"
)

type progress struct {
	config Config
	log    logger.Logger
	writer io.Writer

	status    Status
	startTime time.Time
	message   string
	isActive  bool

	renderer renderer
	width    int

	mu       sync.Mutex
	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a progress display writing to stdout.
func New(config Config, log logger.Logger) Progress {
	return newProgress(config, os.Stdout, log)
}

// NewWithWriter creates a progress display writing to w.
func NewWithWriter(config Config, w io.Writer, log logger.Logger) Progress {
	return newProgress(config, w, log)
}

func newProgress(config Config, w io.Writer, log logger.Logger) *progress {
	if config.RefreshRate == 0 {
		config.RefreshRate = 100 * time.Millisecond
	}

	p := &progress{
		config: config,
		log:    log,
		writer: w,
	}

	if p.config.Width == 0 {
		p.width = p.getTerminalWidth()
	} else {
		p.width = p.config.Width
	}
	p.renderer = p.createRenderer()

	p.log.WithFields(logger.Fields{
		"style":     p.config.Style,
		"width":     p.width,
		"showStats": p.config.ShowStats,
		"noColor":   p.config.NoColor,
		"refresh":   p.config.RefreshRate,
	}).Debug("Created new progress instance")

	return p
}

func (p *progress) Start(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isActive {
		return
	}
	p.log.WithFields(logger.Fields{
		"message": message,
	}).Debug("Starting progress")

	p.message = message
	p.startTime = time.Now()
	p.isActive = true
	p.stopChan = make(chan struct{})
	p.doneChan = make(chan struct{})

	go p.renderLoop(p.stopChan, p.doneChan)
}

func (p *progress) Update(status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.WithFields(logger.Fields{
		"files":   status.FilesChecked,
		"matches": status.Matches,
		"item":    status.CurrentItem,
	}).Trace("Updating progress")

	if status.Notice != "" && status.Notice != p.status.Notice {
		p.renderer.clear()
		p.log.WithFields(logger.Fields{"notice": status.Notice}).Debug("Progress notice")
		io.WriteString(p.writer, status.Notice+"\n")
	}
	p.status = status
}

func (p *progress) Complete(message string) {
	p.end(message, false)
}

func (p *progress) Error(message string) {
	p.end(message, true)
}

func (p *progress) end(message string, failed bool) {
	p.halt()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.WithFields(logger.Fields{
		"message": message,
		"failed":  failed,
	}).Debug("Completing progress")

	if p.config.HideAfterComplete {
		p.renderer.clear()
		return
	}
	p.renderer.finish(message, failed)
}

func (p *progress) Stop() {
	p.log.Debug("Stopping progress")
	p.halt()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.renderer.clear()
}

// halt ends the render loop without holding the lock while it drains.
func (p *progress) halt() {
	p.mu.Lock()
	if !p.isActive {
		p.mu.Unlock()
		return
	}
	p.isActive = false
	stop, done := p.stopChan, p.doneChan
	p.mu.Unlock()

	close(stop)
	<-done
}

func (p *progress) EnableStats(enable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.WithFields(logger.Fields{
		"enabled": enable,
	}).Debug("Toggling statistics display")

	p.config.ShowStats = enable
	p.renderer = p.createRenderer()
}

func (p *progress) IsSupportedTerminal() bool {
	if f, ok := p.writer.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

func (p *progress) renderLoop(stop <-chan struct{}, done chan<- struct{}) {
	ticker := time.NewTicker(p.config.RefreshRate)
	defer ticker.Stop()
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			p.renderer.render(p.status, p.message, p.calculateStats())
			p.mu.Unlock()
		}
	}
}

func (p *progress) getTerminalWidth() int {
	if f, ok := p.writer.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			return w
		}
	}
	return 80
}

func (p *progress) calculateStats() Statistics {
	elapsed := time.Since(p.startTime)
	stats := Statistics{
		StartTime:   p.startTime,
		ElapsedTime: elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		stats.FilesPerSecond = float64(p.status.FilesChecked) / secs
	}
	return stats
}

func (p *progress) createRenderer() renderer {
	switch p.config.Style {
	case StyleNone:
		return noneRenderer{}
	case StyleSpinner:
		return newSpinnerRenderer(p.writer, p.width/2, p.config.NoColor, p.config.ShowStats)
	default:
		return &simpleRenderer{
			w:         p.writer,
			width:     p.width,
			showStats: p.config.ShowStats,
			tty:       p.IsSupportedTerminal(),
			ok:        newColor(p.config.NoColor, color.FgGreen),
			bad:       newColor(p.config.NoColor, color.FgRed),
		}
	}
}
