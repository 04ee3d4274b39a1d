/*
Package app provides the application container for sifter. It wires the
configuration, logger, search session, progress display and output
formatting together and handles graceful shutdown.

Usage:

	a, err := app.New(cfg)
	if err != nil {
	    return err
	}
	defer a.Shutdown()

	err = a.Search(req, &app.SearchOptions{Format: output.FormatList})
*/
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sonemaro/sifter/internal/config"
	"github.com/sonemaro/sifter/pkg/gate"
	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/output"
	"github.com/sonemaro/sifter/pkg/pathclass"
	"github.com/sonemaro/sifter/pkg/progress"
	"github.com/sonemaro/sifter/pkg/search"
	"github.com/sonemaro/sifter/pkg/skiplog"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

// ConfirmMode selects how gigantic files awaiting confirmation are answered.
type ConfirmMode string

const (
	ConfirmAsk ConfirmMode = "ask"
	ConfirmYes ConfirmMode = "yes"
	ConfirmNo  ConfirmMode = "no"
)

// SearchOptions defines how a search is reported
type SearchOptions struct {
	Format output.Format

	// OutputPath is the result file (empty for stdout)
	OutputPath string

	Confirm ConfirmMode
}

// App represents the main application container
type App struct {
	config *config.Config
	log    logger.Logger
	fs     afero.Fs

	session   *search.Session
	formatter output.Formatter
	progress  progress.Progress
	lastMatch atomic.Value

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	ctx         context.Context
	cancel      context.CancelFunc
	stopSignals func()
	done        chan struct{}
	shutdown    sync.Once
	mu          sync.RWMutex
}

// New creates a new application instance
func New(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		config: cfg,
		fs:     afero.NewOsFs(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initLogger(); err != nil {
		cancel()
		return nil, err
	}
	app.initComponents()
	app.setupSignalHandling()

	app.log.WithFields(logger.Fields{
		"workers": cfg.Workers,
		"level":   cfg.Level,
		"verbose": cfg.Verbose,
		"config":  cfg.File,
	}).Debug("Application initialized")

	return app, nil
}

// Search runs req to completion, or until interrupted, and writes the
// results. Partial results of an interrupted or timed out search are
// written too.
func (a *App) Search(req search.Request, opts *SearchOptions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithFields(logger.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Recovered from panic")
			err = fmt.Errorf("search aborted: %v", r)
		}
	}()

	a.log.WithFields(logger.Fields{
		"root":     req.Root,
		"keywords": req.Keywords,
		"content":  req.MatchContent,
		"level":    req.Level.String(),
		"format":   opts.Format,
	}).Info("Starting search")

	if err := a.validateOutputPath(opts.OutputPath); err != nil {
		return err
	}

	a.mu.Lock()
	a.formatter = output.NewFormatter(output.Config{
		Format:     opts.Format,
		WithStats:  true,
		WithColors: !a.config.NoColor && opts.OutputPath == "" && a.isTerminal(a.stdout),
	}, a.log)
	a.mu.Unlock()

	sessionOpts := search.Options{
		Fs:        a.fs,
		Logger:    a.log,
		Settings:  a.settings,
		Confirmer: a.confirmer(opts.Confirm),
		OnResult:  a.onResult,
		SkipLog:   skiplog.Discard,
	}

	if path := a.config.SkipLog; path != "" {
		l, err := skiplog.Open(path)
		if err != nil {
			return err
		}
		defer func() {
			a.log.WithFields(logger.Fields{
				"path":    path,
				"entries": l.Count(),
			}).Info("Skipped files recorded")
			l.Close()
		}()
		sessionOpts.SkipLog = l
	}

	if a.config.UseIndex {
		sessionOpts.Accelerator = &search.LocateAccelerator{
			Classifier: pathclass.Classifier{NetworkMounts: a.config.NetworkMounts},
		}
	}

	session := search.NewSession(sessionOpts)
	a.mu.Lock()
	a.session = session
	a.mu.Unlock()

	a.progress.Start("Searching")
	if err := session.Start(a.ctx, req); err != nil {
		a.progress.Error(fmt.Sprintf("Search failed: %v", err))
		return fmt.Errorf("search failed to start: %w", err)
	}

	status := a.watch(session)
	a.finishProgress(status)
	a.reportSkipped(status)

	formatted, err := a.currentFormatter().Format(session.Results())
	if err != nil {
		return fmt.Errorf("output formatting failed: %w", err)
	}
	if err := a.writeOutput(formatted, opts.OutputPath); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	a.log.WithFields(logger.Fields{
		"session":    status.ID,
		"state":      status.State,
		"files":      status.FilesChecked,
		"dirs":       status.DirsChecked,
		"matches":    status.Matches,
		"truncated":  status.Truncated,
		"recoveries": status.Recoveries,
		"duration":   status.Elapsed.String(),
		"outputTo":   opts.OutputPath,
	}).Info("Search operation completed")

	if status.State == search.StateError {
		return fmt.Errorf("search failed: %w", status.Err)
	}
	return nil
}

// watch feeds the progress display until the session leaves Running.
func (a *App) watch(s *search.Session) search.Status {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.Done():
			return s.Status()
		case <-ticker.C:
			st := s.Status()
			item, _ := a.lastMatch.Load().(string)
			a.progress.Update(progress.Status{
				FilesChecked: st.FilesChecked,
				DirsChecked:  st.DirsChecked,
				Matches:      st.Matches,
				CurrentItem:  item,
				Notice:       st.Notice,
			})
		}
	}
}

func (a *App) onResult(r search.Result) {
	a.lastMatch.Store(r.Path)
	a.log.WithFields(logger.Fields{
		"path":      r.Path,
		"matchedBy": r.MatchedBy,
	}).Debug("Match found")
}

func (a *App) finishProgress(st search.Status) {
	summary := fmt.Sprintf("%d matches, %d files checked in %s",
		st.Matches, st.FilesChecked, st.Elapsed.Round(time.Millisecond))

	switch st.State {
	case search.StateCompleted:
		msg := "Search completed: " + summary
		if st.Notice != "" {
			msg += " (" + st.Notice + ")"
		}
		a.progress.Complete(msg)
	case search.StateInterrupted:
		a.progress.Complete("Search interrupted: " + summary + "; results are partial")
	case search.StateTimedOut:
		a.progress.Complete("Search timed out: " + summary + " (" + st.Notice + ")")
	default:
		a.progress.Error(fmt.Sprintf("Search failed after %s: %v", summary, st.Err))
	}
}

func (a *App) reportSkipped(st search.Status) {
	for _, sk := range st.Skipped {
		a.log.WithFields(logger.Fields{
			"path":   sk.Path,
			"reason": sk.Reason,
		}).Warn("Folder skipped")
	}
	if st.Truncated > 0 {
		a.log.WithFields(logger.Fields{
			"dropped": st.Truncated,
		}).Warn("Results truncated under memory pressure")
	}
}

// settings loads the search settings from the current configuration; a
// reload takes effect at the next session start.
func (a *App) settings() (search.Settings, error) {
	a.mu.RLock()
	cfg := a.config
	a.mu.RUnlock()
	return cfg.Settings()
}

func (a *App) currentFormatter() output.Formatter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.formatter
}

func (a *App) confirmer(mode ConfirmMode) gate.Confirmer {
	switch mode {
	case ConfirmYes:
		return gate.AlwaysConfirm
	case ConfirmNo:
		return gate.AlwaysDecline
	}
	if !a.isTerminal(a.stdin) {
		a.log.Debug("Standard input is not a terminal, declining gigantic files")
		return gate.AlwaysDecline
	}
	return newPromptConfirmer(a.stdin, a.stderr, a.progress.Stop, a.resumeProgress)
}

func (a *App) resumeProgress() {
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()
	if session != nil && session.Status().State == search.StateRunning {
		a.progress.Start("Searching")
	}
}

// Shutdown performs a graceful shutdown of the application
func (a *App) Shutdown() error {
	a.shutdown.Do(func() {
		a.log.Debug("Initiating shutdown")

		a.mu.RLock()
		session := a.session
		a.mu.RUnlock()
		if session != nil {
			_ = session.Stop()
			session.Wait(context.Background())
		}

		a.cancel()
		a.progress.Stop()
		if a.stopSignals != nil {
			a.stopSignals()
		}

		close(a.done)
		a.log.Debug("Shutdown complete")
	})
	return nil
}

func (a *App) initLogger() error {
	log, err := logger.NewLogger(logger.Config{
		Verbosity: a.config.Verbose,
		Output:    a.stderr,
		File:      a.config.LogFile,
		Format:    logger.Format(a.config.LogFormat),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.log = log

	a.log.WithFields(logger.Fields{
		"verbosity": a.config.Verbose,
	}).Debug("Logger initialized")
	return nil
}

func (a *App) initComponents() {
	a.log.Debug("Initializing application components")

	style := progress.StyleSpinner
	if a.config.NoProgress || !a.isTerminal(a.stderr) {
		style = progress.StyleNone
	}

	a.progress = progress.NewWithWriter(progress.Config{
		Style:       style,
		ShowStats:   a.config.Verbose > 0,
		NoColor:     a.config.NoColor,
		RefreshRate: 100 * time.Millisecond,
	}, a.stderr, a.log)

	a.formatter = output.NewFormatter(output.Config{
		Format:     output.Format(a.config.Output),
		WithStats:  true,
		WithColors: !a.config.NoColor,
	}, a.log)

	a.log.Debug("Components initialized successfully")
}

// writeOutput writes the formatted output to the specified destination
func (a *App) writeOutput(content string, outputPath string) error {
	a.log.WithFields(logger.Fields{
		"path": outputPath,
	}).Debug("Writing output")

	if outputPath == "" {
		_, err := fmt.Fprintln(a.stdout, content)
		if err != nil {
			a.log.WithFields(logger.Fields{
				"error": err,
			}).Error("Failed to write to stdout")
		}
		return err
	}

	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		a.log.WithFields(logger.Fields{
			"error": err,
			"path":  outputPath,
		}).Error("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	a.log.WithFields(logger.Fields{
		"path": outputPath,
	}).Info("Output written successfully")
	return nil
}

// validateOutputPath checks that the output file can be created
func (a *App) validateOutputPath(path string) error {
	if path == "" {
		return nil
	}
	a.log.WithFields(logger.Fields{
		"path": path,
	}).Debug("Validating output path")

	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output directory does not exist: %s", dir)
		}
		return fmt.Errorf("failed to access output directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("output path parent is not a directory: %s", dir)
	}

	if _, err := os.Stat(path); err == nil {
		file, err := os.OpenFile(path, os.O_WRONLY, 0666)
		if err != nil {
			a.log.WithFields(logger.Fields{
				"path":  path,
				"error": err,
			}).Error("Cannot write to existing output file")
			return fmt.Errorf("cannot write to output file: %w", err)
		}
		file.Close()
	}
	return nil
}

func (a *App) isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SkippedOptions selects which skip log entries are shown and how
type SkippedOptions struct {
	Format     output.Format
	OutputPath string

	// Categories keeps only entries of these categories when not empty
	Categories []string
}

// ShowSkipped formats the skip log at path.
func (a *App) ShowSkipped(path string, opts *SkippedOptions) error {
	a.log.WithFields(logger.Fields{
		"path":       path,
		"categories": opts.Categories,
	}).Debug("Reading skip log")

	f, err := a.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open skip log: %w", err)
	}
	defer f.Close()

	entries, err := skiplog.Read(f)
	if err != nil {
		return fmt.Errorf("read skip log %s: %w", path, err)
	}

	if len(opts.Categories) > 0 {
		keep := make(map[string]bool, len(opts.Categories))
		for _, c := range opts.Categories {
			keep[c] = true
		}
		filtered := entries[:0]
		for _, e := range entries {
			if keep[e.Category] {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	formatter := output.NewFormatter(output.Config{
		Format:     opts.Format,
		WithStats:  true,
		WithColors: !a.config.NoColor,
	}, a.log)
	text, err := formatter.FormatSkipped(entries)
	if err != nil {
		return fmt.Errorf("output formatting failed: %w", err)
	}
	return a.writeOutput(text, opts.OutputPath)
}
