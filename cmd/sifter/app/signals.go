/*
Package app signal handling stops a running search gracefully on the first
SIGINT or SIGTERM and exits on the second. SIGHUP reloads the configuration
for the next search.
*/
package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sonemaro/sifter/internal/config"
	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/search"
)

// signalState tracks the state of signal handling
type signalState struct {
	shutdownInitiated atomic.Bool
}

// exit is replaced in tests
var exit = os.Exit

// setupSignalHandling initializes signal handling for graceful shutdown
func (a *App) setupSignalHandling() {
	state := &signalState{}

	a.log.Debug("Initializing signal handlers")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	a.stopSignals = func() { signal.Stop(sigChan) }

	go a.handleSignals(sigChan, state)
}

// handleSignals processes incoming system signals
func (a *App) handleSignals(sigChan chan os.Signal, state *signalState) {
	for {
		select {
		case <-a.done:
			return
		case sig := <-sigChan:
			a.log.WithFields(logger.Fields{
				"signal": sig.String(),
			}).Debug("Received system signal")

			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				if !state.shutdownInitiated.CompareAndSwap(false, true) {
					a.handleForcedShutdown()
					return
				}
				a.handleGracefulShutdown()

			case syscall.SIGHUP:
				a.handleHangup()
			}
		}
	}
}

// handleGracefulShutdown stops the running search; its partial results are
// still written.
func (a *App) handleGracefulShutdown() {
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()

	if session == nil {
		a.log.Info("Interrupted before the search started")
		a.cancel()
		return
	}

	err := session.Stop()
	switch {
	case errors.Is(err, search.ErrNotRunning):
		a.log.Debug("Search already finished")
	case err != nil:
		a.log.WithFields(logger.Fields{
			"error": err,
		}).Error("Failed to stop search")
	default:
		a.log.Warn("Stopping search, interrupt again to exit immediately")
	}
}

// handleForcedShutdown performs an immediate shutdown
func (a *App) handleForcedShutdown() {
	a.log.Warn("Forced shutdown initiated")

	a.cancel()
	if a.progress != nil {
		a.progress.Stop()
	}
	exit(1)
}

// handleHangup handles SIGHUP signal
func (a *App) handleHangup() {
	a.log.Info("Received SIGHUP signal")

	if err := a.reloadConfiguration(); err != nil {
		a.log.WithFields(logger.Fields{
			"error": err,
		}).Error("Failed to reload configuration")
	}
}

// reloadConfiguration re-reads the configuration file and environment.
// Command line overrides of the display settings are kept.
func (a *App) reloadConfiguration() error {
	a.log.Debug("Reloading configuration")

	a.mu.Lock()
	defer a.mu.Unlock()

	newConfig, err := config.Load(a.config.File)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	newConfig.Verbose = a.config.Verbose
	newConfig.NoProgress = a.config.NoProgress
	newConfig.NoColor = a.config.NoColor
	newConfig.SkipLog = a.config.SkipLog
	newConfig.UseIndex = a.config.UseIndex

	a.config = &newConfig
	a.updateComponents()

	a.log.WithFields(logger.Fields{
		"config": newConfig.String(),
	}).Info("Configuration reloaded successfully")
	return nil
}

// updateComponents applies the display settings of a reloaded
// configuration. Callers hold a.mu.
func (a *App) updateComponents() {
	if a.progress != nil {
		a.progress.EnableStats(a.config.Verbose > 0)
		a.log.Debug("Progress display settings updated")
	}
}
