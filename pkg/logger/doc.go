/*
Package logger provides structured logging for sifter.
It wraps uber-go/zap behind a small interface with verbosity levels
and structured fields.

Basic Usage:

	log, err := logger.NewLogger(logger.Config{
	    Verbosity: 0,  // Default level (INFO)
	})

	log.Info("Search started")
	log.Debug("Expanding block") // Only shown with verbosity >= 1
	log.Trace("Chunk scanned")   // Only shown with verbosity >= 2

Verbosity Levels:

	0: Info, Warn, Error (default)
	1: Debug + Level 0
	2: Trace + Level 1

Structured Logging:

	log.WithFields(logger.Fields{
	    "component": "dispatcher",
	    "path":      "/home/ana/notes.txt",
	    "phase":     "extract",
	}).Warn("Task timed out")

Sinks:

Output and File may be combined; the file is opened in append mode.
NewNop returns a logger that discards everything, which library callers
and tests use when they do not care about log output.

Thread Safety:

The logger is safe for concurrent use by multiple goroutines.
*/
package logger
