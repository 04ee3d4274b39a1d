package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sonemaro/sifter/pkg/pathclass"
)

// Accelerator answers a name query from an index maintained by the
// operating system. Every path it returns is still checked by the session.
type Accelerator interface {
	// Available reports whether root is covered by the index
	Available(root string) bool
	Query(ctx context.Context, root string, keywords, extensions []string) ([]string, error)
}

// LocateAccelerator queries the plocate or mlocate database.
type LocateAccelerator struct {
	// Command is the locate binary; empty picks plocate, then locate, from PATH
	Command string

	// Indexed lists the indexed prefixes; empty means the whole host except
	// network mounts
	Indexed []string

	Classifier pathclass.Classifier
}

func (l *LocateAccelerator) command() string {
	if l.Command != "" {
		return l.Command
	}
	for _, name := range []string{"plocate", "locate"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func (l *LocateAccelerator) Available(root string) bool {
	if l.command() == "" || l.Classifier.IsNetworkPath(root) {
		return false
	}
	if len(l.Indexed) == 0 {
		return true
	}
	root = pathclass.Normalize(root)
	for _, prefix := range l.Indexed {
		if pathclass.HasPathPrefix(root, pathclass.Normalize(prefix)) {
			return true
		}
	}
	return false
}

// Query returns the indexed paths under root whose name contains any
// keyword and, when extensions is not empty, ends in one of them.
func (l *LocateAccelerator) Query(ctx context.Context, root string, keywords, extensions []string) ([]string, error) {
	cmdName := l.command()
	if cmdName == "" {
		return nil, fmt.Errorf("no locate command found")
	}

	args := append([]string{"-i", "-0", "-b"}, keywords...)
	cmd := exec.CommandContext(ctx, cmdName, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		// locate exits 1 when nothing matched
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && stderr.Len() == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w: %s", cmdName, err, strings.TrimSpace(stderr.String()))
	}

	root = pathclass.Normalize(root)
	var paths []string
	for _, p := range bytes.Split(out, []byte{0}) {
		if len(p) == 0 {
			continue
		}
		path := string(p)
		if !pathclass.HasPathPrefix(path, root) || !hasExtension(path, extensions) {
			continue
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	lower := strings.ToLower(path)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, "."+strings.TrimPrefix(strings.ToLower(ext), ".")) {
			return true
		}
	}
	return false
}
