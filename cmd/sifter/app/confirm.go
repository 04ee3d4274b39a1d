package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sonemaro/sifter/pkg/gate"
	"github.com/sonemaro/sifter/pkg/pathclass"
)

// promptConfirmer asks on the terminal before a gigantic file is analyzed.
// Prompts are serialized; an unanswered prompt is declined when the search
// ends.
type promptConfirmer struct {
	in     io.Reader
	out    io.Writer
	before func()
	after  func()

	mu    sync.Mutex
	once  sync.Once
	lines chan string
}

func newPromptConfirmer(in io.Reader, out io.Writer, before, after func()) *promptConfirmer {
	return &promptConfirmer{
		in:     in,
		out:    out,
		before: before,
		after:  after,
		lines:  make(chan string),
	}
}

func (p *promptConfirmer) Confirm(ctx context.Context, it gate.Item) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.before != nil {
		p.before()
	}
	if p.after != nil {
		defer p.after()
	}

	fmt.Fprintf(p.out, "\n%s is %s; analyzing it may take a long time. Analyze it? [y/N]: ",
		it.Path, pathclass.FormatSize(it.Size))

	p.once.Do(func() { go p.read() })

	select {
	case line, ok := <-p.lines:
		if !ok {
			fmt.Fprintln(p.out)
			return false
		}
		return isYes(line)
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false
	}
}

func (p *promptConfirmer) read() {
	defer close(p.lines)
	sc := bufio.NewScanner(p.in)
	for sc.Scan() {
		p.lines <- sc.Text()
	}
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
