package search

import (
	"context"
	"fmt"
	"time"

	"github.com/djherbis/times"
	"github.com/sonemaro/sifter/pkg/content"
	"github.com/sonemaro/sifter/pkg/extract"
	"github.com/sonemaro/sifter/pkg/gate"
	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/pathclass"
	"github.com/sonemaro/sifter/pkg/pathset"
	"github.com/sonemaro/sifter/pkg/scheduler"
	"github.com/sonemaro/sifter/pkg/skiplog"
	"github.com/spf13/afero"
)

// processor decides the outcome of one file.
type processor struct {
	fs         afero.Fs
	req        *Request
	settings   *Settings
	kw         *content.Keywords
	allow      content.AllowList
	extractors *extract.Registry
	processed  *pathset.Set
	gate       *gate.Gate
	skips      skiplog.Recorder
	log        logger.Logger
	osBacked   bool
}

// process returns the match for f, or nil. A retry is the single follow-up
// of an approved gigantic file and bypasses the processed check.
func (p *processor) process(ctx context.Context, f scheduler.File, retry bool) (*Result, error) {
	if !p.processed.Add(pathclass.Canonical(f.Path)) && !retry {
		return nil, nil
	}

	size := f.Info.Size()
	if !p.req.inWindow(size, f.Info.ModTime()) {
		return nil, nil
	}

	if p.req.MatchNames && p.kw.MatchName(f.Name) {
		return p.result(f, MatchedByName, nil, false), nil
	}
	if !p.req.MatchContent {
		return nil, nil
	}

	ext := content.Ext(f.Name)
	if reason, category, ok := p.eligible(f, ext); !ok {
		p.skip(f, category, reason)
		return nil, nil
	}

	category := p.settings.Thresholds.Categorize(size)
	if category == pathclass.Gigantic {
		return p.gigantic(ctx, f, ext, retry)
	}

	if ex, ok := p.extractors.For(ext); ok {
		doc, err := ex.Extract(ctx, p.fs, f.Path)
		if err == nil {
			return p.matchDocument(f, doc), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.WithFields(logger.Fields{
			"path":  f.Path,
			"phase": "extract",
			"error": err.Error(),
		}).Debug("No searchable text")

		switch content.ClassOf(ext) {
		case content.ClassText, content.ClassLog:
		default:
			return nil, nil
		}
	}

	m, err := p.scan(ctx, f.Path, category)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", f.Path, err)
	}
	if !m.Matched() {
		return nil, nil
	}
	return p.result(f, MatchedByContent, m.Found, false), nil
}

// eligible applies the content rules: system files, the level allow-list
// and the content size cut-off.
func (p *processor) eligible(f scheduler.File, ext string) (string, string, bool) {
	if content.IsSystemFile(f.Name) {
		return "operating system file", skiplog.CategorySystem, false
	}
	if limit := p.settings.MaxContentSize; limit > 0 && f.Info.Size() > limit {
		return "larger than " + pathclass.FormatSize(limit), skiplog.CategorySize, false
	}

	if ext == "" && p.req.Level == content.LevelDeep {
		if content.SniffText(p.fs, f.Path) {
			return "", "", true
		}
		return "no extension and not text", skiplog.CategoryExtension, false
	}
	if !p.allow.Allows(p.req.Level, ext) {
		return fmt.Sprintf("extension %q not searched at level %s", ext, p.req.Level), skiplog.CategoryExtension, false
	}
	return "", "", true
}

func (p *processor) gigantic(ctx context.Context, f scheduler.File, ext string, retry bool) (*Result, error) {
	size := f.Info.Size()
	plan := p.settings.Gigantic.Plan(ext, size)

	switch plan.Action {
	case content.ActionSkip:
		p.skip(f, skiplog.CategoryGigantic, plan.Reason)
		return nil, nil

	case content.ActionConfirm:
		if !retry {
			switch p.gate.Request(gate.Item{Path: f.Path, Size: size}) {
			case gate.Pending:
				return nil, nil
			case gate.Declined:
				p.skip(f, skiplog.CategoryDeclined, "analysis of "+pathclass.FormatSize(size)+" file declined")
				return nil, nil
			}
		}
	}

	r, size, closeFn, err := content.OpenReaderAt(p.fs, f.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer closeFn()

	p.log.WithFields(logger.Fields{
		"path": f.Path,
		"size": pathclass.FormatSize(size),
		"head": pathclass.FormatSize(plan.Profile.Head),
		"tail": pathclass.FormatSize(plan.Profile.Tail),
	}).Debug("Partial scan")

	m, err := content.ScanPartial(ctx, r, size, plan.Profile, p.kw)
	if err != nil {
		return nil, fmt.Errorf("partial scan %s: %w", f.Path, err)
	}
	if !m.Matched() {
		return nil, nil
	}
	return p.result(f, MatchedByContent, m.Found, false), nil
}

func (p *processor) scan(ctx context.Context, path string, category pathclass.SizeCategory) (content.Match, error) {
	file, err := p.fs.Open(path)
	if err != nil {
		return content.Match{}, err
	}
	defer file.Close()

	sc := content.NewChunkScanner(
		content.ChunkSizeFor(category, p.settings.ChunkSize),
		content.OverlapFor(p.kw),
	)
	return sc.Scan(ctx, file, p.kw)
}

// matchDocument tests top-level sections first; a match found only in
// nested sections is reported as coming from inside the container.
func (p *processor) matchDocument(f scheduler.File, doc extract.Document) *Result {
	top := content.NewTracker(p.kw)
	nested := content.NewTracker(p.kw)

	for _, s := range doc.Sections {
		if s.Nested {
			nested.Feed(s.Text)
		} else {
			top.Feed(s.Text)
		}
	}

	if m := top.Result(); m.Matched() {
		return p.result(f, MatchedByContent, m.Found, false)
	}
	if m := nested.Result(); m.Matched() {
		return p.result(f, MatchedByContent, m.Found, true)
	}
	return nil
}

func (p *processor) result(f scheduler.File, by MatchedBy, found []string, nested bool) *Result {
	return &Result{
		Kind:                KindFile,
		Name:                f.Name,
		Size:                f.Info.Size(),
		SizeFormatted:       pathclass.FormatSize(f.Info.Size()),
		ModifiedAt:          f.Info.ModTime(),
		CreatedAt:           p.created(f),
		Path:                f.Path,
		FromNestedContainer: nested,
		MatchedBy:           by,
		Keywords:            found,
	}
}

// created returns the birth time when the host filesystem records one, the
// change time otherwise, and the modification time for virtual filesystems.
func (p *processor) created(f scheduler.File) time.Time {
	if !p.osBacked {
		return f.Info.ModTime()
	}
	ts, err := times.Stat(f.Path)
	if err != nil {
		return f.Info.ModTime()
	}
	if ts.HasBirthTime() {
		return ts.BirthTime()
	}
	if ts.HasChangeTime() {
		return ts.ChangeTime()
	}
	return f.Info.ModTime()
}

func (p *processor) skip(f scheduler.File, category, reason string) {
	if err := p.skips.Record(skiplog.Entry{
		Category: category,
		Name:     f.Name,
		Path:     f.Path,
		Reason:   reason,
	}); err != nil {
		p.log.WithFields(logger.Fields{
			"path":  f.Path,
			"phase": "skiplog",
			"error": err.Error(),
		}).Warn("Failed to record skipped file")
	}
}

func folderResult(dir scheduler.File) Result {
	return Result{
		Kind:       KindDirectory,
		Name:       dir.Name,
		ModifiedAt: dir.Info.ModTime(),
		Path:       dir.Path,
		MatchedBy:  MatchedByFolder,
	}
}
