package search

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sonemaro/sifter/pkg/content"
	"github.com/sonemaro/sifter/pkg/extract"
	"github.com/sonemaro/sifter/pkg/gate"
	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/sonemaro/sifter/pkg/pathclass"
	"github.com/sonemaro/sifter/pkg/skiplog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements logger.Logger interface for testing
type mockLogger struct {
	mu   sync.Mutex
	logs []string
}

func (m *mockLogger) add(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, s)
}

func (m *mockLogger) Info(msg string)                               { m.add("INFO: " + msg) }
func (m *mockLogger) Debug(msg string)                              { m.add("DEBUG: " + msg) }
func (m *mockLogger) Error(msg string)                              { m.add("ERROR: " + msg) }
func (m *mockLogger) Warn(msg string)                               { m.add("WARN: " + msg) }
func (m *mockLogger) Trace(msg string)                              { m.add("TRACE: " + msg) }
func (m *mockLogger) WithFields(fields logger.Fields) logger.Logger { return m }

// trackingFs records every Open and can hold one back.
type trackingFs struct {
	afero.Fs

	mu     sync.Mutex
	opened []string
	hook   func(name string)
}

func (f *trackingFs) Open(name string) (afero.File, error) {
	f.mu.Lock()
	f.opened = append(f.opened, name)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(name)
	}
	return f.Fs.Open(name)
}

func (f *trackingFs) opens(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.opened {
		if strings.HasPrefix(o, prefix) {
			n++
		}
	}
	return n
}

func newTree(t *testing.T, files map[string]string) *trackingFs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, data := range files {
		if strings.HasSuffix(path, "/") {
			require.NoError(t, fs.MkdirAll(path, 0755))
			continue
		}
		require.NoError(t, afero.WriteFile(fs, path, []byte(data), 0644))
	}
	return &trackingFs{Fs: fs}
}

func withSettings(mod func(*Settings)) func() (Settings, error) {
	return func() (Settings, error) {
		s := DefaultSettings()
		if mod != nil {
			mod(&s)
		}
		return s, nil
	}
}

func runSearch(t *testing.T, opts Options, req Request) (*Session, Status) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = &mockLogger{}
	}
	s := NewSession(opts)
	require.NoError(t, s.Start(context.Background(), req))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st := s.Wait(ctx)
	require.True(t, st.State.Terminal(), "session still %s", st.State)
	return s, st
}

// resultPaths returns the sorted result paths.
func resultPaths(results []Result) []string {
	paths := make([]string, 0, len(results))
	for _, r := range results {
		paths = append(paths, r.Path)
	}
	sort.Strings(paths)
	return paths
}

func resultsByPath(results []Result) map[string]Result {
	m := make(map[string]Result, len(results))
	for _, r := range results {
		m[r.Path] = r
	}
	return m
}

func TestDepthLimitEndToEnd(t *testing.T) {
	fs := newTree(t, map[string]string{
		"/data/alpha.txt":           "",
		"/data/alpha-dir/inner.txt": "",
		"/data/A/alpha-a.txt":       "",
		"/data/B/deep/alpha.txt":    "",
		"/data/C/c.txt":             "",
	})

	s, st := runSearch(t, Options{Fs: fs}, Request{
		Root:         "/data",
		Keywords:     []string{"alpha"},
		MatchNames:   true,
		MatchFolders: true,
		DepthLimit:   1,
		Workers:      2,
	})

	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, []string{"/data/alpha-dir", "/data/alpha.txt"}, resultPaths(s.Results()))
	assert.Equal(t, int64(1), st.DirsChecked)
	assert.Equal(t, 1, fs.opens("/data"), "only the root is listed")
	assert.NotEmpty(t, st.ID)
}

func TestNameMatchSkipsContent(t *testing.T) {
	fs := newTree(t, map[string]string{
		"/data/beta.txt":  "nothing to see",
		"/data/other.txt": "mentions alpha",
	})

	s, _ := runSearch(t, Options{Fs: fs}, Request{
		Root:         "/data",
		Keywords:     []string{"alpha", "beta"},
		MatchNames:   true,
		MatchContent: true,
	})

	results := resultsByPath(s.Results())
	require.Len(t, results, 2)
	assert.Equal(t, MatchedByName, results["/data/beta.txt"].MatchedBy)
	assert.Equal(t, MatchedByContent, results["/data/other.txt"].MatchedBy)
	assert.Equal(t, []string{"alpha"}, results["/data/other.txt"].Keywords)
	assert.Zero(t, fs.opens("/data/beta.txt"), "content of a name match is never read")
	assert.Equal(t, 1, fs.opens("/data/other.txt"))
}

func TestChunkBoundaryEndToEnd(t *testing.T) {
	const chunk = 4 << 20
	data := bytes.Repeat([]byte("x"), 12<<20)
	copy(data[chunk-5:], "needle")

	fs := newTree(t, nil)
	require.NoError(t, afero.WriteFile(fs, "/data/big.txt", data, 0644))

	s, _ := runSearch(t, Options{Fs: fs, Settings: withSettings(func(s *Settings) { s.ChunkSize = chunk })}, Request{
		Root:         "/data",
		Keywords:     []string{"needle"},
		MatchContent: true,
	})

	results := s.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "/data/big.txt", results[0].Path)
	assert.Equal(t, "12 MiB", results[0].SizeFormatted)
}

func TestContentMatching(t *testing.T) {
	tests := []struct {
		name      string
		keywords  []string
		text      string
		wholeWord bool
		want      bool
	}{
		{name: "first of two keywords", keywords: []string{"alpha", "gamma"}, text: "only alpha is here", want: true},
		{name: "neither keyword", keywords: []string{"alpha", "gamma"}, text: "nothing here", want: false},
		{name: "whole word rejects prefix", keywords: []string{"log"}, text: "please login", wholeWord: true, want: false},
		{name: "whole word accepts word", keywords: []string{"log"}, text: "see the log file", wholeWord: true, want: true},
		{name: "substring mode", keywords: []string{"log"}, text: "please login", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newTree(t, map[string]string{"/data/notes.txt": tt.text})
			s, st := runSearch(t, Options{Fs: fs}, Request{
				Root:         "/data",
				Keywords:     tt.keywords,
				MatchContent: true,
				WholeWord:    tt.wholeWord,
			})
			assert.Equal(t, tt.want, len(s.Results()) == 1)
			assert.Equal(t, int64(1), st.FilesChecked)
		})
	}
}

type fakeAccelerator struct {
	available bool
	paths     []string
	err       error
	queried   atomic.Int32
}

func (f *fakeAccelerator) Available(string) bool { return f.available }

func (f *fakeAccelerator) Query(ctx context.Context, root string, keywords, extensions []string) ([]string, error) {
	f.queried.Add(1)
	return f.paths, f.err
}

func TestDedupAcrossIndexedPaths(t *testing.T) {
	fs := newTree(t, map[string]string{
		"/data/a-alpha.txt":     "",
		"/data/sub/x.txt":       "",
		"/data/alpha-dir/":      "",
		"/elsewhere/alpha.txt":  "",
		"/data/sub/deep/alpha1": "",
	})
	acc := &fakeAccelerator{available: true, paths: []string{
		"/data/a-alpha.txt",
		"/data/a-alpha.txt",
		"/data/sub/../a-alpha.txt",
		"/elsewhere/alpha.txt",
		"/data/alpha-dir",
		"/data/alpha-dir",
		"/data/sub/deep/alpha1",
		"/data/vanished-alpha.txt",
	}}

	s, st := runSearch(t, Options{Fs: fs, Accelerator: acc}, Request{
		Root:         "/data",
		Keywords:     []string{"alpha"},
		MatchNames:   true,
		MatchFolders: true,
		DepthLimit:   2,
	})

	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, []string{"/data/a-alpha.txt", "/data/alpha-dir"}, resultPaths(s.Results()))
	assert.Zero(t, st.DirsChecked, "the index replaces traversal")
	assert.Equal(t, int32(1), acc.queried.Load())
}

func TestAcceleratorFallsBackToTraversal(t *testing.T) {
	fs := newTree(t, map[string]string{"/data/alpha.txt": ""})

	tests := []struct {
		name string
		acc  *fakeAccelerator
		req  Request
	}{
		{name: "query fails", acc: &fakeAccelerator{available: true, err: errors.New("database missing")}},
		{name: "not indexed", acc: &fakeAccelerator{available: false}},
		{name: "content search", acc: &fakeAccelerator{available: true}, req: Request{MatchContent: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Root = "/data"
			req.Keywords = []string{"alpha"}
			req.MatchNames = true

			s, st := runSearch(t, Options{Fs: fs, Accelerator: tt.acc}, req)
			assert.Equal(t, []string{"/data/alpha.txt"}, resultPaths(s.Results()))
			assert.Equal(t, int64(1), st.DirsChecked)
		})
	}
}

func giganticSettings(s *Settings) {
	s.Thresholds = pathclass.Thresholds{Medium: 10, Large: 20, Huge: 30, Gigantic: 40}
}

func TestGiganticGating(t *testing.T) {
	body := strings.Repeat(".", 60) + " needle " + strings.Repeat(".", 60)

	tests := []struct {
		name    string
		approve bool
		want    []string
	}{
		{name: "declined", approve: false, want: []string{"/data/huge.log"}},
		{name: "confirmed", approve: true, want: []string{"/data/huge.dat", "/data/huge.log"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newTree(t, map[string]string{
				"/data/huge.dat": body,
				"/data/huge.log": body,
			})

			var asked atomic.Int32
			confirmer := gate.ConfirmFunc(func(ctx context.Context, it gate.Item) bool {
				asked.Add(1)
				assert.Equal(t, "/data/huge.dat", it.Path)
				return tt.approve
			})
			var skipped bytes.Buffer

			s, st := runSearch(t, Options{
				Fs:        fs,
				Confirmer: confirmer,
				SkipLog:   skiplog.New(&skipped),
				Settings:  withSettings(giganticSettings),
			}, Request{
				Root:         "/data",
				Keywords:     []string{"needle"},
				MatchContent: true,
				Level:        content.LevelDeep,
			})

			assert.Equal(t, StateCompleted, st.State)
			assert.Equal(t, tt.want, resultPaths(s.Results()))
			assert.Equal(t, int32(1), asked.Load(), "one confirmation per file")

			if tt.approve {
				assert.Equal(t, 1, fs.opens("/data/huge.dat"), "exactly one retry")
				assert.Equal(t, int64(3), st.FilesChecked)
			} else {
				assert.Zero(t, fs.opens("/data/huge.dat"), "no retry")
				assert.Contains(t, skipped.String(), "\tdeclined\thuge.dat\t")
				assert.Equal(t, int64(2), st.FilesChecked)
			}
			assert.Equal(t, 1, fs.opens("/data/huge.log"), "partial strategy needs no confirmation")
		})
	}
}

func TestGiganticSkippedOutright(t *testing.T) {
	fs := newTree(t, map[string]string{"/data/disk.iso": strings.Repeat("needle ", 20)})
	var skipped bytes.Buffer

	s, _ := runSearch(t, Options{
		Fs:      fs,
		SkipLog: skiplog.New(&skipped),
		Settings: withSettings(func(s *Settings) {
			giganticSettings(s)
			s.Gigantic.BinaryCutoff = 50
			s.Extensions[content.LevelDeep] = []string{content.Wildcard, "iso"}
		}),
	}, Request{
		Root:         "/data",
		Keywords:     []string{"needle"},
		MatchContent: true,
		Level:        content.LevelDeep,
	})

	assert.Empty(t, s.Results())
	assert.Contains(t, skipped.String(), "\tgigantic\tdisk.iso\t")
	assert.Zero(t, fs.opens("/data/disk.iso"))
}

func TestContentEligibility(t *testing.T) {
	fs := newTree(t, map[string]string{
		"/data/pagefile.sys": "needle",
		"/data/tool.exe":     "needle",
		"/data/README":       "a plain needle in text",
		"/data/large.txt":    strings.Repeat("needle ", 100),
		"/data/notes.txt":    "needle",
	})
	var skipped bytes.Buffer

	s, _ := runSearch(t, Options{
		Fs:       fs,
		SkipLog:  skiplog.New(&skipped),
		Settings: withSettings(func(s *Settings) { s.MaxContentSize = 100 }),
	}, Request{
		Root:         "/data",
		Keywords:     []string{"needle"},
		MatchContent: true,
		Level:        content.LevelDeep,
	})

	assert.Equal(t, []string{"/data/README", "/data/notes.txt"}, resultPaths(s.Results()))

	entries, err := skiplog.Read(&skipped)
	require.NoError(t, err)
	categories := map[string]string{}
	for _, e := range entries {
		categories[e.Name] = e.Category
	}
	assert.Equal(t, map[string]string{
		"pagefile.sys": skiplog.CategorySystem,
		"tool.exe":     skiplog.CategoryExtension,
		"large.txt":    skiplog.CategorySize,
	}, categories)
}

func TestStopInterrupts(t *testing.T) {
	fs := newTree(t, map[string]string{
		"/data/alpha-dir/": "",
		"/data/d1/alpha1":  "",
		"/data/d2/alpha2":  "",
		"/data/d3/alpha3":  "",
		"/data/d4/alpha4":  "",
	})
	reached := make(chan struct{})
	release := make(chan struct{})
	fs.hook = func(name string) {
		if name == "/data/d2" {
			close(reached)
			<-release
		}
	}

	s := NewSession(Options{Fs: fs, Logger: &mockLogger{}})
	require.NoError(t, s.Start(context.Background(), Request{
		Root:         "/data",
		Keywords:     []string{"alpha"},
		MatchNames:   true,
		MatchFolders: true,
		Workers:      1,
	}))

	<-reached
	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopping, s.Status().State)
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st := s.Wait(ctx)

	assert.Equal(t, StateInterrupted, st.State)
	assert.Contains(t, resultPaths(s.Results()), "/data/alpha-dir", "collected results are kept")
	assert.Zero(t, fs.opens("/data/d3"))
	assert.Zero(t, fs.opens("/data/d4"))
}

func TestOverallTimeout(t *testing.T) {
	fs := newTree(t, map[string]string{
		"/data/d1/a.txt": "",
		"/data/d2/b.txt": "",
	})
	fs.hook = func(name string) {
		if name == "/data/d1" {
			time.Sleep(200 * time.Millisecond)
		}
	}

	_, st := runSearch(t, Options{Fs: fs}, Request{
		Root:           "/data",
		Keywords:       []string{"a"},
		MatchNames:     true,
		OverallTimeout: 50 * time.Millisecond,
	})

	assert.Equal(t, StateTimedOut, st.State)
	assert.Contains(t, st.Notice, "overall timeout")
	assert.Zero(t, fs.opens("/data/d2"))
}

func TestFileCap(t *testing.T) {
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files["/data/alpha-"+n+".txt"] = ""
	}
	fs := newTree(t, files)

	s, st := runSearch(t, Options{Fs: fs}, Request{
		Root:            "/data",
		Keywords:        []string{"alpha"},
		MatchNames:      true,
		MaxFilesToCheck: 3,
	})

	assert.Equal(t, StateCompleted, st.State)
	assert.Contains(t, st.Notice, "stopped after checking 3 files")
	assert.Len(t, s.Results(), 3)
}

func TestValidation(t *testing.T) {
	fs := newTree(t, map[string]string{"/data/file.txt": ""})

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{name: "missing root", req: Request{Keywords: []string{"a"}, MatchNames: true}, field: "root"},
		{name: "root does not exist", req: Request{Root: "/nope", Keywords: []string{"a"}, MatchNames: true}, field: "root"},
		{name: "root is a file", req: Request{Root: "/data/file.txt", Keywords: []string{"a"}, MatchNames: true}, field: "root"},
		{name: "blank keywords", req: Request{Root: "/data", Keywords: []string{" ", ""}, MatchNames: true}, field: "keywords"},
		{name: "nothing to match", req: Request{Root: "/data", Keywords: []string{"a"}}, field: "match"},
		{name: "inverted sizes", req: Request{Root: "/data", Keywords: []string{"a"}, MatchNames: true, MinSize: 10, MaxSize: 5}, field: "size"},
		{name: "inverted dates", req: Request{
			Root: "/data", Keywords: []string{"a"}, MatchNames: true,
			ModifiedAfter: time.Now(), ModifiedBefore: time.Now().Add(-time.Hour),
		}, field: "modified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(Options{Fs: fs})
			err := s.Start(context.Background(), tt.req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, StateIdle, s.Status().State)
		})
	}
}

func TestInvalidSettings(t *testing.T) {
	fs := newTree(t, map[string]string{"/data/a.txt": ""})
	s := NewSession(Options{Fs: fs, Settings: withSettings(func(s *Settings) { s.Thresholds.Large = 1 })})

	err := s.Start(context.Background(), Request{Root: "/data", Keywords: []string{"a"}, MatchNames: true})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "settings", verr.Field)

	s = NewSession(Options{Fs: fs, Settings: func() (Settings, error) { return Settings{}, errors.New("unreadable") }})
	assert.ErrorContains(t, s.Start(context.Background(), Request{Root: "/data", Keywords: []string{"a"}, MatchNames: true}), "unreadable")
	assert.Equal(t, StateIdle, s.Status().State)
}

func TestLifecycle(t *testing.T) {
	fs := newTree(t, map[string]string{
		"/data/alpha.txt":     "",
		"/data/sub/alpha.txt": "",
	})
	release := make(chan struct{})
	fs.hook = func(name string) {
		if name == "/data/sub" {
			<-release
		}
	}
	req := Request{Root: "/data", Keywords: []string{"alpha"}, MatchNames: true}

	s := NewSession(Options{Fs: fs, Logger: &mockLogger{}})
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
	require.NoError(t, s.Start(context.Background(), req))
	assert.ErrorIs(t, s.Start(context.Background(), req), ErrAlreadyRunning)
	assert.ErrorIs(t, s.Reset(), ErrAlreadyRunning)
	close(release)

	st := s.Wait(context.Background())
	assert.Equal(t, StateCompleted, st.State)
	assert.Len(t, s.Results(), 2)
	assert.ErrorIs(t, s.Start(context.Background(), req), ErrNotIdle)

	require.NoError(t, s.Reset())
	st = s.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Empty(t, s.Results())
	assert.Zero(t, st.FilesChecked)

	// processed and visited sets were cleared, so the same files match again
	require.NoError(t, s.Start(context.Background(), req))
	st = s.Wait(context.Background())
	assert.Equal(t, StateCompleted, st.State)
	assert.Len(t, s.Results(), 2)
}

func TestOnResultPanicIsAnError(t *testing.T) {
	fs := newTree(t, map[string]string{"/data/alpha-dir/": ""})

	_, st := runSearch(t, Options{
		Fs:       fs,
		OnResult: func(r Result) { panic("renderer crashed") },
	}, Request{
		Root:         "/data",
		Keywords:     []string{"alpha"},
		MatchFolders: true,
	})

	assert.Equal(t, StateError, st.State)
	assert.ErrorContains(t, st.Err, "renderer crashed")
}

func TestOnResultStream(t *testing.T) {
	fs := newTree(t, map[string]string{
		"/data/alpha-1.txt": "",
		"/data/alpha-2.txt": "",
	})
	var mu sync.Mutex
	var streamed []string

	s, _ := runSearch(t, Options{
		Fs: fs,
		OnResult: func(r Result) {
			mu.Lock()
			defer mu.Unlock()
			streamed = append(streamed, r.Path)
		},
	}, Request{Root: "/data", Keywords: []string{"alpha"}, MatchNames: true})

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, resultPaths(s.Results()), streamed)
}

const nestedMessage = "From: ana@example.com\r\n" +
	"Subject: %s\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"See attachment.\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; name=plan.txt\r\n" +
	"Content-Disposition: attachment; filename=plan.txt\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"%s\r\n" +
	"--XYZ--\r\n"

func message(subject, attachment string) string {
	m := strings.Replace(nestedMessage, "%s", subject, 1)
	return strings.Replace(m, "%s", base64.StdEncoding.EncodeToString([]byte(attachment)), 1)
}

func TestNestedContainerResults(t *testing.T) {
	fs := newTree(t, map[string]string{
		"/data/inside.eml":  message("weekly", "the merger plan"),
		"/data/subject.eml": message("merger news", "nothing"),
	})

	s, _ := runSearch(t, Options{Fs: fs}, Request{
		Root:         "/data",
		Keywords:     []string{"merger"},
		MatchContent: true,
		Level:        content.LevelAdvanced,
	})

	results := resultsByPath(s.Results())
	require.Len(t, results, 2)
	assert.True(t, results["/data/inside.eml"].FromNestedContainer)
	assert.False(t, results["/data/subject.eml"].FromNestedContainer)
}

func TestResultsKeepCompletionOrder(t *testing.T) {
	files := make(map[string]string)
	for _, name := range []string{"d", "b", "e", "a", "c", "f"} {
		files["/data/"+name+"-report.txt"] = ""
	}
	fs := newTree(t, files)

	var (
		mu     sync.Mutex
		stream []string
	)
	s, _ := runSearch(t, Options{
		Fs: fs,
		OnResult: func(r Result) {
			mu.Lock()
			stream = append(stream, r.Path)
			mu.Unlock()
		},
	}, Request{
		Root:       "/data",
		Keywords:   []string{"report"},
		MatchNames: true,
		Workers:    4,
	})

	var got []string
	for _, r := range s.Results() {
		got = append(got, r.Path)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, stream, got)
	assert.Len(t, got, 6)
}

func TestLateContainerResult(t *testing.T) {
	fs := newTree(t, map[string]string{"/data/slow.eml": "x"})
	reg := extract.NewRegistry()
	reg.Register(extract.ExtractorFunc(func(ctx context.Context, fs afero.Fs, path string) (extract.Document, error) {
		time.Sleep(150 * time.Millisecond)
		return extract.Document{Sections: []extract.Section{{Name: "body", Text: "alpha"}}}, nil
	}), "eml")
	var skipped bytes.Buffer

	s, st := runSearch(t, Options{
		Fs:         fs,
		Extractors: reg,
		SkipLog:    skiplog.New(&skipped),
		Settings: withSettings(func(s *Settings) {
			s.Timeouts = TimeoutPolicy{Base: 20 * time.Millisecond}
		}),
	}, Request{
		Root:         "/data",
		Keywords:     []string{"alpha"},
		MatchContent: true,
		Level:        content.LevelAdvanced,
	})

	assert.Equal(t, StateCompleted, st.State)
	assert.Contains(t, skipped.String(), "\ttimeout\tslow.eml\t")
	assert.Eventually(t, func() bool { return len(s.Results()) == 1 }, 2*time.Second, 10*time.Millisecond,
		"late result appended after the deadline")
}

func TestGovernorTruncation(t *testing.T) {
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		files["/data/alpha-"+n+".txt"] = ""
	}
	fs := newTree(t, files)

	s, _ := runSearch(t, Options{Fs: fs}, Request{Root: "/data", Keywords: []string{"alpha"}, MatchNames: true})
	require.Len(t, s.Results(), 6)

	s.mu.Lock()
	tgt := &target{s: s, r: s.run}
	s.mu.Unlock()

	assert.Equal(t, 6, tgt.ResultCount())
	assert.Equal(t, 2, tgt.TruncateResults(4))
	assert.Zero(t, tgt.TruncateResults(4), "truncation never grows the list back")
	tgt.ShrinkBatch()

	st := s.Status()
	assert.Equal(t, 4, st.Matches)
	assert.Equal(t, 2, st.Truncated)
	assert.Contains(t, st.Notice, "2 results dropped")
}
