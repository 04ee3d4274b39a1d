package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sonemaro/sifter/pkg/content"
	"github.com/sonemaro/sifter/pkg/logger"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements logger.Logger interface for testing
type mockLogger struct {
	logs []string
}

func (m *mockLogger) Info(msg string)                               { m.logs = append(m.logs, "INFO: "+msg) }
func (m *mockLogger) Debug(msg string)                              { m.logs = append(m.logs, "DEBUG: "+msg) }
func (m *mockLogger) Error(msg string)                              { m.logs = append(m.logs, "ERROR: "+msg) }
func (m *mockLogger) Warn(msg string)                               { m.logs = append(m.logs, "WARN: "+msg) }
func (m *mockLogger) Trace(msg string)                              { m.logs = append(m.logs, "TRACE: "+msg) }
func (m *mockLogger) WithFields(fields logger.Fields) logger.Logger { return m }

type recordingSink struct {
	batches [][]File
	folders []string
	blocks  []Block
	onBlock func(Block)
}

func (r *recordingSink) SubmitBatch(ctx context.Context, files []File) error {
	r.batches = append(r.batches, append([]File(nil), files...))
	return nil
}

func (r *recordingSink) FolderMatched(dir File) { r.folders = append(r.folders, dir.Path) }

func (r *recordingSink) BlockDone(b Block) {
	r.blocks = append(r.blocks, b)
	if r.onBlock != nil {
		r.onBlock(b)
	}
}

func (r *recordingSink) files() []string {
	var out []string
	for _, batch := range r.batches {
		for _, f := range batch {
			out = append(out, f.Path)
		}
	}
	return out
}

func (r *recordingSink) expanded() []string {
	var out []string
	for _, b := range r.blocks {
		out = append(out, b.Path)
	}
	return out
}

func setupTree(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		if strings.HasSuffix(f, "/") {
			require.NoError(t, fs.MkdirAll(f, 0755))
			continue
		}
		require.NoError(t, fs.MkdirAll(filepath.Dir(f), 0755))
		require.NoError(t, afero.WriteFile(fs, f, []byte("x"), 0644))
	}
	return fs
}

func run(t *testing.T, fs afero.Fs, cfg Config, root string) (*Scheduler, *recordingSink, error) {
	t.Helper()
	s, err := New(fs, cfg, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, s.Start(root))
	sink := &recordingSink{}
	err = s.Run(context.Background(), sink)
	return s, sink, err
}

func TestDepthLimit(t *testing.T) {
	fs := setupTree(t,
		"/tree/top.txt",
		"/tree/A/a.txt",
		"/tree/A/deeper/x.txt",
		"/tree/B/b.txt",
		"/tree/C/",
	)

	_, sink, err := run(t, fs, Config{DepthLimit: 1}, "/tree")
	require.NoError(t, err)

	assert.Equal(t, []string{"/tree"}, sink.expanded())
	assert.Equal(t, []string{"/tree/top.txt"}, sink.files())
}

func TestDepthUnlimited(t *testing.T) {
	parts := []string{"/deep"}
	for i := 0; i < 40; i++ {
		parts = append(parts, fmt.Sprintf("d%02d", i))
	}
	leaf := strings.Join(parts, "/") + "/leaf.txt"
	fs := setupTree(t, leaf)

	_, sink, err := run(t, fs, Config{}, "/deep")
	require.NoError(t, err)

	assert.Len(t, sink.blocks, 41)
	assert.Equal(t, []string{leaf}, sink.files())
	for i, b := range sink.blocks {
		assert.Equal(t, i, b.Depth)
	}
}

func TestExpandRespectsLimit(t *testing.T) {
	fs := setupTree(t, "/tree/A/a.txt")
	s, err := New(fs, Config{DepthLimit: 2}, &mockLogger{})
	require.NoError(t, err)

	_, err = s.Expand(context.Background(), Block{Path: "/tree/A", Depth: 2})
	var depthErr *DepthError
	assert.ErrorAs(t, err, &depthErr)
}

func TestPriorityOrdering(t *testing.T) {
	fs := setupTree(t,
		"/tree/system/s1/f.txt",
		"/tree/generic/g1/f.txt",
		"/tree/flat/f1/f.txt",
		"/tree/user/u1/f.txt",
		"/tree/user/u2/f.txt",
	)

	rules, err := NewTierRules(TierGeneric,
		append(append(append(
			subtree("/tree/user", 0),
			subtree("/tree/flat", 1)...),
			subtree("/tree/system", 3)...),
			TierRule{Pattern: "/tree", Tier: 0})...,
	)
	require.NoError(t, err)

	_, sink, err := run(t, fs, Config{Tiers: rules}, "/tree")
	require.NoError(t, err)

	require.Len(t, sink.blocks, 10)
	for i := 1; i < len(sink.blocks); i++ {
		assert.LessOrEqual(t, sink.blocks[i-1].Tier, sink.blocks[i].Tier,
			"%s dequeued before %s", sink.blocks[i-1].Path, sink.blocks[i].Path)
	}
	assert.Equal(t, "/tree/system/s1", sink.blocks[9].Path)

	// FIFO within a tier: u1 was discovered before u2
	order := sink.expanded()
	assert.Less(t, indexOf(order, "/tree/user/u1"), indexOf(order, "/tree/user/u2"))
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestFrontierFIFOWithinTier(t *testing.T) {
	s, err := New(afero.NewMemMapFs(), Config{}, &mockLogger{})
	require.NoError(t, err)

	for _, p := range []string{"/c", "/a", "/b"} {
		s.push(p, 1)
	}
	var got []string
	for {
		b, ok := s.Next()
		if !ok {
			break
		}
		got = append(got, b.Path)
	}
	assert.Equal(t, []string{"/c", "/a", "/b"}, got)
}

func TestTierRules(t *testing.T) {
	rules := DefaultTierRules("/home/ana")

	tests := []struct {
		path string
		tier int
	}{
		{"/home/ana", TierUserData},
		{"/home/ana/Documents", TierUserData},
		{"/home/ana/Documents/taxes/2023", TierUserData},
		{"/home/ana/.cache", TierGeneric},
		{"/srv/data", TierGeneric},
		{"/usr", TierSystem},
		{"/usr/share/doc", TierSystem},
		{"/usrlocal", TierGeneric},
		{"C:/Windows/System32", TierSystem},
		{"D:/Program Files (x86)/App", TierSystem},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.tier, rules.TierOf(tt.path))
		})
	}

	assert.Equal(t, TierFlat, FlatTierRules().TierOf("/usr"))

	_, err := NewTierRules(0, TierRule{Pattern: "[", Tier: 1})
	assert.Error(t, err)
}

func TestDedup(t *testing.T) {
	fs := setupTree(t, "/tree/A/a.txt")
	s, err := New(fs, Config{}, &mockLogger{})
	require.NoError(t, err)

	first, err := s.Expand(context.Background(), Block{Path: "/tree/A", Depth: 1})
	require.NoError(t, err)
	assert.Len(t, first.Files, 1)

	second, err := s.Expand(context.Background(), Block{Path: "/tree/A/", Depth: 3})
	require.NoError(t, err)
	assert.Empty(t, second.Files)
	assert.Equal(t, int64(1), s.DirsChecked())
}

func TestSymlinkLoop(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "f.txt"), []byte("x"), 0644))
	if err := os.Symlink(filepath.Join(root, "a"), filepath.Join(root, "a", "b", "loop")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, sink, err := run(t, afero.NewOsFs(), Config{FollowSymlinks: true}, root)
	require.NoError(t, err)

	assert.Len(t, sink.files(), 1)
	// root, a, b and the loop entry whose canonical path was already visited
	assert.Len(t, sink.blocks, 4)
}

func TestFolderMatchingAndExclusions(t *testing.T) {
	fs := setupTree(t,
		"/tree/Invoices/jan.txt",
		"/tree/invoice_archive/old.txt",
		"/tree/skipme/invoice.txt",
		"/tree/cache.tmp/invoice.txt",
		"/tree/lost+found/invoice.txt",
		"/tree/notes.tmp",
		"/tree/keep.txt",
	)
	kw, err := content.NewKeywords([]string{"invoice"}, true)
	require.NoError(t, err)

	_, sink, err := run(t, fs, Config{
		Keywords:        kw,
		MatchFolders:    true,
		Exclusions:      []string{"/tree/skipme"},
		ExcludePatterns: []string{"*.TMP"},
	}, "/tree")
	require.NoError(t, err)

	// whole-word mode: "invoices" and "invoice_archive" do not match
	assert.Empty(t, sink.folders)

	files := sink.files()
	assert.ElementsMatch(t, []string{
		"/tree/Invoices/jan.txt",
		"/tree/invoice_archive/old.txt",
		"/tree/keep.txt",
	}, files)

	kw, err = content.NewKeywords([]string{"invoice"}, false)
	require.NoError(t, err)
	_, sink, err = run(t, fs, Config{Keywords: kw, MatchFolders: true}, "/tree")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"/tree/Invoices",
		"/tree/invoice_archive",
	}, sink.folders)
}

// deniedFs refuses to open one directory.
type deniedFs struct {
	afero.Fs
	denied string
	err    error
}

func (d *deniedFs) Open(name string) (afero.File, error) {
	if name == d.denied {
		return nil, &os.PathError{Op: "open", Path: name, Err: d.err}
	}
	return d.Fs.Open(name)
}

func TestListingFailures(t *testing.T) {
	base := setupTree(t, "/tree/locked/secret.txt", "/tree/open/ok.txt")

	tests := []struct {
		name        string
		err         error
		strict      bool
		wantSkipped int
	}{
		{name: "permission swallowed", err: os.ErrPermission},
		{name: "permission strict", err: os.ErrPermission, strict: true, wantSkipped: 1},
		{name: "other error", err: fmt.Errorf("io error"), wantSkipped: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &deniedFs{Fs: base, denied: "/tree/locked", err: tt.err}
			s, sink, err := run(t, fs, Config{Strict: tt.strict}, "/tree")
			require.NoError(t, err)

			assert.Equal(t, []string{"/tree/open/ok.txt"}, sink.files())
			assert.Len(t, s.Skipped(), tt.wantSkipped)
			assert.Contains(t, sink.expanded(), "/tree/locked", "failed blocks still report progress")
		})
	}
}

func TestBatching(t *testing.T) {
	var files []string
	for i := 0; i < 250; i++ {
		files = append(files, fmt.Sprintf("/tree/f%03d.txt", i))
	}
	fs := setupTree(t, files...)

	_, sink, err := run(t, fs, Config{InitialBatch: 100}, "/tree")
	require.NoError(t, err)

	require.Len(t, sink.batches, 3)
	assert.Len(t, sink.batches[0], 100)
	assert.Len(t, sink.batches[1], 100)
	assert.Len(t, sink.batches[2], 50)
	assert.Equal(t, "/tree/f000.txt", sink.batches[0][0].Path, "listing order preserved")
}

func TestFileCap(t *testing.T) {
	var files []string
	for i := 0; i < 10; i++ {
		files = append(files, fmt.Sprintf("/tree/sub%d/f.txt", i))
	}
	fs := setupTree(t, files...)

	s, sink, err := run(t, fs, Config{MaxFilesToCheck: 4}, "/tree")
	assert.ErrorIs(t, err, ErrFileCapReached)
	assert.Len(t, sink.files(), 4)
	assert.Equal(t, int64(4), s.FilesSeen())
}

func TestStopBetweenBlocks(t *testing.T) {
	fs := setupTree(t, "/tree/a/f.txt", "/tree/b/f.txt", "/tree/c/f.txt")

	s, err := New(fs, Config{}, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, s.Start("/tree"))

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{onBlock: func(Block) { cancel() }}

	err = s.Run(ctx, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sink.blocks, 1)
	assert.Equal(t, 3, s.Pending())
}

func TestStartErrors(t *testing.T) {
	fs := setupTree(t, "/tree/file.txt")
	s, err := New(fs, Config{}, &mockLogger{})
	require.NoError(t, err)

	assert.Error(t, s.Start("/missing"))
	assert.Error(t, s.Start("/tree/file.txt"))

	_, err = New(fs, Config{MatchFolders: true}, &mockLogger{})
	assert.Error(t, err)
	_, err = New(fs, Config{ExcludePatterns: []string{"[oops"}}, &mockLogger{})
	assert.Error(t, err)
}

func TestBatchSizer(t *testing.T) {
	start := time.Unix(0, 0)

	t.Run("halves when slow", func(t *testing.T) {
		b := NewBatchSizer(500, 30*time.Second, start)
		size, changed := b.Observe(start.Add(10*time.Second), 50)
		assert.False(t, changed)
		assert.Equal(t, 500, size)

		size, changed = b.Observe(start.Add(30*time.Second), 50)
		assert.True(t, changed)
		assert.Equal(t, 250, size)
	})

	t.Run("doubles when fast", func(t *testing.T) {
		b := NewBatchSizer(500, 30*time.Second, start)
		size, changed := b.Observe(start.Add(30*time.Second), 60000)
		assert.True(t, changed)
		assert.Equal(t, 1000, size)
	})

	t.Run("bounds", func(t *testing.T) {
		b := NewBatchSizer(150, time.Second, start)
		assert.Equal(t, 100, b.Shrink())
		assert.Equal(t, 100, b.Shrink())

		b = NewBatchSizer(4000, time.Second, start)
		size, _ := b.Observe(start.Add(time.Second), 5000)
		assert.Equal(t, MaxBatch, size)

		assert.Equal(t, MinBatch, NewBatchSizer(1, 0, start).Size())
	})
}

func TestInitialBatchForRemoteRoots(t *testing.T) {
	fs := setupTree(t, "/mnt/share/f.txt")
	s, err := New(fs, Config{}, &mockLogger{})
	require.NoError(t, err)
	require.NoError(t, s.Start("/mnt/share"))
	assert.Equal(t, DefaultBatch, s.Batch().Size())

	s, err = New(fs, Config{}, &mockLogger{})
	require.NoError(t, err)
	s.cfg.Classifier.NetworkMounts = []string{"/mnt/share"}
	require.NoError(t, s.Start("/mnt/share"))
	assert.Equal(t, RemoteBatch, s.Batch().Size())
}
