package skiplog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRead(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.Record(Entry{
		Time:     at,
		Category: CategorySize,
		Name:     "dump.bin",
		Path:     "/data/dump.bin",
		Reason:   "size 6.0 GiB\tabove cut-off",
	}))
	require.NoError(t, l.Record(Entry{
		Time:     at.Add(time.Minute),
		Category: CategoryExtension,
		Name:     "photo.jpg",
		Path:     "/data/photo.jpg",
		Reason:   "extension not searched at level basic",
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024-03-01T12:00:00Z\tsize\tdump.bin\t/data/dump.bin\tsize 6.0 GiB above cut-off", lines[0])
	assert.Equal(t, int64(2), l.Count())

	entries, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, at.Equal(entries[0].Time))
	assert.Equal(t, "photo.jpg", entries[1].Name)
	assert.Equal(t, CategoryExtension, entries[1].Category)
}

func TestReadMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "missing fields", input: "2024-03-01T12:00:00Z\tsize\tx\n"},
		{name: "bad time", input: "yesterday\tsize\tx\t/x\tbig\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			assert.ErrorContains(t, err, "line 1")
		})
	}
}

func TestOpenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skipped.log")

	for i := 0; i < 2; i++ {
		l, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, l.Record(Entry{Category: CategorySystem, Name: "pagefile.sys", Path: "/pagefile.sys", Reason: "system file"}))
		require.NoError(t, l.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	entries, err := Read(f)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.False(t, entries[0].Time.IsZero())
}

func TestConcurrentRecord(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Record(Entry{Category: CategoryTimeout, Name: "f", Path: "/f", Reason: "deadline"})
		}()
	}
	wg.Wait()

	entries, err := Read(&buf)
	require.NoError(t, err)
	assert.Len(t, entries, 50)
	assert.Equal(t, int64(50), l.Count())
}
