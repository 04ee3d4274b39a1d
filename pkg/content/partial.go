package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/sonemaro/sifter/pkg/pathclass"
	"github.com/spf13/afero"
)

// UnanalyzedMarker separates head and tail text in a partial scan.
const UnanalyzedMarker = "\n[…]\n"

// PartialProfile sizes the head and tail segments of a partial scan.
type PartialProfile struct {
	Head int64
	Tail int64
}

// DefaultPartialProfile reads 20MB from the start and 10MB from the end.
var DefaultPartialProfile = PartialProfile{Head: 20 * pathclass.MB, Tail: 10 * pathclass.MB}

var partialProfiles = map[Class]PartialProfile{
	// logs grow at the end but their header tells what they are
	ClassLog:      {Head: 40 * pathclass.MB, Tail: 10 * pathclass.MB},
	ClassDatabase: {Head: 10 * pathclass.MB, Tail: 30 * pathclass.MB},
}

// PartialProfileFor returns the profile tuned for the file extension.
func PartialProfileFor(ext string) PartialProfile {
	if p, ok := partialProfiles[ClassOf(ext)]; ok {
		return p
	}
	return DefaultPartialProfile
}

// PartialText reads the head and tail segments of r and joins them with
// UnanalyzedMarker. When both segments cover the whole file it is returned
// in one piece.
func PartialText(ctx context.Context, r io.ReaderAt, size int64, p PartialProfile) (string, error) {
	head, tail, err := partialSegments(ctx, r, size, p)
	if err != nil {
		return "", err
	}
	if tail == nil {
		return head, nil
	}
	return head + UnanalyzedMarker + *tail, nil
}

// partialSegments returns the decoded head and tail. tail is nil when the
// head already holds the whole file.
func partialSegments(ctx context.Context, r io.ReaderAt, size int64, p PartialProfile) (string, *string, error) {
	if p.Head < 0 || p.Tail < 0 {
		return "", nil, fmt.Errorf("invalid partial profile: head %d tail %d", p.Head, p.Tail)
	}

	if p.Head+p.Tail >= size {
		whole, err := readSegment(r, 0, size)
		if err != nil {
			return "", nil, err
		}
		return Decode(whole), nil, nil
	}

	head, err := readSegment(r, 0, p.Head)
	if err != nil {
		return "", nil, fmt.Errorf("read head: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	tailBytes, err := readSegment(r, size-p.Tail, p.Tail)
	if err != nil {
		return "", nil, fmt.Errorf("read tail: %w", err)
	}

	tail := Decode(tailBytes)
	return Decode(head), &tail, nil
}

// ScanPartial matches kw against the head and tail of r. The cut ends of
// both segments are open edges for whole-word matching.
func ScanPartial(ctx context.Context, r io.ReaderAt, size int64, p PartialProfile, kw *Keywords) (Match, error) {
	head, tail, err := partialSegments(ctx, r, size, p)
	if err != nil {
		return Match{}, err
	}

	t := NewTracker(kw)
	if tail == nil {
		t.Feed(head)
		return t.Result(), nil
	}
	if !t.FeedWindow(head, Edges{RightOpen: p.Head > 0}) {
		t.FeedWindow(*tail, Edges{LeftOpen: true})
	}
	return t.Result(), nil
}

func readSegment(r io.ReaderAt, off, n int64) ([]byte, error) {
	buf := make([]byte, n)
	read, err := r.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

// OpenReaderAt opens path for random access. Files on the host filesystem
// are memory-mapped; other afero backends are read through the file handle.
func OpenReaderAt(fs afero.Fs, path string) (io.ReaderAt, int64, func() error, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, 0, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, err
	}
	size := info.Size()

	if osFile, ok := f.(*os.File); ok && size > 0 {
		m, err := mmap.Map(osFile, mmap.RDONLY, 0)
		if err == nil {
			closer := func() error {
				unmapErr := m.Unmap()
				closeErr := osFile.Close()
				if unmapErr != nil {
					return unmapErr
				}
				return closeErr
			}
			return bytes.NewReader(m), size, closer, nil
		}
	}

	return f, size, f.Close, nil
}
