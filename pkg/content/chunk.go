package content

import (
	"context"
	"errors"
	"io"

	"github.com/sonemaro/sifter/pkg/pathclass"
)

const (
	// DefaultChunkSize is the read size for plain content scanning.
	DefaultChunkSize = 4 << 20

	// MinOverlap is the smallest carry-over kept between chunks.
	MinOverlap = 200
)

// OverlapFor returns max(2 x longest keyword, MinOverlap).
func OverlapFor(kw *Keywords) int {
	o := 2 * kw.Longest()
	if o < MinOverlap {
		o = MinOverlap
	}
	return o
}

// ChunkSizeFor doubles base for files above the Huge threshold.
func ChunkSizeFor(category pathclass.SizeCategory, base int) int {
	if base <= 0 {
		base = DefaultChunkSize
	}
	if category >= pathclass.Huge {
		return base * 2
	}
	return base
}

// ChunkScanner reads a stream in fixed-size chunks. Each chunk is prefixed
// with the trailing overlap bytes of the previous window before decoding, so
// a keyword shorter than the overlap cannot be lost at a chunk boundary.
type ChunkScanner struct {
	chunkSize int
	overlap   int
}

// NewChunkScanner builds a scanner. An overlap of zero disables carry-over.
func NewChunkScanner(chunkSize, overlap int) *ChunkScanner {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &ChunkScanner{chunkSize: chunkSize, overlap: overlap}
}

func (s *ChunkScanner) ChunkSize() int { return s.chunkSize }

func (s *ChunkScanner) Overlap() int { return s.overlap }

// Scan reads r until EOF or until every keyword is found. Cancellation of
// ctx is observed between chunks.
//
// In whole-word mode a hit touching the end of a window is only counted once
// the following bytes are known; the carried overlap re-examines it in the
// next window. A hit at the start of a window that begins inside the stream
// was already judged in the previous window.
func (s *ChunkScanner) Scan(ctx context.Context, r io.Reader, kw *Keywords) (Match, error) {
	t := NewTracker(kw)
	buf := make([]byte, s.chunkSize)
	var (
		carry    []byte
		consumed int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return t.Result(), err
		}

		n, err := io.ReadFull(r, buf)
		atEOF := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !atEOF {
			return t.Result(), err
		}

		if n > 0 || (atEOF && len(carry) > 0) {
			start := consumed - int64(len(carry))
			window := make([]byte, 0, len(carry)+n)
			window = append(window, carry...)
			window = append(window, buf[:n]...)
			consumed += int64(n)

			edges := Edges{LeftOpen: start > 0, RightOpen: !atEOF}
			if t.FeedWindow(Decode(window), edges) {
				return t.Result(), nil
			}
			carry = tail(window, s.overlap)
		}

		if atEOF {
			return t.Result(), nil
		}
	}
}

func tail(b []byte, n int) []byte {
	if n <= 0 {
		return nil
	}
	if len(b) <= n {
		n = len(b)
	}
	out := make([]byte, n)
	copy(out, b[len(b)-n:])
	return out
}
