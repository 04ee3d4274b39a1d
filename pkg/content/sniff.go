package content

import (
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// LooksLikeText sniffs the first bytes of r and reports a text/* MIME type.
func LooksLikeText(r io.Reader) bool {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return false
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// SniffText opens path on fs and applies LooksLikeText.
func SniffText(fs afero.Fs, path string) bool {
	f, err := fs.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	return LooksLikeText(f)
}
