package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
)

// OpenDocument reads the text nodes of OpenDocument text, presentation and
// spreadsheet packages (content.xml).
type OpenDocument struct{}

func (OpenDocument) Extract(ctx context.Context, fs afero.Fs, p string) (doc Document, err error) {
	defer guard(p, &err)

	f, size, err := openSized(fs, p)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	zr, err := zip.NewReader(f, size)
	if err != nil {
		return Document{}, fmt.Errorf("open package: %w", err)
	}

	parts := textParts(zr)
	if len(parts) == 0 {
		return Document{}, ErrUnsupported
	}

	for _, zf := range parts {
		if err := ctx.Err(); err != nil {
			return doc, err
		}
		text, err := xmlText(zf)
		if err != nil {
			continue
		}
		doc.Sections = append(doc.Sections, Section{Name: zf.Name, Text: text})
	}
	return doc, nil
}

// textParts picks the XML members that hold user text.
func textParts(zr *zip.Reader) []*zip.File {
	var parts []*zip.File
	for _, zf := range zr.File {
		if zf.Name == "content.xml" {
			parts = append(parts, zf)
		}
	}
	return parts
}

// paragraphTags end a line of text in the OpenDocument schema.
var paragraphTags = map[string]bool{"p": true, "line-break": true, "tab": true, "h": true, "table-row": true}

func xmlText(zf *zip.File) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxPartBytes))
	var b strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			if paragraphTags[t.Name.Local] {
				b.WriteByte('\n')
			}
		}
	}
}
