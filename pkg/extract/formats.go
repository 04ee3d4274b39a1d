package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/ledongthuc/pdf"
	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"
)

// maxMarkupBytes caps how much of an HTML file is converted.
const maxMarkupBytes = 64 << 20

// PDF extracts the plain text layer of a PDF.
type PDF struct{}

func (PDF) Extract(ctx context.Context, fs afero.Fs, path string) (doc Document, err error) {
	defer guard(path, &err)

	f, size, err := openSized(fs, path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	r, err := pdf.NewReader(f, size)
	if err != nil {
		return Document{}, fmt.Errorf("open pdf: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return Document{}, fmt.Errorf("pdf text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	text, err := io.ReadAll(plain)
	if err != nil {
		return Document{}, err
	}
	return Document{Sections: []Section{{Name: "body", Text: string(text)}}}, nil
}

// Spreadsheet extracts every sheet of an Excel workbook, one section per
// sheet with cells separated by tabs.
type Spreadsheet struct{}

func (Spreadsheet) Extract(ctx context.Context, fs afero.Fs, path string) (doc Document, err error) {
	defer guard(path, &err)

	f, err := fs.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	book, err := excelize.OpenReader(f)
	if err != nil {
		return Document{}, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	for _, sheet := range book.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return doc, err
		}
		rows, err := book.GetRows(sheet)
		if err != nil {
			continue
		}
		var b strings.Builder
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteByte('\n')
		}
		doc.Sections = append(doc.Sections, Section{Name: sheet, Text: b.String()})
	}
	return doc, nil
}

// HTML converts markup to markdown so tags and attributes do not produce
// matches.
type HTML struct{}

func (HTML) Extract(_ context.Context, fs afero.Fs, path string) (Document, error) {
	raw, err := readAll(fs, path, maxMarkupBytes)
	if err != nil {
		return Document{}, err
	}
	md, err := htmltomarkdown.ConvertString(string(raw))
	if err != nil {
		return Document{}, fmt.Errorf("convert html: %w", err)
	}
	return Document{Sections: []Section{{Name: "body", Text: md}}}, nil
}
