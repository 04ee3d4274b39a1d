package extract

import (
	"context"
	"fmt"
	"strings"

	"baliance.com/gooxml/document"
	"baliance.com/gooxml/presentation"
	"baliance.com/gooxml/schema/soo/pml"
	"github.com/spf13/afero"
)

// Word extracts paragraphs, tables, headers and footers of .docx files.
type Word struct{}

func (Word) Extract(ctx context.Context, fs afero.Fs, path string) (doc Document, err error) {
	defer guard(path, &err)

	f, size, err := openSized(fs, path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	d, err := document.Read(f, size)
	if err != nil {
		return Document{}, fmt.Errorf("open document: %w", err)
	}

	if text := paragraphText(d.Paragraphs()); text != "" {
		doc.Sections = append(doc.Sections, Section{Name: "body", Text: text})
	}
	for i, h := range d.Headers() {
		if text := paragraphText(h.Paragraphs()); text != "" {
			doc.Sections = append(doc.Sections, Section{Name: fmt.Sprintf("header %d", i+1), Text: text})
		}
	}
	if err := ctx.Err(); err != nil {
		return doc, err
	}
	for i, ft := range d.Footers() {
		if text := paragraphText(ft.Paragraphs()); text != "" {
			doc.Sections = append(doc.Sections, Section{Name: fmt.Sprintf("footer %d", i+1), Text: text})
		}
	}

	if len(doc.Sections) == 0 {
		return Document{}, ErrUnsupported
	}
	return doc, nil
}

func paragraphText(paras []document.Paragraph) string {
	var b strings.Builder
	for _, p := range paras {
		for _, r := range p.Runs() {
			b.WriteString(r.Text())
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

// Presentation extracts the text frames of every .pptx slide, one section
// per slide.
type Presentation struct{}

func (Presentation) Extract(ctx context.Context, fs afero.Fs, path string) (doc Document, err error) {
	defer guard(path, &err)

	f, size, err := openSized(fs, path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	ppt, err := presentation.Read(f, size)
	if err != nil {
		return Document{}, fmt.Errorf("open presentation: %w", err)
	}

	for i, slide := range ppt.Slides() {
		if err := ctx.Err(); err != nil {
			return doc, err
		}
		x := slide.X()
		if x == nil || x.CSld == nil || x.CSld.SpTree == nil {
			continue
		}
		var b strings.Builder
		shapeTreeText(&b, x.CSld.SpTree)
		if text := strings.TrimSpace(b.String()); text != "" {
			doc.Sections = append(doc.Sections, Section{Name: fmt.Sprintf("slide %d", i+1), Text: text})
		}
	}

	if len(doc.Sections) == 0 {
		return Document{}, ErrUnsupported
	}
	return doc, nil
}

// shapeTreeText walks shapes and nested groups in drawing order.
func shapeTreeText(b *strings.Builder, tree *pml.CT_GroupShape) {
	for _, choice := range tree.Choice {
		for _, sp := range choice.Sp {
			if sp.TxBody == nil {
				continue
			}
			for _, p := range sp.TxBody.P {
				for _, run := range p.EG_TextRun {
					if run.R != nil {
						b.WriteString(run.R.T)
					}
				}
				b.WriteByte('\n')
			}
		}
		for _, group := range choice.GrpSp {
			shapeTreeText(b, group)
		}
	}
}
