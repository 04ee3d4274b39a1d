package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/emersion/go-mbox"
	"github.com/jhillyerd/enmime"
	"github.com/spf13/afero"
)

const (
	maxMailBytes  = 256 << 20
	maxPartBytes  = 32 << 20
	maxMultiDepth = 8
)

var mailHeaders = []string{"From", "To", "Cc", "Subject"}

// Mail extracts an RFC 822 message. Headers and inline bodies become
// top-level sections; attachments become Nested sections. Bodies are
// converted from their declared charset.
type Mail struct{}

func (Mail) Extract(ctx context.Context, fs afero.Fs, path string) (doc Document, err error) {
	defer guard(path, &err)

	f, err := fs.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	return parseMessage(ctx, io.LimitReader(f, maxMailBytes), 0)
}

// Mbox extracts every message of an mbox file.
type Mbox struct{}

func (Mbox) Extract(ctx context.Context, fs afero.Fs, path string) (doc Document, err error) {
	defer guard(path, &err)

	f, err := fs.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()

	mr := mbox.NewReader(io.LimitReader(f, maxMailBytes))
	for {
		if err := ctx.Err(); err != nil {
			return doc, err
		}
		r, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			return doc, nil
		}
		if err != nil {
			return doc, fmt.Errorf("read mailbox: %w", err)
		}
		msg, err := parseMessage(ctx, r, 0)
		if err != nil {
			// one broken message does not spoil the mailbox
			continue
		}
		doc.Sections = append(doc.Sections, msg.Sections...)
	}
}

func parseMessage(ctx context.Context, r io.Reader, depth int) (Document, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return Document{}, fmt.Errorf("read message: %w", err)
	}

	var headers strings.Builder
	for _, key := range mailHeaders {
		if v := env.GetHeader(key); v != "" {
			headers.WriteString(key + ": " + v + "\n")
		}
	}
	doc := Document{Sections: []Section{{Name: "headers", Text: headers.String()}}}

	body := env.Text
	if strings.TrimSpace(body) == "" && env.HTML != "" {
		if md, err := htmltomarkdown.ConvertString(env.HTML); err == nil {
			body = md
		}
	}
	if body != "" {
		doc.Sections = append(doc.Sections, Section{Name: "body", Text: body})
	}

	for _, part := range env.Inlines {
		if isTextPart(part) {
			doc.Sections = append(doc.Sections, Section{Name: partName(part, "inline"), Text: partText(part)})
		}
	}

	for _, part := range env.Attachments {
		if ctx.Err() != nil {
			return doc, ctx.Err()
		}
		doc.Sections = append(doc.Sections, attachmentSections(ctx, part, depth)...)
	}
	return doc, nil
}

func attachmentSections(ctx context.Context, part *enmime.Part, depth int) []Section {
	name := partName(part, "attachment")

	switch {
	case part.ContentType == "message/rfc822" && depth < maxMultiDepth:
		inner, err := parseMessage(ctx, bytes.NewReader(part.Content), depth+1)
		if err != nil {
			break
		}
		sections := make([]Section, 0, len(inner.Sections))
		for _, s := range inner.Sections {
			s.Nested = true
			sections = append(sections, s)
		}
		return sections
	case isTextPart(part):
		return []Section{{Name: name, Text: partText(part), Nested: true}}
	}

	// binary attachment: only its name is searchable
	return []Section{{Name: name, Text: name, Nested: true}}
}

func isTextPart(part *enmime.Part) bool {
	return strings.HasPrefix(part.ContentType, "text/")
}

func partText(part *enmime.Part) string {
	content := part.Content
	if len(content) > maxPartBytes {
		content = content[:maxPartBytes]
	}
	text := strings.ToValidUTF8(string(content), "")
	if part.ContentType == "text/html" {
		if md, err := htmltomarkdown.ConvertString(text); err == nil {
			return md
		}
	}
	return text
}

func partName(part *enmime.Part, fallback string) string {
	if part.FileName != "" {
		return part.FileName
	}
	return fallback
}
