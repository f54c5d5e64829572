// Package pdf reads the text layer of PDF handbooks with the pure Go
// ledongthuc/pdf reader. Scanned pages without a text layer contribute
// nothing.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
	"github.com/custodia-labs/handbook-rag/internal/normalisers/docmeta"
)

var _ driven.Normaliser = (*Normaliser)(nil)

// ErrUnreadablePDF marks bytes the reader could not open.
var ErrUnreadablePDF = errors.New("unreadable pdf")

// maxTitleLength bounds the first line accepted as a title.
const maxTitleLength = 200

// hyphenBreak matches a word split across lines: "regis-\ntration".
var hyphenBreak = regexp.MustCompile(`(\p{Ll})-\n(\p{Ll})`)

type Normaliser struct{}

func New() *Normaliser {
	return &Normaliser{}
}

func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

func (n *Normaliser) Priority() int {
	return 50
}

// Normalise joins the text of every page with blank lines. The title is
// the loader's if given, then the document info Title, then the first
// short line of text.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	text, err := read(ctx, raw.Content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", raw.URI, err)
	}
	content := joinPages(text.pages)
	if content == "" && text.total > 0 {
		logger.Warn("%s has %d pages but no text layer; is it scanned?", raw.URI, text.total)
	}

	title := text.infoTitle
	if title == "" {
		title = extractTitle(content)
	}
	doc := docmeta.Build(raw, title, content, "pdf")
	doc.Metadata["page_count"] = text.total

	return &driven.NormaliseResult{Document: doc}, nil
}

type pdfText struct {
	pages     []string
	total     int
	infoTitle string
}

// read opens the PDF and pulls the plain text of each page. The reader
// panics on some malformed files; that surfaces as ErrUnreadablePDF.
func read(ctx context.Context, data []byte) (out pdfText, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = pdfText{}, fmt.Errorf("%w: %v", ErrUnreadablePDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return pdfText{}, fmt.Errorf("%w: %w", ErrUnreadablePDF, err)
	}

	out.total = reader.NumPage()
	out.infoTitle = strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text())
	for i := 1; i <= out.total; i++ {
		if err := ctx.Err(); err != nil {
			return pdfText{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Debug("pdf: skipping page %d: %v", i, err)
			continue
		}
		out.pages = append(out.pages, text)
	}
	return out, nil
}

// joinPages trims each page, mends hyphenated line breaks and separates
// non-empty pages with a blank line.
func joinPages(pages []string) string {
	kept := make([]string, 0, len(pages))
	for _, p := range pages {
		p = strings.ReplaceAll(strings.TrimSpace(p), "\r\n", "\n")
		if p != "" {
			kept = append(kept, hyphenBreak.ReplaceAllString(p, "$1$2"))
		}
	}
	return strings.Join(kept, "\n\n")
}

// extractTitle takes the first non-blank line short enough to be a title.
func extractTitle(content string) string {
	for line := range strings.Lines(content) {
		line = strings.TrimSpace(line)
		if line != "" && len(line) <= maxTitleLength {
			return line
		}
	}
	return ""
}
