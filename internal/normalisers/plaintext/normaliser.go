// Package plaintext is the fallback Normaliser for text documents.
//
// Handbooks exported as .txt often mark headings by underlining them.
// Those headings are rewritten in Markdown form so the chunker can track
// the heading path the same way it does for .md files.
package plaintext

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/normalisers/docmeta"
)

var _ driven.Normaliser = (*Normaliser)(nil)

var (
	underlineH1 = regexp.MustCompile(`^={3,}\s*$`)
	underlineH2 = regexp.MustCompile(`^-{3,}\s*$`)
	blankRun    = regexp.MustCompile(`\n{3,}`)
)

// Normaliser handles text/plain and any text type without a dedicated
// normaliser.
type Normaliser struct{}

func New() *Normaliser {
	return &Normaliser{}
}

func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/plain", "text/csv", "text/*"}
}

// Priority keeps it below every format-specific normaliser.
func (n *Normaliser) Priority() int {
	return 5
}

func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	text := strings.ToValidUTF8(string(raw.Content), "\uFFFD")
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	content, title := promoteHeadings(text)
	content = blankRun.ReplaceAllString(content, "\n\n")

	return &driven.NormaliseResult{
		Document: docmeta.Build(raw, title, content, "text"),
	}, nil
}

// promoteHeadings turns "Title\n=====" into "# Title" and "Title\n-----"
// into "## Title". The first level-one heading becomes the title.
func promoteHeadings(text string) (string, string) {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	var title string

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		heading := strings.TrimSpace(line)
		if i+1 < len(lines) && heading != "" && !strings.HasPrefix(heading, "#") {
			switch next := lines[i+1]; {
			case underlineH1.MatchString(next):
				if title == "" {
					title = heading
				}
				out = append(out, "# "+heading)
				i++
				continue
			case underlineH2.MatchString(next):
				out = append(out, "## "+heading)
				i++
				continue
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n"), title
}
