package html

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/normalisers/docmeta"
)

var _ driven.Normaliser = (*Normaliser)(nil)

// chrome is markup that never carries handbook text.
const chrome = "head, script, style, noscript, template, svg, canvas, iframe, " +
	"nav, footer, aside, form, button, select, textarea"

// contentRoots are tried in order before falling back to <body>.
var contentRoots = []string{"main", "[role='main']", "article"}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"ul": true, "ol": true, "dl": true, "dt": true, "dd": true,
	"blockquote": true, "table": true, "figure": true, "figcaption": true,
	"address": true, "details": true, "summary": true,
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	spaces     = regexp.MustCompile(`[ \t]+`)
)

// Normaliser extracts the readable text of HTML handbook pages.
type Normaliser struct{}

func New() *Normaliser {
	return &Normaliser{}
}

func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

func (n *Normaliser) Priority() int {
	return 50
}

// Normalise keeps the page's main content with headings rewritten in
// Markdown form, list items as "- " bullets and table rows as "a | b".
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing html %s: %w", domain.ErrInvalidInput, raw.URI, err)
	}

	title := pageTitle(page)
	return &driven.NormaliseResult{
		Document: docmeta.Build(raw, title, pageText(page), "html"),
	}, nil
}

// pageTitle is the <title>, else the first <h1>.
func pageTitle(page *goquery.Document) string {
	for _, sel := range []string{"title", "h1"} {
		if t := collapse(page.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func pageText(page *goquery.Document) string {
	page.Find(chrome).Remove()

	root := page.Find("body")
	for _, sel := range contentRoots {
		if s := page.Find(sel).First(); s.Length() > 0 && collapse(s.Text()) != "" {
			root = s
			break
		}
	}
	if root.Length() == 0 {
		root = page.Selection
	}

	var b strings.Builder
	render(root, &b)
	return tidy(b.String())
}

func render(s *goquery.Selection, b *strings.Builder) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		name := goquery.NodeName(c)
		switch {
		case name == "#text":
			b.WriteString(whitespace.ReplaceAllString(c.Text(), " "))
		case name == "#comment", name == "img":
		case isHeading(name):
			if text := collapse(c.Text()); text != "" {
				fmt.Fprintf(b, "\n\n%s %s\n\n", strings.Repeat("#", int(name[1]-'0')), text)
			}
		case name == "br":
			b.WriteString("\n")
		case name == "hr":
			b.WriteString("\n\n")
		case name == "li":
			b.WriteString("\n- ")
			render(c, b)
		case name == "tr":
			var cells []string
			c.Children().Each(func(_ int, cell *goquery.Selection) {
				if text := collapse(cell.Text()); text != "" {
					cells = append(cells, text)
				}
			})
			if len(cells) > 0 {
				b.WriteString("\n" + strings.Join(cells, " | "))
			}
		case name == "pre":
			b.WriteString("\n\n" + c.Text() + "\n\n")
		case blockTags[name]:
			b.WriteString("\n\n")
			render(c, b)
			b.WriteString("\n\n")
		default:
			render(c, b)
		}
	})
}

func isHeading(name string) bool {
	return len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6'
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// tidy trims every line and keeps at most one blank line between blocks.
func tidy(text string) string {
	var lines []string
	blank := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(spaces.ReplaceAllString(line, " "))
		if line == "" || line == "-" {
			blank = len(lines) > 0
			continue
		}
		if blank {
			lines = append(lines, "")
			blank = false
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
