package html

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

func TestNormaliser_Registration(t *testing.T) {
	n := New()
	assert.ElementsMatch(t, []string{"text/html", "application/xhtml+xml"}, n.SupportedMIMETypes())
	assert.Equal(t, 50, n.Priority())
}

func TestNormalise_Success(t *testing.T) {
	modified := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	raw := &domain.RawDocument{
		ID:         "student-services/contacts.html",
		URI:        "/handbook/student-services/contacts.html",
		MIMEType:   "text/html",
		ModifiedAt: modified,
		Content: []byte(`<html><head><title>Contacts</title></head><body>
<nav><a href="/">Home</a></nav>
<h1>Contacts</h1>
<h2>Office hours</h2>
<p>Office hours: Dr Keppens, Room 4.12, Tue 2-4pm</p>
<footer>Copyright</footer>
</body></html>`),
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, result)

	doc := result.Document
	assert.Equal(t, raw.ID, doc.ID)
	assert.Equal(t, raw.URI, doc.URI)
	assert.Equal(t, "Contacts", doc.Title)
	assert.Equal(t, modified, doc.ModifiedAt)
	assert.Equal(t, "# Contacts\n\n## Office hours\n\nOffice hours: Dr Keppens, Room 4.12, Tue 2-4pm", doc.Content)
	assert.Equal(t, "html", doc.Metadata["format"])
	assert.Equal(t, "text/html", doc.Metadata["mime_type"])
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_EmptyContent(t *testing.T) {
	raw := &domain.RawDocument{ID: "empty.html", URI: "/empty.html", MIMEType: "text/html"}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Empty(t, result.Document.Content)
	assert.Equal(t, "empty", result.Document.Title)
}

func TestNormalise_TitleExtraction(t *testing.T) {
	tests := map[string]struct{ uri, page, want string }{
		"title tag":         {"/doc.html", "<html><head><title>Exam Board</title></head><body></body></html>", "Exam Board"},
		"trimmed":           {"/doc.html", "<title>   Exam Board   </title>", "Exam Board"},
		"entities":          {"/doc.html", "<title>Fees &amp; Funding</title>", "Fees & Funding"},
		"h1 when untitled":  {"/doc.html", "<body><h1>Welcome <em>Week</em></h1><p>x</p></body>", "Welcome Week"},
		"filename fallback": {"/study_abroad.html", "<html><body>Just content</body></html>", "study abroad"},
		"empty title tag":   {"/readme.html", "<title></title><body>Content</body>", "readme"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			result, err := New().Normalise(context.Background(),
				&domain.RawDocument{URI: tt.uri, MIMEType: "text/html", Content: []byte(tt.page)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Document.Title)
		})
	}
}

// textOf runs the page text extraction on a fragment.
func textOf(t *testing.T, fragment string) string {
	t.Helper()
	page, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	require.NoError(t, err)
	return pageText(page)
}

func TestPageText(t *testing.T) {
	tests := []struct{ name, fragment, want string }{
		{"simple paragraph", "<p>Hello World</p>", "Hello World"},
		{"nested tags", "<div><p><strong>Bold</strong> text</p></div>", "Bold text"},
		{"paragraphs separated by blank line", "<p>Before</p><script>alert('evil');</script><p>After</p>", "Before\n\nAfter"},
		{"style removed", "<style>.foo { color: red; }</style><p>Content</p>", "Content"},
		{"head removed", "<head><meta charset='utf-8'><title>Title</title></head><body>Content</body>", "Content"},
		{"page chrome removed", "<nav><ul><li>Home</li></ul></nav><p>Body</p><aside>Related</aside><footer>(c)</footer>", "Body"},
		{"br to newline", "Line 1<br>Line 2<br/>Line 3", "Line 1\nLine 2\nLine 3"},
		{"HTML entities decoded", "<p>&lt;tag&gt; &amp; &quot;quotes&quot;</p>", "<tag> & \"quotes\""},
		{"comments removed", "<p>Before</p><!-- comment --><p>After</p>", "Before\n\nAfter"},
		{"list items become bullets", "<ul><li>Item 1</li><li>Item 2</li></ul>", "- Item 1\n- Item 2"},
		{"headings become markdown", "<h1>Title</h1><h2 class=\"x\">Sub<b>title</b></h2><p>Content</p>", "# Title\n\n## Subtitle\n\nContent"},
		{"links - text preserved", `<a href="https://example.com">Click here</a>`, "Click here"},
		{"images removed", `<p>See <img src="image.png" alt="Image"> here</p>`, "See here"},
		{"source line breaks collapse", "<p>Tuition is due\n   on 1 October.</p>", "Tuition is due on 1 October."},
		{"pre keeps lines", "<pre>Mon 9-5\nTue 9-1</pre>", "Mon 9-5\nTue 9-1"},
		{"empty cells skipped", "<table><tr><td>Fees</td><td> </td><td>Room 1.02</td></tr></table>", "Fees | Room 1.02"},
		{"table cells separated", "<table><tr><th>Day</th><th>Room</th></tr><tr><td>Tue</td><td>4.12</td></tr></table>", "Day | Room\nTue | 4.12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, textOf(t, tt.fragment))
		})
	}
}

func TestNormalise_PrefersMainContent(t *testing.T) {
	raw := &domain.RawDocument{
		ID:       "welfare.html",
		URI:      "/handbook/welfare.html",
		MIMEType: "text/html",
		Content: []byte(`<html><body>
<div class="banner">University of Somewhere</div>
<main>
  <h1>Welfare</h1>
  <p>The counselling service is free for all students.</p>
</main>
<div class="cookie">We use cookies.</div>
</body></html>`),
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Welfare", result.Document.Title)
	assert.Equal(t, "# Welfare\n\nThe counselling service is free for all students.", result.Document.Content)
}

func TestNormalise_EmptyMainFallsBackToBody(t *testing.T) {
	raw := &domain.RawDocument{
		ID:      "x.html",
		Content: []byte(`<body><main> </main><p>Library opens at 9am.</p></body>`),
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Library opens at 9am.", result.Document.Content)
}

func TestNormalise_MetadataPreserved(t *testing.T) {
	raw := &domain.RawDocument{
		ID:       "page",
		URI:      "/page.html",
		MIMEType: "text/html",
		Content:  []byte("<p>x</p>"),
		Metadata: map[string]any{"section": "Welfare", "custom": 1},
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Welfare", result.Document.Section)
	assert.Equal(t, 1, result.Document.Metadata["custom"])
}
