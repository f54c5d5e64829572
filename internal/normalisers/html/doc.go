// Package html normalises HTML handbook pages. Page chrome (navigation,
// headers, footers, scripts) is dropped and, when the page marks its main
// content, only that is kept. Headings become Markdown headings so the
// chunker can track which section a passage belongs to.
package html
