package chunker

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Typographic characters mapped to plain ASCII.
var charReplacer = strings.NewReplacer(
	"\u2018", "'",
	"\u2019", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u2013", "-",
	"\u2014", "-",
	"\u2026", "...",
	"\u00a0", " ",
	"\u200b", "",
	"\ufeff", "",
)

// UTF-8 punctuation that was decoded as Windows-1252 somewhere upstream.
// Longer sequences come first so the bare prefix is only a last resort.
var mojibakeReplacer = strings.NewReplacer(
	"\u00e2\u20ac\u2122", "'",
	"\u00e2\u20ac\u02dc", "'",
	"\u00e2\u20ac\u0153", `"`,
	"\u00e2\u20ac\u009d", `"`,
	"\u00e2\u20ac\u201c", "-",
	"\u00e2\u20ac\u201d", "-",
	"\u00e2\u20ac\u00a6", "...",
	"\u00e2\u20ac", `"`,
	"\u00c2\u00a0", " ",
)

var bulletReplacer = strings.NewReplacer(
	"\u2022", "-",
	"\u00b7", "-",
	"\u25cf", "-",
	"\u25cb", "-",
	"\u25aa", "-",
	"\u25ab", "-",
	"\u25e6", "-",
	"\u2023", "-",
	"\u2043", "-",
)

var (
	multiSpaces   = regexp.MustCompile(` {2,}`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// Normalise prepares text for segmentation. The result is NFC, uses ASCII
// punctuation and bullets, has no control characters other than newlines,
// has no leading or trailing blanks on any line and separates paragraphs
// with exactly one blank line.
func Normalise(text string) string {
	if text == "" {
		return ""
	}

	text = mojibakeReplacer.Replace(text)
	text = norm.NFC.String(text)
	text = charReplacer.Replace(text)
	text = bulletReplacer.Replace(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\t", " ")
	text = removeControl(text)
	text = multiSpaces.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = multiNewlines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

func removeControl(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == ' ' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}
