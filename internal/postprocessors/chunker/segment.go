package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// unit is the smallest piece of text the packer moves around.
// Chunks never split a unit.
type unit struct {
	text   string
	offset int    // byte offset in the normalised text
	sep    string // joins the unit to the one before it
	runes  int

	// level is the Markdown heading level, zero for body text.
	level int
}

var headingLine = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*$`)

// Words that end with a period without ending a sentence.
var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true,
	"st": true, "vs": true, "etc": true, "e.g": true, "i.e": true,
	"cf": true, "no": true, "nos": true, "approx": true, "dept": true,
	"fig": true, "jan": true, "feb": true, "mar": true, "apr": true,
	"jun": true, "jul": true, "aug": true, "sep": true, "sept": true,
	"oct": true, "nov": true, "dec": true, "mon": true, "tue": true,
	"wed": true, "thu": true, "fri": true, "sat": true, "sun": true,
	"inc": true, "ltd": true, "co": true, "ph.d": true, "msc": true,
	"bsc": true, "ba": true, "ma": true, "hons": true,
}

// segment splits normalised text into units: paragraphs, then lines, then
// sentences. Markdown headings are kept as units of their own.
func segment(text string) []unit {
	var units []unit

	paraStart := 0
	for paraStart < len(text) {
		paraEnd := strings.Index(text[paraStart:], "\n\n")
		if paraEnd < 0 {
			paraEnd = len(text)
		} else {
			paraEnd += paraStart
		}

		lineStart := paraStart
		firstLine := true
		for lineStart < paraEnd {
			lineEnd := strings.IndexByte(text[lineStart:paraEnd], '\n')
			if lineEnd < 0 {
				lineEnd = paraEnd
			} else {
				lineEnd += lineStart
			}

			sep := "\n"
			if firstLine {
				sep = "\n\n"
			}
			units = appendLine(units, text[lineStart:lineEnd], lineStart, sep)

			firstLine = false
			lineStart = lineEnd + 1
		}

		paraStart = paraEnd + 2
	}

	if len(units) > 0 {
		units[0].sep = ""
	}
	return units
}

func appendLine(units []unit, line string, offset int, sep string) []unit {
	if line == "" {
		return units
	}

	if m := headingLine.FindStringSubmatchIndex(line); m != nil {
		title := line[m[4]:m[5]]
		return append(units, unit{
			text:   title,
			offset: offset + m[4],
			sep:    sep,
			runes:  utf8.RuneCountInString(title),
			level:  m[3] - m[2],
		})
	}

	for _, span := range splitSentences(line) {
		s := line[span[0]:span[1]]
		units = append(units, unit{
			text:   s,
			offset: offset + span[0],
			sep:    sep,
			runes:  utf8.RuneCountInString(s),
		})
		sep = " "
	}
	return units
}

// splitSentences returns [start, end) byte spans of the sentences in line.
// A sentence ends at '.', '!' or '?' (plus closing quotes or brackets)
// followed by a space, unless the period ends a known abbreviation or an
// initial, or the next word starts in lower case.
func splitSentences(line string) [][2]int {
	var spans [][2]int
	start := 0

	for i := 0; i < len(line); i++ {
		c := line[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}

		end := i + 1
		for end < len(line) && strings.IndexByte(`"')]`, line[end]) >= 0 {
			end++
		}
		if end >= len(line) || line[end] != ' ' {
			continue
		}

		next, _ := utf8.DecodeRuneInString(line[end+1:])
		if unicode.IsLower(next) {
			continue
		}
		if c == '.' && isAbbreviation(line[start:i]) {
			continue
		}

		spans = append(spans, [2]int{start, end})
		start = end + 1
		i = end
	}

	if start < len(line) {
		spans = append(spans, [2]int{start, len(line)})
	}
	return spans
}

// isAbbreviation reports whether the word before a period is an
// abbreviation or a single-letter initial.
func isAbbreviation(before string) bool {
	word := before
	if idx := strings.LastIndexAny(before, " (\"'"); idx >= 0 {
		word = before[idx+1:]
	}
	if word == "" {
		return false
	}
	if utf8.RuneCountInString(word) == 1 {
		r, _ := utf8.DecodeRuneInString(word)
		return unicode.IsLetter(r)
	}
	return abbreviations[strings.ToLower(word)]
}
