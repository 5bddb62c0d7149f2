package chunkers

import (
	"regexp"
	"strings"
)

var (
	whitespaceRuns = regexp.MustCompile(`\s+`)
	newlineRuns    = regexp.MustCompile(`\n{3,}`)
)

// normalize collapses whitespace runs to single spaces and trims the
// result. Fixed-size and sentence strategies chunk this form; the
// paragraph strategy applies it per paragraph after splitting on blank
// lines, so the blank-line structure survives the initial split.
func normalize(text string) string {
	text = whitespaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
