package citation

import (
	"regexp"
	"strings"
)

var (
	// provider inline markers such as 【4:0†source】
	markerRe     = regexp.MustCompile(`【[^】]*】`)
	sourceLineRe = regexp.MustCompile(`(?im)^[ \t]*sources?[ \t]*:.*$`)
	newlinesRe   = regexp.MustCompile(`\n{3,}`)
)

// CleanAnswer removes provider citation markers and "Source:" lines, which are
// redundant with structured citations, and collapses 3+ newlines to 2.
func CleanAnswer(text string) string {
	text = markerRe.ReplaceAllString(text, "")
	text = sourceLineRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = newlinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
