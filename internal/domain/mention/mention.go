// Package mention parses @colleague tokens out of chat messages.
package mention

import (
	"regexp"
	"strings"
	"unicode"
)

var mentionRe = regexp.MustCompile(`(?i)@([a-z0-9_-]+)`)

// Resolve returns the known colleague ids mentioned in text, lower-cased,
// in first-seen order, without duplicates and without exclude.
func Resolve(text string, known map[string]bool, exclude string) []string {
	exclude = strings.ToLower(exclude)
	seen := make(map[string]bool)
	var out []string
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		id := strings.ToLower(m[1])
		if !known[id] || id == exclude || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Partial is an unfinished @token under the caret. Offsets count runes.
type Partial struct {
	Query string `json:"query"`
	Start int    `json:"start"` // offset of '@'
	End   int    `json:"end"`   // caret offset
}

func isTokenRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

// Suggest detects whether caret sits right after an unfinished @token. The '@'
// must be at the start of text or follow whitespace.
func Suggest(text string, caret int) (Partial, bool) {
	r := []rune(text)
	if caret < 0 || caret > len(r) {
		return Partial{}, false
	}
	i := caret
	for i > 0 && isTokenRune(r[i-1]) {
		i--
	}
	if i == 0 || r[i-1] != '@' {
		return Partial{}, false
	}
	at := i - 1
	if at > 0 && !unicode.IsSpace(r[at-1]) {
		return Partial{}, false
	}
	return Partial{Query: strings.ToLower(string(r[i:caret])), Start: at, End: caret}, true
}

// Apply replaces exactly the partial token with "@id " and returns the new text
// and the caret offset right after the inserted space.
func Apply(text string, p Partial, id string) (string, int) {
	r := []rune(text)
	if p.Start < 0 || p.End > len(r) || p.Start > p.End {
		return text, len(r)
	}
	ins := []rune("@" + strings.ToLower(id) + " ")
	out := make([]rune, 0, len(r)+len(ins))
	out = append(out, r[:p.Start]...)
	out = append(out, ins...)
	out = append(out, r[p.End:]...)
	return string(out), p.Start + len(ins)
}

// Candidates filters ids by the partial query prefix, preserving order.
func Candidates(query string, ids []string, exclude string) []string {
	query = strings.ToLower(query)
	var out []string
	for _, id := range ids {
		if id == exclude {
			continue
		}
		if strings.HasPrefix(id, query) {
			out = append(out, id)
		}
	}
	return out
}
