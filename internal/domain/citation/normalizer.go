// Package citation turns provider citations and answer text into canonical
// document names and links.
package citation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"colleague-chat/internal/domain/model"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	txtSuffixRe   = regexp.MustCompile(`(?i)\.txt$`)
	underscoresRe = regexp.MustCompile(`_{2,}`)
	pdfPaddingRe  = regexp.MustCompile(`(?i)_+(\.pdf)$`)
)

// PlaceholderPrefix labels citations that carry no filename.
const PlaceholderPrefix = "Bron "

// Normalize maps a raw filename to its canonical storage name. A nil or blank
// name yields the positional placeholder "Bron N". Normalize is idempotent.
func Normalize(raw *string, index int) string {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return Placeholder(index)
	}
	name := strings.TrimSpace(*raw)
	name = whitespaceRe.ReplaceAllString(name, "_")
	name = txtSuffixRe.ReplaceAllString(name, ".pdf")
	name = underscoresRe.ReplaceAllString(name, "_")
	name = pdfPaddingRe.ReplaceAllString(name, "$1")
	return name
}

// NormalizeName is Normalize for a present filename.
func NormalizeName(name string, index int) string {
	return Normalize(&name, index)
}

func Placeholder(index int) string {
	return fmt.Sprintf("%s%d", PlaceholderPrefix, index+1)
}

// IsPlaceholder reports names that must never be used as a storage key.
func IsPlaceholder(name string) bool {
	if !strings.HasPrefix(name, PlaceholderPrefix) {
		return false
	}
	rest := strings.TrimPrefix(name, PlaceholderPrefix)
	if rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Linker builds retrievable links to documents in object storage.
type Linker struct {
	base   string
	bucket string
}

// NewLinker returns a linker for "<base>/<bucket>/<key>". An empty base disables links.
func NewLinker(publicBaseURL, bucket string) *Linker {
	return &Linker{base: strings.TrimRight(publicBaseURL, "/"), bucket: strings.Trim(bucket, "/")}
}

func (l *Linker) Link(name string) string {
	if l == nil || l.base == "" || name == "" || IsPlaceholder(name) {
		return ""
	}
	return l.base + "/" + l.bucket + "/" + url.PathEscape(name)
}

// Decorate normalizes each citation's filename in place order and attaches links.
func (l *Linker) Decorate(cs []model.Citation) []model.Citation {
	out := make([]model.Citation, len(cs))
	for i, c := range cs {
		var raw *string
		if c.Filename != "" {
			raw = &c.Filename
		}
		c.Filename = Normalize(raw, i)
		c.Link = l.Link(c.Filename)
		out[i] = c
	}
	return out
}

// Dedupe keeps the first citation per file id.
func Dedupe(cs []model.Citation) []model.Citation {
	seen := make(map[string]bool, len(cs))
	out := make([]model.Citation, 0, len(cs))
	for _, c := range cs {
		if seen[c.FileID] {
			continue
		}
		seen[c.FileID] = true
		out = append(out, c)
	}
	return out
}
