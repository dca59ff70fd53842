package citation

import (
	"regexp"

	"colleague-chat/internal/domain/model"
)

// Extractor produces advisory citations from a plain answer body.
type Extractor interface {
	Extract(answer string) []model.Citation
}

var (
	bronRe = regexp.MustCompile(`(?i)bron\s*:\s*([^\n,;]+?\.(?:pdf|txt|json))`)
	bareRe = regexp.MustCompile(`\b([A-Z][A-Za-z0-9_\-]*\.pdf)\b`)
)

// TextMiner is the best-effort fallback used only when the provider returned
// no structured citations.
type TextMiner struct {
	linker *Linker
}

func NewTextMiner(linker *Linker) *TextMiner {
	return &TextMiner{linker: linker}
}

var _ Extractor = (*TextMiner)(nil)

func (m *TextMiner) Extract(answer string) []model.Citation {
	var names []string
	for _, sm := range bronRe.FindAllStringSubmatch(answer, -1) {
		names = append(names, sm[1])
	}
	for _, sm := range bareRe.FindAllStringSubmatch(answer, -1) {
		names = append(names, sm[1])
	}

	seen := make(map[string]bool, len(names))
	var out []model.Citation
	for _, raw := range names {
		name := NormalizeName(raw, len(out))
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, model.Citation{FileID: name, Filename: name, Link: m.linker.Link(name)})
	}
	return out
}
