package metrics

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator approximates completion token counts for usage metrics.
// When the BPE ranks cannot be loaded it falls back to a word count.
type TokenEstimator struct {
	enc *tiktoken.Tiktoken
}

func NewTokenEstimator(model string) *TokenEstimator {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return &TokenEstimator{}
	}
	return &TokenEstimator{enc: enc}
}

func (t *TokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	if t == nil || t.enc == nil {
		return len(strings.Fields(text))
	}
	return len(t.enc.Encode(text, nil, nil))
}
