package pipeline

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	budgetEncoding = "cl100k_base"
	clipMarker     = "\n\n[truncated]"
	// Used when the BPE tables cannot be loaded (offline first run).
	approxBytesPerToken = 4
)

type tokenCodec interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// Budget caps the size of text handed from one stage to the next. Scraped
// pages can be far larger than a model's context window.
type Budget struct {
	maxTokens int

	once  sync.Once
	load  func() (tokenCodec, error)
	codec tokenCodec
}

// NewBudget returns nil when maxTokens <= 0, which disables clipping.
func NewBudget(maxTokens int) *Budget {
	if maxTokens <= 0 {
		return nil
	}
	return &Budget{
		maxTokens: maxTokens,
		load: func() (tokenCodec, error) {
			return tiktoken.GetEncoding(budgetEncoding)
		},
	}
}

func (b *Budget) encoder() tokenCodec {
	b.once.Do(func() {
		codec, err := b.load()
		if err != nil {
			slog.Warn("token encoder unavailable, using byte estimate", "encoding", budgetEncoding, "error", err)
			return
		}
		b.codec = codec
	})
	return b.codec
}

// Count returns the token count of text (estimated without an encoder).
func (b *Budget) Count(text string) int {
	if enc := b.encoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + approxBytesPerToken - 1) / approxBytesPerToken
}

// Clip shortens text to the budget. The second result reports whether text
// was cut. A nil Budget never clips.
func (b *Budget) Clip(text string) (string, bool) {
	if b == nil || text == "" {
		return text, false
	}
	if enc := b.encoder(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= b.maxTokens {
			return text, false
		}
		return enc.Decode(tokens[:b.maxTokens]) + clipMarker, true
	}

	limit := b.maxTokens * approxBytesPerToken
	if len(text) <= limit {
		return text, false
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + clipMarker, true
}
