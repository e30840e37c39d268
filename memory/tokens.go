package memory

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens for MemoryContext budget enforcement
// (spec.md §3 estimated_tokens/total_tokens), grounded on the teacher's
// llm/tokenizer tiktoken-with-fallback pattern: a real cl100k_base
// encoder when available, a whitespace-based estimate otherwise (the
// encoder construction can fail without network access to fetch its
// BPE ranks file).
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter builds a TokenCounter. The encoder is loaded lazily on
// first use so constructing one never fails or blocks on I/O.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

func (t *TokenCounter) encoder() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			t.enc = enc
		}
	})
	return t.enc
}

// Count returns the token count of text, using the cl100k_base BPE
// encoder when it loaded successfully, falling back to a
// words*1.3-style estimate otherwise.
func (t *TokenCounter) Count(text string) int {
	if enc := t.encoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// estimateTokens approximates BPE token count from word count, the same
// ratio the teacher's estimator.go fallback uses.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	n := int(float64(words)*1.3) + 1
	return n
}
