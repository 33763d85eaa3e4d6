package chunker

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter measures text in tokens. Implementations must be monotonic:
// appending words never lowers the count, and a non-empty word counts as at
// least one token.
type TokenCounter interface {
	Count(text string) int
}

// WordCounter counts whitespace-separated words.
type WordCounter struct{}

func (WordCounter) Count(text string) int { return len(strings.Fields(text)) }

// EstimateCounter approximates BPE tokens from the word count.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int { return EstimateTokens(text) }

// EstimateTokens gives a rough token count from the number of words.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	// Roughly 0.75 words per token for English text.
	tokens := int(float64(words) * 1.33)
	if tokens < 1 && words > 0 {
		tokens = 1
	}
	return tokens
}

// TiktokenCounter counts tokens with a tiktoken BPE codec.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTiktoken returns a counter for the given model, falling back to cl100k_base
// when the model is unknown.
func NewTiktoken(model string) (*TiktokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("load cl100k_base: %w", err)
		}
	}
	return &TiktokenCounter{codec: codec}, nil
}

func (t *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return EstimateTokens(text)
	}
	return len(ids)
}

// CounterFor resolves a counter by name: "words" (default), "estimate", or
// "tiktoken[:model]".
func CounterFor(name string) (TokenCounter, error) {
	switch {
	case name == "" || name == "words":
		return WordCounter{}, nil
	case name == "estimate":
		return EstimateCounter{}, nil
	case name == "tiktoken":
		return NewTiktoken("")
	case strings.HasPrefix(name, "tiktoken:"):
		return NewTiktoken(strings.TrimPrefix(name, "tiktoken:"))
	}
	return nil, fmt.Errorf("unknown token counter %q", name)
}
