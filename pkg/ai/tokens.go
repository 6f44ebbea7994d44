package ai

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens counts text with the o200k_base encoding. If the encoding
// cannot be loaded it falls back to one token per four runes.
func EstimateTokens(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("o200k_base")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return (utf8.RuneCountInString(text) + 3) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateMessageTokens sums EstimateTokens over messages and system prompts.
func EstimateMessageTokens(messages []ChatMessage, systemPrompts ...string) int {
	n := 0
	for _, sp := range systemPrompts {
		n += EstimateTokens(sp)
	}
	for _, m := range messages {
		n += EstimateTokens(m.Message)
	}
	return n
}
