package indexer

import (
	"regexp"
	"strings"
)

// maxInputRunes caps text sent to the embedding provider. 8000 runes is
// roughly 2000 tokens, well under every supported model's input limit.
const maxInputRunes = 8000

var (
	markupRegex     = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// cleanText prepares a raw narrative for embedding: markup stripped,
// whitespace collapsed, length capped. Returns "" for content-free input.
func cleanText(text string) string {
	text = markupRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > maxInputRunes {
		text = string(runes[:maxInputRunes])
	}
	return text
}
