package judge

import (
	"strings"
	"unicode/utf8"
)

// maxPromptContent caps the chunk text sent to the model, in runes.
const maxPromptContent = 2000

const qualityPrompt = `You are a text quality reviewer. Rate the following passage for use in a retrieval knowledge base.

Criteria:
1. Completeness: the passage expresses whole thoughts
2. Coherence: the text reads fluently and logically
3. Information value: the passage carries meaningful content
4. Noise: garbled characters, stray symbols, extraction debris

Respond with ONLY a JSON object of the form:
{"quality": "good|fair|poor", "confidence": 0.0-1.0, "reason": "short explanation"}`

// BuildPrompt renders the rating prompt for one request.
func BuildPrompt(req Request) string {
	content := req.Content
	if utf8.RuneCountInString(content) > maxPromptContent {
		content = string([]rune(content)[:maxPromptContent]) + "..."
	}

	var sb strings.Builder
	sb.WriteString(qualityPrompt)
	sb.WriteString("\n\n")
	if req.Context != "" {
		sb.WriteString("Source: ")
		sb.WriteString(req.Context)
		sb.WriteString("\n")
	}
	sb.WriteString("---\n")
	sb.WriteString(content)
	sb.WriteString("\n---")
	return sb.String()
}
