package llm

import (
	"strings"
	"unicode/utf8"
)

// DefaultSystemPrompt is used when the configuration leaves system_prompt empty.
const DefaultSystemPrompt = `You summarize video transcripts.
Write a concise markdown summary with a one-paragraph overview followed by a
bulleted list of the key points in the order they appear. Answer in the
language of the transcript. Do not invent content that is not in the transcript.`

const textPlaceholder = "{text}"

// BuildUserPrompt renders the user message. A template containing {text} has
// the transcript substituted in place; any other non-empty template is
// prepended. Transcripts longer than maxChars runes are truncated.
func BuildUserPrompt(template, title, transcript string, maxChars int) string {
	transcript = Truncate(strings.TrimSpace(transcript), maxChars)
	body := transcript
	if title = strings.TrimSpace(title); title != "" {
		body = "Title: " + title + "\n\n" + transcript
	}
	template = strings.TrimSpace(template)
	switch {
	case template == "":
		return "Summarize the following transcript.\n\n" + body
	case strings.Contains(template, textPlaceholder):
		return strings.ReplaceAll(template, textPlaceholder, body)
	default:
		return template + "\n\n" + body
	}
}

// Truncate cuts text to at most maxChars runes. Zero or negative disables it.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}
