package conversation

import (
	"regexp"
	"strings"
)

// an enumerator ("12.") or a period ending a sentence
var replyBreaks = regexp.MustCompile(`\d+\.|\.(?:\s+|$)`)

// FormatAssistantReply puts each "N." enumerator on its own line and a blank line after each
// sentence, then trims the result.
func FormatAssistantReply(s string) string {
	out := replyBreaks.ReplaceAllStringFunc(s, func(m string) string {
		if m[0] == '.' {
			return ".\n\n"
		}
		return "\n" + m
	})
	return strings.TrimSpace(out)
}
