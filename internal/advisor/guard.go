package advisor

import "strings"

// BlockedMessage replaces user input that looks like a prompt injection
// attempt.
const BlockedMessage = "[Message blocked by security filter]"

var injectionPatterns = []string{
	"ignore previous", "ignore all", "disregard", "forget instructions",
	"new instructions", "override", "system prompt", "act as", "you are now",
	"jailbreak", "dan mode", "developer mode",
}

// SanitizeText strips NUL bytes, trims whitespace and truncates to maxLen.
func SanitizeText(text string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
	if len(clean) > maxLen {
		clean = clean[:maxLen]
	}
	return clean
}

// GuardPromptInjection returns BlockedMessage when the text contains a known
// injection phrase, otherwise the text unchanged. The check is a coarse
// blocklist; the models' own safety layer is the real defense.
func GuardPromptInjection(text string) string {
	lowered := strings.ToLower(text)
	for _, pattern := range injectionPatterns {
		if strings.Contains(lowered, pattern) {
			return BlockedMessage
		}
	}
	return text
}
