package openai

import (
	"regexp"
	"strings"
)

// reasoning models wrap their chain of thought in think tags
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// cleanCompletion strips reasoning blocks and a surrounding code fence, and
// trims whitespace.
func cleanCompletion(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " \t") {
			// drop a language tag such as ```markdown
			s = s[nl+1:]
		}
	}
	return strings.TrimSpace(s)
}
