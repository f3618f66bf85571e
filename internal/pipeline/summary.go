package pipeline

import (
	"fmt"
	"strings"
)

// summaryMaxChars bounds the stored summary so the generation context stays
// small even for verbose pages.
const summaryMaxChars = 200

// DeriveSummary extracts a short summary from an explanation body: the first
// non-empty, non-heading lines up to the character bound, labeled with the
// page number. Returns an empty string for an empty body.
func DeriveSummary(body string, page int) string {
	var parts []string
	var total int
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts = append(parts, line)
		total += len([]rune(line))
		if total > summaryMaxChars {
			break
		}
	}
	joined := strings.Join(parts, " ")
	if joined == "" {
		return ""
	}
	runes := []rune(joined)
	if len(runes) > summaryMaxChars {
		runes = runes[:summaryMaxChars]
	}
	return fmt.Sprintf("[page %d] %s", page, string(runes))
}
