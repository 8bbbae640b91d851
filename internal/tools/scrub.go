package tools

import (
	"regexp"
	"strings"
)

// Patterns for credentials that scraped pages or tool errors may echo back.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`),
	regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?token|token|secret|password|bearer|authorization)\s*[:=]\s*["']?\S{8,}["']?`),
}

const redactedPlaceholder = "[REDACTED]"

// Scrubber redacts known credential shapes plus the literal secret values it
// was built with.
type Scrubber struct {
	literals []string
}

// NewScrubber creates a scrubber. Secrets shorter than 8 characters are
// ignored to avoid mangling ordinary text.
func NewScrubber(secrets ...string) *Scrubber {
	s := &Scrubber{}
	for _, v := range secrets {
		if v = strings.TrimSpace(v); len(v) >= 8 {
			s.literals = append(s.literals, v)
		}
	}
	return s
}

// Scrub returns text with credentials replaced by [REDACTED].
func (s *Scrubber) Scrub(text string) string {
	for _, lit := range s.literals {
		text = strings.ReplaceAll(text, lit, redactedPlaceholder)
	}
	return ScrubCredentials(text)
}

// ScrubCredentials replaces known credential patterns in text with [REDACTED].
func ScrubCredentials(text string) string {
	for _, pat := range credentialPatterns {
		text = pat.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}
