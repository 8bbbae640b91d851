package config

import (
	"regexp"
	"strings"
)

var (
	stageIDSeparators = regexp.MustCompile(`[\s_]+`)
	stageIDInvalid    = regexp.MustCompile(`[^a-z0-9-]+`)
	stageIDDashes     = regexp.MustCompile(`-{2,}`)
)

// NormalizeStageID maps user-written stage keys ("Profile Analysis",
// "profile_analysis", "PROFILE-ANALYSIS") onto the canonical kebab-case ID.
// camelCase keys are split on case boundaries.
func NormalizeStageID(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			if prev >= 'a' && prev <= 'z' || prev >= '0' && prev <= '9' {
				b.WriteByte('-')
			}
		}
		b.WriteRune(r)
	}

	id := strings.ToLower(b.String())
	id = stageIDSeparators.ReplaceAllString(id, "-")
	id = stageIDInvalid.ReplaceAllString(id, "")
	id = stageIDDashes.ReplaceAllString(id, "-")
	return strings.Trim(id, "-")
}
