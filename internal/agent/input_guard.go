package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// GuardAction controls what happens when stage input matches an injection
// pattern. Scraped profile and job pages flow into later prompts, so they are
// untrusted.
type GuardAction string

const (
	GuardOff   GuardAction = "off"
	GuardLog   GuardAction = "log"
	GuardWarn  GuardAction = "warn"
	GuardBlock GuardAction = "block"
)

// ErrInjectionBlocked is returned by Inspect in block mode.
var ErrInjectionBlocked = errors.New("input rejected: possible prompt injection")

type guardPattern struct {
	name    string
	pattern *regexp.Regexp
}

// InputGuard scans text for known prompt injection patterns.
type InputGuard struct {
	action   GuardAction
	patterns []guardPattern
}

// NewInputGuard creates a guard. Unknown actions fall back to warn.
func NewInputGuard(action GuardAction) *InputGuard {
	switch action {
	case GuardOff, GuardLog, GuardWarn, GuardBlock:
	default:
		action = GuardWarn
	}
	return &InputGuard{action: action, patterns: defaultGuardPatterns()}
}

// Scan returns the names of matched patterns.
func (g *InputGuard) Scan(text string) []string {
	if text == "" {
		return nil
	}
	var matches []string
	for _, gp := range g.patterns {
		if gp.pattern.MatchString(text) {
			matches = append(matches, gp.name)
		}
	}
	return matches
}

// Inspect scans text from source and applies the configured action.
func (g *InputGuard) Inspect(source, text string) error {
	if g == nil || g.action == GuardOff {
		return nil
	}
	matches := g.Scan(text)
	if len(matches) == 0 {
		return nil
	}
	attrs := []any{"source", source, "patterns", strings.Join(matches, ",")}
	switch g.action {
	case GuardLog:
		slog.Info("possible prompt injection in stage input", attrs...)
	case GuardBlock:
		slog.Warn("blocked stage input", attrs...)
		return fmt.Errorf("%s: %w (%s)", source, ErrInjectionBlocked, strings.Join(matches, ", "))
	default:
		slog.Warn("possible prompt injection in stage input", attrs...)
	}
	return nil
}

func defaultGuardPatterns() []guardPattern {
	return []guardPattern{
		{
			name:    "ignore_instructions",
			pattern: regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|rules?|prompts?|directives?)`),
		},
		{
			name:    "role_override",
			pattern: regexp.MustCompile(`(?i)(you are now|from now on you are|pretend (you are|to be)|act as if you are)\s+`),
		},
		{
			name:    "system_tags",
			pattern: regexp.MustCompile(`(?i)</?system>|\[SYSTEM\]|\[INST\]|<<SYS>>|<\|im_start\|>system`),
		},
		{
			name:    "instruction_injection",
			pattern: regexp.MustCompile(`(?i)(new instructions?:|override:|system prompt:|<\|system\|>)`),
		},
		{
			name:    "recruiter_bait",
			pattern: regexp.MustCompile(`(?i)(if you are an? (ai|llm|language model)|note to (ai|llm|chatgpt|gpt)s?:)`),
		},
		{
			name:    "null_bytes",
			pattern: regexp.MustCompile(`\x00`),
		},
	}
}
