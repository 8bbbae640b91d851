package agent

import (
	"fmt"
	"unicode/utf8"

	"github.com/nextlevelbuilder/jobscout/internal/providers"
)

const charsPerTokenEstimate = 4

// PruningSettings controls how old tool results are shrunk once a stage's
// conversation grows past a share of the model's context window. Scraped
// pages are the usual culprit.
type PruningSettings struct {
	KeepLastAssistants   int     // tool results after the Nth-from-last assistant turn are kept
	SoftTrimRatio        float64 // start soft trimming at this share of the window
	HardClearRatio       float64 // start clearing at this share of the window
	MinPrunableToolChars int
	SoftTrimMaxChars     int
	SoftTrimHeadChars    int
	SoftTrimTailChars    int
	HardClearPlaceholder string
}

func DefaultPruningSettings() PruningSettings {
	return PruningSettings{
		KeepLastAssistants:   2,
		SoftTrimRatio:        0.3,
		HardClearRatio:       0.5,
		MinPrunableToolChars: 50000,
		SoftTrimMaxChars:     4000,
		SoftTrimHeadChars:    1500,
		SoftTrimTailChars:    1500,
		HardClearPlaceholder: "[Old tool result content cleared]",
	}
}

// pruneToolResults trims old tool results to reduce context window usage.
//
// Two passes:
//  1. Soft trim: keep head + tail of long tool results, drop the middle.
//  2. Hard clear: replace whole tool results with a placeholder.
//
// Returns a new slice if anything changed, otherwise msgs.
func pruneToolResults(msgs []providers.Message, contextWindowTokens int, s PruningSettings) []providers.Message {
	if contextWindowTokens <= 0 || len(msgs) == 0 {
		return msgs
	}
	charWindow := contextWindowTokens * charsPerTokenEstimate

	cutoffIndex := findAssistantCutoff(msgs, s.KeepLastAssistants)
	if cutoffIndex < 0 {
		return msgs
	}

	totalChars := 0
	for _, m := range msgs {
		totalChars += estimateMessageChars(m)
	}
	ratio := float64(totalChars) / float64(charWindow)
	if ratio < s.SoftTrimRatio {
		return msgs
	}

	var prunable []int
	for i := 0; i < cutoffIndex; i++ {
		if msgs[i].Role == providers.RoleTool && msgs[i].Content != "" {
			prunable = append(prunable, i)
		}
	}
	if len(prunable) == 0 {
		return msgs
	}

	// Pass 1: soft trim.
	var result []providers.Message
	for _, idx := range prunable {
		msg := msgs[idx]
		msgChars := estimateMessageChars(msg)
		if msgChars <= s.SoftTrimMaxChars {
			continue
		}
		if result == nil {
			result = make([]providers.Message, len(msgs))
			copy(result, msgs)
		}

		trimmed := fmt.Sprintf("%s\n...\n%s\n\n[Tool result trimmed: kept first %d chars and last %d chars of %d chars.]",
			takeHead(msg.Content, s.SoftTrimHeadChars), takeTail(msg.Content, s.SoftTrimTailChars),
			s.SoftTrimHeadChars, s.SoftTrimTailChars, msgChars)
		result[idx] = providers.Message{Role: msg.Role, Content: trimmed, ToolCallID: msg.ToolCallID}
		totalChars += utf8.RuneCountInString(trimmed) - msgChars
	}

	output := msgs
	if result != nil {
		output = result
	}

	ratio = float64(totalChars) / float64(charWindow)
	if ratio < s.HardClearRatio {
		return output
	}
	prunableChars := 0
	for _, idx := range prunable {
		prunableChars += estimateMessageChars(output[idx])
	}
	if prunableChars < s.MinPrunableToolChars {
		return output
	}

	// Pass 2: hard clear, oldest first, until under the ratio.
	if result == nil {
		result = make([]providers.Message, len(msgs))
		copy(result, msgs)
		output = result
	}
	for _, idx := range prunable {
		if ratio < s.HardClearRatio {
			break
		}
		msg := output[idx]
		before := estimateMessageChars(msg)
		output[idx] = providers.Message{Role: msg.Role, Content: s.HardClearPlaceholder, ToolCallID: msg.ToolCallID}
		totalChars += utf8.RuneCountInString(s.HardClearPlaceholder) - before
		ratio = float64(totalChars) / float64(charWindow)
	}
	return output
}

// findAssistantCutoff returns the index of the Nth-from-last assistant
// message, or -1 if there are fewer than N.
func findAssistantCutoff(msgs []providers.Message, keepLast int) int {
	if keepLast <= 0 {
		return len(msgs)
	}
	remaining := keepLast
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == providers.RoleAssistant {
			remaining--
			if remaining == 0 {
				return i
			}
		}
	}
	return -1
}

func estimateMessageChars(m providers.Message) int {
	return utf8.RuneCountInString(m.Content)
}

func takeHead(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func takeTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
