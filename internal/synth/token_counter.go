package synth

import (
	"unicode/utf8"

	"github.com/kittclouds/notesynth/pkg/extract"
)

// EstimateTokens estimates token count using the ~4 chars/token heuristic.
// Good enough for budgeting. Not billing-accurate.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	// Round up: (len + 3) / 4
	return (len(text) + 3) / 4
}

// EstimateMessagesTokens estimates total tokens for a slice of messages.
func EstimateMessagesTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// BudgetMaterial keeps source material, in order, until maxTokens is spent.
// The file that crosses the limit is cut short; later files are dropped.
// maxTokens <= 0 means no limit. dropped counts files left out entirely.
func BudgetMaterial(material []extract.FileContents, maxTokens int) (kept []extract.FileContents, dropped int) {
	if maxTokens <= 0 {
		return material, 0
	}
	left := maxTokens
	for i, fc := range material {
		cost := EstimateTokens(formatFile(fc))
		if cost <= left {
			kept = append(kept, fc)
			left -= cost
			continue
		}
		overhead := EstimateTokens(formatFile(extract.FileContents{File: fc.File, Path: fc.Path, LastModified: fc.LastModified}))
		if room := (left - overhead) * 4; room > 0 {
			fc.Contents = truncate(fc.Contents, room)
			kept = append(kept, fc)
			i++
		}
		return kept, len(material) - i
	}
	return kept, 0
}

// truncate cuts s to at most n bytes without splitting a character.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
