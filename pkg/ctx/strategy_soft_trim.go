package ctx

import "fmt"

var _ BudgetStrategy = (*SoftTrimStrategy)(nil)

// SoftTrimStrategy preserves the head and tail of content, dropping the middle.
// Used to derive a tier's fallback content: persona and memory files tend to
// carry their most important lines at the start and the most recent at the end.
type SoftTrimStrategy struct {
	headChars int
	tailChars int
}

// NewSoftTrimStrategy creates a new SoftTrim strategy.
// headChars and tailChars control how many characters to keep from each end.
func NewSoftTrimStrategy(headChars, tailChars int) *SoftTrimStrategy {
	return &SoftTrimStrategy{
		headChars: max(headChars, 0),
		tailChars: max(tailChars, 0),
	}
}

func (s *SoftTrimStrategy) Name() string {
	return "soft_trim"
}

func (s *SoftTrimStrategy) Apply(content string, budgetTokens int) (string, int) {
	if budgetTokens <= 0 {
		return "", 0
	}

	tokens := EstimateTokens(content)
	if tokens <= budgetTokens {
		return content, tokens
	}

	runes := []rune(content)
	if len(runes) <= s.headChars+s.tailChars {
		return hardCap(runes, budgetTokens)
	}

	head := string(runes[:s.headChars])
	tail := string(runes[len(runes)-s.tailChars:])
	omitted := string(runes[s.headChars : len(runes)-s.tailChars])

	trimmed := fmt.Sprintf("%s\n\n... [%d characters / ~%d tokens omitted] ...\n\n%s",
		head, len(runes)-s.headChars-s.tailChars, EstimateTokens(omitted), tail)

	resultTokens := EstimateTokens(trimmed)
	if resultTokens > budgetTokens {
		return hardCap([]rune(trimmed), budgetTokens)
	}

	return trimmed, resultTokens
}

// hardCap cuts runes to the longest prefix whose estimate fits budgetTokens.
func hardCap(runes []rune, budgetTokens int) (string, int) {
	maxChars := budgetTokens * 7 / 2
	if maxChars >= len(runes) {
		s := string(runes)
		return s, EstimateTokens(s)
	}
	capped := string(runes[:maxChars])
	return capped, EstimateTokens(capped)
}
