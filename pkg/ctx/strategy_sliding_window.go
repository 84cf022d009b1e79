package ctx

var _ CollectionBudgetStrategy[ChatMessage] = (*SlidingWindowStrategy)(nil)

// SlidingWindowStrategy keeps the most recent messages that fit within the token budget,
// never fewer than its minKeep trailing messages.
type SlidingWindowStrategy struct {
	minKeep int
}

func NewSlidingWindowStrategy(minKeep int) *SlidingWindowStrategy {
	return &SlidingWindowStrategy{minKeep: minKeep}
}

func (s *SlidingWindowStrategy) Name() string {
	return "sliding_window"
}

// ApplyToCollection items arrive in chronological order (oldest first) and are
// returned in the same order.
func (s *SlidingWindowStrategy) ApplyToCollection(items []ChatMessage, budgetTokens int) ([]ChatMessage, int) {
	result := TrimMessagesToTokenBudget(items, budgetTokens, s.minKeep)
	return result.Messages, result.EstimatedTokens
}
