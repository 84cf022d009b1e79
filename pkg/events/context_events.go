package events

// ContextTrimmedEvent is published when the tier assembler had to shrink or
// drop tiers to approach its ceiling.
type ContextTrimmedEvent struct {
	AllocationID    string
	Model           string
	EstimatedTokens int
	MaxTokens       int
	TrimmedTiers    []string
}

func (e ContextTrimmedEvent) Topic() string {
	return "context.trimmed"
}

// ContextOverBudgetEvent is published when non-trimmable tiers alone exceed
// the system prompt ceiling. Advisory only: the prompt is still returned.
type ContextOverBudgetEvent struct {
	AllocationID    string
	Model           string
	EstimatedTokens int
	MaxTokens       int
}

func (e ContextOverBudgetEvent) Topic() string {
	return "context.over_budget"
}

// HistoryTrimmedEvent is published when older chat messages were dropped.
type HistoryTrimmedEvent struct {
	AllocationID    string
	Model           string
	Kept            int
	Dropped         int
	EstimatedTokens int
	MaxTokens       int
}

func (e HistoryTrimmedEvent) Topic() string {
	return "context.history_trimmed"
}
