package ctx

// BudgetStrategy controls how a single block of content is fitted to a token budget.
type BudgetStrategy interface {
	// Name returns a human-readable identifier for logging/debugging.
	Name() string

	// Apply takes raw content and a token budget, returns trimmed content
	// and the estimated tokens used.
	Apply(content string, budgetTokens int) (trimmed string, tokensUsed int)
}

// CollectionBudgetStrategy controls how an ordered collection is fitted to a token budget.
type CollectionBudgetStrategy[T any] interface {
	// Name returns a human-readable identifier for logging/debugging.
	Name() string

	// ApplyToCollection takes ordered items and a budget, returns the items
	// to keep and tokens used.
	ApplyToCollection(items []T, budgetTokens int) (kept []T, tokensUsed int)
}

const (
	// MinSystemPromptBudget is the floor for the system prompt ceiling,
	// applied even to models with tiny context windows.
	MinSystemPromptBudget = 4000

	// DefaultSystemPromptRatio is the share of the context window reserved
	// for the assembled tier prompt.
	DefaultSystemPromptRatio = 0.30

	// DefaultMessageRatio caps chat history as a share of the context window.
	DefaultMessageRatio = 0.60

	// DefaultResponseReserve is held back for the model's reply.
	DefaultResponseReserve = 8192
)

// BudgetConfig carries the tunable knobs of the budget derivation.
// Zero values select the package defaults.
type BudgetConfig struct {
	SystemPromptRatio float64
	MessageRatio      float64
	ResponseReserve   int
}

// normalized fills in defaults for unset or out-of-range values.
func (c BudgetConfig) normalized() BudgetConfig {
	if c.SystemPromptRatio <= 0 || c.SystemPromptRatio > 1.0 {
		c.SystemPromptRatio = DefaultSystemPromptRatio
	}
	if c.MessageRatio <= 0 || c.MessageRatio > 1.0 {
		c.MessageRatio = DefaultMessageRatio
	}
	if c.ResponseReserve <= 0 {
		c.ResponseReserve = DefaultResponseReserve
	}
	return c
}

// Budgets is the split of one model's context window.
type Budgets struct {
	ContextWindow   int
	SystemPrompt    int
	Messages        int
	ResponseReserve int
}

// SystemPromptBudget returns max(MinSystemPromptBudget, floor(contextWindow * ratio)).
func SystemPromptBudget(contextWindow int, ratio float64) int {
	budget := int(float64(contextWindow) * ratio)
	return max(MinSystemPromptBudget, budget)
}

// MessageTokenBudget returns the tighter of a flat ratio cap and whatever the
// window has left after the system prompt and response reserve. Never negative.
func MessageTokenBudget(contextWindow, systemPromptTokens, responseReserve int, messageRatio float64) int {
	ratioCap := int(float64(contextWindow) * messageRatio)
	remainder := contextWindow - systemPromptTokens - responseReserve
	return max(0, min(ratioCap, remainder))
}

// DeriveBudgets splits a context window. systemPromptTokens is the size of
// the prompt actually sent; pass 0 to reserve the full system prompt budget.
func DeriveBudgets(contextWindow, systemPromptTokens int, cfg BudgetConfig) Budgets {
	cfg = cfg.normalized()

	systemBudget := SystemPromptBudget(contextWindow, cfg.SystemPromptRatio)
	if systemPromptTokens <= 0 {
		systemPromptTokens = systemBudget
	}

	return Budgets{
		ContextWindow:   contextWindow,
		SystemPrompt:    systemBudget,
		Messages:        MessageTokenBudget(contextWindow, systemPromptTokens, cfg.ResponseReserve, cfg.MessageRatio),
		ResponseReserve: cfg.ResponseReserve,
	}
}
