package ctx

import (
	"github.com/google/uuid"
	"github.com/tamias-ai/tamias/pkg/events"
	"github.com/tamias-ai/tamias/pkg/logging"
)

// AllocatorOptions configures an Allocator.
type AllocatorOptions struct {
	Model         string
	ContextWindow int // overrides the registry for Model when > 0
	Budget        BudgetConfig

	// MinKeep is how many trailing messages FitHistory always keeps. Unlike
	// Budget, 0 is meaningful and disables the guarantee; negative selects
	// DefaultMinKeep.
	MinKeep int
}

// Allocation is the outcome of fitting one LLM call into its context window.
type Allocation struct {
	ID      string
	Model   string
	Budgets Budgets
	System  AssemblyResult
	History TrimResult
}

// Allocator derives per-model ceilings and applies the tier assembler and
// message trimmer to them. It keeps no per-call state and is safe for
// concurrent use.
type Allocator struct {
	opts      AllocatorOptions
	history   CollectionBudgetStrategy[ChatMessage]
	logger    logging.Logger
	publisher events.Publisher
}

// NewAllocator creates an allocator. publisher may be nil.
func NewAllocator(opts AllocatorOptions, logger logging.Logger, publisher events.Publisher) *Allocator {
	if logger == nil {
		logger = logging.NewComponentLogger("context")
	}
	opts.Budget = opts.Budget.normalized()
	if opts.MinKeep < 0 {
		opts.MinKeep = DefaultMinKeep
	}
	return &Allocator{
		opts:      opts,
		history:   NewSlidingWindowStrategy(opts.MinKeep),
		logger:    logger,
		publisher: publisher,
	}
}

// Options returns the effective options after defaults were applied.
func (a *Allocator) Options() AllocatorOptions {
	return a.opts
}

// ContextWindow resolves the window for model; empty selects the configured model.
func (a *Allocator) ContextWindow(model string) int {
	if model == "" || model == a.opts.Model {
		return ContextWindowFor(a.opts.ContextWindow, a.opts.Model)
	}
	return LookupContextWindow(model)
}

// Budgets splits the model's window. systemPromptTokens <= 0 reserves the
// whole system prompt budget.
func (a *Allocator) Budgets(model string, systemPromptTokens int) Budgets {
	return DeriveBudgets(a.ContextWindow(model), systemPromptTokens, a.opts.Budget)
}

// BuildSystemPrompt assembles tiers under the model's system prompt budget.
func (a *Allocator) BuildSystemPrompt(model string, tiers []ContentTier) AssemblyResult {
	return a.buildSystemPrompt(uuid.NewString(), a.resolveModel(model), tiers)
}

// FitHistory trims messages to what the window leaves after a system prompt
// of systemPromptTokens and the response reserve.
func (a *Allocator) FitHistory(model string, systemPromptTokens int, messages []ChatMessage) TrimResult {
	model = a.resolveModel(model)
	return a.fitHistory(uuid.NewString(), model, a.Budgets(model, systemPromptTokens), messages)
}

// Allocate runs both allocators for one call. The message budget is derived
// from the size of the prompt actually assembled, not from its ceiling.
func (a *Allocator) Allocate(model string, tiers []ContentTier, messages []ChatMessage) Allocation {
	id := uuid.NewString()
	model = a.resolveModel(model)

	system := a.buildSystemPrompt(id, model, tiers)
	budgets := a.Budgets(model, system.EstimatedTokens)
	history := a.fitHistory(id, model, budgets, messages)

	return Allocation{
		ID:      id,
		Model:   model,
		Budgets: budgets,
		System:  system,
		History: history,
	}
}

func (a *Allocator) resolveModel(model string) string {
	if model == "" {
		return a.opts.Model
	}
	return model
}

func (a *Allocator) buildSystemPrompt(id, model string, tiers []ContentTier) AssemblyResult {
	maxTokens := SystemPromptBudget(a.ContextWindow(model), a.opts.Budget.SystemPromptRatio)
	result := AssembleTiers(tiers, maxTokens)

	logger := a.logger.With("allocation_id", id, "model", model)
	logger.Debug(FormatDebug(result), "max_tokens", maxTokens)

	if result.WasTrimmed {
		events.PublishEvent(a.publisher, events.ContextTrimmedEvent{
			AllocationID:    id,
			Model:           model,
			EstimatedTokens: result.EstimatedTokens,
			MaxTokens:       maxTokens,
			TrimmedTiers:    trimmedTierNames(result),
		})
	}

	if result.OverBudget() {
		logger.Warn("system prompt exceeds budget after trimming",
			"estimated_tokens", result.EstimatedTokens,
			"max_tokens", maxTokens)
		events.PublishEvent(a.publisher, events.ContextOverBudgetEvent{
			AllocationID:    id,
			Model:           model,
			EstimatedTokens: result.EstimatedTokens,
			MaxTokens:       maxTokens,
		})
	}

	return result
}

func (a *Allocator) fitHistory(id, model string, budgets Budgets, messages []ChatMessage) TrimResult {
	kept, used := a.history.ApplyToCollection(messages, budgets.Messages)
	result := TrimResult{
		Messages:        kept,
		Dropped:         len(messages) - len(kept),
		EstimatedTokens: used,
	}

	if result.Dropped > 0 {
		a.logger.Debug("trimmed chat history",
			"allocation_id", id,
			"model", model,
			"strategy", a.history.Name(),
			"kept", len(result.Messages),
			"dropped", result.Dropped,
			"estimated_tokens", result.EstimatedTokens,
			"max_tokens", budgets.Messages)
		events.PublishEvent(a.publisher, events.HistoryTrimmedEvent{
			AllocationID:    id,
			Model:           model,
			Kept:            len(result.Messages),
			Dropped:         result.Dropped,
			EstimatedTokens: result.EstimatedTokens,
			MaxTokens:       budgets.Messages,
		})
	}

	return result
}

func trimmedTierNames(result AssemblyResult) []string {
	var names []string
	for _, tier := range result.Tiers {
		if tier.Trimmed {
			names = append(names, tier.Name)
		}
	}
	return names
}
