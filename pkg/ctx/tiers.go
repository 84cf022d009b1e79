package ctx

import (
	"sort"
	"strings"
)

// TierSeparator joins tier contents in the assembled prompt.
const TierSeparator = "\n\n---\n\n"

// ContentTier is a named, prioritized block of prompt material.
// Lower Priority is more important: assembled first, trimmed last.
type ContentTier struct {
	Name     string
	Content  string
	Priority int

	// Trimmable tiers may be shrunk to MinContent or dropped when over budget.
	// Non-trimmable content is always emitted verbatim, even past the budget.
	Trimmable bool

	// MinContent replaces Content when the tier has to shrink. Empty means drop.
	MinContent string
}

// WithFallback returns a copy of the tier whose MinContent is produced by the
// given strategy, fitted to budgetTokens. The receiver is not modified.
func (t ContentTier) WithFallback(strategy BudgetStrategy, budgetTokens int) ContentTier {
	fallback, _ := strategy.Apply(t.Content, budgetTokens)
	t.MinContent = fallback
	return t
}

// TierReport describes how one tier ended up in an assembly.
type TierReport struct {
	Name            string
	EstimatedTokens int
	Trimmed         bool
}

// AssemblyResult is the output of AssembleTiers.
type AssemblyResult struct {
	Prompt          string
	EstimatedTokens int
	MaxTokens       int
	Tiers           []TierReport // importance order
	WasTrimmed      bool
}

// OverBudget reports whether the assembly still exceeds the ceiling it was
// given. This happens when non-trimmable tiers alone do not fit.
func (r AssemblyResult) OverBudget() bool {
	return r.EstimatedTokens > r.MaxTokens
}

// effectiveTier is the allocator's private view of a tier. Trimming rewrites
// these records, never the caller's ContentTier values.
type effectiveTier struct {
	tier    ContentTier
	content string
	tokens  int
	trimmed bool
}

// AssembleTiers joins tiers in priority order and, when the estimate exceeds
// maxTokens, shrinks or drops trimmable tiers from least to most important
// until the deficit is covered or no trimmable tier is left. Best effort: the
// result may still exceed maxTokens.
func AssembleTiers(tiers []ContentTier, maxTokens int) AssemblyResult {
	assembly := assemblyOrder(tiers)

	total := 0
	for _, et := range assembly {
		total += et.tokens
	}
	if total <= maxTokens {
		return buildResult(assembly, maxTokens, false)
	}

	deficit := total - maxTokens
	for _, idx := range evictionOrder(assembly) {
		if deficit <= 0 {
			break
		}
		et := &assembly[idx]
		if !et.tier.Trimmable {
			continue
		}

		if et.tier.MinContent != "" {
			minTokens := tierTokens(et.tier.MinContent)
			if minTokens < et.tokens {
				deficit -= et.tokens - minTokens
				et.content = et.tier.MinContent
				et.tokens = minTokens
				et.trimmed = true
				continue
			}
		}

		// No usable fallback: drop the tier entirely
		deficit -= et.tokens
		et.content = ""
		et.tokens = 0
		et.trimmed = true
	}

	return buildResult(assembly, maxTokens, true)
}

// assemblyOrder copies tiers into effective records sorted ascending by
// priority. Ties keep their input order.
func assemblyOrder(tiers []ContentTier) []effectiveTier {
	assembly := make([]effectiveTier, len(tiers))
	for i, t := range tiers {
		assembly[i] = effectiveTier{
			tier:    t,
			content: t.Content,
			tokens:  tierTokens(t.Content),
		}
	}
	sort.SliceStable(assembly, func(i, j int) bool {
		return assembly[i].tier.Priority < assembly[j].tier.Priority
	})
	return assembly
}

// evictionOrder returns indexes into the assembly order, least important
// priority group first. Within a group of equal priority, input order is kept
// so trimming stays deterministic.
func evictionOrder(assembly []effectiveTier) []int {
	order := make([]int, 0, len(assembly))
	end := len(assembly)
	for end > 0 {
		start := end - 1
		for start > 0 && assembly[start-1].tier.Priority == assembly[end-1].tier.Priority {
			start--
		}
		for i := start; i < end; i++ {
			order = append(order, i)
		}
		end = start
	}
	return order
}

func buildResult(assembly []effectiveTier, maxTokens int, trimmed bool) AssemblyResult {
	parts := make([]string, 0, len(assembly))
	reports := make([]TierReport, 0, len(assembly))
	total := 0

	for _, et := range assembly {
		if !isBlank(et.content) {
			parts = append(parts, et.content)
		}
		total += et.tokens
		reports = append(reports, TierReport{
			Name:            et.tier.Name,
			EstimatedTokens: et.tokens,
			Trimmed:         et.trimmed,
		})
	}

	return AssemblyResult{
		Prompt:          strings.Join(parts, TierSeparator),
		EstimatedTokens: total,
		MaxTokens:       maxTokens,
		Tiers:           reports,
		WasTrimmed:      trimmed,
	}
}

// tierTokens estimates a tier body, counting blank content as absent.
func tierTokens(content string) int {
	if isBlank(content) {
		return 0
	}
	return EstimateTokens(content)
}

func isBlank(content string) bool {
	return strings.TrimSpace(content) == ""
}
