package ctx

import "strings"

// Default context window sizes for known models (tokens).
// Explicit configuration always takes priority over this table.
// Uses prefix matching so "claude-sonnet-4" matches "claude-sonnet-4-20250514".
var defaultContextWindows = map[string]int{
	// Anthropic
	"claude-opus-4":     200000,
	"claude-sonnet-4":   200000,
	"claude-3-7-sonnet": 200000,
	"claude-3-5-sonnet": 200000,
	"claude-3-5-haiku":  200000,
	"claude-3-opus":     200000,
	"claude-3-haiku":    200000,

	// OpenAI
	"gpt-4o":      128000,
	"gpt-4o-mini": 128000,
	"gpt-4-turbo": 128000,
	"gpt-4.1":     1047576,
	"gpt-4":       8192,
	"gpt-3.5":     16385,
	"o1":          200000,
	"o1-mini":     128000,
	"o3":          200000,
	"o3-mini":     200000,
	"o4-mini":     200000,

	// Google
	"gemini-2.5-flash": 1048576,
	"gemini-2.5-pro":   1048576,
	"gemini-2.0-flash": 1048576,
	"gemini-1.5-flash": 1048576,
	"gemini-1.5-pro":   2097152,

	// Local models (conservative defaults)
	"llama":     8192,
	"llama3.1":  131072,
	"mistral":   32768,
	"codellama": 16384,
	"deepseek":  65536,
	"qwen":      32768,
}

// FallbackContextWindow is used when the model is completely unknown.
const FallbackContextWindow = 128000

// LookupContextWindow returns the context window size for a given model name.
// Provider prefixes such as "openai/" are ignored. Longest prefix wins.
func LookupContextWindow(modelName string) int {
	modelName = strings.TrimSpace(strings.ToLower(modelName))
	if i := strings.LastIndex(modelName, "/"); i >= 0 {
		modelName = modelName[i+1:]
	}
	if modelName == "" {
		return FallbackContextWindow
	}

	if tokens, ok := defaultContextWindows[modelName]; ok {
		return tokens
	}

	bestMatch := ""
	bestTokens := 0
	for prefix, tokens := range defaultContextWindows {
		if strings.HasPrefix(modelName, prefix) && len(prefix) > len(bestMatch) {
			bestMatch = prefix
			bestTokens = tokens
		}
	}

	if bestMatch != "" {
		return bestTokens
	}

	return FallbackContextWindow
}

// ContextWindowFor resolves a window size: explicitWindow (if > 0) → model lookup.
func ContextWindowFor(explicitWindow int, modelName string) int {
	if explicitWindow > 0 {
		return explicitWindow
	}
	return LookupContextWindow(modelName)
}
