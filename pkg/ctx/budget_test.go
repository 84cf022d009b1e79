package ctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemPromptBudget(t *testing.T) {
	tests := []struct {
		name   string
		window int
		ratio  float64
		want   int
	}{
		{name: "default ratio large window", window: 100000, ratio: DefaultSystemPromptRatio, want: 30000},
		{name: "alternate ratio", window: 100000, ratio: 0.35, want: 35000},
		{name: "floor applies to small window", window: 1000, ratio: DefaultSystemPromptRatio, want: MinSystemPromptBudget},
		{name: "floor applies at zero", window: 0, ratio: DefaultSystemPromptRatio, want: MinSystemPromptBudget},
		{name: "rounds down", window: 200001, ratio: 0.5, want: 100000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SystemPromptBudget(tt.window, tt.ratio))
		})
	}
}

func TestMessageTokenBudget(t *testing.T) {
	tests := []struct {
		name         string
		window       int
		systemTokens int
		reserve      int
		ratio        float64
		want         int
	}{
		{name: "ratio cap is tighter", window: 200000, systemTokens: 30000, reserve: 8192, ratio: 0.6, want: 120000},
		{name: "remainder is tighter", window: 200000, systemTokens: 100000, reserve: 8192, ratio: 0.6, want: 91808},
		{name: "never negative", window: 10000, systemTokens: 4000, reserve: 8192, ratio: 0.6, want: 0},
		{name: "zero window", window: 0, systemTokens: 0, reserve: 0, ratio: 0.6, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MessageTokenBudget(tt.window, tt.systemTokens, tt.reserve, tt.ratio))
		})
	}
}

func TestDeriveBudgets_Defaults(t *testing.T) {
	budgets := DeriveBudgets(200000, 0, BudgetConfig{})

	assert.Equal(t, Budgets{
		ContextWindow:   200000,
		SystemPrompt:    60000,
		Messages:        120000,
		ResponseReserve: DefaultResponseReserve,
	}, budgets)
}

func TestDeriveBudgets_UsesActualSystemPromptSize(t *testing.T) {
	budgets := DeriveBudgets(20000, 2000, BudgetConfig{MessageRatio: 1.0, ResponseReserve: 1000})

	assert.Equal(t, 6000, budgets.SystemPrompt)
	assert.Equal(t, 17000, budgets.Messages)
}

func TestDeriveBudgets_RatiosAreIndependent(t *testing.T) {
	budgets := DeriveBudgets(100000, 0, BudgetConfig{SystemPromptRatio: 0.35, MessageRatio: 0.25, ResponseReserve: 1000})

	assert.Equal(t, 35000, budgets.SystemPrompt)
	assert.Equal(t, 25000, budgets.Messages)
}

func TestBudgetConfig_NormalizedRejectsOutOfRange(t *testing.T) {
	cfg := BudgetConfig{SystemPromptRatio: 1.5, MessageRatio: -1, ResponseReserve: -5}.normalized()

	assert.Equal(t, DefaultSystemPromptRatio, cfg.SystemPromptRatio)
	assert.Equal(t, DefaultMessageRatio, cfg.MessageRatio)
	assert.Equal(t, DefaultResponseReserve, cfg.ResponseReserve)
}
