package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tamias-ai/tamias/pkg/ctx"
)

// budgetReport is the JSON shape of `tamias budget --json`.
type budgetReport struct {
	Model             string  `json:"model"`
	ContextWindow     int     `json:"context_window"`
	SystemPrompt      int     `json:"system_prompt"`
	Messages          int     `json:"messages"`
	ResponseReserve   int     `json:"response_reserve"`
	SystemPromptRatio float64 `json:"system_prompt_ratio"`
	MessageRatio      float64 `json:"message_ratio"`
}

// NewBudgetCommand prints how the configured model's window is split.
func NewBudgetCommand(provide AllocatorProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show the token budgets derived from a model's context window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			allocator, err := loadAllocator(provide, "budget")
			if err != nil {
				return err
			}
			systemTokens, _ := cmd.Flags().GetInt("system-tokens")
			asJSON, _ := cmd.Flags().GetBool("json")
			return runBudgetCommand(cmd, allocator, systemTokens, asJSON)
		},
	}

	cmd.Flags().Int("system-tokens", 0, "actual system prompt size; 0 reserves the full system prompt budget")
	cmd.Flags().Bool("json", false, "print the budgets as JSON")

	return cmd
}

func runBudgetCommand(cmd *cobra.Command, allocator *ctx.Allocator, systemTokens int, asJSON bool) error {
	opts := allocator.Options()
	budgets := allocator.Budgets("", systemTokens)

	report := budgetReport{
		Model:             opts.Model,
		ContextWindow:     budgets.ContextWindow,
		SystemPrompt:      budgets.SystemPrompt,
		Messages:          budgets.Messages,
		ResponseReserve:   budgets.ResponseReserve,
		SystemPromptRatio: opts.Budget.SystemPromptRatio,
		MessageRatio:      opts.Budget.MessageRatio,
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "model:\t%s\n", report.Model)
	fmt.Fprintf(w, "context window:\t%d\n", report.ContextWindow)
	fmt.Fprintf(w, "system prompt:\t%d\t(%.0f%%, min %d)\n", report.SystemPrompt, report.SystemPromptRatio*100, ctx.MinSystemPromptBudget)
	fmt.Fprintf(w, "messages:\t%d\t(%.0f%% cap)\n", report.Messages, report.MessageRatio*100)
	fmt.Fprintf(w, "response reserve:\t%d\n", report.ResponseReserve)
	return w.Flush()
}
