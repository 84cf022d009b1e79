package cli

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
	"github.com/tamias-ai/tamias/pkg/ctx"
	"github.com/tamias-ai/tamias/pkg/manifest"
)

var errNoMessages = errors.New("no messages: pass a JSON file or pipe it on stdin")

// trimReport is what `tamias trim` prints.
type trimReport struct {
	Messages        []ctx.ChatMessage `json:"messages"`
	Dropped         int               `json:"dropped"`
	EstimatedTokens int               `json:"estimated_tokens"`
	MaxTokens       int               `json:"max_tokens"`
}

// NewTrimCommand drops the oldest chat messages until the rest fit.
func NewTrimCommand(provide AllocatorProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trim [FILE]",
		Short: "Trim a JSON chat history to the message budget",
		Long: `Reads a JSON array of {"role", "content"} messages from FILE or stdin and
prints the newest messages that fit the budget, oldest first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			messages, err := readMessages(cmd, args)
			if err != nil {
				return err
			}
			allocator, err := loadAllocator(provide, "trim")
			if err != nil {
				return err
			}
			return runTrimCommand(cmd, allocator, messages)
		},
	}

	cmd.Flags().Int("max", 0, "explicit token ceiling; 0 derives it from the model")
	cmd.Flags().Int("min-keep", -1, "newest messages always kept; negative uses the configured value")
	cmd.Flags().Int("system-tokens", 0, "system prompt size the history shares the window with")

	return cmd
}

func readMessages(cmd *cobra.Command, args []string) ([]ctx.ChatMessage, error) {
	if len(args) == 1 && args[0] != "-" {
		return manifest.LoadMessagesFile(args[0])
	}
	if len(args) == 0 && !stdinIsPiped() {
		return nil, errNoMessages
	}
	return manifest.LoadMessages(cmd.InOrStdin())
}

func runTrimCommand(cmd *cobra.Command, allocator *ctx.Allocator, messages []ctx.ChatMessage) error {
	maxTokens, _ := cmd.Flags().GetInt("max")
	minKeep, _ := cmd.Flags().GetInt("min-keep")
	systemTokens, _ := cmd.Flags().GetInt("system-tokens")

	var result ctx.TrimResult
	if maxTokens <= 0 && minKeep < 0 {
		maxTokens = allocator.Budgets("", systemTokens).Messages
		result = allocator.FitHistory("", systemTokens, messages)
	} else {
		if maxTokens <= 0 {
			maxTokens = allocator.Budgets("", systemTokens).Messages
		}
		if minKeep < 0 {
			minKeep = allocator.Options().MinKeep
		}
		result = ctx.TrimMessagesToTokenBudget(messages, maxTokens, minKeep)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(trimReport{
		Messages:        result.Messages,
		Dropped:         result.Dropped,
		EstimatedTokens: result.EstimatedTokens,
		MaxTokens:       maxTokens,
	})
}
