package cli

import (
	"fmt"
	"math"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
	"github.com/tamias-ai/tamias/pkg/ctx"
	"github.com/tamias-ai/tamias/pkg/manifest"
)

// NewAssembleCommand loads a tier manifest and prints the assembled prompt.
func NewAssembleCommand(provide AllocatorProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assemble MANIFEST",
		Short: "Assemble prompt tiers from a manifest under the system prompt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tiers, err := manifest.LoadTiers(args[0])
			if err != nil {
				return err
			}
			allocator, err := loadAllocator(provide, "assemble")
			if err != nil {
				return err
			}
			return runAssembleCommand(cmd, allocator, tiers)
		},
	}

	cmd.Flags().Int("max", 0, "explicit token ceiling; 0 derives it from the model")
	cmd.Flags().Bool("debug", false, "print the per-tier report to stderr")
	cmd.Flags().Bool("diff", false, "print a unified diff of the untrimmed and assembled prompt instead of the prompt")

	return cmd
}

func runAssembleCommand(cmd *cobra.Command, allocator *ctx.Allocator, tiers []ctx.ContentTier) error {
	maxTokens, _ := cmd.Flags().GetInt("max")
	debug, _ := cmd.Flags().GetBool("debug")
	showDiff, _ := cmd.Flags().GetBool("diff")

	var result ctx.AssemblyResult
	if maxTokens > 0 {
		result = ctx.AssembleTiers(tiers, maxTokens)
	} else {
		result = allocator.BuildSystemPrompt("", tiers)
	}

	if debug {
		fmt.Fprintln(cmd.ErrOrStderr(), ctx.FormatDebug(result))
	}

	if !showDiff {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), result.Prompt)
		return err
	}

	full := ctx.AssembleTiers(tiers, math.MaxInt)
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(full.Prompt),
		B:        difflib.SplitLines(result.Prompt),
		FromFile: fmt.Sprintf("untrimmed (~%d tokens)", full.EstimatedTokens),
		ToFile:   fmt.Sprintf("assembled (~%d tokens)", result.EstimatedTokens),
		Context:  3,
	})
	if err != nil {
		return fmt.Errorf("failed to diff prompts: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), diff)
	return err
}
