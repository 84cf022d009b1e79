package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/spf13/cobra"
	"github.com/tamias-ai/tamias/pkg/ctx"
)

const defaultEncoding = "cl100k_base"

// TokenCounter counts tokens with a real tokenizer.
type TokenCounter func(text string) int

// CounterFactory resolves a tokenizer by encoding name, or by model when the
// encoding is empty. It returns the encoding actually used.
type CounterFactory func(encoding, model string) (TokenCounter, string, error)

// NewTiktokenCounter loads a tiktoken encoding. Unknown models fall back to
// cl100k_base.
func NewTiktokenCounter(encoding, model string) (TokenCounter, string, error) {
	var (
		tke *tiktoken.Tiktoken
		err error
	)
	if encoding == "" && model != "" {
		tke, err = tiktoken.EncodingForModel(model)
		if err == nil {
			encoding = model
			if name, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
				encoding = name
			}
		}
	}
	if tke == nil {
		if encoding == "" {
			encoding = defaultEncoding
		}
		tke, err = tiktoken.GetEncoding(encoding)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load encoding %q: %w", encoding, err)
		}
	}
	return func(text string) int {
		return len(tke.Encode(text, nil, nil))
	}, encoding, nil
}

// NewCalibrateCommand compares the chars/3.5 heuristic against a tokenizer.
func NewCalibrateCommand(newCounter CounterFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate [FILE]",
		Short: "Compare the token estimate with a real tokenizer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readCalibrationText(cmd, args)
			if err != nil {
				return err
			}
			encoding, _ := cmd.Flags().GetString("encoding")
			counter, used, err := newCounter(encoding, modelName)
			if err != nil {
				return err
			}
			return runCalibrateCommand(cmd, text, counter, used)
		},
	}

	cmd.Flags().String("encoding", "", "tiktoken encoding (default: the model's, else "+defaultEncoding+")")

	return cmd
}

func readCalibrationText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return string(data), nil
	}
	if len(args) == 0 && !stdinIsPiped() {
		return "", fmt.Errorf("no input: pass a file or pipe text on stdin")
	}
	return readStdinInput(cmd.InOrStdin())
}

func runCalibrateCommand(cmd *cobra.Command, text string, count TokenCounter, encoding string) error {
	chars := utf8.RuneCountInString(text)
	estimated := ctx.EstimateTokens(text)
	actual := count(text)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "characters:\t%d\n", chars)
	fmt.Fprintf(w, "estimated:\t%d\t(chars / %.1f)\n", estimated, ctx.CharsPerToken)
	fmt.Fprintf(w, "%s:\t%d\n", encoding, actual)
	if actual > 0 {
		fmt.Fprintf(w, "chars per token:\t%.2f\n", float64(chars)/float64(actual))
		fmt.Fprintf(w, "estimate error:\t%+.1f%%\n", float64(estimated-actual)/float64(actual)*100)
	}
	return w.Flush()
}
