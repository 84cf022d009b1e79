package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tamias-ai/tamias/internal/di"
	"github.com/tamias-ai/tamias/pkg/ctx"
	"github.com/tamias-ai/tamias/pkg/events"
	"github.com/tamias-ai/tamias/pkg/logging"
	"github.com/tamias-ai/tamias/pkg/version"
)

// debugLogFile is the temp-dir file name NewFileLoggerFromEnv falls back to.
const debugLogFile = "tamias-debug.log"

var (
	// Global flags
	verbose       bool
	quiet         bool
	modelName     string
	contextWindow int
)

// AllocatorProvider builds the allocator a command runs against. Commands
// call it lazily so flag parsing has finished first.
type AllocatorProvider func() (*ctx.Allocator, error)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "tamias",
	Short: "Context-window budget allocator for LLM prompts",
	Long: `tamias fits prioritized prompt tiers and chat history into a model's
context window, shrinking or dropping the least important material first.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var logger logging.Logger
		if os.Getenv(logging.DebugFileEnv) != "" {
			logger = logging.NewFileLoggerFromEnv(debugLogFile)
		} else if quiet {
			logger = logging.NewQuietLogger()
		} else if verbose {
			logger = logging.NewVerboseLogger()
		} else {
			logger = logging.NewDefaultLogger()
		}
		logging.SetGlobalLogger(logger)

		subscribeContextEvents(di.ProvideSubscriber(), logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		// flush pending event handlers before the process exits
		di.ProvideEventBus().Shutdown()
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug level)")
	RootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "quiet output (errors only)")
	RootCmd.PersistentFlags().StringVarP(&modelName, "model", "m", "", "model whose context window is used (default from config)")
	RootCmd.PersistentFlags().IntVar(&contextWindow, "window", 0, "explicit context window in tokens (overrides the model registry)")

	addCommands()
}

func addCommands() {
	provider := func() (*ctx.Allocator, error) {
		return di.ProvideAllocator(di.Overrides{Model: modelName, ContextWindow: contextWindow})
	}

	RootCmd.AddCommand(NewBudgetCommand(provider))
	RootCmd.AddCommand(NewAssembleCommand(provider))
	RootCmd.AddCommand(NewTrimCommand(provider))
	RootCmd.AddCommand(NewCalibrateCommand(NewTiktokenCounter))
	RootCmd.AddCommand(NewVersionCommand())
}

// loadAllocator resolves the allocator for one command, logging failures
// under the command's name.
func loadAllocator(provide AllocatorProvider, operation string) (*ctx.Allocator, error) {
	allocator, err := provide()
	if err != nil {
		logging.LogError(logging.NewOperationLogger("cli", operation), "failed to initialize allocator", err)
		return nil, fmt.Errorf("failed to initialize allocator: %w", err)
	}
	return allocator, nil
}

// subscribeContextEvents surfaces allocator events in the log.
func subscribeContextEvents(subscriber events.Subscriber, logger logging.Logger) {
	subscriber.Subscribe(events.ContextTrimmedEvent{}.Topic(), func(event any) {
		if e, ok := event.(events.ContextTrimmedEvent); ok {
			logger.Info("tiers trimmed", "allocation", e.AllocationID, "model", e.Model,
				"tokens", e.EstimatedTokens, "max", e.MaxTokens, "tiers", e.TrimmedTiers)
		}
	})
	subscriber.Subscribe(events.ContextOverBudgetEvent{}.Topic(), func(event any) {
		if e, ok := event.(events.ContextOverBudgetEvent); ok {
			logger.Warn("assembled prompt over budget", "allocation", e.AllocationID, "model", e.Model,
				"tokens", e.EstimatedTokens, "max", e.MaxTokens)
		}
	})
	subscriber.Subscribe(events.HistoryTrimmedEvent{}.Topic(), func(event any) {
		if e, ok := event.(events.HistoryTrimmedEvent); ok {
			logger.Info("history trimmed", "allocation", e.AllocationID, "model", e.Model,
				"kept", e.Kept, "dropped", e.Dropped, "tokens", e.EstimatedTokens, "max", e.MaxTokens)
		}
	})
}
