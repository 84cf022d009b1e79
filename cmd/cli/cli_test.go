package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tamias-ai/tamias/pkg/config"
	"github.com/tamias-ai/tamias/pkg/ctx"
	"github.com/tamias-ai/tamias/pkg/logging"
)

func testAllocatorProvider(window int) AllocatorProvider {
	return func() (*ctx.Allocator, error) {
		return ctx.NewAllocator(ctx.AllocatorOptions{
			Model:         "test-model",
			ContextWindow: window,
			MinKeep:       2,
		}, logging.NewDisabledLogger(), nil), nil
	}
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func pipeStdin(t *testing.T, piped bool) {
	t.Helper()
	original := stdinIsPiped
	stdinIsPiped = func() bool { return piped }
	t.Cleanup(func() { stdinIsPiped = original })
}

func TestBudgetCommand(t *testing.T) {
	t.Run("prints the split as JSON", func(t *testing.T) {
		out, _, err := execute(t, NewBudgetCommand(testAllocatorProvider(100000)), "--json")
		require.NoError(t, err)

		var report budgetReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, "test-model", report.Model)
		assert.Equal(t, 100000, report.ContextWindow)
		assert.Equal(t, 30000, report.SystemPrompt)
		assert.Equal(t, 60000, report.Messages)
		assert.Equal(t, 8192, report.ResponseReserve)
	})

	t.Run("uses the actual system prompt size for messages", func(t *testing.T) {
		out, _, err := execute(t, NewBudgetCommand(testAllocatorProvider(20000)), "--json", "--system-tokens", "1000")
		require.NoError(t, err)

		var report budgetReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, 6000, report.SystemPrompt)
		// min(12000, 20000-1000-8192)
		assert.Equal(t, 10808, report.Messages)
	})

	t.Run("prints a table by default", func(t *testing.T) {
		out, _, err := execute(t, NewBudgetCommand(testAllocatorProvider(100000)))
		require.NoError(t, err)
		assert.Contains(t, out, "context window:")
		assert.Contains(t, out, "100000")
		assert.Contains(t, out, "response reserve:")
	})

	t.Run("surfaces and logs provider errors", func(t *testing.T) {
		var logs bytes.Buffer
		original := logging.GetGlobalLogger()
		logging.SetGlobalLogger(logging.NewLogger(logging.Config{Level: slog.LevelDebug, Output: &logs}))
		defer logging.SetGlobalLogger(original)

		failing := func() (*ctx.Allocator, error) { return nil, errors.New("bad config") }
		_, _, err := execute(t, NewBudgetCommand(failing))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad config")
		assert.Contains(t, logs.String(), "operation=budget")
		assert.Contains(t, logs.String(), "failed to initialize allocator")
	})
}

const assembleManifest = `tiers:
  - name: persona
    priority: 0
    trimmable: false
    content: %q
  - name: memory
    priority: 5
    trimmable: true
    content: %q
`

func TestAssembleCommand(t *testing.T) {
	aRun := strings.Repeat("A", 350)
	cRun := strings.Repeat("C", 3500)
	dir := t.TempDir()
	path := writeFile(t, dir, "tiers.yaml", fmt.Sprintf(assembleManifest, aRun, cRun))

	t.Run("prints everything when it fits", func(t *testing.T) {
		out, _, err := execute(t, NewAssembleCommand(testAllocatorProvider(200000)), path)
		require.NoError(t, err)
		assert.Equal(t, aRun+ctx.TierSeparator+cRun+"\n", out)
	})

	t.Run("drops trimmable tiers under an explicit ceiling", func(t *testing.T) {
		out, stderr, err := execute(t, NewAssembleCommand(testAllocatorProvider(200000)), path, "--max", "250", "--debug")
		require.NoError(t, err)
		assert.Equal(t, aRun+"\n", out)
		assert.Contains(t, stderr, "[context] Total: ~100 tokens (TRIMMED)")
		assert.Contains(t, stderr, "persona: ~100")
		// dropped tiers contribute nothing and are left out of the report
		assert.NotContains(t, stderr, "memory")
	})

	t.Run("prints a diff against the untrimmed prompt", func(t *testing.T) {
		out, _, err := execute(t, NewAssembleCommand(testAllocatorProvider(200000)), path, "--max", "250", "--diff")
		require.NoError(t, err)
		assert.Contains(t, out, "--- untrimmed (~1100 tokens)")
		assert.Contains(t, out, "+++ assembled (~100 tokens)")
		assert.Contains(t, out, "-"+cRun)
	})

	t.Run("fails on a missing manifest", func(t *testing.T) {
		_, _, err := execute(t, NewAssembleCommand(testAllocatorProvider(200000)), filepath.Join(dir, "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("requires a manifest argument", func(t *testing.T) {
		_, _, err := execute(t, NewAssembleCommand(testAllocatorProvider(200000)))
		assert.Error(t, err)
	})
}

func messagesJSON(n int) string {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"role":"user","content":"msg-%d"}`, i)
	}
	b.WriteString("]")
	return b.String()
}

func decodeTrim(t *testing.T, out string) trimReport {
	t.Helper()
	var report trimReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	return report
}

func TestTrimCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "history.json", messagesJSON(10))

	t.Run("keeps the guaranteed suffix under a tiny budget", func(t *testing.T) {
		out, _, err := execute(t, NewTrimCommand(testAllocatorProvider(100000)), path, "--max", "1")
		require.NoError(t, err)

		report := decodeTrim(t, out)
		assert.Equal(t, 8, report.Dropped)
		require.Len(t, report.Messages, 2)
		assert.Equal(t, "msg-8", report.Messages[0].Content)
		assert.Equal(t, "msg-9", report.Messages[1].Content)
		assert.Equal(t, 1, report.MaxTokens)
	})

	t.Run("honours min-keep", func(t *testing.T) {
		out, _, err := execute(t, NewTrimCommand(testAllocatorProvider(100000)), path, "--max", "1", "--min-keep", "0")
		require.NoError(t, err)

		report := decodeTrim(t, out)
		assert.Equal(t, 10, report.Dropped)
		assert.Empty(t, report.Messages)
	})

	t.Run("derives the budget from the model", func(t *testing.T) {
		out, _, err := execute(t, NewTrimCommand(testAllocatorProvider(100000)), path)
		require.NoError(t, err)

		report := decodeTrim(t, out)
		assert.Equal(t, 0, report.Dropped)
		assert.Len(t, report.Messages, 10)
		assert.Equal(t, 60000, report.MaxTokens)
	})

	t.Run("reads piped stdin", func(t *testing.T) {
		pipeStdin(t, true)
		cmd := NewTrimCommand(testAllocatorProvider(100000))
		cmd.SetIn(strings.NewReader(messagesJSON(3)))

		out, _, err := execute(t, cmd)
		require.NoError(t, err)
		assert.Len(t, decodeTrim(t, out).Messages, 3)
	})

	t.Run("errors without input", func(t *testing.T) {
		pipeStdin(t, false)
		_, _, err := execute(t, NewTrimCommand(testAllocatorProvider(100000)))
		assert.ErrorIs(t, err, errNoMessages)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		bad := writeFile(t, dir, "bad.json", `{"role":`)
		_, _, err := execute(t, NewTrimCommand(testAllocatorProvider(100000)), bad)
		assert.Error(t, err)
	})
}

func fakeCounter(tokens int, encoding string) CounterFactory {
	return func(string, string) (TokenCounter, string, error) {
		return func(string) int { return tokens }, encoding, nil
	}
}

func TestCalibrateCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sample.txt", strings.Repeat("1234567", 5))

	t.Run("compares estimate and tokenizer", func(t *testing.T) {
		out, _, err := execute(t, NewCalibrateCommand(fakeCounter(10, "fake_base")), path)
		require.NoError(t, err)
		assert.Contains(t, out, "characters:")
		assert.Contains(t, out, "35")
		assert.Contains(t, out, "fake_base:")
		assert.Contains(t, out, "+0.0%")
	})

	t.Run("reads piped stdin", func(t *testing.T) {
		pipeStdin(t, true)
		cmd := NewCalibrateCommand(fakeCounter(1, "fake_base"))
		cmd.SetIn(strings.NewReader("hello\nworld\n"))

		out, _, err := execute(t, cmd)
		require.NoError(t, err)
		// trailing newline is stripped: 11 runes
		assert.Contains(t, out, "11")
	})

	t.Run("surfaces tokenizer errors", func(t *testing.T) {
		failing := func(string, string) (TokenCounter, string, error) { return nil, "", errors.New("no such encoding") }
		_, _, err := execute(t, NewCalibrateCommand(failing), path)
		assert.EqualError(t, err, "no such encoding")
	})
}

func TestNewTiktokenCounter_UnknownEncoding(t *testing.T) {
	_, _, err := NewTiktokenCounter("no-such-encoding", "")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, NewVersionCommand())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tamias version "))
}

func TestRootCommand_DebugFileReceivesContextEvents(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv(config.KeyConfigPath, filepath.Join(dir, "absent.yaml"))
	for _, key := range []string{config.KeyModel, config.KeyContextWindow, config.KeySystemPromptRatio, config.KeyMessageRatio, config.KeyResponseReserve, config.KeyMinKeep} {
		t.Setenv(key, "")
	}
	logPath := filepath.Join(dir, "debug.log")
	t.Setenv(logging.DebugFileEnv, logPath)
	t.Setenv(logging.DebugLevelEnv, "info")

	original := logging.GetGlobalLogger()
	t.Cleanup(func() {
		logging.SetGlobalLogger(original)
		RootCmd.SetArgs(nil)
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
	})

	// 5000 tokens of trimmable memory against the 4000 token floor
	manifestPath := writeFile(t, dir, "tiers.yaml", fmt.Sprintf(assembleManifest, "persona", strings.Repeat("C", 17500)))

	out, _, err := execute(t, RootCmd, "--window", "1000", "assemble", manifestPath)
	require.NoError(t, err)
	assert.Equal(t, "persona\n", out)

	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "tiers trimmed")
	assert.Contains(t, string(logged), "memory")
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
