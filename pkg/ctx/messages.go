package ctx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// MessageOverheadTokens is the fixed framing cost added to every message.
	MessageOverheadTokens = 4

	// DefaultMinKeep is the number of trailing messages always kept.
	DefaultMinKeep = 2
)

// ChatMessage is one entry of a chronological chat log.
// Content is either a string or a structured payload (tool calls, content
// parts) that is serialized to JSON for estimation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Text returns the content as estimated: strings verbatim, anything else as
// compact JSON without HTML escaping, so "<" costs one character, not six.
func (m ChatMessage) Text() string {
	switch c := m.Content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []byte:
		return string(c)
	case json.RawMessage:
		return string(c)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m.Content); err != nil {
		return fmt.Sprint(m.Content)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// MessageTokens is the estimated cost of one message, framing included.
func MessageTokens(m ChatMessage) int {
	return EstimateTokens(m.Text()) + MessageOverheadTokens
}

// TrimResult is the output of TrimMessagesToTokenBudget.
type TrimResult struct {
	Messages        []ChatMessage // contiguous newest suffix, oldest first
	Dropped         int
	EstimatedTokens int
}

// TrimMessages trims with the DefaultMinKeep guarantee.
func TrimMessages(messages []ChatMessage, maxTokens int) TrimResult {
	return TrimMessagesToTokenBudget(messages, maxTokens, DefaultMinKeep)
}

// TrimMessagesToTokenBudget drops the oldest messages until the rest fit in
// maxTokens. The last minKeep messages are kept even if they alone exceed it.
// The input slice is never modified.
func TrimMessagesToTokenBudget(messages []ChatMessage, maxTokens, minKeep int) TrimResult {
	if len(messages) == 0 {
		return TrimResult{Messages: []ChatMessage{}}
	}

	guaranteed := min(max(minKeep, 0), len(messages))

	// Walk backwards (newest first), accumulate until the budget is exhausted
	tokensUsed := 0
	startIdx := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := MessageTokens(messages[i])
		accumulated := len(messages) - startIdx
		if tokensUsed+cost > maxTokens && accumulated >= guaranteed {
			break
		}
		tokensUsed += cost
		startIdx = i
	}

	if len(messages)-startIdx < guaranteed {
		startIdx = len(messages) - guaranteed
		tokensUsed = 0
		for _, m := range messages[startIdx:] {
			tokensUsed += MessageTokens(m)
		}
	}

	kept := make([]ChatMessage, len(messages)-startIdx)
	copy(kept, messages[startIdx:])

	return TrimResult{
		Messages:        kept,
		Dropped:         startIdx,
		EstimatedTokens: tokensUsed,
	}
}
