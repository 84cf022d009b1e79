package ctx

import (
	"fmt"
	"strings"
)

// FormatDebug renders an assembly as a short diagnostic block for logs.
// Tiers that contributed no tokens are omitted.
func FormatDebug(result AssemblyResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[context] Total: ~%d tokens", result.EstimatedTokens)
	if result.WasTrimmed {
		b.WriteString(" (TRIMMED)")
	}

	for _, tier := range result.Tiers {
		if tier.EstimatedTokens == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  %s: ~%d", tier.Name, tier.EstimatedTokens)
		if tier.Trimmed {
			b.WriteString(" [trimmed]")
		}
	}

	return b.String()
}
