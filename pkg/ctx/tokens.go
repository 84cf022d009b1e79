package ctx

import "unicode/utf8"

// CharsPerToken is the calibrated characters-per-token ratio behind EstimateTokens.
// It is a fixed constant so estimates are reproducible across runs and builds.
const CharsPerToken = 3.5

// EstimateTokens returns a cheap token estimate for a string: ceil(runes / 3.5).
// Length is counted in runes, not bytes, so multi-byte text is not over-counted.
func EstimateTokens(content string) int {
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return 0
	}
	// ceil(n / 3.5) == ceil(2n / 7), kept in integer arithmetic
	return (2*n + 6) / 7
}
