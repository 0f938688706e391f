package cost

import (
	"math"
	"unicode/utf16"

	"github.com/felipepmaragno/agentrouter/internal/domain"
)

const (
	charsPerToken    = 4
	minEstimatedTime = 50.0
	previewLength    = 100
)

// EstimateTokens approximates the token count at four characters per token.
// Characters are UTF-16 code units, matching the cache fingerprint.
func EstimateTokens(input string) int {
	return int(math.Ceil(float64(utf16Len(input)) / charsPerToken))
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

func Calculate(m domain.Model, input string) float64 {
	return float64(EstimateTokens(input)) * m.CostPerToken
}

// EstimateTime returns the expected latency in milliseconds, never below 50ms.
func EstimateTime(m domain.Model) float64 {
	if m.SpeedRating <= 0 {
		return minEstimatedTime
	}
	return math.Max(minEstimatedTime, 1000/float64(m.SpeedRating))
}

// PromptPreview truncates input to its first 100 UTF-16 code units for usage logs.
// A surrogate pair cut in half decodes to U+FFFD.
func PromptPreview(input string) string {
	if utf16Len(input) <= previewLength {
		return input
	}
	units := utf16.Encode([]rune(input))
	return string(utf16.Decode(units[:previewLength])) + "..."
}
