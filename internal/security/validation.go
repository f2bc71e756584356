// Package security validates untrusted input and masks credentials.
package security

import (
	"regexp"
	"strings"
	"unicode"

	"markyt-agent/internal/errors"
)

// MaxSymbolLength is the longest accepted ticker symbol.
const MaxSymbolLength = 20

// MaxMessageLength bounds a chat message in runes.
const MaxMessageLength = 4000

// Validation patterns
var (
	// Yahoo symbols: BRK-B, BP.L, ^GSPC, EURUSD=X
	symbolPattern = regexp.MustCompile(`^[A-Z0-9.^=-]+$`)

	// API key patterns for detection (not validation)
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|access[_-]?token|bearer)[=:\s]+["']?([A-Za-z0-9_\-\.]{20,})["']?`),
		regexp.MustCompile(`(sk-[A-Za-z0-9_\-]{20,})`), // OpenAI keys
		regexp.MustCompile(`(gsk_[A-Za-z0-9]{20,})`),   // Groq keys
	}
)

// NormalizeSymbol upper-cases and trims a symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateSymbol checks that symbol looks like a ticker once normalized.
func ValidateSymbol(symbol string) error {
	normalized := NormalizeSymbol(symbol)

	if normalized == "" {
		return errors.NewValidationError("symbol", symbol, "symbol cannot be empty")
	}
	if len(normalized) > MaxSymbolLength {
		return errors.NewValidationError("symbol", symbol, "symbol too long")
	}
	if !symbolPattern.MatchString(normalized) {
		return errors.NewValidationError("symbol", symbol, "invalid symbol format")
	}
	return nil
}

// SanitizeText removes control characters, keeping newlines and tabs, and
// rejects text longer than maxLen runes.
func SanitizeText(field, text string, maxLen int) (string, error) {
	var result strings.Builder
	n := 0
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		n++
		result.WriteRune(r)
	}
	if maxLen > 0 && n > maxLen {
		return "", errors.NewValidationError(field, n, "text too long")
	}
	return result.String(), nil
}

// MaskSensitive masks API keys and tokens in a string.
func MaskSensitive(input string) string {
	result := input
	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if len(match) > 8 {
				return match[:4] + strings.Repeat("*", len(match)-8) + match[len(match)-4:]
			}
			return strings.Repeat("*", len(match))
		})
	}
	return result
}

// MaskCredential masks a credential value for display.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
