// Package cli validates raw command-line input before it reaches the domain
package cli

import (
	"errors"
	"regexp"
	"strings"
)

var (
	errMalicious = errors.New("potentially malicious input detected")
	symbolRe     = regexp.MustCompile(`^[A-Z0-9]{2,15}$`)
	sqlPattern   = regexp.MustCompile(`['"]\s*;\s*|\b(DROP|DELETE|UPDATE|INSERT)\b`)
)

// ValidateInput checks for potentially malicious input patterns
func ValidateInput(input string) error {
	if strings.Contains(input, ";") || strings.Contains(input, "&&") || strings.Contains(input, "||") {
		return errMalicious
	}

	if strings.Contains(input, "../") || strings.Contains(input, "..\\") {
		return errMalicious
	}

	if sqlPattern.MatchString(strings.ToUpper(input)) {
		return errMalicious
	}

	return nil
}

// NormalizeSymbol upper-cases and validates a ticker such as "btc" or "ETH"
func NormalizeSymbol(input string) (string, error) {
	if err := ValidateInput(input); err != nil {
		return "", err
	}
	sym := strings.ToUpper(strings.TrimSpace(input))
	if !symbolRe.MatchString(sym) {
		return "", errors.New("symbol must be 2-15 letters or digits")
	}
	return sym, nil
}

// NormalizeSymbols applies NormalizeSymbol to a comma separated list and drops duplicates
func NormalizeSymbols(input string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(input, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		sym, err := NormalizeSymbol(part)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out, nil
}
