package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/crosspay/internal/errors"
)

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseDecimal validates a decimal amount string and returns it as a
// rational. Amount arithmetic never goes through floats.
func ParseDecimal(v string) (*big.Rat, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, clierr.New(clierr.ClassValidation, "amount is required")
	}
	if !decimalPattern.MatchString(v) {
		return nil, clierr.New(clierr.ClassValidation, fmt.Sprintf("amount must be in decimal form like 1.23, got %q", v))
	}
	r, ok := new(big.Rat).SetString(v)
	if !ok {
		return nil, clierr.New(clierr.ClassValidation, fmt.Sprintf("invalid decimal amount %q", v))
	}
	return r, nil
}

// DecimalToBaseUnits converts a decimal amount string into an integer
// base-unit string for a token with the given decimals.
func DecimalToBaseUnits(decimal string, decimals int) (string, error) {
	if !decimalPattern.MatchString(decimal) {
		return "", clierr.New(clierr.ClassValidation, "amount must be in decimal form like 1.23")
	}
	parts := strings.SplitN(decimal, ".", 2)
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return "", clierr.New(clierr.ClassValidation, fmt.Sprintf("decimal precision exceeds token decimals (%d)", decimals))
	}

	fracPart = fracPart + strings.Repeat("0", decimals-len(fracPart))
	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return "0", nil
	}
	if _, ok := new(big.Int).SetString(combined, 10); !ok {
		return "", clierr.New(clierr.ClassValidation, "invalid decimal amount")
	}
	return combined, nil
}

// FormatDecimal converts base-unit integer strings into trimmed decimal
// strings.
func FormatDecimal(baseUnits string, decimals int) string {
	n := new(big.Int)
	n.SetString(baseUnits, 10)
	if decimals == 0 {
		return n.String()
	}

	s := n.String()
	if len(s) <= decimals {
		pad := strings.Repeat("0", decimals-len(s)+1)
		s = pad + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := strings.TrimRight(s[len(s)-decimals:], "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}
