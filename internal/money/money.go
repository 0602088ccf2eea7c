// Package money represents currency as an integer count of minor units.
// Decimal strings are the storage format; nothing here ever touches a float
// for a monetary value.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidFormat = errors.New("invalid money format")

// Parse converts a non-negative decimal string ("12.34") into minor units at
// the given number of decimal places. Fraction digits beyond decimals are
// truncated. Negative or malformed input is rejected.
func Parse(value string, decimals int) (int64, error) {
	raw := strings.TrimSpace(value)
	if !isDecimal(raw) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, value)
	}

	intPart := raw
	fracPart := ""
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		intPart, fracPart = raw[:i], raw[i+1:]
	}

	if len(fracPart) > decimals {
		fracPart = fracPart[:decimals]
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, value)
	}

	var frac int64
	if fracPart != "" {
		frac, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, value)
		}
	}

	return whole*pow10(decimals) + frac, nil
}

// Format renders minor units back into a decimal string, preserving sign.
func Format(minor int64, decimals int) string {
	sign := ""
	abs := minor
	if minor < 0 {
		sign = "-"
		abs = -minor
	}

	factor := pow10(decimals)
	if decimals == 0 {
		return sign + strconv.FormatInt(abs, 10)
	}

	whole := abs / factor
	frac := abs % factor
	return fmt.Sprintf("%s%d.%0*d", sign, whole, decimals, frac)
}

// PercentOf computes percent of a minor-unit amount using integer division:
// minor * round(percent*100) / 10000. The result truncates toward zero, so
// 12.34 at 17% yields 2.09, not 2.10. This truncation is authoritative.
func PercentOf(minor int64, percent float64) int64 {
	if percent <= 0 {
		return 0
	}
	return minor * int64(math.Round(percent*100)) / 10000
}

// Clamp floors a minor-unit amount at zero.
func Clamp(minor int64) int64 {
	if minor < 0 {
		return 0
	}
	return minor
}

func isDecimal(s string) bool {
	// \d+(\.\d+)?
	if s == "" {
		return false
	}
	dot := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' {
			if dot >= 0 || i == 0 || i == len(s)-1 {
				return false
			}
			dot = i
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func pow10(n int) int64 {
	f := int64(1)
	for i := 0; i < n; i++ {
		f *= 10
	}
	return f
}
