// Package core holds the domain types shared by the projector, the stores
// and the binaries.
package core

import (
	"fmt"
	"strconv"
	"strings"
)

// maxWholeUnits keeps whole*100 inside int64.
const maxWholeUnits = (1<<63 - 1) / 100

// ParseMoney parses a positive decimal amount such as "12.34" or "12,34".
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// ParseDecimalToCents converts a decimal string to cents.
//
// Dot and comma are both accepted as the decimal separator. Digits past the
// second decimal are rounded half-up on the third one. Signs, empty input and
// amounts that round to zero are rejected with ErrInvalidAmount.
//
//	ParseDecimalToCents("12.34")  -> 1234
//	ParseDecimalToCents("12,345") -> 1235
//	ParseDecimalToCents("0.004")  -> error
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" || strings.ContainsAny(s[:1], "+-") {
		return 0, ErrInvalidAmount
	}

	whole, frac, _ := strings.Cut(s, ".")
	if strings.Contains(frac, ".") || !allDigits(whole) || !allDigits(frac) {
		return 0, ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > maxWholeUnits {
		return 0, ErrInvalidAmount
	}

	cents := units*100 + fractionCents(frac)
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

func fractionCents(frac string) int64 {
	var cents int64
	for i := 0; i < 2; i++ {
		cents *= 10
		if i < len(frac) {
			cents += int64(frac[i] - '0')
		}
	}
	if len(frac) > 2 && frac[2] >= '5' {
		cents++
	}
	return cents
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// String renders the amount with two decimals, e.g. "100.00".
func (m Money) String() string {
	sign := ""
	cents := m.Cents
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
