// Package currencyutils provides common currency and decimal operations used throughout the application.
package currencyutils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Sign is the direction an amount string declares on its own.
type Sign int

const (
	SignNone Sign = iota
	SignDebit
	SignCredit
)

func (s Sign) String() string {
	switch s {
	case SignDebit:
		return "debit"
	case SignCredit:
		return "credit"
	}
	return "none"
}

var (
	currencyMarks = regexp.MustCompile(`(?i)(NGN|USD|GBP|EUR|CHF|[₦€$£¥])`)
	drcrSuffix    = regexp.MustCompile(`(?i)\s*(DR|CR)\.?$`)
	placeholders  = map[string]bool{"": true, "-": true, "--": true, "—": true, "nil": true, "n/a": true, "nan": true, "none": true}
)

// IsBlankAmount reports whether the cell carries no amount at all.
func IsBlankAmount(amountStr string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(amountStr))]
}

// ParseAmount parses a string representation of an amount into a decimal value.
// It handles currency marks, thousand separators and parenthesised negatives.
// Blank cells parse as zero.
func ParseAmount(amountStr string) (decimal.Decimal, error) {
	amount, sign, err := ParseSignedAmount(amountStr)
	if err != nil {
		return decimal.Zero, err
	}
	if sign == SignDebit {
		return amount.Neg(), nil
	}
	return amount, nil
}

// ParseSignedAmount parses an amount and reports the direction it declares:
// a leading "-", parentheses or a DR suffix mean debit, a leading "+" or a CR
// suffix mean credit. The returned amount is always non-negative.
func ParseSignedAmount(amountStr string) (decimal.Decimal, Sign, error) {
	if IsBlankAmount(amountStr) {
		return decimal.Zero, SignNone, nil
	}

	s := strings.TrimSpace(amountStr)
	sign := SignNone

	if m := drcrSuffix.FindStringSubmatch(s); m != nil {
		if strings.EqualFold(m[1], "DR") {
			sign = SignDebit
		} else {
			sign = SignCredit
		}
		s = strings.TrimSpace(drcrSuffix.ReplaceAllString(s, ""))
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		sign = SignDebit
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	s = StandardizeAmount(s)
	switch {
	case strings.HasPrefix(s, "-"):
		sign = SignDebit
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		sign = SignCredit
		s = s[1:]
	}

	amount, err := decimal.NewFromString(s)
	if err != nil || s == "" {
		return decimal.Zero, SignNone, fmt.Errorf("failed to parse amount '%s': %w", amountStr, errOrInvalid(err))
	}
	return amount.Abs(), sign, nil
}

func errOrInvalid(err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("no digits")
}

// StandardizeAmount converts various currency string formats to a standard format that can be parsed by decimal.NewFromString
// Handles patterns like "₦1,234.56", "NGN 1 234.56", "1.234,56" and "1'234.56".
func StandardizeAmount(amountStr string) string {
	amountStr = currencyMarks.ReplaceAllString(amountStr, "")
	amountStr = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\u00a0', '\'':
			return -1
		}
		return r
	}, amountStr)

	hasComma := strings.Contains(amountStr, ",")
	hasDot := strings.Contains(amountStr, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(amountStr, ".") < strings.LastIndex(amountStr, ",") {
			// European format (1.234,56)
			amountStr = strings.ReplaceAll(amountStr, ".", "")
			amountStr = strings.ReplaceAll(amountStr, ",", ".")
		} else {
			amountStr = strings.ReplaceAll(amountStr, ",", "")
		}
	case hasComma:
		parts := strings.Split(amountStr, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			// Comma used as decimal separator (1234,56)
			amountStr = strings.ReplaceAll(amountStr, ",", ".")
		} else {
			amountStr = strings.ReplaceAll(amountStr, ",", "")
		}
	}

	return amountStr
}

// LooksLikeAmount reports whether s parses as an amount and contains at least one digit.
func LooksLikeAmount(s string) bool {
	if IsBlankAmount(s) || !strings.ContainsAny(s, "0123456789") {
		return false
	}
	_, _, err := ParseSignedAmount(s)
	return err == nil
}
