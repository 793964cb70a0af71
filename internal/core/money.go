// Package core provides money parsing and handling utilities.
//
// Amounts and liters are carried as decimals. Amounts are rounded to two
// places, quantities to three.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

const (
	moneyPlaces    = 2
	quantityPlaces = 3
)

// ParseAmount converts a decimal string to a currency amount with half-up
// rounding on the third decimal place.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Zero is
// allowed; signs are not.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parseUnsigned(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Msg: "invalid amount"}
	}
	return RoundMoney(d), nil
}

// ParseQuantity converts a decimal string to liters rounded to milliliters.
func ParseQuantity(s string) (decimal.Decimal, error) {
	d, err := parseUnsigned(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "quantity", Msg: "invalid quantity"}
	}
	return d.Round(quantityPlaces), nil
}

func parseUnsigned(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errInvalidNumber
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, errInvalidNumber
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, errInvalidNumber
		}
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	return decimal.NewFromString(s)
}

// RoundMoney rounds an amount half-up to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// FormatRupees formats an amount for display, e.g. "₹1,234.50".
func FormatRupees(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := RoundMoney(d.Abs()).StringFixed(moneyPlaces)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "₹" + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// FormatLiters formats a quantity with two decimals and the unit suffix.
func FormatLiters(d decimal.Decimal) string {
	return d.StringFixed(2) + " L"
}
