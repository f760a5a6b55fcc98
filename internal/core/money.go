// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer cents. Strings and loosely typed values coming
// from forms, imports or persisted payloads are converted here and nowhere else.
package core

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to cents with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Negative values and malformed input are rejected; zero is allowed.
//
// Examples:
//
//	ParseAmount("12.34") -> {1234}, nil
//	ParseAmount("12,345") -> {1235}, nil
//	ParseAmount("-1") -> {}, ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	return fromDecimal(d)
}

// SanitizeAmount coerces an arbitrary value into a non-negative amount.
// Anything that is not a finite number becomes zero and a negative number
// keeps only its magnitude. It never fails.
func SanitizeAmount(v any) Money {
	var d decimal.Decimal
	switch x := v.(type) {
	case nil:
		return Money{}
	case Money:
		d = decimal.New(x.Cents, -2)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || math.Abs(x) > 1e15 {
			return Money{}
		}
		d = decimal.NewFromFloat(x)
	case json.Number:
		var err error
		if d, err = decimal.NewFromString(x.String()); err != nil {
			return Money{}
		}
	case string:
		var err error
		if d, err = decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(x), ",", ".")); err != nil {
			return Money{}
		}
	default:
		return Money{}
	}
	m, err := fromDecimal(d.Abs())
	if err != nil {
		return Money{}
	}
	return m
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Shift(2).Round(0)
	// keep clear of int64 overflow
	if cents.GreaterThan(decimal.New(1, 17)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Float returns the amount in currency units for display and ratio math.
// Use cents for sums to avoid floating-point drift.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// Decimal returns the amount as an exact decimal in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}
