package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountDigits bounds the integer part of prices and bids: every amount
// must stay below 10^MaxAmountDigits so it fits the integer minor units of
// the persistent store.
const MaxAmountDigits = 12

// maxPlainFraction is the longest fraction FormatAmount writes out in full
const maxPlainFraction = 18

// amountDigits returns the number of integer and fractional digits of d with
// trailing zeros stripped. d is never rescaled, so the cost depends on the
// length of the coefficient and not on the exponent.
func amountDigits(d decimal.Decimal) (integer, fraction int64) {
	digits := strings.TrimPrefix(d.Coefficient().String(), "-")
	significant := strings.TrimRight(digits, "0")
	if significant == "" {
		return 0, 0
	}

	exp := int64(d.Exponent()) + int64(len(digits)-len(significant))
	if exp < 0 {
		fraction = -exp
	}
	return int64(len(significant)) + exp, fraction
}

// HasPrecision reports whether d has no more than places fractional digits
func HasPrecision(d decimal.Decimal, places int32) bool {
	_, fraction := amountDigits(d)
	return fraction <= int64(places)
}

// WithinBounds reports whether |d| is below 10^MaxAmountDigits
func WithinBounds(d decimal.Decimal) bool {
	integer, _ := amountDigits(d)
	return integer <= MaxAmountDigits
}

// FormatAmount renders d for logs and error messages. Amounts with extreme
// exponents are written as coefficient and exponent instead of being expanded.
func FormatAmount(d decimal.Decimal) string {
	if integer, fraction := amountDigits(d); integer <= MaxAmountDigits && fraction <= maxPlainFraction {
		return d.String()
	}
	return fmt.Sprintf("%se%d", d.Coefficient().String(), d.Exponent())
}
