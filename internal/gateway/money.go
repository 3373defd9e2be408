package gateway

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var hundred = decimal.NewFromInt(100)

// MinorUnits converts an amount in currency units to minor units, rounding
// half away from zero.
func MinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(hundred).Round(0).IntPart()
}

// NormalizeCurrency validates an ISO 4217 code and returns it in the lower
// case form the provider expects.
func NormalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", err
	}
	return strings.ToLower(unit.String()), nil
}
