package handlers

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// itemTotal returns unitAmount × quantity rounded to cents. A supplied total
// must agree with it.
func itemTotal(field string, unitAmount float64, quantity int, supplied *float64) (float64, error) {
	computed := decimal.NewFromFloat(unitAmount).Mul(decimal.NewFromInt(int64(quantity))).Round(2)
	if supplied != nil && !decimal.NewFromFloat(*supplied).Round(2).Equal(computed) {
		return 0, fmt.Errorf("%s must equal unitAmount × quantity (%s)", field, computed.StringFixed(2))
	}
	return computed.InexactFloat64(), nil
}

func sumAmounts(amounts []float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.Round(2).InexactFloat64()
}
