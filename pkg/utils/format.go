// Package utils provides shared utility functions.
package utils

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Round2 rounds a float to two decimal places, half away from zero.
func Round2(value float64) float64 {
	return decimal.NewFromFloat(value).Round(2).InexactFloat64()
}

// PercentChange returns (to-from)/from*100, or 0 when from is zero.
func PercentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPrice formats a price with its currency code.
func FormatPrice(amount float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return decimal.NewFromFloat(amount).StringFixed(2) + " " + currency
}
