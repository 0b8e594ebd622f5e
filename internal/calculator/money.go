package calculator

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// RoundCents rounds an amount half away from zero to two decimal places.
func RoundCents(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// FormatCurrency renders an amount with two fraction digits, prefixed by the
// currency symbol when known and by the currency code otherwise.
func FormatCurrency(amount float64, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	d := decimal.NewFromFloat(amount).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	code := strings.ToUpper(currency)
	if sym, ok := currencySymbols[code]; ok {
		return sign + sym + d.StringFixed(2)
	}
	return sign + code + " " + d.StringFixed(2)
}
