// Package payment builds UPI-style deep links that open a payment app with the
// payee and amount filled in. Links are only generated; nothing is charged or
// verified here.
package payment

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrNoPayee = errors.New("payment payee is not configured")

// Config identifies who receives payments.
type Config struct {
	// Handle is the payee virtual address, e.g. "name@okhdfcbank".
	Handle string `yaml:"handle"`
	// Name is the payee display name.
	Name string `yaml:"name"`
}

// Link returns upi://pay?pa=<handle>&pn=<name>&cu=<currency>[&am=<amount>].
// The amount is omitted when it is not positive, leaving it for the payer to enter.
func Link(cfg Config, currency string, amount float64) (string, error) {
	if cfg.Handle == "" {
		return "", ErrNoPayee
	}
	if currency == "" {
		currency = "INR"
	}

	var b strings.Builder
	b.WriteString("upi://pay?pa=")
	b.WriteString(escape(cfg.Handle))
	if cfg.Name != "" {
		b.WriteString("&pn=")
		b.WriteString(escape(cfg.Name))
	}
	b.WriteString("&cu=")
	b.WriteString(escape(strings.ToUpper(currency)))

	if d := decimal.NewFromFloat(amount).Round(2); d.IsPositive() {
		fmt.Fprintf(&b, "&am=%s", d.StringFixed(2))
	}
	return b.String(), nil
}

// escape query-escapes s but keeps '@', which payment apps expect literally.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "%40", "@")
}
