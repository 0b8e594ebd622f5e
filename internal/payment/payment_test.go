package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLink(t *testing.T) {
	cfg := Config{Handle: "upiaddress@okhdfcbank", Name: "John Doe"}

	tests := []struct {
		name     string
		cfg      Config
		currency string
		amount   float64
		want     string
	}{
		{"without amount", cfg, "INR", 0, "upi://pay?pa=upiaddress@okhdfcbank&pn=John+Doe&cu=INR"},
		{"with amount", cfg, "inr", 115, "upi://pay?pa=upiaddress@okhdfcbank&pn=John+Doe&cu=INR&am=115.00"},
		{"amount rounded", cfg, "INR", 33.3333, "upi://pay?pa=upiaddress@okhdfcbank&pn=John+Doe&cu=INR&am=33.33"},
		{"default currency, no name", Config{Handle: "a@b"}, "", -5, "upi://pay?pa=a@b&cu=INR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Link(tt.cfg, tt.currency, tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLink_NoPayee(t *testing.T) {
	_, err := Link(Config{}, "INR", 10)
	assert.ErrorIs(t, err, ErrNoPayee)
}
