package iap

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestProduct_DisplayPrice(t *testing.T) {
	product := Product{
		ID:           "premium",
		Price:        decimal.RequireFromString("4.99"),
		CurrencyCode: "USD",
	}
	require.Equal(t, "4.99 USD", product.DisplayPrice())

	product.Price = decimal.NewFromInt(3)
	require.Equal(t, "3.00 USD", product.DisplayPrice())

	for price, expected := range map[string]string{
		"1299":        "1,299.00 USD",
		"1.005":       "1.01 USD",
		"0.125":       "0.13 USD",
		"12345678.99": "12,345,678.99 USD",
		"-0.5":        "-0.50 USD",
		"-0.001":      "0.00 USD",
	} {
		product.Price = decimal.RequireFromString(price)
		require.Equal(t, expected, product.DisplayPrice(), price)
	}
}
