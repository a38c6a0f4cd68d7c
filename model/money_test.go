package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMoneyAdd(t *testing.T) {
	a := MoneyFromFloat(1500, "PKR")
	b := MoneyFromFloat(2500.50, "PKR")

	sum, err := a.Add(b)
	assert.NoError(t, err)
	assert.True(t, sum.Amount.Equal(decimal.NewFromFloat(4000.50)))
	assert.Equal(t, "PKR", sum.Currency)
}

func TestMoneyAddCurrencyMismatch(t *testing.T) {
	a := MoneyFromFloat(100, "PKR")
	b := MoneyFromFloat(100, "USD")

	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = a.Sub(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoneyFromString(t *testing.T) {
	m, err := MoneyFromString("2500.00", "PKR")
	assert.NoError(t, err)
	assert.True(t, m.Amount.Equal(decimal.NewFromInt(2500)))

	_, err = MoneyFromString("not-a-number", "PKR")
	assert.Error(t, err)
}

func TestMoneyComparisons(t *testing.T) {
	a := MoneyFromFloat(1000, "PKR")
	b := MoneyFromFloat(1000.00, "PKR")
	c := MoneyFromFloat(999.99, "PKR")

	assert.True(t, a.Equals(b))
	assert.True(t, c.LessThan(a))
	assert.False(t, a.LessThan(c))
	// Comparing across currencies is never true.
	assert.False(t, a.Equals(MoneyFromFloat(1000, "USD")))
	assert.False(t, a.LessThan(MoneyFromFloat(2000, "USD")))
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "PKR 5000.00", MoneyFromFloat(5000, "PKR").String())
}
