package domain

import (
	"testing"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSplitAmount(t *testing.T) {
	cases := []struct {
		name          string
		glType        accountdomain.Type
		amount        string
		debit, credit string
	}{
		{"asset money in", accountdomain.TypeAsset, "250.00", "250", "0"},
		{"asset money out", accountdomain.TypeAsset, "-99.90", "0", "99.9"},
		{"liability refund", accountdomain.TypeLiability, "-99.90", "99.9", "0"},
		{"liability charge", accountdomain.TypeLiability, "500", "0", "500"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tc.amount)
			debit, credit := SplitAmount(tc.glType, amount)
			assert.True(t, decimal.RequireFromString(tc.debit).Equal(debit), "debit %s", debit)
			assert.True(t, decimal.RequireFromString(tc.credit).Equal(credit), "credit %s", credit)
			assert.True(t, amount.Equal(SignedAmount(tc.glType, debit, credit)))
		})
	}
}
