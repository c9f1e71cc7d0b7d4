package journal

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestValidateBalanced(t *testing.T) {
	res := Validate([]Line{
		{AccountID: 1, Debit: d("450.00"), Credit: decimal.Zero},
		{AccountID: 2, Debit: decimal.Zero, Credit: d("450.00")},
	})
	assert.True(t, res.Valid())
	assert.True(t, res.Balanced)
	assert.NoError(t, res.Err())
	assert.True(t, res.TotalDebit.Equal(d("450")))
}

func TestValidateWithinEpsilon(t *testing.T) {
	res := Validate([]Line{
		{AccountID: 1, Debit: d("100.005")},
		{AccountID: 2, Credit: d("100.00")},
	})
	assert.True(t, res.Valid())

	res = Validate([]Line{
		{AccountID: 1, Debit: d("100.01")},
		{AccountID: 2, Credit: d("100.00")},
	})
	require.False(t, res.Valid())

	var verr *ValidationError
	require.True(t, errors.As(res.Err(), &verr))
	assert.Equal(t, CodeUnbalanced, verr.Code)
	assert.True(t, verr.Difference.Equal(d("0.01")))
}

func TestValidateInvalidLine(t *testing.T) {
	cases := map[string]Line{
		"both sides": {AccountID: 1, Debit: d("10"), Credit: d("10")},
		"no side":    {AccountID: 1},
		"negative":   {AccountID: 1, Debit: d("-10")},
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			res := Validate([]Line{line, {AccountID: 2, Credit: d("10")}})
			var verr *ValidationError
			require.True(t, errors.As(res.Err(), &verr))
			assert.Equal(t, CodeInvalidLine, verr.Code)
			assert.Equal(t, 0, verr.Line)
		})
	}
}

func TestValidateInsufficientEntries(t *testing.T) {
	res := Validate([]Line{{AccountID: 1, Credit: d("450")}})
	codes := []Code{}
	for _, v := range res.Violations {
		codes = append(codes, v.Code)
	}
	assert.ElementsMatch(t, []Code{CodeInsufficientEntries, CodeUnbalanced}, codes)

	var verr *ValidationError
	require.True(t, errors.As(res.Err(), &verr))
	assert.Equal(t, CodeInsufficientEntries, verr.Code)
	assert.True(t, verr.Difference.Equal(d("-450")))

	res = Validate(nil)
	assert.False(t, res.Valid())
}

func TestPostabilityMatchesAllThreeRules(t *testing.T) {
	cases := []struct {
		lines []Line
		want  bool
	}{
		{[]Line{{Debit: d("1")}, {Credit: d("1")}}, true},
		{[]Line{{Debit: d("1")}, {Credit: d("0.5")}, {Credit: d("0.5")}}, true},
		{[]Line{{Debit: d("1")}, {Credit: d("2")}}, false},
		{[]Line{{Debit: d("0")}, {Credit: d("0")}}, false},
		{[]Line{{Debit: d("1"), Credit: d("1")}, {Debit: d("1"), Credit: d("1")}}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Validate(tc.lines).Valid())
	}
}
