package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLineTotal(t *testing.T) {
	assert.True(t, LineTotal(d("5.00"), 2).Equal(d("10.00")))
	assert.True(t, LineTotal(d("0.333"), 3).Equal(d("1.00")))
	assert.True(t, LineTotal(d("19.99"), 0).IsZero())
}

func TestRound_HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, "2.68", Round(d("2.675")).StringFixed(2))
	assert.Equal(t, "-2.68", Round(d("-2.675")).StringFixed(2))
}

func TestParse(t *testing.T) {
	v, err := Parse(" 1,250.50 ")
	require.NoError(t, err)
	assert.True(t, v.Equal(d("1250.5")))

	_, err = Parse("")
	assert.Error(t, err)
	_, err = Parse("abc")
	assert.Error(t, err)
}

func TestPercent(t *testing.T) {
	assert.True(t, Percent(d("2.5"), d("10")).Equal(d("25")))
	assert.True(t, Percent(d("1"), decimal.Zero).IsZero())
}

func TestSum(t *testing.T) {
	assert.True(t, Sum(d("1.10"), d("2.20"), d("3.30")).Equal(d("6.60")))
	assert.True(t, Sum().IsZero())
}
