package invoice

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dates(n int) []time.Time {
	list := make([]time.Time, n)
	for i := range list {
		list[i] = time.Date(2024, time.Month(i+2), 15, 0, 0, 0, 0, time.UTC)
	}
	return list
}

func TestSplitInstallments_RemainderOnLast(t *testing.T) {
	list := SplitInstallments(decimal.RequireFromString("100.00"), dates(3))
	require.Len(t, list, 3)

	got := []string{}
	for _, i := range list {
		got = append(got, i.Amount.StringFixed(2))
		assert.True(t, i.Amount.Equal(i.Balance))
	}
	assert.Equal(t, []string{"33.33", "33.33", "33.34"}, got)
	assert.Equal(t, "1/3", list[0].Label)
	assert.Equal(t, "3/3", list[2].Label)
	assert.Equal(t, time.April, list[2].DueDate.Month())
}

func TestSplitInstallments_SumsToTotal(t *testing.T) {
	tests := []struct {
		total string
		n     int
	}{
		{"100.00", 1},
		{"100.00", 6},
		{"0.05", 3},
		{"1234.57", 7},
		{"999.99", 12},
		{"10.005", 2},
		{"0.07", 12},
		{"0.01", 3},
		{"5.99", 12},
	}

	for _, tt := range tests {
		total := decimal.RequireFromString(tt.total)
		list := SplitInstallments(total, dates(tt.n))
		require.Len(t, list, tt.n)

		sum := decimal.Zero
		for _, i := range list {
			sum = sum.Add(i.Amount)
			assert.True(t, i.Amount.Equal(i.Amount.Round(2)), "amount %s has more than two decimals", i.Amount)
			assert.False(t, i.Amount.IsNegative(), "installment %s of %s/%d is %s", i.Label, tt.total, tt.n, i.Amount)
			assert.True(t, i.Balance.Equal(i.Amount))
		}
		assert.True(t, total.Round(2).Equal(sum), "total %s n %d sum %s", tt.total, tt.n, sum)
	}
}

func TestSplitInstallments_TinyTotalStaysNonNegative(t *testing.T) {
	list := SplitInstallments(decimal.RequireFromString("0.07"), dates(12))
	require.Len(t, list, 12)
	for _, i := range list[:11] {
		assert.True(t, i.Amount.IsZero(), "%s is %s", i.Label, i.Amount)
	}
	assert.Equal(t, "12/12", list[11].Label)
	assert.True(t, list[11].Amount.Equal(decimal.RequireFromString("0.07")))
}

func TestSplitInstallments_Empty(t *testing.T) {
	assert.Nil(t, SplitInstallments(decimal.RequireFromString("10"), nil))
}
