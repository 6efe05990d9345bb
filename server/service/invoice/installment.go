package invoice

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hrygo/nfintake/store"
)

// SplitInstallments divides total evenly across dueDates, rounded down to cents.
// The remainder goes to the last installment so the amounts sum to total and
// none is negative.
// Each balance starts equal to its amount.
func SplitInstallments(total decimal.Decimal, dueDates []time.Time) []*store.Installment {
	n := len(dueDates)
	if n == 0 {
		return nil
	}

	total = total.Round(2)
	share := total.Div(decimal.NewFromInt(int64(n))).RoundFloor(2)
	allocated := decimal.Zero

	list := make([]*store.Installment, 0, n)
	for i, due := range dueDates {
		amount := share
		if i == n-1 {
			amount = total.Sub(allocated)
		}
		allocated = allocated.Add(amount)

		list = append(list, &store.Installment{
			Label:   fmt.Sprintf("%d/%d", i+1, n),
			DueDate: due,
			Amount:  amount,
			Balance: amount,
		})
	}
	return list
}
