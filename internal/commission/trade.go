// =============================
// File: internal/commission/trade.go
// =============================
package commission

import (
	"github.com/shopspring/decimal"
)

// Result is the full fee breakdown of a single closed trade.
type Result struct {
	ProfitAmount      decimal.Decimal
	PerformanceFee    decimal.Decimal
	MasterTraderFee   decimal.Decimal
	NetworkFee        decimal.Decimal
	RemainingProfit   decimal.Decimal
	Allocations       []Allocation
	Distribution      Distribution
	CommissionAmounts map[string]decimal.Decimal
	TotalDistributed  decimal.Decimal
}

func percentOf(rate, amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// ProcessTradeCommission splits the profit into performance, master trader
// and network fees and distributes the network share over the chain.
// Non-positive profit yields zero amounts with the distribution still computed.
func ProcessTradeCommission(chain []Upline, profit decimal.Decimal) Result {
	if profit.IsNegative() {
		profit = decimal.Zero
	}

	allocs := Allocate(chain)
	dist := make(Distribution, len(allocs))
	for _, a := range allocs {
		dist[a.ID] = a.Percentage
	}
	amounts := CalculateCommissionAmounts(dist, profit)

	total := decimal.Zero
	for _, amt := range amounts {
		total = total.Add(amt)
	}

	performance := percentOf(PerformanceFeeRate, profit)
	return Result{
		ProfitAmount:      profit,
		PerformanceFee:    performance,
		MasterTraderFee:   percentOf(MasterTraderRate, profit),
		NetworkFee:        percentOf(NetworkRate, profit),
		RemainingProfit:   profit.Sub(performance),
		Allocations:       allocs,
		Distribution:      dist,
		CommissionAmounts: amounts,
		TotalDistributed:  total,
	}
}
