package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProcessTradeCommission(t *testing.T) {
	chain := []Upline{{ID: "a", Rank: V1}, {ID: "b", Rank: V4}}
	res := ProcessTradeCommission(chain, decimal.NewFromInt(10))

	assert.Equal(t, "10", res.ProfitAmount.String())
	assert.Equal(t, "3", res.PerformanceFee.String())
	assert.Equal(t, "1", res.MasterTraderFee.String())
	assert.Equal(t, "2", res.NetworkFee.String())
	assert.Equal(t, "7", res.RemainingProfit.String())

	assert.Equal(t, "0.2", res.CommissionAmounts["a"].String())
	assert.Equal(t, "0.6", res.CommissionAmounts["b"].String())
	assert.Equal(t, "1.2", res.CommissionAmounts[PlatformSinkID].String())
	assert.True(t, res.NetworkFee.Equal(res.TotalDistributed))
	assert.True(t, NetworkRate.Equal(res.Distribution.Total()))
	assert.Len(t, res.Allocations, 3)
}

func TestProcessTradeCommissionNegativeProfit(t *testing.T) {
	res := ProcessTradeCommission([]Upline{{ID: "a", Rank: V8}}, decimal.NewFromInt(-5))

	assert.True(t, res.ProfitAmount.IsZero())
	assert.True(t, res.PerformanceFee.IsZero())
	assert.True(t, res.TotalDistributed.IsZero())
	assert.True(t, pct(20).Equal(res.Distribution["a"]))
}
