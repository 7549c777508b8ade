// =============================
// File: internal/program/fees.go
// =============================
package program

import (
	"math/bits"
)

// Fee rates in basis points of realized profit.
const (
	FeeDenominator     = 10_000
	PerformanceFeeBps  = 3_000
	NetworkFeeBps      = 2_000
	MasterTraderFeeBps = PerformanceFeeBps - NetworkFeeBps
)

// Fees is the aggregate fee split of one swap. MasterTraderFee + NetworkFee
// always equals PerformanceFee.
type Fees struct {
	RealizedProfit  uint64
	PerformanceFee  uint64
	MasterTraderFee uint64
	NetworkFee      uint64
}

// ComputeFees charges only on profit over costBasis; a zero cost basis
// (opening leg) is never charged.
func ComputeFees(amountOut, costBasis uint64) Fees {
	if costBasis == 0 || amountOut <= costBasis {
		return Fees{}
	}
	profit := amountOut - costBasis
	performance := mulDiv(profit, PerformanceFeeBps, FeeDenominator)
	network := mulDiv(profit, NetworkFeeBps, FeeDenominator)
	return Fees{
		RealizedProfit:  profit,
		PerformanceFee:  performance,
		MasterTraderFee: performance - network,
		NetworkFee:      network,
	}
}

// mulDiv computes a*b/d without overflow; b < d.
func mulDiv(a, b, d uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	q, _ := bits.Div64(hi, lo, d)
	return q
}
