// =============================
// File: internal/commission/distribution.go
// =============================
package commission

import (
	"github.com/shopspring/decimal"
)

// PlatformSinkID receives every unclaimed part of the network share.
const PlatformSinkID = "memeflow"

var (
	// PerformanceFeeRate is the total fee taken from realized profit, in percent.
	PerformanceFeeRate = decimal.NewFromInt(30)
	// MasterTraderRate is the master trader's part of the performance fee.
	MasterTraderRate = decimal.NewFromInt(10)
	// NetworkRate is the part distributed over the upline chain.
	NetworkRate = decimal.NewFromInt(20)

	hundred = decimal.NewFromInt(100)
)

// Upline is one ancestor of the profit-generating user, closest first.
type Upline struct {
	ID   string
	Rank Rank
}

// Allocation is a single participant's share of the network rate.
type Allocation struct {
	ID         string
	Rank       Rank
	Percentage decimal.Decimal
}

// Distribution maps participant id to percent of profit. It always contains
// PlatformSinkID and sums to NetworkRate.
type Distribution map[string]decimal.Decimal

// Total sums every entry including the sink.
func (d Distribution) Total() decimal.Decimal {
	total := decimal.Zero
	for _, pct := range d {
		total = total.Add(pct)
	}
	return total
}

// Allocate walks the chain closest to furthest and returns one allocation per
// distinct participant followed by the platform sink entry.
//
// Each participant earns only the increment between its ceiling and the best
// ceiling claimed closer in. Ties and lower ranks earn zero and do not move
// the baseline. A repeated id keeps its first allocation.
func Allocate(chain []Upline) []Allocation {
	out := make([]Allocation, 0, len(chain)+1)
	seen := make(map[string]struct{}, len(chain))
	previous := decimal.Zero
	assigned := decimal.Zero
	done := false

	for _, u := range chain {
		if _, dup := seen[u.ID]; dup || u.ID == PlatformSinkID {
			continue
		}
		seen[u.ID] = struct{}{}

		a := Allocation{ID: u.ID, Rank: u.Rank, Percentage: decimal.Zero}
		if !done {
			ceiling := u.Rank.Ceiling()
			if share := ceiling.Sub(previous); share.IsPositive() {
				a.Percentage = share
				previous = ceiling
				assigned = assigned.Add(share)
				// nothing left above the top ceiling
				done = previous.GreaterThanOrEqual(NetworkRate)
			}
		}
		out = append(out, a)
	}

	residual := NetworkRate.Sub(assigned)
	if residual.IsNegative() {
		residual = decimal.Zero
	}
	return append(out, Allocation{ID: PlatformSinkID, Percentage: residual})
}

// Distribute computes the differential distribution of the network rate
// over the chain. An empty chain sends the full rate to the sink.
func Distribute(chain []Upline) Distribution {
	allocs := Allocate(chain)
	d := make(Distribution, len(allocs))
	for _, a := range allocs {
		d[a.ID] = a.Percentage
	}
	return d
}

// CalculateCommissionAmounts converts percentages into absolute amounts
// against the full profit (not the network sub-amount).
func CalculateCommissionAmounts(d Distribution, profit decimal.Decimal) map[string]decimal.Decimal {
	amounts := make(map[string]decimal.Decimal, len(d))
	for id, pct := range d {
		amounts[id] = pct.Div(hundred).Mul(profit)
	}
	return amounts
}
