// =============================
// File: internal/commission/requirements.go
// =============================
package commission

import (
	"github.com/shopspring/decimal"
)

// Requirement is what a participant needs to hold a rank.
type Requirement struct {
	Rank Rank
	// NetworkProfit is the minimum cumulative profit generated by the downline.
	NetworkProfit decimal.Decimal
	// LineRank is the rank that must be present in at least MinLines
	// distinct direct-referral lines. Unranked means no structure requirement.
	LineRank Rank
	MinLines int
}

var networkProfitThresholds = [...]int64{0, 0, 30, 100, 300, 1000, 3000, 10000, 30000}

// RankRequirements returns the requirement for every rank V1..V8.
func RankRequirements() []Requirement {
	reqs := make([]Requirement, 0, int(MaxRank))
	for r := V1; r <= MaxRank; r++ {
		reqs = append(reqs, requirementFor(r))
	}
	return reqs
}

func requirementFor(r Rank) Requirement {
	req := Requirement{Rank: r, NetworkProfit: decimal.NewFromInt(networkProfitThresholds[r])}
	if r > V1 {
		req.LineRank = r - 1
		req.MinLines = 2
	}
	return req
}

// NetworkStats is the downline snapshot a rank evaluation needs.
type NetworkStats struct {
	NetworkProfit decimal.Decimal
	// LineBestRanks holds the best rank found in each direct-referral line.
	LineBestRanks []Rank
}

// Satisfies reports whether stats meet the requirement.
func (req Requirement) Satisfies(stats NetworkStats) bool {
	if stats.NetworkProfit.LessThan(req.NetworkProfit) {
		return false
	}
	if req.MinLines == 0 {
		return true
	}
	lines := 0
	for _, best := range stats.LineBestRanks {
		if best >= req.LineRank {
			lines++
		}
	}
	return lines >= req.MinLines
}

// QualifiedRank returns the highest rank the stats satisfy, never lower than
// current. Ranks are only ever promoted.
func QualifiedRank(current Rank, stats NetworkStats) Rank {
	best := current
	for r := MaxRank; r > best; r-- {
		if requirementFor(r).Satisfies(stats) {
			return r
		}
	}
	return best
}
