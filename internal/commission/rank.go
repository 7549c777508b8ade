// =============================
// File: internal/commission/rank.go
// =============================
package commission

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Rank is a participant tier. Unranked participants carry the zero value.
type Rank int

const (
	Unranked Rank = iota
	V1
	V2
	V3
	V4
	V5
	V6
	V7
	V8
)

// MaxRank is the strongest tier; its ceiling equals the network rate.
const MaxRank = V8

// rankCeilings are percent-of-profit caps indexed by rank.
var rankCeilings = [...]int64{0, 2, 4, 6, 8, 12, 14, 16, 20}

// Valid reports whether r is one of V1..V8.
func (r Rank) Valid() bool {
	return r >= V1 && r <= MaxRank
}

// Ceiling returns the commission ceiling in percent. Unranked and
// out-of-range values yield zero.
func (r Rank) Ceiling() decimal.Decimal {
	if !r.Valid() {
		return decimal.Zero
	}
	return decimal.NewFromInt(rankCeilings[r])
}

func (r Rank) String() string {
	if !r.Valid() {
		return "unranked"
	}
	return "V" + strconv.Itoa(int(r))
}

// ParseRank accepts "V5", "v5", "5", or an empty string / "unranked".
func ParseRank(s string) (Rank, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "UNRANKED" || s == "0" {
		return Unranked, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, "V"))
	if err != nil {
		return Unranked, fmt.Errorf("invalid rank %q: %w", s, err)
	}
	r := Rank(n)
	if !r.Valid() {
		return Unranked, fmt.Errorf("rank %q out of range V1..V8", s)
	}
	return r, nil
}
