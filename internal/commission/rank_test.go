package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankCeilings(t *testing.T) {
	prev := decimal.Zero
	for r := V1; r <= MaxRank; r++ {
		c := r.Ceiling()
		assert.Truef(t, c.GreaterThanOrEqual(prev), "%s ceiling decreased", r)
		prev = c
	}
	assert.True(t, NetworkRate.Equal(MaxRank.Ceiling()))
	assert.True(t, Unranked.Ceiling().IsZero())
	assert.True(t, Rank(42).Ceiling().IsZero())
}

func TestParseRank(t *testing.T) {
	tests := []struct {
		in      string
		want    Rank
		wantErr bool
	}{
		{in: "V5", want: V5},
		{in: "v1", want: V1},
		{in: "8", want: V8},
		{in: "", want: Unranked},
		{in: "unranked", want: Unranked},
		{in: "V9", wantErr: true},
		{in: "gold", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRank(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "V3", V3.String())
	assert.Equal(t, "unranked", Unranked.String())
}

func TestQualifiedRank(t *testing.T) {
	tests := []struct {
		name    string
		current Rank
		stats   NetworkStats
		want    Rank
	}{
		{
			name:  "new participant reaches V1",
			stats: NetworkStats{NetworkProfit: decimal.Zero},
			want:  V1,
		},
		{
			name:  "profit without structure stays at V1",
			stats: NetworkStats{NetworkProfit: decimal.NewFromInt(50000)},
			want:  V1,
		},
		{
			name: "two V1 lines and 30 profit reach V2",
			stats: NetworkStats{
				NetworkProfit: decimal.NewFromInt(30),
				LineBestRanks: []Rank{V1, V1, Unranked},
			},
			want: V2,
		},
		{
			name: "one strong line is not enough",
			stats: NetworkStats{
				NetworkProfit: decimal.NewFromInt(1000),
				LineBestRanks: []Rank{V6, Unranked},
			},
			want: V1,
		},
		{
			name: "highest satisfied rank wins",
			stats: NetworkStats{
				NetworkProfit: decimal.NewFromInt(3000),
				LineBestRanks: []Rank{V5, V6, V2},
			},
			want: V6,
		},
		{
			name:    "never downgrades",
			current: V7,
			stats:   NetworkStats{NetworkProfit: decimal.Zero},
			want:    V7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QualifiedRank(tt.current, tt.stats))
		})
	}
}

func TestRankRequirements(t *testing.T) {
	reqs := RankRequirements()
	require.Len(t, reqs, 8)
	assert.Equal(t, V1, reqs[0].Rank)
	assert.Equal(t, 0, reqs[0].MinLines)
	assert.Equal(t, "30000", reqs[7].NetworkProfit.String())
	assert.Equal(t, V7, reqs[7].LineRank)
}
