// ==================================
// File: internal/storage/storagetest/suite.go
// ==================================

// Package storagetest holds behaviour checks shared by every storage.Store
// implementation.
package storagetest

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memeflow/copytrade/internal/storage"
	"github.com/memeflow/copytrade/internal/storage/models"
)

// Run exercises a fresh store returned by newStore for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("Affiliates", func(t *testing.T) { testAffiliates(t, newStore(t)) })
	t.Run("UplineChain", func(t *testing.T) { testUplineChain(t, newStore(t)) })
	t.Run("UplineCycle", func(t *testing.T) { testUplineCycle(t, newStore(t)) })
	t.Run("LineStats", func(t *testing.T) { testLineStats(t, newStore(t)) })
	t.Run("Settlements", func(t *testing.T) { testSettlements(t, newStore(t)) })
	t.Run("Swaps", func(t *testing.T) { testSwaps(t, newStore(t)) })
	t.Run("Ranking", func(t *testing.T) { testRanking(t, newStore(t)) })
}

func seed(t *testing.T, s storage.Store, rows ...models.Affiliate) {
	t.Helper()
	for i := range rows {
		require.NoError(t, s.UpsertAffiliate(context.Background(), &rows[i]))
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testAffiliates(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.GetAffiliate(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	seed(t, s,
		models.Affiliate{UserID: "root", Rank: 3, WalletAddress: "w-root"},
		models.Affiliate{UserID: "b", SponsorID: "root"},
		models.Affiliate{UserID: "a", SponsorID: "root", Rank: 1},
	)

	got, err := s.GetAffiliate(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Rank)
	assert.Equal(t, "w-root", got.WalletAddress)
	assert.True(t, got.TotalNetworkProfit.IsZero())

	seed(t, s, models.Affiliate{UserID: "root", Rank: 4, WalletAddress: "w-root-2"})
	got, err = s.GetAffiliate(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rank)
	assert.Equal(t, "w-root-2", got.WalletAddress)

	refs, err := s.DirectReferrals(ctx, "root")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "a", refs[0].UserID)
	assert.Equal(t, "b", refs[1].UserID)

	refs, err = s.DirectReferrals(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func testUplineChain(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seed(t, s,
		models.Affiliate{UserID: "root", Rank: 8},
		models.Affiliate{UserID: "a", SponsorID: "root", Rank: 5},
		models.Affiliate{UserID: "b", SponsorID: "a", Rank: 2},
		models.Affiliate{UserID: "c", SponsorID: "b"},
	)

	chain, err := s.UplineChain(ctx, "c", 10)
	require.NoError(t, err)
	assert.Equal(t, []models.UplineEntry{
		{UserID: "b", Rank: 2, Depth: 1},
		{UserID: "a", Rank: 5, Depth: 2},
		{UserID: "root", Rank: 8, Depth: 3},
	}, chain)

	chain, err = s.UplineChain(ctx, "c", 2)
	require.NoError(t, err)
	assert.Len(t, chain, 2)

	chain, err = s.UplineChain(ctx, "root", 10)
	require.NoError(t, err)
	assert.Empty(t, chain)

	_, err = s.UplineChain(ctx, "ghost", 10)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUplineCycle(t *testing.T, s storage.Store) {
	seed(t, s,
		models.Affiliate{UserID: "x", SponsorID: "y", Rank: 1},
		models.Affiliate{UserID: "y", SponsorID: "x", Rank: 2},
	)

	chain, err := s.UplineChain(context.Background(), "x", 10)
	require.NoError(t, err)
	assert.Equal(t, []models.UplineEntry{{UserID: "y", Rank: 2, Depth: 1}}, chain)
}

func testLineStats(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seed(t, s,
		models.Affiliate{UserID: "root", Rank: 3},
		models.Affiliate{UserID: "a", SponsorID: "root", Rank: 2},
		models.Affiliate{UserID: "a1", SponsorID: "a", Rank: 4},
		models.Affiliate{UserID: "b", SponsorID: "root", Rank: 1},
	)
	require.NoError(t, s.AddNetworkProfit(ctx, []string{"root"}, dec("125.5")))

	stats, err := s.LineStats(ctx, "root", 10)
	require.NoError(t, err)
	assert.True(t, stats.NetworkProfit.Equal(dec("125.5")), stats.NetworkProfit.String())
	assert.Equal(t, []int{4, 1}, stats.LineBestRanks)

	stats, err = s.LineStats(ctx, "root", 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, stats.LineBestRanks)

	stats, err = s.LineStats(ctx, "b", 10)
	require.NoError(t, err)
	assert.Empty(t, stats.LineBestRanks)

	_, err = s.LineStats(ctx, "ghost", 10)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testSettlements(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seed(t, s,
		models.Affiliate{UserID: "up1", Rank: 3},
		models.Affiliate{UserID: "follower", SponsorID: "up1"},
	)

	_, err := s.GetSettlement(ctx, "trade-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	st := &models.Settlement{
		CopyTradeID:      "trade-1",
		FollowerID:       "follower",
		Signature:        "sig-1",
		AmountIn:         1_000_000,
		AmountOut:        999_000,
		ProfitAmount:     dec("0.099"),
		PerformanceFee:   dec("0.0297"),
		MasterTraderFee:  dec("0.0099"),
		NetworkFee:       dec("0.0198"),
		TotalDistributed: dec("0.0198"),
		Distributions: []models.CommissionRecord{
			{RecipientID: "up1", RecipientRank: 3, Percentage: dec("6"), Amount: dec("0.00594")},
			{RecipientID: "memeflow", RecipientRank: 0, Percentage: dec("14"), Amount: dec("0.01386")},
		},
	}
	require.NoError(t, s.RecordSettlement(ctx, st))

	dup := *st
	dup.Distributions = nil
	assert.ErrorIs(t, s.RecordSettlement(ctx, &dup), storage.ErrDuplicateKey)

	got, err := s.GetSettlement(ctx, "trade-1")
	require.NoError(t, err)
	assert.Equal(t, "sig-1", got.Signature)
	assert.Equal(t, uint64(999_000), got.AmountOut)
	assert.True(t, got.ProfitAmount.Equal(dec("0.099")))
	require.Len(t, got.Distributions, 2)

	rows, err := s.ListCommissionsByCopyTrade(ctx, "trade-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Percentage)
	}
	assert.True(t, total.Equal(dec("20")))

	mine, err := s.ListCommissionsByRecipient(ctx, "up1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].Amount.Equal(dec("0.00594")))

	up, err := s.GetAffiliate(ctx, "up1")
	require.NoError(t, err)
	assert.True(t, up.TotalEarnings.Equal(dec("0.00594")), up.TotalEarnings.String())

	// The failed duplicate must not credit earnings twice.
	require.NoError(t, s.RecordSettlement(ctx, &models.Settlement{
		CopyTradeID: "trade-2",
		FollowerID:  "follower",
		Signature:   "sig-2",
		Distributions: []models.CommissionRecord{
			{RecipientID: "up1", RecipientRank: 3, Percentage: dec("6"), Amount: dec("1")},
		},
	}))
	up, err = s.GetAffiliate(ctx, "up1")
	require.NoError(t, err)
	assert.True(t, up.TotalEarnings.Equal(dec("1.00594")), up.TotalEarnings.String())

	mine, err = s.ListCommissionsByRecipient(ctx, "up1", 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "trade-2", mine[0].CopyTradeID)
}

func testSwaps(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.GetSwap(ctx, "trade-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rec := &models.SwapRecord{
		CopyTradeID:    "trade-1",
		FollowerID:     "follower",
		Signature:      "sig-1",
		AmountIn:       1_000_000,
		AmountOut:      999_000,
		RealizedProfit: 99_000,
		PerformanceFee: 29_700,
	}
	require.NoError(t, s.RecordSwap(ctx, rec))
	assert.False(t, rec.CreatedAt.IsZero())

	dup := *rec
	dup.Signature = "sig-2"
	assert.ErrorIs(t, s.RecordSwap(ctx, &dup), storage.ErrDuplicateKey)

	got, err := s.GetSwap(ctx, "trade-1")
	require.NoError(t, err)
	assert.Equal(t, "sig-1", got.Signature)
	assert.Equal(t, "follower", got.FollowerID)
	assert.Equal(t, uint64(1_000_000), got.AmountIn)
	assert.Equal(t, uint64(999_000), got.AmountOut)
	assert.Equal(t, uint64(99_000), got.RealizedProfit)
	assert.Equal(t, uint64(29_700), got.PerformanceFee)
}

func testRanking(t *testing.T, s storage.Store) {
	ctx := context.Background()
	seed(t, s, models.Affiliate{UserID: "u", Rank: 2})

	require.NoError(t, s.AddNetworkProfit(ctx, []string{"u", "ghost"}, dec("10")))
	require.NoError(t, s.AddNetworkProfit(ctx, []string{"u"}, dec("2.5")))
	u, err := s.GetAffiliate(ctx, "u")
	require.NoError(t, err)
	assert.True(t, u.TotalNetworkProfit.Equal(dec("12.5")))

	require.NoError(t, s.RecordRankProgress(ctx, &models.RankingProgress{UserID: "u", ToRank: 4, NetworkProfit: dec("12.5")}))
	assert.ErrorIs(t, s.RecordRankProgress(ctx, &models.RankingProgress{UserID: "u", ToRank: 4}), storage.ErrRankNotPromoted)
	assert.ErrorIs(t, s.RecordRankProgress(ctx, &models.RankingProgress{UserID: "u", ToRank: 1}), storage.ErrRankNotPromoted)
	assert.ErrorIs(t, s.RecordRankProgress(ctx, &models.RankingProgress{UserID: "ghost", ToRank: 1}), storage.ErrNotFound)

	u, err = s.GetAffiliate(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 4, u.Rank)

	hist, err := s.ListRankProgress(ctx, "u")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 2, hist[0].FromRank)
	assert.Equal(t, 4, hist[0].ToRank)
}
