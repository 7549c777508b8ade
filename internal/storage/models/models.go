// ==================================
// File: internal/storage/models/models.go
// ==================================
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Affiliate is a node of the referral network. Amounts are in quote units.
type Affiliate struct {
	UserID             string
	SponsorID          string // пусто для корневых участников
	WalletAddress      string
	Rank               int
	TotalNetworkProfit decimal.Decimal
	TotalEarnings      decimal.Decimal
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UplineEntry is one ancestor in closest-to-furthest order; Depth 1 is the sponsor.
type UplineEntry struct {
	UserID string
	Rank   int
	Depth  int
}

// LineStats summarises a participant's downline for rank evaluation.
type LineStats struct {
	NetworkProfit decimal.Decimal
	// LineBestRanks holds the best rank in each direct-referral line.
	LineBestRanks []int
}

// Settlement is the persisted outcome of one closed copy trade.
type Settlement struct {
	ID               uuid.UUID
	CopyTradeID      string
	FollowerID       string
	Signature        string
	AmountIn         uint64
	AmountOut        uint64
	ProfitAmount     decimal.Decimal
	PerformanceFee   decimal.Decimal
	MasterTraderFee  decimal.Decimal
	NetworkFee       decimal.Decimal
	TotalDistributed decimal.Decimal
	Distributions    []CommissionRecord
	CreatedAt        time.Time
}

// SwapRecord marks a swap that has executed on-chain for a copy trade. It is
// written before the settlement so a retried trade resumes from it instead of
// swapping again. Amounts are destination token base units.
type SwapRecord struct {
	CopyTradeID    string
	FollowerID     string
	Signature      string
	AmountIn       uint64
	AmountOut      uint64
	RealizedProfit uint64
	PerformanceFee uint64
	CreatedAt      time.Time
}

// CommissionRecord is one recipient's commission row for a copy trade.
type CommissionRecord struct {
	ID            uuid.UUID
	CopyTradeID   string
	RecipientID   string
	RecipientRank int
	Percentage    decimal.Decimal
	Amount        decimal.Decimal
	CreatedAt     time.Time
}

// RankingProgress records a promotion.
type RankingProgress struct {
	ID            uuid.UUID
	UserID        string
	FromRank      int
	ToRank        int
	NetworkProfit decimal.Decimal
	CreatedAt     time.Time
}
