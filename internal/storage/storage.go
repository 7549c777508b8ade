// ==================================
// File: internal/storage/storage.go
// ==================================
package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/memeflow/copytrade/internal/storage/models"
)

// AffiliateStore is the referral graph.
type AffiliateStore interface {
	UpsertAffiliate(ctx context.Context, a *models.Affiliate) error
	// GetAffiliate returns ErrNotFound for unknown users.
	GetAffiliate(ctx context.Context, userID string) (*models.Affiliate, error)
	// UplineChain returns sponsors closest first, at most maxDepth entries.
	// Cycles end the walk. Unknown users return ErrNotFound.
	UplineChain(ctx context.Context, userID string, maxDepth int) ([]models.UplineEntry, error)
	DirectReferrals(ctx context.Context, userID string) ([]*models.Affiliate, error)
	// LineStats returns network profit and the best rank of every direct line,
	// searching at most maxDepth levels below the user.
	LineStats(ctx context.Context, userID string, maxDepth int) (*models.LineStats, error)
}

// CommissionStore persists settlements and their commission rows.
type CommissionStore interface {
	// RecordSettlement writes the settlement and every distribution row
	// atomically and credits recipients' earnings. A second settlement for the
	// same copy trade returns ErrDuplicateKey.
	RecordSettlement(ctx context.Context, s *models.Settlement) error
	GetSettlement(ctx context.Context, copyTradeID string) (*models.Settlement, error)
	// RecordSwap stores the on-chain swap of a copy trade; ErrDuplicateKey if
	// one is already recorded.
	RecordSwap(ctx context.Context, r *models.SwapRecord) error
	GetSwap(ctx context.Context, copyTradeID string) (*models.SwapRecord, error)
	ListCommissionsByRecipient(ctx context.Context, userID string, limit int) ([]models.CommissionRecord, error)
	ListCommissionsByCopyTrade(ctx context.Context, copyTradeID string) ([]models.CommissionRecord, error)
}

// RankingStore tracks network profit and promotions.
type RankingStore interface {
	AddNetworkProfit(ctx context.Context, userIDs []string, amount decimal.Decimal) error
	// RecordRankProgress raises the affiliate's rank and appends the history
	// row. ErrRankNotPromoted if ToRank is not above the stored rank.
	RecordRankProgress(ctx context.Context, p *models.RankingProgress) error
	ListRankProgress(ctx context.Context, userID string) ([]models.RankingProgress, error)
}

// Store is the full persistence boundary.
type Store interface {
	AffiliateStore
	CommissionStore
	RankingStore
	Close()
}
