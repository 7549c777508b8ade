// ==================================
// File: internal/storage/postgres/swaps.go
// ==================================
package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/memeflow/copytrade/internal/storage"
	"github.com/memeflow/copytrade/internal/storage/models"
)

func (s *Store) RecordSwap(ctx context.Context, r *models.SwapRecord) error {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	err := s.pool.QueryRow(ctx, `
		INSERT INTO executed_swaps (
			copy_trade_id, follower_id, signature, amount_in, amount_out, realized_profit, performance_fee
		) VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7::text::numeric)
		RETURNING created_at`,
		r.CopyTradeID, r.FollowerID, r.Signature,
		u(r.AmountIn), u(r.AmountOut), u(r.RealizedProfit), u(r.PerformanceFee),
	).Scan(&r.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert swap %s: %w", r.CopyTradeID, err)
	}
	return nil
}

func (s *Store) GetSwap(ctx context.Context, copyTradeID string) (*models.SwapRecord, error) {
	var (
		r                             models.SwapRecord
		amountIn, amountOut, pnl, fee string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT copy_trade_id, follower_id, signature, amount_in::text, amount_out::text,
			realized_profit::text, performance_fee::text, created_at
		FROM executed_swaps
		WHERE copy_trade_id = $1`, copyTradeID,
	).Scan(&r.CopyTradeID, &r.FollowerID, &r.Signature, &amountIn, &amountOut, &pnl, &fee, &r.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get swap %s: %w", copyTradeID, err)
	}

	for _, f := range []struct {
		dst *uint64
		src string
	}{
		{&r.AmountIn, amountIn},
		{&r.AmountOut, amountOut},
		{&r.RealizedProfit, pnl},
		{&r.PerformanceFee, fee},
	} {
		if *f.dst, err = strconv.ParseUint(f.src, 10, 64); err != nil {
			return nil, fmt.Errorf("parse swap amount: %w", err)
		}
	}
	return &r, nil
}
