// ==================================
// File: internal/storage/postgres/commissions.go
// ==================================
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/memeflow/copytrade/internal/storage"
	"github.com/memeflow/copytrade/internal/storage/models"
)

// RecordSettlement inserts the settlement, its distribution rows and the
// earnings credits in one transaction.
func (s *Store) RecordSettlement(ctx context.Context, st *models.Settlement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO copy_trade_settlements (
			id, copy_trade_id, follower_id, signature, amount_in, amount_out,
			profit_amount, performance_fee, master_trader_fee, network_fee, total_distributed
		) VALUES (
			$1, $2, $3, $4, $5::text::numeric, $6::text::numeric,
			$7::text::numeric, $8::text::numeric, $9::text::numeric, $10::text::numeric, $11::text::numeric
		) RETURNING created_at`,
		st.ID, st.CopyTradeID, st.FollowerID, st.Signature,
		strconv.FormatUint(st.AmountIn, 10), strconv.FormatUint(st.AmountOut, 10),
		st.ProfitAmount.String(), st.PerformanceFee.String(), st.MasterTraderFee.String(),
		st.NetworkFee.String(), st.TotalDistributed.String(),
	).Scan(&st.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert settlement %s: %w", st.CopyTradeID, err)
	}

	for i := range st.Distributions {
		d := &st.Distributions[i]
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.CopyTradeID = st.CopyTradeID
		d.CreatedAt = st.CreatedAt

		_, err := tx.Exec(ctx, `
			INSERT INTO commission_distributions (
				id, copy_trade_id, recipient_user_id, recipient_rank, percentage, amount_sol, created_at
			) VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7)`,
			d.ID, d.CopyTradeID, d.RecipientID, d.RecipientRank,
			d.Percentage.String(), d.Amount.String(), d.CreatedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert distribution for %s: %w", d.RecipientID, err)
		}

		if !d.Amount.IsPositive() {
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE affiliates
			SET total_earnings = total_earnings + $2::text::numeric, updated_at = now()
			WHERE user_id = $1`, d.RecipientID, d.Amount.String()); err != nil {
			return fmt.Errorf("credit earnings of %s: %w", d.RecipientID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settlement %s: %w", st.CopyTradeID, err)
	}
	return nil
}

func (s *Store) GetSettlement(ctx context.Context, copyTradeID string) (*models.Settlement, error) {
	var (
		st                                   models.Settlement
		amountIn, amountOut                  string
		profit, perf, master, network, total string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, copy_trade_id, follower_id, signature, amount_in::text, amount_out::text,
			profit_amount::text, performance_fee::text, master_trader_fee::text,
			network_fee::text, total_distributed::text, created_at
		FROM copy_trade_settlements
		WHERE copy_trade_id = $1`, copyTradeID,
	).Scan(&st.ID, &st.CopyTradeID, &st.FollowerID, &st.Signature, &amountIn, &amountOut,
		&profit, &perf, &master, &network, &total, &st.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get settlement %s: %w", copyTradeID, err)
	}

	if st.AmountIn, err = strconv.ParseUint(amountIn, 10, 64); err != nil {
		return nil, fmt.Errorf("parse amount in: %w", err)
	}
	if st.AmountOut, err = strconv.ParseUint(amountOut, 10, 64); err != nil {
		return nil, fmt.Errorf("parse amount out: %w", err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&st.ProfitAmount, profit},
		{&st.PerformanceFee, perf},
		{&st.MasterTraderFee, master},
		{&st.NetworkFee, network},
		{&st.TotalDistributed, total},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("parse settlement amount: %w", err)
		}
	}

	st.Distributions, err = s.ListCommissionsByCopyTrade(ctx, copyTradeID)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

const commissionColumns = `id, copy_trade_id, recipient_user_id, recipient_rank,
	percentage::text, amount_sol::text, created_at`

func scanCommissions(rows pgx.Rows) ([]models.CommissionRecord, error) {
	defer rows.Close()

	var out []models.CommissionRecord
	for rows.Next() {
		var (
			r           models.CommissionRecord
			pct, amount string
			created     time.Time
		)
		if err := rows.Scan(&r.ID, &r.CopyTradeID, &r.RecipientID, &r.RecipientRank, &pct, &amount, &created); err != nil {
			return nil, fmt.Errorf("scan commission row: %w", err)
		}
		var err error
		if r.Percentage, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("parse percentage: %w", err)
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		r.CreatedAt = created
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListCommissionsByRecipient returns the newest rows first. limit <= 0 means all.
func (s *Store) ListCommissionsByRecipient(ctx context.Context, userID string, limit int) ([]models.CommissionRecord, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `SELECT `+commissionColumns+`
		FROM commission_distributions
		WHERE recipient_user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, userID, lim)
	if err != nil {
		return nil, fmt.Errorf("query commissions of %s: %w", userID, err)
	}
	return scanCommissions(rows)
}

func (s *Store) ListCommissionsByCopyTrade(ctx context.Context, copyTradeID string) ([]models.CommissionRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+commissionColumns+`
		FROM commission_distributions
		WHERE copy_trade_id = $1
		ORDER BY percentage DESC, recipient_user_id`, copyTradeID)
	if err != nil {
		return nil, fmt.Errorf("query commissions of trade %s: %w", copyTradeID, err)
	}
	return scanCommissions(rows)
}
