// ==================================
// File: internal/storage/postgres/ranking.go
// ==================================
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/memeflow/copytrade/internal/storage"
	"github.com/memeflow/copytrade/internal/storage/models"
)

func (s *Store) AddNetworkProfit(ctx context.Context, userIDs []string, amount decimal.Decimal) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE affiliates
		SET total_network_profit = total_network_profit + $2::text::numeric, updated_at = now()
		WHERE user_id = ANY($1)`, userIDs, amount.String())
	if err != nil {
		return fmt.Errorf("add network profit: %w", err)
	}
	return nil
}

func (s *Store) RecordRankProgress(ctx context.Context, p *models.RankingProgress) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rank tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current int
	err = tx.QueryRow(ctx, `SELECT rank FROM affiliates WHERE user_id = $1 FOR UPDATE`, p.UserID).Scan(&current)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("lock affiliate %s: %w", p.UserID, err)
	}
	if p.ToRank <= current {
		return storage.ErrRankNotPromoted
	}

	if _, err := tx.Exec(ctx,
		`UPDATE affiliates SET rank = $2, updated_at = now() WHERE user_id = $1`, p.UserID, p.ToRank); err != nil {
		return fmt.Errorf("update rank of %s: %w", p.UserID, err)
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.FromRank = current
	err = tx.QueryRow(ctx, `
		INSERT INTO ranking_progress (id, user_id, from_rank, to_rank, network_profit)
		VALUES ($1, $2, $3, $4, $5::text::numeric)
		RETURNING created_at`,
		p.ID, p.UserID, p.FromRank, p.ToRank, p.NetworkProfit.String(),
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert rank progress: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) ListRankProgress(ctx context.Context, userID string) ([]models.RankingProgress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, from_rank, to_rank, network_profit::text, created_at
		FROM ranking_progress
		WHERE user_id = $1
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query rank progress of %s: %w", userID, err)
	}
	defer rows.Close()

	var out []models.RankingProgress
	for rows.Next() {
		var (
			p      models.RankingProgress
			profit string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.FromRank, &p.ToRank, &profit, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rank progress: %w", err)
		}
		if p.NetworkProfit, err = decimal.NewFromString(profit); err != nil {
			return nil, fmt.Errorf("parse network profit: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
