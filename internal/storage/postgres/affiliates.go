// ==================================
// File: internal/storage/postgres/affiliates.go
// ==================================
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/memeflow/copytrade/internal/storage"
	"github.com/memeflow/copytrade/internal/storage/models"
)

const affiliateColumns = `user_id, COALESCE(sponsor_id, ''), wallet_address, rank,
	total_network_profit::text, total_earnings::text, created_at, updated_at`

func scanAffiliate(row pgx.Row) (*models.Affiliate, error) {
	var (
		a               models.Affiliate
		profit, earning string
	)
	if err := row.Scan(&a.UserID, &a.SponsorID, &a.WalletAddress, &a.Rank,
		&profit, &earning, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.TotalNetworkProfit, err = decimal.NewFromString(profit); err != nil {
		return nil, fmt.Errorf("parse network profit: %w", err)
	}
	if a.TotalEarnings, err = decimal.NewFromString(earning); err != nil {
		return nil, fmt.Errorf("parse earnings: %w", err)
	}
	return &a, nil
}

func (s *Store) UpsertAffiliate(ctx context.Context, a *models.Affiliate) error {
	if a == nil || a.UserID == "" {
		return fmt.Errorf("affiliate user id is required")
	}
	query := `
		INSERT INTO affiliates (user_id, sponsor_id, wallet_address, rank)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			sponsor_id = EXCLUDED.sponsor_id,
			wallet_address = EXCLUDED.wallet_address,
			rank = EXCLUDED.rank,
			updated_at = now()`

	if _, err := s.pool.Exec(ctx, query, a.UserID, a.SponsorID, a.WalletAddress, a.Rank); err != nil {
		return fmt.Errorf("upsert affiliate %s: %w", a.UserID, err)
	}
	return nil
}

func (s *Store) GetAffiliate(ctx context.Context, userID string) (*models.Affiliate, error) {
	query := `SELECT ` + affiliateColumns + ` FROM affiliates WHERE user_id = $1`

	a, err := scanAffiliate(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get affiliate %s: %w", userID, err)
	}
	return a, nil
}

// UplineChain walks sponsor links with a recursive CTE. The path array stops
// the walk at the first repeated user.
func (s *Store) UplineChain(ctx context.Context, userID string, maxDepth int) ([]models.UplineEntry, error) {
	query := `
		WITH RECURSIVE upline AS (
			SELECT a.user_id, a.sponsor_id, a.rank, 0 AS depth, ARRAY[a.user_id] AS path
			FROM affiliates a
			WHERE a.user_id = $1
		UNION ALL
			SELECT p.user_id, p.sponsor_id, p.rank, u.depth + 1, u.path || p.user_id
			FROM upline u
			JOIN affiliates p ON p.user_id = u.sponsor_id
			WHERE u.depth < $2 AND NOT p.user_id = ANY(u.path)
		)
		SELECT user_id, rank, depth FROM upline ORDER BY depth`

	rows, err := s.pool.Query(ctx, query, userID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("query upline of %s: %w", userID, err)
	}
	defer rows.Close()

	found := false
	var chain []models.UplineEntry
	for rows.Next() {
		var e models.UplineEntry
		if err := rows.Scan(&e.UserID, &e.Rank, &e.Depth); err != nil {
			return nil, fmt.Errorf("scan upline row: %w", err)
		}
		if e.Depth == 0 {
			found = true
			continue
		}
		chain = append(chain, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upline rows: %w", err)
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return chain, nil
}

func (s *Store) DirectReferrals(ctx context.Context, userID string) ([]*models.Affiliate, error) {
	query := `SELECT ` + affiliateColumns + ` FROM affiliates
		WHERE sponsor_id = $1 AND user_id <> $1
		ORDER BY user_id`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query referrals of %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*models.Affiliate
	for rows.Next() {
		a, err := scanAffiliate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) LineStats(ctx context.Context, userID string, maxDepth int) (*models.LineStats, error) {
	var profit string
	err := s.pool.QueryRow(ctx,
		`SELECT total_network_profit::text FROM affiliates WHERE user_id = $1`, userID).Scan(&profit)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get network profit of %s: %w", userID, err)
	}

	stats := &models.LineStats{}
	if stats.NetworkProfit, err = decimal.NewFromString(profit); err != nil {
		return nil, fmt.Errorf("parse network profit: %w", err)
	}

	query := `
		WITH RECURSIVE downline AS (
			SELECT a.user_id AS line_id, a.user_id, a.rank, 1 AS depth, ARRAY[$1::text, a.user_id] AS path
			FROM affiliates a
			WHERE a.sponsor_id = $1 AND a.user_id <> $1
		UNION ALL
			SELECT d.line_id, c.user_id, c.rank, d.depth + 1, d.path || c.user_id
			FROM downline d
			JOIN affiliates c ON c.sponsor_id = d.user_id
			WHERE d.depth < $2 AND NOT c.user_id = ANY(d.path)
		)
		SELECT line_id, MAX(rank) FROM downline GROUP BY line_id ORDER BY line_id`

	rows, err := s.pool.Query(ctx, query, userID, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("query lines of %s: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			line string
			best int
		)
		if err := rows.Scan(&line, &best); err != nil {
			return nil, fmt.Errorf("scan line row: %w", err)
		}
		stats.LineBestRanks = append(stats.LineBestRanks, best)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line rows: %w", err)
	}
	return stats, nil
}
