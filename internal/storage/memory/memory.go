// ==================================
// File: internal/storage/memory/memory.go
// ==================================
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/memeflow/copytrade/internal/storage"
	"github.com/memeflow/copytrade/internal/storage/models"
)

// Store is an in-process storage.Store used by tests and local runs.
type Store struct {
	mu          sync.RWMutex
	affiliates  map[string]*models.Affiliate
	settlements map[string]*models.Settlement
	swaps       map[string]models.SwapRecord
	commissions []models.CommissionRecord
	progress    []models.RankingProgress
	now         func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		affiliates:  make(map[string]*models.Affiliate),
		settlements: make(map[string]*models.Settlement),
		swaps:       make(map[string]models.SwapRecord),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() {}

func (s *Store) UpsertAffiliate(_ context.Context, a *models.Affiliate) error {
	if a == nil || a.UserID == "" {
		return fmt.Errorf("affiliate user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cp := *a
	if existing, ok := s.affiliates[a.UserID]; ok {
		// накопленные суммы меняются только через AddNetworkProfit/RecordSettlement
		cp.CreatedAt = existing.CreatedAt
		cp.TotalNetworkProfit = existing.TotalNetworkProfit
		cp.TotalEarnings = existing.TotalEarnings
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.affiliates[a.UserID] = &cp
	return nil
}

func (s *Store) GetAffiliate(_ context.Context, userID string) (*models.Affiliate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.affiliates[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) UplineChain(_ context.Context, userID string, maxDepth int) ([]models.UplineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.affiliates[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	visited := map[string]bool{userID: true}
	var chain []models.UplineEntry
	for depth := 1; depth <= maxDepth && a.SponsorID != ""; depth++ {
		if visited[a.SponsorID] {
			break
		}
		sponsor, ok := s.affiliates[a.SponsorID]
		if !ok {
			break
		}
		visited[sponsor.UserID] = true
		chain = append(chain, models.UplineEntry{UserID: sponsor.UserID, Rank: sponsor.Rank, Depth: depth})
		a = sponsor
	}
	return chain, nil
}

func (s *Store) DirectReferrals(_ context.Context, userID string) ([]*models.Affiliate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.referralsLocked(userID), nil
}

func (s *Store) referralsLocked(userID string) []*models.Affiliate {
	var out []*models.Affiliate
	for _, a := range s.affiliates {
		if a.SponsorID == userID && a.UserID != userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (s *Store) LineStats(_ context.Context, userID string, maxDepth int) (*models.LineStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.affiliates[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	stats := &models.LineStats{NetworkProfit: a.TotalNetworkProfit}
	for _, head := range s.referralsLocked(userID) {
		best := head.Rank
		visited := map[string]bool{userID: true, head.UserID: true}
		frontier := []string{head.UserID}
		for depth := 2; depth <= maxDepth && len(frontier) > 0; depth++ {
			var next []string
			for _, id := range frontier {
				for _, child := range s.referralsLocked(id) {
					if visited[child.UserID] {
						continue
					}
					visited[child.UserID] = true
					if child.Rank > best {
						best = child.Rank
					}
					next = append(next, child.UserID)
				}
			}
			frontier = next
		}
		stats.LineBestRanks = append(stats.LineBestRanks, best)
	}
	return stats, nil
}

func (s *Store) RecordSettlement(_ context.Context, st *models.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settlements[st.CopyTradeID]; ok {
		return storage.ErrDuplicateKey
	}

	now := s.now()
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	rows := make([]models.CommissionRecord, len(st.Distributions))
	for i, d := range st.Distributions {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.CopyTradeID = st.CopyTradeID
		d.CreatedAt = st.CreatedAt
		rows[i] = d
		st.Distributions[i] = d
	}

	cp := *st
	cp.Distributions = append([]models.CommissionRecord(nil), rows...)
	s.settlements[st.CopyTradeID] = &cp
	s.commissions = append(s.commissions, rows...)

	for _, r := range rows {
		if a, ok := s.affiliates[r.RecipientID]; ok && r.Amount.IsPositive() {
			a.TotalEarnings = a.TotalEarnings.Add(r.Amount)
			a.UpdatedAt = now
		}
	}
	return nil
}

func (s *Store) GetSettlement(_ context.Context, copyTradeID string) (*models.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settlements[copyTradeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	cp.Distributions = append([]models.CommissionRecord(nil), st.Distributions...)
	return &cp, nil
}

func (s *Store) RecordSwap(_ context.Context, r *models.SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.swaps[r.CopyTradeID]; ok {
		return storage.ErrDuplicateKey
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.swaps[r.CopyTradeID] = *r
	return nil
}

func (s *Store) GetSwap(_ context.Context, copyTradeID string) (*models.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.swaps[copyTradeID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

func (s *Store) ListCommissionsByRecipient(_ context.Context, userID string, limit int) ([]models.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.CommissionRecord
	for i := len(s.commissions) - 1; i >= 0; i-- {
		if s.commissions[i].RecipientID != userID {
			continue
		}
		out = append(out, s.commissions[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListCommissionsByCopyTrade(_ context.Context, copyTradeID string) ([]models.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.settlements[copyTradeID]
	if !ok {
		return nil, nil
	}
	return append([]models.CommissionRecord(nil), st.Distributions...), nil
}

func (s *Store) AddNetworkProfit(_ context.Context, userIDs []string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, id := range userIDs {
		if a, ok := s.affiliates[id]; ok {
			a.TotalNetworkProfit = a.TotalNetworkProfit.Add(amount)
			a.UpdatedAt = now
		}
	}
	return nil
}

func (s *Store) RecordRankProgress(_ context.Context, p *models.RankingProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.affiliates[p.UserID]
	if !ok {
		return storage.ErrNotFound
	}
	if p.ToRank <= a.Rank {
		return storage.ErrRankNotPromoted
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.FromRank = a.Rank
	a.Rank = p.ToRank
	a.UpdatedAt = p.CreatedAt
	s.progress = append(s.progress, *p)
	return nil
}

func (s *Store) ListRankProgress(_ context.Context, userID string) ([]models.RankingProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RankingProgress
	for _, p := range s.progress {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}
