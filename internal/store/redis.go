package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/revloop/distribution-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot dashboard reads: deal lookups and per-investor positions.
// Writes go to the primary store and invalidate the affected keys; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateDeal(ctx context.Context, deal *model.Deal) error {
	if err := s.primary.CreateDeal(ctx, deal); err != nil {
		return err
	}
	s.cacheDeal(ctx, deal)
	return nil
}

func (s *CachedStore) UpdateDealStatus(ctx context.Context, id string, status model.DealStatus, reason string) error {
	if err := s.primary.UpdateDealStatus(ctx, id, status, reason); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, dealKey(id))
	return nil
}

func (s *CachedStore) CreatePosition(ctx context.Context, pos *model.Position) error {
	if err := s.primary.CreatePosition(ctx, pos); err != nil {
		return err
	}
	// totalRaised changed on the deal; the investor gained a position.
	s.rdb.Del(ctx, dealKey(pos.DealID), positionKey(pos.InvestorID, pos.DealID))
	return nil
}

func (s *CachedStore) ApplyDistribution(ctx context.Context, batch *ApplyBatch) error {
	if err := s.primary.ApplyDistribution(ctx, batch); err != nil {
		return err
	}
	keys := []string{dealKey(batch.Distribution.DealID)}
	for _, p := range batch.Positions {
		keys = append(keys, positionKey(p.InvestorID, p.DealID))
	}
	s.rdb.Del(ctx, keys...)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	data, err := s.rdb.Get(ctx, dealKey(id)).Bytes()
	if err == nil {
		var d model.Deal
		if json.Unmarshal(data, &d) == nil {
			return &d, nil
		}
	}

	d, err := s.primary.GetDeal(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheDeal(ctx, d)
	return d, nil
}

func (s *CachedStore) GetPositionByInvestor(ctx context.Context, investorID, dealID string) (*model.Position, error) {
	data, err := s.rdb.Get(ctx, positionKey(investorID, dealID)).Bytes()
	if err == nil {
		var p model.Position
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPositionByInvestor(ctx, investorID, dealID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, positionKey(investorID, dealID), data, s.ttl)
	}
	return p, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListDeals(ctx context.Context) ([]model.Deal, error) {
	return s.primary.ListDeals(ctx)
}

func (s *CachedStore) ListPositionsByDeal(ctx context.Context, dealID string) ([]model.Position, error) {
	return s.primary.ListPositionsByDeal(ctx, dealID)
}

func (s *CachedStore) ListActivePositions(ctx context.Context, dealID string) ([]model.Position, error) {
	return s.primary.ListActivePositions(ctx, dealID)
}

func (s *CachedStore) ListPositionsByInvestor(ctx context.Context, investorID string) ([]model.Position, error) {
	return s.primary.ListPositionsByInvestor(ctx, investorID)
}

func (s *CachedStore) ListRevenueReports(ctx context.Context, dealID string) ([]model.RevenueReport, error) {
	return s.primary.ListRevenueReports(ctx, dealID)
}

func (s *CachedStore) GetDistribution(ctx context.Context, dealID, periodKey string) (*model.Distribution, error) {
	return s.primary.GetDistribution(ctx, dealID, periodKey)
}

func (s *CachedStore) ListDistributionsByDeal(ctx context.Context, dealID string) ([]model.Distribution, error) {
	return s.primary.ListDistributionsByDeal(ctx, dealID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheDeal(ctx context.Context, d *model.Deal) {
	if data, err := json.Marshal(d); err == nil {
		s.rdb.Set(ctx, dealKey(d.ID), data, s.ttl)
	}
}

func dealKey(id string) string { return fmt.Sprintf("deal:%s", id) }

func positionKey(investorID, dealID string) string {
	return fmt.Sprintf("position:%s:%s", investorID, dealID)
}
