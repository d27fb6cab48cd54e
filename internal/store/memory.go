package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/revloop/distribution-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu            sync.RWMutex
	deals         map[string]*model.Deal
	positions     map[string]*model.Position
	reports       map[string]*model.RevenueReport // key: dealID|periodKey
	distributions map[string]*model.Distribution  // key: dealID|periodKey
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deals:         make(map[string]*model.Deal),
		positions:     make(map[string]*model.Position),
		reports:       make(map[string]*model.RevenueReport),
		distributions: make(map[string]*model.Distribution),
	}
}

func batchKey(dealID, periodKey string) string {
	return dealID + "|" + periodKey
}

func (s *MemoryStore) CreateDeal(_ context.Context, deal *model.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.deals[deal.ID]; exists {
		return fmt.Errorf("%w: deal %s already exists", ErrConflict, deal.ID)
	}

	// Store a copy to avoid external mutation.
	cp := *deal
	s.deals[deal.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDeal(_ context.Context, id string) (*model.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deals[id]
	if !ok {
		return nil, fmt.Errorf("%w: deal %s", ErrNotFound, id)
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) ListDeals(_ context.Context) ([]model.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deals := make([]model.Deal, 0, len(s.deals))
	for _, d := range s.deals {
		deals = append(deals, *d)
	}
	sort.Slice(deals, func(i, j int) bool {
		return deals[i].CreatedAt.After(deals[j].CreatedAt)
	})
	return deals, nil
}

func (s *MemoryStore) UpdateDealStatus(_ context.Context, id string, status model.DealStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deals[id]
	if !ok {
		return fmt.Errorf("%w: deal %s", ErrNotFound, id)
	}
	d.Status = status
	if status == model.DealDefaulted {
		d.DefaultReason = reason
	}
	return nil
}

func (s *MemoryStore) CreatePosition(_ context.Context, pos *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deals[pos.DealID]
	if !ok {
		return fmt.Errorf("%w: deal %s", ErrNotFound, pos.DealID)
	}
	for _, existing := range s.positions {
		if existing.DealID == pos.DealID && existing.InvestorID == pos.InvestorID {
			return fmt.Errorf("%w: investor %s already holds a position in deal %s",
				ErrConflict, pos.InvestorID, pos.DealID)
		}
	}

	raised, err := d.TotalRaised.Add(pos.Principal)
	if err != nil {
		return err
	}
	d.TotalRaised = raised

	cp := *pos
	s.positions[pos.ID] = &cp
	return nil
}

func (s *MemoryStore) ListPositionsByDeal(_ context.Context, dealID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positionsWhere(func(p *model.Position) bool {
		return p.DealID == dealID
	}), nil
}

func (s *MemoryStore) ListActivePositions(_ context.Context, dealID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positionsWhere(func(p *model.Position) bool {
		return p.DealID == dealID && p.Status == model.PositionActive
	}), nil
}

func (s *MemoryStore) GetPositionByInvestor(_ context.Context, investorID, dealID string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.positions {
		if p.InvestorID == investorID && p.DealID == dealID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: position for investor %s in deal %s", ErrNotFound, investorID, dealID)
}

func (s *MemoryStore) ListPositionsByInvestor(_ context.Context, investorID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positionsWhere(func(p *model.Position) bool {
		return p.InvestorID == investorID
	}), nil
}

// positionsWhere filters positions, sorted by creation time then ID for
// deterministic allocation order. Caller must hold the lock.
func (s *MemoryStore) positionsWhere(keep func(*model.Position) bool) []model.Position {
	var result []model.Position
	for _, p := range s.positions {
		if keep(p) {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *MemoryStore) ListRevenueReports(_ context.Context, dealID string) ([]model.RevenueReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.RevenueReport
	for _, r := range s.reports {
		if r.DealID == dealID {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodKey < result[j].PeriodKey
	})
	return result, nil
}

func (s *MemoryStore) GetDistribution(_ context.Context, dealID, periodKey string) (*model.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.distributions[batchKey(dealID, periodKey)]
	if !ok {
		return nil, fmt.Errorf("%w: distribution for deal %s period %s", ErrNotFound, dealID, periodKey)
	}
	return copyDistribution(d), nil
}

func (s *MemoryStore) ListDistributionsByDeal(_ context.Context, dealID string) ([]model.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Distribution
	for _, d := range s.distributions {
		if d.DealID == dealID {
			result = append(result, *copyDistribution(d))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodKey < result[j].PeriodKey
	})
	return result, nil
}

func (s *MemoryStore) ApplyDistribution(_ context.Context, batch *ApplyBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := batchKey(batch.Distribution.DealID, batch.Distribution.PeriodKey)
	if _, exists := s.distributions[key]; exists {
		return fmt.Errorf("%w: deal %s period %s", ErrDuplicatePeriod,
			batch.Distribution.DealID, batch.Distribution.PeriodKey)
	}
	d, ok := s.deals[batch.Distribution.DealID]
	if !ok {
		return fmt.Errorf("%w: deal %s", ErrNotFound, batch.Distribution.DealID)
	}
	// Validate every position update before touching anything, so a bad
	// batch leaves no partial state.
	for _, p := range batch.Positions {
		if _, ok := s.positions[p.ID]; !ok {
			return fmt.Errorf("%w: position %s", ErrNotFound, p.ID)
		}
	}

	report := batch.Report
	s.reports[key] = &report
	s.distributions[key] = copyDistribution(&batch.Distribution)
	for _, p := range batch.Positions {
		cp := p
		s.positions[p.ID] = &cp
	}
	d.Status = batch.DealStatus
	return nil
}

func copyDistribution(d *model.Distribution) *model.Distribution {
	cp := *d
	cp.Payouts = make([]model.Payout, len(d.Payouts))
	copy(cp.Payouts, d.Payouts)
	return &cp
}
