// Package distribution provides the applier service and HTTP handlers for the
// revenue-share engine: deal and position lifecycle, revenue report
// application, and dashboard queries.
//
// All monetary values are money.Money integer minor units — never float64 for
// money.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/revloop/distribution-engine/internal/exposure"
	"github.com/revloop/distribution-engine/internal/metrics"
	"github.com/revloop/distribution-engine/internal/model"
	"github.com/revloop/distribution-engine/internal/money"
	"github.com/revloop/distribution-engine/internal/period"
	"github.com/revloop/distribution-engine/internal/store"
	"github.com/revloop/distribution-engine/internal/waterfall"
)

var (
	// ErrDealNotRepaying is returned when a revenue report is submitted
	// against a deal that is not in FUNDED or REPAYING state.
	ErrDealNotRepaying = errors.New("distribution: deal is not accepting distributions")

	// ErrDealNotFundraising is returned when a position is created against
	// a deal that is not accepting investments.
	ErrDealNotFundraising = errors.New("distribution: deal is not fundraising")

	// ErrInvalidTransition is returned for a lifecycle transition the deal
	// state machine does not allow.
	ErrInvalidTransition = errors.New("distribution: invalid deal state transition")

	// ErrNegativeRevenue is returned for a report with negative revenue —
	// a caller bug, never a valid business condition.
	ErrNegativeRevenue = errors.New("distribution: reported revenue must not be negative")

	// ErrInvalidDeal is returned when deal creation parameters are out of
	// range.
	ErrInvalidDeal = errors.New("distribution: invalid deal parameters")

	// ErrInvalidPosition is returned when position creation parameters are
	// out of range.
	ErrInvalidPosition = errors.New("distribution: invalid position parameters")
)

// Service is the distribution engine's single mutation boundary. All deal and
// position state changes flow through it; nothing else writes the ledgers.
//
// Applies for one deal are serialized by a per-deal mutex on top of the
// store's unique (deal, period) constraint; distributions for different deals
// proceed in parallel.
type Service struct {
	store   store.Store
	limiter *exposure.Limiter
	hub     *WSHub // optional WebSocket hub for dashboard broadcasts

	locks sync.Map // dealID → *sync.Mutex
}

// NewService creates a new distribution service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, limiter *exposure.Limiter, hub *WSHub) *Service {
	return &Service{store: st, limiter: limiter, hub: hub}
}

func (s *Service) dealLock(dealID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(dealID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// CreateDeal registers a new campaign in DRAFT state.
func (s *Service) CreateDeal(ctx context.Context, name, currency string, fundingGoal money.Money, revenueShareBps int64) (*model.Deal, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDeal)
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidDeal)
	}
	if fundingGoal.IsZero() || fundingGoal.IsNegative() {
		return nil, fmt.Errorf("%w: funding goal must be positive", ErrInvalidDeal)
	}
	if revenueShareBps <= 0 || revenueShareBps > money.BasisPointDenominator {
		return nil, fmt.Errorf("%w: revenue share must be in (0, 10000] bps", ErrInvalidDeal)
	}

	deal := &model.Deal{
		ID:              uuid.New().String(),
		Name:            name,
		Currency:        currency,
		FundingGoal:     fundingGoal,
		TotalRaised:     money.Zero(currency),
		RevenueShareBps: revenueShareBps,
		Status:          model.DealDraft,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.CreateDeal(ctx, deal); err != nil {
		return nil, err
	}

	slog.Info("deal created",
		"deal", deal.ID,
		"name", name,
		"goal", fundingGoal.String(),
		"share_bps", revenueShareBps,
	)
	return deal, nil
}

// OpenDeal moves a DRAFT deal into FUNDRAISING.
func (s *Service) OpenDeal(ctx context.Context, dealID string) (*model.Deal, error) {
	return s.transition(ctx, dealID, model.DealFundraising, "", func(d *model.Deal) error {
		if d.Status != model.DealDraft {
			return fmt.Errorf("%w: %s → FUNDRAISING", ErrInvalidTransition, d.Status)
		}
		return nil
	})
}

// MarkFunded closes fundraising. Issued by the fundraising-close workflow
// when the goal is reached or the window expires; a deal with no confirmed
// positions cannot be funded.
func (s *Service) MarkFunded(ctx context.Context, dealID string) (*model.Deal, error) {
	deal, err := s.transition(ctx, dealID, model.DealFunded, "", func(d *model.Deal) error {
		if d.Status != model.DealFundraising {
			return fmt.Errorf("%w: %s → FUNDED", ErrInvalidTransition, d.Status)
		}
		if d.TotalRaised.IsZero() {
			return fmt.Errorf("%w: cannot fund a deal with no positions", ErrInvalidTransition)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ActiveDeals.Inc()
	return deal, nil
}

// MarkDefaulted is the compliance override: any non-terminal deal can be
// defaulted, after which the applier refuses further distributions. Historical
// payout records are untouched.
func (s *Service) MarkDefaulted(ctx context.Context, dealID, reason string) (*model.Deal, error) {
	var prev model.DealStatus
	deal, err := s.transition(ctx, dealID, model.DealDefaulted, reason, func(d *model.Deal) error {
		if d.Status.Terminal() {
			return fmt.Errorf("%w: %s → DEFAULTED", ErrInvalidTransition, d.Status)
		}
		prev = d.Status
		return nil
	})
	if err != nil {
		return nil, err
	}
	if prev == model.DealFunded || prev == model.DealRepaying {
		metrics.ActiveDeals.Dec()
	}
	slog.Warn("deal defaulted", "deal", dealID, "reason", reason)
	return deal, nil
}

// transition loads the deal, validates the move under the deal lock, and
// persists the new status. Admin overrides go through here — never through
// direct field writes.
func (s *Service) transition(ctx context.Context, dealID string, to model.DealStatus, reason string, check func(*model.Deal) error) (*model.Deal, error) {
	mu := s.dealLock(dealID)
	mu.Lock()
	defer mu.Unlock()

	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := check(deal); err != nil {
		return nil, err
	}
	prev := deal.Status
	if err := s.store.UpdateDealStatus(ctx, dealID, to, reason); err != nil {
		return nil, err
	}
	deal.Status = to
	if to == model.DealDefaulted {
		deal.DefaultReason = reason
	}

	slog.Info("deal transition", "deal", dealID, "from", prev, "to", to)
	return deal, nil
}

// CreatePosition records a confirmed investment. Issued by the payment-capture
// workflow once funds are in custody; only FUNDRAISING deals accept positions.
func (s *Service) CreatePosition(ctx context.Context, dealID, investorID string, principal money.Money, targetMultiplierBps int64) (*model.Position, error) {
	if investorID == "" {
		return nil, fmt.Errorf("%w: investor_id is required", ErrInvalidPosition)
	}
	if principal.IsZero() || principal.IsNegative() {
		return nil, fmt.Errorf("%w: principal must be positive", ErrInvalidPosition)
	}
	if targetMultiplierBps < money.BasisPointDenominator {
		return nil, fmt.Errorf("%w: target multiplier must be at least 1.0x", ErrInvalidPosition)
	}

	mu := s.dealLock(dealID)
	mu.Lock()
	defer mu.Unlock()

	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.Status != model.DealFundraising {
		return nil, fmt.Errorf("%w: deal %s is %s", ErrDealNotFundraising, dealID, deal.Status)
	}
	if principal.Currency != deal.Currency {
		return nil, fmt.Errorf("%w: deal settles in %s", money.ErrCurrencyMismatch, deal.Currency)
	}

	existing, err := s.store.ListPositionsByInvestor(ctx, investorID)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Check(dealID, principal, existing); err != nil {
		metrics.ExposureRejections.Inc()
		return nil, err
	}

	// Cap is fixed once, here, and never recomputed. The multiplication
	// floors; the fractional minor unit is forfeited by the investor.
	cap, _, err := principal.MulBasisPoints(targetMultiplierBps)
	if err != nil {
		return nil, err
	}

	pos := &model.Position{
		ID:                  uuid.New().String(),
		DealID:              dealID,
		InvestorID:          investorID,
		Principal:           principal,
		TargetMultiplierBps: targetMultiplierBps,
		Cap:                 cap,
		RepaidToDate:        money.Zero(deal.Currency),
		Status:              model.PositionActive,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.store.CreatePosition(ctx, pos); err != nil {
		return nil, err
	}

	slog.Info("position created",
		"deal", dealID,
		"investor", investorID,
		"principal", principal.String(),
		"cap", cap.String(),
	)
	return pos, nil
}

// ApplyRevenueReport turns one month's reported revenue into payouts.
//
// Safely retryable: if a batch for (dealID, periodKey) already exists, the
// recorded batch is returned with Replayed set and nothing is mutated. Any
// failure before the atomic commit leaves no partial state.
func (s *Service) ApplyRevenueReport(ctx context.Context, dealID, periodKey string, revenue money.Money) (*model.ApplyResult, error) {
	start := time.Now()

	if _, err := period.Parse(periodKey); err != nil {
		return nil, err
	}
	if revenue.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegativeRevenue, revenue)
	}

	mu := s.dealLock(dealID)
	mu.Lock()
	defer mu.Unlock()

	// Idempotency: reprocessing a recorded period is a no-op replay.
	if dist, err := s.store.GetDistribution(ctx, dealID, periodKey); err == nil {
		metrics.DistributionsTotal.WithLabelValues("replayed").Inc()
		return s.replayResult(ctx, dist)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if !deal.Status.Distributable() {
		metrics.DistributionsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: deal %s is %s", ErrDealNotRepaying, dealID, deal.Status)
	}
	if revenue.Currency != deal.Currency {
		return nil, fmt.Errorf("%w: deal settles in %s", money.ErrCurrencyMismatch, deal.Currency)
	}

	positions, err := s.store.ListActivePositions(ctx, dealID)
	if err != nil {
		return nil, err
	}

	// Pool = floor(revenue × share). The sub-minor-unit rounding dust from
	// this multiplication stays with the business and is not tracked.
	pool, _, err := revenue.MulBasisPoints(deal.RevenueShareBps)
	if err != nil {
		return nil, err
	}

	allocs, leftover, err := waterfall.Compute(pool, positions)
	if err != nil {
		// Conservation failure is a programming error; abort before any
		// state is written.
		slog.Error("allocation failed", "deal", dealID, "period", periodKey, "err", err)
		return nil, err
	}

	now := time.Now().UTC()
	dist := model.Distribution{
		ID:                 uuid.New().String(),
		DealID:             dealID,
		PeriodKey:          periodKey,
		Pool:               pool,
		LeftoverToBusiness: leftover,
		CreatedAt:          now,
	}

	byID := make(map[string]*model.Position, len(positions))
	for i := range positions {
		byID[positions[i].ID] = &positions[i]
	}

	completed := 0
	updated := make([]model.Position, 0, len(allocs))
	for _, a := range allocs {
		p := byID[a.PositionID]
		repaid, err := p.RepaidToDate.Add(a.Amount)
		if err != nil {
			return nil, err
		}
		if repaid.Cmp(p.Cap) > 0 {
			// The waterfall clips at headroom; exceeding the cap here
			// means the snapshot was mutated mid-flight.
			return nil, fmt.Errorf("%w: position %s would exceed cap", waterfall.ErrConservation, p.ID)
		}
		p.RepaidToDate = repaid
		if repaid.Equal(p.Cap) {
			p.Status = model.PositionCompleted
			completed++
		}
		dist.Payouts = append(dist.Payouts, model.Payout{
			ID:         uuid.New().String(),
			DealID:     dealID,
			PositionID: a.PositionID,
			PeriodKey:  periodKey,
			Amount:     a.Amount,
			CreatedAt:  now,
		})
		updated = append(updated, *p)
	}

	// First applied report moves the deal into REPAYING; when the last
	// active position completes, the deal completes with it.
	dealStatus := model.DealRepaying
	if len(positions) > 0 {
		allDone := true
		for i := range positions {
			if positions[i].Status != model.PositionCompleted {
				allDone = false
				break
			}
		}
		if allDone {
			dealStatus = model.DealCompleted
		}
	}

	batch := &store.ApplyBatch{
		Report: model.RevenueReport{
			ID:              uuid.New().String(),
			DealID:          dealID,
			PeriodKey:       periodKey,
			ReportedRevenue: revenue,
			SubmittedAt:     now,
		},
		Distribution: dist,
		Positions:    updated,
		DealStatus:   dealStatus,
	}

	if err := s.store.ApplyDistribution(ctx, batch); err != nil {
		if errors.Is(err, store.ErrDuplicatePeriod) {
			// A concurrent submission won the race; replay its batch.
			if recorded, rerr := s.store.GetDistribution(ctx, dealID, periodKey); rerr == nil {
				metrics.DistributionsTotal.WithLabelValues("replayed").Inc()
				return s.replayResult(ctx, recorded)
			}
		}
		return nil, err
	}

	metrics.DistributionsTotal.WithLabelValues("applied").Inc()
	metrics.DistributionLatency.Observe(time.Since(start).Seconds())
	for _, p := range dist.Payouts {
		metrics.PayoutsTotal.Inc()
		metrics.PayoutMinorUnits.WithLabelValues(p.Amount.Currency).Add(float64(p.Amount.Units))
	}
	for i := 0; i < completed; i++ {
		metrics.PositionsCompleted.Inc()
	}
	if dealStatus == model.DealCompleted {
		metrics.ActiveDeals.Dec()
	}

	slog.Info("distribution applied",
		"deal", dealID,
		"period", periodKey,
		"pool", pool.String(),
		"payouts", len(dist.Payouts),
		"leftover", leftover.String(),
		"deal_status", dealStatus,
	)

	if s.hub != nil {
		s.hub.Broadcast(WSMessage{
			Type:       "distribution_applied",
			DealID:     dealID,
			PeriodKey:  periodKey,
			Pool:       pool.String(),
			Leftover:   leftover.String(),
			DealStatus: string(dealStatus),
			Payouts:    len(dist.Payouts),
		})
	}

	return s.buildResult(ctx, &dist, dealStatus, false)
}

// replayResult reconstructs the ApplyResult for an already-recorded batch.
func (s *Service) replayResult(ctx context.Context, dist *model.Distribution) (*model.ApplyResult, error) {
	deal, err := s.store.GetDeal(ctx, dist.DealID)
	if err != nil {
		return nil, err
	}
	return s.buildResult(ctx, dist, deal.Status, true)
}

func (s *Service) buildResult(ctx context.Context, dist *model.Distribution, status model.DealStatus, replayed bool) (*model.ApplyResult, error) {
	positions, err := s.store.ListPositionsByDeal(ctx, dist.DealID)
	if err != nil {
		return nil, err
	}
	summaries := make([]model.PositionSummary, 0, len(positions))
	for _, p := range positions {
		summaries = append(summaries, p.Summary())
	}
	return &model.ApplyResult{
		Distribution: *dist,
		DealStatus:   status,
		Positions:    summaries,
		Replayed:     replayed,
	}, nil
}

// PositionSummary returns one investor's stake in one deal for the dashboard.
func (s *Service) PositionSummary(ctx context.Context, investorID, dealID string) (*model.PositionSummary, error) {
	pos, err := s.store.GetPositionByInvestor(ctx, investorID, dealID)
	if err != nil {
		return nil, err
	}
	summary := pos.Summary()
	return &summary, nil
}
