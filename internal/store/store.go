// Package store defines the persistence interface for the distribution
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"

	"github.com/revloop/distribution-engine/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a uniqueness constraint other than the
	// period key is violated (duplicate deal, duplicate position per
	// investor per deal).
	ErrConflict = errors.New("store: conflict")

	// ErrDuplicatePeriod is returned by ApplyDistribution when a batch for
	// (dealID, periodKey) already exists. The applier absorbs this by
	// replaying the recorded batch; it is never surfaced to callers.
	ErrDuplicatePeriod = errors.New("store: distribution already exists for period")
)

// ApplyBatch is the unit of work persisted atomically when a revenue report
// is applied: the report itself, the distribution record with its payouts,
// the post-apply state of every affected position, and the deal's resulting
// status. Either all of it commits or none of it does.
type ApplyBatch struct {
	Report       model.RevenueReport
	Distribution model.Distribution
	Positions    []model.Position
	DealStatus   model.DealStatus
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Deal ledger ---

	// CreateDeal persists a new deal.
	CreateDeal(ctx context.Context, deal *model.Deal) error

	// GetDeal retrieves a deal by ID.
	GetDeal(ctx context.Context, id string) (*model.Deal, error)

	// ListDeals returns all deals, newest first.
	ListDeals(ctx context.Context) ([]model.Deal, error)

	// UpdateDealStatus records a lifecycle transition. Reason is stored
	// only for DEFAULTED.
	UpdateDealStatus(ctx context.Context, id string, status model.DealStatus, reason string) error

	// --- Position ledger ---

	// CreatePosition persists a confirmed investment and bumps the deal's
	// totalRaised in the same atomic unit.
	CreatePosition(ctx context.Context, pos *model.Position) error

	// ListPositionsByDeal returns every position for a deal, including
	// completed ones.
	ListPositionsByDeal(ctx context.Context, dealID string) ([]model.Position, error)

	// ListActivePositions returns the ACTIVE positions for a deal — the
	// snapshot the calculator works from.
	ListActivePositions(ctx context.Context, dealID string) ([]model.Position, error)

	// GetPositionByInvestor returns one investor's position in one deal.
	GetPositionByInvestor(ctx context.Context, investorID, dealID string) (*model.Position, error)

	// ListPositionsByInvestor returns all of an investor's positions
	// across deals (exposure-limit checks).
	ListPositionsByInvestor(ctx context.Context, investorID string) ([]model.Position, error)

	// --- Revenue reports and distributions ---

	// ListRevenueReports returns a deal's reports in period order.
	ListRevenueReports(ctx context.Context, dealID string) ([]model.RevenueReport, error)

	// GetDistribution returns the recorded batch for (dealID, periodKey),
	// payouts included, or ErrNotFound.
	GetDistribution(ctx context.Context, dealID, periodKey string) (*model.Distribution, error)

	// ListDistributionsByDeal returns all batches for a deal in period order.
	ListDistributionsByDeal(ctx context.Context, dealID string) ([]model.Distribution, error)

	// ApplyDistribution persists an ApplyBatch atomically. Returns
	// ErrDuplicatePeriod if a batch for the same (deal, period) already
	// exists — the unique constraint is what makes apply at-most-once.
	ApplyDistribution(ctx context.Context, batch *ApplyBatch) error
}
