// Package exposure enforces investor concentration limits at position
// creation time.
//
// A platform funding dozens of small-business deals must keep any single
// investor from concentrating too much principal in one deal or across the
// platform as a whole. Limits are checked against the investor's existing
// positions before a new position is accepted; the distribution applier never
// consults them (already-confirmed positions are immutable history).
package exposure

import (
	"errors"

	"github.com/revloop/distribution-engine/internal/model"
	"github.com/revloop/distribution-engine/internal/money"
)

var (
	// ErrPerDealLimitExceeded is returned when a new position would push an
	// investor's principal in a single deal beyond the per-deal maximum.
	ErrPerDealLimitExceeded = errors.New("exposure: per-deal principal limit exceeded")

	// ErrTotalLimitExceeded is returned when a new position would push an
	// investor's aggregate principal across all deals beyond the platform
	// maximum.
	ErrTotalLimitExceeded = errors.New("exposure: total principal limit exceeded")
)

// Limiter enforces per-deal and aggregate principal limits for one investor.
type Limiter struct {
	// MaxPerDeal is the maximum principal one investor may hold in a
	// single deal.
	MaxPerDeal money.Money

	// MaxTotal is the maximum aggregate principal one investor may hold
	// across all deals.
	MaxTotal money.Money
}

// NewLimiter creates a limiter with the given per-deal and aggregate limits.
func NewLimiter(maxPerDeal, maxTotal money.Money) *Limiter {
	return &Limiter{MaxPerDeal: maxPerDeal, MaxTotal: maxTotal}
}

// Check validates whether adding principal to dealID respects the limits,
// given the investor's existing positions across all deals.
//
// Principal at exactly the limit is allowed; one minor unit over is not.
func (l *Limiter) Check(dealID string, principal money.Money, existing []model.Position) error {
	inDeal := principal.Units
	total := principal.Units

	for _, p := range existing {
		total += p.Principal.Units
		if p.DealID == dealID {
			inDeal += p.Principal.Units
		}
	}

	if inDeal > l.MaxPerDeal.Units {
		return ErrPerDealLimitExceeded
	}
	if total > l.MaxTotal.Units {
		return ErrTotalLimitExceeded
	}
	return nil
}
