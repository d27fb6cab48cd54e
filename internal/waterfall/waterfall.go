// Package waterfall implements the capped proportional waterfall that turns a
// period's distributable pool into per-position payouts.
//
// The allocation is conservation-exact: every minor unit of the pool ends up
// either in a payout or in the leftover returned to the business, with no
// floating point and no silent rounding. Shares are floored proportional to
// active principal, clipped at each position's remaining headroom; excess from
// capped positions is redistributed among the still-open positions, and final
// rounding dust is placed one minor unit at a time by the largest-remainder
// method.
//
// Compute is pure and side-effect-free; it touches no external state and is
// safe to call from any goroutine.
package waterfall

import (
	"errors"
	"fmt"
	"sort"

	"github.com/revloop/distribution-engine/internal/model"
	"github.com/revloop/distribution-engine/internal/money"
)

var (
	// ErrNegativePool is returned when the pool is below zero. Indicates a
	// caller bug (negative reported revenue must be rejected upstream).
	ErrNegativePool = errors.New("waterfall: pool must not be negative")

	// ErrInactivePosition is returned when a non-ACTIVE position is passed.
	// Completed positions are excluded by contract and must not reach the
	// calculator.
	ErrInactivePosition = errors.New("waterfall: position is not active")

	// ErrCurrencyMix is returned when a position's currency differs from the
	// pool's.
	ErrCurrencyMix = errors.New("waterfall: position currency differs from pool")

	// ErrConservation signals that the allocation did not sum back to the
	// pool. This is an internal consistency failure — a programming error,
	// never a business condition — and callers must abort rather than
	// persist the batch.
	ErrConservation = errors.New("waterfall: allocation does not conserve pool")
)

// Allocation is one position's share of a period's pool.
type Allocation struct {
	PositionID string
	Amount     money.Money
}

// slot is the per-position working state for one computation.
type slot struct {
	idx       int // input order, tie-breaker for dust placement
	id        string
	principal int64
	remaining int64 // headroom left, decremented as units are allocated
	allocated int64
	fracNum   int64 // remainder numerator from the latest share division
}

// Compute allocates pool across the given active positions.
//
// Returns the per-position allocations (positions that receive nothing are
// omitted) and the leftover that could not be placed because every position
// hit its cap. A zero pool or an empty position set is a valid input: no
// payouts, leftover = pool.
//
// The invariant Σ allocations + leftover == pool is re-checked before
// returning; a violation yields ErrConservation.
func Compute(pool money.Money, positions []model.Position) ([]Allocation, money.Money, error) {
	if pool.IsNegative() {
		return nil, money.Money{}, fmt.Errorf("%w: %s", ErrNegativePool, pool)
	}

	slots := make([]*slot, 0, len(positions))
	for i, p := range positions {
		if p.Status != model.PositionActive {
			return nil, money.Money{}, fmt.Errorf("%w: %s", ErrInactivePosition, p.ID)
		}
		if p.Principal.Currency != pool.Currency {
			return nil, money.Money{}, fmt.Errorf("%w: position %s has %s, pool has %s",
				ErrCurrencyMix, p.ID, p.Principal.Currency, pool.Currency)
		}
		slots = append(slots, &slot{
			idx:       i,
			id:        p.ID,
			principal: p.Principal.Units,
			remaining: p.Remaining().Units,
		})
	}

	remaining := pool.Units
	open := openSlots(slots)

	for remaining > 0 && len(open) > 0 {
		var sumPrincipal int64
		for _, s := range open {
			sumPrincipal += s.principal
		}

		// Proportional floored shares, clipped at headroom.
		var distributed int64
		for _, s := range open {
			share, frac, err := money.New(remaining, pool.Currency).MulRat(s.principal, sumPrincipal)
			if err != nil {
				return nil, money.Money{}, err
			}
			give := share.Units
			if give > s.remaining {
				give = s.remaining
			}
			s.allocated += give
			s.remaining -= give
			s.fracNum = frac
			distributed += give
		}
		remaining -= distributed

		// If any position hit its cap this pass, re-run the proportional
		// split over the survivors with the undistributed excess. The open
		// set strictly shrinks, so this terminates in at most N passes.
		stillOpen := openSlots(open)
		if len(stillOpen) < len(open) {
			open = stillOpen
			continue
		}

		// Nobody capped: what is left is pure rounding dust, strictly less
		// than the number of open positions. Place it one minor unit at a
		// time in descending order of fractional remainder.
		sort.SliceStable(open, func(i, j int) bool {
			if open[i].fracNum != open[j].fracNum {
				return open[i].fracNum > open[j].fracNum
			}
			return open[i].idx < open[j].idx
		})
		for _, s := range open {
			if remaining == 0 {
				break
			}
			if s.remaining > 0 {
				s.allocated++
				s.remaining--
				remaining--
			}
		}
		break
	}

	// Conservation: every minor unit is a payout or leftover, exactly.
	var total int64
	for _, s := range slots {
		total += s.allocated
	}
	if total+remaining != pool.Units {
		return nil, money.Money{}, fmt.Errorf("%w: pool=%d allocated=%d leftover=%d",
			ErrConservation, pool.Units, total, remaining)
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].idx < slots[j].idx })
	allocs := make([]Allocation, 0, len(slots))
	for _, s := range slots {
		if s.allocated > 0 {
			allocs = append(allocs, Allocation{
				PositionID: s.id,
				Amount:     money.New(s.allocated, pool.Currency),
			})
		}
	}

	return allocs, money.New(remaining, pool.Currency), nil
}

// openSlots filters to positions that still have headroom.
func openSlots(slots []*slot) []*slot {
	open := make([]*slot, 0, len(slots))
	for _, s := range slots {
		if s.remaining > 0 {
			open = append(open, s)
		}
	}
	return open
}
