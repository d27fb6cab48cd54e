// Package model defines the core domain types shared across the distribution
// engine. All monetary values are money.Money integer minor units — never
// float64 for money.
package model

import (
	"time"

	"github.com/revloop/distribution-engine/internal/money"
)

// DealStatus is the lifecycle state of a funding deal.
type DealStatus string

const (
	DealDraft       DealStatus = "DRAFT"
	DealFundraising DealStatus = "FUNDRAISING"
	DealFunded      DealStatus = "FUNDED"
	DealRepaying    DealStatus = "REPAYING"
	DealCompleted   DealStatus = "COMPLETED"
	DealDefaulted   DealStatus = "DEFAULTED"
)

// Distributable reports whether a revenue report may be applied in this state.
// Distributions run only between funding close and completion; DEFAULTED and
// COMPLETED are terminal for the applier.
func (s DealStatus) Distributable() bool {
	return s == DealFunded || s == DealRepaying
}

// Terminal reports whether the deal can never transition again.
func (s DealStatus) Terminal() bool {
	return s == DealCompleted || s == DealDefaulted
}

// PositionStatus is the lifecycle state of an investor position.
type PositionStatus string

const (
	PositionActive    PositionStatus = "ACTIVE"
	PositionCompleted PositionStatus = "COMPLETED"
)

// Deal is one funding campaign. TotalRaised equals the sum of its positions'
// principals at all times; once FUNDED the position set is frozen.
type Deal struct {
	ID              string      `json:"id" db:"id"`
	Name            string      `json:"name" db:"name"`
	Currency        string      `json:"currency" db:"currency"`
	FundingGoal     money.Money `json:"funding_goal"`
	TotalRaised     money.Money `json:"total_raised"`
	RevenueShareBps int64       `json:"revenue_share_bps" db:"revenue_share_bps"`
	Status          DealStatus  `json:"status" db:"status"`
	DefaultReason   string      `json:"default_reason,omitempty" db:"default_reason"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
}

// Position is one investor's stake in one deal. Cap is computed once at
// creation (principal × target multiplier, floored) and never changes.
// Positions are never deleted; they are the historical record.
type Position struct {
	ID                  string         `json:"id" db:"id"`
	DealID              string         `json:"deal_id" db:"deal_id"`
	InvestorID          string         `json:"investor_id" db:"investor_id"`
	Principal           money.Money    `json:"principal"`
	TargetMultiplierBps int64          `json:"target_multiplier_bps" db:"target_multiplier_bps"`
	Cap                 money.Money    `json:"cap"`
	RepaidToDate        money.Money    `json:"repaid_to_date"`
	Status              PositionStatus `json:"status" db:"status"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
}

// Remaining returns the position's headroom: cap − repaidToDate.
func (p Position) Remaining() money.Money {
	rem, err := p.Cap.Sub(p.RepaidToDate)
	if err != nil {
		// repaidToDate ≤ cap is a store invariant; a violation means
		// corrupted ledger state, surfaced as zero headroom.
		return money.Zero(p.Cap.Currency)
	}
	return rem
}

// RevenueReport is a business's self-reported revenue for one period.
// Immutable once created; (DealID, PeriodKey) is unique.
type RevenueReport struct {
	ID              string      `json:"id" db:"id"`
	DealID          string      `json:"deal_id" db:"deal_id"`
	PeriodKey       string      `json:"period_key" db:"period_key"`
	ReportedRevenue money.Money `json:"reported_revenue"`
	SubmittedAt     time.Time   `json:"submitted_at" db:"submitted_at"`
	Verified        bool        `json:"verified" db:"verified"`
}

// Payout is one immutable ledger entry: what one position received in one
// period. For a fixed (deal, period) the payout amounts sum exactly to the
// distributable pool minus leftoverToBusiness.
type Payout struct {
	ID         string      `json:"id" db:"id"`
	DealID     string      `json:"deal_id" db:"deal_id"`
	PositionID string      `json:"position_id" db:"position_id"`
	PeriodKey  string      `json:"period_key" db:"period_key"`
	Amount     money.Money `json:"amount"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

// Distribution is the per-period batch record. Its existence is the
// idempotency witness for (DealID, PeriodKey): a zero-revenue month records a
// batch with no payouts, which is the audit proof the month was paused, not
// skipped.
type Distribution struct {
	ID                 string      `json:"id" db:"id"`
	DealID             string      `json:"deal_id" db:"deal_id"`
	PeriodKey          string      `json:"period_key" db:"period_key"`
	Pool               money.Money `json:"pool"`
	LeftoverToBusiness money.Money `json:"leftover_to_business"`
	Payouts            []Payout    `json:"payouts"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
}

// PositionSummary is the read model served to investor dashboards.
type PositionSummary struct {
	PositionID   string         `json:"position_id"`
	DealID       string         `json:"deal_id"`
	InvestorID   string         `json:"investor_id"`
	Principal    money.Money    `json:"principal"`
	Cap          money.Money    `json:"cap"`
	RepaidToDate money.Money    `json:"repaid_to_date"`
	Remaining    money.Money    `json:"remaining"`
	Status       PositionStatus `json:"status"`
}

// Summary projects a position into its dashboard read model.
func (p Position) Summary() PositionSummary {
	return PositionSummary{
		PositionID:   p.ID,
		DealID:       p.DealID,
		InvestorID:   p.InvestorID,
		Principal:    p.Principal,
		Cap:          p.Cap,
		RepaidToDate: p.RepaidToDate,
		Remaining:    p.Remaining(),
		Status:       p.Status,
	}
}

// ApplyResult is returned from applying a revenue report. Replayed is true
// when the (deal, period) batch already existed and the recorded result was
// returned unchanged.
type ApplyResult struct {
	Distribution Distribution      `json:"distribution"`
	DealStatus   DealStatus        `json:"deal_status"`
	Positions    []PositionSummary `json:"positions"`
	Replayed     bool              `json:"replayed"`
}
