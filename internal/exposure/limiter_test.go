package exposure

import (
	"errors"
	"testing"

	"github.com/revloop/distribution-engine/internal/model"
	"github.com/revloop/distribution-engine/internal/money"
)

func testLimiter() *Limiter {
	return NewLimiter(money.New(10000, "USD"), money.New(25000, "USD"))
}

func position(dealID string, principal int64) model.Position {
	return model.Position{
		DealID:    dealID,
		Principal: money.New(principal, "USD"),
		Status:    model.PositionActive,
	}
}

func TestCheck_NoExistingPositions(t *testing.T) {
	if err := testLimiter().Check("deal-1", money.New(5000, "USD"), nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheck_AtPerDealLimitAllowed(t *testing.T) {
	existing := []model.Position{position("deal-1", 4000)}
	if err := testLimiter().Check("deal-1", money.New(6000, "USD"), existing); err != nil {
		t.Errorf("principal at exactly the per-deal limit should pass, got %v", err)
	}
}

func TestCheck_OneUnitOverPerDealLimit(t *testing.T) {
	existing := []model.Position{position("deal-1", 4000)}
	err := testLimiter().Check("deal-1", money.New(6001, "USD"), existing)
	if !errors.Is(err, ErrPerDealLimitExceeded) {
		t.Errorf("expected ErrPerDealLimitExceeded, got %v", err)
	}
}

func TestCheck_OtherDealsDoNotCountPerDeal(t *testing.T) {
	// 9000 in another deal leaves the full per-deal budget for deal-2.
	existing := []model.Position{position("deal-1", 9000)}
	if err := testLimiter().Check("deal-2", money.New(10000, "USD"), existing); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheck_AtTotalLimitAllowed(t *testing.T) {
	existing := []model.Position{
		position("deal-1", 10000),
		position("deal-2", 10000),
	}
	if err := testLimiter().Check("deal-3", money.New(5000, "USD"), existing); err != nil {
		t.Errorf("principal at exactly the total limit should pass, got %v", err)
	}
}

func TestCheck_OneUnitOverTotalLimit(t *testing.T) {
	existing := []model.Position{
		position("deal-1", 10000),
		position("deal-2", 10000),
	}
	err := testLimiter().Check("deal-3", money.New(5001, "USD"), existing)
	if !errors.Is(err, ErrTotalLimitExceeded) {
		t.Errorf("expected ErrTotalLimitExceeded, got %v", err)
	}
}

func TestCheck_CompletedPositionsStillCount(t *testing.T) {
	// Exposure counts principal ever committed, not just open positions.
	done := position("deal-1", 10000)
	done.Status = model.PositionCompleted
	err := testLimiter().Check("deal-1", money.New(1, "USD"), []model.Position{done})
	if !errors.Is(err, ErrPerDealLimitExceeded) {
		t.Errorf("expected ErrPerDealLimitExceeded, got %v", err)
	}
}
