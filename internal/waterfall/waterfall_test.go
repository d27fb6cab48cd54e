package waterfall

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/revloop/distribution-engine/internal/model"
	"github.com/revloop/distribution-engine/internal/money"
)

// pos is a test helper for building an active position in minor units.
func pos(id string, principal, cap, repaid int64) model.Position {
	return model.Position{
		ID:           id,
		Status:       model.PositionActive,
		Principal:    money.New(principal, "USD"),
		Cap:          money.New(cap, "USD"),
		RepaidToDate: money.New(repaid, "USD"),
	}
}

func usd(units int64) money.Money { return money.New(units, "USD") }

// amounts indexes allocations by position ID.
func amounts(allocs []Allocation) map[string]int64 {
	m := make(map[string]int64, len(allocs))
	for _, a := range allocs {
		m[a.PositionID] = a.Amount.Units
	}
	return m
}

// --- Worked scenarios ---

func TestCompute_ProportionalSplit(t *testing.T) {
	// Two positions, 10k and 40k principal, pool 12k: exact 1:4 split.
	allocs, leftover, err := Compute(usd(12000), []model.Position{
		pos("A", 10000, 17000, 0),
		pos("B", 40000, 52000, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := amounts(allocs)
	if got["A"] != 2400 {
		t.Errorf("A: expected 2400, got %d", got["A"])
	}
	if got["B"] != 9600 {
		t.Errorf("B: expected 9600, got %d", got["B"])
	}
	if !leftover.IsZero() {
		t.Errorf("expected zero leftover, got %s", leftover)
	}
}

func TestCompute_CapTriggersRedistribution(t *testing.T) {
	// A has only 500 headroom left; its excess 100 cascades to B.
	allocs, leftover, err := Compute(usd(3000), []model.Position{
		pos("A", 10000, 17000, 16500),
		pos("B", 40000, 52000, 30000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := amounts(allocs)
	if got["A"] != 500 {
		t.Errorf("A: expected 500 (clipped at cap), got %d", got["A"])
	}
	if got["B"] != 2500 {
		t.Errorf("B: expected 2500 (2400 + 100 excess), got %d", got["B"])
	}
	if !leftover.IsZero() {
		t.Errorf("expected zero leftover, got %s", leftover)
	}
}

func TestCompute_MultiPassCascade(t *testing.T) {
	// Successive passes cap A then B; C absorbs the rest.
	allocs, leftover, err := Compute(usd(1000), []model.Position{
		pos("A", 1000, 1010, 1000), // headroom 10
		pos("B", 1000, 1050, 1000), // headroom 50
		pos("C", 1000, 10000, 0),   // effectively unbounded here
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := amounts(allocs)
	if got["A"] != 10 {
		t.Errorf("A: expected 10, got %d", got["A"])
	}
	if got["B"] != 50 {
		t.Errorf("B: expected 50, got %d", got["B"])
	}
	if got["C"] != 940 {
		t.Errorf("C: expected 940, got %d", got["C"])
	}
	if !leftover.IsZero() {
		t.Errorf("expected zero leftover, got %s", leftover)
	}
}

// --- Degenerate inputs ---

func TestCompute_ZeroPool(t *testing.T) {
	allocs, leftover, err := Compute(usd(0), []model.Position{
		pos("A", 10000, 17000, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocs) != 0 {
		t.Errorf("expected no allocations, got %d", len(allocs))
	}
	if !leftover.IsZero() {
		t.Errorf("expected zero leftover, got %s", leftover)
	}
}

func TestCompute_NoPositions(t *testing.T) {
	allocs, leftover, err := Compute(usd(5000), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocs) != 0 {
		t.Errorf("expected no allocations, got %d", len(allocs))
	}
	if leftover.Units != 5000 {
		t.Errorf("expected full pool as leftover, got %s", leftover)
	}
}

func TestCompute_AllCapped_LeftoverToBusiness(t *testing.T) {
	// Both positions nearly done; pool exceeds total headroom.
	allocs, leftover, err := Compute(usd(1000), []model.Position{
		pos("A", 10000, 17000, 16900), // headroom 100
		pos("B", 40000, 52000, 51950), // headroom 50
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := amounts(allocs)
	if got["A"] != 100 || got["B"] != 50 {
		t.Errorf("expected positions filled to caps, got A=%d B=%d", got["A"], got["B"])
	}
	if leftover.Units != 850 {
		t.Errorf("expected leftover 850, got %s", leftover)
	}
}

func TestCompute_SinglePosition(t *testing.T) {
	allocs, leftover, err := Compute(usd(777), []model.Position{
		pos("A", 12345, 20000, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := amounts(allocs)
	if got["A"] != 777 {
		t.Errorf("expected full pool to sole position, got %d", got["A"])
	}
	if !leftover.IsZero() {
		t.Errorf("expected zero leftover, got %s", leftover)
	}
}

// --- Rounding dust placement ---

func TestCompute_DustToLargestRemainder(t *testing.T) {
	// principals 333/333/334 over pool 100: floored shares 33/33/33,
	// remainders 300/300/400 → the dust unit goes to C.
	allocs, leftover, err := Compute(usd(100), []model.Position{
		pos("A", 333, 100000, 0),
		pos("B", 333, 100000, 0),
		pos("C", 334, 100000, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := amounts(allocs)
	if got["A"] != 33 || got["B"] != 33 || got["C"] != 34 {
		t.Errorf("expected 33/33/34, got %d/%d/%d", got["A"], got["B"], got["C"])
	}
	if !leftover.IsZero() {
		t.Errorf("expected zero leftover, got %s", leftover)
	}
}

func TestCompute_DustTieBrokenByInputOrder(t *testing.T) {
	// Three equal positions, pool 100: 33 each plus one dust unit.
	// Equal remainders → first position in input order wins the unit.
	allocs, _, err := Compute(usd(100), []model.Position{
		pos("A", 500, 100000, 0),
		pos("B", 500, 100000, 0),
		pos("C", 500, 100000, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := amounts(allocs)
	if got["A"] != 34 || got["B"] != 33 || got["C"] != 33 {
		t.Errorf("expected 34/33/33, got %d/%d/%d", got["A"], got["B"], got["C"])
	}
}

func TestCompute_PoolSmallerThanPositionCount(t *testing.T) {
	// Pool of 2 units across 3 positions: all floored shares are zero,
	// dust placement hands out both units, conservation still exact.
	allocs, leftover, err := Compute(usd(2), []model.Position{
		pos("A", 100, 1000, 0),
		pos("B", 100, 1000, 0),
		pos("C", 100, 1000, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var total int64
	for _, a := range allocs {
		total += a.Amount.Units
	}
	if total+leftover.Units != 2 {
		t.Errorf("conservation violated: allocated %d leftover %d", total, leftover.Units)
	}
	if leftover.Units != 0 {
		t.Errorf("expected all dust placed, leftover %d", leftover.Units)
	}
}

// --- Input validation ---

func TestCompute_NegativePool(t *testing.T) {
	_, _, err := Compute(usd(-1), nil)
	if !errors.Is(err, ErrNegativePool) {
		t.Errorf("expected ErrNegativePool, got %v", err)
	}
}

func TestCompute_InactivePosition(t *testing.T) {
	p := pos("A", 1000, 1300, 1300)
	p.Status = model.PositionCompleted
	_, _, err := Compute(usd(100), []model.Position{p})
	if !errors.Is(err, ErrInactivePosition) {
		t.Errorf("expected ErrInactivePosition, got %v", err)
	}
}

func TestCompute_CurrencyMix(t *testing.T) {
	p := pos("A", 1000, 1300, 0)
	p.Principal = money.New(1000, "EUR")
	_, _, err := Compute(usd(100), []model.Position{p})
	if !errors.Is(err, ErrCurrencyMix) {
		t.Errorf("expected ErrCurrencyMix, got %v", err)
	}
}

// --- Properties over generated inputs ---

func TestCompute_ConservationAndCapRespect(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		n := 1 + rng.Intn(8)
		positions := make([]model.Position, 0, n)
		var totalHeadroom int64
		for j := 0; j < n; j++ {
			principal := 1 + rng.Int63n(1_000_000)
			cap := principal + rng.Int63n(principal+1) // 1.0x–2.0x
			repaid := rng.Int63n(cap + 1)
			positions = append(positions, pos(string(rune('A'+j)), principal, cap, repaid))
			totalHeadroom += cap - repaid
		}
		poolUnits := rng.Int63n(10_000_000)

		allocs, leftover, err := Compute(usd(poolUnits), positions)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}

		byID := amounts(allocs)
		var total int64
		for _, p := range positions {
			got := byID[p.ID]
			if got < 0 {
				t.Fatalf("case %d: negative payout for %s", i, p.ID)
			}
			headroom := p.Cap.Units - p.RepaidToDate.Units
			if got > headroom {
				t.Fatalf("case %d: payout %d exceeds headroom %d for %s", i, got, headroom, p.ID)
			}
			total += got
		}

		// Conservation, exactly, for every input.
		if total+leftover.Units != poolUnits {
			t.Fatalf("case %d: conservation violated: %d + %d != %d",
				i, total, leftover.Units, poolUnits)
		}

		// Leftover only exists when every position is saturated.
		if leftover.Units > 0 && total != totalHeadroom {
			t.Fatalf("case %d: leftover %d with unsaturated headroom (allocated %d of %d)",
				i, leftover.Units, total, totalHeadroom)
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	positions := []model.Position{
		pos("A", 317, 1000, 123),
		pos("B", 811, 2000, 77),
		pos("C", 499, 600, 0),
	}
	first, firstLeft, err := Compute(usd(12345), positions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, againLeft, err := Compute(usd(12345), positions)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !againLeft.Equal(firstLeft) || len(again) != len(first) {
			t.Fatal("repeated computation differs")
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("repeated computation differs at %d: %+v vs %+v", j, again[j], first[j])
			}
		}
	}
}
