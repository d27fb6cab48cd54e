package money

import (
	"errors"
	"testing"
)

// --- Parse tests ---

func TestParse_WholeAmount(t *testing.T) {
	m, err := Parse("150000.00", "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Units != 15000000 {
		t.Errorf("expected 15000000 minor units, got %d", m.Units)
	}
	if m.Currency != "USD" {
		t.Errorf("expected USD, got %s", m.Currency)
	}
}

func TestParse_NoDecimalPoint(t *testing.T) {
	m, err := Parse("42", "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Units != 4200 {
		t.Errorf("expected 4200 minor units, got %d", m.Units)
	}
}

func TestParse_FractionalMinorUnit(t *testing.T) {
	_, err := Parse("10.001", "USD")
	if !errors.Is(err, ErrFractionalMinorUnit) {
		t.Errorf("expected ErrFractionalMinorUnit, got %v", err)
	}
}

func TestParse_Negative(t *testing.T) {
	_, err := Parse("-5.00", "USD")
	if !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestParse_Garbage(t *testing.T) {
	_, err := Parse("not-a-number", "USD")
	if err == nil {
		t.Error("expected error for unparseable amount")
	}
}

// --- Arithmetic tests ---

func TestAdd(t *testing.T) {
	a := New(1000, "USD")
	b := New(250, "USD")
	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Units != 1250 {
		t.Errorf("expected 1250, got %d", sum.Units)
	}
}

func TestAdd_CurrencyMismatch(t *testing.T) {
	_, err := New(100, "USD").Add(New(100, "EUR"))
	if !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestAdd_ZeroValueCompatible(t *testing.T) {
	// The zero Money (no currency) combines with any currency.
	sum, err := Money{}.Add(New(500, "USD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Units != 500 || sum.Currency != "USD" {
		t.Errorf("expected 500 USD, got %s", sum)
	}
}

func TestSub(t *testing.T) {
	diff, err := New(1000, "USD").Sub(New(300, "USD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff.Units != 700 {
		t.Errorf("expected 700, got %d", diff.Units)
	}
}

func TestSub_WouldGoNegative(t *testing.T) {
	_, err := New(100, "USD").Sub(New(101, "USD"))
	if !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestSub_ToExactZero(t *testing.T) {
	diff, err := New(100, "USD").Sub(New(100, "USD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !diff.IsZero() {
		t.Errorf("expected zero, got %d", diff.Units)
	}
}

func TestCmp(t *testing.T) {
	a := New(100, "USD")
	b := New(200, "USD")
	if a.Cmp(b) != -1 || b.Cmp(a) != 1 || a.Cmp(a) != 0 {
		t.Error("Cmp ordering incorrect")
	}
}

// --- MulRat tests ---

func TestMulRat_ExactDivision(t *testing.T) {
	// 12000 × 10000/50000 = 2400 exactly.
	m, rem, err := New(12000, "USD").MulRat(10000, 50000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Units != 2400 {
		t.Errorf("expected 2400, got %d", m.Units)
	}
	if rem != 0 {
		t.Errorf("expected zero remainder, got %d", rem)
	}
}

func TestMulRat_FlooredWithRemainder(t *testing.T) {
	// 100 × 1/3 = 33 remainder 1.
	m, rem, err := New(100, "USD").MulRat(1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Units != 33 {
		t.Errorf("expected 33, got %d", m.Units)
	}
	if rem != 1 {
		t.Errorf("expected remainder 1, got %d", rem)
	}
}

func TestMulRat_ReconstructsExactly(t *testing.T) {
	// quotient × den + rem == units × num, for a spread of inputs.
	cases := []struct {
		units, num, den int64
	}{
		{100, 1, 3},
		{15000000, 800, 10000},
		{999999999999, 7, 13},
		{1, 1, 1000000},
		{0, 5, 7},
	}
	for _, tc := range cases {
		m, rem, err := New(tc.units, "USD").MulRat(tc.num, tc.den)
		if err != nil {
			t.Fatalf("MulRat(%d, %d/%d): %v", tc.units, tc.num, tc.den, err)
		}
		if m.Units*tc.den+rem != tc.units*tc.num {
			t.Errorf("MulRat(%d, %d/%d): %d×%d+%d != %d×%d",
				tc.units, tc.num, tc.den, m.Units, tc.den, rem, tc.units, tc.num)
		}
		if rem < 0 || rem >= tc.den {
			t.Errorf("remainder %d out of [0, %d)", rem, tc.den)
		}
	}
}

func TestMulRat_LargeValuesNoOverflow(t *testing.T) {
	// pool × principal style product that would overflow int64 math:
	// 5×10^14 × 4×10^14 needs 128-bit intermediates.
	m, _, err := New(500000000000000, "USD").MulRat(400000000000000, 900000000000000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 5e14 × 4/9 = 222222222222222.22 → floored.
	if m.Units != 222222222222222 {
		t.Errorf("expected 222222222222222, got %d", m.Units)
	}
}

func TestMulRat_InvalidRational(t *testing.T) {
	if _, _, err := New(100, "USD").MulRat(1, 0); !errors.Is(err, ErrInvalidRational) {
		t.Errorf("expected ErrInvalidRational for zero denominator, got %v", err)
	}
	if _, _, err := New(100, "USD").MulRat(-1, 10); !errors.Is(err, ErrInvalidRational) {
		t.Errorf("expected ErrInvalidRational for negative numerator, got %v", err)
	}
}

func TestMulBasisPoints(t *testing.T) {
	// 150000.00 × 8% = 12000.00.
	m, rem, err := New(15000000, "USD").MulBasisPoints(800)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Units != 1200000 {
		t.Errorf("expected 1200000, got %d", m.Units)
	}
	if rem != 0 {
		t.Errorf("expected zero remainder, got %d", rem)
	}
}

func TestString(t *testing.T) {
	if got := New(1200000, "USD").String(); got != "12000.00 USD" {
		t.Errorf("expected %q, got %q", "12000.00 USD", got)
	}
	if got := New(5, "USD").String(); got != "0.05 USD" {
		t.Errorf("expected %q, got %q", "0.05 USD", got)
	}
}
