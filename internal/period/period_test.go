package period

import (
	"errors"
	"testing"
	"time"
)

func TestParse_Valid(t *testing.T) {
	p, err := Parse("2025-11")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Year != 2025 || p.Month != time.November {
		t.Errorf("expected 2025-11, got %+v", p)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{
		"2025-13",  // month out of range
		"2025-00",  // month zero
		"2025-1",   // unpadded month
		"25-11",    // short year
		"2025/11",  // wrong separator
		"2025-11-", // trailing junk
		"",
		"november 2025",
	}
	for _, key := range cases {
		if _, err := Parse(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Parse(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestValid(t *testing.T) {
	if !Valid("2024-02") {
		t.Error("expected 2024-02 to be valid")
	}
	if Valid("2024-14") {
		t.Error("expected 2024-14 to be invalid")
	}
}

func TestString_Canonical(t *testing.T) {
	p := Period{Year: 2025, Month: time.March}
	if got := p.String(); got != "2025-03" {
		t.Errorf("expected 2025-03, got %q", got)
	}
}

func TestString_RoundTrips(t *testing.T) {
	for _, key := range []string{"2024-01", "2025-09", "2030-12"} {
		p, err := Parse(key)
		if err != nil {
			t.Fatalf("Parse(%q): %v", key, err)
		}
		if p.String() != key {
			t.Errorf("round trip %q → %q", key, p.String())
		}
	}
}

func TestNext(t *testing.T) {
	p := Period{Year: 2025, Month: time.November}
	if n := p.Next(); n.Year != 2025 || n.Month != time.December {
		t.Errorf("expected 2025-12, got %+v", n)
	}
	// December wraps to January of the following year.
	p = Period{Year: 2025, Month: time.December}
	if n := p.Next(); n.Year != 2026 || n.Month != time.January {
		t.Errorf("expected 2026-01, got %+v", n)
	}
}

func TestStart(t *testing.T) {
	p := Period{Year: 2025, Month: time.November}
	want := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	if !p.Start().Equal(want) {
		t.Errorf("expected %v, got %v", want, p.Start())
	}
}
