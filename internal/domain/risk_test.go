package domain

import (
	"testing"
	"time"
)

func TestNewRiskInputValidation(t *testing.T) {
	now := time.Now()
	if _, err := NewRiskInput("", 0.5, now); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := NewRiskInput("n1", -0.1, now); err != ErrInvalidRisk {
		t.Fatalf("expected ErrInvalidRisk, got %v", err)
	}
	if _, err := NewRiskInput("n1", 1.1, now); err != ErrInvalidRisk {
		t.Fatalf("expected ErrInvalidRisk, got %v", err)
	}
	if _, err := NewRiskInput("n1", 0, now); err != nil {
		t.Fatalf("zero risk must be legal, got %v", err)
	}
	if _, err := NewRiskInput("n1", 1, now); err != nil {
		t.Fatalf("full risk must be legal, got %v", err)
	}
}

func TestDecayedValueMonotonic(t *testing.T) {
	observed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, err := NewRiskInput("n1", 0.9, observed)
	if err != nil {
		t.Fatalf("NewRiskInput() error = %v", err)
	}
	halfLife := 24 * time.Hour

	prev := r.DecayedValue(observed, halfLife, NeutralRisk)
	if prev != 0.9 {
		t.Fatalf("no elapsed time must mean no decay, got %v", prev)
	}
	for hours := 1; hours <= 200; hours += 7 {
		now := observed.Add(time.Duration(hours) * time.Hour)
		got := r.DecayedValue(now, halfLife, NeutralRisk)
		if got >= prev {
			t.Fatalf("decay must strictly decrease: %v then %v at %dh", prev, got, hours)
		}
		if got < NeutralRisk {
			t.Fatalf("decay must not cross neutral: %v at %dh", got, hours)
		}
		if got > 0.9 {
			t.Fatalf("decay must not exceed original: %v at %dh", got, hours)
		}
		prev = got
	}
}

func TestDecayedValueHalfLife(t *testing.T) {
	observed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, err := NewRiskInput("n1", 0.9, observed)
	if err != nil {
		t.Fatalf("NewRiskInput() error = %v", err)
	}
	halfLife := 12 * time.Hour

	got := r.DecayedValue(observed.Add(halfLife), halfLife, NeutralRisk)
	want := NeutralRisk + (0.9-NeutralRisk)/2
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("after one half-life want %v, got %v", want, got)
	}
}

func TestDecayedValueEdgeCases(t *testing.T) {
	observed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, err := NewRiskInput("n1", 0.8, observed)
	if err != nil {
		t.Fatalf("NewRiskInput() error = %v", err)
	}

	// Disabled decay returns the raw value regardless of age.
	if got := r.DecayedValue(observed.Add(100*time.Hour), 0, NeutralRisk); got != 0.8 {
		t.Fatalf("zero half-life must disable decay, got %v", got)
	}
	// Observation timestamps in the future count as fresh.
	if got := r.DecayedValue(observed.Add(-time.Hour), 24*time.Hour, NeutralRisk); got != 0.8 {
		t.Fatalf("future observation must not decay, got %v", got)
	}
}
