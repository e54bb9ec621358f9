package domain

import (
	"testing"
	"time"
)

func TestNewDependencyValidation(t *testing.T) {
	now := time.Now()
	if _, err := NewDependency("", "a", "b", KindFinishToStart, HardnessHard, now); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := NewDependency("e1", "a", "a", KindFinishToStart, HardnessHard, now); err != ErrSelfLoop {
		t.Fatalf("expected ErrSelfLoop, got %v", err)
	}
	if _, err := NewDependency("e1", "a", "b", "circular", HardnessHard, now); err != ErrInvalidKind {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
	if _, err := NewDependency("e1", "a", "b", KindFinishToStart, "squishy", now); err != ErrInvalidHardness {
		t.Fatalf("expected ErrInvalidHardness, got %v", err)
	}
}

func TestNewDependencyDefaults(t *testing.T) {
	now := time.Now()
	d, err := NewDependency("e1", "a", "b", "", "", now)
	if err != nil {
		t.Fatalf("NewDependency() error = %v", err)
	}
	if d.Kind != KindFinishToStart {
		t.Fatalf("expected finish-to-start default, got %q", d.Kind)
	}
	if d.Hardness != HardnessHard {
		t.Fatalf("expected hard default, got %q", d.Hardness)
	}
}

func TestConstrains(t *testing.T) {
	now := time.Now()
	hard, err := NewDependency("e1", "a", "b", KindFinishToStart, HardnessHard, now)
	if err != nil {
		t.Fatalf("NewDependency() error = %v", err)
	}
	if !hard.Constrains() {
		t.Fatal("active hard edge must constrain")
	}

	soft, err := NewDependency("e2", "a", "b", KindFinishToStart, HardnessSoft, now)
	if err != nil {
		t.Fatalf("NewDependency() error = %v", err)
	}
	if soft.Constrains() {
		t.Fatal("soft edge must not constrain")
	}

	override, err := NewOverride("sam", ActorTypeUser, "unblocking release", now)
	if err != nil {
		t.Fatalf("NewOverride() error = %v", err)
	}
	hard.Override = &override
	if hard.Constrains() {
		t.Fatal("overridden hard edge must not constrain")
	}
}

func TestNewOverrideValidation(t *testing.T) {
	now := time.Now()
	if _, err := NewOverride("  ", ActorTypeUser, "reason", now); err != ErrInvalidActor {
		t.Fatalf("expected ErrInvalidActor, got %v", err)
	}
	if _, err := NewOverride("sam", "robot", "reason", now); err != ErrInvalidActor {
		t.Fatalf("expected ErrInvalidActor, got %v", err)
	}
	o, err := NewOverride("sam", "", "reason", now)
	if err != nil {
		t.Fatalf("NewOverride() error = %v", err)
	}
	if o.ActorType != ActorTypeUser {
		t.Fatalf("expected user default, got %q", o.ActorType)
	}
}

func TestKindAliases(t *testing.T) {
	now := time.Now()
	d, err := NewDependency("e1", "a", "b", "ss", HardnessSoft, now)
	if err != nil {
		t.Fatalf("NewDependency() error = %v", err)
	}
	if d.Kind != KindStartToStart {
		t.Fatalf("expected start-to-start, got %q", d.Kind)
	}
}
