package notify

import (
	"testing"
	"time"

	"github.com/hylla/ordna/internal/domain"
)

func TestDiffEmitsOnlyMaterialChanges(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	old := State{
		"a": {Rank: 1, Score: 2.0, Slack: 0, OnCriticalPath: true, Status: domain.StatusPending},
		"b": {Rank: 2, Score: 1.0, Slack: 4 * time.Hour, OnCriticalPath: false, Status: domain.StatusPending},
	}
	next := State{
		// Score moved by float noise only; no event expected.
		"a": {Rank: 1, Score: 2.0 + 1e-9, Slack: 0, OnCriticalPath: true, Status: domain.StatusPending},
		// Rank, slack, critical membership, status all changed.
		"b": {Rank: 1, Score: 1.0, Slack: 0, OnCriticalPath: true, Status: domain.StatusActive},
	}

	events := Diff(old, next, "m1", now, cfg)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %v", len(events), events)
	}
	for _, ev := range events {
		if ev.NodeID != "b" {
			t.Fatalf("only b changed materially, got event for %s", ev.NodeID)
		}
		if ev.CauseMutationID != "m1" {
			t.Fatalf("event must carry causing mutation, got %q", ev.CauseMutationID)
		}
	}
	wantFields := []domain.ChangeField{
		domain.ChangeFieldRank,
		domain.ChangeFieldSlack,
		domain.ChangeFieldCritical,
		domain.ChangeFieldStatus,
	}
	for i, want := range wantFields {
		if events[i].Field != want {
			t.Fatalf("event %d field = %s, want %s", i, events[i].Field, want)
		}
	}
}

func TestDiffIgnoresAddedAndRemovedNodes(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	old := State{"gone": {Rank: 1}}
	next := State{"new": {Rank: 1}}
	if events := Diff(old, next, "m1", now, cfg); len(events) != 0 {
		t.Fatalf("added/removed nodes must emit nothing, got %v", events)
	}
}

func TestDiffDeterministicOrder(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	old := State{
		"z": {Rank: 1},
		"a": {Rank: 2},
	}
	next := State{
		"z": {Rank: 2},
		"a": {Rank: 1},
	}
	events := Diff(old, next, "m1", now, cfg)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].NodeID != "a" || events[1].NodeID != "z" {
		t.Fatalf("events must order by node id, got %s then %s", events[0].NodeID, events[1].NodeID)
	}
}

func TestNotifierDeliversInPublishOrder(t *testing.T) {
	n := NewNotifier(DefaultConfig(), nil)
	defer n.Close()

	ch, err := n.Subscribe("ui")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	now := time.Now()
	for i := 0; i < 10; i++ {
		n.Publish([]domain.ChangeEvent{{
			NodeID:          "a",
			Field:           domain.ChangeFieldRank,
			OldValue:        "0",
			NewValue:        string(rune('0' + i)),
			CauseMutationID: "m",
			OccurredAt:      now,
		}})
	}

	for i := 0; i < 10; i++ {
		select {
		case ev := <-ch:
			if want := string(rune('0' + i)); ev.NewValue != want {
				t.Fatalf("event %d out of order: got %q want %q", i, ev.NewValue, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestNotifierSlowConsumerDoesNotBlockPublish(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Buffer = 1
	n := NewNotifier(cfg, nil)
	defer n.Close()

	if _, err := n.Subscribe("slow"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			n.Publish([]domain.ChangeEvent{{NodeID: "a", Field: domain.ChangeFieldScore}})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
	if n.Backlog("slow") == 0 {
		t.Fatal("slow consumer must accumulate a backlog")
	}
}

func TestNotifierUnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier(DefaultConfig(), nil)
	ch, err := n.Subscribe("ui")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	n.Unsubscribe("ui")

	select {
	case _, open := <-ch:
		if open {
			// A buffered event may still arrive; drain until close.
			for range ch {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel must close after unsubscribe")
	}

	if _, err := n.Subscribe("ui"); err != nil {
		t.Fatalf("name must be reusable after unsubscribe, got %v", err)
	}
	n.Close()
}

func TestSubscribeDuplicateName(t *testing.T) {
	n := NewNotifier(DefaultConfig(), nil)
	defer n.Close()
	if _, err := n.Subscribe("ui"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := n.Subscribe("ui"); err == nil {
		t.Fatal("duplicate subscriber name must fail")
	}
}
