// Package notify turns recomputed derived state into minimal change
// events and fans them out to subscribers. Delivery is decoupled from
// the engine's write path: publishing never blocks, and a slow consumer
// only grows its own backlog.
package notify

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/ordna/internal/domain"
)

// DerivedNode captures the derived values the notifier watches for one
// node.
type DerivedNode struct {
	Rank           int
	Score          float64
	Slack          time.Duration
	OnCriticalPath bool
	Status         domain.Status
}

// State maps node id to its derived values after one computation pass.
type State map[string]DerivedNode

// Config tunes change detection thresholds. Thresholds exist to keep
// floating-point noise from becoming event storms.
type Config struct {
	ScoreThreshold float64
	SlackThreshold time.Duration
	// Buffer is the per-subscriber delivery channel capacity.
	Buffer int
}

// DefaultConfig returns stock notifier tuning.
func DefaultConfig() Config {
	return Config{
		ScoreThreshold: 1e-6,
		SlackThreshold: time.Second,
		Buffer:         64,
	}
}

// Diff compares two derived states and returns one event per node and
// field that materially changed, attributed to the causing mutation.
// Output order is deterministic: node id ascending, then a fixed field
// order. Nodes present only in old (removed) or only in new (added)
// emit no events; structural lifecycle is the caller's concern.
func Diff(old, next State, cause string, now time.Time, cfg Config) []domain.ChangeEvent {
	ids := make([]string, 0, len(next))
	for id := range next {
		if _, ok := old[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	now = now.UTC()
	events := make([]domain.ChangeEvent, 0)
	for _, id := range ids {
		before, after := old[id], next[id]

		if before.Rank != after.Rank {
			events = append(events, event(id, domain.ChangeFieldRank, strconv.Itoa(before.Rank), strconv.Itoa(after.Rank), cause, now))
		}
		if diff := after.Score - before.Score; diff > cfg.ScoreThreshold || diff < -cfg.ScoreThreshold {
			events = append(events, event(id, domain.ChangeFieldScore, formatScore(before.Score), formatScore(after.Score), cause, now))
		}
		if diff := after.Slack - before.Slack; diff > cfg.SlackThreshold || diff < -cfg.SlackThreshold {
			events = append(events, event(id, domain.ChangeFieldSlack, before.Slack.String(), after.Slack.String(), cause, now))
		}
		if before.OnCriticalPath != after.OnCriticalPath {
			events = append(events, event(id, domain.ChangeFieldCritical, strconv.FormatBool(before.OnCriticalPath), strconv.FormatBool(after.OnCriticalPath), cause, now))
		}
		if before.Status != after.Status {
			events = append(events, event(id, domain.ChangeFieldStatus, string(before.Status), string(after.Status), cause, now))
		}
	}
	return events
}

func event(nodeID string, field domain.ChangeField, oldValue, newValue, cause string, now time.Time) domain.ChangeEvent {
	return domain.ChangeEvent{
		NodeID:          nodeID,
		Field:           field,
		OldValue:        oldValue,
		NewValue:        newValue,
		CauseMutationID: cause,
		OccurredAt:      now,
	}
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 6, 64)
}

// Notifier fans change events out to named subscribers. Each subscriber
// owns an unbounded, monitored outbox drained by its own goroutine, so
// publishing is a non-blocking append and per-subscriber delivery order
// matches publish order.
type Notifier struct {
	cfg    Config
	logger *charmLog.Logger

	mu   sync.Mutex
	subs map[string]*subscriber
}

type subscriber struct {
	mu     sync.Mutex
	queue  []domain.ChangeEvent
	wake   chan struct{}
	done   chan struct{}
	out    chan domain.ChangeEvent
	closed bool
}

// NewNotifier constructs a notifier.
func NewNotifier(cfg Config, logger *charmLog.Logger) *Notifier {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}
	if logger == nil {
		logger = charmLog.Default()
	}
	return &Notifier{
		cfg:    cfg,
		logger: logger,
		subs:   map[string]*subscriber{},
	}
}

// Config returns the notifier's thresholds for use by Diff callers.
func (n *Notifier) Config() Config {
	return n.cfg
}

// Subscribe registers a consumer and returns its delivery channel. The
// channel closes on Unsubscribe or Close.
func (n *Notifier) Subscribe(name string) (<-chan domain.ChangeEvent, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.subs[name]; ok {
		return nil, fmt.Errorf("subscriber %q already registered", name)
	}
	sub := &subscriber{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan domain.ChangeEvent, n.cfg.Buffer),
	}
	n.subs[name] = sub
	go sub.drain()
	return sub.out, nil
}

// Unsubscribe removes a consumer and closes its channel. Unknown names
// are a no-op.
func (n *Notifier) Unsubscribe(name string) {
	n.mu.Lock()
	sub, ok := n.subs[name]
	delete(n.subs, name)
	n.mu.Unlock()
	if ok {
		sub.close()
	}
}

// warnBacklog is the undelivered-event count at which a subscriber is
// reported as falling behind.
const warnBacklog = 1024

// Publish appends events to every subscriber's outbox without
// blocking.
func (n *Notifier) Publish(events []domain.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for name, sub := range n.subs {
		sub.enqueue(events)
		if backlog := sub.backlog() + len(sub.out); backlog > warnBacklog {
			n.logger.Warn("subscriber falling behind", "subscriber", name, "backlog", backlog)
		}
	}
}

// Backlog reports the number of undelivered events for a subscriber so
// operators can watch for consumers falling behind.
func (n *Notifier) Backlog(name string) int {
	n.mu.Lock()
	sub, ok := n.subs[name]
	n.mu.Unlock()
	if !ok {
		return 0
	}
	return sub.backlog() + len(sub.out)
}

// Close shuts down every subscriber.
func (n *Notifier) Close() {
	n.mu.Lock()
	subs := n.subs
	n.subs = map[string]*subscriber{}
	n.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

func (s *subscriber) backlog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *subscriber) enqueue(events []domain.ChangeEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, events...)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// drain forwards queued events to the delivery channel in publish
// order until the subscriber is closed.
func (s *subscriber) drain() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- next:
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	close(s.done)
}
