// Package priority ranks non-done work items by blending schedule
// urgency with a time-decaying externally supplied risk estimate. Every
// term of the blend stays inspectable on the result so a human or agent
// can trace why a node ranks where it does.
package priority

import (
	"math"
	"sort"
	"time"

	"github.com/hylla/ordna/internal/domain"
	"github.com/hylla/ordna/internal/graph"
	"github.com/hylla/ordna/internal/schedule"
)

// Weights tunes the score blend. Operators retune these through
// configuration; nothing here is a compiled constant.
type Weights struct {
	Urgency float64
	FanOut  float64
	Risk    float64
}

// Config holds scorer parameters.
type Config struct {
	Weights       Weights
	CriticalBonus float64
	RiskHalfLife  time.Duration
	NeutralRisk   float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Urgency: 1.0,
			FanOut:  0.5,
			Risk:    0.75,
		},
		CriticalBonus: 1.0,
		RiskHalfLife:  48 * time.Hour,
		NeutralRisk:   domain.NeutralRisk,
	}
}

// Score is one node's rank with each contributing term broken out.
type Score struct {
	NodeID        string  `json:"node_id"`
	Rank          int     `json:"rank"`
	Total         float64 `json:"total"`
	Urgency       float64 `json:"urgency"`
	CriticalBonus float64 `json:"critical_bonus"`
	FanOutWeight  float64 `json:"fan_out_weight"`
	DecayedRisk   float64 `json:"decayed_risk"`
	Dependents    int     `json:"dependents"`
}

// Scorer computes priority rankings from immutable inputs.
type Scorer struct {
	cfg Config
}

// NewScorer constructs a scorer. A zero-value config selects the stock
// tuning; any other config passes through field for field, so a
// configured zero (no critical bonus, zero neutral prior) is honored
// rather than replaced.
func NewScorer(cfg Config) *Scorer {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Scorer{cfg: cfg}
}

// Rank scores every non-done node and returns them in strictly
// descending score order, ties broken by node id ascending. The
// determinism of that ordering is part of the contract.
func (s *Scorer) Rank(snap *graph.Snapshot, result schedule.Result, risks map[string]domain.RiskInput, now time.Time) []Score {
	scores := make([]Score, 0, snap.NodeCount())
	for _, id := range snap.NodeIDs() {
		item, _ := snap.Node(id)
		if item.Status == domain.StatusDone {
			continue
		}
		scores = append(scores, s.score(snap, result, risks, id, now))
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Total != scores[j].Total {
			return scores[i].Total > scores[j].Total
		}
		return scores[i].NodeID < scores[j].NodeID
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
	return scores
}

// score computes one node's blended score.
func (s *Scorer) score(snap *graph.Snapshot, result schedule.Result, risks map[string]domain.RiskInput, id string, now time.Time) Score {
	sched := result.Nodes[id]

	slackHours := sched.Slack.Hours()
	if slackHours < 0 {
		slackHours = 0
	}
	urgency := 1 / (1 + slackHours)

	bonus := 0.0
	if sched.OnCriticalPath {
		bonus = s.cfg.CriticalBonus
	}

	dependents := len(transitiveDependents(snap, id))
	fanOut := math.Log1p(float64(dependents))

	risk := s.cfg.NeutralRisk
	if input, ok := risks[id]; ok {
		risk = input.DecayedValue(now, s.cfg.RiskHalfLife, s.cfg.NeutralRisk)
	}

	return Score{
		NodeID:        id,
		Urgency:       urgency,
		CriticalBonus: bonus,
		FanOutWeight:  fanOut,
		DecayedRisk:   risk,
		Dependents:    dependents,
		Total:         s.cfg.Weights.Urgency*urgency + bonus + s.cfg.Weights.FanOut*fanOut + s.cfg.Weights.Risk*risk,
	}
}

// transitiveDependents collects every node reachable downstream over
// hard, non-overridden edges. Soft edges are advisory and do not
// inflate fan-out.
func transitiveDependents(snap *graph.Snapshot, id string) map[string]struct{} {
	reached := map[string]struct{}{}
	stack := snap.ConstrainingSuccessors(id)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := reached[current]; ok {
			continue
		}
		reached[current] = struct{}{}
		stack = append(stack, snap.ConstrainingSuccessors(current)...)
	}
	return reached
}
