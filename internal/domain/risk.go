package domain

import (
	"math"
	"strings"
	"time"
)

// NeutralRisk is the prior used when no risk input exists for a node.
const NeutralRisk = 0.5

// RiskInput is an externally produced near-term risk estimate in [0,1]
// for one node. The engine never computes this value; it only decays it
// toward the neutral prior as the estimate ages.
type RiskInput struct {
	NodeID     string
	Value      float64
	ObservedAt time.Time
}

// NewRiskInput validates and constructs a risk input.
func NewRiskInput(nodeID string, value float64, observedAt time.Time) (RiskInput, error) {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return RiskInput{}, ErrInvalidID
	}
	if math.IsNaN(value) || value < 0 || value > 1 {
		return RiskInput{}, ErrInvalidRisk
	}
	return RiskInput{
		NodeID:     nodeID,
		Value:      value,
		ObservedAt: observedAt.UTC(),
	}, nil
}

// DecayedValue returns the risk estimate down-weighted for its age at
// now. The value decays exponentially toward neutral with the given
// half-life: after one half-life the distance to neutral has halved.
// A non-positive half-life disables decay. Clock skew (now before
// ObservedAt) is treated as zero elapsed time.
func (r RiskInput) DecayedValue(now time.Time, halfLife time.Duration, neutral float64) float64 {
	if halfLife <= 0 {
		return r.Value
	}
	elapsed := now.Sub(r.ObservedAt)
	if elapsed <= 0 {
		return r.Value
	}
	factor := math.Exp(-math.Ln2 * elapsed.Hours() / halfLife.Hours())
	return neutral + (r.Value-neutral)*factor
}
