package domain

import "time"

// ChangeField identifies which derived value changed for a node.
type ChangeField string

// ChangeField values emitted by the change notifier.
const (
	ChangeFieldRank     ChangeField = "rank"
	ChangeFieldScore    ChangeField = "score"
	ChangeFieldSlack    ChangeField = "slack"
	ChangeFieldCritical ChangeField = "critical"
	ChangeFieldStatus   ChangeField = "status"
)

// ChangeEvent records one material change to a node's derived state,
// attributed to the mutation that caused it. Values are rendered as
// strings so consumers never depend on internal numeric types.
type ChangeEvent struct {
	NodeID          string      `json:"node_id"`
	Field           ChangeField `json:"field"`
	OldValue        string      `json:"old_value"`
	NewValue        string      `json:"new_value"`
	CauseMutationID string      `json:"cause_mutation_id"`
	OccurredAt      time.Time   `json:"occurred_at"`
}
