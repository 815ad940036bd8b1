package models

import "time"

// DecisionType classifies an audit entry.
type DecisionType string

const (
	DecisionEntryAttempt DecisionType = "entry_attempt"
	DecisionEntryAccept  DecisionType = "entry_accept"
	DecisionEntryReject  DecisionType = "entry_reject"
	DecisionExitAttempt  DecisionType = "exit_attempt"
	DecisionExitAccept   DecisionType = "exit_accept"
	DecisionExitReject   DecisionType = "exit_reject"
)

// AuditEntry is one append-only record of a trading decision and the inputs
// that produced it. Timestamps come from the snapshot clock, never the wall
// clock, so replaying identical inputs reproduces identical entries.
type AuditEntry struct {
	Seq        int64              `json:"seq"`
	Timestamp  time.Time          `json:"timestamp"`
	Decision   DecisionType       `json:"decision"`
	PositionID string             `json:"position_id,omitempty"`
	Criterion  string             `json:"criterion,omitempty"`
	Passed     bool               `json:"passed"`
	Reason     string             `json:"reason,omitempty"`
	Values     map[string]float64 `json:"values,omitempty"`
}
