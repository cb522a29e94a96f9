// Package telemetry carries the per-turn observability records: degradation
// events emitted when a subsystem falls back, and the end-of-turn metrics
// aggregate. The Recorder sinks both as JSONL; it is write-only and never on
// the correctness path of a turn.
package telemetry

import "time"

// Subsystem identifies which soft-failing collaborator degraded.
type Subsystem string

const (
	SubsystemIdentity Subsystem = "identity"
	SubsystemMood     Subsystem = "mood"
	SubsystemMemory   Subsystem = "memory"
)

// Kind classifies how the subsystem degraded.
type Kind string

const (
	KindTimeout  Kind = "timeout"
	KindError    Kind = "error"
	KindFallback Kind = "fallback"
)

// DegradationEvent records one fallback substitution. Immutable once created.
type DegradationEvent struct {
	Subsystem Subsystem `json:"subsystem"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// Status is the terminal outcome of a turn.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// TurnMetrics aggregates everything observable about one turn. It is created
// at turn start, finalized once, and emitted to the Recorder exactly once.
type TurnMetrics struct {
	TurnID       string             `json:"turn_id"`
	UserID       string             `json:"user_id"`
	SessionID    string             `json:"session_id"`
	LatencyMS    int64              `json:"latency_ms"`
	TokensUsed   int                `json:"tokens_used"`
	Utilization  float64            `json:"budget_utilization_pct"`
	Degradations []DegradationEvent `json:"degradation_events"`
	Errors       []string           `json:"errors,omitempty"`
	Status       Status             `json:"status"`
	Timestamp    time.Time          `json:"ts"`
}

// Finalize derives the terminal status: failed wins over everything,
// otherwise any degradation marks the turn degraded.
func (m *TurnMetrics) Finalize(failed bool) {
	switch {
	case failed:
		m.Status = StatusFailed
	case len(m.Degradations) > 0:
		m.Status = StatusDegraded
	default:
		m.Status = StatusSuccess
	}
}
