// Package mood tracks the companion's affective state: a two-axis
// valence/arousal value that drifts back toward a baseline over time. The
// decay transform is pure so the orchestrator can apply it to any resolved
// state without touching storage.
package mood

import (
	"context"
	"fmt"
	"math"
	"time"
)

// State is a point-in-time affective state. Valence runs -1..1 (negative to
// positive), arousal 0..1 (flat to activated). UpdatedAt anchors decay.
type State struct {
	Valence   float64   `json:"valence"`
	Arousal   float64   `json:"arousal"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Baseline is the resting state the companion decays toward, and the
// fallback when mood resolution is unavailable. Constructed once at process
// start; never mutated.
var Baseline = State{Valence: 0.1, Arousal: 0.35}

// DefaultHalfLife is how long a mood excursion takes to fall halfway back
// to baseline.
const DefaultHalfLife = 90 * time.Minute

// Provider resolves the stored mood for a user. The orchestrator bounds the
// wait and substitutes Baseline on timeout or error.
type Provider interface {
	Resolve(ctx context.Context, userID string) (State, error)
}

// Engine applies time decay to mood states.
type Engine struct {
	HalfLife time.Duration
}

// NewEngine creates an engine; halfLife <= 0 selects the default.
func NewEngine(halfLife time.Duration) *Engine {
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return &Engine{HalfLife: halfLife}
}

// Decay returns s drifted toward Baseline for the time elapsed between
// s.UpdatedAt and now. Pure: no I/O, no stored state. A zero UpdatedAt or
// non-positive elapsed time leaves the axes unchanged.
func (e *Engine) Decay(s State, now time.Time) State {
	elapsed := now.Sub(s.UpdatedAt)
	if s.UpdatedAt.IsZero() || elapsed <= 0 {
		s.UpdatedAt = now
		return clamp(s)
	}

	factor := math.Pow(0.5, elapsed.Seconds()/e.HalfLife.Seconds())
	return clamp(State{
		Valence:   Baseline.Valence + (s.Valence-Baseline.Valence)*factor,
		Arousal:   Baseline.Arousal + (s.Arousal-Baseline.Arousal)*factor,
		UpdatedAt: now,
	})
}

// Nudge shifts a state by the given deltas, clamped to range, stamped at
// now. The chat surface uses small positive nudges after good exchanges.
func Nudge(s State, valenceDelta, arousalDelta float64, now time.Time) State {
	return clamp(State{
		Valence:   s.Valence + valenceDelta,
		Arousal:   s.Arousal + arousalDelta,
		UpdatedAt: now,
	})
}

func clamp(s State) State {
	s.Valence = math.Max(-1, math.Min(1, s.Valence))
	s.Arousal = math.Max(0, math.Min(1, s.Arousal))
	return s
}

// Describe maps the axes to a short human label.
func Describe(s State) string {
	high := s.Arousal >= 0.55
	switch {
	case s.Valence >= 0.4 && high:
		return "bright and energized"
	case s.Valence >= 0.4:
		return "content and settled"
	case s.Valence >= 0.1 && high:
		return "engaged and curious"
	case s.Valence >= 0.1:
		return "calm and open"
	case s.Valence >= -0.2 && high:
		return "restless"
	case s.Valence >= -0.2:
		return "subdued"
	case high:
		return "tense and frayed"
	default:
		return "low and withdrawn"
	}
}

// RenderInjection renders the MOOD STATE section body.
func RenderInjection(s State) string {
	return fmt.Sprintf(
		"Current mood: %s (valence %+.2f, arousal %.2f).\nLet this color the tone of the reply, not its substance.",
		Describe(s), s.Valence, s.Arousal,
	)
}
