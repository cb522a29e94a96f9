// Package turn runs one companion turn end to end: resolve identity, mood,
// and memory under bounded waits, assemble the five-section prompt against a
// fresh token budget, call the generation backend, and emit metrics. Soft
// subsystem failures degrade to fallbacks; only generation failure is fatal.
package turn

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kindred-ai/kindred/internal/budget"
	"github.com/kindred-ai/kindred/internal/identity"
	"github.com/kindred-ai/kindred/internal/memory"
	"github.com/kindred-ai/kindred/internal/mood"
	"github.com/kindred-ai/kindred/internal/prompt"
	"github.com/kindred-ai/kindred/internal/provider"
	"github.com/kindred-ai/kindred/internal/telemetry"
)

// ── Turn state machine ───────────────────────────────────────────────────────

// State names the strictly sequential stages of one turn.
type State string

const (
	StateInit             State = "INIT"
	StateIdentityResolved State = "IDENTITY_RESOLVED"
	StateMoodResolved     State = "MOOD_RESOLVED"
	StateBudgetReady      State = "BUDGET_READY"
	StateMemoryResolved   State = "MEMORY_RESOLVED"
	StatePromptAssembled  State = "PROMPT_ASSEMBLED"
	StateResponseReady    State = "RESPONSE_READY"
	StateFailed           State = "FAILED"
)

// UnavailableMessage is the only error text a turn ever shows the user.
const UnavailableMessage = "Service temporarily unavailable"

// errLLMUnreachable is the metrics entry recorded on the fatal path.
const errLLMUnreachable = "llm_unreachable"

// ── Construction ─────────────────────────────────────────────────────────────

// Options carries the fixed per-deployment turn parameters.
type Options struct {
	TotalContext    int
	ReservedOutput  int
	SafetyBuffer    float64
	IdentityTimeout time.Duration
	MoodTimeout     time.Duration
	MemoryTimeout   time.Duration
	MaxOutputTokens int
	Model           string
}

func (o Options) withDefaults() Options {
	if o.TotalContext == 0 {
		o.TotalContext = budget.DefaultTotalContext
	}
	if o.ReservedOutput == 0 {
		o.ReservedOutput = budget.DefaultReservedOutput
	}
	if o.SafetyBuffer == 0 {
		o.SafetyBuffer = budget.DefaultSafetyBuffer
	}
	if o.IdentityTimeout == 0 {
		o.IdentityTimeout = 100 * time.Millisecond
	}
	if o.MoodTimeout == 0 {
		o.MoodTimeout = 100 * time.Millisecond
	}
	if o.MemoryTimeout == 0 {
		o.MemoryTimeout = 500 * time.Millisecond
	}
	if o.MaxOutputTokens == 0 {
		o.MaxOutputTokens = 4096
	}
	return o
}

// Orchestrator drives turns. One Orchestrator serves arbitrarily many
// concurrent turns; every turn owns a fresh allocator, section list, and
// metrics instance, so no state is shared across turns.
type Orchestrator struct {
	identity identity.Provider
	mood     mood.Provider
	engine   *mood.Engine
	memory   memory.Service
	llm      provider.Provider
	recorder *telemetry.Recorder
	opts     Options
	now      func() time.Time
}

// New validates the budget parameters once, so per-turn allocator
// construction cannot fail later.
func New(id identity.Provider, moods mood.Provider, engine *mood.Engine, mem memory.Service, llm provider.Provider, rec *telemetry.Recorder, opts Options) (*Orchestrator, error) {
	opts = opts.withDefaults()
	if _, err := budget.New(opts.TotalContext, opts.ReservedOutput, opts.SafetyBuffer); err != nil {
		return nil, err
	}
	if engine == nil {
		engine = mood.NewEngine(mood.DefaultHalfLife)
	}
	return &Orchestrator{
		identity: id,
		mood:     moods,
		engine:   engine,
		memory:   mem,
		llm:      llm,
		recorder: rec,
		opts:     opts,
		now:      time.Now,
	}, nil
}

// ── Request / Result ─────────────────────────────────────────────────────────

// Request is one user message entering the pipeline.
type Request struct {
	TurnID    string // assigned when empty
	UserID    string
	SessionID string
	Text      string

	// Optional overrides bypass the corresponding fetch. Overridden mood
	// still passes through the decay transform like a fetched one.
	Identity *identity.Snapshot
	Mood     *mood.State

	// OnDelta streams response text as it arrives. Optional.
	OnDelta func(text string)

	// OnState observes each state transition, e.g. for progress display.
	// Optional.
	OnState func(s State)
}

// Result is the tagged turn outcome. Callers branch on Failed(), never on
// a propagated fault.
type Result struct {
	Response        string
	Error           string // UnavailableMessage iff the turn failed
	IdentityVersion string
	Mood            mood.State
	State           State
	Usage           *provider.Usage
	Metrics         telemetry.TurnMetrics
}

func (r Result) Failed() bool { return r.Error != "" }

// ── Pipeline ─────────────────────────────────────────────────────────────────

// ProcessTurn runs the full state machine for one request. It always returns
// a Result and emits metrics exactly once; no failure escapes as an error.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req Request) Result {
	start := o.now()
	if req.TurnID == "" {
		req.TurnID = uuid.New().String()[:8]
	}

	metrics := telemetry.TurnMetrics{
		TurnID:    req.TurnID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Timestamp: start,
	}

	state := StateInit
	advance := func(s State) {
		state = s
		if req.OnState != nil {
			req.OnState(s)
		}
	}

	// Identity: bounded fetch, skeleton on timeout/error, override bypasses.
	var idOut outcome[identity.Snapshot]
	if req.Identity != nil {
		idOut = resolved(*req.Identity)
	} else {
		idOut = resolveWithin(ctx, o.opts.IdentityTimeout, identity.Skeleton, func(c context.Context) (identity.Snapshot, error) {
			return o.identity.Resolve(c, req.UserID)
		})
	}
	snap := idOut.value
	if idOut.fellBack {
		o.noteDegradation(&metrics, telemetry.SubsystemIdentity, idOut.kind, idOut.reason)
	}
	advance(StateIdentityResolved)

	// Mood: bounded fetch; resolved or overridden state decays toward
	// baseline by elapsed time, the baseline fallback does not.
	var moodOut outcome[mood.State]
	if req.Mood != nil {
		moodOut = resolved(*req.Mood)
	} else {
		moodOut = resolveWithin(ctx, o.opts.MoodTimeout, mood.Baseline, func(c context.Context) (mood.State, error) {
			return o.mood.Resolve(c, req.UserID)
		})
	}
	moodState := moodOut.value
	if moodOut.fellBack {
		o.noteDegradation(&metrics, telemetry.SubsystemMood, moodOut.kind, moodOut.reason)
	} else {
		moodState = o.engine.Decay(moodState, o.now())
	}
	advance(StateMoodResolved)

	// Fresh allocator per turn. Parameters were validated at construction.
	alloc, _ := budget.New(o.opts.TotalContext, o.opts.ReservedOutput, o.opts.SafetyBuffer)
	alloc.OnRefusal(func(component string, requested, used, remaining int) {
		o.recorder.RecordBudgetRefusal(component, requested, used, remaining)
	})
	advance(StateBudgetReady)

	// Memory: longest wait; the retrieval sees the live allocator so it can
	// bound its own output.
	memOut := resolveWithin(ctx, o.opts.MemoryTimeout, memory.NoPriorContext, func(c context.Context) (string, error) {
		return o.memory.Retrieve(c, memory.Query{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Text:      req.Text,
			Embedding: memory.ZeroEmbedding(),
			Domains:   snap.ExpertiseDomains,
		}, alloc)
	})
	if memOut.fellBack {
		o.noteDegradation(&metrics, telemetry.SubsystemMemory, memOut.kind, memOut.reason)
	}
	advance(StateMemoryResolved)

	// Assemble the fixed five-section prompt against the turn's budget.
	sections := prompt.TurnSections(snap.RenderPrompt(), mood.RenderInjection(moodState), memOut.value, req.Text)
	promptText, err := prompt.Assemble(sections, alloc)
	if err != nil {
		metrics.Errors = append(metrics.Errors, err.Error())
		advance(StateFailed)
		return o.finish(Result{
			Error:           UnavailableMessage,
			IdentityVersion: snap.Version,
			Mood:            moodState,
			State:           state,
		}, &metrics, alloc, start, true)
	}
	advance(StatePromptAssembled)

	// Generation: the single fatal path. No retry.
	response, usage, err := o.generate(ctx, promptText, req.OnDelta)
	if err != nil {
		metrics.Errors = append(metrics.Errors, errLLMUnreachable)
		advance(StateFailed)
		return o.finish(Result{
			Error:           UnavailableMessage,
			IdentityVersion: snap.Version,
			Mood:            moodState,
			State:           state,
		}, &metrics, alloc, start, true)
	}
	advance(StateResponseReady)

	return o.finish(Result{
		Response:        response,
		IdentityVersion: snap.Version,
		Mood:            moodState,
		State:           state,
		Usage:           usage,
	}, &metrics, alloc, start, false)
}

// noteDegradation appends to the turn's metrics and fires the telemetry
// recorder.
func (o *Orchestrator) noteDegradation(m *telemetry.TurnMetrics, sub telemetry.Subsystem, kind telemetry.Kind, reason string) {
	ev := telemetry.DegradationEvent{
		Subsystem: sub,
		Kind:      kind,
		Message:   reason,
		Timestamp: o.now(),
	}
	m.Degradations = append(m.Degradations, ev)
	o.recorder.RecordDegradation(ev)
}

// finish finalizes metrics from the allocator report, emits them exactly
// once, and stamps them into the result.
func (o *Orchestrator) finish(res Result, m *telemetry.TurnMetrics, alloc *budget.Allocator, start time.Time, failed bool) Result {
	report := alloc.Report()
	m.LatencyMS = o.now().Sub(start).Milliseconds()
	m.TokensUsed = report.Used
	m.Utilization = report.Utilization
	m.Finalize(failed)
	o.recorder.LogTurn(*m)
	res.Metrics = *m
	return res
}

// generate streams the provider response and accumulates the full text.
// Any provider failure, including a mid-stream error event, is returned as
// the turn's fatal error.
func (o *Orchestrator) generate(ctx context.Context, promptText string, onDelta func(string)) (string, *provider.Usage, error) {
	events, err := o.llm.Chat(ctx, &provider.ChatRequest{
		Model:     o.opts.Model,
		Messages:  []provider.Message{{Role: provider.RoleUser, Text: promptText}},
		MaxTokens: o.opts.MaxOutputTokens,
	})
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	var usage *provider.Usage
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case provider.EventTextDelta:
			sb.WriteString(ev.TextDelta)
			if onDelta != nil {
				onDelta(ev.TextDelta)
			}
		case provider.EventDone:
			usage = ev.Usage
		case provider.EventError:
			streamErr = ev.Error
		}
	}
	if streamErr != nil {
		return "", nil, streamErr
	}
	return sb.String(), usage, nil
}
