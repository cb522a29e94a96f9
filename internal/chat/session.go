// Package chat runs the interactive companion session: the REPL loop,
// slash commands, and the small post-turn reflexes (mood nudge, memory
// capture) that make the companion feel continuous across turns.
package chat

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kindred-ai/kindred/internal/config"
	"github.com/kindred-ai/kindred/internal/identity"
	"github.com/kindred-ai/kindred/internal/memory"
	"github.com/kindred-ai/kindred/internal/mood"
	"github.com/kindred-ai/kindred/internal/telemetry"
	"github.com/kindred-ai/kindred/internal/tui"
	"github.com/kindred-ai/kindred/internal/turn"
)

// A completed exchange leaves a small trace on mood: conversation warms
// valence and raises arousal a little; decay pulls both back to baseline
// between sessions.
const (
	turnValenceNudge = 0.02
	turnArousalNudge = 0.03
)

// autoCaptureMinLen filters out one-word acknowledgements from memory capture.
const autoCaptureMinLen = 24

// Session drives one interactive conversation.
type Session struct {
	ID string

	cfg    *config.Config
	orc    *turn.Orchestrator
	ui     tui.IO
	userID string

	moods      *mood.SQLiteStore
	memories   *memory.SQLiteStore
	identities *identity.FileStore
	recorder   *telemetry.Recorder

	turnCount   int
	lastMetrics *telemetry.TurnMetrics
	lastMood    mood.State
	haveMood    bool
}

// New creates a session for the given user. An empty sessionID gets a fresh
// one. Stores are optional and wired via setters; without them the matching
// slash commands report unavailable.
func New(cfg *config.Config, orc *turn.Orchestrator, ui tui.IO, userID, sessionID string) *Session {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	return &Session{
		ID:       sessionID,
		cfg:      cfg,
		orc:      orc,
		ui:       ui,
		userID:   userID,
		recorder: telemetry.NopRecorder(),
	}
}

// SetMoodStore wires the persistent mood store used by /mood and the
// post-turn nudge.
func (s *Session) SetMoodStore(st *mood.SQLiteStore) { s.moods = st }

// SetMemoryStore wires the memory store used by /memory, /remember,
// /forget and auto-capture.
func (s *Session) SetMemoryStore(st *memory.SQLiteStore) { s.memories = st }

// SetIdentityStore wires the profile store used by /persona.
func (s *Session) SetIdentityStore(st *identity.FileStore) { s.identities = st }

// SetRecorder wires the telemetry recorder used by /events.
func (s *Session) SetRecorder(r *telemetry.Recorder) {
	if r != nil {
		s.recorder = r
	}
}

// Run starts the interactive REPL loop.
func (s *Session) Run(ctx context.Context) error {
	s.recorder.Log(telemetry.EventSessionStart, map[string]string{
		"user_id": s.userID,
	})

	// Seed the status bar with the stored mood before the first turn.
	if s.moods != nil {
		if st, err := s.moods.Resolve(ctx, s.userID); err == nil {
			s.ui.SetMood(mood.Describe(st), st.Valence, st.Arousal)
		}
	}

	for {
		input, err := s.ui.ReadInput()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if input == "" {
			continue
		}

		// Slash commands are intercepted before starting a turn.
		if strings.HasPrefix(input, "/") {
			handled, shouldQuit := s.handleSlashCommand(ctx, input)
			if shouldQuit {
				s.logSessionEnd()
				return nil
			}
			if handled {
				continue
			}
		}

		s.runTurn(ctx, input)

		if ctx.Err() != nil {
			s.ui.SystemMessage("\nInterrupted.")
			s.logSessionEnd()
			return ctx.Err()
		}
	}

	s.logSessionEnd()
	return nil
}

func (s *Session) logSessionEnd() {
	s.recorder.Log(telemetry.EventSessionEnd, map[string]any{
		"user_id": s.userID,
		"turns":   s.turnCount,
	})
}

// runTurn pushes one utterance through the pipeline and applies the
// post-turn reflexes.
func (s *Session) runTurn(ctx context.Context, text string) {
	s.ui.UserMessage(text)
	s.ui.ThinkingStart()

	// Esc in the TUI cancels this turn only, not the session.
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if tc, ok := s.ui.(tui.TurnCanceller); ok {
		tc.SetTurnCancel(cancel)
		defer tc.ClearTurnCancel()
	}

	res := s.orc.ProcessTurn(turnCtx, turn.Request{
		UserID:    s.userID,
		SessionID: s.ID,
		Text:      text,
		OnDelta:   s.ui.TextDelta,
	})

	if res.Failed() {
		s.ui.Error(res.Error)
	} else {
		s.ui.TextDone(res.Response)
	}

	s.turnCount++
	s.lastMetrics = &res.Metrics
	s.lastMood = res.Mood
	s.haveMood = true

	s.ui.SetMood(mood.Describe(res.Mood), res.Mood.Valence, res.Mood.Arousal)
	s.ui.SetStats(res.Metrics.TokensUsed, res.Metrics.Utilization)

	if !res.Failed() {
		s.settleAfterTurn(ctx, text, res)
	}
}

// settleAfterTurn persists the conversational side effects of a successful
// exchange: the mood nudge and, when enabled, a captured memory.
func (s *Session) settleAfterTurn(ctx context.Context, text string, res turn.Result) {
	if s.moods != nil {
		nudged := mood.Nudge(res.Mood, turnValenceNudge, turnArousalNudge, time.Now())
		if err := s.moods.Put(ctx, s.userID, nudged); err == nil {
			s.lastMood = nudged
			s.ui.SetMood(mood.Describe(nudged), nudged.Valence, nudged.Arousal)
		}
	}

	if s.memories != nil && s.cfg.Memory.AutoCapture && len(text) >= autoCaptureMinLen {
		_, _ = s.memories.Add(ctx, s.userID, s.ID, text, nil)
	}
}

// handleSlashCommand processes built-in commands.
// Returns (handled, shouldQuit).
func (s *Session) handleSlashCommand(ctx context.Context, input string) (bool, bool) {
	parts := strings.SplitN(strings.TrimSpace(input), " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		s.ui.SystemMessage("Bye.")
		return true, true
	case "/help":
		s.ui.SystemMessage(helpText())
		return true, false
	case "/mood":
		s.showMood(ctx)
		return true, false
	case "/persona":
		s.showPersona(ctx)
		return true, false
	case "/memory":
		s.listMemories(ctx, arg)
		return true, false
	case "/remember":
		s.rememberMemory(ctx, arg)
		return true, false
	case "/forget":
		s.forgetMemory(ctx, arg)
		return true, false
	case "/report":
		s.ui.SystemMessage(formatReport(s.lastMetrics))
		return true, false
	case "/events":
		s.showEvents(arg)
		return true, false
	}

	s.ui.SystemMessage(fmt.Sprintf("Unknown command %s. Try /help.", cmd))
	return true, false
}

func helpText() string {
	return strings.TrimSpace(`
Commands:
  /mood            Show current mood state
  /persona         Show the active identity profile
  /memory [n]      List stored memories (default 10)
  /remember <text> Store a memory
  /forget <id>     Delete a memory by id (prefix ok)
  /report          Show the last turn's budget report
  /events [n]      Show recent telemetry events
  /quit            Exit`)
}

func (s *Session) showMood(ctx context.Context) {
	st := s.lastMood
	if !s.haveMood {
		if s.moods == nil {
			s.ui.SystemMessage("Mood store unavailable.")
			return
		}
		var err error
		st, err = s.moods.Resolve(ctx, s.userID)
		if err != nil {
			s.ui.Error("load mood: " + err.Error())
			return
		}
	}

	msg := fmt.Sprintf("Mood: %s (valence %+.2f, arousal %.2f)", mood.Describe(st), st.Valence, st.Arousal)
	if !st.UpdatedAt.IsZero() {
		msg += fmt.Sprintf("\nUpdated: %s", st.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	s.ui.SystemMessage(msg)
}

func (s *Session) showPersona(ctx context.Context) {
	if s.identities == nil {
		s.ui.SystemMessage("Identity store unavailable.")
		return
	}
	snap, err := s.identities.Resolve(ctx, s.userID)
	if err != nil {
		s.ui.Error("load identity: " + err.Error())
		return
	}
	s.ui.SystemMessage(fmt.Sprintf("Active profile (version %s):\n%s", snap.Version, snap.RenderPrompt()))
}

func (s *Session) listMemories(ctx context.Context, arg string) {
	if s.memories == nil {
		s.ui.SystemMessage("Memory store unavailable.")
		return
	}
	limit := 10
	if arg != "" {
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			limit = n
		}
	}
	mems, err := s.memories.List(ctx, s.userID, limit)
	if err != nil {
		s.ui.Error("list memories: " + err.Error())
		return
	}
	s.ui.SystemMessage(formatMemories(mems))
}

func (s *Session) rememberMemory(ctx context.Context, arg string) {
	if s.memories == nil {
		s.ui.SystemMessage("Memory store unavailable.")
		return
	}
	if arg == "" {
		s.ui.SystemMessage("Usage: /remember <text>")
		return
	}
	m, err := s.memories.Add(ctx, s.userID, s.ID, arg, nil)
	if err != nil {
		s.ui.Error("store memory: " + err.Error())
		return
	}
	s.ui.SystemMessage(fmt.Sprintf("Remembered [%s].", m.ID))
}

func (s *Session) forgetMemory(ctx context.Context, arg string) {
	if s.memories == nil {
		s.ui.SystemMessage("Memory store unavailable.")
		return
	}
	if arg == "" {
		s.ui.SystemMessage("Usage: /forget <id>")
		return
	}
	if err := s.memories.Delete(ctx, arg); err != nil {
		s.ui.Error("delete memory: " + err.Error())
		return
	}
	s.ui.SystemMessage(fmt.Sprintf("Forgot %s.", arg))
}

func (s *Session) showEvents(arg string) {
	limit := 20
	if arg != "" {
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := s.recorder.ReadRecent(limit)
	if err != nil {
		s.ui.SystemMessage("No telemetry available: " + err.Error())
		return
	}
	s.ui.SystemMessage(telemetry.FormatEvents(events, "Recent telemetry"))
}

// formatReport renders the last turn's metrics for /report.
func formatReport(m *telemetry.TurnMetrics) string {
	if m == nil {
		return "No turns yet."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Turn %s: %s\n", m.TurnID, m.Status))
	sb.WriteString(fmt.Sprintf("  latency:     %d ms\n", m.LatencyMS))
	sb.WriteString(fmt.Sprintf("  prompt size: %d tokens (%.1f%% of budget)\n", m.TokensUsed, m.Utilization))
	if len(m.Degradations) == 0 {
		sb.WriteString("  degradations: none")
	} else {
		sb.WriteString("  degradations:")
		for _, d := range m.Degradations {
			sb.WriteString(fmt.Sprintf("\n    - %s %s: %s", d.Subsystem, d.Kind, d.Message))
		}
	}
	for _, e := range m.Errors {
		sb.WriteString(fmt.Sprintf("\n  error: %s", e))
	}
	return sb.String()
}

// formatMemories renders the memory list for /memory.
func formatMemories(mems []memory.Memory) string {
	if len(mems) == 0 {
		return "No memories stored."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Memories (%d):\n", len(mems)))
	for _, m := range mems {
		line := fmt.Sprintf("  %s  %s  %s", m.ID, m.CreatedAt.Format("2006-01-02"), truncate(m.Content, 60))
		if len(m.Domains) > 0 {
			line += "  [" + strings.Join(m.Domains, ", ") + "]"
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// truncate shortens s to maxLen characters, appending "..." if cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
