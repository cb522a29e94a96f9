package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventType classifies an entry in the telemetry stream.
type EventType string

const (
	EventTurn          EventType = "turn"
	EventDegradation   EventType = "degradation"
	EventBudgetRefusal EventType = "budget_refusal"
	EventSessionStart  EventType = "session_start"
	EventSessionEnd    EventType = "session_end"
)

// Event is a single structured entry in the telemetry stream.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"ts"`
	SessionID string    `json:"session_id"`
	Data      any       `json:"data,omitempty"`
}

// Recorder writes structured JSONL telemetry to a per-session file.
// Write failures are swallowed: telemetry must never fail a turn.
type Recorder struct {
	mu        sync.Mutex
	file      *os.File
	enc       *json.Encoder
	sessionID string
	logPath   string
}

// NewRecorder creates a recorder for the given session. When dir is empty
// the first writable directory from telemetryDirs is used.
func NewRecorder(dir, sessionID string) (*Recorder, error) {
	dirs := telemetryDirs()
	if dir != "" {
		dirs = append([]string{dir}, dirs...)
	}

	var lastErr error
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			lastErr = fmt.Errorf("create telemetry directory %s: %w", d, err)
			continue
		}

		logPath := filepath.Join(d, sessionID+".jsonl")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			lastErr = fmt.Errorf("open telemetry log %s: %w", logPath, err)
			continue
		}

		return &Recorder{
			file:      f,
			enc:       json.NewEncoder(f),
			sessionID: sessionID,
			logPath:   logPath,
		}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no writable telemetry directory found")
	}
	return nil, lastErr
}

// NopRecorder returns a recorder that discards everything. Used by tests
// and when telemetry is disabled.
func NopRecorder() *Recorder {
	return &Recorder{}
}

// telemetryDirs returns candidate directories in priority order.
// 1) KINDRED_TELEMETRY_DIR (explicit override)
// 2) ~/.local/share/kindred/telemetry (default)
// 3) $TMPDIR/kindred/telemetry (fallback for restricted environments)
func telemetryDirs() []string {
	seen := make(map[string]bool)
	var dirs []string

	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	add(os.Getenv("KINDRED_TELEMETRY_DIR"))

	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".local", "share", "kindred", "telemetry"))
	}

	add(filepath.Join(os.TempDir(), "kindred", "telemetry"))
	return dirs
}

// Log writes one event. Safe on a nop recorder.
func (r *Recorder) Log(evtType EventType, data any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enc == nil {
		return
	}

	evt := Event{
		Type:      evtType,
		Timestamp: time.Now(),
		SessionID: r.sessionID,
		Data:      data,
	}
	_ = r.enc.Encode(evt)
}

// RecordDegradation sinks a degradation event. Fire-and-forget.
func (r *Recorder) RecordDegradation(ev DegradationEvent) {
	r.Log(EventDegradation, ev)
}

// RecordBudgetRefusal sinks the warning signal emitted when the allocator
// refuses a component. Fire-and-forget.
func (r *Recorder) RecordBudgetRefusal(component string, requested, used, remaining int) {
	r.Log(EventBudgetRefusal, map[string]any{
		"component": component,
		"requested": requested,
		"used":      used,
		"remaining": remaining,
	})
}

// LogTurn sinks the finalized metrics for one turn.
func (r *Recorder) LogTurn(m TurnMetrics) {
	r.Log(EventTurn, m)
}

// Close flushes and closes the telemetry file.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
		r.enc = nil
	}
}

// ReadRecent reads the last n events from the telemetry file.
func (r *Recorder) ReadRecent(n int) ([]Event, error) {
	r.mu.Lock()
	path := r.logPath
	r.mu.Unlock()
	if path == "" {
		return nil, fmt.Errorf("recorder has no backing file")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		var evt Event
		if json.Unmarshal(scanner.Bytes(), &evt) == nil {
			events = append(events, evt)
		}
	}

	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// FormatEvents formats events for display.
func FormatEvents(events []Event, title string) string {
	if len(events) == 0 {
		return "No events recorded."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%d events):\n", title, len(events)))
	for _, evt := range events {
		ts := evt.Timestamp.Format("15:04:05")
		dataStr := ""
		if m, ok := evt.Data.(map[string]any); ok {
			switch evt.Type {
			case EventDegradation:
				sub, _ := m["subsystem"].(string)
				kind, _ := m["kind"].(string)
				msg, _ := m["message"].(string)
				dataStr = fmt.Sprintf("%s | %s | %s", sub, kind, truncate(msg, 60))
			case EventTurn:
				status, _ := m["status"].(string)
				tokens, _ := m["tokens_used"].(float64)
				dataStr = fmt.Sprintf("status=%s tokens=%d", status, int(tokens))
			case EventBudgetRefusal:
				component, _ := m["component"].(string)
				requested, _ := m["requested"].(float64)
				remaining, _ := m["remaining"].(float64)
				dataStr = fmt.Sprintf("%s requested %d, %d remaining", component, int(requested), int(remaining))
			}
		}
		if dataStr == "" && evt.Data != nil {
			raw, _ := json.Marshal(evt.Data)
			dataStr = truncate(string(raw), 80)
		}
		if dataStr != "" {
			sb.WriteString(fmt.Sprintf("  %s  %-16s  %s\n", ts, evt.Type, dataStr))
		} else {
			sb.WriteString(fmt.Sprintf("  %s  %s\n", ts, evt.Type))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
