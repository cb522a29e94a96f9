package telemetry

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	sessionID := fmt.Sprintf("test-%d", time.Now().UnixNano())
	r, err := NewRecorder(t.TempDir(), sessionID)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestNewRecorder(t *testing.T) {
	r := newTestRecorder(t)
	if r.logPath == "" {
		t.Fatal("expected non-empty log path")
	}
	if r.file == nil {
		t.Fatal("expected non-nil file handle")
	}
}

func TestLogAndReadRecent(t *testing.T) {
	r := newTestRecorder(t)

	r.Log(EventSessionStart, "session started")
	r.RecordDegradation(DegradationEvent{
		Subsystem: SubsystemIdentity,
		Kind:      KindTimeout,
		Message:   "identity resolution timed out after 100ms",
		Timestamp: time.Now(),
	})
	r.RecordBudgetRefusal("relevant memory", 4000, 99000, 1800)
	r.LogTurn(TurnMetrics{
		SessionID: "s1",
		Status:    StatusDegraded,
	})

	all, err := r.ReadRecent(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}

	recent, err := r.ReadRecent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recent))
	}
	if recent[0].Type != EventBudgetRefusal {
		t.Fatalf("expected first of last 2 to be %s, got %s", EventBudgetRefusal, recent[0].Type)
	}
	if recent[1].Type != EventTurn {
		t.Fatalf("expected second of last 2 to be %s, got %s", EventTurn, recent[1].Type)
	}
}

func TestNopRecorderDiscards(t *testing.T) {
	r := NopRecorder()
	r.Log(EventSessionStart, "ignored")
	r.LogTurn(TurnMetrics{})
	r.RecordBudgetRefusal("system", 1, 2, 3)
	r.Close()

	if _, err := r.ReadRecent(0); err == nil {
		t.Fatal("expected ReadRecent on nop recorder to fail")
	}

	// A nil recorder must also be safe for fire-and-forget calls.
	var nilRec *Recorder
	nilRec.Log(EventTurn, nil)
	nilRec.Close()
}

func TestFinalizeStatus(t *testing.T) {
	tests := []struct {
		name         string
		degradations int
		failed       bool
		want         Status
	}{
		{"clean turn", 0, false, StatusSuccess},
		{"one degradation", 1, false, StatusDegraded},
		{"failed wins over degradations", 2, true, StatusFailed},
		{"failed with no degradations", 0, true, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := TurnMetrics{}
			for i := 0; i < tt.degradations; i++ {
				m.Degradations = append(m.Degradations, DegradationEvent{Subsystem: SubsystemMood})
			}
			m.Finalize(tt.failed)
			if m.Status != tt.want {
				t.Fatalf("expected status %s, got %s", tt.want, m.Status)
			}
		})
	}
}

func TestFormatEvents(t *testing.T) {
	if s := FormatEvents(nil, "Test"); s != "No events recorded." {
		t.Fatalf("expected 'No events recorded.', got %q", s)
	}

	r := newTestRecorder(t)
	r.RecordDegradation(DegradationEvent{
		Subsystem: SubsystemMemory,
		Kind:      KindError,
		Message:   "store unavailable",
		Timestamp: time.Now(),
	})
	r.RecordBudgetRefusal("mood state", 120, 100700, 100)

	events, err := r.ReadRecent(0)
	if err != nil {
		t.Fatal(err)
	}

	output := FormatEvents(events, "Recent Events")
	if !strings.Contains(output, "Recent Events") {
		t.Error("output should contain title")
	}
	if !strings.Contains(output, "2 events") {
		t.Error("output should contain event count")
	}
	if !strings.Contains(output, "memory | error | store unavailable") {
		t.Errorf("output should summarize the degradation, got:\n%s", output)
	}
	if !strings.Contains(output, "mood state requested 120") {
		t.Errorf("output should summarize the refusal, got:\n%s", output)
	}
}
