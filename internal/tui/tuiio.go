package tui

import (
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// TuiIO implements the IO interface by sending messages to a bubbletea Program.
// All methods are safe to call from any goroutine.
type TuiIO struct {
	program *tea.Program
	inputCh chan inputResult

	mu         sync.Mutex
	cancelTurn func()
}

var _ IO = (*TuiIO)(nil)
var _ TurnCanceller = (*TuiIO)(nil)

// send is a nil-safe helper that sends a message to the bubbletea program.
// Fire-and-forget methods use this to avoid panicking when program is nil.
func (t *TuiIO) send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TuiIO) ReadInput() (string, error) {
	if t.program == nil {
		return "", io.EOF
	}
	// Tell the TUI to activate the text input
	t.program.Send(readInputMsg{})

	// Block until the user submits or the TUI exits. A closed channel
	// means the program is gone.
	res, ok := <-t.inputCh
	if !ok || res.err != nil {
		return "", io.EOF
	}
	return res.text, nil
}

func (t *TuiIO) UserMessage(text string) {
	t.send(userMsg{text: text})
}

func (t *TuiIO) ThinkingStart() {
	t.send(thinkingStartMsg{})
}

func (t *TuiIO) TextDelta(delta string) {
	t.send(textDeltaMsg{delta: delta})
}

func (t *TuiIO) TextDone(fullText string) {
	t.send(textDoneMsg{fullText: fullText})
}

func (t *TuiIO) SystemMessage(text string) {
	t.send(systemMsg{text: text})
}

func (t *TuiIO) Error(msg string) {
	t.send(errorMsg{text: msg})
}

func (t *TuiIO) SetMood(label string, valence, arousal float64) {
	t.send(moodMsg{label: label, valence: valence, arousal: arousal})
}

func (t *TuiIO) SetStats(tokens int, utilization float64) {
	t.send(statsMsg{tokens: tokens, utilization: utilization})
}

// --- TurnCanceller implementation ---

// SetTurnCancel registers the cancel function for the running turn.
func (t *TuiIO) SetTurnCancel(cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelTurn = cancel
}

// ClearTurnCancel clears the cancel function when the turn ends.
func (t *TuiIO) ClearTurnCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelTurn = nil
}

// CancelTurn cancels the in-flight turn. Returns true if a turn was
// actually cancelled.
func (t *TuiIO) CancelTurn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelTurn != nil {
		t.cancelTurn()
		t.cancelTurn = nil
		return true
	}
	return false
}
