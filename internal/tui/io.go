// Package tui defines the IO interface between the turn loop and the
// user interface layer, plus PlainIO (terminal fallback) and TuiIO (bubbletea).
package tui

// IO is the contract between the turn loop and the UI layer.
// Every method maps to a distinct visual event — this separation ensures
// the turn loop never depends on any specific rendering implementation.
type IO interface {
	// ReadInput blocks until the user submits a line of input.
	// Returns ("", io.EOF) when the user quits.
	ReadInput() (string, error)

	// UserMessage displays the user's submitted message in the output area.
	UserMessage(text string)

	// ThinkingStart signals that a turn has started processing.
	// Implementations should show a spinner or "Thinking..." indicator.
	ThinkingStart()

	// TextDelta appends an incremental text chunk from the LLM stream.
	TextDelta(delta string)

	// TextDone signals that the current reply is complete.
	// fullText contains the entire reply assembled from all deltas.
	// TUI implementations use this to trigger Markdown rendering.
	TextDone(fullText string)

	// SystemMessage displays a system-level notice (e.g. slash command
	// feedback, degradation warnings, session status).
	SystemMessage(text string)

	// Error displays an error message with prominent styling.
	Error(msg string)

	// SetMood updates the mood indicator shown in the status area.
	// label is the human description ("calm and open"), valence and
	// arousal are the raw axes used to pick the tint.
	SetMood(label string, valence, arousal float64)

	// SetStats updates the token counter and budget utilization shown
	// in the status area. utilization is a percentage (0-100).
	SetStats(tokens int, utilization float64)
}

// TurnCanceller is an optional capability: UIs that can cancel the
// in-flight turn (Esc in the TUI) implement it alongside IO. The chat
// loop registers the per-turn cancel via type assertion.
type TurnCanceller interface {
	// SetTurnCancel registers the cancel function for the running turn.
	SetTurnCancel(cancel func())

	// ClearTurnCancel clears the cancel function when the turn ends.
	ClearTurnCancel()
}
