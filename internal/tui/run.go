package tui

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// RunTUI starts the bubbletea program and runs sessionFn concurrently.
// It blocks until either the session finishes or the user quits.
func RunTUI(cfg TUIConfig, sessionFn func(io IO) error) error {
	inputCh := make(chan inputResult, 1)
	model := NewModel(inputCh, cfg)

	// Create TuiIO early so Esc can be wired to the turn cancel before
	// the model is copied into the tea.Program.
	tuiIO := &TuiIO{
		inputCh: inputCh,
	}
	model.cancelTurnFn = tuiIO.CancelTurn

	p := tea.NewProgram(model)
	tuiIO.program = p

	var (
		sessionErr error
		wg         sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		sessionErr = sessionFn(tuiIO)
		// Signal the TUI that the session is done
		p.Send(sessionDoneMsg{err: sessionErr})
	}()

	_, runErr := p.Run()

	// Unblock a session goroutine stuck in ReadInput: the model stops
	// sending once Run returns, so closing here is safe.
	close(inputCh)
	wg.Wait()

	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return sessionErr
}
