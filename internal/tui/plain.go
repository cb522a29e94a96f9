package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// PlainIO implements IO using plain terminal output (fmt.Print / bufio.Scanner).
// It is used when TUI mode is disabled or the terminal does not support
// raw mode, and for piped input.
type PlainIO struct {
	scanner *bufio.Scanner
	mu      sync.Mutex // protects output when telemetry notices interleave with streaming
}

// NewPlainIO creates a PlainIO that reads from stdin.
func NewPlainIO() *PlainIO {
	s := bufio.NewScanner(os.Stdin)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &PlainIO{scanner: s}
}

func (p *PlainIO) ReadInput() (string, error) {
	fmt.Print("\n> ")
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func (p *PlainIO) UserMessage(_ string) {
	// Plain terminal: the user already sees what they typed.
}

func (p *PlainIO) ThinkingStart() {
	fmt.Println() // blank line before the reply begins
}

func (p *PlainIO) TextDelta(delta string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Print(delta)
}

func (p *PlainIO) TextDone(_ string) {
	// Plain terminal: text is already rendered incrementally.
	fmt.Println()
}

func (p *PlainIO) SystemMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Println(text)
}

func (p *PlainIO) Error(msg string) {
	fmt.Fprintf(os.Stderr, "error: %s\n", msg)
}

func (p *PlainIO) SetMood(_ string, _, _ float64) {
	// Plain terminal has no status bar; /mood prints the state on demand.
}

func (p *PlainIO) SetStats(_ int, _ float64) {}
