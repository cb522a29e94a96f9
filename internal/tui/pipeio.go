package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// PipeIO implements IO for non-interactive pipe/CI mode.
// Reply text goes to stdout, diagnostics go to stderr.
type PipeIO struct {
	format    string    // "text" or "jsonl"
	printLast bool      // only output the final reply text
	writer    io.Writer // stdout
	errW      io.Writer // stderr
	lastText  string    // last complete reply (for printLast mode)
}

// NewPipeIO creates a PipeIO instance.
func NewPipeIO(format string, printLast bool) *PipeIO {
	if format == "" {
		format = "text"
	}
	return &PipeIO{
		format:    format,
		printLast: printLast,
		writer:    os.Stdout,
		errW:      os.Stderr,
	}
}

var _ IO = (*PipeIO)(nil)

func (p *PipeIO) ReadInput() (string, error) { return "", io.EOF }
func (p *PipeIO) UserMessage(_ string)       {}
func (p *PipeIO) ThinkingStart()             {}

func (p *PipeIO) TextDelta(delta string) {
	if p.printLast {
		return // suppress streaming in printLast mode
	}
	if p.format == "jsonl" {
		return // jsonl emits full text on TextDone
	}
	fmt.Fprint(p.writer, delta)
}

func (p *PipeIO) TextDone(fullText string) {
	p.lastText = fullText
	if p.printLast {
		return // will be flushed at Flush()
	}
	if p.format == "jsonl" {
		p.emitJSONL("text", map[string]string{"content": fullText})
	} else {
		fmt.Fprintln(p.writer) // newline after streaming deltas
	}
}

func (p *PipeIO) SystemMessage(text string) {
	fmt.Fprintln(p.errW, text)
}

func (p *PipeIO) Error(msg string) {
	fmt.Fprintf(p.errW, "error: %s\n", msg)
}

func (p *PipeIO) SetMood(label string, valence, arousal float64) {
	if p.format == "jsonl" {
		p.emitJSONL("mood", map[string]any{
			"label": label, "valence": valence, "arousal": arousal,
		})
	}
}

func (p *PipeIO) SetStats(tokens int, utilization float64) {
	if p.format == "jsonl" {
		p.emitJSONL("stats", map[string]any{
			"tokens": tokens, "budget_utilization_pct": utilization,
		})
	}
}

// Flush outputs the last reply text when in printLast mode.
// Should be called after the turn finishes.
func (p *PipeIO) Flush() {
	if p.printLast && p.lastText != "" {
		fmt.Fprintln(p.writer, p.lastText)
	}
}

// emitJSONL writes a JSON line to stdout.
func (p *PipeIO) emitJSONL(eventType string, data any) {
	line, _ := json.Marshal(map[string]any{
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	})
	fmt.Fprintln(p.writer, string(line))
}
