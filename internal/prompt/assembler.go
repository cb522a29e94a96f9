// Package prompt assembles the fixed five-section companion prompt. Sections
// arrive in priority order, each is formatted with the standard wrapper, and
// its formatted cost is charged against the turn's budget allocator before it
// is admitted to the output. The document shape never varies: headers appear
// in the same order every turn, and a refused section is either replaced by a
// placeholder (degradable headers) or dropped whole.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kindred-ai/kindred/internal/budget"
)

// Header names one of the five fixed prompt sections.
type Header string

const (
	HeaderSystem   Header = "SYSTEM"
	HeaderIdentity Header = "IDENTITY SNAPSHOT"
	HeaderMood     Header = "MOOD STATE"
	HeaderMemory   Header = "RELEVANT MEMORY"
	HeaderRequest  Header = "CURRENT REQUEST"
)

// SystemInstruction is the static body of the SYSTEM section.
const SystemInstruction = "Act as the kernel defined in IDENTITY SNAPSHOT."

// MemoryPlaceholder replaces the RELEVANT MEMORY body when the section does
// not fit the budget. It is short enough to always fit by design margin.
const MemoryPlaceholder = "[Memory context omitted due to budget constraints]"

// ErrRequestTooLarge reports that the user's message alone cannot fit under
// the capacity ceiling. Assembly cannot proceed: silently dropping the
// request would corrupt the turn.
var ErrRequestTooLarge = errors.New("current request exceeds the prompt budget")

// Section is one (header, content) fragment of the prompt, transient to a
// single turn.
type Section struct {
	Header  Header
	Content string
}

// degradable headers keep their slot with a placeholder instead of being
// dropped when refused, preserving the five-section document shape.
var degradable = map[Header]bool{
	HeaderMemory: true,
}

// protected headers have their cost reserved before any other section
// allocates; a refused reservation aborts assembly.
var protected = map[Header]bool{
	HeaderRequest: true,
}

// FormatSection renders one section with the standard wrapper: a delimiter
// line, a header line, the content, and a trailing newline.
func FormatSection(h Header, content string) string {
	return fmt.Sprintf("---\n## %s\n%s\n", h, content)
}

// componentKey is the allocator component name for a header.
func componentKey(h Header) string {
	return strings.ToLower(string(h))
}

// Assemble builds the prompt document from sections in input order, charging
// each section's fully formatted cost against alloc. Protected sections
// reserve their cost first, so lower-priority content can never squeeze out
// the user's request; everything else allocates first-come in list order.
// Retained sections are joined with a blank line between them. The only
// error is ErrRequestTooLarge.
func Assemble(sections []Section, alloc *budget.Allocator) (string, error) {
	formatted := make([]string, len(sections))
	for i, s := range sections {
		formatted[i] = FormatSection(s.Header, s.Content)
	}

	reserved := make([]bool, len(sections))
	for i, s := range sections {
		if !protected[s.Header] {
			continue
		}
		if !alloc.Allocate(componentKey(s.Header), budget.EstimateTokens(formatted[i])) {
			return "", fmt.Errorf("reserve %s: %w", componentKey(s.Header), ErrRequestTooLarge)
		}
		reserved[i] = true
	}

	var parts []string
	for i, s := range sections {
		if reserved[i] {
			parts = append(parts, formatted[i])
			continue
		}
		if alloc.Allocate(componentKey(s.Header), budget.EstimateTokens(formatted[i])) {
			parts = append(parts, formatted[i])
			continue
		}
		if degradable[s.Header] {
			// The placeholder's cost is not re-checked; it fits by margin.
			parts = append(parts, FormatSection(s.Header, MemoryPlaceholder))
		}
		// Non-degradable refused sections are omitted entirely.
	}

	return strings.Join(parts, "\n"), nil
}

// TurnSections builds the canonical five-section list for one turn in fixed
// priority order.
func TurnSections(identityBlock, moodBlock, memoryContext, userText string) []Section {
	return []Section{
		{HeaderSystem, SystemInstruction},
		{HeaderIdentity, identityBlock},
		{HeaderMood, moodBlock},
		{HeaderMemory, memoryContext},
		{HeaderRequest, userText},
	}
}
