package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/kindred-ai/kindred/internal/budget"
)

// tinyAllocator returns an allocator with a ceiling of exactly 1000 tokens.
func tinyAllocator(t *testing.T) *budget.Allocator {
	t.Helper()
	a, err := budget.New(2000, 700, 0.85)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func defaultAllocator(t *testing.T) *budget.Allocator {
	t.Helper()
	a, err := budget.New(budget.DefaultTotalContext, budget.DefaultReservedOutput, budget.DefaultSafetyBuffer)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestFormatSection(t *testing.T) {
	got := FormatSection(HeaderMood, "calm and steady")
	want := "---\n## MOOD STATE\ncalm and steady\n"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestAssembleAllSectionsFit(t *testing.T) {
	alloc := defaultAllocator(t)
	sections := TurnSections(
		"Name: Aria\nRole: companion",
		"Current mood: warm",
		"- remembered the user's birthday",
		"what should we cook tonight?",
	)

	out, err := Assemble(sections, alloc)
	if err != nil {
		t.Fatal(err)
	}

	headers := []Header{HeaderSystem, HeaderIdentity, HeaderMood, HeaderMemory, HeaderRequest}
	last := -1
	for _, h := range headers {
		idx := strings.Index(out, "## "+string(h)+"\n")
		if idx < 0 {
			t.Fatalf("output missing header %s:\n%s", h, out)
		}
		if idx <= last {
			t.Fatalf("header %s out of order", h)
		}
		last = idx
	}

	// Sections are separated by a blank line: each part ends with \n and the
	// join adds one more before the next delimiter.
	if !strings.Contains(out, "\n\n---\n## IDENTITY SNAPSHOT") {
		t.Fatalf("expected blank line between sections:\n%s", out)
	}
	if strings.Count(out, "## SYSTEM\n") != 1 {
		t.Fatal("header SYSTEM must appear exactly once")
	}
}

func TestAssembleUsesLowercasedComponentKeys(t *testing.T) {
	alloc := defaultAllocator(t)
	sections := TurnSections("id", "mood", "mem", "request")

	if _, err := Assemble(sections, alloc); err != nil {
		t.Fatal(err)
	}

	components := alloc.Report().Components
	for _, key := range []string{"system", "identity snapshot", "mood state", "relevant memory", "current request"} {
		if _, ok := components[key]; !ok {
			t.Fatalf("expected allocator component %q, have %v", key, components)
		}
	}
}

func TestAssembleChargesFormattedCost(t *testing.T) {
	alloc := defaultAllocator(t)
	content := strings.Repeat("x", 100)
	sections := []Section{{HeaderSystem, content}}

	if _, err := Assemble(sections, alloc); err != nil {
		t.Fatal(err)
	}

	wantCost := budget.EstimateTokens(FormatSection(HeaderSystem, content))
	if got := alloc.Report().Components["system"]; got != wantCost {
		t.Fatalf("expected formatted cost %d charged, got %d", wantCost, got)
	}
	rawCost := budget.EstimateTokens(content)
	if wantCost <= rawCost {
		t.Fatalf("formatted cost %d should exceed raw content cost %d", wantCost, rawCost)
	}
}

func TestMemoryRefusalSubstitutesPlaceholder(t *testing.T) {
	alloc := tinyAllocator(t)
	sections := TurnSections(
		"Name: Aria",
		"Current mood: calm",
		strings.Repeat("m", 4200), // memory alone overflows the 1000-token ceiling
		"hello",
	)

	out, err := Assemble(sections, alloc)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out, "## RELEVANT MEMORY\n"+MemoryPlaceholder+"\n") {
		t.Fatalf("expected placeholder memory section:\n%s", out)
	}
	if strings.Contains(out, "mmmm") {
		t.Fatal("refused memory content leaked into output")
	}
	// The placeholder is emitted without a new allocation.
	if _, ok := alloc.Report().Components["relevant memory"]; ok {
		t.Fatal("refused memory section must not hold an allocation")
	}
	// Shape preserved: all five headers still present.
	for _, h := range []Header{HeaderSystem, HeaderIdentity, HeaderMood, HeaderMemory, HeaderRequest} {
		if !strings.Contains(out, "## "+string(h)+"\n") {
			t.Fatalf("output missing header %s", h)
		}
	}
}

func TestNonDegradableRefusalOmitsSection(t *testing.T) {
	alloc := tinyAllocator(t)
	sections := TurnSections(
		strings.Repeat("i", 4200), // identity alone overflows the ceiling
		"Current mood: calm",
		"- old note",
		"hello",
	)

	out, err := Assemble(sections, alloc)
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(out, "## IDENTITY SNAPSHOT") {
		t.Fatalf("refused non-degradable header must be absent:\n%s", out)
	}
	for _, h := range []Header{HeaderSystem, HeaderMood, HeaderMemory, HeaderRequest} {
		if !strings.Contains(out, "## "+string(h)+"\n") {
			t.Fatalf("output missing surviving header %s", h)
		}
	}
	// Order among survivors is preserved.
	if strings.Index(out, "## SYSTEM") > strings.Index(out, "## MOOD STATE") {
		t.Fatal("surviving sections out of order")
	}
}

func TestRequestReservedBeforeOtherSections(t *testing.T) {
	alloc := tinyAllocator(t)
	// Memory is large enough to consume nearly the whole ceiling if it
	// allocated first; the request must still be admitted.
	sections := TurnSections(
		"Name: Aria",
		"calm",
		strings.Repeat("m", 3200), // ~806 tokens formatted
		strings.Repeat("q", 780),  // ~201 tokens formatted
	)

	out, err := Assemble(sections, alloc)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out, "## CURRENT REQUEST\n"+strings.Repeat("q", 780)) {
		t.Fatal("request content must survive budget pressure")
	}
	if !strings.Contains(out, "## RELEVANT MEMORY\n"+MemoryPlaceholder) {
		t.Fatalf("expected memory to degrade under pressure:\n%s", out)
	}
	if _, ok := alloc.Report().Components["current request"]; !ok {
		t.Fatal("request reservation missing from allocator report")
	}
}

func TestRequestLargerThanCeilingFailsAssembly(t *testing.T) {
	alloc := tinyAllocator(t)
	sections := TurnSections("id", "mood", "mem", strings.Repeat("q", 4200))

	out, err := Assemble(sections, alloc)
	if !errors.Is(err, ErrRequestTooLarge) {
		t.Fatalf("expected ErrRequestTooLarge, got %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty output on failure, got %q", out)
	}
}

func TestAssembleOutputExactShape(t *testing.T) {
	alloc := defaultAllocator(t)
	sections := []Section{
		{HeaderSystem, "a"},
		{HeaderRequest, "b"},
	}

	out, err := Assemble(sections, alloc)
	if err != nil {
		t.Fatal(err)
	}
	want := "---\n## SYSTEM\na\n\n---\n## CURRENT REQUEST\nb\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}
