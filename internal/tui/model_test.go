package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestMoodTint_ValenceBands(t *testing.T) {
	tests := []struct {
		name    string
		valence float64
		arousal float64
		want    lipgloss.Color
	}{
		{"bright positive", 0.6, 0.7, lipgloss.Color("84")},
		{"soft positive", 0.6, 0.3, lipgloss.Color("114")},
		{"calm content", 0.2, 0.3, lipgloss.Color("110")},
		{"alert content", 0.2, 0.6, lipgloss.Color("75")},
		{"neutral low", -0.1, 0.2, lipgloss.Color("245")},
		{"tense neutral", -0.1, 0.8, lipgloss.Color("179")},
		{"distressed", -0.5, 0.9, lipgloss.Color("203")},
		{"melancholy", -0.5, 0.2, lipgloss.Color("168")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := moodTint(tt.valence, tt.arousal)
			if got != tt.want {
				t.Errorf("moodTint(%v, %v) = %v, want %v", tt.valence, tt.arousal, got, tt.want)
			}
		})
	}
}

func TestMoodTint_BandBoundaries(t *testing.T) {
	// The cuts sit at the same thresholds the mood labels use.
	if moodTint(0.4, 0.3) != lipgloss.Color("114") {
		t.Error("valence 0.4 should land in the positive band")
	}
	if moodTint(0.1, 0.3) != lipgloss.Color("110") {
		t.Error("valence 0.1 should land in the content band")
	}
	if moodTint(-0.2, 0.3) != lipgloss.Color("245") {
		t.Error("valence -0.2 should land in the neutral band")
	}
	if moodTint(-0.21, 0.3) != lipgloss.Color("168") {
		t.Error("valence below -0.2 should land in the low band")
	}
}

func TestFilterSlashItems(t *testing.T) {
	items := BuiltinSlashCommands()

	all := filterSlashItems(items, "/")
	if len(all) != len(items) {
		t.Errorf("bare slash should return all %d items, got %d", len(items), len(all))
	}

	mem := filterSlashItems(items, "/me")
	for _, it := range mem {
		if !strings.HasPrefix(it.Name, "/me") {
			t.Errorf("unexpected item %q for prefix /me", it.Name)
		}
	}
	if len(mem) != 1 {
		t.Errorf("expected 1 match for /me (memory), got %d", len(mem))
	}

	none := filterSlashItems(items, "/zzz")
	if len(none) != 0 {
		t.Errorf("expected no matches for /zzz, got %d", len(none))
	}

	upper := filterSlashItems(items, "/MOOD")
	if len(upper) != 1 || upper[0].Name != "/mood" {
		t.Errorf("filter should be case-insensitive, got %v", upper)
	}
}

func TestRefreshSlashMenu(t *testing.T) {
	m := NewModel(make(chan inputResult, 1), TUIConfig{})

	m.textinput.SetValue("/mo")
	m.refreshSlashMenu()
	if len(m.slashItems) != 1 || m.slashItems[0].Name != "/mood" {
		t.Errorf("expected /mood menu entry, got %v", m.slashItems)
	}

	// Arguments close the menu.
	m.textinput.SetValue("/remember the cat")
	m.refreshSlashMenu()
	if len(m.slashItems) != 0 {
		t.Errorf("expected closed menu once args are typed, got %v", m.slashItems)
	}

	// Non-slash input never opens it.
	m.textinput.SetValue("hello")
	m.refreshSlashMenu()
	if len(m.slashItems) != 0 {
		t.Errorf("expected no menu for plain text, got %v", m.slashItems)
	}
}

func TestRenderSlashMenu_AlignsAndHighlights(t *testing.T) {
	items := []SlashMenuItem{
		{Name: "/mood", Desc: "Show current mood state"},
		{Name: "/memory", Desc: "List stored memories"},
	}
	out := renderSlashMenu(items, 1, 80)
	if !strings.Contains(out, "/mood") || !strings.Contains(out, "/memory") {
		t.Fatalf("menu missing entries: %q", out)
	}
	if !strings.Contains(out, "List stored memories") {
		t.Errorf("menu missing description: %q", out)
	}
	if renderSlashMenu(nil, 0, 80) != "" {
		t.Error("empty item list should render nothing")
	}
}

func TestRenderWelcome(t *testing.T) {
	out := renderWelcome(TUIConfig{
		Version:   "1.2.0",
		Provider:  "anthropic",
		Model:     "claude-sonnet-4-20250514",
		User:      "sam",
		SessionID: "ab12cd34",
	})
	for _, want := range []string{"kindred 1.2.0", "anthropic", "claude-sonnet-4-20250514", "sam", "ab12cd34", "/help"} {
		if !strings.Contains(out, want) {
			t.Errorf("welcome missing %q", want)
		}
	}
}

func TestRenderWelcome_DefaultsVersion(t *testing.T) {
	out := renderWelcome(TUIConfig{})
	if !strings.Contains(out, "kindred dev") {
		t.Errorf("expected dev version fallback, got %q", out)
	}
}

func TestRenderStatusBar_ShowsMoodAndBudget(t *testing.T) {
	m := NewModel(make(chan inputResult, 1), TUIConfig{Model: "gpt-4o-mini"})
	m.width = 80
	m.moodLabel = "calm and open"
	m.moodValence = 0.2
	m.moodArousal = 0.3
	m.tokens = 1234
	m.utilization = 37.2

	bar := m.renderStatusBar()
	for _, want := range []string{"gpt-4o-mini", "calm and open", "tokens: 1234", "budget: 37%"} {
		if !strings.Contains(bar, want) {
			t.Errorf("status bar missing %q:\n%s", want, bar)
		}
	}
}

func TestRenderStatusBar_HidesEmptySegments(t *testing.T) {
	m := NewModel(make(chan inputResult, 1), TUIConfig{})
	m.width = 40

	bar := m.renderStatusBar()
	if !strings.Contains(bar, "unknown") {
		t.Error("expected model fallback label")
	}
	if strings.Contains(bar, "budget:") {
		t.Error("zero utilization should hide the budget segment")
	}
}

func TestIsTerminalNoiseKey(t *testing.T) {
	noise := []string{"]11;rgb:1e1e/1e1e/2e2e", "[<35;80;24M", "[?2004h", "[200~", "alt+[<0;1;1m"}
	for _, s := range noise {
		if !isTerminalNoiseKey(s) {
			t.Errorf("expected %q to be treated as terminal noise", s)
		}
	}
	typing := []string{"a", "enter", "up", "hello", "/", "ctrl+c"}
	for _, s := range typing {
		if isTerminalNoiseKey(s) {
			t.Errorf("%q should not be treated as noise", s)
		}
	}
}

func TestIsControlKeyMsg(t *testing.T) {
	if !isControlKeyMsg("\x1b[A") {
		t.Error("escape sequence should be a control key")
	}
	if isControlKeyMsg("hello") {
		t.Error("plain text is not a control key")
	}
}
