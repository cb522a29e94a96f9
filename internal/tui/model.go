package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// ---------- messages sent from the chat goroutine via program.Send() ----------

type readInputMsg struct{}

type inputResult struct {
	text string
	err  error
}

type userMsg struct{ text string }
type thinkingStartMsg struct{}
type textDeltaMsg struct{ delta string }
type textDoneMsg struct{ fullText string }
type systemMsg struct{ text string }
type errorMsg struct{ text string }
type moodMsg struct {
	label   string
	valence float64
	arousal float64
}
type statsMsg struct {
	tokens      int
	utilization float64
}
type sessionDoneMsg struct{ err error }

// TUIConfig carries version/provider info for the welcome page and status bar.
type TUIConfig struct {
	Version     string
	Provider    string
	Model       string
	User        string
	SessionID   string
	ShowWelcome bool
}

// ---------- styles ----------

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	// Status bar
	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	statusBarBgStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235"))

	statusModelStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("2")).
				Bold(true)

	// Welcome box
	welcomeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("8")).
				Padding(0, 1)

	welcomeTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("2")).
				Bold(true)

	welcomeLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8"))

	welcomeValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	welcomeHintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))
)

// pulseSpinner is the thinking indicator character set.
var pulseSpinner = spinner.Spinner{
	Frames: []string{"·", "✢", "✳", "✶", "✻", "✽", "✻", "✶", "✳", "✢"},
	FPS:    120 * time.Millisecond,
}

// ---------- Model ----------

// Model is the bubbletea model managing the full TUI state.
type Model struct {
	textinput   textinput.Model
	spinner     spinner.Model
	width       int
	height      int
	liveContent *strings.Builder
	streaming   bool
	thinking    bool
	inputMode   bool

	slashItems []SlashMenuItem
	slashSel   int

	inputCh chan inputResult

	noiseDropCount int

	quitting bool

	tokens      int
	utilization float64
	moodLabel   string
	moodValence float64
	moodArousal float64

	cancelTurnFn func() bool

	cfg TUIConfig

	mdRenderer      *glamour.TermRenderer
	mdRendererWidth int
}

// NewModel creates the initial bubbletea model.
func NewModel(inputCh chan inputResult, cfg TUIConfig) Model {
	ti := textinput.New()
	ti.Prompt = "❯ "
	ti.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = pulseSpinner
	sp.Style = spinnerStyle

	return Model{
		textinput:   ti,
		spinner:     sp,
		liveContent: &strings.Builder{},
		inputCh:     inputCh,
		cfg:         cfg,
	}
}

func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	if m.cfg.ShowWelcome {
		cmds = append(cmds, tea.Println(renderWelcome(m.cfg)))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textinput.Width = m.width - 4

	case spinner.TickMsg:
		if m.thinking {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		s := msg.String()
		if isTerminalNoiseKey(s) {
			m.noiseDropCount = 4
			return m, nil
		}
		if m.noiseDropCount > 0 && len(s) <= 2 {
			m.noiseDropCount--
			return m, nil
		}
		switch s {
		case "ctrl+c":
			if m.inputMode {
				m.inputCh <- inputResult{err: fmt.Errorf("interrupted")}
				m.inputMode = false
				m.textinput.Blur()
			}
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if m.inputMode {
				text := strings.TrimSpace(m.textinput.Value())
				m.textinput.SetValue("")
				m.slashItems = nil
				m.inputCh <- inputResult{text: text}
				m.inputMode = false
				m.textinput.Blur()
			}
			return m, nil
		case "up":
			if len(m.slashItems) > 0 && m.slashSel > 0 {
				m.slashSel--
			}
			return m, nil
		case "down":
			if len(m.slashItems) > 0 && m.slashSel < len(m.slashItems)-1 {
				m.slashSel++
			}
			return m, nil
		case "tab":
			if len(m.slashItems) > 0 && m.slashSel < len(m.slashItems) {
				m.textinput.SetValue(m.slashItems[m.slashSel].Name + " ")
				m.textinput.CursorEnd()
				m.slashItems = nil
			}
			return m, nil
		case "esc":
			if len(m.slashItems) > 0 {
				m.slashItems = nil
				return m, nil
			}
			if (m.thinking || m.streaming) && m.cancelTurnFn != nil {
				m.cancelTurnFn()
				m.thinking = false
				m.streaming = false
				m.liveContent.Reset()
				return m, nil
			}
			if m.inputMode {
				m.noiseDropCount = 4
			}
			return m, nil
		}

		if m.inputMode {
			if isControlKeyMsg(msg.String()) {
				return m, nil
			}
			var cmd tea.Cmd
			m.textinput, cmd = m.textinput.Update(msg)
			cmds = append(cmds, cmd)
			m.refreshSlashMenu()
		}

	// ---------- custom messages from the chat goroutine ----------

	case readInputMsg:
		m.inputMode = true
		m.textinput.Focus()

	case userMsg:
		cmds = append(cmds, tea.Println(userStyle.Render("You: "+msg.text)))

	case thinkingStartMsg:
		m.thinking = true
		m.streaming = false
		cmds = append(cmds, m.spinner.Tick)

	case textDeltaMsg:
		m.thinking = false
		m.streaming = true
		m.liveContent.WriteString(msg.delta)

	case textDoneMsg:
		m.thinking = false
		m.streaming = false
		rendered := m.renderMarkdown(msg.fullText)
		m.liveContent.Reset()
		cmds = append(cmds, tea.Println(rendered))

	case systemMsg:
		cmds = append(cmds, tea.Println(systemStyle.Render(msg.text)))

	case errorMsg:
		cmds = append(cmds, tea.Println(errorStyle.Render("Error: "+msg.text)))

	case moodMsg:
		m.moodLabel = msg.label
		m.moodValence = msg.valence
		m.moodArousal = msg.arousal

	case statsMsg:
		m.tokens = msg.tokens
		m.utilization = msg.utilization

	case sessionDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

// refreshSlashMenu opens or filters the slash command menu based on the
// current input value.
func (m *Model) refreshSlashMenu() {
	val := m.textinput.Value()
	if !strings.HasPrefix(val, "/") || strings.Contains(val, " ") {
		m.slashItems = nil
		return
	}
	m.slashItems = filterSlashItems(BuiltinSlashCommands(), val)
	if m.slashSel >= len(m.slashItems) {
		m.slashSel = 0
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var live string
	switch {
	case m.thinking:
		live = spinnerStyle.Render(m.spinner.View()) + hintStyle.Render(" Thinking… esc to interrupt")
	case m.streaming:
		live = m.liveContent.String()
	}

	var input string
	if m.inputMode {
		input = m.textinput.View()
		if len(m.slashItems) > 0 {
			input = renderSlashMenu(m.slashItems, m.slashSel, m.width) + "\n" + input
		}
	} else {
		input = systemStyle.Render("❯")
	}

	bar := m.renderStatusBar()

	var parts []string
	if live != "" {
		parts = append(parts, live)
	}
	parts = append(parts, input, bar)
	return strings.Join(parts, "\n")
}

// ---------- status bar ----------

// moodTint maps the mood axes to a terminal color. The valence cuts match
// the mood label boundaries; high arousal brightens the tint.
func moodTint(valence, arousal float64) lipgloss.Color {
	high := arousal >= 0.55
	switch {
	case valence >= 0.4:
		if high {
			return lipgloss.Color("84") // bright green
		}
		return lipgloss.Color("114") // soft green
	case valence >= 0.1:
		if high {
			return lipgloss.Color("75") // vivid blue
		}
		return lipgloss.Color("110") // calm blue
	case valence >= -0.2:
		if high {
			return lipgloss.Color("179") // amber
		}
		return lipgloss.Color("245") // grey
	default:
		if high {
			return lipgloss.Color("203") // hot red
		}
		return lipgloss.Color("168") // muted rose
	}
}

// renderStatusBar renders the bottom separator + model/mood/budget bar.
func (m *Model) renderStatusBar() string {
	modelName := m.cfg.Model
	if modelName == "" {
		modelName = "unknown"
	}

	status := statusModelStyle.Render(" " + modelName)
	if m.moodLabel != "" {
		moodStyle := statusBarStyle.Foreground(moodTint(m.moodValence, m.moodArousal))
		status += statusBarStyle.Render(" │") + moodStyle.Render(m.moodLabel)
	}
	status += statusBarStyle.Render(fmt.Sprintf(" │ tokens: %d", m.tokens))
	if m.utilization > 0 {
		status += statusBarStyle.Render(fmt.Sprintf(" │ budget: %.0f%%", m.utilization))
	}

	return separatorStyle.Width(m.width).Render(strings.Repeat("─", m.width)) + "\n" +
		statusBarBgStyle.Width(m.width).Render(status)
}

// ---------- markdown rendering ----------

func (m *Model) getMarkdownRenderer() *glamour.TermRenderer {
	width := m.width
	if width <= 0 {
		width = 80
	}
	wrapWidth := width - 4
	if m.mdRenderer != nil && m.mdRendererWidth == wrapWidth {
		return m.mdRenderer
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return nil
	}
	m.mdRenderer = r
	m.mdRendererWidth = wrapWidth
	return r
}

func (m *Model) renderMarkdown(text string) string {
	r := m.getMarkdownRenderer()
	if r == nil {
		return text
	}
	rendered, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}

// ---------- welcome page ----------

func renderWelcome(cfg TUIConfig) string {
	face := []string{
		"╭─────╮",
		"│ ◕ ◕ │",
		"│  ◡  │",
		"╰─────╯",
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	info := []string{
		welcomeLabelStyle.Render("Provider: ") + welcomeValueStyle.Render(cfg.Provider),
		welcomeLabelStyle.Render("Model:    ") + welcomeValueStyle.Render(cfg.Model),
		welcomeLabelStyle.Render("User:     ") + welcomeValueStyle.Render(cfg.User),
		welcomeLabelStyle.Render("Session:  ") + welcomeValueStyle.Render(cfg.SessionID),
	}

	var lines []string
	faceWidth := 10
	for i := 0; i < len(face) || i < len(info); i++ {
		left := ""
		if i < len(face) {
			left = face[i]
		}
		right := ""
		if i < len(info) {
			right = info[i]
		}
		visualWidth := lipgloss.Width(left)
		padding := faceWidth - visualWidth
		if padding < 0 {
			padding = 0
		}
		lines = append(lines, left+strings.Repeat(" ", padding)+right)
	}
	lines = append(lines, "")
	lines = append(lines, welcomeHintStyle.Render("/help commands  /mood current state  /report last turn"))

	inner := strings.Join(lines, "\n")
	title := welcomeTitleStyle.Render(fmt.Sprintf("kindred %s", version))
	box := welcomeBorderStyle.Render(inner)
	return title + "\n" + box
}

// ---------- key event helpers ----------

// isTerminalNoiseKey reports whether a key string looks like leaked terminal
// control sequences (mouse reports, OSC color replies) rather than typing.
func isTerminalNoiseKey(s string) bool {
	if strings.Contains(s, ";rgb:") || strings.HasPrefix(s, "]") || strings.HasPrefix(s, "alt+]") {
		return true
	}
	if (strings.HasSuffix(s, "M") || strings.HasSuffix(s, "m")) && strings.Contains(s, ";") {
		return true
	}
	if strings.HasPrefix(s, "[<") || strings.HasPrefix(s, "alt+[<") {
		return true
	}
	if strings.HasPrefix(s, "[?") || strings.HasPrefix(s, "alt+[?") {
		return true
	}
	if len(s) > 1 && s[0] == '[' && s[1] >= '0' && s[1] <= '9' {
		return true
	}
	return false
}

func isControlKeyMsg(s string) bool {
	for _, r := range s {
		if r == '\x1b' || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			return true
		}
	}
	return false
}
