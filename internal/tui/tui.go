// Package tui is the push-to-talk terminal front-end. Space starts and
// finishes a take.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/MrWong99/jarvis/internal/orchestrator"
	"github.com/MrWong99/jarvis/pkg/types"
)

// Status hints shown under the title.
const (
	HintListening = "Listening…"
	HintWake      = "Press space and say \"Hey Jarvis\""
	HintSpeak     = "Press space to speak"
	HintThinking  = "Thinking…"
	HintSpeaking  = "Speaking…"

	defaultWidth     = 80
	subscriberBuffer = 64
)

// Controller is the part of the orchestrator the terminal drives.
type Controller interface {
	Toggle() error
	Snapshot() orchestrator.Snapshot
	Subscribe(buf int) (<-chan orchestrator.Update, func())
}

var _ Controller = (*orchestrator.Orchestrator)(nil)

// ─── Messages ────────────────────────────────────────────────────────────────

type updateMsg orchestrator.Update

type closedMsg struct{}

type toggleErrMsg struct{ err error }

// ─── Model ───────────────────────────────────────────────────────────────────

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	speakingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	userStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	jarvisStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Model is the bubbletea model. Create it with [New].
type Model struct {
	ctl     Controller
	updates <-chan orchestrator.Update

	snap           orchestrator.Snapshot
	notice         string
	showTranscript bool
	spinner        spinner.Model
	width          int
	quitting       bool
}

// New returns a model reading updates from ctl. The caller owns the
// subscription behind updates.
func New(ctl Controller, updates <-chan orchestrator.Update) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))
	return Model{
		ctl:            ctl,
		updates:        updates,
		snap:           ctl.Snapshot(),
		showTranscript: true,
		spinner:        sp,
		width:          defaultWidth,
	}
}

// Init implements [tea.Model].
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

func waitForUpdate(ch <-chan orchestrator.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return updateMsg(u)
	}
}

func toggle(ctl Controller) tea.Cmd {
	return func() tea.Msg {
		if err := ctl.Toggle(); err != nil {
			return toggleErrMsg{err: err}
		}
		return nil
	}
}

// Update implements [tea.Model].
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case " ":
			return m, toggle(m.ctl)
		case "t":
			m.showTranscript = !m.showTranscript
		}
		return m, nil

	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		return m, nil

	case updateMsg:
		m.apply(orchestrator.Update(msg))
		return m, waitForUpdate(m.updates)

	case closedMsg:
		m.quitting = true
		return m, tea.Quit

	case toggleErrMsg:
		if errors.Is(msg.err, orchestrator.ErrStopped) {
			m.quitting = true
			return m, tea.Quit
		}
		m.notice = msg.err.Error()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply refreshes the model after any update. The subscription drops updates
// when the terminal falls behind, so state always comes from the controller.
func (m *Model) apply(u orchestrator.Update) {
	m.snap = m.ctl.Snapshot()
	// A fresh take clears the previous turn's notice.
	if m.snap.State == orchestrator.Recording {
		m.notice = ""
	}
	if u.Kind == orchestrator.UpdateNotice {
		m.notice = u.Notice.Message()
	}
}

// Hint returns the status line for the current state.
func (m Model) Hint() string {
	switch m.snap.State {
	case orchestrator.Recording:
		return HintListening
	case orchestrator.AwaitingTranscription, orchestrator.AwaitingReply:
		return HintThinking
	case orchestrator.Speaking:
		return HintSpeaking
	}
	if m.snap.WakeWordPending {
		return HintWake
	}
	return HintSpeak
}

// View implements [tea.Model].
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Jarvis"))
	b.WriteString("\n\n")

	switch m.snap.State {
	case orchestrator.AwaitingTranscription, orchestrator.AwaitingReply:
		b.WriteString(m.spinner.View() + " " + hintStyle.Render(m.Hint()))
	case orchestrator.Speaking:
		b.WriteString(speakingStyle.Render("♪ " + m.Hint()))
	case orchestrator.Recording:
		b.WriteString(speakingStyle.Render("● ") + hintStyle.Render(m.Hint()))
	default:
		b.WriteString(hintStyle.Render(m.Hint()))
	}
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(noticeStyle.Render(wordwrap.String(m.notice, m.width)))
		b.WriteString("\n")
	}

	if m.showTranscript && len(m.snap.History) > 0 {
		b.WriteString("\n")
		for _, u := range m.snap.History {
			b.WriteString(m.line(u))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("space talk • t transcript • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) line(u types.Utterance) string {
	label := userStyle.Render("You:")
	if u.Speaker == types.SpeakerAssistant {
		label = jarvisStyle.Render("Jarvis:")
	}
	wrapped := wordwrap.String(u.Text, max(m.width-lipgloss.Width(label)-1, 20))
	indent := strings.Repeat(" ", lipgloss.Width(label)+1)
	return label + " " + strings.ReplaceAll(wrapped, "\n", "\n"+indent)
}

// Run shows the terminal UI until the user quits or ctx is done.
func Run(ctx context.Context, ctl Controller) error {
	updates, unsubscribe := ctl.Subscribe(subscriberBuffer)
	defer unsubscribe()

	p := tea.NewProgram(New(ctl, updates), tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
