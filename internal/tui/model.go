package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hunterwarburton/taxassist/internal/core"
)

// Answerer is the console-facing subset of the pipeline.
type Answerer interface {
	Answer(ctx context.Context, q core.Query) core.Answer
}

// answerMsg carries a finished answer back to Update.
type answerMsg struct {
	question string
	answer   core.Answer
	elapsed  time.Duration
}

// Model is the Bubble Tea model for the tax question console.
type Model struct {
	answerer Answerer
	timeout  time.Duration
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	provider string
	question string
	answer   *core.Answer
	elapsed  time.Duration
	status   string
	waiting  bool
	ready    bool
}

// New creates the console model. provider is shown in the header.
func New(answerer Answerer, provider string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a Nigerian tax question and press Enter"
	ti.Focus()
	ti.CharLimit = core.MaxQuestionLength

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		answerer: answerer,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		provider: provider,
		status:   "Ready.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if m.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}
		start := time.Now()
		ans := m.answerer.Answer(ctx, core.Query{Question: question})
		return answerMsg{question: question, answer: ans, elapsed: time.Since(start)}
	}
}

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ah := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, provider, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-ah)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case answerMsg:
		m.waiting = false
		m.answer = &msg.answer
		m.elapsed = msg.elapsed
		m.status = fmt.Sprintf("Answered %q in %s", msg.question, msg.elapsed.Round(time.Millisecond))
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			if err := (core.Query{Question: q}).Validate(); err != nil {
				m.status = "Error: " + err.Error()
				return m, nil
			}
			m.waiting = true
			m.question = q
			m.answer = nil
			m.status = "Thinking..."
			m.input.Reset()
			m.viewport.SetContent(m.renderAnswer())
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the console layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Nigerian Tax Assistant")
	provider := mutedStyle.Render("backend: " + m.provider)
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	if m.waiting {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + provider + "\n" +
		answerBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" + status
}

func (m Model) renderAnswer() string {
	if m.question == "" {
		return "No question yet."
	}
	out := "Q: " + m.question + "\n\n"
	if m.answer == nil {
		return out + mutedStyle.Render("…")
	}

	style := answerStyle
	if !m.answer.Success {
		style = failedStyle
	}
	out += style.Render(m.answer.Text) + "\n\n"
	out += mutedStyle.Render(fmt.Sprintf("success=%t  chunks_found=%d  length=%d",
		m.answer.Success, m.answer.ChunksFound, len([]rune(m.answer.Text))))
	if m.answer.Error != "" {
		out += "\n" + failedStyle.Render(m.answer.Error)
	}
	return out
}

var (
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
