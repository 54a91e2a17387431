package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/markdave123-py/askdoc/internal/core"
	"github.com/markdave123-py/askdoc/internal/models"
)

// Session is the TUI-facing subset of a pipeline session.
type Session interface {
	Upload(ctx context.Context, fileName, contentType string, data []byte) (*models.Document, error)
	Ask(ctx context.Context, query string) (*models.Answer, error)
}

type indexedMsg struct {
	doc *models.Document
	err error
}

type answerMsg struct {
	query  string
	answer *models.Answer
	err    error
}

// Model is the Bubble Tea model: it indexes one file, then answers
// questions about it until the user quits.
type Model struct {
	ctx      context.Context
	session  Session
	fileName string
	data     []byte

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	doc      *models.Document
	messages []string
	status   string
	busy     bool
	ready    bool
}

// New creates the model for fileName; indexing starts from Init.
func New(ctx context.Context, session Session, fileName string, data []byte) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about the document and press Enter"
	ti.CharLimit = 2000
	ti.Width = 80

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		ctx:      ctx,
		session:  session,
		fileName: fileName,
		data:     data,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  s,
		status:   fmt.Sprintf("Processing %s...", fileName),
		busy:     true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.indexCmd())
}

func (m Model) indexCmd() tea.Cmd {
	return func() tea.Msg {
		doc, err := m.session.Upload(m.ctx, m.fileName, "", m.data)
		return indexedMsg{doc: doc, err: err}
	}
}

func (m Model) askCmd(query string) tea.Cmd {
	return func() tea.Msg {
		answer, err := m.session.Ask(m.ctx, query)
		return answerMsg{query: query, answer: answer, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, qh := queryBoxStyle.GetFrameSize()
		_, rh := resultBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, status, query box
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.input.Width = max(10, msg.Width-6)
		m.refresh()
		return m, nil

	case indexedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Indexing failed (" + core.KindOf(msg.err) + "): " + msg.err.Error() + ". Press r to retry."
			m.messages = append(m.messages, errorStyle.Render("Could not index "+m.fileName+": "+msg.err.Error()))
			m.refresh()
			return m, nil
		}
		m.doc = msg.doc
		m.status = fmt.Sprintf("%s processed successfully (%d chunks). You can now ask questions.", msg.doc.FileName, msg.doc.ChunkCount)
		m.input.Focus()
		m.refresh()
		return m, textinput.Blink

	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Query failed (" + core.KindOf(msg.err) + ")"
			m.messages = append(m.messages, errorStyle.Render("Error: "+msg.err.Error()))
		} else {
			m.status = fmt.Sprintf("Answered from %d passage(s).", len(msg.answer.Passages))
			m.messages = append(m.messages, renderAnswer(msg.answer))
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if m.busy || m.doc == nil || q == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.busy = true
			m.status = "Thinking..."
			m.messages = append(m.messages, questionStyle.Render("Q: "+q))
			m.refresh()
			return m, tea.Batch(m.askCmd(q), m.spinner.Tick)
		case tea.KeyRunes:
			if m.doc == nil && !m.busy && string(msg.Runes) == "r" {
				m.busy = true
				m.status = fmt.Sprintf("Processing %s...", m.fileName)
				return m, tea.Batch(m.indexCmd(), m.spinner.Tick)
			}
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	if len(m.messages) == 0 {
		m.viewport.SetContent(dimStyle.Render("Answers appear here."))
		return
	}
	m.viewport.SetContent(strings.Join(m.messages, "\n\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Ask your document")
	if m.doc != nil {
		header += dimStyle.Render("  " + m.doc.FileName)
	}
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		resultBoxStyle.Render(m.viewport.View()) + "\n" +
		queryBoxStyle.Render(m.input.View()) + "\n" +
		status
}

// Status is the current status line, without styling.
func (m Model) Status() string { return m.status }

func renderAnswer(a *models.Answer) string {
	var b strings.Builder
	b.WriteString(a.Text)
	if len(a.Passages) > 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("Sources:"))
		for _, p := range a.Passages {
			b.WriteString("\n")
			b.WriteString(dimStyle.Render(fmt.Sprintf("  [%d] score=%.3f  %s", p.Position, p.Score, snippet(p.Text, 100))))
		}
	}
	return b.String()
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
