package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/josinaldojr/bedrock-rag/internal/rag"
)

// RAGPort is the TUI-facing subset of the RAG service.
type RAGPort interface {
	Ask(ctx context.Context, idx *rag.Index, req rag.AskRequest) (*rag.AskResponse, error)
}

// answerMsg carrega o resultado de um Ask feito fora do loop de eventos.
type answerMsg struct {
	question string
	resp     *rag.AskResponse
	err      error
}

type turn struct {
	role    rag.Role
	text    string
	sources []rag.SourceRef
	failed  bool
}

// Model is the Bubble Tea model for the chat client.
type Model struct {
	service  RAGPort
	index    *rag.Index
	conv     rag.Conversation
	turns    []turn
	input    textinput.Model
	viewport viewport.Model
	status   string
	direct   bool
	pending  bool
	ready    bool
	timeout  time.Duration
}

// New creates a chat model over an already built index (nil allowed in direct mode).
func New(service RAGPort, idx *rag.Index, direct bool) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter (/direct, /clear)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)

	status := "Direct mode."
	if idx != nil {
		status = fmt.Sprintf("Index ready: %d document(s), %d chunk(s).", len(idx.Documents), idx.Chunks)
	}
	return Model{
		service:  service,
		index:    idx,
		input:    ti,
		viewport: vp,
		status:   status,
		direct:   direct,
		timeout:  2 * time.Minute,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Conversation returns the history of successful turns.
func (m Model) Conversation() rag.Conversation { return m.conv }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1 // header + status + spacer
		vh := msg.Height - reserved - rh
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh)
		m.refresh()
		return m, nil

	case answerMsg:
		m.pending = false
		if msg.err != nil {
			// o turno falho aparece na tela mas não entra no histórico
			m.turns = append(m.turns, turn{role: rag.RoleAssistant, text: "Error: " + msg.err.Error(), failed: true})
			m.status = "Error: " + msg.err.Error()
		} else {
			m.conv = m.conv.Append(
				rag.Message{Role: rag.RoleUser, Content: msg.question},
				rag.Message{Role: rag.RoleAssistant, Content: msg.resp.Answer},
			)
			m.turns = append(m.turns, turn{role: rag.RoleAssistant, text: msg.resp.Answer, sources: msg.resp.Sources})
			m.status = fmt.Sprintf("mode=%s sources=%d tokens=%d", msg.resp.Mode, len(msg.resp.Sources), msg.resp.Usage.TotalTokens)
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.input.SetValue("")
			switch q {
			case "/direct":
				m.direct = !m.direct
				m.status = fmt.Sprintf("Direct mode: %v", m.direct)
				return m, nil
			case "/clear":
				m.conv = rag.Conversation{}
				m.turns = nil
				m.status = "History cleared."
				m.refresh()
				return m, nil
			}
			m.turns = append(m.turns, turn{role: rag.RoleUser, text: q})
			m.pending = true
			m.status = "Thinking..."
			m.refresh()
			return m, m.ask(q)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask devolve um tea.Cmd: o Bubble Tea roda em goroutine própria,
// então a chamada remota nunca trava o render.
func (m Model) ask(question string) tea.Cmd {
	service, idx, timeout := m.service, m.index, m.timeout
	req := rag.AskRequest{
		Question: question,
		Direct:   m.direct,
		History:  m.conv.Messages(),
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := service.Ask(ctx, idx, req)
		return answerMsg{question: question, resp: resp, err: err}
	}
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Chatbot")
	transcript := transcriptStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	for _, t := range m.turns {
		switch {
		case t.failed:
			b.WriteString(errorStyle.Render(t.text))
		case t.role == rag.RoleUser:
			b.WriteString(userStyle.Render("You: ") + t.text)
		default:
			b.WriteString(assistantStyle.Render("Assistant: ") + t.text)
		}
		b.WriteString("\n")
		for i, s := range t.sources {
			b.WriteString(sourceStyle.Render(fmt.Sprintf("  [%d] %s #%d (%.3f) %s", i+1, s.SourceFile, s.Position, s.Score, s.Preview)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
