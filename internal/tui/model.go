package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdfrag/internal/domain"
	"pdfrag/internal/service"
)

// Asker is the TUI-facing subset of the API client.
type Asker interface {
	Query(ctx context.Context, question string) (service.QueryResult, error)
}

type answerMsg struct {
	question string
	result   service.QueryResult
	err      error
}

// Model is the Bubble Tea model for the question/answer screen.
type Model struct {
	asker     Asker
	timeout   time.Duration
	input     textinput.Model
	viewport  viewport.Model
	result    service.QueryResult
	summary   string
	status    string
	cursor    int
	ready     bool
	pending   bool
	lastQuery string
}

// New creates a model that shows summary above the answer area.
func New(asker Asker, summary string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return Model{
		asker:    asker,
		timeout:  timeout,
		input:    ti,
		viewport: viewport.New(0, 0),
		summary:  summary,
		status:   "Ready. Ask about the uploaded documents.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		res, err := m.asker.Query(ctx, q)
		return answerMsg{question: q, result: res, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.result = service.QueryResult{}
		} else {
			m.result = msg.result
			m.cursor = 0
			m.lastQuery = msg.question
			m.status = fmt.Sprintf("%d citations for %q", len(msg.result.Citations), msg.question)
		}
		m.viewport.SetContent(m.renderAnswer())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.pending {
				m.pending = true
				m.status = "Thinking..."
				m.input.SetValue("")
				return m, m.ask(q)
			}
		case "down":
			if n := len(m.result.Citations); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		case "up":
			if n := len(m.result.Citations); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("PDF RAG")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	answer := answerBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + answer + "\n" + input + "\n" + status
}

func (m Model) renderAnswer() string {
	if m.result.Answer == "" {
		return "No answer yet."
	}
	cites := m.result.Citations
	if len(cites) == 0 {
		return highlightBestSentence(m.result.Answer, m.lastQuery, 0)
	}
	c := cites[m.cursor]
	title := fmt.Sprintf("Citation %d/%d  %s", m.cursor+1, len(cites), describe(c))
	body := highlightBestSentence(m.result.Answer, m.lastQuery, c.Doc)
	return title + "\n\n" + body
}

func describe(c domain.Citation) string {
	md := c.Metadata
	parts := []string{fmt.Sprintf("[DOC %d]", c.Doc), md.Source}
	if md.Section != "" {
		parts = append(parts, "§ "+md.Section)
	}
	if md.PageStart != 0 && md.PageEnd != 0 {
		parts = append(parts, fmt.Sprintf("pp. %d-%d", md.PageStart, md.PageEnd))
	}
	if md.Type != "" {
		parts = append(parts, string(md.Type))
	}
	if c.Distance != nil {
		parts = append(parts, fmt.Sprintf("distance=%.3f", *c.Distance))
	}
	return strings.Join(parts, "  ")
}

var (
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	wordRe         = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?]+(?:[.!?]+(?:\s*\[DOC \d+\])*|$)`)
)

// highlightBestSentence emphasises the sentence citing doc, or failing that the
// one sharing the most words with query.
func highlightBestSentence(text, query string, doc int) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	marker := ""
	if doc > 0 {
		marker = fmt.Sprintf("[DOC %d]", doc)
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 && marker == "" {
		return strings.TrimSpace(strings.Join(sentences, " "))
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if marker != "" && strings.Contains(s, marker) {
			score += 1000
		}
		if score > bestScore {
			bestScore, bestIdx = score, i
		}
	}
	out := make([]string, len(sentences))
	for i, s := range sentences {
		s = strings.TrimSpace(s)
		if i == bestIdx {
			s = highlightStyle.Render(s)
		}
		out[i] = s
	}
	return strings.Join(out, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range wordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
