package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"psychic-pancake/internal/domain"
	"psychic-pancake/internal/engine"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = 5 * time.Second
	drawRows        = 25
	queryTimeout    = 5 * time.Second
)

// EngineQuerier is the slice of the prediction service the dashboard reads.
type EngineQuerier interface {
	LatestDecision(ctx context.Context) (*domain.Decision, error)
	Stats(ctx context.Context) (domain.EngineStats, map[domain.Outcome]int64, error)
	RecentDraws(ctx context.Context, limit int) ([]domain.Draw, error)
	EngineTelemetry() engine.Telemetry
}

// AdvisorQuerier asks the LLM advisor, keyed by the operator's user ID
// so the conversation survives reconnects.
type AdvisorQuerier interface {
	Ask(ctx context.Context, chatID int64, message string) (string, error)
}

// AnomalyQuerier exposes the last isolation-forest report.
type AnomalyQuerier interface {
	LastReport() *domain.AnomalyReport
}

// Services carries everything a dashboard session needs. Advisor and
// Anomaly may be nil.
type Services struct {
	Engine   EngineQuerier
	Advisor  AdvisorQuerier
	Anomaly  AnomalyQuerier
	UserID   int64
	Username string
}

type tabID int

const (
	tabOverview tabID = iota
	tabDraws
	tabChat
)

var tabNames = []string{"Overview", "Draws", "Chat"}

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1)
	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	bigStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	smallStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	chatUserStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

type tickMsg time.Time

type refreshMsg struct {
	decision *domain.Decision
	stats    domain.EngineStats
	counts   map[domain.Outcome]int64
	draws    []domain.Draw
	telem    engine.Telemetry
	anomaly  *domain.AnomalyReport
	err      error
}

type advisorMsg struct {
	reply string
	err   error
}

// AppModel is the root bubbletea model served over SSH.
type AppModel struct {
	svc    Services
	tab    tabID
	width  int
	height int

	drawTable table.Model
	input     textinput.Model
	chat      []string
	waiting   bool

	decision *domain.Decision
	stats    domain.EngineStats
	counts   map[domain.Outcome]int64
	telem    engine.Telemetry
	anomaly  *domain.AnomalyReport
	lastErr  error
}

func NewAppModel(svc Services) *AppModel {
	columns := []table.Column{
		{Title: "SEQ", Width: 8},
		{Title: "NUMBER", Width: 8},
		{Title: "CLASS", Width: 7},
		{Title: "STATUS", Width: 10},
		{Title: "DRAWN AT", Width: 20},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(drawRows),
	)
	styles := table.DefaultStyles()
	styles.Selected = styles.Selected.Bold(true).Foreground(lipgloss.Color("212"))
	t.SetStyles(styles)

	input := textinput.New()
	input.Placeholder = "ask about the current prediction"
	input.CharLimit = 400

	return &AppModel{
		svc:       svc,
		drawTable: t,
		input:     input,
	}
}

// SetSize is called once the PTY dimensions are known, before the
// program starts.
func (m *AppModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	if height > 10 {
		m.drawTable.SetHeight(height - 8)
	}
	if width > 20 {
		m.input.Width = width - 10
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd(), textinput.Blink)
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case refreshMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.lastErr = nil
		m.decision = msg.decision
		m.stats = msg.stats
		m.counts = msg.counts
		m.telem = msg.telem
		m.anomaly = msg.anomaly
		m.drawTable.SetRows(drawTableRows(msg.draws))
		return m, nil

	case advisorMsg:
		m.waiting = false
		if msg.err != nil {
			m.chat = append(m.chat, warnStyle.Render("error: "+msg.err.Error()))
		} else {
			m.chat = append(m.chat, "advisor: "+msg.reply)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	if m.input.Focused() {
		switch msg.Type {
		case tea.KeyEsc:
			m.input.Blur()
			return m, nil
		case tea.KeyEnter:
			question := strings.TrimSpace(m.input.Value())
			if question == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.chat = append(m.chat, chatUserStyle.Render(m.svc.Username+": ")+question)
			if m.svc.Advisor == nil {
				m.chat = append(m.chat, warnStyle.Render("advisor is not configured"))
				return m, nil
			}
			m.waiting = true
			return m, m.askCmd(question)
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "tab":
		m.tab = (m.tab + 1) % tabID(len(tabNames))
		return m, nil
	case "1":
		m.tab = tabOverview
		return m, nil
	case "2":
		m.tab = tabDraws
		return m, nil
	case "3":
		m.tab = tabChat
		return m, nil
	case "i", "enter":
		if m.tab == tabChat {
			return m, m.input.Focus()
		}
	case "r":
		return m, m.refreshCmd()
	}

	if m.tab == tabDraws {
		var cmd tea.Cmd
		m.drawTable, cmd = m.drawTable.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *AppModel) View() string {
	var sections []string

	title := titleStyle.Render("psychic-pancake") +
		labelStyle.Render("  BIG/SMALL prediction dashboard  ") +
		labelStyle.Render("user: "+m.svc.Username)
	sections = append(sections, title)
	sections = append(sections, m.tabBar())

	switch m.tab {
	case tabOverview:
		sections = append(sections, m.overviewView())
	case tabDraws:
		sections = append(sections, m.drawTable.View())
	case tabChat:
		sections = append(sections, m.chatView())
	}

	if m.lastErr != nil {
		sections = append(sections, warnStyle.Render("refresh error: "+m.lastErr.Error()))
	}
	sections = append(sections, helpStyle.Render("tab/1-3 switch · r refresh · i type (chat) · q quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *AppModel) tabBar() string {
	var parts []string
	for i, name := range tabNames {
		if tabID(i) == m.tab {
			parts = append(parts, activeTabStyle.Render("["+name+"]"))
		} else {
			parts = append(parts, tabStyle.Render(name))
		}
	}
	return strings.Join(parts, " ")
}

func (m *AppModel) overviewView() string {
	var sb strings.Builder

	if m.decision == nil {
		sb.WriteString(labelStyle.Render("no prediction yet, waiting for draws") + "\n")
	} else {
		class := bigStyle.Render(string(m.decision.Class))
		if m.decision.Class == domain.ClassSmall {
			class = smallStyle.Render(string(m.decision.Class))
		}
		confidence := "n/a"
		if m.decision.Confidence != nil {
			confidence = fmt.Sprintf("%.1f%%", *m.decision.Confidence*100)
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("next draw:"), class))
		sb.WriteString(fmt.Sprintf("%s %s  %s %d  %s %s\n",
			labelStyle.Render("confidence:"), confidence,
			labelStyle.Render("level:"), m.decision.Level,
			labelStyle.Render("health:"), m.decision.Health))
		sb.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("source:"), m.decision.Source))
	}

	sb.WriteString(fmt.Sprintf("\n%s %d/%d", labelStyle.Render("wins:"), m.stats.WinCount, m.stats.ResolvedCount))
	if accuracy, ok := m.stats.LongTermAccuracy(); ok {
		sb.WriteString(fmt.Sprintf(" (%.1f%%)", accuracy*100))
	}
	if n := m.counts[domain.OutcomeCooldown]; n > 0 {
		sb.WriteString(fmt.Sprintf("  %s %d", labelStyle.Render("cooldowns:"), n))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("\n%s defensive=%t threshold=%.2f sentiment=%+.2f trades=%d\n",
		labelStyle.Render("engine:"), m.telem.Defensive, m.telem.BadTrendLimit,
		m.telem.Sentiment, m.telem.TradeCount))
	sb.WriteString(labelStyle.Render("weights:"))
	for _, key := range domain.FeatureKeys {
		sb.WriteString(fmt.Sprintf(" %s=%.2f", key, m.telem.Weights[key]))
	}
	sb.WriteString("\n")

	if m.anomaly != nil {
		line := fmt.Sprintf("\n%s mean=%.2f max=%.2f outliers=%d",
			labelStyle.Render("anomaly:"), m.anomaly.MeanScore, m.anomaly.MaxScore, len(m.anomaly.Outliers))
		if len(m.anomaly.Outliers) > 0 {
			line = warnStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}

	return sb.String()
}

func (m *AppModel) chatView() string {
	var sb strings.Builder

	lines := m.chat
	max := m.height - 8
	if max > 0 && len(lines) > max {
		lines = lines[len(lines)-max:]
	}
	for _, line := range lines {
		sb.WriteString(line + "\n")
	}
	if m.waiting {
		sb.WriteString(labelStyle.Render("advisor is thinking...") + "\n")
	}
	sb.WriteString("\n" + m.input.View())

	return sb.String()
}

func (m *AppModel) refreshCmd() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()

		var msg refreshMsg
		decision, err := svc.Engine.LatestDecision(ctx)
		if err != nil {
			msg.err = err
			return msg
		}
		msg.decision = decision
		msg.stats, msg.counts, _ = svc.Engine.Stats(ctx)
		msg.draws, _ = svc.Engine.RecentDraws(ctx, drawRows)
		msg.telem = svc.Engine.EngineTelemetry()
		if svc.Anomaly != nil {
			msg.anomaly = svc.Anomaly.LastReport()
		}
		return msg
	}
}

func (m *AppModel) askCmd(question string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		reply, err := svc.Advisor.Ask(ctx, svc.UserID, question)
		return advisorMsg{reply: reply, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func drawTableRows(draws []domain.Draw) []table.Row {
	rows := make([]table.Row, 0, len(draws))
	for _, d := range draws {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", d.Sequence),
			fmt.Sprintf("%g", d.Number),
			string(d.Class),
			string(d.Status),
			d.DrawnAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}
