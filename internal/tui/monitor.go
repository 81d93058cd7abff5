package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/kelsos/realms-tvl/internal/models"
)

type Stage string

const (
	StagePending     Stage = "pending"
	StageDiscovering Stage = "discovering"
	StageValuating   Stage = "valuating"
	StageCached      Stage = "cached"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

const maxLogLines = 10

type OrganizationStatus struct {
	Root       models.OrganizationRoot
	Stage      Stage
	Treasuries int
	Valued     int
	Total      decimal.Decimal
	Error      error
	StartTime  time.Time
}

// Progress is the share of treasuries valued so far.
func (s OrganizationStatus) Progress() float64 {
	if s.Treasuries == 0 {
		return 0
	}
	return float64(s.Valued) / float64(s.Treasuries)
}

type Model struct {
	order        []string
	statuses     map[string]*OrganizationStatus
	logs         []string
	spinner      spinner.Model
	progress     progress.Model
	width        int
	height       int
	quit         bool
	finished     bool
	errorCount   int
	successCount int
	fleetTotal   decimal.Decimal
}

type OrganizationUpdate struct {
	ProgramID  string
	Stage      Stage
	Treasuries int
	Valued     int
	Total      decimal.Decimal
	Error      error
}

type LogMessage struct {
	Message string
}

type RunFinished struct {
	Total decimal.Decimal
	Error error
}

func NewModel(roots []models.OrganizationRoot) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := Model{
		statuses:   make(map[string]*OrganizationStatus),
		spinner:    sp,
		progress:   progress.New(progress.WithDefaultGradient()),
		width:      80,
		height:     24,
		fleetTotal: decimal.Zero,
	}
	for _, root := range roots {
		m.order = append(m.order, root.ProgramID)
		m.statuses[root.ProgramID] = &OrganizationStatus{Root: root, Stage: StagePending, Total: decimal.Zero}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.handleKeyMsg(msg) {
			m.quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m = m.handleWindowSizeMsg(msg)

	case OrganizationUpdate:
		m = m.handleOrganizationUpdate(msg)

	case LogMessage:
		m = m.handleLogMessage(msg)

	case RunFinished:
		m.finished = true
		if msg.Error == nil {
			m.fleetTotal = msg.Total
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		if progressModel, ok := progressModel.(progress.Model); ok {
			m.progress = progressModel
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "ctrl+c":
		return true
	}
	return false
}

func (m Model) handleWindowSizeMsg(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.progress.Width = msg.Width - 60
	return m
}

func (m Model) handleOrganizationUpdate(msg OrganizationUpdate) Model {
	status, exists := m.statuses[msg.ProgramID]
	if !exists {
		status = &OrganizationStatus{Root: models.OrganizationRoot{ProgramID: msg.ProgramID}, Total: decimal.Zero}
		m.statuses[msg.ProgramID] = status
		m.order = append(m.order, msg.ProgramID)
	}

	if status.StartTime.IsZero() && msg.Stage != StagePending {
		status.StartTime = time.Now()
	}
	status.Stage = msg.Stage
	status.Error = msg.Error
	if msg.Treasuries > 0 {
		status.Treasuries = msg.Treasuries
	}
	if msg.Valued > 0 {
		status.Valued = msg.Valued
	}

	switch msg.Stage {
	case StageValuating:
		status.Total = status.Total.Add(msg.Total)
	case StageCached, StageDone:
		status.Total = msg.Total
		m.successCount++
		m.fleetTotal = m.fleetTotal.Add(msg.Total)
	case StageFailed:
		m.errorCount++
	}
	return m
}

func (m Model) handleLogMessage(msg LogMessage) Model {
	m.logs = append(m.logs, fmt.Sprintf("[%s] %s",
		time.Now().Format("15:04:05"), msg.Message))
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	return m
}

func (m Model) View() string {
	if m.quit {
		return "Shutting down...\n"
	}

	var s strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)

	s.WriteString(headerStyle.Render("🏛  Realms TVL Monitor"))
	s.WriteString("\n\n")

	summaryStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	state := "running"
	if m.finished {
		state = "finished"
	}
	summary := fmt.Sprintf("Organizations: %d | ✅ Done: %d | ❌ Failed: %d | 💰 Total: $%s | %s",
		len(m.order), m.successCount, m.errorCount, m.fleetTotal.StringFixed(2), state)
	s.WriteString(summaryStyle.Render(summary))
	s.WriteString("\n\n")

	orgSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1).
		Width(m.width - 2)

	var orgStatus strings.Builder
	orgStatus.WriteString("📊 Organizations\n")
	orgStatus.WriteString(strings.Repeat("─", 60) + "\n")

	for _, id := range m.order {
		status := m.statuses[id]

		line := fmt.Sprintf("%s %-15s %s %-11s $%14s",
			getStageIcon(status.Stage),
			truncate(status.Root.Label(), 15),
			m.spinner.View(),
			status.Stage,
			status.Total.StringFixed(2))

		if status.Stage == StageValuating {
			line += fmt.Sprintf(" %s %d/%d", m.progress.ViewAs(status.Progress()), status.Valued, status.Treasuries)
		}

		if status.Error != nil {
			errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
			line += " " + errorStyle.Render(fmt.Sprintf("Error: %v", status.Error))
		}

		stageStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(getStageColor(status.Stage)))
		orgStatus.WriteString(stageStyle.Render(line) + "\n")
	}

	s.WriteString(orgSectionStyle.Render(orgStatus.String()))
	s.WriteString("\n\n")

	logSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(m.width - 2).
		Height(8)

	var logSection strings.Builder
	logSection.WriteString("📝 Recent Logs\n")
	for _, log := range m.logs {
		logSection.WriteString(log + "\n")
	}

	s.WriteString(logSectionStyle.Render(logSection.String()))
	s.WriteString("\n\n")

	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	footer := "Press 'q' to quit | Logs: logs/realms-tvl_*.log"
	s.WriteString(footerStyle.Render(footer))

	return s.String()
}

func getStageIcon(stage Stage) string {
	switch stage {
	case StagePending:
		return "⏸"
	case StageDiscovering:
		return "🔍"
	case StageValuating:
		return "💱"
	case StageCached:
		return "📦"
	case StageDone:
		return "✅"
	case StageFailed:
		return "❌"
	default:
		return "❓"
	}
}

func getStageColor(stage Stage) string {
	switch stage {
	case StagePending, StageCached:
		return "244"
	case StageDone:
		return "82"
	case StageFailed:
		return "196"
	default:
		return "39"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
