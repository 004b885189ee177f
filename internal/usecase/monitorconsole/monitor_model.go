package monitorconsole

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"seatwatch/internal/bootstrap/logging"
	"seatwatch/internal/domain/inventory"
	"seatwatch/internal/usecase/notify"
)

const maxAuditLines = 6

// Backend is what the monitor reads and the one action it can trigger.
type Backend interface {
	QueueStats(ctx context.Context) (notify.QueueStats, error)
	RecentChanges(ctx context.Context, limit int) ([]inventory.ChangeLogEntry, error)
	ConsumeReady(ctx context.Context, limit int) (notify.DispatchReport, error)
}

type Options struct {
	ChangeLimit     int
	DispatchLimit   int
	RefreshInterval time.Duration
	Location        *time.Location
}

type monitorModel struct {
	ctx             context.Context
	backend         Backend
	changeLimit     int
	dispatchLimit   int
	refreshInterval time.Duration
	loc             *time.Location

	stats         notify.QueueStats
	changes       []inventory.ChangeLogEntry
	selectedIndex int
	refreshedAt   time.Time
	status        string
	auditLogs     []string
}

type snapshotLoadedMsg struct {
	stats   notify.QueueStats
	changes []inventory.ChangeLogEntry
	err     error
}

type tickMsg struct{}

type dispatchDoneMsg struct {
	report notify.DispatchReport
	err    error
}

func NewMonitorModel(ctx context.Context, backend Backend, options Options) tea.Model {
	changeLimit := options.ChangeLimit
	if changeLimit <= 0 {
		changeLimit = 20
	}
	dispatchLimit := options.DispatchLimit
	if dispatchLimit <= 0 {
		dispatchLimit = 50
	}
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	loc := options.Location
	if loc == nil {
		loc = time.UTC
	}

	return &monitorModel{
		ctx:             logging.Component(ctx, "console.monitor"),
		backend:         backend,
		changeLimit:     changeLimit,
		dispatchLimit:   dispatchLimit,
		refreshInterval: interval,
		loc:             loc,
		status:          "loading",
	}
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), m.tickCmd())
}

func (m *monitorModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadCmd(), m.tickCmd())
	case snapshotLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.stats = msg.stats
		m.changes = msg.changes
		m.refreshedAt = time.Now()
		if m.selectedIndex >= len(m.changes) {
			m.selectedIndex = len(m.changes) - 1
		}
		if m.selectedIndex < 0 {
			m.selectedIndex = 0
		}
		m.status = fmt.Sprintf("refreshed, %d recent changes", len(m.changes))
		return m, nil
	case dispatchDoneMsg:
		if msg.err != nil {
			m.status = "dispatch failed: " + msg.err.Error()
			m.appendAuditLog("dispatch", "error: "+msg.err.Error())
		} else {
			result := fmt.Sprintf("attempted=%d sent=%d retrying=%d failed=%d",
				msg.report.Attempted, msg.report.Sent, msg.report.Retrying, msg.report.Failed)
			m.status = "dispatch done: " + result
			m.appendAuditLog("dispatch", result)
		}
		return m, m.loadCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadCmd()
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
			}
			return m, nil
		case "down", "j":
			if m.selectedIndex < len(m.changes)-1 {
				m.selectedIndex++
			}
			return m, nil
		case "d":
			m.status = "dispatching"
			return m, m.dispatchCmd()
		}
	}
	return m, nil
}

func (m *monitorModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("seatwatch monitor"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf("refresh=%s changes=%d dispatch_batch=%d", m.refreshInterval, m.changeLimit, m.dispatchLimit)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Send Queue"))
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("pending=%d retrying=%d sent=%d ", m.stats.Pending, m.stats.Retrying, m.stats.Sent))
	failed := fmt.Sprintf("failed=%d", m.stats.Failed)
	if m.stats.Failed > 0 {
		failed = warnStyle.Render(failed)
	}
	builder.WriteString(failed)
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Recent Changes"))
	builder.WriteString("\n")
	if len(m.changes) == 0 {
		builder.WriteString(dimStyle.Render("- no changes"))
		builder.WriteString("\n\n")
	} else {
		for index, change := range m.changes {
			line := changeLine(change, m.loc)
			if index == m.selectedIndex {
				builder.WriteString(selectedStyle.Render("> " + line))
			} else {
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Detail"))
	builder.WriteString("\n")
	if selected, ok := m.selectedChange(); ok {
		builder.WriteString(changeDetail(selected, m.loc))
	} else {
		builder.WriteString(dimStyle.Render("- no detail"))
		builder.WriteString("\n")
	}
	builder.WriteString("\n")

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Audit Log"))
	builder.WriteString("\n")
	if len(m.auditLogs) == 0 {
		builder.WriteString(dimStyle.Render("- no actions"))
		builder.WriteString("\n\n")
	} else {
		for _, line := range m.auditLogs {
			builder.WriteString("- " + line)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: ↑/k ↓/j move  g refresh  d dispatch batch  q quit"))
	return builder.String()
}

func (m *monitorModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *monitorModel) loadCmd() tea.Cmd {
	return func() tea.Msg {
		stats, err := m.backend.QueueStats(m.ctx)
		if err != nil {
			return snapshotLoadedMsg{err: err}
		}
		changes, err := m.backend.RecentChanges(m.ctx, m.changeLimit)
		if err != nil {
			return snapshotLoadedMsg{err: err}
		}
		return snapshotLoadedMsg{stats: stats, changes: changes}
	}
}

func (m *monitorModel) dispatchCmd() tea.Cmd {
	return func() tea.Msg {
		report, err := m.backend.ConsumeReady(m.ctx, m.dispatchLimit)
		return dispatchDoneMsg{report: report, err: err}
	}
}

func (m *monitorModel) selectedChange() (inventory.ChangeLogEntry, bool) {
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.changes) {
		return inventory.ChangeLogEntry{}, false
	}
	return m.changes[m.selectedIndex], true
}

func (m *monitorModel) appendAuditLog(action string, result string) {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s action=%s result=%s", timestamp, action, result)
	m.auditLogs = append([]string{line}, m.auditLogs...)
	if len(m.auditLogs) > maxAuditLines {
		m.auditLogs = m.auditLogs[:maxAuditLines]
	}

	logging.Info(m.ctx, "monitor console action",
		slog.String("action", action),
		slog.String("result", result),
	)
}

func changeLine(change inventory.ChangeLogEntry, loc *time.Location) string {
	session := "-"
	if change.SessionTime != nil {
		session = change.SessionTime.In(loc).Format("01-02 15:04")
	}
	return fmt.Sprintf("#%d [%s] %s %s %s %d/%d",
		change.ID,
		change.Type,
		firstNonEmpty(change.EventTitle, change.EventID),
		session,
		firstNonEmpty(change.City, "-"),
		change.Stock,
		change.Total,
	)
}

func changeDetail(change inventory.ChangeLogEntry, loc *time.Location) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Ticket: %s (event %s)\n", change.TicketID, change.EventID))
	builder.WriteString(fmt.Sprintf("Type: %s, %s (min level %d)\n", change.Type, change.Message, inventory.RequiredLevel(change.Type)))
	builder.WriteString(fmt.Sprintf("Price: %g\n", change.Price))
	builder.WriteString(fmt.Sprintf("Cast: %s\n", firstNonEmpty(strings.Join(change.CastNames, ", "), "-")))
	builder.WriteString(fmt.Sprintf("Detected: %s\n", change.CreatedAt.In(loc).Format(time.DateTime)))
	return builder.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if normalized != "" {
			return normalized
		}
	}
	return ""
}
