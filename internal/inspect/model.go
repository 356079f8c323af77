package inspect

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// tickMsg fires on the refresh interval.
type tickMsg time.Time

// model is the bubbletea Model backing Program.
type model struct {
	source   Source
	interval time.Duration

	viewport viewport.Model
	ready    bool
	snapshot Snapshot
	paused   bool
}

// NewProgram builds a bubbletea program that polls source every interval
// and renders its Snapshot as a dashboard.
func NewProgram(source Source, interval time.Duration) *tea.Program {
	if interval <= 0 {
		interval = time.Second
	}
	return tea.NewProgram(&model{source: source, interval: interval}, tea.WithAltScreen())
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.refresh())
}

func (m *model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) refresh() tea.Cmd {
	return func() tea.Msg {
		return m.source.Snapshot()
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
		}
	case tea.WindowSizeMsg:
		headerHeight := 2
		footerHeight := 1
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.viewport.SetContent(m.renderBody())
	case tickMsg:
		cmds := []tea.Cmd{m.tick()}
		if !m.paused {
			cmds = append(cmds, m.refresh())
		}
		return m, tea.Batch(cmds...)
	case Snapshot:
		m.snapshot = msg
		if m.ready {
			m.viewport.SetContent(m.renderBody())
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	if !m.ready {
		return "\n  loading...\n"
	}
	header := headerBarStyle.Render(fmt.Sprintf("agentcore inspect — %s", m.snapshot.TakenAt.Format("15:04:05")))
	footer := footerStyle.Render(" q: quit │ p: pause ")
	return header + "\n" + m.viewport.View() + "\n" + footer
}

func (m *model) renderBody() string {
	var b strings.Builder

	status := successStyle.Render("RUNNING")
	if !m.snapshot.Running {
		status = errorStyle.Render("STOPPED")
	}
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("orchestrator:"), status)
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n\n",
		labelStyle.Render("deferred runs:"), valueStyle.Render(fmt.Sprintf("%d", m.snapshot.DeferredRunCount)),
		labelStyle.Render("pending intents:"), valueStyle.Render(fmt.Sprintf("%d", m.snapshot.PendingIntents)),
		labelStyle.Render("queue depth:"), valueStyle.Render(fmt.Sprintf("%d", m.snapshot.QueueDepth)),
	)

	fmt.Fprintln(&b, titleStyle.Render("BUDGET"))
	if len(m.snapshot.BudgetChannels) == 0 {
		fmt.Fprintln(&b, dimStyle.Render("  (no channel activity yet)"))
	}
	for _, c := range m.snapshot.BudgetChannels {
		fmt.Fprintf(&b, "  %-20s hourly %s %3d/%-3d   daily %s %3d/%-3d\n",
			valueStyle.Render(c.ChannelID),
			usageBar(c.HourlyUsed, c.HourlyMax, 10), c.HourlyUsed, c.HourlyMax,
			usageBar(c.DailyUsed, c.DailyMax, 10), c.DailyUsed, c.DailyMax,
		)
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, titleStyle.Render("CRON"))
	if len(m.snapshot.CronJobs) == 0 {
		fmt.Fprintln(&b, dimStyle.Render("  (no jobs scheduled)"))
	}
	for _, j := range m.snapshot.CronJobs {
		due := dimStyle.Render(j.NextRunAt.Format(time.RFC3339))
		if j.NextRunAt.Before(m.snapshot.TakenAt) {
			due = warnStyle.Render(j.NextRunAt.Format(time.RFC3339) + " (due)")
		}
		fmt.Fprintf(&b, "  %-20s %-8s next: %s\n", valueStyle.Render(j.ID), dimStyle.Render(j.Type), due)
	}

	return b.String()
}
