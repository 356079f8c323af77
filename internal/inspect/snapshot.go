// Package inspect renders live orchestrator state (budget windows, cron
// next-run, pending intents, queue depth) as a terminal dashboard, the way
// vinayprograms-agent's internal/replay renders a recorded session — a
// lipgloss-styled timeline driven by a bubbletea program, except inspect's
// content refreshes on a timer instead of replaying a fixed file.
package inspect

import "time"

// CronJobView is one cron job's display-relevant state.
type CronJobView struct {
	ID         string
	Type       string
	Expression string
	NextRunAt  time.Time
}

// BudgetChannelView is one channel's budget usage for display.
type BudgetChannelView struct {
	ChannelID  string
	HourlyUsed int
	HourlyMax  int
	DailyUsed  int
	DailyMax   int
}

// Snapshot is one point-in-time view of orchestrator + collaborator state.
type Snapshot struct {
	Running          bool
	DeferredRunCount int
	PendingIntents   int
	CronJobs         []CronJobView
	BudgetChannels   []BudgetChannelView
	QueueDepth       int
	TakenAt          time.Time
}

// Source supplies Snapshots on demand. Implemented by the cmd/agentcored
// wiring layer, which has concrete references to the orchestrator, cron
// service, budget, and queue backend; inspect itself depends on none of
// them, only on this seam, matching the contracts-package seam discipline
// used elsewhere in this module.
type Source interface {
	Snapshot() Snapshot
}
