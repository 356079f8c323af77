package inspect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSource struct{ snap Snapshot }

func (f fakeSource) Snapshot() Snapshot { return f.snap }

func TestRenderBodyShowsRunningStatus(t *testing.T) {
	m := &model{snapshot: Snapshot{Running: true, TakenAt: time.Now()}}
	body := stripANSI(m.renderBody())
	require.Contains(t, body, "RUNNING")
}

func TestRenderBodyShowsStoppedStatus(t *testing.T) {
	m := &model{snapshot: Snapshot{Running: false, TakenAt: time.Now()}}
	body := stripANSI(m.renderBody())
	require.Contains(t, body, "STOPPED")
}

func TestRenderBodyListsCronJobsAndBudgetChannels(t *testing.T) {
	now := time.Now()
	m := &model{snapshot: Snapshot{
		TakenAt: now,
		CronJobs: []CronJobView{
			{ID: "daily-report", Type: "cron", NextRunAt: now.Add(time.Hour)},
		},
		BudgetChannels: []BudgetChannelView{
			{ChannelID: "slack-main", HourlyUsed: 2, HourlyMax: 10, DailyUsed: 5, DailyMax: 50},
		},
	}}
	body := stripANSI(m.renderBody())
	require.Contains(t, body, "daily-report")
	require.Contains(t, body, "slack-main")
}

func TestNewProgramDefaultsInterval(t *testing.T) {
	prog := NewProgram(fakeSource{}, 0)
	require.NotNil(t, prog)
}
