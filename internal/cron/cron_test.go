package cron

import (
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEveryJobReschedulesOnSuccess(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "cron-state.json"), 0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	job := &Job{ID: "job-1", Type: KindEvery, Expression: "1m", NextRunAt: base.UnixMilli()}
	require.NoError(t, s.AddJob(job))

	var runs int32
	s.Tick(base, func(j *Job) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})
	require.EqualValues(t, 1, runs)

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	require.Equal(t, base.Add(time.Minute).UnixMilli(), jobs[0].NextRunAt)
}

func TestIsolatedJobSkipsWhileInFlight(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "cron-state.json"), 0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	job := &Job{ID: "job-1", Type: KindEvery, Expression: "1s", Isolated: true, NextRunAt: base.UnixMilli()}
	require.NoError(t, s.AddJob(job))

	// Simulate an in-flight run by manipulating internal state directly via
	// a Tick call that blocks until we release it.
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		s.Tick(base, func(j *Job) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// A second tick at the same instant must skip the isolated job since
	// it's still in-flight.
	var secondRuns int32
	s.Tick(base, func(j *Job) error {
		atomic.AddInt32(&secondRuns, 1)
		return nil
	})
	require.EqualValues(t, 0, secondRuns)
	close(release)
}

func TestBackoffOnFailureThenGivesUpAtMaxRetries(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "cron-state.json"), 0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	job := &Job{ID: "job-1", Type: KindEvery, Expression: "1h", MaxRetries: 2, BackoffMs: 1000, NextRunAt: base.UnixMilli()}
	require.NoError(t, s.AddJob(job))

	fail := errors.New("boom")
	s.Tick(base, func(j *Job) error { return fail })
	jobs := s.Jobs()
	require.Equal(t, base.Add(1*time.Second).UnixMilli(), jobs[0].NextRunAt, "first backoff is backoffMs * 2^0")

	s.Tick(jobs[0].toTime(), func(j *Job) error { return fail })
	jobs = s.Jobs()
	// maxRetries reached: falls back to the natural "every" schedule from now.
	require.Equal(t, int64(0), int64(jobs[0].attempts))
}

func (j *Job) toTime() time.Time {
	return time.UnixMilli(j.NextRunAt)
}

func TestMaxConcurrentRunsCapsAcrossJobs(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "cron-state.json"), 1)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddJob(&Job{ID: "a", Type: KindEvery, Expression: "1s", NextRunAt: base.UnixMilli()}))
	require.NoError(t, s.AddJob(&Job{ID: "b", Type: KindEvery, Expression: "1s", NextRunAt: base.UnixMilli()}))

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	go func() {
		s.Tick(base, func(j *Job) error {
			started <- struct{}{}
			<-release
			return nil
		})
	}()
	<-started

	var secondRuns int32
	s.Tick(base, func(j *Job) error {
		atomic.AddInt32(&secondRuns, 1)
		return nil
	})
	require.EqualValues(t, 0, secondRuns, "global cap of 1 must block the second job while the first is in flight")
	close(release)
}

func TestValidateExpression(t *testing.T) {
	require.NoError(t, ValidateExpression(KindEvery, "5m"))
	require.Error(t, ValidateExpression(KindEvery, "not-a-duration"))
	require.NoError(t, ValidateExpression(KindAt, "2026-01-01T00:00:00Z"))
	require.Error(t, ValidateExpression(KindAt, "not-a-date"))
	require.Error(t, ValidateExpression(KindCron, "* * *"))
}

func TestLoadRestoresJobs(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "cron-state.json")
	s := New(statePath, 0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddJob(&Job{ID: "job-1", Type: KindEvery, Expression: "1m", NextRunAt: base.UnixMilli()}))

	s2 := New(statePath, 0)
	require.NoError(t, s2.Load())
	require.Len(t, s2.Jobs(), 1)
}
