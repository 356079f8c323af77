// Package cron implements the Cron Service from spec.md §4.6: jobs
// expressed as "at <ISO-8601>", "every <duration>", or a 5-field cron
// expression (parsed with github.com/adhocore/gronx, the same library
// vanducng-goclaw's scheduling stack depends on), ticked periodically by
// the orchestrator, with isolated-run dedup, exponential backoff, and a
// global concurrent-run cap.
package cron

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"github.com/vinayprograms/agentcore/internal/fsutil"
	"github.com/vinayprograms/agentcore/internal/telemetry/log"
	agentotel "github.com/vinayprograms/agentcore/internal/telemetry/otel"
)

// jobsRunCounter records cron.tick.jobs_run, a single process-wide
// instrument shared across every Service instance.
var jobsRunCounter = func() func(delta int64) {
	c, _ := agentotel.Meter("agentcore/cron").Int64Counter("cron.tick.jobs_run")
	return func(delta int64) { c.Add(context.Background(), delta) }
}()

// Kind is the expression family a Job uses.
type Kind string

const (
	KindAt    Kind = "at"
	KindEvery Kind = "every"
	KindCron  Kind = "cron"
)

// Job is a persisted cron job definition (spec.md's CronJob).
type Job struct {
	ID         string `json:"id"`
	Type       Kind   `json:"type"`
	Expression string `json:"expression"`
	Isolated   bool   `json:"isolated"`
	MaxRetries int    `json:"maxRetries"`
	BackoffMs  int64  `json:"backoffMs"`
	NextRunAt  int64  `json:"nextRunAt"` // epoch ms

	attempts int // in-memory only; resets to 0 on successful run
}

// RunFunc executes a job; a non-nil error triggers backoff/retry.
type RunFunc func(job *Job) error

// Service owns the job set, in-flight tracking, and state persistence.
type Service struct {
	mu                sync.Mutex
	jobs              map[string]*Job
	inFlight          map[string]bool
	maxConcurrentRuns int
	statePath         string
	gron              gronx.Gronx
	logger            zerolog.Logger
}

// New builds a Service that persists to statePath (cron-state.json) and
// caps total parallel job runs at maxConcurrentRuns (0 = unlimited).
func New(statePath string, maxConcurrentRuns int) *Service {
	return &Service{
		jobs:              make(map[string]*Job),
		inFlight:          make(map[string]bool),
		maxConcurrentRuns: maxConcurrentRuns,
		statePath:         statePath,
		gron:              gronx.New(),
		logger:            log.Component("cron"),
	}
}

// AddJob registers a job, computing its initial nextRunAt if unset.
func (s *Service) AddJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.NextRunAt == 0 {
		next, err := computeNext(s.gron, job, time.Now())
		if err != nil {
			return err
		}
		job.NextRunAt = next
	}
	s.jobs[job.ID] = job
	return s.flushLocked()
}

// RemoveJob deletes a job definition.
func (s *Service) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	delete(s.inFlight, id)
	return s.flushLocked()
}

// Tick finds every job whose nextRunAt has elapsed and runs it, honoring
// isolation and the global concurrency cap (spec.md §4.6). onRun is
// invoked synchronously per due job in this call — the orchestrator is
// expected to call Tick from its own scheduling goroutine.
func (s *Service) Tick(now time.Time, onRun RunFunc) {
	due := s.collectDue(now)
	if len(due) > 0 {
		jobsRunCounter(int64(len(due)))
	}
	for _, job := range due {
		s.runOne(job, now, onRun)
	}
}

func (s *Service) collectDue(now time.Time) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	nowMs := now.UnixMilli()
	var due []*Job
	for _, job := range s.jobs {
		if job.NextRunAt > nowMs {
			continue
		}
		if job.Isolated && s.inFlight[job.ID] {
			continue
		}
		if s.maxConcurrentRuns > 0 && len(s.inFlight) >= s.maxConcurrentRuns {
			continue
		}
		s.inFlight[job.ID] = true
		due = append(due, job)
	}
	return due
}

func (s *Service) runOne(job *Job, now time.Time, onRun RunFunc) {
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, job.ID)
		s.mu.Unlock()
	}()

	err := onRun(job)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		job.attempts++
		s.logger.Warn().Str("job", job.ID).Int("attempt", job.attempts).Err(err).Msg("cron run failed")
		if job.MaxRetries > 0 && job.attempts >= job.MaxRetries {
			// give up until the next natural schedule point
			job.attempts = 0
			next, nerr := computeNext(s.gron, job, now)
			if nerr == nil {
				job.NextRunAt = next
			}
			_ = s.flushLocked()
			return
		}
		backoff := job.BackoffMs
		if backoff <= 0 {
			backoff = 1000
		}
		delay := backoff * (1 << uint(job.attempts-1))
		job.NextRunAt = now.Add(time.Duration(delay) * time.Millisecond).UnixMilli()
		_ = s.flushLocked()
		return
	}

	job.attempts = 0
	if job.Type == KindAt {
		// An "at" job is one-shot: it is removed once it has run.
		delete(s.jobs, job.ID)
		_ = s.flushLocked()
		return
	}
	next, nerr := computeNext(s.gron, job, now)
	if nerr == nil {
		job.NextRunAt = next
	}
	_ = s.flushLocked()
}

// computeNext derives the next run time strictly after `from`, per the
// job's expression kind.
func computeNext(g gronx.Gronx, job *Job, from time.Time) (int64, error) {
	switch job.Type {
	case KindAt:
		t, err := time.Parse(time.RFC3339, job.Expression)
		if err != nil {
			return 0, fmt.Errorf("parse 'at' expression %q: %w", job.Expression, err)
		}
		return t.UnixMilli(), nil
	case KindEvery:
		d, err := time.ParseDuration(job.Expression)
		if err != nil {
			return 0, fmt.Errorf("parse 'every' expression %q: %w", job.Expression, err)
		}
		return from.Add(d).UnixMilli(), nil
	case KindCron:
		next, err := g.NextTick(job.Expression, false)
		if err != nil {
			return 0, fmt.Errorf("parse cron expression %q: %w", job.Expression, err)
		}
		if !next.After(from) {
			next, err = g.NextTickAfter(job.Expression, from, false)
			if err != nil {
				return 0, fmt.Errorf("advance cron expression %q: %w", job.Expression, err)
			}
		}
		return next.UnixMilli(), nil
	default:
		return 0, fmt.Errorf("unknown cron job kind %q", job.Type)
	}
}

// ValidateExpression checks an expression is well-formed for its kind,
// without scheduling anything — used at job-registration time.
func ValidateExpression(kind Kind, expr string) error {
	switch kind {
	case KindAt:
		_, err := time.Parse(time.RFC3339, expr)
		return err
	case KindEvery:
		_, err := time.ParseDuration(expr)
		return err
	case KindCron:
		fields := strings.Fields(expr)
		if len(fields) != 5 {
			return fmt.Errorf("cron expression %q must have 5 fields", expr)
		}
		if !gronx.IsValid(expr) {
			return fmt.Errorf("invalid cron expression %q", expr)
		}
		return nil
	default:
		return fmt.Errorf("unknown cron job kind %q", kind)
	}
}

type persistedState struct {
	Jobs []*Job `json:"jobs"`
}

func (s *Service) flushLocked() error {
	if s.statePath == "" {
		return nil
	}
	state := persistedState{Jobs: make([]*Job, 0, len(s.jobs))}
	for _, j := range s.jobs {
		state.Jobs = append(state.Jobs, j)
	}
	return fsutil.WriteJSONAtomic(s.statePath, state)
}

// Load restores job definitions from statePath, if present.
func (s *Service) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var state persistedState
	ok, err := fsutil.ReadJSON(s.statePath, &state)
	if err != nil || !ok {
		return err
	}
	for _, j := range state.Jobs {
		s.jobs[j.ID] = j
	}
	return nil
}

// Jobs returns a snapshot of all registered job definitions.
func (s *Service) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}
