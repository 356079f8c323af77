// Package orchestrator implements the Autonomy Orchestrator from spec.md
// §4.10: it owns the cron, heartbeat, integrity-scan, and proactive-intent
// timers, starts/stops them idempotently via golang.org/x/sync/errgroup
// (the same group-of-goroutines-with-shared-cancellation idiom
// rcourtman-Pulse's agent main loop uses), and gates every scheduled
// firing behind the Autonomy Budget, deferring rather than dropping a run
// when the budget denies it.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vinayprograms/agentcore/internal/budget"
	"github.com/vinayprograms/agentcore/internal/cron"
	"github.com/vinayprograms/agentcore/internal/fsutil"
	"github.com/vinayprograms/agentcore/internal/heartbeat"
	"github.com/vinayprograms/agentcore/internal/idgen"
	"github.com/vinayprograms/agentcore/internal/workflow"
)

// IntentStatus is a ProactiveIntent's lifecycle state (spec.md §3).
type IntentStatus string

const (
	IntentPending IntentStatus = "pending"
	IntentSent    IntentStatus = "sent"
	IntentExpired IntentStatus = "expired"
)

// ProactiveIntent is a channel-scoped self-initiated message candidate.
type ProactiveIntent struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channelId"`
	Text        string       `json:"text"`
	NotBeforeMs int64        `json:"notBeforeMs"`
	Status      IntentStatus `json:"status"`
	CreatedAt   int64        `json:"createdAt"`
}

// State summarizes orchestrator health for getState().
type State struct {
	Running          bool
	CronJobs         int
	PendingIntents   int
	DeferredRunCount int
}

// Config wires the orchestrator's collaborators and tick cadences.
type Config struct {
	Cron              *cron.Service
	Heartbeats        []*heartbeat.Runner
	Budget            *budget.Budget
	Workflows         *workflow.Runner
	IntentStatePath   string
	CronTickInterval  time.Duration
	HeartbeatInterval time.Duration
	IntentTickInterval time.Duration
	IntegrityScan     func(ctx context.Context) error
	IntegrityInterval time.Duration
	// OnCronRun executes a due cron job; required if Cron is set.
	OnCronRun func(job *cron.Job) error
}

// Orchestrator composes all schedulers behind a single start/stop
// lifecycle.
type Orchestrator struct {
	cfg Config

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	group    *errgroup.Group

	intentsMu        sync.Mutex
	intents          map[string]*ProactiveIntent
	deferredRunCount int
}

// New builds an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	if cfg.CronTickInterval <= 0 {
		cfg.CronTickInterval = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.IntentTickInterval <= 0 {
		cfg.IntentTickInterval = 5 * time.Second
	}
	if cfg.IntegrityInterval <= 0 {
		cfg.IntegrityInterval = time.Hour
	}
	return &Orchestrator{
		cfg:     cfg,
		intents: make(map[string]*ProactiveIntent),
	}
}

// Start launches every configured scheduler loop. Idempotent: calling
// Start while already running is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(runCtx)
	o.cancel = cancel
	o.group = group
	o.running = true
	o.mu.Unlock()

	if o.cfg.Cron != nil && o.cfg.OnCronRun != nil {
		group.Go(func() error { return o.runCronLoop(gctx) })
	}
	for _, hb := range o.cfg.Heartbeats {
		hb := hb
		group.Go(func() error { return o.runHeartbeatLoop(gctx, hb) })
	}
	group.Go(func() error { return o.runIntentLoop(gctx) })
	if o.cfg.IntegrityScan != nil {
		group.Go(func() error { return o.runIntegrityLoop(gctx) })
	}

	return nil
}

// Stop cancels every scheduler loop, waits for them to exit, and flushes
// proactive-intent state. Cron and budget state need no flush here: both
// are written to disk on every mutation. Idempotent.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	cancel := o.cancel
	group := o.group
	o.running = false
	o.mu.Unlock()

	cancel()
	_ = group.Wait() // loops return nil on context cancellation; errors are logged as they occur

	return o.flushIntents()
}

func (o *Orchestrator) runCronLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.CronTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			o.cfg.Cron.Tick(now, func(job *cron.Job) error {
				if o.cfg.Budget != nil {
					if allow, reason := o.cfg.Budget.TryConsume(job.ID, now); !allow {
						o.deferRun()
						// Reported as a failed run so the cron service backs
						// off and retries it instead of skipping to the next
						// scheduled time.
						return fmt.Errorf("deferred by autonomy budget: %s", reason)
					}
				}
				return o.cfg.OnCronRun(job)
			})
		}
	}
}

func (o *Orchestrator) runHeartbeatLoop(ctx context.Context, hb *heartbeat.Runner) error {
	interval := o.cfg.HeartbeatInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-timer.C:
			ran, _, _ := hb.Fire(ctx, now)
			if !ran {
				o.deferRun()
			}
			timer.Reset(hb.NextInterval(0))
		}
	}
}

func (o *Orchestrator) runIntentLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.IntentTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.expireAndPersistIntents()
		}
	}
}

func (o *Orchestrator) runIntegrityLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.IntegrityInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = o.cfg.IntegrityScan(ctx)
		}
	}
}

func (o *Orchestrator) deferRun() {
	o.intentsMu.Lock()
	o.deferredRunCount++
	o.intentsMu.Unlock()
}

// RunWorkflow runs a workflow definition through the orchestrator's
// workflow runner, if configured.
func (o *Orchestrator) RunWorkflow(def workflow.Definition, idempotencyKey string, approval workflow.ApprovalFunc) (*workflow.WorkflowState, error) {
	if o.cfg.Workflows == nil {
		return nil, fmt.Errorf("orchestrator: no workflow runner configured")
	}
	return o.cfg.Workflows.Run(def, idempotencyKey, approval)
}

// QueueProactiveIntent registers a new intent not to fire before notBefore.
func (o *Orchestrator) QueueProactiveIntent(channelID, text string, notBefore time.Time) *ProactiveIntent {
	intent := &ProactiveIntent{
		ID:          idgen.NewULID(),
		ChannelID:   channelID,
		Text:        text,
		NotBeforeMs: notBefore.UnixMilli(),
		Status:      IntentPending,
		CreatedAt:   time.Now().UnixMilli(),
	}
	o.intentsMu.Lock()
	o.intents[intent.ID] = intent
	o.intentsMu.Unlock()
	_ = o.flushIntents()
	return intent
}

// expireAndPersistIntents marks any intent whose notBeforeMs has long
// passed without being sent as expired, and flushes state.
func (o *Orchestrator) expireAndPersistIntents() {
	const expireAfter = 24 * time.Hour
	now := time.Now()
	o.intentsMu.Lock()
	for _, intent := range o.intents {
		if intent.Status != IntentPending {
			continue
		}
		if now.UnixMilli()-intent.NotBeforeMs > expireAfter.Milliseconds() {
			intent.Status = IntentExpired
		}
	}
	o.intentsMu.Unlock()
	_ = o.flushIntents()
}

type intentSnapshot struct {
	Intents []*ProactiveIntent `json:"intents"`
}

func (o *Orchestrator) flushIntents() error {
	if o.cfg.IntentStatePath == "" {
		return nil
	}
	o.intentsMu.Lock()
	defer o.intentsMu.Unlock()
	snap := intentSnapshot{Intents: make([]*ProactiveIntent, 0, len(o.intents))}
	for _, i := range o.intents {
		snap.Intents = append(snap.Intents, i)
	}
	return fsutil.WriteJSONAtomic(o.cfg.IntentStatePath, snap)
}

// GetState reports orchestrator health for inspection.
func (o *Orchestrator) GetState() State {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()

	o.intentsMu.Lock()
	pending := 0
	for _, i := range o.intents {
		if i.Status == IntentPending {
			pending++
		}
	}
	deferred := o.deferredRunCount
	o.intentsMu.Unlock()

	cronJobs := 0
	if o.cfg.Cron != nil {
		cronJobs = len(o.cfg.Cron.Jobs())
	}

	return State{Running: running, CronJobs: cronJobs, PendingIntents: pending, DeferredRunCount: deferred}
}
