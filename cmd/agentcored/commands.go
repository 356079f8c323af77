package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vinayprograms/agentcore/internal/budget"
	"github.com/vinayprograms/agentcore/internal/config"
	"github.com/vinayprograms/agentcore/internal/contracts"
	"github.com/vinayprograms/agentcore/internal/credentials"
	"github.com/vinayprograms/agentcore/internal/cron"
	"github.com/vinayprograms/agentcore/internal/heartbeat"
	"github.com/vinayprograms/agentcore/internal/idgen"
	"github.com/vinayprograms/agentcore/internal/inspect"
	"github.com/vinayprograms/agentcore/internal/lifecycle"
	"github.com/vinayprograms/agentcore/internal/memory"
	"github.com/vinayprograms/agentcore/internal/orchestrator"
	"github.com/vinayprograms/agentcore/internal/queue"
	"github.com/vinayprograms/agentcore/internal/telemetry/log"
	"github.com/vinayprograms/agentcore/internal/tools"
	"github.com/vinayprograms/agentcore/internal/tools/decisionlog"
	"github.com/vinayprograms/agentcore/internal/turn"
	"github.com/vinayprograms/agentcore/internal/validation"
	"github.com/vinayprograms/agentcore/internal/workflow"
)

// approvalGate translates the configured approval_policy string into a
// concrete tools.ApprovalGate. The Router only ever consults the gate for
// RiskHigh or RequiresApproval tools, so "never" and "high-risk-only" are
// equivalent given today's Definition set; kept distinct so a future
// per-tool-class gate has somewhere to plug in.
func approvalGate(policy string) tools.ApprovalGate {
	switch policy {
	case "always":
		return tools.AlwaysDenyApprovalGate{}
	default:
		return tools.AlwaysAllowApprovalGate{}
	}
}

// pingTool is the one built-in tool agentcored registers out of the box,
// so a freshly configured profile has something for the model to call.
func pingTool() tools.Definition {
	return tools.Definition{
		Name:      "ping",
		RiskLevel: tools.RiskLow,
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return "pong", nil
		},
	}
}

// openQueueBackend constructs the Proactive Queue backend selected by
// cfg.Backend, defaulting to the durable file backend when unset so a
// freshly configured profile needs no [queue] section at all.
func openQueueBackend(ctx context.Context, cfg config.QueueConfig, root string) (queue.Backend, error) {
	switch cfg.Backend {
	case "", "file":
		return queue.NewFileBackend(filepath.Join(root, "queue"))
	case "memory":
		return queue.NewMemoryBackend(), nil
	case "nats":
		ackTimeout := time.Duration(cfg.NATSAckMs) * time.Millisecond
		if ackTimeout <= 0 {
			ackTimeout = 30 * time.Second
		}
		return queue.NewNATSBackend(ctx, cfg.NATSURL, cfg.NATSStream, ackTimeout)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// daemon bundles every long-lived component run wires together, so the
// inspect dashboard and the orchestrator can share one Source.
type daemon struct {
	orch   *orchestrator.Orchestrator
	cron   *cron.Service
	bud    *budget.Budget
	queueB queue.Backend
	chanID string
}

func (d *daemon) Snapshot() inspect.Snapshot {
	state := d.orch.GetState()

	jobs := d.cron.Jobs()
	cronViews := make([]inspect.CronJobView, 0, len(jobs))
	for _, j := range jobs {
		cronViews = append(cronViews, inspect.CronJobView{
			ID:         j.ID,
			Type:       string(j.Type),
			Expression: j.Expression,
			NextRunAt:  time.UnixMilli(j.NextRunAt),
		})
	}

	now := time.Now()
	budgetViews := make([]inspect.BudgetChannelView, 0, len(d.bud.ChannelIDs()))
	for _, id := range d.bud.ChannelIDs() {
		hourlyUsed, dailyUsed := d.bud.ChannelUsage(id, now)
		limits := d.bud.LimitsFor(id)
		budgetViews = append(budgetViews, inspect.BudgetChannelView{
			ChannelID:  id,
			HourlyUsed: hourlyUsed,
			HourlyMax:  limits.HourlyMax,
			DailyUsed:  dailyUsed,
			DailyMax:   limits.DailyMax,
		})
	}

	queueDepth := 0
	if pending, err := d.queueB.ListPending(d.chanID); err == nil {
		queueDepth = len(pending)
	}

	return inspect.Snapshot{
		Running:          state.Running,
		DeferredRunCount: state.DeferredRunCount,
		PendingIntents:   state.PendingIntents,
		CronJobs:         cronViews,
		BudgetChannels:   budgetViews,
		QueueDepth:       queueDepth,
		TakenAt:          now,
	}
}

// Run starts the orchestrator and every scheduler it owns, blocking until
// interrupted (or, with --inspect, until the dashboard is quit).
func (c *RunCmd) Run(g *Globals) error {
	cfg, root := g.Config, g.Root
	logger := log.Component("agentcored")

	memStore := memory.New(root)
	queueBackend, err := openQueueBackend(context.Background(), cfg.Queue, root)
	if err != nil {
		return err
	}
	defer queueBackend.Close()
	stream := lifecycle.New(0)
	decisionLogs, err := decisionlog.NewStore(filepath.Join(root, "decisionlog"))
	if err != nil {
		return err
	}

	credentialsDir := filepath.Join(root, "credentials")
	if err := os.MkdirAll(credentialsDir, 0o755); err != nil {
		return err
	}
	credWatcher, err := credentials.WatchCredentials(credentialsDir, func() {
		logger.Info().Msg("credentials rotation detected; adapter layer should reload")
	})
	if err != nil {
		return err
	}
	defer credWatcher.Close()
	policy := tools.NewAllowlistPolicy(cfg.Tools.AllowedExecBins, []string{"rm -rf /", "drop table"})
	router := tools.New(approvalGate(cfg.Tools.ApprovalPolicy), policy, tools.ChildProcessSandbox{}, decisionLogs, cfg.Tools.AllowedExecBins)
	router.Register(pingTool())

	adapter := contracts.EchoAdapter{}

	validationStore, err := validation.Open(root)
	if err != nil {
		return err
	}
	defer validationStore.Close()
	if cfg.Profile.ModelID != "" {
		if _, err := validation.Run(context.Background(), validationStore, cfg.Profile.ModelID, adapter); err != nil {
			logger.Warn().Err(err).Msg("model self-check failed")
		}
	}

	turnRuntime := turn.New(turn.Config{
		Adapter:     adapter,
		Tools:       router,
		Stream:      stream,
		Memory:      memStore,
		Scrubber:    contracts.NoopScrubber{},
		SnapshotDir: filepath.Join(root, "snapshots"),
	})

	channelID := cfg.Profile.ChannelID
	if channelID == "" {
		channelID = "default"
	}

	bud := budget.New(filepath.Join(root, "autonomy-state.json"), budget.Limits{
		HourlyMax: cfg.Budget.HourlyLimit,
		DailyMax:  cfg.Budget.DailyLimit,
		QuietHours: budget.QuietHours{
			Enabled:  cfg.Budget.QuietHours,
			StartMin: cfg.Budget.QuietStartMin,
			EndMin:   cfg.Budget.QuietEndMin,
		},
	})
	_ = bud.Load()

	cronService := cron.New(filepath.Join(root, "cron-state.json"), cfg.Cron.MaxConcurrentRuns)
	_ = cronService.Load()

	workflowStore, err := workflow.NewStore(filepath.Join(root, "workflow"))
	if err != nil {
		return err
	}
	workflowRunner := workflow.NewRunner(workflowStore)

	runSelfPrompt := func(ctx context.Context, sessionID, text string) (turn.Outcome, error) {
		return turnRuntime.RunTurn(ctx, turn.Request{
			Session: turn.Session{SessionID: sessionID, ChannelID: channelID, ChannelKind: "autonomy"},
			Messages: []contracts.Message{
				{Role: "system", Content: text},
			},
			RunID: idgen.NewUUID(),
			Tools: []contracts.ToolSpec{{Name: "ping", Description: "liveness probe"}},
		})
	}

	heartbeatRunner := heartbeat.NewRunner(heartbeat.Config{
		MinMs:   cfg.Heartbeat.MinMs,
		MaxMs:   cfg.Heartbeat.MaxMs,
		EveryMs: cfg.Heartbeat.EveryMs,
		ActiveHours: heartbeat.ActiveHours{
			Enabled:  cfg.Heartbeat.ActiveHours,
			StartMin: cfg.Heartbeat.ActiveStartMin,
			EndMin:   cfg.Heartbeat.ActiveEndMin,
		},
	}, channelID, bud, func(ctx context.Context, chID string) (heartbeat.Result, error) {
		outcome, err := runSelfPrompt(ctx, "heartbeat-"+chID, "Autonomous heartbeat check-in: review pending intents and act if warranted.")
		if err != nil {
			return heartbeat.ResultOK, err
		}
		if outcome.Failed {
			return heartbeat.ResultOK, fmt.Errorf("heartbeat turn failed: %s", outcome.ReasonCode)
		}
		if outcome.FinalText == "" {
			return heartbeat.ResultOK, nil
		}
		return heartbeat.ResultSent, nil
	})

	orch := orchestrator.New(orchestrator.Config{
		Cron:            cronService,
		Heartbeats:      []*heartbeat.Runner{heartbeatRunner},
		Budget:          bud,
		Workflows:       workflowRunner,
		IntentStatePath: filepath.Join(root, "intents.json"),
		IntegrityScan: func(ctx context.Context) error {
			findings, err := memStore.IntegrityScan()
			if err != nil {
				return err
			}
			for _, f := range findings {
				logger.Warn().Str("kind", string(f.Kind)).Str("record_id", f.RecordID).Msg(f.Detail)
			}
			failing, err := validationStore.ListFailing(ctx)
			if err != nil {
				return err
			}
			for _, r := range failing {
				logger.Warn().Str("model_id", r.ModelID).Str("error", r.Error).Msg("model self-check failing; re-validation needed")
			}
			return nil
		},
		OnCronRun: func(job *cron.Job) error {
			outcome, err := runSelfPrompt(context.Background(), "cron-"+job.ID, fmt.Sprintf("Scheduled job %q fired (%s %s).", job.ID, job.Type, job.Expression))
			if err != nil {
				return err
			}
			if outcome.Failed {
				return fmt.Errorf("cron turn failed: %s", outcome.ReasonCode)
			}
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	logger.Info().Str("root", root).Msg("agentcored running")

	d := &daemon{orch: orch, cron: cronService, bud: bud, queueB: queueBackend, chanID: channelID}

	if c.Inspect {
		if _, err := inspect.NewProgram(d, time.Second).Run(); err != nil {
			_ = orch.Stop()
			return err
		}
		return orch.Stop()
	}

	<-ctx.Done()
	logger.Info().Msg("agentcored shutting down")
	return orch.Stop()
}

// Run adds a job to the persisted cron state and reports its computed
// next run time.
func (c *CronAddCmd) Run(g *Globals) error {
	if err := cron.ValidateExpression(cron.Kind(c.Type), c.Expression); err != nil {
		return err
	}
	svc := cron.New(filepath.Join(g.Root, "cron-state.json"), g.Config.Cron.MaxConcurrentRuns)
	_ = svc.Load()
	job := &cron.Job{
		ID:         c.ID,
		Type:       cron.Kind(c.Type),
		Expression: c.Expression,
		Isolated:   c.Isolated,
		MaxRetries: c.MaxRetries,
	}
	if err := svc.AddJob(job); err != nil {
		return err
	}
	fmt.Printf("added %s (%s %s), next run %s\n", job.ID, job.Type, job.Expression, time.UnixMilli(job.NextRunAt).Format(time.RFC3339))
	return nil
}

// Run lists every persisted cron job.
func (c *CronListCmd) Run(g *Globals) error {
	svc := cron.New(filepath.Join(g.Root, "cron-state.json"), g.Config.Cron.MaxConcurrentRuns)
	if err := svc.Load(); err != nil {
		return err
	}
	for _, job := range svc.Jobs() {
		fmt.Printf("%-20s %-6s %-30s next %s\n", job.ID, job.Type, job.Expression, time.UnixMilli(job.NextRunAt).Format(time.RFC3339))
	}
	return nil
}

// Run removes a persisted cron job by id.
func (c *CronRmCmd) Run(g *Globals) error {
	svc := cron.New(filepath.Join(g.Root, "cron-state.json"), g.Config.Cron.MaxConcurrentRuns)
	_ = svc.Load()
	if err := svc.RemoveJob(c.ID); err != nil {
		return err
	}
	fmt.Printf("removed %s\n", c.ID)
	return nil
}

// Run scans MEMORY.md and prints every finding.
func (c *MemoryIntegrityScanCmd) Run(g *Globals) error {
	store := memory.New(g.Root)
	findings, err := store.IntegrityScan()
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		fmt.Println("no findings")
		return nil
	}
	for _, f := range findings {
		fmt.Printf("line %d: %s %s — %s\n", f.Line, f.Kind, f.RecordID, f.Detail)
	}
	return nil
}

// Run compacts memory into LONGMEMORY.md per the configured thresholds.
func (c *MemoryCompactCmd) Run(g *Globals) error {
	store := memory.New(g.Root)
	maxRecords := g.Config.Memory.MaxRecords
	if c.MaxRecords > 0 {
		maxRecords = c.MaxRecords
	}
	result, err := store.Compact(memory.CompactOptions{
		MinAgeDays:         g.Config.Memory.MinAgeDays,
		MaxRecords:         maxRecords,
		LongMemoryMaxChars: g.Config.Memory.LongMemoryMaxChars,
	})
	if err != nil {
		return err
	}
	if !result.Ran {
		fmt.Printf("skipped: %s\n", result.Reason)
		return nil
	}
	fmt.Printf("compacted %d records, %d remain\n", result.RecordsCompacted, result.RecordsAfter)
	return nil
}

// Run prints the persisted WorkflowState for one (definitionId,
// idempotencyKey) run.
func (c *WorkflowStatusCmd) Run(g *Globals) error {
	store, err := workflow.NewStore(filepath.Join(g.Root, "workflow"))
	if err != nil {
		return err
	}
	state, err := store.Load(c.DefinitionID, c.IdempotencyKey)
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Println("no run found")
		return nil
	}
	fmt.Printf("%s/%s: %s\n", state.DefinitionID, state.IdempotencyKey, state.Status)
	for _, s := range state.Steps {
		line := fmt.Sprintf("  %-20s %s", s.ID, s.Status)
		if s.Error != "" {
			line += " (" + s.Error + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// Run prints build metadata.
func (c *VersionCmd) Run(g *Globals) error {
	fmt.Printf("agentcored %s (commit %s, built %s)\n", version, commit, buildTime)
	return nil
}
