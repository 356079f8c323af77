// Package main defines the command-line interface for agentcored, the
// agentcore process entrypoint, using the same struct-tag kong style as
// vinayprograms-agent's cmd/agent/cli.go.
package main

import "github.com/alecthomas/kong"

// CLI is the top-level command structure.
type CLI struct {
	Config string `short:"c" default:"agent.toml" help:"Path to agent.toml (defaults are used if absent)"`

	Run      RunCmd      `cmd:"" help:"Start the orchestrator against the configured profile root"`
	Cron     CronCmd     `cmd:"" help:"Manage cron jobs"`
	Memory   MemoryCmd   `cmd:"" help:"Manage the memory store"`
	Workflow WorkflowCmd `cmd:"" help:"Inspect workflow run state"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// RunCmd starts the Autonomy Orchestrator and its schedulers.
type RunCmd struct {
	Inspect bool `help:"Also launch the live terminal dashboard in this process"`
}

// CronCmd groups cron job management subcommands.
type CronCmd struct {
	Add  CronAddCmd  `cmd:"" help:"Add a cron job"`
	List CronListCmd `cmd:"" help:"List cron jobs"`
	Rm   CronRmCmd   `cmd:"" help:"Remove a cron job"`
}

// CronAddCmd registers a new job.
type CronAddCmd struct {
	ID         string `arg:"" help:"Job id"`
	Type       string `arg:"" help:"at|every|cron"`
	Expression string `arg:"" help:"Expression matching Type (ISO-8601, duration, or 5-field cron)"`
	Isolated   bool   `help:"Skip a tick if the previous run of this job is still in flight"`
	MaxRetries int    `default:"3" help:"Retries on failure before giving up"`
}

// CronListCmd prints every registered job and its next run time.
type CronListCmd struct{}

// CronRmCmd removes a job by id.
type CronRmCmd struct {
	ID string `arg:"" help:"Job id to remove"`
}

// MemoryCmd groups memory-store maintenance subcommands.
type MemoryCmd struct {
	IntegrityScan MemoryIntegrityScanCmd `cmd:"integrity-scan" help:"Scan MEMORY.md for duplicate/oversized/future-dated records"`
	Compact       MemoryCompactCmd       `cmd:"compact" help:"Compact memory into LONGMEMORY.md"`
}

// MemoryIntegrityScanCmd runs Store.IntegrityScan and prints findings.
type MemoryIntegrityScanCmd struct{}

// MemoryCompactCmd runs Store.Compact.
type MemoryCompactCmd struct {
	MaxRecords int `help:"Override configured max_records for this run"`
}

// WorkflowCmd groups workflow inspection subcommands.
type WorkflowCmd struct {
	Status WorkflowStatusCmd `cmd:"" help:"Show a workflow run's step states"`
}

// WorkflowStatusCmd prints the persisted WorkflowState for one run.
type WorkflowStatusCmd struct {
	DefinitionID   string `arg:"" help:"Workflow definition id"`
	IdempotencyKey string `arg:"" help:"Idempotency key for the run"`
}

// VersionCmd prints build metadata.
type VersionCmd struct{}

func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
