// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the root agentcored configuration, loaded from a single TOML
// file. Every section maps onto one of the persistence-spine components:
// Profile selects the working directory and model adapter identity,
// Budget/Cron/Heartbeat/Memory/Tools tune the component of the same name.
type Config struct {
	Profile   ProfileConfig   `toml:"profile"`
	Budget    BudgetConfig    `toml:"budget"`
	Cron      CronConfig      `toml:"cron"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Memory    MemoryConfig    `toml:"memory"`
	Tools     ToolsConfig     `toml:"tools"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Queue     QueueConfig     `toml:"queue"`
}

// ProfileConfig identifies the profile root (spec.md's per-agent working
// directory) and the model adapter to drive turns with. agentcore never
// inspects Provider itself — it only reaches the ModelAdapter seam.
type ProfileConfig struct {
	Root      string `toml:"root"`        // base directory for memory/, queue/, cron-state.json, etc.
	ModelID   string `toml:"model_id"`    // opaque adapter identity, used as the validation.Store key
	Provider  string `toml:"provider"`
	APIKeyEnv string `toml:"api_key_env"` // env var holding the provider credential
	ChannelID string `toml:"channel_id"`  // default channel for heartbeat and proactive intents
}

// BudgetConfig configures the Autonomy Budget's default per-channel limits
// and quiet hours, applied unless overridden at runtime via
// Budget.SetLimits for a specific channel.
type BudgetConfig struct {
	HourlyLimit   int  `toml:"hourly_limit"`
	DailyLimit    int  `toml:"daily_limit"`
	QuietHours    bool `toml:"quiet_hours_enabled"`
	QuietStartMin int  `toml:"quiet_start_min"` // minutes since midnight UTC
	QuietEndMin   int  `toml:"quiet_end_min"`
}

// CronConfig caps concurrent cron runs across the whole service.
type CronConfig struct {
	MaxConcurrentRuns int `toml:"max_concurrent_runs"`
}

// HeartbeatConfig tunes the adaptive self-prompt interval.
type HeartbeatConfig struct {
	MinMs          int64 `toml:"min_ms"`
	MaxMs          int64 `toml:"max_ms"`
	EveryMs        int64 `toml:"every_ms"`
	ActiveHours    bool  `toml:"active_hours_enabled"`
	ActiveStartMin int   `toml:"active_start_min"`
	ActiveEndMin   int   `toml:"active_end_min"`
}

// MemoryConfig tunes the Memory Store's compaction and recall policy.
type MemoryConfig struct {
	MaxRecords          int `toml:"max_records"`
	MinAgeDays          int `toml:"min_age_days"`
	LongMemoryMaxChars  int `toml:"long_memory_max_chars"`
	EmbeddingDimensions int `toml:"embedding_dimensions"`
}

// ToolsConfig constrains what the Tool Router will execute.
type ToolsConfig struct {
	AllowedExecBins []string `toml:"allowed_exec_bins"`
	ApprovalPolicy  string   `toml:"approval_policy"` // "always" | "never" | "high-risk-only"
}

// TelemetryConfig selects the zerolog output level and encoding.
type TelemetryConfig struct {
	Level string `toml:"level"` // debug|info|warn|error
	JSON  bool   `toml:"json"`  // console writer when false
}

// QueueConfig selects the Proactive Queue's storage backend. "file" is the
// durable single-process default; "memory" is for tests and ephemeral
// runs; "nats" hands QueueItem delivery to a JetStream stream for
// at-least-once delivery across process restarts (spec.md §4.2).
type QueueConfig struct {
	Backend    string `toml:"backend"`     // "file" | "memory" | "nats"
	NATSURL    string `toml:"nats_url"`    // e.g. "nats://127.0.0.1:4222"
	NATSStream string `toml:"nats_stream"` // JetStream stream name
	NATSAckMs  int64  `toml:"nats_ack_ms"` // redelivery timeout for unacked messages
}

// New returns a Config with the defaults agentcored falls back to when a
// TOML file omits a section.
func New() *Config {
	return &Config{
		Profile: ProfileConfig{
			Root: "~/.agentcore",
		},
		Budget: BudgetConfig{
			HourlyLimit: 20,
			DailyLimit:  100,
		},
		Cron: CronConfig{
			MaxConcurrentRuns: 4,
		},
		Heartbeat: HeartbeatConfig{
			MinMs:   30_000,
			MaxMs:   30 * 60_000,
			EveryMs: 5 * 60_000,
		},
		Memory: MemoryConfig{
			MaxRecords:          5000,
			MinAgeDays:          30,
			LongMemoryMaxChars:  20_000,
			EmbeddingDimensions: 64,
		},
		Tools: ToolsConfig{
			ApprovalPolicy: "high-risk-only",
		},
		Telemetry: TelemetryConfig{
			Level: "info",
		},
		Queue: QueueConfig{
			Backend:    "file",
			NATSStream: "agentcore-queue",
			NATSAckMs:  30_000,
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file, layering it over New()'s
// defaults so a partial file is valid.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads configuration from agent.toml in the current directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return LoadFile(filepath.Join(cwd, "agent.toml"))
}

// ResolvedRoot expands a leading "~" in Profile.Root against the user's
// home directory.
func (c *Config) ResolvedRoot() (string, error) {
	root := c.Profile.Root
	if root == "" {
		root = "."
	}
	if root == "~" || (len(root) >= 2 && root[:2] == "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve profile root: %w", err)
		}
		root = filepath.Join(home, root[1:])
	}
	return root, nil
}

// APIKey returns the API key from the configured environment variable.
func (c *Config) APIKey() string {
	if c.Profile.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Profile.APIKeyEnv)
}
