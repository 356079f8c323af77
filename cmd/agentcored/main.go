// Package main is the entry point for the agentcored headless agent
// process, wired the way vinayprograms-agent's cmd/agent/main.go wires its
// own components, except this one actually calls kong.Parse: the teacher's
// own cli.go kong struct was never reached by its main.go dispatch, which
// hand-rolled an os.Args switch instead.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/vinayprograms/agentcore/internal/config"
	"github.com/vinayprograms/agentcore/internal/telemetry/log"
	"github.com/vinayprograms/agentcore/internal/telemetry/otel"
)

// Build-time variables (set via ldflags).
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func init() {
	_ = godotenv.Load()
	otel.Register(otel.NewTracerProvider())
}

// Globals are the dependencies every leaf command's Run method can ask
// kong to inject.
type Globals struct {
	Config *config.Config
	Root   string
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli, kongVars(),
		kong.Name("agentcored"),
		kong.Description("Single-profile autonomous agent runtime: cron, heartbeat, proactive intents, and turn execution over a durable memory/queue/workflow substrate."),
		kong.UsageOnError(),
	)

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		kctx.FatalIfErrorf(err)
	}
	configureLogging(cfg)

	root, err := cfg.ResolvedRoot()
	if err != nil {
		kctx.FatalIfErrorf(err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		kctx.FatalIfErrorf(fmt.Errorf("create profile root %s: %w", root, err))
	}

	err = kctx.Run(&Globals{Config: cfg, Root: root})
	kctx.FatalIfErrorf(err)
}

// loadConfig reads path if present, falling back to New()'s defaults
// when the file doesn't exist so agentcored can start with zero config.
func loadConfig(path string) (*config.Config, error) {
	if _, statErr := os.Stat(path); statErr != nil {
		return config.New(), nil
	}
	return config.LoadFile(path)
}

func configureLogging(cfg *config.Config) {
	if !cfg.Telemetry.JSON {
		log.SetOutput(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	level, err := zerolog.ParseLevel(cfg.Telemetry.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.SetLevel(level)
}
