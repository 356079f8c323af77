package turn

import (
	"context"
	"time"
)

// Artifact is a piece of context a collector plugin contributes.
type Artifact struct {
	Source string
	Data   map[string]any
}

// Insight is what an analyzer derives from one or more artifacts.
type Insight struct {
	Summary string
	Data    map[string]any
}

// Collector gathers artifacts for a turn, bounded by TimeoutMs (default
// 2500ms per spec.md §4.9).
type Collector interface {
	Name() string
	Collect(ctx context.Context, req PromptRequest) (Artifact, error)
	TimeoutMs() int
}

// Analyzer transforms collected artifacts into insights.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, artifacts []Artifact) (Insight, error)
}

// Synthesizer turns insights into additional system messages appended to
// the prompt.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, insights []Insight) (string, error)
}

func (r *Runtime) runCollectors(ctx context.Context, req PromptRequest) []Artifact {
	var artifacts []Artifact
	for _, c := range r.collectors {
		timeout := c.TimeoutMs()
		if timeout <= 0 {
			timeout = defaultPluginTimeoutMs
		}
		cctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Millisecond)
		artifact, err := c.Collect(cctx, req)
		cancel()
		if err != nil {
			// Plugin failures are isolated: the artifact is dropped, not the turn.
			r.logger.Warn().Str("collector", c.Name()).Err(err).Msg("collector failed; artifact dropped")
			continue
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts
}

func (r *Runtime) runAnalyzers(ctx context.Context, artifacts []Artifact) []Insight {
	var insights []Insight
	for _, a := range r.analyzers {
		insight, err := a.Analyze(ctx, artifacts)
		if err != nil {
			r.logger.Warn().Str("analyzer", a.Name()).Err(err).Msg("analyzer failed; insight dropped")
			continue
		}
		insights = append(insights, insight)
	}
	return insights
}

func (r *Runtime) runSynthesizers(ctx context.Context, insights []Insight) []string {
	var notes []string
	for _, s := range r.synthesizers {
		note, err := s.Synthesize(ctx, insights)
		if err != nil {
			r.logger.Warn().Str("synthesizer", s.Name()).Err(err).Msg("synthesizer failed; note dropped")
			continue
		}
		if note != "" {
			notes = append(notes, note)
		}
	}
	return notes
}
