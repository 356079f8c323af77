// Package turn implements the Turn Runtime from spec.md §4.9: prompt
// assembly (memory context + plugin pipeline + context-drift policy),
// model streaming through contracts.ModelAdapter with lifecycle event
// emission, tool dispatch through contracts.ToolRouter, reasoning-reset
// bookkeeping, and completion/cancellation handling that never leaves a
// partial memory record. Grounded on vinayprograms-agent's deleted
// internal/executor turn loop for the suspend-on-event streaming shape,
// generalized from a single-provider executor to the contracts.ModelAdapter
// seam.
package turn

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/agentcore/internal/agenterr"
	"github.com/vinayprograms/agentcore/internal/contracts"
	"github.com/vinayprograms/agentcore/internal/idgen"
	"github.com/vinayprograms/agentcore/internal/memory"
	"github.com/vinayprograms/agentcore/internal/reliability"
	"github.com/vinayprograms/agentcore/internal/telemetry/log"
	agentotel "github.com/vinayprograms/agentcore/internal/telemetry/otel"
)

const defaultPluginTimeoutMs = 2500
const defaultReasoningResetThreshold = 6
const defaultMaxConcurrentTurns = 8

// Session is the minimal session context the runtime needs (spec.md §3
// SessionContext).
type Session struct {
	SessionID   string
	ChannelID   string
	ChannelKind string
	UserID      string
}

// Request is the input to RunTurn (spec.md §4.9: "runTurn({session,
// messages, runId})").
type Request struct {
	Session  Session
	Messages []contracts.Message
	RunID    string
	Tools    []contracts.ToolSpec
}

// Outcome is what RunTurn returns once the turn reaches a terminal state.
type Outcome struct {
	FinalText string
	Failed    bool
	ReasonCode string
}

// Runtime executes single turns against a ModelAdapter, ToolRouter, and
// LifecycleStream, with memory and snapshotting wired in.
type Runtime struct {
	adapter  contracts.ModelAdapter
	tools    contracts.ToolRouter
	stream   contracts.LifecycleStream
	memory   *memory.Store
	scrubber contracts.PrivacyScrubber
	resetCtl *reliability.ReasoningResetController

	collectors   []Collector
	analyzers    []Analyzer
	synthesizers []Synthesizer

	snapshotDir string
	logger      zerolog.Logger
	tracer      trace.Tracer

	// sessionLocks serializes RunTurn calls per sessionId (spec.md §5: "at
	// most one turn per session in flight"); workerSem bounds how many
	// sessions may be mid-turn at once across the whole runtime ("different
	// sessions run in parallel up to a global worker cap").
	sessionLocks sync.Map
	workerSem    chan struct{}
}

// Config wires a Runtime's collaborators.
type Config struct {
	Adapter     contracts.ModelAdapter
	Tools       contracts.ToolRouter
	Stream      contracts.LifecycleStream
	Memory      *memory.Store
	Scrubber    contracts.PrivacyScrubber
	ResetCtl    *reliability.ReasoningResetController
	SnapshotDir string // empty disables snapshotting

	// MaxConcurrentTurns bounds how many sessions may have a turn in flight
	// at once; 0 uses defaultMaxConcurrentTurns.
	MaxConcurrentTurns int

	Collectors   []Collector
	Analyzers    []Analyzer
	Synthesizers []Synthesizer
}

// New builds a Runtime from cfg.
func New(cfg Config) *Runtime {
	resetCtl := cfg.ResetCtl
	if resetCtl == nil {
		resetCtl = reliability.NewReasoningResetController(defaultReasoningResetThreshold)
	}
	workerCap := cfg.MaxConcurrentTurns
	if workerCap <= 0 {
		workerCap = defaultMaxConcurrentTurns
	}
	return &Runtime{
		adapter:      cfg.Adapter,
		tools:        cfg.Tools,
		stream:       cfg.Stream,
		memory:       cfg.Memory,
		scrubber:     cfg.Scrubber,
		resetCtl:     resetCtl,
		collectors:   cfg.Collectors,
		analyzers:    cfg.Analyzers,
		synthesizers: cfg.Synthesizers,
		snapshotDir:  cfg.SnapshotDir,
		logger:       log.Component("turn"),
		tracer:       agentotel.Tracer("agentcore/turn"),
		workerSem:    make(chan struct{}, workerCap),
	}
}

// sessionLock returns the mutex serializing turns for sessionID, creating
// it on first use.
func (r *Runtime) sessionLock(sessionID string) *sync.Mutex {
	v, _ := r.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (r *Runtime) emit(sessionID, runID string, typ contracts.LifecycleEventType, reasonCode string, payload map[string]any) {
	if r.stream == nil {
		return
	}
	r.stream.Push(contracts.LifecycleEvent{
		Type:       typ,
		SessionID:  sessionID,
		RunID:      runID,
		At:         time.Now().UnixMilli(),
		ReasonCode: reasonCode,
		Payload:    payload,
	})
}

// RunTurn executes one turn end to end (spec.md §4.9). At most one turn
// per session runs at a time; across sessions, at most workerCap turns run
// concurrently (spec.md §5).
func (r *Runtime) RunTurn(ctx context.Context, req Request) (Outcome, error) {
	ctx, span := r.tracer.Start(ctx, "turn.duration")
	defer span.End()

	sessionID := req.Session.SessionID

	select {
	case r.workerSem <- struct{}{}:
	case <-ctx.Done():
		return Outcome{Failed: true, ReasonCode: "cancelled"}, agenterr.New(agenterr.KindTimeout, "cancelled", "turn cancelled waiting for a worker slot")
	}
	defer func() { <-r.workerSem }()

	lock := r.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	runID := req.RunID
	if runID == "" {
		runID = idgen.NewUUID()
	}

	r.emit(sessionID, runID, contracts.LifecycleQueued, "", nil)
	r.emit(sessionID, runID, contracts.LifecycleStarted, "", nil)

	prompt := r.assemblePrompt(ctx, sessionID, req.Messages)

	snapshot := newTurnSnapshot(sessionID, runID, prompt)

	handle, err := r.adapter.CreateSession(ctx)
	if err != nil {
		return r.fail(sessionID, runID, agenterr.KindTransient, "MODEL_SESSION_FAILED", err, snapshot)
	}
	defer r.adapter.Close(handle)

	outcome, err := r.runStream(ctx, handle, sessionID, runID, prompt, req.Tools, snapshot)
	return outcome, err
}

// runStream drives the adapter's event stream, dispatching tool calls and
// accumulating the assistant's text, until a terminal event or
// cancellation (spec.md §4.9 steps 3-5).
func (r *Runtime) runStream(ctx context.Context, handle contracts.Handle, sessionID, runID string, messages []contracts.Message, tools []contracts.ToolSpec, snapshot *turnSnapshot) (Outcome, error) {
	var assistantText strings.Builder

	for {
		events, err := r.adapter.SendTurn(ctx, handle, messages, tools, contracts.SendOptions{})
		if err != nil {
			return r.fail(sessionID, runID, agenterr.KindTransient, "MODEL_STREAM_FAILED", err, snapshot)
		}

		toolResult, terminal, outcome, err := r.consumeStream(ctx, events, sessionID, runID, &assistantText, snapshot)
		if terminal {
			return outcome, err
		}
		if ctx.Err() != nil {
			return r.cancel(sessionID, runID, snapshot)
		}

		// A tool call suspended the stream: feed its result back as the
		// next turn's tool message and continue the loop.
		messages = append(messages, contracts.Message{Role: "assistant", Content: assistantText.String()})
		messages = append(messages, toolResult)
		assistantText.Reset()

		if r.resetCtl.NoteToolCall(sessionID) {
			messages = append(messages, contracts.Message{Role: "system", Content: "reset reasoning"})
		}
	}
}

// consumeStream drains one SendTurn stream until it yields a tool call
// (returns terminal=false with the tool-result message to feed back) or a
// terminal done/error event (terminal=true).
func (r *Runtime) consumeStream(ctx context.Context, events <-chan contracts.AdapterEvent, sessionID, runID string, assistantText *strings.Builder, snapshot *turnSnapshot) (toolResultMsg contracts.Message, terminal bool, outcome Outcome, err error) {
	for {
		if ctx.Err() != nil {
			outcome, err = r.cancel(sessionID, runID, snapshot)
			return contracts.Message{}, true, outcome, err
		}
		select {
		case <-ctx.Done():
			outcome, err = r.cancel(sessionID, runID, snapshot)
			return contracts.Message{}, true, outcome, err
		case ev, ok := <-events:
			if !ok {
				outcome, err = r.fail(sessionID, runID, agenterr.KindTransient, "MODEL_STREAM_CLOSED", fmt.Errorf("event stream closed without done"), snapshot)
				return contracts.Message{}, true, outcome, err
			}
			switch ev.Type {
			case contracts.EventAssistantDelta:
				assistantText.WriteString(ev.Delta)
				r.emit(sessionID, runID, contracts.LifecycleAssistant, "", map[string]any{"delta": ev.Delta})
			case contracts.EventToolCall:
				msg := r.dispatchTool(ctx, sessionID, runID, ev.ToolCall, snapshot)
				return msg, false, Outcome{}, nil
			case contracts.EventUsage:
				// usage accounting is surfaced via lifecycle payload only
				r.emit(sessionID, runID, contracts.LifecycleAssistant, "", map[string]any{"usage": ev.Usage})
			case contracts.EventError:
				outcome, err = r.fail(sessionID, runID, agenterr.KindTransient, "MODEL_EVENT_ERROR", ev.Err, snapshot)
				return contracts.Message{}, true, outcome, err
			case contracts.EventDone:
				text := assistantText.String()
				snapshot.FinalText = text
				r.completeTurn(sessionID, runID, text)
				r.writeSnapshot(snapshot)
				return contracts.Message{}, true, Outcome{FinalText: text}, nil
			}
		}
	}
}

func (r *Runtime) dispatchTool(ctx context.Context, sessionID, runID string, call *contracts.ToolCall, snapshot *turnSnapshot) contracts.Message {
	r.emit(sessionID, runID, contracts.LifecycleTool, "", map[string]any{"tool": call.Name})
	snapshot.ToolCalls = append(snapshot.ToolCalls, call.Name)

	if r.tools == nil {
		return contracts.Message{Role: "tool", Name: call.Name, Content: "no tool router configured"}
	}

	var logs []contracts.PolicyDecision
	result, err := r.tools.Execute(*call, contracts.ToolCallCtx{
		Context:      ctx,
		SessionID:    sessionID,
		RunID:        runID,
		DecisionLogs: &logs,
	})
	if err != nil {
		reasonCode := result.ReasonCode
		if reasonCode == "" {
			reasonCode = "TOOL_ERROR"
		}
		return contracts.Message{Role: "tool", Name: call.Name, Content: fmt.Sprintf("error: %s", reasonCode)}
	}
	return contracts.Message{Role: "tool", Name: call.Name, Content: fmt.Sprintf("%v", result.Output)}
}

// completeTurn records a turn-summary memory record and emits completed
// (spec.md §4.9 step 4); its caller writes the snapshot.
func (r *Runtime) completeTurn(sessionID, runID, finalText string) {
	if r.memory != nil && finalText != "" {
		text := finalText
		if r.scrubber != nil {
			text = r.scrubber.ScrubText(contracts.ScrubRequest{Text: text, ScopeID: sessionID})
		}
		_ = r.memory.Append(memory.Record{
			ID:        idgen.NewULID(),
			SessionID: sessionID,
			Category:  memory.CategoryTurnSummary,
			Text:      text,
			Provenance: memory.Provenance{
				SourceChannel: "turn-runtime",
				Confidence:    1,
				Timestamp:     time.Now(),
				Sensitivity:   memory.SensitivityPrivateUser,
			},
		})
	}
	r.emit(sessionID, runID, contracts.LifecycleCompleted, "", nil)
}

// fail emits a failed lifecycle event with a redacted message and returns
// a failed Outcome.
func (r *Runtime) fail(sessionID, runID string, kind agenterr.Kind, code string, cause error, snapshot *turnSnapshot) (Outcome, error) {
	message := "turn failed"
	if cause != nil {
		message = cause.Error()
	}
	if r.scrubber != nil {
		message = r.scrubber.ScrubText(contracts.ScrubRequest{Text: message, ScopeID: sessionID})
	}
	r.emit(sessionID, runID, contracts.LifecycleFailed, code, map[string]any{"message": message})
	r.writeSnapshot(snapshot)
	return Outcome{Failed: true, ReasonCode: code}, agenterr.Wrap(kind, code, message, cause)
}

// cancel handles cooperative cancellation: no memory record is written
// (spec.md §4.9 step 5, §5).
func (r *Runtime) cancel(sessionID, runID string, snapshot *turnSnapshot) (Outcome, error) {
	r.emit(sessionID, runID, contracts.LifecycleFailed, "cancelled", nil)
	r.writeSnapshot(snapshot)
	return Outcome{Failed: true, ReasonCode: "cancelled"}, agenterr.New(agenterr.KindTimeout, "cancelled", "turn cancelled")
}
