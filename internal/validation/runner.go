package validation

import (
	"context"
	"time"

	"github.com/vinayprograms/agentcore/internal/contracts"
)

// probeToolSpec is a minimal tool offered to the model purely to see
// whether it emits a well-formed tool call.
var probeToolSpec = contracts.ToolSpec{
	Name:        "ping",
	Description: "respond with a tool call named ping to confirm tool-calling works",
}

// Run exercises modelID's adapter with two short probe turns — one that
// expects a tool call, one that expects a plain reasoning reply — and
// persists the outcome.
func Run(ctx context.Context, store *Store, modelID string, adapter contracts.ModelAdapter) (Result, error) {
	r := Result{ModelID: modelID, LastRun: time.Now()}

	toolOK, err := probeToolCall(ctx, adapter)
	if err != nil {
		r.Error = err.Error()
	}
	r.Checks.ToolCall = &toolOK

	reasoningOK, err := probeReasoning(ctx, adapter)
	if err != nil && r.Error == "" {
		r.Error = err.Error()
	}
	r.Checks.Reasoning = &reasoningOK

	r.Passed = toolOK && reasoningOK
	if saveErr := store.Save(ctx, r); saveErr != nil {
		return r, saveErr
	}
	return r, nil
}

func probeToolCall(ctx context.Context, adapter contracts.ModelAdapter) (bool, error) {
	handle, err := adapter.CreateSession(ctx)
	if err != nil {
		return false, err
	}
	defer adapter.Close(handle)

	events, err := adapter.SendTurn(ctx, handle, []contracts.Message{
		{Role: "user", Content: "call the ping tool"},
	}, []contracts.ToolSpec{probeToolSpec}, contracts.SendOptions{})
	if err != nil {
		return false, err
	}
	for ev := range events {
		if ev.Type == contracts.EventToolCall {
			return true, nil
		}
		if ev.Type == contracts.EventError {
			return false, ev.Err
		}
		if ev.Type == contracts.EventDone {
			break
		}
	}
	return false, nil
}

func probeReasoning(ctx context.Context, adapter contracts.ModelAdapter) (bool, error) {
	handle, err := adapter.CreateSession(ctx)
	if err != nil {
		return false, err
	}
	defer adapter.Close(handle)

	events, err := adapter.SendTurn(ctx, handle, []contracts.Message{
		{Role: "user", Content: "reply with the single word ok"},
	}, nil, contracts.SendOptions{})
	if err != nil {
		return false, err
	}
	gotText := false
	for ev := range events {
		switch ev.Type {
		case contracts.EventAssistantDelta:
			if ev.Delta != "" {
				gotText = true
			}
		case contracts.EventError:
			return false, ev.Err
		case contracts.EventDone:
			return gotText, nil
		}
	}
	return gotText, nil
}
