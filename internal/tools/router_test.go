package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/agentcore/internal/agenterr"
	"github.com/vinayprograms/agentcore/internal/contracts"
	"github.com/vinayprograms/agentcore/internal/tools/decisionlog"
)

func newTestRouter(t *testing.T, gate ApprovalGate) *Router {
	logs, err := decisionlog.NewStore(t.TempDir())
	require.NoError(t, err)
	return New(gate, nil, ChildProcessSandbox{}, logs, nil)
}

func echoTool() Definition {
	return Definition{
		Name:      "echo",
		RiskLevel: RiskLow,
		Schema: map[string]any{
			"type":                 "object",
			"required":             []any{"text"},
			"additionalProperties": false,
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		},
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := newTestRouter(t, AlwaysAllowApprovalGate{})
	var logs []contracts.PolicyDecision
	_, err := r.Execute(contracts.ToolCall{Name: "nope"}, contracts.ToolCallCtx{Context: context.Background(), DecisionLogs: &logs})
	require.True(t, agenterr.Is(err, agenterr.KindSchemaInvalid))
	require.Len(t, logs, 1)
	require.Equal(t, agenterr.CodeToolUnknown, logs[0].ReasonCode)
}

func TestExecuteSchemaInvalid(t *testing.T) {
	r := newTestRouter(t, AlwaysAllowApprovalGate{})
	r.Register(echoTool())
	var logs []contracts.PolicyDecision
	_, err := r.Execute(contracts.ToolCall{Name: "echo", Args: map[string]any{}}, contracts.ToolCallCtx{Context: context.Background(), DecisionLogs: &logs})
	require.True(t, agenterr.Is(err, agenterr.KindSchemaInvalid))
}

func TestExecuteSucceeds(t *testing.T) {
	r := newTestRouter(t, AlwaysAllowApprovalGate{})
	r.Register(echoTool())
	var logs []contracts.PolicyDecision
	result, err := r.Execute(contracts.ToolCall{Name: "echo", Args: map[string]any{"text": "hi"}}, contracts.ToolCallCtx{Context: context.Background(), DecisionLogs: &logs})
	require.NoError(t, err)
	require.Equal(t, "hi", result.Output)
	require.Equal(t, "allow", logs[0].Decision)
}

func TestHighRiskToolRequiresApproval(t *testing.T) {
	r := newTestRouter(t, AlwaysDenyApprovalGate{})
	def := echoTool()
	def.RiskLevel = RiskHigh
	r.Register(def)

	var logs []contracts.PolicyDecision
	var sideEffect bool
	def.Execute = func(ctx context.Context, args map[string]any) (any, error) {
		sideEffect = true
		return nil, nil
	}
	r.Register(def)

	_, err := r.Execute(contracts.ToolCall{Name: "echo", Args: map[string]any{"text": "hi"}}, contracts.ToolCallCtx{Context: context.Background(), DecisionLogs: &logs})
	require.True(t, agenterr.Is(err, agenterr.KindPolicyDenied))
	require.False(t, sideEffect, "tool must not run its side effect when approval is denied")
	require.Equal(t, agenterr.CodeToolApprovalRequired, logs[0].ReasonCode)
}

func TestPolicyDenialBlocksDestructivePattern(t *testing.T) {
	policy := NewAllowlistPolicy(nil, []string{"rm -rf"})
	logs, err := decisionlog.NewStore(t.TempDir())
	require.NoError(t, err)
	r := New(AlwaysAllowApprovalGate{}, policy, ChildProcessSandbox{}, logs, nil)
	def := echoTool()
	r.Register(def)

	var decisions []contracts.PolicyDecision
	_, err = r.Execute(contracts.ToolCall{Name: "echo", Args: map[string]any{"text": "rm -rf /"}}, contracts.ToolCallCtx{Context: context.Background(), DecisionLogs: &decisions})
	require.True(t, agenterr.Is(err, agenterr.KindPolicyDenied))
}

func TestExecClassRequiresAllowedBinary(t *testing.T) {
	logs, err := decisionlog.NewStore(t.TempDir())
	require.NoError(t, err)
	r := New(AlwaysAllowApprovalGate{}, nil, ChildProcessSandbox{}, logs, []string{"ls"})
	r.Register(Definition{
		Name:        "run_cat",
		RiskLevel:   RiskLow,
		IsExecClass: true,
		ExecBinary:  "cat",
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, nil
		},
	})

	var decisions []contracts.PolicyDecision
	_, err = r.Execute(contracts.ToolCall{Name: "run_cat"}, contracts.ToolCallCtx{Context: context.Background(), DecisionLogs: &decisions})
	require.True(t, agenterr.Is(err, agenterr.KindPolicyDenied))
	require.Equal(t, agenterr.CodeToolDestructiveDenied, decisions[0].ReasonCode)
}
