// Package tools implements the Tool Router from spec.md §4.4: a registry
// of ToolDefinitions gated by schema validation, policy, and approval,
// executed with a timeout, and audited via decisionlog. Ordering and
// per-tool-class timeout handling are grounded in the teacher's
// internal/executor/tools.go (executeTool): security check, then
// correlation-id logging, then dispatch, then result logging.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vinayprograms/agentcore/internal/agenterr"
	"github.com/vinayprograms/agentcore/internal/contracts"
	"github.com/vinayprograms/agentcore/internal/idgen"
	"github.com/vinayprograms/agentcore/internal/telemetry/log"
	"github.com/vinayprograms/agentcore/internal/tools/decisionlog"
)

// RiskLevel classifies how cautiously a tool call must be treated.
type RiskLevel string

const (
	RiskLow  RiskLevel = "low"
	RiskHigh RiskLevel = "high"
)

// ExecuteFunc runs a tool call's actual side effect.
type ExecuteFunc func(ctx context.Context, args map[string]any) (any, error)

// Definition is one registered tool (spec.md §4.4).
type Definition struct {
	Name             string
	Schema           map[string]any // JSON Schema
	RiskLevel        RiskLevel
	RequiresApproval bool
	Execute          ExecuteFunc
	TimeoutMs        int // 0 means DefaultTimeoutMs
	IsExecClass      bool
	ExecBinary       string // required when IsExecClass
}

// ApprovalGate decides whether a risky tool call may proceed.
type ApprovalGate interface {
	Check(call contracts.ToolCall, ctx contracts.ToolCallCtx) bool
}

// AlwaysAllowApprovalGate approves every call; useful for low-friction
// deployments and tests.
type AlwaysAllowApprovalGate struct{}

func (AlwaysAllowApprovalGate) Check(contracts.ToolCall, contracts.ToolCallCtx) bool { return true }

// AlwaysDenyApprovalGate denies every call.
type AlwaysDenyApprovalGate struct{}

func (AlwaysDenyApprovalGate) Check(contracts.ToolCall, contracts.ToolCallCtx) bool { return false }

// Policy decides whether a call is allowed before approval is even
// consulted (allowlists, destructive-pattern detection).
type Policy interface {
	// Allow returns (true, "") when the call may proceed, or
	// (false, reasonCode) when it must be denied outright.
	Allow(call contracts.ToolCall) (bool, string)
}

const DefaultTimeoutMs = 30_000

// Router implements contracts.ToolRouter.
type Router struct {
	registry map[string]Definition
	gate     ApprovalGate
	policy   Policy
	sandbox  contracts.ExecSandbox
	allowed  map[string]bool // allowedExecBins
	logs     *decisionlog.Store
	logger   zerolog.Logger
	validate func(schema map[string]any, args map[string]any) error
}

// New builds a Router. sandbox is stored but Execute does not call it:
// an exec-class tool runs its own Execute func once its ExecBinary passes
// the allowedExecBins check. logs may be nil, which makes audit persistence
// a no-op — useful in tests.
func New(gate ApprovalGate, policy Policy, sandbox contracts.ExecSandbox, logs *decisionlog.Store, allowedExecBins []string) *Router {
	allowed := make(map[string]bool, len(allowedExecBins))
	for _, b := range allowedExecBins {
		allowed[b] = true
	}
	return &Router{
		registry: make(map[string]Definition),
		gate:     gate,
		policy:   policy,
		sandbox:  sandbox,
		allowed:  allowed,
		logs:     logs,
		logger:   log.Component("tools"),
		validate: ValidateAgainstSchema,
	}
}

// Register adds or replaces a tool definition.
func (r *Router) Register(def Definition) {
	r.registry[def.Name] = def
}

// Get returns the definition for name, if registered.
func (r *Router) Get(name string) (Definition, bool) {
	d, ok := r.registry[name]
	return d, ok
}

func (r *Router) audit(ctx contracts.ToolCallCtx, toolName, decision, reasonCode, detail string) {
	pd := contracts.PolicyDecision{AuditID: idgen.NewUUID(), Decision: decision, ReasonCode: reasonCode, Detail: detail}
	if ctx.DecisionLogs != nil {
		*ctx.DecisionLogs = append(*ctx.DecisionLogs, pd)
	}
	if r.logs != nil {
		if _, err := r.logs.Append(ctx.SessionID, ctx.RunID, toolName, pd); err != nil {
			r.logger.Warn().Err(err).Msg("failed to persist tool decision log")
		}
	}
}

// Execute runs the spec.md §4.4 gate sequence: resolve -> validate schema
// -> policy -> approval -> timeout-bounded invoke -> audit.
func (r *Router) Execute(call contracts.ToolCall, ctx contracts.ToolCallCtx) (contracts.ToolExecResult, error) {
	def, ok := r.registry[call.Name]
	if !ok {
		r.audit(ctx, call.Name, "deny", agenterr.CodeToolUnknown, "tool not registered")
		return contracts.ToolExecResult{}, agenterr.New(agenterr.KindSchemaInvalid, agenterr.CodeToolUnknown, fmt.Sprintf("unknown tool %q", call.Name))
	}

	if def.Schema != nil {
		if err := r.validate(def.Schema, call.Args); err != nil {
			r.audit(ctx, call.Name, "deny", agenterr.CodeToolSchemaInvalid, err.Error())
			return contracts.ToolExecResult{}, agenterr.Wrap(agenterr.KindSchemaInvalid, agenterr.CodeToolSchemaInvalid, "tool arguments failed schema validation", err)
		}
	}

	if r.policy != nil {
		if allow, reasonCode := r.policy.Allow(call); !allow {
			if reasonCode == "" {
				reasonCode = agenterr.CodeToolPolicyBlocked
			}
			r.audit(ctx, call.Name, "deny", reasonCode, "denied by policy")
			return contracts.ToolExecResult{}, agenterr.New(agenterr.KindPolicyDenied, reasonCode, "tool call blocked by policy")
		}
	}

	needsApproval := def.RiskLevel == RiskHigh || def.RequiresApproval
	if needsApproval {
		gate := r.gate
		if gate == nil {
			gate = AlwaysAllowApprovalGate{}
		}
		if !gate.Check(call, ctx) {
			r.audit(ctx, call.Name, "deny", agenterr.CodeToolApprovalRequired, "approval gate denied")
			return contracts.ToolExecResult{}, agenterr.New(agenterr.KindPolicyDenied, agenterr.CodeToolApprovalRequired, "tool call requires approval")
		}
	}

	if def.IsExecClass && !r.allowed[def.ExecBinary] {
		r.audit(ctx, call.Name, "deny", agenterr.CodeToolDestructiveDenied, "binary not in allowedExecBins")
		return contracts.ToolExecResult{}, agenterr.New(agenterr.KindPolicyDenied, agenterr.CodeToolDestructiveDenied, "exec binary not allowed")
	}

	timeoutMs := def.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = DefaultTimeoutMs
	}
	execCtx, cancel := context.WithTimeout(ctx.Context, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	output, err := def.Execute(execCtx, call.Args)
	if execCtx.Err() != nil && err != nil {
		r.audit(ctx, call.Name, "deny", agenterr.CodeToolTimeout, "execution exceeded timeout")
		return contracts.ToolExecResult{}, agenterr.Wrap(agenterr.KindTimeout, agenterr.CodeToolTimeout, "tool execution timed out", err)
	}
	if err != nil {
		r.audit(ctx, call.Name, "allow", "", err.Error())
		return contracts.ToolExecResult{}, err
	}

	r.audit(ctx, call.Name, "allow", "", "")
	return contracts.ToolExecResult{Output: output}, nil
}

var _ contracts.ToolRouter = (*Router)(nil)

// MustMarshalSchema is a small convenience for building literal JSON
// Schema values in tool registration call sites.
func MustMarshalSchema(schema map[string]any) []byte {
	data, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	return data
}
