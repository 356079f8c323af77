// Package reliability implements the reliability helpers from spec.md
// §4.11: a confidence scorer, a per-session reasoning-reset counter, and
// the ActionEnvelope wrapper every externally visible action carries.
// The scoring shape is grounded on vinayprograms-agent's
// internal/supervision.Supervisor, which produces a Verdict plus a
// rationale trail from a fixed set of signal checks; ConfidenceModel
// generalizes that same "base score, subtract/add per signal" idiom into
// a single numeric score instead of a three-way verdict.
package reliability

import "sync"

// ConfidenceInput carries the signals ConfidenceModel scores.
type ConfidenceInput struct {
	FailureCount           int
	HasDeepScan            bool
	PluginDiagnosticCount  int
	ToolCallCount          int
	HasRecentTestsPassing  bool
}

// ConfidenceScore is the model's verdict: a 0-100 score plus the reasons
// that produced it, in the order they were applied.
type ConfidenceScore struct {
	Score     int
	Rationale []string
}

const baseConfidence = 82

// Score implements spec.md's ConfidenceModel: base 82; subtract for
// failures/diagnostics/high tool volume; add for deep-scan/recent-passing
// tests. Clamped to [0, 100].
func Score(in ConfidenceInput) ConfidenceScore {
	score := baseConfidence
	var rationale []string

	if in.FailureCount > 0 {
		delta := 8 * in.FailureCount
		score -= delta
		rationale = append(rationale, "failures observed, reducing confidence")
	}
	if in.PluginDiagnosticCount > 0 {
		delta := 3 * in.PluginDiagnosticCount
		score -= delta
		rationale = append(rationale, "plugin diagnostics raised, reducing confidence")
	}
	if in.ToolCallCount > 12 {
		score -= 10
		rationale = append(rationale, "high tool-call volume, reducing confidence")
	}
	if in.HasDeepScan {
		score += 6
		rationale = append(rationale, "deep scan performed, raising confidence")
	}
	if in.HasRecentTestsPassing {
		score += 10
		rationale = append(rationale, "recent tests passing, raising confidence")
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return ConfidenceScore{Score: score, Rationale: rationale}
}

// ReasoningResetController counts tool-call iterations per session and
// signals when a threshold is hit, without destroying any other state.
type ReasoningResetController struct {
	mu        sync.Mutex
	threshold int
	counters  map[string]int
}

// NewReasoningResetController builds a controller that resets after
// threshold consecutive tool-call iterations in one session.
func NewReasoningResetController(threshold int) *ReasoningResetController {
	if threshold <= 0 {
		threshold = 6
	}
	return &ReasoningResetController{threshold: threshold, counters: make(map[string]int)}
}

// NoteToolCall increments the session's counter and reports whether the
// threshold was hit, zeroing the counter as it does (spec.md §4.9: "emits
// a system 'reset reasoning' note and zeroes the counter").
func (c *ReasoningResetController) NoteToolCall(sessionID string) (shouldReset bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[sessionID]++
	if c.counters[sessionID] >= c.threshold {
		c.counters[sessionID] = 0
		return true
	}
	return false
}

// NoteTaskResolved clears a session's counter outright.
func (c *ReasoningResetController) NoteTaskResolved(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counters, sessionID)
}

// ActionEnvelope wraps every externally visible action with its
// provenance and confidence, per spec.md §4.11.
type ActionEnvelope struct {
	ActionID              string `json:"actionId"`
	RunID                 string `json:"runId"`
	SessionID             string `json:"sessionId"`
	ActionType            string `json:"actionType"`
	ConfidenceScore       int    `json:"confidenceScore"`
	ConfidenceRationale   []string `json:"confidenceRationale"`
	RequiresHumanHint     bool   `json:"requiresHumanHint"`
	At                    int64  `json:"at"`
}

// NewActionEnvelope wraps action with a confidence score computed from in,
// flagging requiresHumanHint whenever the score falls below humanHintBelow.
func NewActionEnvelope(actionID, runID, sessionID, actionType string, in ConfidenceInput, humanHintBelow int, at int64) ActionEnvelope {
	conf := Score(in)
	return ActionEnvelope{
		ActionID:            actionID,
		RunID:               runID,
		SessionID:           sessionID,
		ActionType:          actionType,
		ConfidenceScore:     conf.Score,
		ConfidenceRationale: conf.Rationale,
		RequiresHumanHint:   conf.Score < humanHintBelow,
		At:                  at,
	}
}
