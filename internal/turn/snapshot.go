package turn

import (
	"path/filepath"
	"time"

	"github.com/vinayprograms/agentcore/internal/contracts"
	"github.com/vinayprograms/agentcore/internal/fsutil"
)

// turnSnapshot captures a turn's input, tool calls, and final text for
// post-hoc inspection (spec.md §4.9: "A snapshot of the turn ... may be
// written to snapshotDir").
type turnSnapshot struct {
	SessionID string               `json:"sessionId"`
	RunID     string               `json:"runId"`
	At        int64                `json:"at"`
	Messages  []contracts.Message  `json:"messages"`
	ToolCalls []string             `json:"toolCalls"`
	FinalText string               `json:"finalText,omitempty"`
}

func newTurnSnapshot(sessionID, runID string, messages []contracts.Message) *turnSnapshot {
	return &turnSnapshot{
		SessionID: sessionID,
		RunID:     runID,
		At:        time.Now().UnixMilli(),
		Messages:  messages,
	}
}

func (r *Runtime) writeSnapshot(snapshot *turnSnapshot) {
	if r.snapshotDir == "" || snapshot == nil {
		return
	}
	path := filepath.Join(r.snapshotDir, snapshot.RunID+".json")
	if err := fsutil.WriteJSONAtomic(path, snapshot); err != nil {
		r.logger.Warn().Err(err).Str("run_id", snapshot.RunID).Msg("failed to write turn snapshot")
	}
}
