// Package decisionlog provides a queryable audit trail of tool-router
// policy decisions, adapted from the teacher's internal/checkpoint.Store:
// one JSON file per id under a directory, guarded by a RWMutex, rewritten
// atomically on every append. spec.md §4.4 only specifies that a decision
// gets appended to ctx.decisionLogs in-memory; this adapts the teacher's
// "write it, then let something read it back later" checkpoint idiom to
// give that audit trail a durable, queryable home by auditId.
package decisionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vinayprograms/agentcore/internal/contracts"
	"github.com/vinayprograms/agentcore/internal/fsutil"
)

// Entry is one persisted policy decision.
type Entry struct {
	AuditID    string    `json:"auditId"`
	SessionID  string    `json:"sessionId"`
	RunID      string    `json:"runId"`
	ToolName   string    `json:"toolName"`
	Decision   string    `json:"decision"`
	ReasonCode string    `json:"reasonCode"`
	Detail     string    `json:"detail"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store persists Entry records keyed by AuditID under dir/<auditId>.json.
type Store struct {
	dir     string
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewStore creates dir if needed and returns an empty Store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create decision log dir: %w", err)
	}
	return &Store{dir: dir, entries: make(map[string]Entry)}, nil
}

// Append records a PolicyDecisionLog entry and returns its AuditID.
func (s *Store) Append(sessionID, runID, toolName string, decision contracts.PolicyDecision) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		AuditID:    decision.AuditID,
		SessionID:  sessionID,
		RunID:      runID,
		ToolName:   toolName,
		Decision:   decision.Decision,
		ReasonCode: decision.ReasonCode,
		Detail:     decision.Detail,
		Timestamp:  time.Now(),
	}
	s.entries[entry.AuditID] = entry
	if err := fsutil.WriteJSONAtomic(s.path(entry.AuditID), entry); err != nil {
		return "", fmt.Errorf("persist decision %s: %w", entry.AuditID, err)
	}
	return entry.AuditID, nil
}

func (s *Store) path(auditID string) string {
	return filepath.Join(s.dir, auditID+".json")
}

// Get returns a previously appended entry by AuditID.
func (s *Store) Get(auditID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[auditID]
	return e, ok
}

// ForSession returns every entry recorded for a session, in no particular
// order (callers that need ordering should sort by Timestamp).
func (s *Store) ForSession(sessionID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}
