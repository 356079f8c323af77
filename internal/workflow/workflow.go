// Package workflow implements the Workflow Runtime from spec.md §4.8:
// durable, resumable step execution with approval gates, keyed by
// (definitionId, idempotencyKey). Its state store is adapted directly
// from vinayprograms-agent's internal/checkpoint.Store — a per-id map
// guarded by a mutex, flushed to disk after every mutation — repurposed
// to persist WorkflowState instead of step checkpoints.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vinayprograms/agentcore/internal/fsutil"
)

// StepStatus is the lifecycle state of one workflow step.
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRunning  StepStatus = "running"
	StepDone     StepStatus = "done"
	StepFailed   StepStatus = "failed"
	StepSkipped  StepStatus = "skipped"
)

// StepState is the persisted record for one step.
type StepState struct {
	ID     string     `json:"id"`
	Status StepStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// WorkflowState is the persisted record for one (definitionId,
// idempotencyKey) run.
type WorkflowState struct {
	DefinitionID   string       `json:"definitionId"`
	IdempotencyKey string       `json:"idempotencyKey"`
	Steps          []*StepState `json:"steps"`
	Status         StepStatus   `json:"status"`
}

func (w *WorkflowState) step(id string) *StepState {
	for _, s := range w.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Step is one unit of work in a Definition.
type Step struct {
	ID               string
	RequiresApproval bool
	Run              func() error
}

// Definition is an ordered list of steps sharing a definitionId.
type Definition struct {
	ID    string
	Steps []Step
}

// ApprovalFunc asks whether a step may proceed; false denies it.
type ApprovalFunc func(stepID string) bool

// Store persists WorkflowState keyed by definitionId+idempotencyKey, one
// JSON file per key, atomically rewritten on every mutation.
type Store struct {
	dir   string
	mu    sync.Mutex
	cache map[string]*WorkflowState
}

// NewStore creates a workflow state store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workflow state dir: %w", err)
	}
	return &Store{dir: dir, cache: make(map[string]*WorkflowState)}, nil
}

func stateKey(definitionID, idempotencyKey string) string {
	return definitionID + "__" + idempotencyKey
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load returns the persisted state for a (definitionId, idempotencyKey)
// pair, or nil if none exists yet.
func (s *Store) Load(definitionID, idempotencyKey string) (*WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stateKey(definitionID, idempotencyKey)
	if st, ok := s.cache[key]; ok {
		return st, nil
	}
	var st WorkflowState
	ok, err := fsutil.ReadJSON(s.path(key), &st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	s.cache[key] = &st
	return &st, nil
}

func (s *Store) save(st *WorkflowState) error {
	key := stateKey(st.DefinitionID, st.IdempotencyKey)
	s.cache[key] = st
	return fsutil.WriteJSONAtomic(s.path(key), st)
}

// Runner executes Definitions against a Store.
type Runner struct {
	store *Store
}

// NewRunner builds a Runner backed by store.
func NewRunner(store *Store) *Runner {
	return &Runner{store: store}
}

// Run executes definition under idempotencyKey: if a prior run completed,
// it returns immediately; otherwise it resumes from the first non-done
// step, persisting state after every transition (spec.md §4.8).
func (r *Runner) Run(def Definition, idempotencyKey string, approval ApprovalFunc) (*WorkflowState, error) {
	r.store.mu.Lock()
	st, err := r.loadOrInitLocked(def, idempotencyKey)
	r.store.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if st.Status == StepDone {
		return st, nil
	}

	for _, step := range def.Steps {
		stepState := st.step(step.ID)
		if stepState.Status == StepDone {
			continue
		}

		if step.RequiresApproval && stepState.Status != StepApproved {
			if approval == nil || !approval(step.ID) {
				stepState.Status = StepSkipped
				st.Status = StepFailed
				if err := r.persist(st); err != nil {
					return st, err
				}
				return st, nil
			}
			stepState.Status = StepApproved
			if err := r.persist(st); err != nil {
				return st, err
			}
		}

		stepState.Status = StepRunning
		if err := r.persist(st); err != nil {
			return st, err
		}

		if runErr := step.Run(); runErr != nil {
			stepState.Status = StepFailed
			stepState.Error = runErr.Error()
			st.Status = StepFailed
			if err := r.persist(st); err != nil {
				return st, err
			}
			return st, runErr
		}

		stepState.Status = StepDone
		if err := r.persist(st); err != nil {
			return st, err
		}
	}

	st.Status = StepDone
	if err := r.persist(st); err != nil {
		return st, err
	}
	return st, nil
}

func (r *Runner) loadOrInitLocked(def Definition, idempotencyKey string) (*WorkflowState, error) {
	key := stateKey(def.ID, idempotencyKey)
	if st, ok := r.store.cache[key]; ok {
		return st, nil
	}
	var st WorkflowState
	ok, err := fsutil.ReadJSON(r.store.path(key), &st)
	if err != nil {
		return nil, err
	}
	if ok {
		r.store.cache[key] = &st
		return &st, nil
	}

	st = WorkflowState{DefinitionID: def.ID, IdempotencyKey: idempotencyKey, Status: StepPending}
	for _, step := range def.Steps {
		st.Steps = append(st.Steps, &StepState{ID: step.ID, Status: StepPending})
	}
	r.store.cache[key] = &st
	return &st, nil
}

func (r *Runner) persist(st *WorkflowState) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.save(st)
}
