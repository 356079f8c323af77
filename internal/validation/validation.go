// Package validation stores provider self-check results (whether a model
// configured for a profile can actually complete a tool call and a
// reasoning-only turn) in an embedded SQLite table, queryable by modelId and
// lastRun. Grounded on rcourtman-Pulse's internal/unifiedresources SQLite
// store (sql.Open("sqlite", path) against modernc.org/sqlite, one file per
// data directory) and goclaw's internal/upgrade/data_hooks.go
// CREATE TABLE IF NOT EXISTS + upsert idiom.
package validation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"

	"github.com/vinayprograms/agentcore/internal/telemetry/log"
)

// Checks records which individual self-checks passed.
type Checks struct {
	ToolCall  *bool `json:"toolCall,omitempty"`
	Reasoning *bool `json:"reasoning,omitempty"`
}

// Result is one provider self-check outcome (spec.md §3 ValidationResult).
type Result struct {
	ModelID string
	Passed  bool
	LastRun time.Time
	Checks  Checks
	Error   string
}

// Store persists Results in a SQLite table keyed by modelId.
type Store struct {
	db     *sql.DB
	dbPath string
	logger zerolog.Logger
}

// Open creates (if needed) and opens the validation store under dataDir.
func Open(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "validation")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("validation: create dir: %w", err)
	}
	dbPath := filepath.Join(dir, "validation.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("validation: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer at a time

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("validation: create schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath, logger: log.Component("validation")}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS validation_results (
	model_id        TEXT PRIMARY KEY,
	passed          INTEGER NOT NULL,
	last_run        INTEGER NOT NULL,
	check_tool_call INTEGER,
	check_reasoning INTEGER,
	error           TEXT NOT NULL DEFAULT ''
)`

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts a Result by ModelID.
func (s *Store) Save(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_results (model_id, passed, last_run, check_tool_call, check_reasoning, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id) DO UPDATE SET
			passed = excluded.passed,
			last_run = excluded.last_run,
			check_tool_call = excluded.check_tool_call,
			check_reasoning = excluded.check_reasoning,
			error = excluded.error
	`, r.ModelID, boolToInt(r.Passed), r.LastRun.UnixMilli(), nullableBool(r.Checks.ToolCall), nullableBool(r.Checks.Reasoning), r.Error)
	if err != nil {
		return fmt.Errorf("validation: save %q: %w", r.ModelID, err)
	}
	return nil
}

// Get returns the most recent Result for modelID, if any.
func (s *Store) Get(ctx context.Context, modelID string) (Result, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT model_id, passed, last_run, check_tool_call, check_reasoning, error
		FROM validation_results WHERE model_id = ?
	`, modelID)
	r, err := scanResult(row)
	if err == sql.ErrNoRows {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("validation: get %q: %w", modelID, err)
	}
	return r, true, nil
}

// ListFailing returns every stored Result whose passed flag is false, most
// recently run first — used by the orchestrator's integrity scan to surface
// models that need re-validation.
func (s *Store) ListFailing(ctx context.Context) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_id, passed, last_run, check_tool_call, check_reasoning, error
		FROM validation_results WHERE passed = 0 ORDER BY last_run DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("validation: list failing: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (Result, error) {
	var (
		modelID       string
		passed        int
		lastRunMs     int64
		toolCall      sql.NullInt64
		reasoning     sql.NullInt64
		errText       string
	)
	if err := row.Scan(&modelID, &passed, &lastRunMs, &toolCall, &reasoning, &errText); err != nil {
		return Result{}, err
	}
	r := Result{
		ModelID: modelID,
		Passed:  passed != 0,
		LastRun: time.UnixMilli(lastRunMs),
		Error:   errText,
	}
	if toolCall.Valid {
		v := toolCall.Int64 != 0
		r.Checks.ToolCall = &v
	}
	if reasoning.Valid {
		v := reasoning.Int64 != 0
		r.Checks.Reasoning = &v
	}
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}
