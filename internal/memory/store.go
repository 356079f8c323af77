package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vinayprograms/agentcore/internal/telemetry/log"
)

// headerText is written once at the top of MEMORY.md, per spec.md §6.
const headerText = "# MEMORY.md — Long-term memory\n\n---\n\n"

// Store is the append-only, line-JSON memory store rooted at profileRoot.
// Concurrent appends are serialized by writeMu, the same discipline the
// teacher's checkpoint.Store applies with a mutex per flush.
type Store struct {
	memoryPath     string
	longMemoryPath string
	dailyDir       string
	logger         zerolog.Logger

	writeMu sync.Mutex // serializes appends to memoryPath

	maxRecordSizeBytes int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRecordSize overrides the per-record size cap used by integrity scans.
func WithMaxRecordSize(bytes int) Option {
	return func(s *Store) { s.maxRecordSizeBytes = bytes }
}

// New builds a Store rooted at profileRoot (MEMORY.md, LONGMEMORY.md, memory/).
func New(profileRoot string, opts ...Option) *Store {
	s := &Store{
		memoryPath:         filepath.Join(profileRoot, "MEMORY.md"),
		longMemoryPath:     filepath.Join(profileRoot, "LONGMEMORY.md"),
		dailyDir:           filepath.Join(profileRoot, "memory"),
		logger:             log.Component("memory"),
		maxRecordSizeBytes: 16 * 1024,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// toLine renders a record as canonical, single-line JSON.
func toLine(r Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Append writes record as a new line to MEMORY.md and then to the day's log
// under memory/, returning once both writes are durable on disk. Appends
// from multiple goroutines are serialized. If the daily-log write fails,
// the error is returned after the MEMORY.md line has already been written.
func (s *Store) Append(r Record) error {
	if !r.Valid() {
		return fmt.Errorf("memory record %s: text must not be empty", r.ID)
	}
	line, err := toLine(r)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", r.ID, err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := appendLineLocked(s.memoryPath, headerText, line); err != nil {
		return fmt.Errorf("append memory record %s: %w", r.ID, err)
	}
	if err := appendLineLocked(s.dailyPath(r.Provenance.Timestamp), "", line); err != nil {
		return fmt.Errorf("append daily log for record %s: %w", r.ID, err)
	}
	s.logger.Debug().Str("record_id", r.ID).Str("session_id", r.SessionID).Msg("memory record appended")
	return nil
}

// dailyPath returns the per-day log file for t (spec.md §6:
// "memory/YYYY-MM-DD.md # per-day logs"), keyed by UTC calendar date.
func (s *Store) dailyPath(t time.Time) string {
	return filepath.Join(s.dailyDir, t.UTC().Format("2006-01-02")+".md")
}

func appendLineLocked(path, header, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	needsHeader := false
	if info, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		needsHeader = true
	} else if info.Size() == 0 {
		needsHeader = true
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if needsHeader {
		if _, err := f.WriteString(header); err != nil {
			return err
		}
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		return err
	}
	return f.Sync()
}

// ReadOpts filters ReadAll results.
type ReadOpts struct {
	Since     *int64 // unix millis; records with Provenance.Timestamp before this are excluded
	Category  Category
	SessionID string // "" means no session filter
	Limit     int
}

// ReadAll parses MEMORY.md forward, tolerating a truncated final line, and
// returns matching records oldest-first. Read failures are swallowed into
// an empty result: the store is best-effort for reads (spec.md §4.1
// failure model), so a corrupted or missing file never blocks a turn.
func (s *Store) ReadAll(opts ReadOpts) []Record {
	records, err := s.parseFile(s.memoryPath)
	if err != nil {
		s.logger.Warn().Err(err).Msg("memory read failed; returning empty result")
		return nil
	}

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if opts.Category != "" && r.Category != opts.Category {
			continue
		}
		if opts.SessionID != "" && r.SessionID != opts.SessionID {
			continue
		}
		if opts.Since != nil && r.Provenance.Timestamp.UnixMilli() < *opts.Since {
			continue
		}
		out = append(out, r)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out
}

// parseFile reads path line by line, skipping the front-matter header and
// any blank or unparsable line; a truncated last line is dropped silently.
func (s *Store) parseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "---") {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			// Tolerate a truncated last line; anything else is an
			// integrity concern surfaced by IntegrityScan, not here.
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return records, err
	}
	return records, nil
}

// ReadLongMemory returns the current contents of LONGMEMORY.md, or an
// empty string if it doesn't exist yet.
func (s *Store) ReadLongMemory() (string, error) {
	data, err := os.ReadFile(s.longMemoryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// ReadRecentDaily returns the raw contents of the n most recent per-day log
// files under dailyDir that exist, oldest-first, for injection into prompt
// assembly (spec.md §4.9 step 2: "MEMORY.md + last two daily files").
// A fresh profile with no daily files yet yields an empty slice.
func (s *Store) ReadRecentDaily(n int) []string {
	entries, err := os.ReadDir(s.dailyDir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) > n {
		names = names[len(names)-n:]
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dailyDir, name))
		if err != nil {
			continue
		}
		out = append(out, string(data))
	}
	return out
}

// sortByTimestamp returns a copy of records ordered oldest-first.
func sortByTimestamp(records []Record) []Record {
	out := append([]Record(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Provenance.Timestamp.Before(out[j].Provenance.Timestamp)
	})
	return out
}
