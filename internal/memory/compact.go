package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vinayprograms/agentcore/internal/fsutil"
)

// CompactOptions configures a compaction pass.
type CompactOptions struct {
	MinAgeDays         int
	MaxRecords         int
	LongMemoryMaxChars int
}

// CompactResult reports what a compaction pass did.
type CompactResult struct {
	Ran              bool
	Reason           string
	RecordsCompacted int
	RecordsAfter     int
}

const compactionLockStaleAfter = time.Hour

func (s *Store) lockPath() string {
	return filepath.Join(filepath.Dir(s.dailyDir), "tmp", "memory-compaction.lock")
}

// ShouldCompact reports whether the store currently holds more than
// maxRecords records, and how many it holds.
func (s *Store) ShouldCompact(maxRecords int) (shouldRun bool, recordCount int) {
	records := s.ReadAll(ReadOpts{})
	return len(records) > maxRecords, len(records)
}

// Compact acquires tmp/memory-compaction.lock, summarizes records older
// than MinAgeDays into LONGMEMORY.md, and rewrites MEMORY.md retaining the
// newest <= MaxRecords records plus a compaction marker comment line.
// Running it twice with no intervening appends is a no-op on the second
// call, because the first call already removed every eligible record.
func (s *Store) Compact(opts CompactOptions) (CompactResult, error) {
	lock := fsutil.NewLock(s.lockPath())
	acquired, err := lock.Acquire(compactionLockStaleAfter)
	if err != nil {
		return CompactResult{}, fmt.Errorf("acquire compaction lock: %w", err)
	}
	if !acquired {
		return CompactResult{Ran: false, Reason: "lock held"}, nil
	}
	defer lock.Release()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	records, err := s.parseFile(s.memoryPath)
	if err != nil {
		return CompactResult{}, fmt.Errorf("read memory for compaction: %w", err)
	}
	shouldRun := len(records) > opts.MaxRecords
	if !shouldRun {
		return CompactResult{Ran: false, Reason: "under threshold"}, nil
	}

	records = sortByTimestamp(records)
	cutoff := time.Now().AddDate(0, 0, -opts.MinAgeDays)

	var old, keep []Record
	for _, r := range records {
		if r.Provenance.Timestamp.Before(cutoff) {
			old = append(old, r)
		} else {
			keep = append(keep, r)
		}
	}
	if len(old) == 0 {
		return CompactResult{Ran: false, Reason: "no records old enough"}, nil
	}

	if err := s.appendLongMemory(old, opts.LongMemoryMaxChars); err != nil {
		return CompactResult{}, fmt.Errorf("append long memory: %w", err)
	}

	if len(keep) > opts.MaxRecords {
		keep = keep[len(keep)-opts.MaxRecords:]
	}

	if err := s.rewriteMemory(keep, len(old)); err != nil {
		return CompactResult{}, fmt.Errorf("rewrite memory: %w", err)
	}

	return CompactResult{Ran: true, RecordsCompacted: len(old), RecordsAfter: len(keep)}, nil
}

func (s *Store) appendLongMemory(compacted []Record, maxChars int) error {
	var b strings.Builder
	fmt.Fprintf(&b, "## Summary %s\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Compacted %d record(s):\n\n", len(compacted))
	for _, r := range compacted {
		fmt.Fprintf(&b, "- [%s] %s\n", r.Category, r.Text)
	}
	b.WriteString("\n")
	block := b.String()

	existing, err := os.ReadFile(s.longMemoryPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	content := string(existing) + block
	content = trimLongMemory(content, maxChars)
	return fsutil.WriteFileAtomic(s.longMemoryPath, []byte(content))
}

// trimLongMemory evicts the oldest "## Summary" block(s) from the front
// until content fits within maxChars, if maxChars > 0.
func trimLongMemory(content string, maxChars int) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	blocks := strings.Split(content, "## Summary ")
	// blocks[0] is anything before the first marker (normally empty).
	for len(blocks) > 2 && len(content) > maxChars {
		blocks = append(blocks[:1], blocks[2:]...)
		content = blocks[0] + "## Summary " + strings.Join(blocks[1:], "## Summary ")
	}
	if len(content) > maxChars && len(content) > 0 {
		content = content[len(content)-maxChars:]
	}
	return content
}

func (s *Store) rewriteMemory(keep []Record, compactedCount int) error {
	var b strings.Builder
	b.WriteString(headerText)
	for _, r := range keep {
		line, err := toLine(r)
		if err != nil {
			return err
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "# compacted %d record(s) at %s\n", compactedCount, time.Now().UTC().Format(time.RFC3339))
	return fsutil.WriteFileAtomic(s.memoryPath, []byte(b.String()))
}
