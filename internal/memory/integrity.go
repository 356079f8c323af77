package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// FindingKind classifies an integrity scan finding.
type FindingKind string

const (
	FindingUnparseable      FindingKind = "unparseable_line"
	FindingDuplicateID      FindingKind = "duplicate_id"
	FindingFutureTimestamp  FindingKind = "future_timestamp"
	FindingMissingProvenance FindingKind = "missing_provenance"
	FindingOversized        FindingKind = "oversized_record"
)

// Finding is one integrity issue surfaced by IntegrityScan; findings never
// cause a mutation (spec.md §4.1).
type Finding struct {
	Kind    FindingKind
	Line    int
	RecordID string
	Detail  string
}

// IntegrityScan re-reads MEMORY.md and reports findings without mutating
// anything. It is intentionally a separate pass from ReadAll: ReadAll is
// tolerant-by-design for turn assembly, while IntegrityScan exists to
// surface exactly the problems ReadAll silently swallows.
func (s *Store) IntegrityScan() ([]Finding, error) {
	f, err := os.Open(s.memoryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", s.memoryPath, err)
	}
	defer f.Close()

	var findings []Finding
	seenIDs := make(map[string]int)
	now := time.Now()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	lines := collectLines(scanner)
	for i, raw := range lines {
		lineNo = i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "---") {
			continue
		}
		isLast := i == len(lines)-1
		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			if isLast {
				// A truncated last line is an expected crash artifact,
				// not an integrity problem — ReadAll already tolerates it.
				continue
			}
			findings = append(findings, Finding{Kind: FindingUnparseable, Line: lineNo, Detail: err.Error()})
			continue
		}

		if prev, ok := seenIDs[r.ID]; ok {
			findings = append(findings, Finding{Kind: FindingDuplicateID, Line: lineNo, RecordID: r.ID,
				Detail: fmt.Sprintf("also defined on line %d", prev)})
		} else {
			seenIDs[r.ID] = lineNo
		}

		if r.Provenance.Timestamp.After(now) {
			findings = append(findings, Finding{Kind: FindingFutureTimestamp, Line: lineNo, RecordID: r.ID,
				Detail: r.Provenance.Timestamp.Format(time.RFC3339)})
		}

		if r.Provenance.SourceChannel == "" || r.Provenance.Sensitivity == "" {
			findings = append(findings, Finding{Kind: FindingMissingProvenance, Line: lineNo, RecordID: r.ID})
		}

		if len(raw) > s.maxRecordSizeBytes {
			findings = append(findings, Finding{Kind: FindingOversized, Line: lineNo, RecordID: r.ID,
				Detail: fmt.Sprintf("%d bytes > cap %d", len(raw), s.maxRecordSizeBytes)})
		}
	}
	return findings, scanner.Err()
}

func collectLines(scanner *bufio.Scanner) []string {
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}
