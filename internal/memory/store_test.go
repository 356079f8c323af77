package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRecord(id, text string, age time.Duration) Record {
	return Record{
		ID:        id,
		SessionID: "sess-1",
		Category:  CategoryNote,
		Text:      text,
		Provenance: Provenance{
			SourceChannel: "test",
			Confidence:    0.9,
			Timestamp:     time.Now().Add(-age),
			Sensitivity:   SensitivityPublic,
		},
	}
}

func TestAppendAndReadAllRoundTrip(t *testing.T) {
	store := New(t.TempDir())

	for i := 0; i < 3; i++ {
		r := newTestRecord("rec-"+string(rune('a'+i)), "hello world", time.Duration(i)*time.Minute)
		require.NoError(t, store.Append(r))
	}

	records := store.ReadAll(ReadOpts{})
	require.Len(t, records, 3)
	require.Equal(t, "rec-a", records[0].ID)
	require.Equal(t, "rec-c", records[2].ID)

	findings, err := store.IntegrityScan()
	require.NoError(t, err)
	require.Empty(t, findings)
}

func TestAppendRejectsEmptyText(t *testing.T) {
	store := New(t.TempDir())
	r := newTestRecord("rec-1", "", 0)
	require.Error(t, store.Append(r))
}

func TestAppendWritesDailyLog(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	r := newTestRecord("rec-1", "hello world", 0)
	require.NoError(t, store.Append(r))

	dailyPath := filepath.Join(root, "memory", r.Provenance.Timestamp.UTC().Format("2006-01-02")+".md")
	data, err := os.ReadFile(dailyPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello world")
}

func TestReadRecentDailyReturnsNewestFilesOldestFirst(t *testing.T) {
	root := t.TempDir()
	store := New(root)

	require.NoError(t, store.Append(newTestRecord("rec-1", "three days ago", 72*time.Hour)))
	require.NoError(t, store.Append(newTestRecord("rec-2", "yesterday", 24*time.Hour)))
	require.NoError(t, store.Append(newTestRecord("rec-3", "today", 0)))

	recent := store.ReadRecentDaily(2)
	require.Len(t, recent, 2)
	require.Contains(t, recent[0], "yesterday")
	require.Contains(t, recent[1], "today")
}

func TestReadRecentDailyEmptyWhenNoFiles(t *testing.T) {
	store := New(t.TempDir())
	require.Empty(t, store.ReadRecentDaily(2))
}

func TestIntegrityScanFindsDuplicatesAndFutureTimestamps(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	r1 := newTestRecord("dup", "first", time.Hour)
	r2 := newTestRecord("dup", "second", time.Hour)
	future := newTestRecord("future-1", "from tomorrow", -24*time.Hour)

	require.NoError(t, store.Append(r1))
	require.NoError(t, store.Append(r2))
	require.NoError(t, store.Append(future))

	findings, err := store.IntegrityScan()
	require.NoError(t, err)

	var kinds []FindingKind
	for _, f := range findings {
		kinds = append(kinds, f.Kind)
	}
	require.Contains(t, kinds, FindingDuplicateID)
	require.Contains(t, kinds, FindingFutureTimestamp)

	// A scan never mutates the underlying file.
	after := store.ReadAll(ReadOpts{})
	require.Len(t, after, 3)
}

func TestIntegrityScanToleratesTruncatedLastLine(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	require.NoError(t, store.Append(newTestRecord("rec-1", "ok", 0)))

	path := filepath.Join(dir, "MEMORY.md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"rec-2","sessionId":"sess-1","text":`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	findings, err := store.IntegrityScan()
	require.NoError(t, err)
	require.Empty(t, findings)

	records := store.ReadAll(ReadOpts{})
	require.Len(t, records, 1)
}

func TestCompactionUnderThreshold(t *testing.T) {
	store := New(t.TempDir())
	require.NoError(t, store.Append(newTestRecord("rec-1", "only one", 0)))

	shouldRun, count := store.ShouldCompact(100)
	require.False(t, shouldRun)
	require.Equal(t, 1, count)

	result, err := store.Compact(CompactOptions{MinAgeDays: 7, MaxRecords: 100, LongMemoryMaxChars: 10_000})
	require.NoError(t, err)
	require.False(t, result.Ran)
}

func TestCompactionOverThreshold(t *testing.T) {
	store := New(t.TempDir())

	for i := 0; i < 12; i++ {
		r := newTestRecord("old-"+string(rune('a'+i)), "old memory", 10*24*time.Hour)
		require.NoError(t, store.Append(r))
	}
	for i := 0; i < 3; i++ {
		r := newTestRecord("recent-"+string(rune('a'+i)), "recent memory", time.Minute)
		require.NoError(t, store.Append(r))
	}

	shouldRun, count := store.ShouldCompact(10)
	require.True(t, shouldRun)
	require.Equal(t, 15, count)

	result, err := store.Compact(CompactOptions{MinAgeDays: 7, MaxRecords: 10, LongMemoryMaxChars: 10_000})
	require.NoError(t, err)
	require.True(t, result.Ran)
	require.Equal(t, 12, result.RecordsCompacted)
	require.LessOrEqual(t, result.RecordsAfter, 3)

	longMemoryBytes, err := os.ReadFile(store.longMemoryPath)
	require.NoError(t, err)
	longMemory := string(longMemoryBytes)
	require.Contains(t, longMemory, "Summary")
	require.Contains(t, longMemory, "old memory")

	// A second compaction pass with no intervening appends is a no-op.
	result2, err := store.Compact(CompactOptions{MinAgeDays: 7, MaxRecords: 10, LongMemoryMaxChars: 10_000})
	require.NoError(t, err)
	require.False(t, result2.Ran)
}

func TestEmbeddingRecall(t *testing.T) {
	idx := NewEmbeddingIndex(t.TempDir(), 128, 1000)

	fridays := newTestRecord("deploy-1", "we ship deployments on Fridays at 5pm", 0)
	unrelated := newTestRecord("note-1", "the kitchen coffee machine is broken again", 0)
	secret := newTestRecord("secret-1", "deployment credentials rotate every Friday", 0)
	secret.Provenance.Sensitivity = SensitivitySecret

	require.NoError(t, idx.Upsert(fridays))
	require.NoError(t, idx.Upsert(unrelated))
	require.NoError(t, idx.Upsert(secret))

	results := idx.Query("deployment preferences on fridays", 2, false)
	require.NotEmpty(t, results)
	require.Equal(t, "deploy-1", results[0].RecordID)
	require.Greater(t, results[0].Score, 0.0)

	for _, r := range results {
		require.NotEqual(t, "secret-1", r.RecordID)
	}

	withSecret := idx.Query("deployment preferences on fridays", 5, true)
	var sawSecret bool
	for _, r := range withSecret {
		if r.RecordID == "secret-1" {
			sawSecret = true
		}
	}
	require.True(t, sawSecret)
}
