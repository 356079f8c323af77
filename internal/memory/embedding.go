package memory

import (
	"crypto/sha1"
	"encoding/binary"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/agentcore/internal/fsutil"
)

// EmbeddingProvider generates a vector for a document, letting the index
// be swapped for a real model later without touching the recall code. The
// shape mirrors the teacher's src/internal/memory/embedding.go
// OpenAIEmbedder/OllamaEmbedder (Embed + Dimension), but the default
// implementation below (hashEmbedder) never leaves the process: the Turn
// Runtime contract forbids the core from depending on a network embedding
// provider for something as privacy-sensitive as memory recall.
type EmbeddingProvider interface {
	Embed(text string) []float64
	Dimension() int
}

// hashEmbedder implements the hash-based bag-of-words vector described in
// spec.md §4.1: tokens lowercased, split on non-alphanumeric runs, length
// >= 2, capped at 2000 tokens per document, each token increments
// vector[sha1(token) mod dimensions], then the vector is L2-normalized.
type hashEmbedder struct {
	dimensions int
}

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

func newHashEmbedder(dimensions int) *hashEmbedder {
	if dimensions <= 0 {
		dimensions = 128
	}
	return &hashEmbedder{dimensions: dimensions}
}

func (h *hashEmbedder) Dimension() int { return h.dimensions }

func (h *hashEmbedder) Embed(text string) []float64 {
	vec := make([]float64, h.dimensions)
	tokens := tokenSplit.Split(strings.ToLower(text), -1)
	count := 0
	for _, tok := range tokens {
		if len(tok) < 2 {
			continue
		}
		if count >= 2000 {
			break
		}
		count++
		idx := hashToken(tok) % uint64(h.dimensions)
		vec[idx]++
	}
	normalize(vec)
	return vec
}

func hashToken(tok string) uint64 {
	sum := sha1.Sum([]byte(tok))
	return binary.BigEndian.Uint64(sum[:8])
}

func normalize(vec []float64) {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += v * v
	}
	if sumSquares == 0 {
		return
	}
	norm := math.Sqrt(sumSquares)
	for i := range vec {
		vec[i] /= norm
	}
}

func cosine(a, b []float64) float64 {
	var dot float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	return dot
}

// embeddingEntry is one row of the persisted index.
type embeddingEntry struct {
	RecordID    string      `json:"recordId"`
	Vector      []float64   `json:"vector"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Sensitivity Sensitivity `json:"sensitivity"`
	Text        string      `json:"text"`
}

type embeddingFile struct {
	Dimensions int               `json:"dimensions"`
	Entries    []embeddingEntry  `json:"entries"`
}

// EmbeddingIndex is the persisted, hash-based recall index described in
// spec.md §4.1. Persistence is serialized via a single in-order write
// chain (mu), matching §5's "single in-order write chain per
// index instance" requirement.
type EmbeddingIndex struct {
	path       string
	embedder   EmbeddingProvider
	maxRecords int

	mu      sync.Mutex
	entries map[string]embeddingEntry
}

// NewEmbeddingIndex opens or creates the embedding index at
// profileRoot/memory-embeddings.json.
func NewEmbeddingIndex(profileRoot string, dimensions, maxRecords int) *EmbeddingIndex {
	idx := &EmbeddingIndex{
		path:       profileRoot + "/memory-embeddings.json",
		embedder:   newHashEmbedder(dimensions),
		maxRecords: maxRecords,
		entries:    make(map[string]embeddingEntry),
	}
	var f embeddingFile
	if ok, _ := fsutil.ReadJSON(idx.path, &f); ok {
		for _, e := range f.Entries {
			idx.entries[e.RecordID] = e
		}
	}
	return idx
}

// WithEmbedder overrides the embedding provider (tests, or a future
// network-backed implementation for a non-core caller).
func (idx *EmbeddingIndex) WithEmbedder(p EmbeddingProvider) *EmbeddingIndex {
	idx.embedder = p
	return idx
}

// Upsert embeds and stores a record's vector, then persists the index and
// trims it to maxRecords (evicting the oldest by UpdatedAt). Secret
// records are stored so recall can exclude them unless a caller explicitly
// allows secrets; they are never sent anywhere.
func (idx *EmbeddingIndex) Upsert(r Record) error {
	vec := idx.embedder.Embed(r.Text)
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries[r.ID] = embeddingEntry{
		RecordID:    r.ID,
		Vector:      vec,
		UpdatedAt:   time.Now(),
		Sensitivity: r.Provenance.Sensitivity,
		Text:        r.Text,
	}
	idx.trimLocked()
	return idx.persistLocked()
}

func (idx *EmbeddingIndex) trimLocked() {
	if idx.maxRecords <= 0 || len(idx.entries) <= idx.maxRecords {
		return
	}
	all := make([]embeddingEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	keep := all[:idx.maxRecords]
	idx.entries = make(map[string]embeddingEntry, len(keep))
	for _, e := range keep {
		idx.entries[e.RecordID] = e
	}
}

func (idx *EmbeddingIndex) persistLocked() error {
	f := embeddingFile{Dimensions: idx.embedder.Dimension()}
	for _, e := range idx.entries {
		f.Entries = append(f.Entries, e)
	}
	sort.Slice(f.Entries, func(i, j int) bool { return f.Entries[i].RecordID < f.Entries[j].RecordID })
	return fsutil.WriteJSONAtomic(idx.path, f)
}

// QueryResult is one hit from EmbeddingIndex.Query.
type QueryResult struct {
	RecordID string
	Score    float64
}

// Query ranks stored records by cosine similarity to q, returning only
// positive-similarity hits, best first, capped at topK. Secret records are
// excluded unless allowSecret is true (spec.md §9 secrets boundary).
func (idx *EmbeddingIndex) Query(q string, topK int, allowSecret bool) []QueryResult {
	queryVec := idx.embedder.Embed(q)

	idx.mu.Lock()
	entries := make([]embeddingEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		entries = append(entries, e)
	}
	idx.mu.Unlock()

	var results []QueryResult
	for _, e := range entries {
		if e.Sensitivity == SensitivitySecret && !allowSecret {
			continue
		}
		score := cosine(queryVec, e.Vector)
		if score > 0 {
			results = append(results, QueryResult{RecordID: e.RecordID, Score: score})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
