package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vinayprograms/agentcore/internal/fsutil"
	"github.com/vinayprograms/agentcore/internal/idgen"
)

// FileBackend persists one JSON file per sanitized session id under dir,
// rewritten atomically (write-temp + rename) on every mutation. Because
// Dequeue never removes the item, a crash between Dequeue and Remove
// leaves the file untouched and the same item is redelivered on restart —
// this is the at-least-once guarantee from spec.md §4.2.
type FileBackend struct {
	dir string
	mu  sync.Mutex
}

// NewFileBackend roots a file-backed queue at dir (created if missing).
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(sessionID string) string {
	return filepath.Join(b.dir, idgen.SanitizeSessionID(sessionID)+".json")
}

type fileQueueDoc struct {
	Items []Item `json:"items"`
}

func (b *FileBackend) load(sessionID string) (fileQueueDoc, error) {
	var doc fileQueueDoc
	if _, err := fsutil.ReadJSON(b.path(sessionID), &doc); err != nil {
		return fileQueueDoc{}, err
	}
	return doc, nil
}

func (b *FileBackend) save(sessionID string, doc fileQueueDoc) error {
	return fsutil.WriteJSONAtomic(b.path(sessionID), doc)
}

func (b *FileBackend) Enqueue(sessionID string, payload json.RawMessage) (Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(sessionID)
	if err != nil {
		return Item{}, fmt.Errorf("load queue for %s: %w", sessionID, err)
	}
	item := Item{ID: NextID(), SessionID: sessionID, Payload: payload, EnqueuedAt: time.Now()}
	doc.Items = append(doc.Items, item)
	if err := b.save(sessionID, doc); err != nil {
		return Item{}, fmt.Errorf("save queue for %s: %w", sessionID, err)
	}
	return item, nil
}

func (b *FileBackend) Dequeue(sessionID string) (Item, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(sessionID)
	if err != nil {
		return Item{}, false, fmt.Errorf("load queue for %s: %w", sessionID, err)
	}
	if len(doc.Items) == 0 {
		return Item{}, false, nil
	}
	return doc.Items[0], true, nil
}

func (b *FileBackend) Remove(sessionID, itemID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(sessionID)
	if err != nil {
		return fmt.Errorf("load queue for %s: %w", sessionID, err)
	}
	for i, it := range doc.Items {
		if it.ID == itemID {
			doc.Items = append(doc.Items[:i], doc.Items[i+1:]...)
			return b.save(sessionID, doc)
		}
	}
	return nil
}

func (b *FileBackend) ListPending(sessionID string) ([]Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load queue for %s: %w", sessionID, err)
	}
	return doc.Items, nil
}

func (b *FileBackend) Close() error { return nil }
