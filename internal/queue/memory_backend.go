package queue

import (
	"encoding/json"
	"sync"
	"time"
)

// MemoryBackend is the in-memory queue backend: a map of sessionID to an
// ordered slice. FIFO within a session; cross-session ordering undefined.
type MemoryBackend struct {
	mu    sync.Mutex
	lists map[string][]Item
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{lists: make(map[string][]Item)}
}

func (b *MemoryBackend) Enqueue(sessionID string, payload json.RawMessage) (Item, error) {
	item := Item{ID: NextID(), SessionID: sessionID, Payload: payload, EnqueuedAt: time.Now()}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists[sessionID] = append(b.lists[sessionID], item)
	return item, nil
}

func (b *MemoryBackend) Dequeue(sessionID string) (Item, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.lists[sessionID]
	if len(list) == 0 {
		return Item{}, false, nil
	}
	return list[0], true, nil
}

func (b *MemoryBackend) Remove(sessionID, itemID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.lists[sessionID]
	for i, it := range list {
		if it.ID == itemID {
			b.lists[sessionID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (b *MemoryBackend) ListPending(sessionID string) ([]Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Item, len(b.lists[sessionID]))
	copy(out, b.lists[sessionID])
	return out, nil
}

func (b *MemoryBackend) Close() error { return nil }
