// Package queue implements the durable, per-session FIFO queue from
// spec.md §4.2: at-least-once delivery, two interchangeable backends
// (in-memory and file-backed), with an optional NATS-backed third backend
// wired from the teacher's already-imported github.com/nats-io/nats.go.
package queue

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Item is one enqueued unit of work, keyed to a session.
type Item struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"sessionId"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Backend is the durable-queue contract: enqueue/dequeue/listPending/
// remove/close. Dequeue does not remove the item — a crash between Dequeue
// and Remove re-delivers the same item, so consumers must be idempotent
// (spec.md §4.2 "at-least-once").
type Backend interface {
	Enqueue(sessionID string, payload json.RawMessage) (Item, error)
	Dequeue(sessionID string) (Item, bool, error)
	Remove(sessionID, itemID string) error
	ListPending(sessionID string) ([]Item, error)
	Close() error
}

var counter uint64

// NextID returns a monotonically increasing queue item id, formatted
// q-<counter>-<wallclockMs> per spec.md §4.2.
func NextID() string {
	n := atomic.AddUint64(&counter, 1)
	return fmt.Sprintf("q-%d-%d", n, time.Now().UnixMilli())
}
