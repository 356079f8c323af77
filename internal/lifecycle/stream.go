// Package lifecycle implements the in-process pub/sub lifecycle event
// stream from spec.md §4.3: per-subscriber bounded queues, session
// filtering, a synthetic "connecting" event on subscribe, and
// oldest-dropped backpressure with a counter exposed via GetState.
//
// Modeled on the teacher's internal/session append-only forensic event
// log (monotonic per-session SeqID, ordered delivery) generalized from a
// single persisted log into an in-memory fan-out with many readers.
package lifecycle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/agentcore/internal/contracts"
)

const defaultSubscriberBuffer = 256

// Stream is a single-process, unpersisted pub/sub of LifecycleEvent.
// Dropped on process exit, per spec.md §4.3.
type Stream struct {
	mu          sync.Mutex
	subs        map[uint64]*subscriber
	nextSubID   uint64
	seqCounters map[string]*uint64 // sessionID -> monotonic counter

	bufferSize    int
	droppedEvents atomic.Uint64
}

type subscriber struct {
	id            uint64
	sessionFilter string // "" means no filter
	ch            chan contracts.LifecycleEvent
}

// New returns an empty Stream with the given per-subscriber buffer size
// (defaultSubscriberBuffer if bufferSize <= 0).
func New(bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = defaultSubscriberBuffer
	}
	return &Stream{
		subs:        make(map[uint64]*subscriber),
		seqCounters: make(map[string]*uint64),
		bufferSize:  bufferSize,
	}
}

// nextSeq returns the next monotonic sequence id for a session.
func (s *Stream) nextSeq(sessionID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.seqCounters[sessionID]
	if !ok {
		counter = new(uint64)
		s.seqCounters[sessionID] = counter
	}
	*counter++
	return *counter
}

// Push fans event out to every matching subscriber. A subscriber filtered
// to a specific session never receives events from any other session. If
// a subscriber's queue is full, the oldest queued event is dropped to make
// room, and the dropped-events counter is incremented (spec.md §5
// backpressure).
func (s *Stream) Push(event contracts.LifecycleEvent) {
	if event.SeqID == 0 {
		event.SeqID = s.nextSeq(event.SessionID)
	}
	if event.At == 0 {
		event.At = time.Now().UnixMilli()
	}

	s.mu.Lock()
	targets := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.sessionFilter == "" || sub.sessionFilter == event.SessionID {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		s.deliver(sub, event)
	}
}

func (s *Stream) deliver(sub *subscriber, event contracts.LifecycleEvent) {
	select {
	case sub.ch <- event:
		return
	default:
	}
	// Full: drop the oldest queued event, then retry once.
	select {
	case <-sub.ch:
		s.droppedEvents.Add(1)
	default:
	}
	select {
	case sub.ch <- event:
	default:
		s.droppedEvents.Add(1)
	}
}

// Subscribe registers a new subscriber, optionally filtered to sessionID
// (empty string subscribes to every session). The first event ever
// delivered is a synthetic "connecting" event, written into the channel
// before the caller ever observes it, so a UI can distinguish "connected,
// no events yet" from "disconnected".
func (s *Stream) Subscribe(sessionID string) (<-chan contracts.LifecycleEvent, func()) {
	sub := &subscriber{sessionFilter: sessionID, ch: make(chan contracts.LifecycleEvent, s.bufferSize)}
	sub.ch <- contracts.LifecycleEvent{
		Type:      contracts.LifecycleConnecting,
		SessionID: sessionID,
		At:        time.Now().UnixMilli(),
	}

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	sub.id = id
	s.subs[id] = sub
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subs[id]; ok {
			close(existing.ch)
			delete(s.subs, id)
		}
	}
	return sub.ch, unsubscribe
}

// State summarizes the stream's subscriber and backpressure counters, as
// returned by Stream.GetState. The orchestrator's GetState does not include
// them.
type State struct {
	SubscriberCount int
	DroppedEvents   uint64
}

// GetState returns current subscriber/backpressure counters.
func (s *Stream) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{SubscriberCount: len(s.subs), DroppedEvents: s.droppedEvents.Load()}
}

var _ contracts.LifecycleStream = (*Stream)(nil)
