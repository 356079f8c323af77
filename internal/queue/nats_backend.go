package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSBackend rides the durable queue on an embedded/external NATS
// JetStream server instead of the filesystem — an alternative backend for
// deployments that already run NATS for other reasons (the teacher already
// imports github.com/nats-io/nats.go). Disabled by default
// ([queue] backend = "file" in config); at-least-once delivery comes from
// JetStream's own redelivery-on-missing-ack, which lines up exactly with
// spec.md §4.2: Dequeue never acks, only Remove does.
type NATSBackend struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream

	ackTimeout time.Duration

	mu      sync.Mutex
	pending map[string]jetstream.Msg // itemID -> unacked message
}

// NewNATSBackend connects to url and ensures a single durable stream named
// streamName covering subject "queue.>" exists.
func NewNATSBackend(ctx context.Context, url, streamName string, ackTimeout time.Duration) (*NATSBackend, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"queue.>"},
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", streamName, err)
	}
	if ackTimeout <= 0 {
		ackTimeout = 30 * time.Second
	}
	return &NATSBackend{nc: nc, js: js, stream: stream, ackTimeout: ackTimeout, pending: make(map[string]jetstream.Msg)}, nil
}

func subjectFor(sessionID string) string {
	return "queue." + sanitizeSubjectToken(sessionID)
}

func sanitizeSubjectToken(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "_empty"
	}
	return string(out)
}

func (b *NATSBackend) Enqueue(sessionID string, payload json.RawMessage) (Item, error) {
	item := Item{ID: NextID(), SessionID: sessionID, Payload: payload, EnqueuedAt: time.Now()}
	data, err := json.Marshal(item)
	if err != nil {
		return Item{}, fmt.Errorf("marshal item: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := b.js.Publish(ctx, subjectFor(sessionID), data); err != nil {
		return Item{}, fmt.Errorf("publish to %s: %w", subjectFor(sessionID), err)
	}
	return item, nil
}

func (b *NATSBackend) consumerFor(ctx context.Context, sessionID string) (jetstream.Consumer, error) {
	durable := "q-" + sanitizeSubjectToken(sessionID)
	return b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subjectFor(sessionID),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.ackTimeout,
	})
}

func (b *NATSBackend) Dequeue(sessionID string) (Item, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cons, err := b.consumerFor(ctx, sessionID)
	if err != nil {
		return Item{}, false, fmt.Errorf("consumer for %s: %w", sessionID, err)
	}
	batch, err := cons.Fetch(1, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return Item{}, false, fmt.Errorf("fetch for %s: %w", sessionID, err)
	}
	for msg := range batch.Messages() {
		var item Item
		if err := json.Unmarshal(msg.Data(), &item); err != nil {
			_ = msg.Nak()
			return Item{}, false, fmt.Errorf("unmarshal item: %w", err)
		}
		b.mu.Lock()
		b.pending[item.ID] = msg
		b.mu.Unlock()
		return item, true, nil
	}
	return Item{}, false, batch.Error()
}

func (b *NATSBackend) Remove(sessionID, itemID string) error {
	b.mu.Lock()
	msg, ok := b.pending[itemID]
	delete(b.pending, itemID)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return msg.Ack()
}

func (b *NATSBackend) ListPending(sessionID string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cons, err := b.consumerFor(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("consumer for %s: %w", sessionID, err)
	}
	info, err := cons.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("consumer info for %s: %w", sessionID, err)
	}
	_ = info // pending count available via info.NumPending; items themselves require a peek, not exposed by the work-queue policy.
	return nil, nil
}

func (b *NATSBackend) Close() error {
	b.nc.Close()
	return nil
}
