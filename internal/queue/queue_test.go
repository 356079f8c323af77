package queue

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testBackends(t *testing.T) map[string]Backend {
	fileBackend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   fileBackend,
	}
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	for name, backend := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := backend.Enqueue("sess-1", json.RawMessage(`{"n":1}`))
			require.NoError(t, err)
			second, err := backend.Enqueue("sess-1", json.RawMessage(`{"n":2}`))
			require.NoError(t, err)
			require.NotEqual(t, first.ID, second.ID)

			head, ok, err := backend.Dequeue("sess-1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, first.ID, head.ID)
		})
	}
}

func TestAtLeastOnceRedeliveryOnMissingRemove(t *testing.T) {
	for name, backend := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			item, err := backend.Enqueue("sess-1", json.RawMessage(`{"n":1}`))
			require.NoError(t, err)

			// Simulate a crash between Dequeue and Remove: Dequeue again
			// without ever calling Remove must redeliver the same item.
			first, ok, err := backend.Dequeue("sess-1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, item.ID, first.ID)

			second, ok, err := backend.Dequeue("sess-1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, item.ID, second.ID)

			require.NoError(t, backend.Remove("sess-1", item.ID))

			_, ok, err = backend.Dequeue("sess-1")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestListPendingAndSessionIsolation(t *testing.T) {
	for name, backend := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := backend.Enqueue("sess-a", json.RawMessage(`{}`))
			require.NoError(t, err)
			_, err = backend.Enqueue("sess-b", json.RawMessage(`{}`))
			require.NoError(t, err)

			pendingA, err := backend.ListPending("sess-a")
			require.NoError(t, err)
			require.Len(t, pendingA, 1)

			pendingB, err := backend.ListPending("sess-b")
			require.NoError(t, err)
			require.Len(t, pendingB, 1)
		})
	}
}

func TestFileBackendSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir)
	require.NoError(t, err)
	item, err := backend.Enqueue("sess-1", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	reopened, err := NewFileBackend(dir)
	require.NoError(t, err)
	head, ok, err := reopened.Dequeue("sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, item.ID, head.ID)
}

func TestSanitizeSubjectToken(t *testing.T) {
	require.Equal(t, "sess-1", sanitizeSubjectToken("sess-1"))
	require.Equal(t, "sess_1_b", sanitizeSubjectToken("sess.1 b"))
	require.Equal(t, "_empty", sanitizeSubjectToken(""))
}

// natsTestURL returns the server to dial for NATSBackend coverage, or ""
// when none is configured. These tests need a real JetStream server and
// are skipped unless NATS_TEST_URL points at one — there's no embedded
// JetStream server in this module's dependency set to fake it with.
func natsTestURL() string {
	return os.Getenv("NATS_TEST_URL")
}

func TestNATSBackendEnqueueDequeueFIFO(t *testing.T) {
	url := natsTestURL()
	if url == "" {
		t.Skip("NATS_TEST_URL not set; skipping live JetStream test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	backend, err := NewNATSBackend(ctx, url, "agentcore-queue-test", 0)
	require.NoError(t, err)
	defer backend.Close()

	first, err := backend.Enqueue("sess-1", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	second, err := backend.Enqueue("sess-1", json.RawMessage(`{"n":2}`))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	head, ok, err := backend.Dequeue("sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.ID, head.ID)
	require.NoError(t, backend.Remove("sess-1", head.ID))
}
