package turn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/agentcore/internal/contracts"
	"github.com/vinayprograms/agentcore/internal/lifecycle"
	"github.com/vinayprograms/agentcore/internal/memory"
)

// scriptedAdapter replays a fixed sequence of events for every SendTurn
// call, a minimal contracts.ModelAdapter test double.
type scriptedAdapter struct {
	script [][]contracts.AdapterEvent
	call   int
}

func (a *scriptedAdapter) CreateSession(ctx context.Context) (contracts.Handle, error) {
	return struct{}{}, nil
}

func (a *scriptedAdapter) SendTurn(ctx context.Context, h contracts.Handle, messages []contracts.Message, tools []contracts.ToolSpec, opts contracts.SendOptions) (<-chan contracts.AdapterEvent, error) {
	events := a.script[a.call]
	a.call++
	ch := make(chan contracts.AdapterEvent, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func (a *scriptedAdapter) Cancel(turnID string) {}
func (a *scriptedAdapter) Close(h contracts.Handle) error { return nil }

func TestRunTurnCompletesAndWritesMemory(t *testing.T) {
	adapter := &scriptedAdapter{script: [][]contracts.AdapterEvent{
		{
			{Type: contracts.EventAssistantDelta, Delta: "hello "},
			{Type: contracts.EventAssistantDelta, Delta: "world"},
			{Type: contracts.EventDone},
		},
	}}
	mem := memory.New(t.TempDir())
	stream := lifecycle.New(0)
	rt := New(Config{Adapter: adapter, Memory: mem, Stream: stream})

	outcome, err := rt.RunTurn(context.Background(), Request{
		Session:  Session{SessionID: "s1"},
		Messages: []contracts.Message{{Role: "user", Content: "hi"}},
		RunID:    "run-1",
	})
	require.NoError(t, err)
	require.Equal(t, "hello world", outcome.FinalText)

	records := mem.ReadAll(memory.ReadOpts{SessionID: "s1"})
	require.Len(t, records, 1)
	require.Equal(t, memory.CategoryTurnSummary, records[0].Category)
}

func TestRunTurnDispatchesToolCallThenCompletes(t *testing.T) {
	adapter := &scriptedAdapter{script: [][]contracts.AdapterEvent{
		{{Type: contracts.EventToolCall, ToolCall: &contracts.ToolCall{ID: "t1", Name: "echo", Args: map[string]any{}}}},
		{{Type: contracts.EventAssistantDelta, Delta: "done"}, {Type: contracts.EventDone}},
	}}
	tools := &stubToolRouter{result: contracts.ToolExecResult{Output: "echoed"}}
	rt := New(Config{Adapter: adapter, Tools: tools})

	outcome, err := rt.RunTurn(context.Background(), Request{
		Session:  Session{SessionID: "s1"},
		Messages: []contracts.Message{{Role: "user", Content: "run echo"}},
	})
	require.NoError(t, err)
	require.Equal(t, "done", outcome.FinalText)
	require.Equal(t, 1, tools.calls)
}

type stubToolRouter struct {
	result contracts.ToolExecResult
	err    error
	calls  int
}

func (s *stubToolRouter) Execute(call contracts.ToolCall, ctx contracts.ToolCallCtx) (contracts.ToolExecResult, error) {
	s.calls++
	return s.result, s.err
}

func TestRunTurnCancellationWritesNoMemory(t *testing.T) {
	adapter := &scriptedAdapter{script: [][]contracts.AdapterEvent{{}}}
	mem := memory.New(t.TempDir())
	rt := New(Config{Adapter: adapter, Memory: mem})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := rt.RunTurn(ctx, Request{
		Session:  Session{SessionID: "s1"},
		Messages: []contracts.Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)
	require.True(t, outcome.Failed)
	require.Equal(t, "cancelled", outcome.ReasonCode)

	records := mem.ReadAll(memory.ReadOpts{SessionID: "s1"})
	require.Empty(t, records)
}

// blockingAdapter holds every SendTurn call open until release is closed,
// tracking the high-water mark of concurrent in-flight calls.
type blockingAdapter struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	release     chan struct{}
}

func (a *blockingAdapter) CreateSession(ctx context.Context) (contracts.Handle, error) {
	return struct{}{}, nil
}

func (a *blockingAdapter) SendTurn(ctx context.Context, h contracts.Handle, messages []contracts.Message, tools []contracts.ToolSpec, opts contracts.SendOptions) (<-chan contracts.AdapterEvent, error) {
	a.mu.Lock()
	a.inFlight++
	if a.inFlight > a.maxInFlight {
		a.maxInFlight = a.inFlight
	}
	a.mu.Unlock()

	<-a.release

	a.mu.Lock()
	a.inFlight--
	a.mu.Unlock()

	ch := make(chan contracts.AdapterEvent, 1)
	ch <- contracts.AdapterEvent{Type: contracts.EventDone}
	close(ch)
	return ch, nil
}

func (a *blockingAdapter) Cancel(turnID string)           {}
func (a *blockingAdapter) Close(h contracts.Handle) error { return nil }

func TestRunTurnSerializesPerSession(t *testing.T) {
	adapter := &blockingAdapter{release: make(chan struct{})}
	rt := New(Config{Adapter: adapter})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = rt.RunTurn(context.Background(), Request{
				Session:  Session{SessionID: "s1"},
				Messages: []contracts.Message{{Role: "user", Content: "hi"}},
			})
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(adapter.release)
	wg.Wait()

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	require.Equal(t, 1, adapter.maxInFlight, "two turns for the same session must never be in flight together")
}

func TestRunTurnAllowsConcurrentDistinctSessions(t *testing.T) {
	adapter := &blockingAdapter{release: make(chan struct{})}
	rt := New(Config{Adapter: adapter})

	var wg sync.WaitGroup
	for _, sessionID := range []string{"s1", "s2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = rt.RunTurn(context.Background(), Request{
				Session:  Session{SessionID: id},
				Messages: []contracts.Message{{Role: "user", Content: "hi"}},
			})
		}(sessionID)
	}

	time.Sleep(50 * time.Millisecond)
	close(adapter.release)
	wg.Wait()

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	require.Equal(t, 2, adapter.maxInFlight, "distinct sessions must be allowed to run concurrently")
}
