package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/agentcore/internal/contracts"
)

func TestSubscribeFiltersBySessionAndSeesConnectingFirst(t *testing.T) {
	s := New(16)
	ch, unsubscribe := s.Subscribe("S")
	defer unsubscribe()

	s.Push(contracts.LifecycleEvent{Type: contracts.LifecycleStarted, SessionID: "S"})
	s.Push(contracts.LifecycleEvent{Type: contracts.LifecycleStarted, SessionID: "T"})
	s.Push(contracts.LifecycleEvent{Type: contracts.LifecycleCompleted, SessionID: "S"})

	first := recv(t, ch)
	require.Equal(t, contracts.LifecycleConnecting, first.Type)

	second := recv(t, ch)
	require.Equal(t, contracts.LifecycleStarted, second.Type)
	require.Equal(t, "S", second.SessionID)

	third := recv(t, ch)
	require.Equal(t, contracts.LifecycleCompleted, third.Type)
	require.Equal(t, "S", third.SessionID)

	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestUnfilteredSubscriberSeesEveryEvent(t *testing.T) {
	s := New(16)
	ch, unsubscribe := s.Subscribe("")
	defer unsubscribe()
	recv(t, ch) // connecting

	s.Push(contracts.LifecycleEvent{Type: contracts.LifecycleStarted, SessionID: "A"})
	s.Push(contracts.LifecycleEvent{Type: contracts.LifecycleStarted, SessionID: "B"})

	first := recv(t, ch)
	second := recv(t, ch)
	require.ElementsMatch(t, []string{"A", "B"}, []string{first.SessionID, second.SessionID})
}

func TestSeqIDMonotonicPerSession(t *testing.T) {
	s := New(16)
	ch, unsubscribe := s.Subscribe("S")
	defer unsubscribe()
	recv(t, ch) // connecting

	s.Push(contracts.LifecycleEvent{Type: contracts.LifecycleStarted, SessionID: "S"})
	s.Push(contracts.LifecycleEvent{Type: contracts.LifecycleCompleted, SessionID: "S"})

	first := recv(t, ch)
	second := recv(t, ch)
	require.Less(t, first.SeqID, second.SeqID)
}

func TestBackpressureDropsOldestAndCountsIt(t *testing.T) {
	s := New(2)
	_, unsubscribe := s.Subscribe("S")
	defer unsubscribe()

	for i := 0; i < 10; i++ {
		s.Push(contracts.LifecycleEvent{Type: contracts.LifecycleStarted, SessionID: "S"})
	}

	require.Greater(t, s.GetState().DroppedEvents, uint64(0))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := New(4)
	ch, unsubscribe := s.Subscribe("S")
	recv(t, ch) // connecting
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)
}

func recv(t *testing.T, ch <-chan contracts.LifecycleEvent) contracts.LifecycleEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return contracts.LifecycleEvent{}
	}
}
