package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartStopIsIdempotent(t *testing.T) {
	o := New(Config{})
	require.NoError(t, o.Start(context.Background()))
	require.NoError(t, o.Start(context.Background()), "starting twice must be a no-op")
	require.NoError(t, o.Stop())
	require.NoError(t, o.Stop(), "stopping twice must be a no-op")
}

func TestQueueProactiveIntentPersistsAndReflectsInState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "intents.json")
	o := New(Config{IntentStatePath: statePath})

	intent := o.QueueProactiveIntent("chan-1", "reminder text", time.Now())
	require.Equal(t, IntentPending, intent.Status)

	state := o.GetState()
	require.Equal(t, 1, state.PendingIntents)
}

func TestGetStateReportsRunning(t *testing.T) {
	o := New(Config{})
	require.False(t, o.GetState().Running)
	require.NoError(t, o.Start(context.Background()))
	require.True(t, o.GetState().Running)
	require.NoError(t, o.Stop())
	require.False(t, o.GetState().Running)
}
