package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunCompletesAllSteps(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	r := NewRunner(store)

	var ran []string
	def := Definition{ID: "deploy", Steps: []Step{
		{ID: "build", Run: func() error { ran = append(ran, "build"); return nil }},
		{ID: "test", Run: func() error { ran = append(ran, "test"); return nil }},
	}}

	st, err := r.Run(def, "key-1", nil)
	require.NoError(t, err)
	require.Equal(t, StepDone, st.Status)
	require.Equal(t, []string{"build", "test"}, ran)
}

func TestRunIsIdempotentOnRepeatCall(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	r := NewRunner(store)

	calls := 0
	def := Definition{ID: "deploy", Steps: []Step{
		{ID: "build", Run: func() error { calls++; return nil }},
	}}

	_, err = r.Run(def, "key-1", nil)
	require.NoError(t, err)
	_, err = r.Run(def, "key-1", nil)
	require.NoError(t, err)
	require.Equal(t, 1, calls, "a completed run must not re-execute steps")
}

func TestApprovalDenialSkipsAndFailsStep(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	r := NewRunner(store)

	var ran bool
	def := Definition{ID: "deploy", Steps: []Step{
		{ID: "ship", RequiresApproval: true, Run: func() error { ran = true; return nil }},
	}}

	st, err := r.Run(def, "key-1", func(stepID string) bool { return false })
	require.NoError(t, err)
	require.Equal(t, StepFailed, st.Status)
	require.Equal(t, StepSkipped, st.Steps[0].Status)
	require.False(t, ran)
}

func TestResumeSkipsDoneSteps(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	r := NewRunner(store)

	var ran []string
	def := Definition{ID: "deploy", Steps: []Step{
		{ID: "build", Run: func() error { ran = append(ran, "build"); return nil }},
		{ID: "test", Run: func() error { return errors.New("flaky") }},
	}}
	_, err = r.Run(def, "key-1", nil)
	require.Error(t, err)
	require.Equal(t, []string{"build"}, ran)

	// Restart from a fresh store/runner pointed at the same dir: the
	// "build" step must not re-run.
	store2, err := NewStore(dir)
	require.NoError(t, err)
	r2 := NewRunner(store2)
	def2 := Definition{ID: "deploy", Steps: []Step{
		{ID: "build", Run: func() error { ran = append(ran, "build-again"); return nil }},
		{ID: "test", Run: func() error { ran = append(ran, "test"); return nil }},
	}}
	st, err := r2.Run(def2, "key-1", nil)
	require.NoError(t, err)
	require.Equal(t, StepDone, st.Status)
	require.Equal(t, []string{"build", "test"}, ran)
}
