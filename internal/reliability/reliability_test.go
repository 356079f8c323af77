package reliability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreBaseline(t *testing.T) {
	score := Score(ConfidenceInput{})
	require.Equal(t, baseConfidence, score.Score)
	require.Empty(t, score.Rationale)
}

func TestScorePenalizesFailuresAndRewardsSignals(t *testing.T) {
	score := Score(ConfidenceInput{
		FailureCount:          1,
		HasDeepScan:           true,
		HasRecentTestsPassing: true,
	})
	require.Equal(t, baseConfidence-8+6+10, score.Score)
	require.Len(t, score.Rationale, 3)
}

func TestScoreClampedToRange(t *testing.T) {
	score := Score(ConfidenceInput{FailureCount: 20})
	require.Equal(t, 0, score.Score)
}

func TestReasoningResetTriggersAtThreshold(t *testing.T) {
	c := NewReasoningResetController(3)
	require.False(t, c.NoteToolCall("s1"))
	require.False(t, c.NoteToolCall("s1"))
	require.True(t, c.NoteToolCall("s1"))
	// Counter was zeroed by the reset; next call starts fresh.
	require.False(t, c.NoteToolCall("s1"))
}

func TestReasoningResetIsPerSession(t *testing.T) {
	c := NewReasoningResetController(2)
	require.False(t, c.NoteToolCall("s1"))
	require.False(t, c.NoteToolCall("s2"))
}

func TestNoteTaskResolvedClearsCounter(t *testing.T) {
	c := NewReasoningResetController(2)
	require.False(t, c.NoteToolCall("s1"))
	c.NoteTaskResolved("s1")
	require.False(t, c.NoteToolCall("s1"))
}

func TestActionEnvelopeFlagsLowConfidence(t *testing.T) {
	env := NewActionEnvelope("a1", "r1", "s1", "tool-call", ConfidenceInput{FailureCount: 5}, 60, 1000)
	require.True(t, env.RequiresHumanHint)
	require.Equal(t, "a1", env.ActionID)
}
