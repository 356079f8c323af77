package turn

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/agentcore/internal/contracts"
)

func userMessages(n int) []contracts.Message {
	var out []contracts.Message
	for i := 0; i < n; i++ {
		out = append(out, contracts.Message{Role: "user", Content: fmt.Sprintf("message %d", i)})
	}
	return out
}

func TestContextDriftRetainsNewest8(t *testing.T) {
	messages := userMessages(12)
	trimmed, notes := applyContextDriftPolicy(messages)

	userCount := 0
	for _, m := range trimmed {
		if m.Role == "user" {
			userCount++
		}
	}
	require.LessOrEqual(t, userCount, 8)
	require.Len(t, notes, 1)
	require.Contains(t, notes[0], "Context freshness policy retained")
}

func TestContextDriftNoOpUnderLimit(t *testing.T) {
	messages := userMessages(3)
	trimmed, notes := applyContextDriftPolicy(messages)
	require.Len(t, trimmed, 3)
	require.Empty(t, notes)
}

func TestConflictingDirectivesDetected(t *testing.T) {
	messages := []contracts.Message{
		{Role: "user", Content: "please enable verbose logging"},
		{Role: "user", Content: "actually disable verbose logging"},
	}
	_, notes := applyContextDriftPolicy(messages)
	found := false
	for _, n := range notes {
		if strings.Contains(n, "Conflicting directives found") {
			found = true
		}
	}
	require.True(t, found)
}
