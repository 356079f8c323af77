package turn

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentcore/internal/contracts"
	"github.com/vinayprograms/agentcore/internal/memory"
)

const maxRetainedUserMessages = 8

// PromptRequest is what collector plugins see when asked to contribute.
type PromptRequest struct {
	SessionID string
	Messages  []contracts.Message
}

// systemGuidance is prepended to every assembled prompt.
const systemGuidance = "You are an autonomous agent operating under the configured profile's autonomy policy."

// assemblePrompt builds the final message list for a turn: system
// guidance, session memory context, plugin-derived system notes, then the
// context-drift-trimmed conversation (spec.md §4.9 step 2).
func (r *Runtime) assemblePrompt(ctx context.Context, sessionID string, messages []contracts.Message) []contracts.Message {
	var out []contracts.Message
	out = append(out, contracts.Message{Role: "system", Content: systemGuidance})

	if memCtx := r.memoryContext(sessionID); memCtx != "" {
		out = append(out, contracts.Message{Role: "system", Content: memCtx})
	}

	artifacts := r.runCollectors(ctx, PromptRequest{SessionID: sessionID, Messages: messages})
	insights := r.runAnalyzers(ctx, artifacts)
	for _, note := range r.runSynthesizers(ctx, insights) {
		out = append(out, contracts.Message{Role: "system", Content: note})
	}

	trimmed, notes := applyContextDriftPolicy(messages)
	for _, note := range notes {
		out = append(out, contracts.Message{Role: "system", Content: note})
	}

	return append(out, trimmed...)
}

// applyContextDriftPolicy retains at most the 8 newest user-role messages
// (spec.md §4.9 step 2, §8 scenario 8), returning any system notes that
// must be surfaced alongside the trimmed list.
func applyContextDriftPolicy(messages []contracts.Message) ([]contracts.Message, []string) {
	total := len(messages)
	userIdx := make([]int, 0, total)
	for i, m := range messages {
		if m.Role == "user" {
			userIdx = append(userIdx, i)
		}
	}

	var notes []string
	trimmed := messages
	if len(userIdx) > maxRetainedUserMessages {
		keepFrom := userIdx[len(userIdx)-maxRetainedUserMessages]
		trimmed = messages[keepFrom:]
		notes = append(notes, fmt.Sprintf(
			"Context freshness policy retained %d of %d messages", maxRetainedUserMessages, len(userIdx)))
	}

	if note := detectConflictingDirectives(trimmed); note != "" {
		notes = append(notes, note)
	}
	return trimmed, notes
}

// directiveAntonyms is a small, explicit table of opposite imperative
// verbs; a conservative heuristic, not a full NLU pass.
var directiveAntonyms = map[string]string{
	"enable":  "disable",
	"disable": "enable",
	"start":   "stop",
	"stop":    "start",
	"allow":   "deny",
	"deny":    "allow",
	"always":  "never",
	"never":   "always",
}

// detectConflictingDirectives looks for a retained user message containing
// a directive verb and a later one containing its antonym, a simple
// directive/antidirective check per spec.md §4.9 step 2.
func detectConflictingDirectives(messages []contracts.Message) string {
	seen := make(map[string]int) // verb -> message index
	for i, m := range messages {
		if m.Role != "user" {
			continue
		}
		lower := strings.ToLower(m.Content)
		for verb := range directiveAntonyms {
			if strings.Contains(lower, verb) {
				seen[verb] = i
			}
		}
	}
	for verb, opposite := range directiveAntonyms {
		firstIdx, hasVerb := seen[verb]
		oppIdx, hasOpp := seen[opposite]
		if hasVerb && hasOpp && oppIdx > firstIdx {
			return fmt.Sprintf("Conflicting directives found: %q and %q", verb, opposite)
		}
	}
	return ""
}

// memoryContext renders recent memory, the last two daily logs, and
// long-memory content into a single system message, per spec.md §4.9 step 2
// ("inject session memory context (MEMORY.md + last two daily files;
// optional LONGMEMORY.md)").
func (r *Runtime) memoryContext(sessionID string) string {
	if r.memory == nil {
		return ""
	}
	var b strings.Builder
	recent := r.memory.ReadAll(memory.ReadOpts{SessionID: sessionID, Limit: recentMemoryLimit})
	if len(recent) > 0 {
		b.WriteString("Recent memory:\n")
		for _, rec := range recent {
			fmt.Fprintf(&b, "- [%s] %s\n", rec.Category, rec.Text)
		}
	}
	if daily := r.memory.ReadRecentDaily(dailyFilesRetained); len(daily) > 0 {
		b.WriteString("\nRecent daily logs:\n")
		for _, day := range daily {
			b.WriteString(day)
		}
	}
	if long, err := r.memory.ReadLongMemory(); err == nil && long != "" {
		b.WriteString("\nLong-term memory summary:\n")
		b.WriteString(long)
	}
	return b.String()
}

const recentMemoryLimit = 20
const dailyFilesRetained = 2
