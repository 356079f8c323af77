package tools

import (
	"strings"

	"github.com/vinayprograms/agentcore/internal/agenterr"
	"github.com/vinayprograms/agentcore/internal/contracts"
)

// AllowlistPolicy permits only calls to tools named in Allowed, and
// separately denies any call whose arguments contain a configured
// destructive pattern (e.g. "rm -rf", "DROP TABLE") regardless of
// allowlist membership.
type AllowlistPolicy struct {
	Allowed             map[string]bool
	DestructivePatterns []string
}

// NewAllowlistPolicy builds a policy from a tool-name allowlist and a set
// of case-insensitive destructive substrings.
func NewAllowlistPolicy(allowed []string, destructivePatterns []string) *AllowlistPolicy {
	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}
	return &AllowlistPolicy{Allowed: set, DestructivePatterns: destructivePatterns}
}

// Allow implements Policy.
func (p *AllowlistPolicy) Allow(call contracts.ToolCall) (bool, string) {
	if len(p.Allowed) > 0 && !p.Allowed[call.Name] {
		return false, agenterr.CodeToolPolicyBlocked
	}
	for _, v := range call.Args {
		s, ok := v.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(s)
		for _, pattern := range p.DestructivePatterns {
			if strings.Contains(lower, strings.ToLower(pattern)) {
				return false, agenterr.CodeToolDestructiveDenied
			}
		}
	}
	return true, ""
}

var _ Policy = (*AllowlistPolicy)(nil)
