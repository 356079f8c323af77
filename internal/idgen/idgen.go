// Package idgen centralizes id generation (ULID for durable records, UUID
// for ephemeral run/audit ids) and the session-id filename sanitization
// rule from spec.md §6.
package idgen

import (
	"crypto/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewULID returns a new, monotonically-sortable ULID string — used for
// MemoryRecord.id, matching the "ULID-like" id spec.md §3 calls for.
func NewULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// ulidEntropy is shared by every NewULID call so that ids minted within the
// same millisecond still sort in creation order.
var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewUUID returns a new random UUID string, used for run ids and audit ids.
func NewUUID() string {
	return uuid.NewString()
}

var sessionIDUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeSessionID implements the spec.md §6 filename-sanitization rule:
// any character outside [A-Za-z0-9_-] becomes '_'; an empty result becomes
// "_empty"; an input made only of dots becomes "__".
func SanitizeSessionID(sessionID string) string {
	if sessionID == "" {
		return "_empty"
	}
	if strings.Trim(sessionID, ".") == "" {
		return "__"
	}
	sanitized := sessionIDUnsafe.ReplaceAllString(sessionID, "_")
	if sanitized == "" {
		return "_empty"
	}
	return sanitized
}
