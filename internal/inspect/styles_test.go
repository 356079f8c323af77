package inspect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUsageBarNoMaxReturnsNA(t *testing.T) {
	require.Contains(t, usageBar(3, 0, 10), "n/a")
}

func TestUsageBarClampsAtFull(t *testing.T) {
	bar := usageBar(999, 10, 10)
	// strip ANSI styling before counting
	plain := stripANSI(bar)
	require.Equal(t, 10, strings.Count(plain, "#"))
}

func TestUsageBarProportional(t *testing.T) {
	bar := stripANSI(usageBar(5, 10, 10))
	require.Equal(t, 5, strings.Count(bar, "#"))
	require.Equal(t, 5, strings.Count(bar, "."))
}

func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
