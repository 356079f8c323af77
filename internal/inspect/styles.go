package inspect

import "github.com/charmbracelet/lipgloss"

// Color scheme adapted from vinayprograms-agent's internal/replay — one
// distinct, consistent color per concern instead of per component, since
// inspect shows orchestrator subsystems rather than agent event types.
var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	barFilledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	barEmptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	headerBarStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// usageBar renders a fixed-width "####....." gauge for used/max.
func usageBar(used, max, width int) string {
	if max <= 0 {
		return dimStyle.Render("n/a")
	}
	filled := width * used / max
	if filled > width {
		filled = width
	}
	bar := barFilledStyle.Render(repeat("#", filled)) + barEmptyStyle.Render(repeat(".", width-filled))
	return bar
}

func repeat(s string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
