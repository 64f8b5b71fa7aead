package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 1)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00ffff"))

	Subtle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666688"))

	StatusOK = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ff88"))

	StatusFail = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ff4444"))

	FieldName = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffcc00"))

	MetricValue = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ccff")).
			Bold(true)

	MetricLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))
)

// BoxWithTitle renders content inside a rounded panel headed by title.
func BoxWithTitle(title, content string) string {
	return Panel.Render(Title.Render(title) + "\n" + content)
}

// Separator returns a muted horizontal rule.
func Separator(width int) string {
	if width < 7 {
		width = 7
	}
	mid := width / 2
	return Subtle.Render(strings.Repeat("─", mid-3) + " ◆ " + strings.Repeat("─", width-mid-3))
}

// metricLines aligns label/value pairs into one column.
func metricLines(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(MetricLabel.Render(p[0] + ":" + strings.Repeat(" ", width-len(p[0])+1)))
		b.WriteString(MetricValue.Render(p[1]))
	}
	return b.String()
}
