package cli

import "github.com/charmbracelet/lipgloss"

var (
	green = lipgloss.Color("#10B981")
	red   = lipgloss.Color("#EF4444")
	dim   = lipgloss.Color("#6B7280")

	styleSuccess = lipgloss.NewStyle().Foreground(green).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(red).Bold(true)
	styleDim     = lipgloss.NewStyle().Foreground(dim)
	styleLabel   = lipgloss.NewStyle().Bold(true).Width(10)
)

// field prints an aligned "label value" line.
func field(label, value string) string {
	return styleLabel.Render(label) + " " + value
}
