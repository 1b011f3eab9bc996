package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/manualqa/internal/manual"
)

var (
	// titleStyle for bold headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	// dimStyle for muted metadata text
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// successStyle for success indicators
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	// errorStyle for error indicators
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	// boxStyle for the answer box
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

// categoryStyle renders a category label in its configured color.
func categoryStyle(c manual.Category) lipgloss.Style {
	info, ok := manual.Categories[c]
	if !ok {
		return dimStyle
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(info.Color))
}

func categoryLabel(c manual.Category) string {
	if info, ok := manual.Categories[c]; ok {
		return info.Label
	}
	return string(c)
}
