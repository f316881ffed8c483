package console

import "github.com/charmbracelet/lipgloss"

var (
	colorSuccess = lipgloss.Color("#8BC34A")
	colorError   = lipgloss.Color("#e53935")
	colorInfo    = lipgloss.Color("#2196F3")
	colorMuted   = lipgloss.Color("#6b7280")
	colorBorder  = lipgloss.Color("#2a3850")
)

// Styles groups the console's lipgloss styles.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Focused lipgloss.Style
	Card    lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
	Help    lipgloss.Style
}

// DefaultStyles returns the console palette.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).MarginBottom(1),
		Label:   lipgloss.NewStyle().Foreground(colorMuted).Width(14),
		Focused: lipgloss.NewStyle().Bold(true).Width(14),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			MarginTop(1),
		Success: lipgloss.NewStyle().Foreground(colorSuccess),
		Error:   lipgloss.NewStyle().Foreground(colorError),
		Info:    lipgloss.NewStyle().Foreground(colorInfo),
		Help:    lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1),
	}
}
