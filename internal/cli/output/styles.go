package output

import "github.com/charmbracelet/lipgloss"

// Styles is the renderer's lipgloss style set. When output is not a
// terminal every style is the zero style, so Render returns its input
// unchanged and no escape codes reach pipes or files.
type Styles struct {
	Header1    lipgloss.Style
	Header2    lipgloss.Style
	Bold       lipgloss.Style
	Muted      lipgloss.Style
	Error      lipgloss.Style
	Warning    lipgloss.Style
	Info       lipgloss.Style
	Success    lipgloss.Style
	TargetPath lipgloss.Style
}

func newStyles(colored bool) *Styles {
	if !colored {
		return &Styles{}
	}
	return &Styles{
		Header1: lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#1d4ed8", Dark: "#60a5fa"}),
		Header2: lipgloss.NewStyle().Bold(true),
		Bold:    lipgloss.NewStyle().Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#6b7280", Dark: "#9ca3af"}),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#dc2626", Dark: "#f87171"}),
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#d97706", Dark: "#fbbf24"}),
		Info: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#2563eb", Dark: "#93c5fd"}),
		Success: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#16a34a", Dark: "#4ade80"}),
		TargetPath: lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#0f766e", Dark: "#2dd4bf"}),
	}
}
