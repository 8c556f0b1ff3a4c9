package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/agusx1211/brood/internal/registry"
)

// Color palette - dark theme inspired by Catppuccin Mocha
var (
	ColorBase     = lipgloss.Color("#1e1e2e")
	ColorSurface0 = lipgloss.Color("#313244")
	ColorSurface2 = lipgloss.Color("#585b70")
	ColorOverlay0 = lipgloss.Color("#6c7086")
	ColorText     = lipgloss.Color("#cdd6f4")
	ColorSubtext0 = lipgloss.Color("#a6adc8")

	ColorRed      = lipgloss.Color("#f38ba8")
	ColorGreen    = lipgloss.Color("#a6e3a1")
	ColorYellow   = lipgloss.Color("#f9e2af")
	ColorBlue     = lipgloss.Color("#89b4fa")
	ColorMauve    = lipgloss.Color("#cba6f7")
	ColorPeach    = lipgloss.Color("#fab387")
	ColorLavender = lipgloss.Color("#b4befe")
)

// Status indicator styles
var (
	StatusInProgress  = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)
	StatusDone        = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	StatusFailed      = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	StatusInterrupted = lipgloss.NewStyle().Foreground(ColorPeach).Bold(true)
	StatusUnknown     = lipgloss.NewStyle().Foreground(ColorOverlay0)
)

// Shared text styles
var (
	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBase).
		Background(ColorBlue).
		Padding(0, 2)

	Label = lipgloss.NewStyle().Bold(true).Foreground(ColorMauve)
	Dim   = lipgloss.NewStyle().Foreground(ColorOverlay0)
	Text  = lipgloss.NewStyle().Foreground(ColorText)
)

// StatusStyle returns the style used to render an agent status.
func StatusStyle(s registry.Status) lipgloss.Style {
	switch s {
	case registry.StatusInProgress:
		return StatusInProgress
	case registry.StatusDone:
		return StatusDone
	case registry.StatusFailed:
		return StatusFailed
	case registry.StatusInterrupted:
		return StatusInterrupted
	default:
		return StatusUnknown
	}
}

// StatusIcon returns a one-glyph indicator for an agent status.
func StatusIcon(s registry.Status) string {
	switch s {
	case registry.StatusInProgress:
		return "●"
	case registry.StatusDone:
		return "✓"
	case registry.StatusFailed:
		return "✗"
	case registry.StatusInterrupted:
		return "■"
	default:
		return "?"
	}
}

// StatusBadge renders "<icon> <status>" in the status color.
func StatusBadge(s registry.Status) string {
	text := string(s)
	if text == "" {
		text = "unknown"
	}
	return StatusStyle(s).Render(StatusIcon(s) + " " + text)
}
