// Package tui renders orchestrated runs in the terminal: an interactive
// Bubble Tea view, a plain printer for pipes, an HTTP client for a running
// commander server and readline prompts for script inputs.
package tui

import "github.com/charmbracelet/lipgloss"

// Step status glyphs convey meaning without relying on color alone.
const (
	GlyphRunning = "▸"
	GlyphPassed  = "✓"
	GlyphFailed  = "✗"
	GlyphSummary = "◆"
)

// Palette adapts to terminal capabilities via lipgloss.
var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorCyan   = lipgloss.Color("51")
	colorPurple = lipgloss.Color("135")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorPurple).
	Padding(0, 1)

var (
	stepNormal = lipgloss.NewStyle().
			Foreground(colorWhite)

	stepSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	stepPassed = lipgloss.NewStyle().
			Foreground(colorGreen)

	stepFailed = lipgloss.NewStyle().
			Foreground(colorRed)
)

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	logStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	stderrStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

var (
	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)
