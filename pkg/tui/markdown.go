package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// renderMarkdown renders a summary constrained to width columns. It falls
// back to the raw text when glamour cannot render it.
func renderMarkdown(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	// Glamour pads with blank lines; trim for inline use.
	return strings.Trim(out, "\n")
}
