// Package diagram renders the step flow of a script.
// Supports Mermaid flowchart and ASCII formats.
package diagram

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/ormasoftchile/gcloud-commander/pkg/script"
)

// Format represents the output diagram format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Node is one box of the flow: a titled group of commands.
type Node struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Commands []string `json:"commands"`
}

// Flow is the ordered list of nodes of a script.
type Flow struct {
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
}

// Titles of nodes that have no boundary of their own.
const (
	InitialTitle = "Initial Commands"
	ScriptTitle  = "Script Commands"
	NoCommands   = "No commands in this step."
)

// Parse groups the commands of content under their step boundaries.
// Commands before the first boundary form an "Initial Commands" node; a
// script without boundaries is a single "Script Commands" node.
func Parse(name, content string) *Flow {
	f := &Flow{Name: name}
	commands := script.SplitCommands(content)
	if len(commands) == 0 {
		return f
	}

	var current *Node
	var initial []string
	stepIdx := 0
	for _, c := range commands {
		if title, ok := script.ParseBoundary(c); ok {
			f.Nodes = append(f.Nodes, Node{ID: fmt.Sprintf("step-%d", stepIdx), Title: title})
			current = &f.Nodes[len(f.Nodes)-1]
			stepIdx++
			continue
		}
		if current == nil {
			initial = append(initial, c)
			continue
		}
		current.Commands = append(current.Commands, c)
	}

	switch {
	case stepIdx == 0:
		f.Nodes = []Node{{ID: "step-0", Title: ScriptTitle, Commands: initial}}
	case len(initial) > 0:
		f.Nodes = append([]Node{{ID: "initial-commands", Title: InitialTitle, Commands: initial}}, f.Nodes...)
	}
	return f
}

// Generate produces a diagram string from a parsed flow.
func Generate(f *Flow, format Format) (string, error) {
	if f == nil {
		return "", fmt.Errorf("nil flow")
	}
	switch format {
	case FormatMermaid:
		return generateMermaid(f), nil
	case FormatASCII:
		return generateASCII(f), nil
	default:
		return "", fmt.Errorf("unsupported diagram format: %s", format)
	}
}

// --- Mermaid flowchart ---

const maxMermaidCommands = 5

func generateMermaid(f *Flow) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	b.WriteString("    START([Start Execution])\n")
	if len(f.Nodes) == 0 {
		return b.String()
	}

	prev := "START"
	for _, n := range f.Nodes {
		id := safeID(n.ID)
		b.WriteString("    " + nodeDefinition(n) + "\n")
		b.WriteString(fmt.Sprintf("    %s --> %s\n", prev, id))
		prev = id
	}
	b.WriteString("    END([End])\n")
	b.WriteString(fmt.Sprintf("    %s --> END\n", prev))
	b.WriteString("    style START fill:#9D4EDD,color:#fff\n")
	return b.String()
}

func nodeDefinition(n Node) string {
	lines := []string{"<b>" + escMermaid(n.Title) + "</b>"}
	if len(n.Commands) == 0 {
		lines = append(lines, "<i>"+NoCommands+"</i>")
	}
	for i, c := range n.Commands {
		if i == maxMermaidCommands {
			lines = append(lines, fmt.Sprintf("… %d more", len(n.Commands)-i))
			break
		}
		lines = append(lines, escMermaid(truncate(c, 48)))
	}
	return fmt.Sprintf(`%s["%s"]`, safeID(n.ID), strings.Join(lines, "<br/>"))
}

// --- ASCII ---

const (
	asciiIndent   = 4
	asciiMinWidth = 22
	asciiMaxWidth = 72
)

func generateASCII(f *Flow) string {
	var b strings.Builder

	name := f.Name
	if name == "" {
		name = "Script"
	}
	if len(f.Nodes) == 0 {
		b.WriteString(name + " (empty)\n")
		return b.String()
	}

	boxWidth := computeUniformBoxWidth(f, name)
	connCol := asciiIndent + 1 + boxWidth/2
	pad := strings.Repeat(" ", asciiIndent)
	connPad := strings.Repeat(" ", connCol)
	mid := boxWidth / 2

	b.WriteString(pad + "╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString(pad + "║" + centerPad(name, boxWidth) + "║\n")
	b.WriteString(pad + "╚" + strings.Repeat("═", mid) + "╤" + strings.Repeat("═", boxWidth-mid-1) + "╝\n")

	for _, n := range f.Nodes {
		b.WriteString(connPad + "│\n")
		writeASCIINode(&b, n, boxWidth)
	}
	b.WriteString(connPad + "│\n")
	b.WriteString(strings.Repeat(" ", connCol-2) + "(end)\n")
	return b.String()
}

func nodeLines(n Node) []string {
	lines := []string{" ▸ " + n.Title + " "}
	if len(n.Commands) == 0 {
		return append(lines, "   "+NoCommands+" ")
	}
	for _, c := range n.Commands {
		lines = append(lines, "   $ "+c+" ")
	}
	return lines
}

// computeUniformBoxWidth returns the widest interior width needed across all
// nodes and the header name, clamped to asciiMaxWidth.
func computeUniformBoxWidth(f *Flow, name string) int {
	w := asciiMinWidth
	if nw := runewidth.StringWidth(name) + 4; nw > w {
		w = nw
	}
	for _, n := range f.Nodes {
		for _, l := range nodeLines(n) {
			if lw := runewidth.StringWidth(l); lw > w {
				w = lw
			}
		}
	}
	if w > asciiMaxWidth {
		w = asciiMaxWidth
	}
	return w
}

func writeASCIINode(b *strings.Builder, n Node, boxWidth int) {
	pad := strings.Repeat(" ", asciiIndent)
	mid := boxWidth / 2

	b.WriteString(pad + "┌" + strings.Repeat("─", mid) + "┴" + strings.Repeat("─", boxWidth-mid-1) + "┐\n")
	for i, l := range nodeLines(n) {
		l = runewidth.Truncate(l, boxWidth, "…")
		b.WriteString(pad + "│" + l + strings.Repeat(" ", boxWidth-runewidth.StringWidth(l)) + "│\n")
		if i == 0 && len(n.Commands) > 0 {
			b.WriteString(pad + "├" + strings.Repeat("╌", boxWidth) + "┤\n")
		}
	}
	b.WriteString(pad + "└" + strings.Repeat("─", mid) + "┬" + strings.Repeat("─", boxWidth-mid-1) + "┘\n")
}

// centerPad centers s within width using spaces, based on display width.
func centerPad(s string, width int) string {
	s = runewidth.Truncate(s, width, "…")
	sw := runewidth.StringWidth(s)
	total := width - sw
	left := total / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", total-left)
}

// --- string helpers ---

func safeID(id string) string {
	r := strings.NewReplacer("-", "_", " ", "_", ".", "_")
	return r.Replace(id)
}

func escMermaid(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	s = strings.ReplaceAll(s, `'`, "#apos;")
	s = strings.ReplaceAll(s, "<", "#lt;")
	s = strings.ReplaceAll(s, ">", "#gt;")
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
