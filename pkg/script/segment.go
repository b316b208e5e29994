package script

import "strings"

const (
	interpreterMarker  = "#!"
	promptKeyword      = "read -p"
	continuationMarker = `\`
)

// SplitCommands breaks script content into logical commands. The interpreter
// header and read -p prompt lines are dropped, lines ending in a backslash are
// joined with the next, and blank results are discarded.
func SplitCommands(content string) []string {
	var commands []string
	var current strings.Builder

	for _, line := range bodyLines(content) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasSuffix(trimmed, continuationMarker) {
			current.WriteString(strings.TrimRight(strings.TrimSuffix(trimmed, continuationMarker), " \t"))
			current.WriteString(" ")
			continue
		}
		current.WriteString(trimmed)
		if cmd := strings.TrimSpace(current.String()); cmd != "" {
			commands = append(commands, cmd)
		}
		current.Reset()
	}
	// Dangling continuation at end of script.
	if cmd := strings.TrimSpace(current.String()); cmd != "" {
		commands = append(commands, cmd)
	}
	return commands
}

// StripPrompts returns the script body without its interpreter header and
// read -p lines, keeping every other line verbatim.
func StripPrompts(content string) string {
	return strings.Join(bodyLines(content), "\n")
}

func bodyLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if i == 0 && strings.HasPrefix(trimmed, interpreterMarker) {
			continue
		}
		if strings.HasPrefix(trimmed, promptKeyword) {
			continue
		}
		out = append(out, line)
	}
	return out
}
