package script

import (
	"regexp"
	"strings"
)

// StepMarker prefixes every in-band step declaration.
const StepMarker = "---STEP:"

// UntitledStep is used when a boundary declares an empty title.
const UntitledStep = "Untitled Step"

// boundaryRe matches echo "---STEP:<title>" (single or double quotes).
var boundaryRe = regexp.MustCompile(`^echo\s+(?:"` + regexp.QuoteMeta(StepMarker) + `([^"]*)"|'` + regexp.QuoteMeta(StepMarker) + `([^']*)')`)

// ParseBoundary reports whether command declares a new step and returns the
// trimmed title it carries.
func ParseBoundary(command string) (string, bool) {
	m := boundaryRe.FindStringSubmatch(strings.TrimSpace(command))
	if m == nil {
		return "", false
	}
	return normalizeTitle(m[1] + m[2]), true
}

// ParseBoundaryLine is the output-line form of ParseBoundary, used when a
// backend streams the script's output instead of running it per command.
func ParseBoundaryLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, StepMarker) {
		return "", false
	}
	return normalizeTitle(strings.TrimPrefix(trimmed, StepMarker)), true
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return UntitledStep
	}
	return title
}
