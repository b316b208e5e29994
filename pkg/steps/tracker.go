// Package steps groups execution output into titled steps delimited by
// in-band boundary declarations.
package steps

import (
	"strings"

	"github.com/ormasoftchile/gcloud-commander/pkg/script"
)

// InitialTitle is the sentinel title of the implicit first step.
const InitialTitle = "Initializing Execution..."

// FailureMarker separates a step's output from its failure message.
const FailureMarker = "--- EXECUTION FAILED ---"

// StderrPrefix marks stderr output inside a step log.
const StderrPrefix = "[STDERR] "

// Step is a completed, immutable unit of output.
type Step struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Log   string `json:"log"`
}

// State is the tracker's lifecycle state.
type State int

const (
	Accumulating State = iota
	Ended
	Failed
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Ended:
		return "ended"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Tracker accumulates output into the current step and flushes it when a
// boundary is crossed or execution terminates. A Tracker belongs to a single
// orchestration and is not safe for concurrent use.
type Tracker struct {
	state  State
	nextID int
	title  string
	log    strings.Builder
}

// NewTracker returns a tracker in its initial accumulating state.
func NewTracker() *Tracker {
	return &Tracker{title: InitialTitle}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State { return t.state }

// Title returns the title of the step currently accumulating, or of the step
// that was current when execution terminated.
func (t *Tracker) Title() string { return t.title }

// Boundary starts a new step. The previous step is returned if it qualifies
// for emission.
func (t *Tracker) Boundary(title string) (Step, bool) {
	if t.state != Accumulating {
		return Step{}, false
	}
	step, ok := t.flush()
	t.title = title
	return step, ok
}

// Append adds one newline-terminated chunk of output to the current step.
func (t *Tracker) Append(text string) {
	if t.state != Accumulating {
		return
	}
	t.log.WriteString(text)
	t.log.WriteString("\n")
}

// AppendResult records a command's stdout and stderr, stderr marked.
func (t *Tracker) AppendResult(stdout, stderr string) {
	if stdout != "" {
		t.Append(stdout)
	}
	if stderr != "" {
		t.Append(StderrPrefix + stderr)
	}
}

// Line feeds one line of streamed output. Lines carrying the step marker are
// treated as boundaries; everything else is appended.
func (t *Tracker) Line(line string) (Step, bool) {
	if title, ok := script.ParseBoundaryLine(line); ok {
		return t.Boundary(title)
	}
	t.Append(line)
	return Step{}, false
}

// Fail records message under the failure marker, flushes the current step and
// moves to the Failed state.
func (t *Tracker) Fail(message string) (Step, bool) {
	if t.state != Accumulating {
		return Step{}, false
	}
	t.log.WriteString("\n" + FailureMarker + "\n" + message + "\n")
	step, ok := t.flush()
	t.state = Failed
	return step, ok
}

// Finish flushes the final step and moves to the Ended state.
func (t *Tracker) Finish() (Step, bool) {
	if t.state != Accumulating {
		return Step{}, false
	}
	step, ok := t.flush()
	t.state = Ended
	return step, ok
}

// flush emits the current step unless it is the untouched initial step.
func (t *Tracker) flush() (Step, bool) {
	log := strings.TrimSpace(t.log.String())
	t.log.Reset()
	if log == "" && t.title == InitialTitle {
		return Step{}, false
	}
	step := Step{ID: t.nextID, Title: t.title, Log: log}
	t.nextID++
	return step, true
}
