package tui

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"

	"github.com/ormasoftchile/gcloud-commander/pkg/steps"
	"github.com/ormasoftchile/gcloud-commander/pkg/stream"
)

// FailedSummary replaces a summary that could not be fetched.
const FailedSummary = "Failed to get summary."

// RunError reports a run that ended with an Error event.
type RunError struct {
	Message string
}

func (e *RunError) Error() string { return e.Message }

// Printer writes a run as plain text, for pipes and CI logs.
type Printer struct {
	Out io.Writer
	// Summarize, when set, is called once per step concurrently with the
	// run; summaries are printed after the run ends.
	Summarize SummaryFunc
}

// Print consumes events until the terminal event and returns a *RunError
// when the run failed.
func (p *Printer) Print(ctx context.Context, events iter.Seq[stream.Event]) error {
	var (
		wg        sync.WaitGroup
		titles    []string
		summaries []*string
		runErr    error
		n         int
	)

	for ev := range events {
		switch ev.Type {
		case stream.TypeStep:
			step, _ := ev.Step()
			n++
			p.printStep(n, step)
			if p.Summarize != nil {
				titles = append(titles, step.Title)
				slot := new(string)
				summaries = append(summaries, slot)
				wg.Add(1)
				go func() {
					defer wg.Done()
					text, err := p.Summarize(ctx, step.Log)
					if err != nil || strings.TrimSpace(text) == "" {
						text = FailedSummary
					}
					*slot = text
				}()
			}
		case stream.TypeError:
			fmt.Fprintf(p.Out, "%s %s\n", GlyphFailed, ev.Message())
			runErr = &RunError{Message: ev.Message()}
		case stream.TypeEnd:
			fmt.Fprintf(p.Out, "%s Execution finished.\n", GlyphPassed)
		}
	}

	wg.Wait()
	if len(summaries) > 0 {
		fmt.Fprintln(p.Out, "\nSummaries:")
		for i, s := range summaries {
			fmt.Fprintf(p.Out, "%s %s\n%s\n", GlyphSummary, titles[i], indent(*s, "  "))
		}
	}
	return runErr
}

func (p *Printer) printStep(n int, step steps.Step) {
	glyph := GlyphPassed
	if strings.Contains(step.Log, steps.FailureMarker) {
		glyph = GlyphFailed
	}
	fmt.Fprintf(p.Out, "%s Step %d: %s\n", glyph, n, step.Title)
	if step.Log != "" {
		fmt.Fprintln(p.Out, indent(step.Log, "    "))
	}
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
