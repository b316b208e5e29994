package providers

import (
	"context"
	"strings"

	"github.com/ormasoftchile/gcloud-commander/pkg/script"
)

// DryRunExecutor reports what would run without running it.
type DryRunExecutor struct{}

func (d *DryRunExecutor) Execute(ctx context.Context, command string) (*CommandResult, error) {
	return &CommandResult{
		Stdout:   []byte("<dry-run> " + command),
		ExitCode: 0,
	}, nil
}

// Stream echoes every non-blank script line. Step boundaries are emitted as
// bare markers so the step structure survives a dry run.
func (d *DryRunExecutor) Stream(ctx context.Context, src string, out func(Line)) (*CommandResult, error) {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if title, ok := script.ParseBoundary(trimmed); ok {
			out(Line{Text: script.StepMarker + title})
			continue
		}
		out(Line{Text: "<dry-run> " + trimmed})
	}
	return &CommandResult{}, nil
}
