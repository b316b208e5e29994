// Package providers defines the execution backend contracts and the
// local-process, remote-runner and dry-run implementations.
package providers

import (
	"context"
	"fmt"
	"time"
)

// CommandResult holds the output of a single command or script execution.
type CommandResult struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Line is one line of streamed output.
type Line struct {
	Text   string
	Stderr bool
}

// CommandExecutor runs one hydrated command and returns its complete output.
// Implementations: LocalExecutor, RemoteExecutor, DryRunExecutor,
// replay.MockExecutor.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) (*CommandResult, error)
}

// ScriptStreamer runs a whole script body, delivering output lines to out in
// arrival order. The returned result carries the exit code; its Stdout and
// Stderr are left empty since the lines were already delivered.
type ScriptStreamer interface {
	Stream(ctx context.Context, script string, out func(Line)) (*CommandResult, error)
}

// VarBinder is implemented by backends whose output depends on the run's
// input variables. BindVars returns a copy bound to vars.
type VarBinder interface {
	BindVars(vars map[string]string) CommandExecutor
}

// RunnerError describes a failed command: non-zero exit or, for the remote
// runner, a non-2xx response.
type RunnerError struct {
	ExitCode   int
	StatusCode int // HTTP status, remote runner only
	Detail     string
}

func (e *RunnerError) Error() string {
	if e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode > 299) {
		return fmt.Sprintf("Command failed with exit code %d (runner status %d):\n%s", e.ExitCode, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("Command failed with exit code %d:\n%s", e.ExitCode, e.Detail)
}

// NoOutput is the failure detail used when a failed command printed nothing.
const NoOutput = "No output from runner."

// CheckResult returns a *RunnerError when res reports a non-zero exit. The
// detail is stderr, falling back to stdout, falling back to NoOutput.
func CheckResult(res *CommandResult) error {
	if res == nil || res.ExitCode == 0 {
		return nil
	}
	return &RunnerError{ExitCode: res.ExitCode, Detail: failureDetail(string(res.Stderr), string(res.Stdout))}
}

func failureDetail(stderr, stdout string) string {
	switch {
	case stderr != "":
		return stderr
	case stdout != "":
		return stdout
	default:
		return NoOutput
	}
}
