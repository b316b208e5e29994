// Package runtime orchestrates a script run: segmentation, hydration,
// dispatch to an execution backend and grouping of output into step events.
package runtime

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/ormasoftchile/gcloud-commander/pkg/governance"
	"github.com/ormasoftchile/gcloud-commander/pkg/providers"
	"github.com/ormasoftchile/gcloud-commander/pkg/script"
	"github.com/ormasoftchile/gcloud-commander/pkg/steps"
	"github.com/ormasoftchile/gcloud-commander/pkg/stream"
)

// Mode selects how a script is dispatched to the backend.
type Mode string

const (
	// ModeCommand dispatches each provider CLI invocation separately and
	// handles boundaries, sleeps and echoes locally.
	ModeCommand Mode = "command"
	// ModeScript sends the whole script to the backend in one call and finds
	// boundaries in its output lines.
	ModeScript Mode = "script"
)

// Config is the explicit orchestration configuration.
type Config struct {
	Mode       Mode
	ToolPrefix string             // defaults to script.DefaultToolPrefix
	Policy     *governance.Policy // nil permits everything
	TraceDir   string             // when set, every run is traced to <TraceDir>/<run id>.jsonl
	Logger     *slog.Logger       // defaults to slog.Default()
}

// Engine runs scripts against one execution backend. An Engine holds no
// per-run state and may serve concurrent runs.
type Engine struct {
	cfg     Config
	guard   *governance.Guard
	backend providers.CommandExecutor
	log     *slog.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine validates cfg and binds it to backend. Script mode requires a
// backend that also implements providers.ScriptStreamer.
func NewEngine(cfg Config, backend providers.CommandExecutor) (*Engine, error) {
	if backend == nil {
		return nil, errors.New("execution backend is required")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeCommand
	case ModeCommand:
	case ModeScript:
		if _, ok := backend.(providers.ScriptStreamer); !ok {
			return nil, fmt.Errorf("backend %T does not support script mode", backend)
		}
	default:
		return nil, fmt.Errorf("unknown execution mode %q", cfg.Mode)
	}
	if cfg.ToolPrefix == "" {
		cfg.ToolPrefix = script.DefaultToolPrefix
	}
	guard, err := governance.NewGuard(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("governance policy: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, guard: guard, backend: backend, log: log, sleep: sleepContext}, nil
}

// Mode returns the dispatch mode in effect.
func (e *Engine) Mode() Mode { return e.cfg.Mode }

// NewRunID creates a run ID in format YYYYMMDDTHHmmss-xxxx.
func NewRunID() string {
	ts := time.Now().Format("20060102T150405")
	suffix := make([]byte, 2)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%x", ts, suffix)
}

// Run returns the event sequence for one execution of content with the given
// inputs. The sequence is finite, ends with exactly one End or Error event,
// and may be ranged over once. Breaking out of the range stops the run after
// the backend call in flight completes.
func (e *Engine) Run(ctx context.Context, content string, inputs map[string]string) iter.Seq[stream.Event] {
	return func(yield func(stream.Event) bool) {
		r := e.newRun(content, inputs, yield)
		defer r.close()

		r.log.Info("run started", "mode", e.cfg.Mode, "commands", len(r.commands))
		if len(r.commands) == 0 {
			r.emit(stream.EndEvent())
			return
		}

		switch e.cfg.Mode {
		case ModeScript:
			e.runScript(ctx, r)
		default:
			e.runCommands(ctx, r)
		}
	}
}

// Collect drains seq into a slice.
func Collect(seq iter.Seq[stream.Event]) []stream.Event {
	var events []stream.Event
	for ev := range seq {
		events = append(events, ev)
	}
	return events
}

// run is the state of one orchestration. It is confined to the goroutine
// ranging over the sequence.
type run struct {
	id       string
	log      *slog.Logger
	tracker  *steps.Tracker
	params   []script.Parameter
	inputs   map[string]string
	hydrator *script.Hydrator
	commands []string
	content  string
	backend  providers.CommandExecutor
	yield    func(stream.Event) bool
	stopped  bool
	trace    *TraceWriter
}

func (e *Engine) newRun(content string, inputs map[string]string, yield func(stream.Event) bool) *run {
	if inputs == nil {
		inputs = map[string]string{}
	}
	params := script.WithInputs(script.ExtractParameters(content), inputs)
	h := script.NewHydrator(params, inputs)
	h.ToolPrefix = e.cfg.ToolPrefix

	r := &run{
		id:       NewRunID(),
		tracker:  steps.NewTracker(),
		params:   params,
		inputs:   inputs,
		hydrator: h,
		commands: script.SplitCommands(content),
		content:  content,
		backend:  e.backend,
		yield:    yield,
	}
	r.log = e.log.With("run_id", r.id)

	if e.cfg.TraceDir != "" {
		tw, err := NewTraceWriter(e.cfg.TraceDir, r.id)
		if err != nil {
			r.log.Warn("trace disabled", "error", err)
		} else {
			r.trace = tw
		}
	}
	return r
}

// emit delivers ev unless the consumer has stopped listening.
func (r *run) emit(ev stream.Event) {
	if r.trace != nil {
		if err := r.trace.Write(ev); err != nil {
			r.log.Warn("trace write failed", "error", err)
		}
	}
	if r.stopped {
		return
	}
	if !r.yield(ev) {
		r.stopped = true
		r.log.Debug("consumer stopped listening")
	}
}

func (r *run) emitStep(step steps.Step, ok bool) {
	if !ok {
		return
	}
	r.log.Debug("step completed", "step_id", step.ID, "title", step.Title)
	r.emit(stream.StepEvent(step))
}

// fail records err in the current step, flushes it and emits the terminal
// error naming the step.
func (r *run) fail(err error) {
	title := r.tracker.Title()
	r.emitStep(r.tracker.Fail(err.Error()))
	r.log.Warn("run failed", "step", title, "error", err)
	r.emit(stream.ErrorEvent(`Execution failed at step: "` + title + `"`))
}

func (r *run) finish() {
	r.emitStep(r.tracker.Finish())
	r.log.Info("run finished")
	r.emit(stream.EndEvent())
}

func (r *run) close() {
	if r.trace != nil {
		if err := r.trace.Close(); err != nil {
			r.log.Warn("close trace", "error", err)
		}
	}
}

// bindVars gives variable-aware backends the run's variable values.
func (r *run) bindVars(vars map[string]string) {
	if b, ok := r.backend.(providers.VarBinder); ok {
		r.backend = b.BindVars(vars)
	}
}

func (e *Engine) runCommands(ctx context.Context, r *run) {
	vars, _ := script.Split(r.params, r.inputs)
	r.bindVars(vars)

	for _, command := range r.commands {
		if r.stopped {
			return
		}
		if err := ctx.Err(); err != nil {
			r.fail(fmt.Errorf("execution cancelled: %w", err))
			return
		}

		if title, ok := script.ParseBoundary(command); ok {
			r.emitStep(r.tracker.Boundary(title))
			continue
		}

		if r.hydrator.IsToolInvocation(command) {
			if err := e.dispatch(ctx, r, r.hydrator.Hydrate(command)); err != nil {
				r.fail(err)
				return
			}
			continue
		}

		if n, ok := script.SleepSeconds(command); ok {
			r.tracker.Append(fmt.Sprintf("Sleeping for %d seconds...", n))
			if err := e.sleep(ctx, time.Duration(n)*time.Second); err != nil {
				r.fail(fmt.Errorf("execution cancelled: %w", err))
				return
			}
			r.tracker.Append("Sleep complete.")
			continue
		}

		if text, ok := script.EchoText(r.hydrator.Display(command)); ok {
			r.tracker.Append(text)
		}
		// Other shell statements have no backend equivalent and are skipped.
	}
	r.finish()
}

// dispatch runs one hydrated provider command and records its output.
func (e *Engine) dispatch(ctx context.Context, r *run, command string) error {
	if err := e.guard.CheckCommand(command); err != nil {
		return err
	}
	r.log.Debug("dispatch", "command", command)
	res, err := r.backend.Execute(ctx, command)
	if res != nil {
		r.tracker.AppendResult(e.guard.Redact(string(res.Stdout)), e.guard.Redact(string(res.Stderr)))
	}
	if err == nil {
		err = providers.CheckResult(res)
	}
	return e.redactError(err)
}

// redactError applies the redaction rules to a runner failure detail, which
// ends up in the step log.
func (e *Engine) redactError(err error) error {
	var rerr *providers.RunnerError
	if errors.As(err, &rerr) {
		rerr.Detail = e.guard.Redact(rerr.Detail)
	}
	return err
}

func (e *Engine) runScript(ctx context.Context, r *run) {
	vars, _ := script.Split(r.params, r.inputs)
	vars, blocked := e.guard.FilterVariables(vars)
	if len(blocked) > 0 {
		r.log.Warn("variables blocked by policy", "names", blocked)
	}
	r.bindVars(vars)

	// Every provider command is checked before anything runs.
	for _, command := range r.commands {
		if !r.hydrator.IsToolInvocation(command) {
			continue
		}
		if err := e.guard.CheckCommand(r.hydrator.Hydrate(command)); err != nil {
			r.fail(err)
			return
		}
	}

	body := script.ExportPrelude(vars) + r.hydrator.HydrateFlags(script.StripPrompts(r.content))
	streamer := r.backend.(providers.ScriptStreamer)

	var stderr, stdout []string
	res, err := streamer.Stream(ctx, body, func(line providers.Line) {
		text := e.guard.Redact(line.Text)
		switch {
		case line.Stderr:
			stderr = append(stderr, text)
			text = steps.StderrPrefix + text
		case isStepMarker(text):
		default:
			stdout = appendTail(stdout, text, failureTailLines)
		}
		r.emitStep(r.tracker.Line(text))
	})
	if err == nil && res != nil {
		err = providers.CheckResult(&providers.CommandResult{
			ExitCode: res.ExitCode,
			Stdout:   []byte(strings.Join(stdout, "\n")),
			Stderr:   []byte(strings.Join(stderr, "\n")),
		})
	}
	if err != nil {
		r.fail(e.redactError(err))
		return
	}
	r.finish()
}

// failureTailLines bounds how much stdout a script failure reports when the
// script wrote nothing to stderr.
const failureTailLines = 20

func isStepMarker(line string) bool {
	_, ok := script.ParseBoundaryLine(line)
	return ok
}

func appendTail(lines []string, line string, n int) []string {
	lines = append(lines, line)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
