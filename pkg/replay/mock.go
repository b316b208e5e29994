package replay

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/shlex"

	"github.com/ormasoftchile/gcloud-commander/pkg/providers"
	"github.com/ormasoftchile/gcloud-commander/pkg/script"
)

// MockExecutor produces canned output for commands recognised by a scenario.
// Unrecognised commands succeed with "Executed: <command>". It implements
// both providers.CommandExecutor and providers.ScriptStreamer.
type MockExecutor struct {
	scenario *Scenario
	delay    time.Duration
	when     []*vm.Program // parallel to scenario.Rules, nil when unset
	vars     map[string]string
}

// NewMockExecutor compiles the scenario's rule conditions.
func NewMockExecutor(s *Scenario) (*MockExecutor, error) {
	delay, err := s.delay()
	if err != nil {
		return nil, err
	}
	m := &MockExecutor{scenario: s, delay: delay, when: make([]*vm.Program, len(s.Rules))}
	for i, r := range s.Rules {
		if r.When == "" {
			continue
		}
		program, err := expr.Compile(r.When, expr.Env(matchEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile condition %q of rule %s: %w", r.When, r.Name, err)
		}
		m.when[i] = program
	}
	return m, nil
}

// BindVars returns a copy of m whose templates can read vars through the
// var function.
func (m *MockExecutor) BindVars(vars map[string]string) providers.CommandExecutor {
	c := *m
	c.vars = vars
	return &c
}

// SetDelay overrides the scenario delay.
func (m *MockExecutor) SetDelay(d time.Duration) { m.delay = d }

// matchEnv is the environment rule conditions are evaluated in.
type matchEnv struct {
	Command string            `expr:"command"`
	Args    []string          `expr:"args"`
	Flags   map[string]string `expr:"flags"`
	Vars    map[string]string `expr:"vars"`
}

func (m *MockExecutor) env(command string, vars map[string]string) matchEnv {
	if vars == nil {
		vars = map[string]string{}
	}
	return matchEnv{
		Command: command,
		Args:    tokens(command),
		Flags:   parseFlags(command),
		Vars:    vars,
	}
}

// match returns the first rule recognising command.
func (m *MockExecutor) match(env matchEnv) (*Rule, error) {
	for i := range m.scenario.Rules {
		r := &m.scenario.Rules[i]
		if r.Match != "" && !strings.Contains(env.Command, r.Match) {
			continue
		}
		if m.when[i] != nil {
			out, err := expr.Run(m.when[i], env)
			if err != nil {
				return nil, fmt.Errorf("eval condition of rule %s: %w", r.Name, err)
			}
			if ok, _ := out.(bool); !ok {
				continue
			}
		}
		return r, nil
	}
	return nil, nil
}

// Execute returns the canned output for command. A matched rule with canned
// steps renders them as title lines followed by their output.
func (m *MockExecutor) Execute(ctx context.Context, command string) (*providers.CommandResult, error) {
	start := time.Now()
	env := m.env(command, m.vars)
	rule, err := m.match(env)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		if err := m.sleep(ctx); err != nil {
			return nil, err
		}
		return &providers.CommandResult{Stdout: []byte("Executed: " + command), Duration: time.Since(start)}, nil
	}

	var blocks []string
	if len(rule.Steps) == 0 {
		if err := m.sleep(ctx); err != nil {
			return nil, err
		}
	}
	for _, step := range rule.Steps {
		if err := m.sleep(ctx); err != nil {
			return nil, err
		}
		out, err := render(step.Output, env)
		if err != nil {
			return nil, fmt.Errorf("rule %s step %q: %w", rule.Name, step.Title, err)
		}
		blocks = append(blocks, joinNonEmpty(step.Title+"...", out))
	}
	stdout, err := render(rule.Stdout, env)
	if err != nil {
		return nil, fmt.Errorf("rule %s stdout: %w", rule.Name, err)
	}
	stderr, err := render(rule.Stderr, env)
	if err != nil {
		return nil, fmt.Errorf("rule %s stderr: %w", rule.Name, err)
	}
	blocks = append(blocks, stdout)

	return &providers.CommandResult{
		Stdout:   []byte(joinNonEmpty(blocks...)),
		Stderr:   []byte(stderr),
		ExitCode: rule.ExitCode,
		Duration: time.Since(start),
	}, nil
}

var exportRe = regexp.MustCompile(`^export ([A-Za-z_][A-Za-z0-9_]*)='((?:[^']|'\\'')*)'$`)

// Stream simulates a whole-script run. Exported variables are tracked and
// expanded, boundaries and echoes are reproduced, and each canned step of a
// matched rule is announced as its own step.
func (m *MockExecutor) Stream(ctx context.Context, body string, out func(providers.Line)) (*providers.CommandResult, error) {
	start := time.Now()
	vars := make(map[string]string, len(m.vars))
	for k, v := range m.vars {
		vars[k] = v
	}

	for _, command := range script.SplitCommands(body) {
		if mm := exportRe.FindStringSubmatch(command); mm != nil {
			vars[mm[1]] = strings.ReplaceAll(mm[2], `'\''`, "'")
			continue
		}
		if title, ok := script.ParseBoundary(command); ok {
			out(providers.Line{Text: script.StepMarker + title})
			continue
		}
		command = expandVars(command, vars)
		if text, ok := script.EchoText(command); ok {
			out(providers.Line{Text: text})
			continue
		}

		env := m.env(command, vars)
		rule, err := m.match(env)
		if err != nil {
			return nil, err
		}
		if rule == nil {
			out(providers.Line{Text: "Executed: " + command})
			continue
		}
		code, err := m.streamRule(ctx, rule, env, out)
		if err != nil {
			return nil, err
		}
		if code != 0 {
			return &providers.CommandResult{ExitCode: code, Duration: time.Since(start)}, nil
		}
	}
	return &providers.CommandResult{Duration: time.Since(start)}, nil
}

func (m *MockExecutor) streamRule(ctx context.Context, rule *Rule, env matchEnv, out func(providers.Line)) (int, error) {
	for _, step := range rule.Steps {
		if err := m.sleep(ctx); err != nil {
			return 0, err
		}
		text, err := render(step.Output, env)
		if err != nil {
			return 0, fmt.Errorf("rule %s step %q: %w", rule.Name, step.Title, err)
		}
		out(providers.Line{Text: script.StepMarker + step.Title})
		emit(text, false, out)
	}
	stdout, err := render(rule.Stdout, env)
	if err != nil {
		return 0, fmt.Errorf("rule %s stdout: %w", rule.Name, err)
	}
	stderr, err := render(rule.Stderr, env)
	if err != nil {
		return 0, fmt.Errorf("rule %s stderr: %w", rule.Name, err)
	}
	emit(stdout, false, out)
	emit(stderr, true, out)
	return rule.ExitCode, nil
}

func (m *MockExecutor) sleep(ctx context.Context) error {
	if m.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// render executes an output template. Available functions: arg N (Nth
// whitespace field of the command), flag NAME and var NAME; all yield "" when
// absent.
func render(text string, env matchEnv) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("output").Funcs(template.FuncMap{
		"arg": func(i int) string {
			if i < 0 || i >= len(env.Args) {
				return ""
			}
			return env.Args[i]
		},
		"flag": func(name string) string { return env.Flags[name] },
		"var":  func(name string) string { return env.Vars[name] },
	}).Parse(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, env); err != nil {
		return "", err
	}
	return b.String(), nil
}

// parseFlags collects --name=value, --name value and bare --name (as "true").
func parseFlags(command string) map[string]string {
	flags := map[string]string{}
	fields := tokens(command)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if !strings.HasPrefix(f, "--") || len(f) == 2 {
			continue
		}
		name, value, hasValue := strings.Cut(f[2:], "=")
		if !hasValue {
			if i+1 < len(fields) && !strings.HasPrefix(fields[i+1], "-") {
				value = fields[i+1]
				i++
			} else {
				value = "true"
			}
		}
		flags[name] = strings.Trim(value, `"'`)
	}
	return flags
}

// tokens splits command with shell quoting rules, falling back to whitespace
// fields when the quoting is unbalanced.
func tokens(command string) []string {
	argv, err := shlex.Split(command)
	if err == nil && len(argv) > 0 {
		return argv
	}
	return strings.Fields(command)
}

var shellVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandVars substitutes known variables, leaving unknown references intact.
func expandVars(command string, vars map[string]string) string {
	return shellVarRe.ReplaceAllStringFunc(command, func(ref string) string {
		sub := shellVarRe.FindStringSubmatch(ref)
		name := sub[1]
		if name == "" {
			name = sub[2]
		}
		if v, ok := vars[name]; ok {
			return v
		}
		return ref
	})
}

func emit(text string, isStderr bool, out func(providers.Line)) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		out(providers.Line{Text: line, Stderr: isStderr})
	}
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimRight(p, "\n"); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
