package replay

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/gcloud-commander/pkg/providers"
)

// CapturedResponse records a single backend response.
type CapturedResponse struct {
	Command  string `yaml:"command"`
	ExitCode int    `yaml:"exit_code"`
	Stdout   string `yaml:"stdout"`
	Stderr   string `yaml:"stderr"`
}

// Recorder wraps a CommandExecutor and captures every response so a live run
// can be turned into a scenario for the mock backend.
type Recorder struct {
	inner   providers.CommandExecutor
	log     *capture
	secrets []string // env var names whose values are redacted
}

type capture struct {
	mu        sync.Mutex
	responses []CapturedResponse
}

// NewRecorder creates a recording wrapper around an existing executor.
func NewRecorder(inner providers.CommandExecutor) *Recorder {
	return &Recorder{inner: inner, log: &capture{}}
}

// SetSecrets configures env var names whose values are redacted in captured
// output.
func (r *Recorder) SetSecrets(envVars []string) {
	r.secrets = envVars
}

// BindVars binds the wrapped executor when it is variable-aware. The copy
// records into the same log.
func (r *Recorder) BindVars(vars map[string]string) providers.CommandExecutor {
	b, ok := r.inner.(providers.VarBinder)
	if !ok {
		return r
	}
	c := *r
	c.inner = b.BindVars(vars)
	return &c
}

// Execute delegates to the wrapped executor and records the response.
func (r *Recorder) Execute(ctx context.Context, command string) (*providers.CommandResult, error) {
	res, err := r.inner.Execute(ctx, command)
	if err != nil {
		return nil, err
	}
	captured := CapturedResponse{
		Command:  r.redact(command),
		ExitCode: res.ExitCode,
		Stdout:   r.redact(string(res.Stdout)),
		Stderr:   r.redact(string(res.Stderr)),
	}
	r.log.mu.Lock()
	r.log.responses = append(r.log.responses, captured)
	r.log.mu.Unlock()
	return res, nil
}

// Responses returns the captured responses in call order.
func (r *Recorder) Responses() []CapturedResponse {
	r.log.mu.Lock()
	defer r.log.mu.Unlock()
	return append([]CapturedResponse(nil), r.log.responses...)
}

// Scenario converts the captured responses into mock rules, one per distinct
// command, matched on the full command text.
func (r *Recorder) Scenario() *Scenario {
	s := &Scenario{}
	seen := make(map[string]bool)
	for _, resp := range r.Responses() {
		if seen[resp.Command] {
			continue
		}
		seen[resp.Command] = true
		s.Rules = append(s.Rules, Rule{
			Name:     fmt.Sprintf("recorded-%d", len(s.Rules)+1),
			Match:    resp.Command,
			Stdout:   escapeTemplate(resp.Stdout),
			Stderr:   escapeTemplate(resp.Stderr),
			ExitCode: resp.ExitCode,
		})
	}
	return s
}

// WriteScenario saves the recorded scenario as YAML.
func (r *Recorder) WriteScenario(path string) error {
	s := r.Scenario()
	if len(s.Rules) == 0 {
		return fmt.Errorf("no commands were recorded")
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write scenario: %w", err)
	}
	return nil
}

// redact replaces secret values with <REDACTED>.
func (r *Recorder) redact(s string) string {
	for _, envVar := range r.secrets {
		val := os.Getenv(envVar)
		if val != "" {
			s = strings.ReplaceAll(s, val, "<REDACTED>")
		}
	}
	return s
}

// escapeTemplate keeps recorded output literal when rendered as a template.
func escapeTemplate(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return strings.ReplaceAll(s, "{{", `{{"{{"}}`)
}
