// Package replay implements the mock execution backend: deterministic canned
// output for recognised commands, driven by a YAML scenario.
package replay

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a mock backend definition.
type Scenario struct {
	// Delay is slept before each canned step, e.g. "750ms". Empty means none.
	Delay string `yaml:"delay,omitempty"`
	Rules []Rule `yaml:"rules"`
}

// Rule recognises a command and describes the output it produces.
// Match is a substring test; When is an expr-lang boolean over command,
// args, flags and vars. A rule with both must satisfy both.
type Rule struct {
	Name     string       `yaml:"name"`
	Match    string       `yaml:"match,omitempty"`
	When     string       `yaml:"when,omitempty"`
	Steps    []CannedStep `yaml:"steps,omitempty"`
	Stdout   string       `yaml:"stdout,omitempty"`
	Stderr   string       `yaml:"stderr,omitempty"`
	ExitCode int          `yaml:"exit_code,omitempty"`
}

// CannedStep is one titled block of output produced by a matched rule.
type CannedStep struct {
	Title  string `yaml:"title"`
	Output string `yaml:"output"`
}

//go:embed scenarios/default.yaml
var defaultScenario []byte

// DefaultScenario returns the built-in scenario covering the sample scripts.
func DefaultScenario() *Scenario {
	s, err := ParseScenario(defaultScenario)
	if err != nil {
		panic(fmt.Sprintf("embedded scenario: %v", err))
	}
	return s
}

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML bytes, rejecting unknown fields.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(s.Rules) == 0 {
		return nil, fmt.Errorf("scenario must have at least one rule")
	}
	if _, err := s.delay(); err != nil {
		return nil, err
	}
	for i, r := range s.Rules {
		if r.Match == "" && r.When == "" {
			return nil, fmt.Errorf("rule %d (%s): match or when is required", i, r.Name)
		}
	}
	return &s, nil
}

func (s *Scenario) delay() (time.Duration, error) {
	if s.Delay == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Delay)
	if err != nil {
		return 0, fmt.Errorf("scenario delay %q: %w", s.Delay, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("scenario delay %q must not be negative", s.Delay)
	}
	return d, nil
}
