// Package governance implements command allow/deny rules, variable blocking
// and output redaction for orchestrated runs.
package governance

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Policy is the declarative governance configuration.
type Policy struct {
	// AllowedCommands, when non-empty, lists the command prefixes that may
	// run, e.g. "gcloud" or "gcloud storage".
	AllowedCommands []string `yaml:"allowed_commands,omitempty" json:"allowed_commands,omitempty" jsonschema:"description=Command prefixes permitted to run; empty allows all"`
	// DeniedCommands lists command prefixes that never run. Deny wins over allow.
	DeniedCommands []string `yaml:"denied_commands,omitempty" json:"denied_commands,omitempty" jsonschema:"description=Command prefixes that are always refused"`
	// DenyVariables lists glob patterns of variable names that inputs may not set.
	DenyVariables []string `yaml:"deny_variables,omitempty" json:"deny_variables,omitempty" jsonschema:"description=Glob patterns of variable names inputs may not set"`
	// Redact rules are applied to command output before it reaches a step log.
	Redact []RedactionRule `yaml:"redact,omitempty" json:"redact,omitempty"`
}

// RedactionRule replaces every match of Pattern with Replace.
type RedactionRule struct {
	Pattern string `yaml:"pattern" json:"pattern" jsonschema:"required,description=RE2 regular expression"`
	Replace string `yaml:"replace" json:"replace"`
}

// DeniedError reports a command refused by policy.
type DeniedError struct {
	Command string
	Reason  string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("command %q %s", e.Command, e.Reason)
}

// Guard is a compiled Policy. A nil *Guard permits everything and redacts
// nothing.
type Guard struct {
	allowed []string
	denied  []string
	denyVar []string
	redact  []compiledRedaction
}

type compiledRedaction struct {
	pattern *regexp.Regexp
	replace string
}

// NewGuard compiles p. A nil policy yields a permissive guard.
func NewGuard(p *Policy) (*Guard, error) {
	if p == nil {
		return &Guard{}, nil
	}
	g := &Guard{
		allowed: normalizePrefixes(p.AllowedCommands),
		denied:  normalizePrefixes(p.DeniedCommands),
		denyVar: p.DenyVariables,
	}
	for _, pattern := range p.DenyVariables {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid variable deny pattern %q: %w", pattern, err)
		}
	}
	for _, r := range p.Redact {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile redaction pattern %q: %w", r.Pattern, err)
		}
		g.redact = append(g.redact, compiledRedaction{pattern: re, replace: r.Replace})
	}
	return g, nil
}

func normalizePrefixes(prefixes []string) []string {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if f := strings.Fields(p); len(f) > 0 {
			out = append(out, strings.Join(f, " "))
		}
	}
	return out
}

// hasPrefix reports whether command starts with prefix on a word boundary.
func hasPrefix(fields []string, prefix string) bool {
	pf := strings.Fields(prefix)
	if len(pf) > len(fields) {
		return false
	}
	for i := range pf {
		if fields[i] != pf[i] {
			return false
		}
	}
	return true
}

// CheckCommand validates command against the deny and allow lists.
// Deny takes precedence over allow.
func (g *Guard) CheckCommand(command string) error {
	if g == nil {
		return nil
	}
	fields := strings.Fields(command)
	for _, denied := range g.denied {
		if hasPrefix(fields, denied) {
			return &DeniedError{Command: command, Reason: fmt.Sprintf("is denied by governance policy (%s)", denied)}
		}
	}
	if len(g.allowed) == 0 {
		return nil
	}
	for _, allowed := range g.allowed {
		if hasPrefix(fields, allowed) {
			return nil
		}
	}
	return &DeniedError{Command: command, Reason: "is not in the governance allowlist"}
}

// CheckVariable validates a variable name against the deny patterns.
func (g *Guard) CheckVariable(name string) error {
	if g == nil {
		return nil
	}
	for _, pattern := range g.denyVar {
		if matched, _ := filepath.Match(pattern, name); matched {
			return fmt.Errorf("variable %q matches denied pattern %q", name, pattern)
		}
	}
	return nil
}

// FilterVariables returns vars without the denied names, and the sorted list
// of names that were removed.
func (g *Guard) FilterVariables(vars map[string]string) (map[string]string, []string) {
	if g == nil || len(g.denyVar) == 0 {
		return vars, nil
	}
	kept := make(map[string]string, len(vars))
	var blocked []string
	for k, v := range vars {
		if g.CheckVariable(k) != nil {
			blocked = append(blocked, k)
			continue
		}
		kept[k] = v
	}
	sort.Strings(blocked)
	return kept, blocked
}

// Redact applies every redaction rule to output, in order.
func (g *Guard) Redact(output string) string {
	if g == nil {
		return output
	}
	for _, r := range g.redact {
		output = r.pattern.ReplaceAllString(output, r.replace)
	}
	return output
}
