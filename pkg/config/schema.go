package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/gcloud-commander/pkg/governance"
	"github.com/ormasoftchile/gcloud-commander/pkg/logging"
	"github.com/ormasoftchile/gcloud-commander/pkg/replay"
)

const schemaID = "https://github.com/ormasoftchile/gcloud-commander/schemas/commander-config.json"

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document for
// commander.yaml.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Config{})
	s.ID = schemaID
	s.Title = "GCloud Commander configuration"
	s.Description = "Schema for commander.yaml"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// ValidationError is one problem found in a configuration.
type ValidationError struct {
	Phase   string `json:"phase"` // semantic, domain
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("[%s] %s", e.Phase, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// Validate checks cfg against the JSON Schema and then the domain rules.
// It returns nil when cfg is usable.
func Validate(cfg *Config) []*ValidationError {
	if errs := validateSemantic(cfg); len(errs) > 0 {
		return errs
	}
	return validateDomain(cfg)
}

func semanticError(format string, args ...any) []*ValidationError {
	return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf(format, args...)}}
}

func validateSemantic(cfg *Config) []*ValidationError {
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticError("generate schema: %v", err)
	}
	schemaDoc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return semanticError("unmarshal schema: %v", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource(schemaID, schemaDoc); err != nil {
		return semanticError("add schema resource: %v", err)
	}
	sch, err := c.Compile(schemaID)
	if err != nil {
		return semanticError("compile schema: %v", err)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return semanticError("marshal config: %v", err)
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return semanticError("unmarshal config: %v", err)
	}

	err = sch.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return semanticError("%v", err)
	}
	var errs []*ValidationError
	for _, cause := range flatten(ve) {
		errs = append(errs, &ValidationError{
			Phase:   "semantic",
			Path:    strings.Join(cause.InstanceLocation, "."),
			Message: fmt.Sprintf("%v", cause.ErrorKind),
		})
	}
	return errs
}

func flatten(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flatten(cause)...)
	}
	return flat
}

func validateDomain(cfg *Config) []*ValidationError {
	var errs []*ValidationError
	add := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{Phase: "domain", Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Execution.Backend == BackendRemote && cfg.Runner.URL == "" {
		add("runner.url", "required when execution.backend is %q", BackendRemote)
	}
	if _, err := cfg.RunnerTimeout(); err != nil {
		add("runner.timeout", "%v", err)
	}
	if _, err := parseDuration(cfg.Summarizer.Timeout); err != nil {
		add("summarizer.timeout", "%v", err)
	}
	if _, err := parseDuration(cfg.Execution.MockDelay); err != nil {
		add("execution.mock_delay", "%v", err)
	}
	if strings.ContainsAny(cfg.Execution.ToolPrefix, " \t") {
		add("execution.tool_prefix", "must be a single word")
	}
	if cfg.Execution.Scenario != "" {
		if _, err := replay.LoadScenario(cfg.Execution.Scenario); err != nil {
			add("execution.scenario", "%v", err)
		}
	}
	if _, err := governance.NewGuard(cfg.Governance); err != nil {
		add("governance", "%v", err)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		add("log_level", "%v", err)
	}
	if cfg.Summarizer.Endpoint != "" {
		if cfg.Summarizer.Deployment == "" {
			add("summarizer.deployment", "required when summarizer.endpoint is set")
		}
		if cfg.Summarizer.APIKeyEnv == "" {
			add("summarizer.api_key_env", "required when summarizer.endpoint is set")
		} else if os.Getenv(cfg.Summarizer.APIKeyEnv) == "" {
			add("summarizer.api_key_env", "environment variable %s is not set", cfg.Summarizer.APIKeyEnv)
		}
	}
	return errs
}
