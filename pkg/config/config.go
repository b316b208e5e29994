// Package config loads and validates commander.yaml and builds the runtime
// collaborators it describes.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/gcloud-commander/pkg/governance"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "commander.yaml"

// Backend names.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
	BackendMock   = "mock"
	BackendDryRun = "dry-run"
)

// Config is the top-level commander.yaml document.
type Config struct {
	Server     Server             `yaml:"server"               json:"server,omitempty"`
	Runner     Runner             `yaml:"runner"               json:"runner,omitempty"`
	Execution  Execution          `yaml:"execution"            json:"execution,omitempty"`
	Governance *governance.Policy `yaml:"governance,omitempty" json:"governance,omitempty"`
	Summarizer Summarizer         `yaml:"summarizer"           json:"summarizer,omitempty"`
	LogLevel   string             `yaml:"log_level,omitempty"  json:"log_level,omitempty"  jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	LogFormat  string             `yaml:"log_format,omitempty" json:"log_format,omitempty" jsonschema:"enum=text,enum=json"`
}

// Server configures the HTTP transport.
type Server struct {
	Addr       string `yaml:"addr,omitempty"        json:"addr,omitempty"        jsonschema:"description=Listen address, e.g. :3001"`
	ScriptsDir string `yaml:"scripts_dir,omitempty" json:"scripts_dir,omitempty" jsonschema:"description=Directory holding stored scripts"`
}

// Runner configures the remote command runner backend.
type Runner struct {
	URL     string `yaml:"url,omitempty"     json:"url,omitempty"     jsonschema:"description=Endpoint accepting {command} POSTs"`
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"description=HTTP client timeout as a Go duration; empty means none"`
}

// Execution selects the backend and dispatch mode.
type Execution struct {
	Backend    string `yaml:"backend,omitempty"     json:"backend,omitempty"     jsonschema:"enum=local,enum=remote,enum=mock,enum=dry-run"`
	Mode       string `yaml:"mode,omitempty"        json:"mode,omitempty"        jsonschema:"enum=command,enum=script"`
	ToolPrefix string `yaml:"tool_prefix,omitempty" json:"tool_prefix,omitempty" jsonschema:"description=First word that marks a provider CLI invocation"`
	Shell      string `yaml:"shell,omitempty"       json:"shell,omitempty"       jsonschema:"description=Shell used by the local backend"`
	Scenario   string `yaml:"scenario,omitempty"    json:"scenario,omitempty"    jsonschema:"description=Mock scenario file; empty uses the built-in scenario"`
	MockDelay  string `yaml:"mock_delay,omitempty"  json:"mock_delay,omitempty"  jsonschema:"description=Overrides the scenario delay"`
	TraceDir   string `yaml:"trace_dir,omitempty"   json:"trace_dir,omitempty"   jsonschema:"description=Directory for per-run JSONL traces"`
}

// Summarizer configures the Azure OpenAI summarization client. Summaries are
// disabled when Endpoint is empty.
type Summarizer struct {
	Endpoint   string `yaml:"endpoint,omitempty"    json:"endpoint,omitempty"`
	Deployment string `yaml:"deployment,omitempty"  json:"deployment,omitempty"`
	APIVersion string `yaml:"api_version,omitempty" json:"api_version,omitempty"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty" jsonschema:"description=Environment variable holding the API key"`
	Timeout    string `yaml:"timeout,omitempty"     json:"timeout,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:     Server{Addr: ":3001", ScriptsDir: "scripts"},
		Execution:  Execution{Backend: BackendMock, Mode: "command", ToolPrefix: "gcloud"},
		Summarizer: Summarizer{APIKeyEnv: "AZURE_OPENAI_API_KEY"},
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load decodes a config document over the defaults, rejecting unknown fields.
// An empty document yields the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// LoadFile loads path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Resolve loads path, or DefaultFile when path is empty and that file exists,
// or the defaults otherwise. Environment overrides are applied last.
func Resolve(path string) (*Config, error) {
	var cfg *Config
	switch {
	case path != "":
		c, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		if _, err := os.Stat(DefaultFile); err == nil {
			c, err := LoadFile(DefaultFile)
			if err != nil {
				return nil, err
			}
			cfg = c
		} else {
			cfg = Default()
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv applies COMMANDER_RUNNER_URL and COMMANDER_BACKEND. Setting a
// runner URL without an explicit backend switches to the remote backend.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if url := getenv("COMMANDER_RUNNER_URL"); url != "" {
		c.Runner.URL = url
		c.Execution.Backend = BackendRemote
	}
	if backend := getenv("COMMANDER_BACKEND"); backend != "" {
		c.Execution.Backend = backend
	}
}

// RunnerTimeout parses Runner.Timeout; empty means no timeout.
func (c *Config) RunnerTimeout() (time.Duration, error) {
	return parseDuration(c.Runner.Timeout)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", s)
	}
	return d, nil
}
