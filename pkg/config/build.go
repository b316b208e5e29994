package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ormasoftchile/gcloud-commander/pkg/providers"
	"github.com/ormasoftchile/gcloud-commander/pkg/replay"
	"github.com/ormasoftchile/gcloud-commander/pkg/runtime"
	"github.com/ormasoftchile/gcloud-commander/pkg/summarize"
)

// BuildBackend constructs the execution backend named by execution.backend.
func (c *Config) BuildBackend() (providers.CommandExecutor, error) {
	switch c.Execution.Backend {
	case BackendLocal:
		return &providers.LocalExecutor{Shell: c.Execution.Shell}, nil
	case BackendRemote:
		timeout, err := c.RunnerTimeout()
		if err != nil {
			return nil, fmt.Errorf("runner.timeout: %w", err)
		}
		return providers.NewRemoteExecutor(c.Runner.URL, timeout)
	case "", BackendMock:
		scenario := replay.DefaultScenario()
		if c.Execution.Scenario != "" {
			s, err := replay.LoadScenario(c.Execution.Scenario)
			if err != nil {
				return nil, err
			}
			scenario = s
		}
		mock, err := replay.NewMockExecutor(scenario)
		if err != nil {
			return nil, err
		}
		if c.Execution.MockDelay != "" {
			d, err := parseDuration(c.Execution.MockDelay)
			if err != nil {
				return nil, fmt.Errorf("execution.mock_delay: %w", err)
			}
			mock.SetDelay(d)
		}
		return mock, nil
	case BackendDryRun:
		return &providers.DryRunExecutor{}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", c.Execution.Backend)
}

// EngineConfig maps the execution and governance sections onto the
// orchestrator configuration.
func (c *Config) EngineConfig(logger *slog.Logger) runtime.Config {
	return runtime.Config{
		Mode:       runtime.Mode(c.Execution.Mode),
		ToolPrefix: c.Execution.ToolPrefix,
		Policy:     c.Governance,
		TraceDir:   c.Execution.TraceDir,
		Logger:     logger,
	}
}

// BuildEngine constructs the backend and the orchestrator around it.
func (c *Config) BuildEngine(logger *slog.Logger) (*runtime.Engine, error) {
	backend, err := c.BuildBackend()
	if err != nil {
		return nil, err
	}
	return runtime.NewEngine(c.EngineConfig(logger), backend)
}

// BuildSummarizer returns a summarizer for the summarizer section. An empty
// endpoint yields one that reports summaries as disabled.
func (c *Config) BuildSummarizer(logger *slog.Logger) (*summarize.Summarizer, error) {
	s := c.Summarizer
	if s.Endpoint == "" {
		return summarize.New(nil, logger), nil
	}
	timeout, err := parseDuration(s.Timeout)
	if err != nil {
		return nil, fmt.Errorf("summarizer.timeout: %w", err)
	}
	client, err := summarize.NewAzureOpenAIClient(summarize.AzureOpenAIConfig{
		Endpoint:   s.Endpoint,
		APIKey:     os.Getenv(s.APIKeyEnv),
		Deployment: s.Deployment,
		APIVersion: s.APIVersion,
		Timeout:    timeout,
	})
	if err != nil {
		return nil, err
	}
	return summarize.New(client, logger), nil
}
