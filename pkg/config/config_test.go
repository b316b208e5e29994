package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ormasoftchile/gcloud-commander/pkg/governance"
	"github.com/ormasoftchile/gcloud-commander/pkg/logging"
	"github.com/ormasoftchile/gcloud-commander/pkg/providers"
	"github.com/ormasoftchile/gcloud-commander/pkg/replay"
	"github.com/ormasoftchile/gcloud-commander/pkg/runtime"
)

func TestLoadEmptyYieldsDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := Default()
	if cfg.Server != want.Server || cfg.Execution != want.Execution || cfg.LogLevel != want.LogLevel {
		t.Errorf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(strings.NewReader(`
execution:
  backend: local
  mode: script
runner:
  url: http://runner:8080
  timeout: 45s
governance:
  denied_commands: [gcloud projects delete]
  redact:
    - pattern: 'token=\S+'
      replace: token=***
log_level: debug
`))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Execution.Backend != BackendLocal || cfg.Execution.Mode != "script" {
		t.Errorf("execution = %+v", cfg.Execution)
	}
	if cfg.Server.Addr != ":3001" {
		t.Errorf("untouched section lost its default: %+v", cfg.Server)
	}
	if d, err := cfg.RunnerTimeout(); err != nil || d.Seconds() != 45 {
		t.Errorf("RunnerTimeout() = %v, %v", d, err)
	}
	if cfg.Governance == nil || len(cfg.Governance.Redact) != 1 || cfg.Governance.DeniedCommands[0] != "gcloud projects delete" {
		t.Errorf("governance = %+v", cfg.Governance)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	if _, err := Load(strings.NewReader("server:\n  port: 80\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commander.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil || cfg.LogLevel != "warn" {
		t.Errorf("LoadFile() = %+v, %v", cfg, err)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{"COMMANDER_RUNNER_URL": "https://runner.example"}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.Runner.URL != "https://runner.example" || cfg.Execution.Backend != BackendRemote {
		t.Errorf("runner url override: %+v %+v", cfg.Runner, cfg.Execution)
	}

	env["COMMANDER_BACKEND"] = BackendDryRun
	cfg = Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.Execution.Backend != BackendDryRun {
		t.Errorf("backend = %q", cfg.Execution.Backend)
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	if err != nil {
		t.Fatalf("GenerateJSONSchema() error: %v", err)
	}
	for _, want := range []string{schemaID, `"dry-run"`, "scripts_dir"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("schema missing %s", want)
		}
	}
}

func TestValidateDefault(t *testing.T) {
	if errs := Validate(Default()); len(errs) != 0 {
		t.Errorf("default config invalid: %v", errs)
	}
}

func TestValidateSemantic(t *testing.T) {
	cfg := Default()
	cfg.Execution.Backend = "ftp"
	errs := Validate(cfg)
	if len(errs) == 0 {
		t.Fatal("expected errors")
	}
	if errs[0].Phase != "semantic" || errs[0].Path != "execution.backend" {
		t.Errorf("errs[0] = %v", errs[0])
	}
}

func TestValidateDomain(t *testing.T) {
	cfg := Default()
	cfg.Execution.Backend = BackendRemote
	cfg.Runner.Timeout = "soon"
	cfg.Execution.ToolPrefix = "g cloud"
	cfg.Governance = &governance.Policy{Redact: []governance.RedactionRule{{Pattern: "("}}}

	paths := map[string]bool{}
	for _, e := range Validate(cfg) {
		if e.Phase != "domain" {
			t.Errorf("unexpected phase: %v", e)
		}
		paths[e.Path] = true
	}
	for _, want := range []string{"runner.url", "runner.timeout", "execution.tool_prefix", "governance"} {
		if !paths[want] {
			t.Errorf("missing error for %s (got %v)", want, paths)
		}
	}
}

func TestValidateSummarizerKey(t *testing.T) {
	t.Setenv("COMMANDER_TEST_KEY", "")
	cfg := Default()
	cfg.Summarizer = Summarizer{Endpoint: "https://x.openai.azure.com", Deployment: "gpt", APIKeyEnv: "COMMANDER_TEST_KEY"}
	errs := Validate(cfg)
	if len(errs) != 1 || errs[0].Path != "summarizer.api_key_env" {
		t.Errorf("errs = %v", errs)
	}
}

func TestBuildBackend(t *testing.T) {
	tests := []struct {
		backend string
		check   func(providers.CommandExecutor) bool
	}{
		{BackendLocal, func(e providers.CommandExecutor) bool { _, ok := e.(*providers.LocalExecutor); return ok }},
		{BackendMock, func(e providers.CommandExecutor) bool { _, ok := e.(*replay.MockExecutor); return ok }},
		{BackendDryRun, func(e providers.CommandExecutor) bool { _, ok := e.(*providers.DryRunExecutor); return ok }},
		{BackendRemote, func(e providers.CommandExecutor) bool { _, ok := e.(*providers.RemoteExecutor); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := Default()
			cfg.Execution.Backend = tt.backend
			cfg.Runner.URL = "http://runner"
			exec, err := cfg.BuildBackend()
			if err != nil {
				t.Fatalf("BuildBackend() error: %v", err)
			}
			if !tt.check(exec) {
				t.Errorf("backend type = %T", exec)
			}
		})
	}

	cfg := Default()
	cfg.Execution.Backend = BackendRemote
	if _, err := cfg.BuildBackend(); err == nil {
		t.Error("remote backend without URL must fail")
	}
}

func TestBuildEngine(t *testing.T) {
	cfg := Default()
	cfg.Execution.Mode = "script"
	cfg.Execution.MockDelay = "0s"
	engine, err := cfg.BuildEngine(logging.Discard())
	if err != nil {
		t.Fatalf("BuildEngine() error: %v", err)
	}
	if engine.Mode() != runtime.ModeScript {
		t.Errorf("mode = %q", engine.Mode())
	}
	events := runtime.Collect(engine.Run(t.Context(), `echo "hi"`, nil))
	if len(events) == 0 || !events[len(events)-1].Terminal() {
		t.Errorf("events = %+v", events)
	}
}

func TestBuildSummarizerDisabled(t *testing.T) {
	s, err := Default().BuildSummarizer(logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Summarize(t.Context(), "some output"); got != "Summaries are disabled." {
		t.Errorf("Summarize() = %q", got)
	}
}
