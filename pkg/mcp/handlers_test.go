package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/gcloud-commander/pkg/replay"
	"github.com/ormasoftchile/gcloud-commander/pkg/runtime"
	"github.com/ormasoftchile/gcloud-commander/pkg/scripts"
)

const listScript = `#!/bin/bash
read -p "Enter project: " PROJECT
echo "---STEP:List buckets"
gcloud storage ls --project=$PROJECT
`

func newHandlers(t *testing.T) *Handlers {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mock, err := replay.NewMockExecutor(replay.DefaultScenario())
	if err != nil {
		t.Fatal(err)
	}
	mock.SetDelay(0)
	engine, err := runtime.NewEngine(runtime.Config{Logger: logger}, mock)
	if err != nil {
		t.Fatal(err)
	}
	return &Handlers{Engine: engine, Scripts: scripts.NewStore(t.TempDir(), logger)}
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("expected content")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return tc.Text
}

func TestNewServerRequiresEngine(t *testing.T) {
	if _, err := NewServer("test", &Handlers{}); err == nil {
		t.Error("expected error without engine")
	}
	if _, err := NewServer("test", newHandlers(t)); err != nil {
		t.Errorf("NewServer() error: %v", err)
	}
}

func TestHandleParameters_MissingContent(t *testing.T) {
	res, err := newHandlers(t).HandleParameters(context.Background(), call(map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected error for missing content")
	}
}

func TestHandleParameters(t *testing.T) {
	res, err := newHandlers(t).HandleParameters(context.Background(), call(map[string]any{"content": listScript}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(t, res))
	}
	var params []struct {
		Name  string `json:"name"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &params); err != nil {
		t.Fatal(err)
	}
	if len(params) == 0 || params[0].Name != "PROJECT" {
		t.Errorf("params = %+v", params)
	}
}

func TestHandleRun(t *testing.T) {
	res, err := newHandlers(t).HandleRun(context.Background(), call(map[string]any{
		"content": listScript,
		"vars":    map[string]any{"PROJECT": "acme"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(t, res))
	}
	var report RunReport
	if err := json.Unmarshal([]byte(text(t, res)), &report); err != nil {
		t.Fatal(err)
	}
	if report.Status != "completed" {
		t.Errorf("status = %q", report.Status)
	}
	found := false
	for _, s := range report.Steps {
		if s.Title == "List buckets" && strings.Contains(s.Log, "gs://") {
			found = true
		}
	}
	if !found {
		t.Errorf("steps = %+v", report.Steps)
	}
}

func TestHandleRun_Failure(t *testing.T) {
	res, err := newHandlers(t).HandleRun(context.Background(), call(map[string]any{
		"content": listScript,
		"vars":    map[string]any{"PROJECT": "forbidden"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected failed run to be reported as error")
	}
	var report RunReport
	if err := json.Unmarshal([]byte(text(t, res)), &report); err != nil {
		t.Fatal(err)
	}
	if report.Error != `Execution failed at step: "List buckets"` {
		t.Errorf("error = %q", report.Error)
	}
}

func TestHandleFlow(t *testing.T) {
	h := newHandlers(t)
	res, err := h.HandleFlow(context.Background(), call(map[string]any{"content": listScript}))
	if err != nil {
		t.Fatal(err)
	}
	if out := text(t, res); !strings.HasPrefix(out, "flowchart TD") {
		t.Errorf("mermaid output = %q", out)
	}

	res, _ = h.HandleFlow(context.Background(), call(map[string]any{"content": listScript, "format": "svg"}))
	if !res.IsError {
		t.Error("expected error for unsupported format")
	}
}

func TestHandleStoredScript(t *testing.T) {
	h := newHandlers(t)
	meta, err := h.Scripts.Save("", "List Buckets", "lists buckets", listScript)
	if err != nil {
		t.Fatal(err)
	}

	res, _ := h.HandleFlow(context.Background(), call(map[string]any{"key": meta.Key, "format": "ascii"}))
	if res.IsError || !strings.Contains(text(t, res), "List buckets") {
		t.Errorf("flow = %q", text(t, res))
	}

	res, _ = h.HandleScripts(context.Background(), call(nil))
	if res.IsError || !strings.Contains(text(t, res), meta.Key) {
		t.Errorf("scripts = %q", text(t, res))
	}

	res, _ = h.HandleRun(context.Background(), call(map[string]any{"key": "missing"}))
	if !res.IsError {
		t.Error("expected error for unknown key")
	}
}
