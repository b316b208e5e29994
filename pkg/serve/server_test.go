package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ormasoftchile/gcloud-commander/pkg/diagram"
	"github.com/ormasoftchile/gcloud-commander/pkg/projectinfo"
	"github.com/ormasoftchile/gcloud-commander/pkg/providers"
	"github.com/ormasoftchile/gcloud-commander/pkg/replay"
	"github.com/ormasoftchile/gcloud-commander/pkg/runtime"
	"github.com/ormasoftchile/gcloud-commander/pkg/script"
	"github.com/ormasoftchile/gcloud-commander/pkg/scripts"
	"github.com/ormasoftchile/gcloud-commander/pkg/stream"
	"github.com/ormasoftchile/gcloud-commander/pkg/summarize"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	return f.reply, f.err
}

func (f *fakeLLM) ModelName() string { return "fake" }

type projectExecutor struct{}

func (projectExecutor) Execute(ctx context.Context, command string) (*providers.CommandResult, error) {
	switch {
	case strings.Contains(command, "regions list"):
		return &providers.CommandResult{Stdout: []byte(`[{"name":"us-east1","zones":["z/us-east1-b"]}]`)}, nil
	case strings.Contains(command, "subnets list"):
		return &providers.CommandResult{Stdout: []byte(`[]`)}, nil
	default:
		return &providers.CommandResult{Stdout: []byte(`[{"name":"default"}]`)}, nil
	}
}

type testServer struct {
	*httptest.Server
	store *scripts.Store
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, llm summarize.LLMClient, projects providers.CommandExecutor) *testServer {
	t.Helper()
	mock, err := replay.NewMockExecutor(replay.DefaultScenario())
	if err != nil {
		t.Fatal(err)
	}
	mock.SetDelay(0)
	engine, err := runtime.NewEngine(runtime.Config{Logger: quietLogger()}, mock)
	if err != nil {
		t.Fatal(err)
	}
	store := scripts.NewStore(filepath.Join(t.TempDir(), "scripts"), quietLogger())
	srv, err := New(Dependencies{
		Engine:     engine,
		Scripts:    store,
		Summarizer: summarize.New(llm, quietLogger()),
		Projects:   projects,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func readEvents(t *testing.T, body io.Reader) []stream.Event {
	t.Helper()
	dec := stream.NewDecoder(body)
	var events []stream.Event
	for {
		ev, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("decode event: %v", err)
		}
		events = append(events, ev)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Dependencies{}); err == nil {
		t.Error("expected error without engine")
	}
}

func TestExecuteStreamsSteps(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	content := "#!/bin/bash\n" +
		"read -p \"Enter VM name: \" VM_NAME\n" +
		"echo \"---STEP:Create VM\"\n" +
		"gcloud compute instances create $VM_NAME --zone=us-east1-b\n"

	resp := ts.do(t, http.MethodPost, "/api/execute", ExecuteRequest{
		ScriptContent: content,
		InputValues:   map[string]string{"VM_NAME": "web-1"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != stream.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}

	events := readEvents(t, resp.Body)
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	step, ok := events[0].Step()
	if !ok || step.Title != "Create VM" {
		t.Fatalf("first event = %+v", events[0])
	}
	if !strings.Contains(step.Log, "instances/web-1") || !strings.Contains(step.Log, "Provisioning instance...") {
		t.Errorf("step log = %q", step.Log)
	}
	if events[1].Type != stream.TypeEnd {
		t.Errorf("last event = %+v", events[1])
	}
}

func TestExecuteReportsFailure(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	resp := ts.do(t, http.MethodPost, "/api/execute", map[string]any{
		"scriptContent": "echo \"---STEP:List\"\ngcloud storage ls --project=forbidden\n",
	})
	events := readEvents(t, resp.Body)
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	step, _ := events[0].Step()
	if !strings.Contains(step.Log, "PERMISSION_DENIED") {
		t.Errorf("step log = %q", step.Log)
	}
	if events[1].Type != stream.TypeError || events[1].Message() != `Execution failed at step: "List"` {
		t.Errorf("terminal event = %+v", events[1])
	}
}

func TestExecuteEmptyScriptEnds(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	resp := ts.do(t, http.MethodPost, "/api/execute", map[string]any{"scriptContent": "#!/bin/bash\n\n"})
	events := readEvents(t, resp.Body)
	if len(events) != 1 || events[0].Type != stream.TypeEnd {
		t.Errorf("events = %+v", events)
	}
}

func TestExecuteRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	tests := map[string]struct {
		body string
		want string
	}{
		"missing":  {`{}`, "scriptContent is required"},
		"empty":    {`{"scriptContent":""}`, "scriptContent is required"},
		"number":   {`{"scriptContent":42}`, "scriptContent is required"},
		"not json": {`not json`, "Invalid request body"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/api/execute", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d", resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if got := decodeJSON[ErrorResponse](t, resp); got.Error != tt.want {
				t.Errorf("error = %q, want %q", got.Error, tt.want)
			}
		})
	}
}

func TestScriptLifecycle(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	resp := ts.do(t, http.MethodPost, "/api/scripts", ScriptRequest{
		Name: "List Buckets", Description: "lists", Content: "gcloud storage ls --project=demo\n",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	if meta := decodeJSON[scripts.Metadata](t, resp); meta.Key != "list-buckets" {
		t.Errorf("created key = %q", meta.Key)
	}

	list := decodeJSON[[]scripts.Script](t, ts.do(t, http.MethodGet, "/api/scripts", nil))
	if len(list) != 1 || list[0].Content != "gcloud storage ls --project=demo\n" {
		t.Errorf("list = %+v", list)
	}

	params := decodeJSON[[]script.Parameter](t, ts.do(t, http.MethodGet, "/api/scripts/list-buckets/parameters", nil))
	if len(params) != 1 || params[0].Name != "project" || params[0].DefaultValue != "demo" {
		t.Errorf("parameters = %+v", params)
	}

	resp = ts.do(t, http.MethodPut, "/api/scripts/list-buckets", ScriptRequest{Name: "All Buckets", Content: "gcloud storage ls\n"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	if meta := decodeJSON[scripts.Metadata](t, resp); meta.Key != "all-buckets" {
		t.Errorf("renamed key = %q", meta.Key)
	}
	if resp := ts.do(t, http.MethodGet, "/api/scripts/list-buckets", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("old key status = %d", resp.StatusCode)
	}

	got := decodeJSON[scripts.Script](t, ts.do(t, http.MethodGet, "/api/scripts/all-buckets", nil))
	if got.Name != "All Buckets" {
		t.Errorf("script = %+v", got)
	}

	if resp := ts.do(t, http.MethodDelete, "/api/scripts/all-buckets", nil); resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	if list := decodeJSON[[]scripts.Script](t, ts.do(t, http.MethodGet, "/api/scripts", nil)); len(list) != 0 {
		t.Errorf("list after delete = %+v", list)
	}
}

func TestScriptErrors(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	if resp := ts.do(t, http.MethodPost, "/api/scripts", ScriptRequest{Name: "  "}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank name status = %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodPut, "/api/scripts/missing", ScriptRequest{Name: "x"}); resp.StatusCode != http.StatusNotFound {
		t.Errorf("update missing status = %d", resp.StatusCode)
	}
	if resp := ts.do(t, http.MethodGet, "/api/scripts/bad.key", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid key status = %d", resp.StatusCode)
	}
}

func TestParametersFromContent(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	params := decodeJSON[[]script.Parameter](t, ts.do(t, http.MethodPost, "/api/parameters", ContentRequest{
		ScriptContent: "read -p \"Enter zone: \" ZONE\ngcloud compute zones describe --zone=us-east1-b\n",
	}))
	if len(params) != 1 || params[0].Name != "ZONE" || params[0].Label != "Enter zone" || params[0].DefaultValue != "us-east1-b" {
		t.Errorf("parameters = %+v", params)
	}

	empty := decodeJSON[[]script.Parameter](t, ts.do(t, http.MethodPost, "/api/parameters", ContentRequest{}))
	if empty == nil || len(empty) != 0 {
		t.Errorf("empty parameters = %#v", empty)
	}
}

func TestFlow(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	if _, err := ts.store.Save("", "Two Steps", "", "echo \"---STEP:One\"\ngcloud a\necho \"---STEP:Two\"\n"); err != nil {
		t.Fatal(err)
	}
	resp := ts.do(t, http.MethodGet, "/api/scripts/two-steps/flow", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	flow := decodeJSON[struct {
		Name    string         `json:"name"`
		Nodes   []diagram.Node `json:"nodes"`
		Mermaid string         `json:"mermaid"`
	}](t, resp)
	if flow.Name != "Two Steps" || len(flow.Nodes) != 2 || !strings.Contains(flow.Mermaid, "step_0 --> step_1") {
		t.Errorf("flow = %+v", flow)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		llm  summarize.LLMClient
		log  string
		want string
	}{
		{"reply", &fakeLLM{reply: "Created **web-1**."}, "Created web-1", "Created **web-1**."},
		{"client failure", &fakeLLM{err: errors.New("boom")}, "output", summarize.FailedSummary},
		{"empty log", &fakeLLM{reply: "x"}, "  ", summarize.EmptyLogSummary},
		{"disabled", nil, "output", summarize.DisabledSummary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.llm, nil)
			resp := ts.do(t, http.MethodPost, "/api/summarize", SummarizeRequest{Log: tt.log})
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if got := decodeJSON[SummarizeResponse](t, resp); got.Summary != tt.want {
				t.Errorf("summary = %q, want %q", got.Summary, tt.want)
			}
		})
	}
}

func TestProjectInfo(t *testing.T) {
	ts := newTestServer(t, nil, projectExecutor{})
	resp := ts.do(t, http.MethodGet, "/api/projects/demo/info", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	info := decodeJSON[projectinfo.ProjectInfo](t, resp)
	if len(info.Regions) != 1 || info.Regions[0].Zones[0] != "us-east1-b" {
		t.Errorf("regions = %+v", info.Regions)
	}
	if len(info.Networks) != 1 || info.Networks[0].IPv4Range != "N/A" {
		t.Errorf("networks = %+v", info.Networks)
	}

	disabled := newTestServer(t, nil, nil)
	if resp := disabled.do(t, http.MethodGet, "/api/projects/demo/info", nil); resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("disabled status = %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	got := decodeJSON[map[string]string](t, ts.do(t, http.MethodGet, "/healthz", nil))
	if got["status"] != "ok" || got["mode"] != "command" {
		t.Errorf("health = %v", got)
	}
}

func TestStatusRecorderFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec}
	sr.Write([]byte("x"))
	sr.Flush()
	if sr.status != http.StatusOK || !rec.Flushed {
		t.Errorf("status = %d flushed = %v", sr.status, rec.Flushed)
	}
}
