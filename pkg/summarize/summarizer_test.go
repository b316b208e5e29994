package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubClient struct {
	reply  string
	err    error
	system string
	user   string
}

func (s *stubClient) Complete(ctx context.Context, system, user string) (string, error) {
	s.system = system
	s.user = user
	return s.reply, s.err
}

func (s *stubClient) ModelName() string { return "stub" }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSummarizeFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		client LLMClient
		log    string
		want   string
	}{
		{"empty log", &stubClient{reply: "x"}, "  \n", EmptyLogSummary},
		{"disabled", nil, "output", DisabledSummary},
		{"client error", &stubClient{err: errors.New("timeout")}, "output", FailedSummary},
		{"blank reply", &stubClient{reply: "  "}, "output", FailedSummary},
		{"ok", &stubClient{reply: "VM created."}, "output", "VM created."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.client, quiet())
			if got := s.Summarize(context.Background(), tt.log); got != tt.want {
				t.Errorf("Summarize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarizeSendsLog(t *testing.T) {
	c := &stubClient{reply: "ok"}
	New(c, quiet()).Summarize(context.Background(), "Created [vm-1].")
	if !strings.Contains(c.user, "Created [vm-1].") {
		t.Errorf("user prompt = %q", c.user)
	}
	if c.system != systemPrompt {
		t.Errorf("system prompt = %q", c.system)
	}
}

func TestSummarizeKeepsLogTail(t *testing.T) {
	c := &stubClient{reply: "ok"}
	log := strings.Repeat("Listed 0 items.\n", 10000) + "ERROR: permission denied"
	New(c, quiet()).Summarize(context.Background(), log)
	if len(c.user) > maxLogBytes+100 {
		t.Errorf("user prompt has %d bytes", len(c.user))
	}
	if !strings.HasSuffix(c.user, "ERROR: permission denied") {
		t.Errorf("user prompt lost the log tail: %.60q", c.user[len(c.user)-60:])
	}
}

func TestNilSummarizer(t *testing.T) {
	var s *Summarizer
	if got := s.Summarize(context.Background(), "log"); got != DisabledSummary {
		t.Errorf("got %q", got)
	}
}

func TestNewAzureOpenAIClientValidation(t *testing.T) {
	if _, err := NewAzureOpenAIClient(AzureOpenAIConfig{}); err == nil {
		t.Error("expected error for missing endpoint")
	}
	if _, err := NewAzureOpenAIClient(AzureOpenAIConfig{Endpoint: "https://x"}); err == nil {
		t.Error("expected error for missing key")
	}
	c, err := NewAzureOpenAIClient(AzureOpenAIConfig{Endpoint: "https://x/", APIKey: "k", Deployment: "d"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Endpoint != "https://x" || c.APIVersion != DefaultAPIVersion || c.ModelName() != "d" {
		t.Errorf("client = %+v", c)
	}
}

func TestAzureOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.Contains(r.URL.Path, "/openai/deployments/gpt/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if v := r.URL.Query().Get("api-version"); v != DefaultAPIVersion {
			t.Errorf("api-version = %q", v)
		}
		var req summaryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.MaxTokens != summaryMaxTokens || req.N != 1 || req.Temperature != summaryTemp {
			t.Errorf("request = %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Content != "sys" || req.Messages[1].Content != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":" Bucket listed. "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c, _ := NewAzureOpenAIClient(AzureOpenAIConfig{Endpoint: srv.URL, APIKey: "secret", Deployment: "gpt"})
	out, err := c.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if out != "Bucket listed." {
		t.Errorf("out = %q", out)
	}

	c.APIKey = "wrong"
	if _, err := c.Complete(context.Background(), "sys", "user"); err == nil {
		t.Error("expected error on 401")
	}
}

func TestAzureOpenAICompleteFiltered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`)
	}))
	defer srv.Close()

	c, _ := NewAzureOpenAIClient(AzureOpenAIConfig{Endpoint: srv.URL, APIKey: "k", Deployment: "gpt"})
	if _, err := c.Complete(context.Background(), "sys", "user"); !errors.Is(err, ErrFiltered) {
		t.Errorf("err = %v, want ErrFiltered", err)
	}
}
